package authflow

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/models"
	"github.com/dmitrijs2005/tgtoolkit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/tgtoolkit/internal/sessions"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport/fake"
)

const testPhone = "+15550001234"

func newRegistry(t *testing.T) (*sessions.Registry, *fake.Network) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repos := &repomanager.SQLiteRepositoryManager{}
	require.NoError(t, repos.RunMigrations(context.Background(), db))
	vault, err := cryptox.NewVault("", "test-secret")
	require.NoError(t, err)

	net := fake.NewNetwork()
	net.Phones[testPhone] = fake.PhoneAccount{
		Code: "12345", Credential: "cred-phone",
		Identity: transport.Identity{ID: 7, FirstName: "Ann", Phone: "15550001234"},
	}
	return sessions.NewRegistry(db, repos, vault, net, sessions.Options{APIID: 1, APIHash: "h"}, logging.Nop()), net
}

func TestPhoneFlow_Success(t *testing.T) {
	reg, net := newRegistry(t)
	f := NewPhoneFlow(reg, logging.Nop())
	ctx := context.Background()

	req, err := f.RequestCode(ctx, testPhone, "")
	require.NoError(t, err)
	assert.Equal(t, testPhone, req.Phone)
	assert.True(t, f.Pending(testPhone))

	sum, err := f.VerifyCode(ctx, testPhone, "12345", "")
	require.NoError(t, err)
	assert.Equal(t, "Account 1234", sum.Name)
	assert.Equal(t, models.AuthPhoneCode, sum.AuthMethod)
	assert.Equal(t, testPhone, sum.Phone)
	assert.True(t, sum.IsConnected)
	assert.Equal(t, sum.ID, reg.ActiveID())
	assert.False(t, f.Pending(testPhone))

	cred, err := reg.ExportCredential(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, "cred-phone", cred)
	assert.Equal(t, 1, net.Dials())
}

func TestPhoneFlow_NoPending(t *testing.T) {
	reg, _ := newRegistry(t)
	f := NewPhoneFlow(reg, logging.Nop())

	_, err := f.VerifyCode(context.Background(), testPhone, "12345", "")
	assert.ErrorIs(t, err, common.ErrNoPendingAuth)
}

func TestPhoneFlow_TwoFactorKeepsPending(t *testing.T) {
	reg, net := newRegistry(t)
	acc := net.Phones[testPhone]
	acc.Password = "hunter2"
	net.Phones[testPhone] = acc

	f := NewPhoneFlow(reg, logging.Nop())
	ctx := context.Background()
	_, err := f.RequestCode(ctx, testPhone, "Work")
	require.NoError(t, err)

	_, err = f.VerifyCode(ctx, testPhone, "12345", "")
	require.ErrorIs(t, err, common.ErrTwoFactorRequired)
	assert.True(t, f.Pending(testPhone))
	assert.True(t, net.Conns()[0].IsConnected())

	sum, err := f.VerifyCode(ctx, testPhone, "12345", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Work", sum.Name)
}

func TestPhoneFlow_FailureDiscardsPending(t *testing.T) {
	reg, net := newRegistry(t)
	f := NewPhoneFlow(reg, logging.Nop())
	ctx := context.Background()

	_, err := f.RequestCode(ctx, testPhone, "")
	require.NoError(t, err)

	_, err = f.VerifyCode(ctx, testPhone, "00000", "")
	require.ErrorIs(t, err, common.ErrTransport)
	assert.False(t, f.Pending(testPhone))
	assert.False(t, net.Conns()[0].IsConnected())

	_, err = f.VerifyCode(ctx, testPhone, "12345", "")
	assert.ErrorIs(t, err, common.ErrNoPendingAuth)
}

func TestPhoneFlow_RequestAgainReleasesPreviousHandle(t *testing.T) {
	reg, net := newRegistry(t)
	f := NewPhoneFlow(reg, logging.Nop())
	ctx := context.Background()

	_, err := f.RequestCode(ctx, testPhone, "")
	require.NoError(t, err)
	_, err = f.RequestCode(ctx, testPhone, "")
	require.NoError(t, err)

	conns := net.Conns()
	require.Len(t, conns, 2)
	assert.False(t, conns[0].IsConnected())
	assert.True(t, conns[1].IsConnected())
}

func TestPhoneFlow_UnknownPhone(t *testing.T) {
	reg, net := newRegistry(t)
	f := NewPhoneFlow(reg, logging.Nop())

	_, err := f.RequestCode(context.Background(), "+19990000000", "")
	require.ErrorIs(t, err, common.ErrTransport)
	assert.False(t, net.Conns()[0].IsConnected())

	_, err = f.RequestCode(context.Background(), "  ", "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestImporter_ImportString(t *testing.T) {
	reg, net := newRegistry(t)
	net.Accounts["valid-stub-string"] = transport.Identity{ID: 9, Username: "bob"}
	imp := NewImporter(reg, logging.Nop())
	ctx := context.Background()

	sum, err := imp.ImportString(ctx, "valid-stub-string", "")
	require.NoError(t, err)
	assert.Equal(t, "Imported bob", sum.Name)
	assert.Equal(t, models.AuthSessionString, sum.AuthMethod)
	assert.Equal(t, int64(9), sum.RemoteUserID)
	assert.True(t, sum.IsConnected)
	assert.Equal(t, sum.ID, reg.ActiveID())

	sum, err = imp.ImportString(ctx, "valid-stub-string", "Test")
	require.NoError(t, err)
	assert.Equal(t, "Test", sum.Name)
}

func TestImporter_RejectsUnauthorized(t *testing.T) {
	reg, net := newRegistry(t)
	imp := NewImporter(reg, logging.Nop())

	_, err := imp.ImportString(context.Background(), "expired", "")
	require.ErrorIs(t, err, common.ErrInvalidCredential)
	assert.False(t, net.Conns()[0].IsConnected())

	list, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = imp.ImportString(context.Background(), "", "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestImporter_ImportFile(t *testing.T) {
	reg, net := newRegistry(t)
	net.SessionFiles["SQLite format 3"] = "cred-file"
	net.Accounts["cred-file"] = transport.Identity{ID: 11, FirstName: "Cat"}
	imp := NewImporter(reg, logging.Nop())
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "me.session")
	require.NoError(t, os.WriteFile(path, []byte("SQLite format 3"), 0o600))
	sum, err := imp.ImportFile(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, "Imported Cat", sum.Name)
	assert.Equal(t, models.AuthSessionFile, sum.AuthMethod)

	sum, err = imp.ImportFileBytes(ctx, []byte("SQLite format 3"), "Upload")
	require.NoError(t, err)
	assert.Equal(t, "Upload", sum.Name)

	_, err = imp.ImportFileBytes(ctx, []byte("garbage"), "")
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
	_, err = imp.ImportFileBytes(ctx, nil, "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestImporter_ImportBotToken(t *testing.T) {
	reg, net := newRegistry(t)
	net.Bots["123:abc"] = transport.Identity{ID: 5, Username: "helper_bot", IsBot: true}
	imp := NewImporter(reg, logging.Nop())
	ctx := context.Background()

	sum, err := imp.ImportBotToken(ctx, "123:abc", "")
	require.NoError(t, err)
	assert.Equal(t, "Bot helper_bot", sum.Name)
	assert.Equal(t, models.AuthBotToken, sum.AuthMethod)
	assert.True(t, sum.IsBot)

	cred, err := reg.ExportCredential(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, "bot:123:abc", cred)

	_, err = imp.ImportBotToken(ctx, "bad", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func newQR(t *testing.T, timeout, pollWait time.Duration) (*QRFlow, *sessions.Registry, *fake.Network) {
	t.Helper()
	reg, net := newRegistry(t)
	net.QR = &fake.QRScript{Credential: "cred-qr"}
	net.Accounts["cred-qr"] = transport.Identity{ID: 21, Username: "qruser"}
	f := NewQRFlow(reg, NewImporter(reg, logging.Nop()), timeout, pollWait, logging.Nop())
	t.Cleanup(func() { f.Close(context.Background()) })
	return f, reg, net
}

func TestQRFlow_Success(t *testing.T) {
	f, reg, net := newQR(t, time.Minute, time.Second)
	ctx := context.Background()

	login, err := f.Generate(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(login.URL, "tg://login?token="))
	assert.NotEmpty(t, login.PNG)
	assert.NotEmpty(t, login.Token)

	net.AcceptQR()
	st, err := f.Poll(ctx, login.Token)
	require.NoError(t, err)
	require.Equal(t, QRSuccess, st.Status, st.Error)
	require.NotNil(t, st.Account)
	assert.Equal(t, models.AuthQRCode, st.Account.AuthMethod)
	assert.Equal(t, "Imported qruser", st.Account.Name)
	assert.Equal(t, st.Account.ID, reg.ActiveID())

	assert.False(t, net.Conns()[0].IsConnected(), "temporary handle is released")

	st, err = f.Poll(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, QRExpired, st.Status)
}

func TestQRFlow_Pending(t *testing.T) {
	f, _, _ := newQR(t, time.Minute, 10*time.Millisecond)
	ctx := context.Background()

	login, err := f.Generate(ctx, "")
	require.NoError(t, err)

	st, err := f.Poll(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, QRPending, st.Status)
	assert.False(t, st.Rescan)
}

func TestQRFlow_RotatedCodeAsksForRescan(t *testing.T) {
	f, _, net := newQR(t, time.Minute, 10*time.Millisecond)
	net.QR.TTL = time.Millisecond
	ctx := context.Background()

	login, err := f.Generate(ctx, "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	st, err := f.Poll(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, QRPending, st.Status)
	assert.True(t, st.Rescan)
	assert.NotEqual(t, login.URL, st.URL)
	assert.NotEmpty(t, st.PNG)
	assert.Contains(t, net.Calls(), "recreate_qr")
}

func TestQRFlow_TimeoutExpiresToken(t *testing.T) {
	f, _, net := newQR(t, 20*time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()

	login, err := f.Generate(ctx, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !net.Conns()[0].IsConnected()
	}, time.Second, 5*time.Millisecond)

	st, err := f.Poll(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, QRExpired, st.Status)
}

func TestQRFlow_ErrorDiscardsEntry(t *testing.T) {
	f, _, net := newQR(t, time.Minute, time.Second)
	net.QR.Err = common.ErrTwoFactorRequired
	ctx := context.Background()

	login, err := f.Generate(ctx, "")
	require.NoError(t, err)
	net.AcceptQR()

	st, err := f.Poll(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, QRError, st.Status)
	assert.Contains(t, st.Error, "two-factor")
	assert.False(t, net.Conns()[0].IsConnected())

	st, err = f.Poll(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, QRExpired, st.Status)
}

func TestQRFlow_Disabled(t *testing.T) {
	f, _, net := newQR(t, time.Minute, time.Second)
	net.QR = nil

	_, err := f.Generate(context.Background(), "")
	require.ErrorIs(t, err, common.ErrTransport)
	assert.False(t, net.Conns()[0].IsConnected())
}
