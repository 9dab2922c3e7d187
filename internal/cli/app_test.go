package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/server/auth"
	gs "github.com/dmitrijs2005/tgtoolkit/internal/server/grpc"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errw bytes.Buffer
	code := NewApp(&out, &errw).Run(context.Background(), args)
	return code, out.String(), errw.String()
}

func TestRun_UsageAndUnknown(t *testing.T) {
	code, _, errOut := run(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "vault-encrypt")

	code, _, errOut = run(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command")

	code, _, _ = run(t, "help")
	assert.Equal(t, 0, code)
}

func TestToken_RoundTrip(t *testing.T) {
	t.Setenv(secretEnv, "")
	code, out, _ := run(t, "token", "-s", "k", "-operator", "ops")
	require.Equal(t, 0, code)

	who, err := auth.GetOperatorFromToken(strings.TrimSpace(out), []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "ops", who)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv(secretEnv, "")
	code, _, errOut := run(t, "token")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "-s is required")
}

func TestGenKey(t *testing.T) {
	code, out, _ := run(t, "genkey")
	require.Equal(t, 0, code)
	assert.Len(t, strings.TrimSpace(out), 44)
}

func TestSealOpenVerify(t *testing.T) {
	t.Setenv(passwordEnv, "pw")
	dir := t.TempDir()
	src := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"messages":[]}`), 0o600))

	code, out, errOut := run(t, "seal", "-in", src)
	require.Equal(t, 0, code, errOut)
	var sealed struct {
		Path       string `json:"path"`
		Compressed bool   `json:"compressed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sealed))
	assert.Equal(t, src+".tgbak", sealed.Path)
	assert.True(t, sealed.Compressed)

	code, out, _ = run(t, "verify", "-in", sealed.Path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "password OK")

	restored := filepath.Join(dir, "restored.json")
	code, _, errOut = run(t, "open", "-in", sealed.Path, "-out", restored)
	require.Equal(t, 0, code, errOut)
	b, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, `{"messages":[]}`, string(b))

	t.Setenv(passwordEnv, "wrong")
	code, _, errOut = run(t, "verify", "-in", sealed.Path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "wrong password")
}

func TestSealDirectory(t *testing.T) {
	t.Setenv(passwordEnv, "pw")
	root := t.TempDir()
	exp := filepath.Join(root, "export_1")
	require.NoError(t, os.MkdirAll(filepath.Join(exp, "media"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(exp, "export.txt"), []byte("hi"), 0o600))

	code, _, errOut := run(t, "seal", "-dir", exp)
	require.Equal(t, 0, code, errOut)

	out := filepath.Join(root, "out")
	code, _, errOut = run(t, "open", "-in", exp+".tgbak", "-dir", out)
	require.Equal(t, 0, code, errOut)
	assert.FileExists(t, filepath.Join(out, "export.txt"))
}

func TestVaultEncryptDecrypt(t *testing.T) {
	t.Setenv(vaultKeyEnv, "")
	dir := t.TempDir()
	src := filepath.Join(dir, "creds.txt")
	require.NoError(t, os.WriteFile(src, []byte("session"), 0o600))

	code, out, errOut := run(t, "vault-encrypt", "-in", src, "-s", "secret")
	require.Equal(t, 0, code, errOut)
	enc := strings.TrimSpace(out)
	assert.Equal(t, src+".enc", enc)

	plain := filepath.Join(dir, "plain.txt")
	code, _, errOut = run(t, "vault-decrypt", "-in", enc, "-out", plain, "-s", "secret")
	require.Equal(t, 0, code, errOut)
	b, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, "session", string(b))

	code, _, _ = run(t, "vault-decrypt", "-in", enc, "-out", plain, "-s", "other")
	assert.Equal(t, 1, code)
}

func TestVault_RequiresKeyOrSecret(t *testing.T) {
	t.Setenv(vaultKeyEnv, "")
	t.Setenv(secretEnv, "")
	code, _, _ := run(t, "vault-encrypt", "-in", "x")
	assert.Equal(t, 2, code)
}

func TestCall_Ping(t *testing.T) {
	t.Setenv(tokenEnv, "")
	lis := bufconn.Listen(1 << 20)
	srv := gs.NewGRPCServer("", logging.Nop(), gs.Services{}, "secret")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() { cancel(); <-done })

	var out, errw bytes.Buffer
	app := NewApp(&out, &errw)
	app.dial = func(string) (grpc.ClientConnInterface, io.Closer, error) {
		cc, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		return cc, cc, err
	}

	code := app.Run(context.Background(), []string{"call", "Ping"})
	require.Equal(t, 0, code, errw.String())
	assert.Contains(t, out.String(), `"status": "OK"`)

	out.Reset()
	errw.Reset()
	code = app.Run(context.Background(), []string{"call", "-token", "", "ListAccounts"})
	assert.Equal(t, 1, code)
	assert.Contains(t, errw.String(), "Unauthenticated")

	code = app.Run(context.Background(), []string{"call", "Ping", "not json"})
	assert.Equal(t, 1, code)
}
