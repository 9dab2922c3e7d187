package cryptox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_RoundTrip_DerivedAndExplicitKeys(t *testing.T) {
	generated, err := GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name          string
		encryptionKey string
		secretKey     string
	}{
		{name: "derived from secret key", secretKey: "change-me-in-production"},
		{name: "explicit fernet key", encryptionKey: generated},
		{name: "explicit non-fernet key is stretched", encryptionKey: "not a fernet key"},
	}

	blobs := [][]byte{[]byte("1BVtsOK4Bu..."), {0, 1, 2, 255}, []byte("x")}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVault(tt.encryptionKey, tt.secretKey)
			require.NoError(t, err)

			for _, b := range blobs {
				tok, err := v.Encrypt(b)
				require.NoError(t, err)
				assert.NotEqual(t, b, tok)

				got, err := v.Decrypt(tok)
				require.NoError(t, err)
				assert.Equal(t, b, got)
			}
		})
	}
}

func TestVault_DerivedKeyMatchesEncodedKey(t *testing.T) {
	// base64url(PBKDF2("change-me-in-production", "telegram-toolkit-salt"))
	const encoded = "6L9ROS-fk1DcGEgPd75pkLEXZLoyrGJRjIeXBHtLjeo="

	derived, err := NewVault("", "change-me-in-production")
	require.NoError(t, err)
	explicit, err := NewVault(encoded, "ignored")
	require.NoError(t, err)

	tok, err := derived.EncryptString("session")
	require.NoError(t, err)

	got, err := explicit.DecryptString(tok)
	require.NoError(t, err)
	assert.Equal(t, "session", got)
}

func TestVault_WrongKeyAndGarbage(t *testing.T) {
	a, err := NewVault("", "secret-a")
	require.NoError(t, err)
	b, err := NewVault("", "secret-b")
	require.NoError(t, err)

	tok, err := a.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = b.Decrypt(tok)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
	assert.ErrorIs(t, err, common.ErrCrypto)

	_, err = a.Decrypt([]byte("garbage"))
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestNewVault_RequiresSomeKey(t *testing.T) {
	_, err := NewVault("", "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestVault_Files(t *testing.T) {
	v, err := NewVault("", "secret")
	require.NoError(t, err)

	dir := t.TempDir()
	in := filepath.Join(dir, "sessions.txt")
	require.NoError(t, os.WriteFile(in, []byte("line1\nline2"), 0o600))

	enc, err := v.EncryptFile(in, "")
	require.NoError(t, err)
	assert.Equal(t, in+".enc", enc)

	require.NoError(t, os.Remove(in))

	dec, err := v.DecryptFile(enc, "")
	require.NoError(t, err)
	assert.Equal(t, in, dec)

	got, err := os.ReadFile(dec)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(got))

	other := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(other, mustEncrypt(t, v, "x"), 0o600))
	dec, err = v.DecryptFile(other, "")
	require.NoError(t, err)
	assert.Equal(t, other+".dec", dec)
}

func mustEncrypt(t *testing.T, v *Vault, s string) []byte {
	t.Helper()
	tok, err := v.Encrypt([]byte(s))
	require.NoError(t, err)
	return tok
}
