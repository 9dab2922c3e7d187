package cryptox

import (
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/fernet/fernet-go"
)

// vaultSalt is fixed so a given secret always yields the same vault key.
var vaultSalt = []byte("telegram-toolkit-salt")

// noExpiry disables the Fernet token age check.
const noExpiry = -1

// Vault encrypts small secrets at rest, such as session strings. Tokens use
// the Fernet format, so they stay readable by any Fernet implementation
// holding the same key.
type Vault struct {
	key *fernet.Key
}

// NewVault builds a vault from encryptionKey when it is set and from
// secretKey otherwise. A valid Fernet key string is used as-is. Any other
// string is stretched with PBKDF2 into a key.
func NewVault(encryptionKey, secretKey string) (*Vault, error) {
	if encryptionKey != "" {
		if k, err := fernet.DecodeKey(encryptionKey); err == nil {
			return &Vault{key: k}, nil
		}
		return &Vault{key: deriveFernetKey(encryptionKey)}, nil
	}
	if secretKey == "" {
		return nil, common.Validationf("vault needs an encryption key or a secret key")
	}
	return &Vault{key: deriveFernetKey(secretKey)}, nil
}

func deriveFernetKey(secret string) *fernet.Key {
	raw := DeriveKey([]byte(secret), vaultSalt)
	defer common.WipeByteArray(raw)

	var k fernet.Key
	copy(k[:], raw)
	return &k
}

// GenerateKey returns a fresh URL-safe base64 key suitable for encryption_key.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", err
	}
	return k.Encode(), nil
}

func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plaintext, v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return tok, nil
}

// Decrypt fails with common.ErrDecryptionFailed for malformed tokens and for
// tokens made under another key.
func (v *Vault) Decrypt(token []byte) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt(token, noExpiry, []*fernet.Key{v.key})
	if msg == nil {
		return nil, common.ErrDecryptionFailed
	}
	return msg, nil
}

func (v *Vault) EncryptString(s string) (string, error) {
	tok, err := v.Encrypt([]byte(s))
	return string(tok), err
}

func (v *Vault) DecryptString(token string) (string, error) {
	msg, err := v.Decrypt([]byte(token))
	return string(msg), err
}

// EncryptFile writes the token for the file at in to out, which defaults to
// in + ".enc". It returns the output path.
func (v *Vault) EncryptFile(in, out string) (string, error) {
	if out == "" {
		out = in + ".enc"
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	tok, err := v.Encrypt(data)
	if err != nil {
		return "", err
	}
	return out, os.WriteFile(out, tok, 0o600)
}

// DecryptFile reverses EncryptFile. The default output drops a trailing
// ".enc" or else appends ".dec".
func (v *Vault) DecryptFile(in, out string) (string, error) {
	if out == "" {
		if strings.HasSuffix(in, ".enc") {
			out = strings.TrimSuffix(in, ".enc")
		} else {
			out = in + ".dec"
		}
	}
	tok, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	data, err := v.Decrypt(tok)
	if err != nil {
		return "", err
	}
	return out, os.WriteFile(out, data, 0o600)
}
