package cryptox

import (
	"bytes"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
)

// Envelope layout: Magic || salt(32) || iv(16) || AES-256-CBC ciphertext.
const (
	Magic    = "TGBAK01"
	SaltSize = 32

	headerSize = len(Magic) + SaltSize
)

// Seal encrypts data under a key derived from password and a fresh salt.
func Seal(data []byte, password string) ([]byte, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	key := DeriveKey([]byte(password), salt)
	defer common.WipeByteArray(key)

	body, err := cbcEncrypt(key, data)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, Magic...)
	out = append(out, salt...)
	return append(out, body...), nil
}

// Open decrypts a sealed blob. A missing or damaged header gives
// common.ErrInvalidFormat. A wrong password or corrupted ciphertext gives
// common.ErrDecryptionFailed.
func Open(blob []byte, password string) ([]byte, error) {
	if len(blob) < headerSize+IVSize || !bytes.Equal(blob[:len(Magic)], []byte(Magic)) {
		return nil, common.ErrInvalidFormat
	}
	salt := blob[len(Magic):headerSize]

	key := DeriveKey([]byte(password), salt)
	defer common.WipeByteArray(key)

	return cbcDecrypt(key, blob[headerSize:])
}

// VerifyPassword reports whether password opens blob. The format has no
// verifier, so this performs a full decryption.
func VerifyPassword(blob []byte, password string) bool {
	_, err := Open(blob, password)
	return err == nil
}
