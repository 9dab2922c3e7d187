// Package cryptox implements the three encryption formats of the toolkit:
// the credential vault (Fernet tokens), the TGBAK01 envelope used for backups,
// and per-chat hidden message encryption. All of them derive keys with
// PBKDF2-HMAC-SHA256.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor shared by every format.
	Iterations = 100_000
	KeySize    = 32
	IVSize     = aes.BlockSize
)

// DeriveKey stretches password with salt into a 32-byte AES-256 key.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New)
}

func pkcs7Pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, common.ErrDecryptionFailed
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, common.ErrDecryptionFailed
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, common.ErrDecryptionFailed
		}
	}
	return b[:len(b)-n], nil
}

// cbcEncrypt pads plaintext and returns iv||ciphertext.
func cbcEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	iv := common.GenerateRandByteArray(IVSize)
	padded := pkcs7Pad(append([]byte(nil), plaintext...))

	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

// cbcDecrypt reverses cbcEncrypt.
func cbcDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < IVSize+aes.BlockSize || (len(data)-IVSize)%aes.BlockSize != 0 {
		return nil, common.ErrDecryptionFailed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	plain := make([]byte, len(data)-IVSize)
	cipher.NewCBCDecrypter(block, data[:IVSize]).CryptBlocks(plain, data[IVSize:])
	return pkcs7Unpad(plain)
}
