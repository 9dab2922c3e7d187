package cryptox

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
)

// Markers of hidden content. Text carries TextMarker as a prefix, files
// carry FileMarker at the start of their name.
const (
	TextMarker = "🔒"
	FileMarker = "🔐"
	FileExt    = ".enc"

	chatSaltPrefix = "tg_e2e_"
)

// ChatKey is a passphrase stretched for one chat. Deriving it costs a full
// PBKDF2 run, so bulk callers derive once and reuse it.
type ChatKey struct {
	key []byte
}

// DeriveChatKey salts passphrase with the chat id, so one passphrase gives
// every chat an independent key.
func DeriveChatKey(passphrase string, chatID int64) *ChatKey {
	salt := chatSaltPrefix + strconv.FormatInt(chatID, 10)
	return &ChatKey{key: DeriveKey([]byte(passphrase), []byte(salt))}
}

// EncryptText returns TextMarker followed by base64(iv||ciphertext).
// Empty text is returned unchanged.
func (k *ChatKey) EncryptText(text string) (string, error) {
	if text == "" {
		return text, nil
	}
	data, err := cbcEncrypt(k.key, []byte(text))
	if err != nil {
		return "", err
	}
	return TextMarker + base64.StdEncoding.EncodeToString(data), nil
}

// DecryptText returns unmarked text unchanged. It never fails: text that
// cannot be decrypted is replaced by a readable placeholder, so histories
// mixing plain, hidden and foreign-key messages still render.
func (k *ChatKey) DecryptText(text string) string {
	if !IsEncrypted(text) {
		return text
	}
	plain, err := k.decryptText(text)
	if err != nil {
		return DecryptFailedPlaceholder(err)
	}
	return plain
}

func (k *ChatKey) decryptText(text string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, TextMarker))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidFormat, err)
	}
	plain, err := cbcDecrypt(k.key, data)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", common.ErrDecryptionFailed
	}
	return string(plain), nil
}

// EncryptFile returns iv||ciphertext and a file name hint made of
// FileMarker, a random hex id and FileExt.
func (k *ChatKey) EncryptFile(data []byte) ([]byte, string, error) {
	out, err := cbcEncrypt(k.key, data)
	if err != nil {
		return nil, "", err
	}
	id, err := common.MakeRandHexString(8)
	if err != nil {
		return nil, "", err
	}
	return out, FileMarker + id + FileExt, nil
}

// DecryptFile fails with a crypto error; binary content has no placeholder.
func (k *ChatKey) DecryptFile(data []byte) ([]byte, error) {
	return cbcDecrypt(k.key, data)
}

// DecryptFailedPlaceholder is the text shown instead of undecryptable content.
func DecryptFailedPlaceholder(err error) string {
	return fmt.Sprintf("[Encrypted - Decryption failed: %v]", err)
}

// IsEncrypted reports whether text carries the hidden-text marker.
func IsEncrypted(text string) bool {
	return strings.HasPrefix(text, TextMarker)
}

// IsEncryptedFileName reports whether name looks like an EncryptFile hint.
func IsEncryptedFileName(name string) bool {
	return strings.HasPrefix(name, FileMarker) && strings.HasSuffix(name, FileExt)
}

func EncryptText(text, passphrase string, chatID int64) (string, error) {
	if text == "" {
		return text, nil
	}
	return DeriveChatKey(passphrase, chatID).EncryptText(text)
}

func DecryptText(text, passphrase string, chatID int64) string {
	if !IsEncrypted(text) {
		return text
	}
	return DeriveChatKey(passphrase, chatID).DecryptText(text)
}

func EncryptFile(data []byte, passphrase string, chatID int64) ([]byte, string, error) {
	return DeriveChatKey(passphrase, chatID).EncryptFile(data)
}

func DecryptFile(data []byte, passphrase string, chatID int64) ([]byte, error) {
	return DeriveChatKey(passphrase, chatID).DecryptFile(data)
}
