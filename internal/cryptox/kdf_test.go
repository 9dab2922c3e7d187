package cryptox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	// snapshot: PBKDF2-HMAC-SHA256, 100000 iterations
	expectedHex := "9748d9ecd89f2a27d5d46a4a8fc18fbd1a09c6b3a02e47d152ab0d03e7bb1ee1"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	key1 := DeriveKey([]byte("secret-password"), []byte("salt-1"))
	key2 := DeriveKey([]byte("secret-password"), []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestPKCS7_RoundTrip(t *testing.T) {
	for n := 0; n <= 33; n++ {
		in := bytes.Repeat([]byte{'a'}, n)
		padded := pkcs7Pad(append([]byte(nil), in...))
		require.Zero(t, len(padded)%16)
		require.Greater(t, len(padded), n)

		out, err := pkcs7Unpad(padded)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestPKCS7_RejectsBadPadding(t *testing.T) {
	bad := [][]byte{
		nil,
		make([]byte, 15),
		append(bytes.Repeat([]byte{'a'}, 15), 0),
		append(bytes.Repeat([]byte{'a'}, 15), 17),
		append(bytes.Repeat([]byte{'a'}, 14), 1, 2),
	}
	for _, b := range bad {
		_, err := pkcs7Unpad(b)
		assert.True(t, errors.Is(err, common.ErrDecryptionFailed), "input %v", b)
	}
}

func TestCBC_RoundTripAndShortInput(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)

	enc, err := cbcEncrypt(key, []byte("hello"))
	require.NoError(t, err)
	require.Len(t, enc, IVSize+16)

	dec, err := cbcDecrypt(key, enc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(dec))

	_, err = cbcDecrypt(key, enc[:IVSize])
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}
