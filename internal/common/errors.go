// Package common defines sentinel errors and small helpers shared by every
// layer of the toolkit. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means caller input violates a precondition.
	ErrValidation = errors.New("validation error")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Crypto errors. ErrInvalidFormat and ErrDecryptionFailed wrap ErrCrypto.
	ErrCrypto           = errors.New("crypto error")
	ErrInvalidFormat    = fmt.Errorf("%w: invalid format", ErrCrypto)
	ErrDecryptionFailed = fmt.Errorf("%w: decryption failed", ErrCrypto)

	// Auth errors.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	ErrNoPendingAuth     = errors.New("no pending authentication for this phone, call request code first")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNoActiveAccount   = errors.New("no active account, connect to an account first")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")

	// Transport and timing errors.
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("timeout")
)

// Validationf returns an error wrapping ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
