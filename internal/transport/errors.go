package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
)

// FloodWaitError reports a server-imposed pause before the next request.
// It matches common.ErrTransport with errors.Is.
type FloodWaitError struct {
	Wait time.Duration
	Err  error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s: %v", e.Wait, e.Err)
}

func (e *FloodWaitError) Unwrap() []error {
	return []error{common.ErrTransport, e.Err}
}

// AsFloodWait extracts the pause announced by a FloodWaitError anywhere in
// err's chain.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}

// Wrap marks err as a transport failure, keeping its text.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrTransport, err)
}
