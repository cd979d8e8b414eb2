package blocks

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoValue is returned by drivers when the source exists but currently
// has nothing to report (e.g., no SSID while disassociated).
var ErrNoValue = errors.New("no value")

// SourceError reports a failed refresh: device absent, external tool missing
// or exiting non-zero, or unparsable output.
type SourceError struct {
	Block string
	Op    string
	Err   error
}

// NewSourceError wraps err as a SourceError for block.
func NewSourceError(block, op string, err error) *SourceError {
	return &SourceError{Block: block, Op: op, Err: err}
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error in %s: %s", e.Block, e.Op)
	}
	return fmt.Sprintf("error in %s: %s (%v)", e.Block, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TimeoutError reports a refresh that exceeded its bound and was abandoned.
type TimeoutError struct {
	Block string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("error in %s: refresh timed out after %s", e.Block, e.After)
}

// Timeout marks the error as a timeout for callers checking net.Error-like
// behaviour.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
