package classify

import (
	"errors"
	"fmt"
)

// Error attaches a taxonomy code to an underlying cause. The worker's
// recovery classifier dispatches on the code, never on the message text.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a code. A nil err is allowed for codes that are
// outcomes rather than faults (skips, prohibition).
func NewError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf is NewError with formatting.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the taxonomy code from an error chain. Unclassified
// errors come back as WORKER_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeWorkerError
}

// ErrHardTimeout is the sentinel the watchdog wraps around the outer
// per-company deadline. It is distinct from inner step timeouts so the
// recovery path knows to relaunch the browser instead of reloading the page.
var ErrHardTimeout = errors.New("hard timeout")

// IsHardTimeout reports whether err came from the per-company watchdog.
func IsHardTimeout(err error) bool { return errors.Is(err, ErrHardTimeout) }
