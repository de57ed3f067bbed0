package schemas

import (
	"errors"
	"fmt"
)

// ErrUnknownStepType is wrapped by decode and validation failures for an unrecognised step type.
var ErrUnknownStepType = errors.New("unknown step type")

// ErrNoActivePage is returned by Host.ActiveURL when no browser page is open,
// including before the browser has been launched.
var ErrNoActivePage = errors.New("no active page")

// ValidationError describes a malformed program. It is a configuration error:
// a program that fails validation never starts.
type ValidationError struct {
	// Index of the offending step, or -1 when the error concerns the whole document.
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	where := "program"
	if e.Index >= 0 {
		where = fmt.Sprintf("step %d", e.Index)
	}
	if e.Field != "" {
		where += " " + e.Field
	}
	return fmt.Sprintf("invalid %s: %s", where, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
