// Package vaulterr maps the vault's domain error kinds onto
// gravitational/trace constructors so callers get trace's stack-trace
// capture and formatting, and can recognize a specific kind via this
// package's Is* helpers (errors.Is/errors.As under the hood) without
// caring which package raised the error.
package vaulterr

import (
	"errors"
	"fmt"

	"github.com/gravitational/trace"
)

// ErrLocked is wrapped by trace.Wrap whenever an operation that
// requires an unlocked vault is attempted while the vault is locked.
// Recognize it with IsLocked, not trace.IsAccessDenied — trace.Wrap
// preserves ErrLocked for errors.Is but does not itself classify the
// result as trace's AccessDenied kind.
var ErrLocked = errors.New("vault is locked")

// ErrInvalidPassword is wrapped by trace.Wrap when Unlock fails because
// the supplied passphrase does not derive a key that opens the
// verification blob. Recognize it with IsInvalidPassword.
var ErrInvalidPassword = errors.New("invalid vault password")

// PolicyDeniedError carries the human-readable reason a policy check
// rejected a proxy call. Recognize it with IsPolicyDenied, which
// recovers the reason via errors.As.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("policy denied: %s", e.Reason)
}

// Locked returns the standard error raised when an operation requires an
// unlocked vault.
func Locked() error {
	return trace.Wrap(ErrLocked)
}

// InvalidPassword returns the standard error raised by a failed Unlock.
func InvalidPassword() error {
	return trace.Wrap(ErrInvalidPassword)
}

// PolicyDenied returns the standard error raised when a policy rule
// rejects a proxy call.
func PolicyDenied(format string, args ...interface{}) error {
	return trace.Wrap(&PolicyDeniedError{Reason: fmt.Sprintf(format, args...)})
}

// IsLocked reports whether err (or anything it wraps) is ErrLocked.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// IsInvalidPassword reports whether err (or anything it wraps) is
// ErrInvalidPassword.
func IsInvalidPassword(err error) bool {
	return errors.Is(err, ErrInvalidPassword)
}

// IsPolicyDenied reports whether err (or anything it wraps) is a
// PolicyDeniedError.
func IsPolicyDenied(err error) bool {
	var pd *PolicyDeniedError
	return errors.As(err, &pd)
}
