package application

import (
	"errors"
	"fmt"
)

// ErrValidation indicates missing or malformed caller input.
var ErrValidation = errors.New("validation failed")

// ErrNoCredential is returned when a user has no GitHub token stored and no
// fallback token is configured.
var ErrNoCredential = errors.New("no GitHub credential configured for user")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// WriteBackFailure describes a best-effort upstream label write that did not
// succeed. It is logged and counted, never returned to callers.
type WriteBackFailure struct {
	Kind   string // "add_labels" or "ensure_labels"
	Owner  string
	Repo   string
	Number int
	Err    error
}

func (f *WriteBackFailure) Error() string {
	if f.Number > 0 {
		return fmt.Sprintf("%s on %s/%s#%d: %v", f.Kind, f.Owner, f.Repo, f.Number, f.Err)
	}
	return fmt.Sprintf("%s on %s/%s: %v", f.Kind, f.Owner, f.Repo, f.Err)
}

func (f *WriteBackFailure) Unwrap() error {
	return f.Err
}
