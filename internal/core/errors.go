package core

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when no user context is available. It blocks
// all reads and writes until a session exists.
var ErrUnauthenticated = errors.New("no authenticated user")

// ValidationError reports malformed mutation input. It is raised locally and
// never reaches the remote store.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RemoteReadError reports a failed reconciliation fetch. It is non-fatal: the
// last good snapshot stays visible alongside it.
type RemoteReadError struct {
	Err error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("remote read failed: %v", e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

// RemoteWriteError reports a failed create/update/delete against the remote
// store, carrying the underlying cause. No local state is changed when it is
// returned.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
