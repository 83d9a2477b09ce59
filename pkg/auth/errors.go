package auth

import (
	"errors"
	"fmt"
)

// Credential errors.
var (
	// ErrNoGuestToken is returned when no guest token could be obtained.
	ErrNoGuestToken = errors.New("no guest token")

	// ErrInvalidGuestToken is returned when the guest token is malformed.
	ErrInvalidGuestToken = errors.New("invalid guest token")

	// ErrMissingHeader is returned when a required header is absent.
	ErrMissingHeader = errors.New("missing required header")

	// ErrNotCached is returned by Store.Load when no header set is cached.
	ErrNotCached = errors.New("headers not cached")
)

// PersistOp identifies a header persistence operation.
type PersistOp string

const (
	// OpLoad reads a header file.
	OpLoad PersistOp = "load"

	// OpSave writes a header file.
	OpSave PersistOp = "save"
)

// ErrInvalidLine is wrapped by PersistError when a header line has no '='.
var ErrInvalidLine = errors.New("invalid line: no '=' found")

// PersistError reports a failure loading or saving a header file.
type PersistError struct {
	Op   PersistOp
	Path string
	Line int
	Err  error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	switch {
	case e.Op == OpSave:
		return fmt.Sprintf("could not save headers to file %q: %v", e.Path, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("could not load persisted headers from file %q: line %d: %v", e.Path, e.Line, e.Err)
	default:
		return fmt.Sprintf("could not load persisted headers from file %q: %v", e.Path, e.Err)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PersistError) Unwrap() error {
	return e.Err
}
