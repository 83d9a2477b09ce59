package stream

import (
	"fmt"
)

// ValidationError reports a record whose identifier cannot be compared with
// the configured floor.
type ValidationError struct {
	ID  string
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record id %q: %v", e.ID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
