package page

import (
	"errors"
	"fmt"
)

// ErrCursorNotFound is returned when the timeline carries no scroll cursor.
var ErrCursorNotFound = errors.New("cursor not found")

// ParseError reports a page body that does not have the expected shape.
type ParseError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse page: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse page: %s", e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}
