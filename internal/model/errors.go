package model

import (
	"errors"
	"fmt"

	"github.com/rickgao/ercot-data/internal/schema"
)

var (
	// ErrMissingRequiredField indicates a required canonical key is absent or null.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a value that cannot be converted to the column type.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnknownField indicates a key that is not a column of the table.
	ErrUnknownField = errors.New("unknown field")
)

// ValidationError is returned when a record cannot become a Row.
// The row is dropped; the batch it belongs to continues.
type ValidationError struct {
	Table  schema.Name
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s.%s: %v", e.Table, e.Field, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v: %s", e.Table, e.Field, e.Err, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
