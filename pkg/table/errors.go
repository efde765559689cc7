package table

import (
	"errors"
	"fmt"
)

var (
	// ErrNilTable is returned when an operation receives a nil table.
	ErrNilTable = errors.New("nil table")

	// ErrColumnNotFound is matched by ColumnError.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRaggedRows is returned when rows or columns disagree on length.
	ErrRaggedRows = errors.New("ragged rows")

	// ErrDuplicateColumn is returned when a column label appears twice.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrUnsupportedOperator is returned by Where for an unknown comparison.
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// ColumnError reports a reference to a column that does not exist.
type ColumnError struct {
	Column    string
	Available []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q not found (available: %v)", e.Column, e.Available)
}

func (e *ColumnError) Unwrap() error {
	return ErrColumnNotFound
}
