package ingest

import (
	"fmt"
	"strings"
)

// MalformedFileError indicates a structural parse failure the corrector could
// not repair. The detected headers are kept for diagnostics.
type MalformedFileError struct {
	Columns int
	Headers []string
}

// Error implements the error interface.
func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("file format is invalid: detected %d columns, expected at least %d", e.Columns, minColumns)
}

// MissingRequiredFieldError indicates that neither the current nor the legacy
// required columns are present in the file.
type MissingRequiredFieldError struct {
	Missing []string
	Headers []string
}

// Error implements the error interface.
func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("file must contain the columns: %s", strings.Join(e.Missing, ", "))
}

// RowTransformError is a row-scoped failure raised while deriving a lead from
// a source row. It never aborts the batch; the orchestrator records it
// per-row.
type RowTransformError struct {
	Row     int
	Message string
}

// Error implements the error interface.
func (e *RowTransformError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}
