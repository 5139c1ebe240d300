package somnia

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the somnia package.
var (
	// ErrMissingInput is returned when a required input table is absent or empty.
	ErrMissingInput = errors.New("required input table missing or empty")

	// ErrMissingColumn is returned when an expected column is absent from an input table.
	ErrMissingColumn = errors.New("expected column missing")

	// ErrEmptyTable is returned when an operation needs a non-empty feature table.
	ErrEmptyTable = errors.New("feature table is empty")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// SchemaError reports a structural problem with an input table, typically a
// missing column. Schema errors are fatal: the pipeline cannot proceed.
type SchemaError struct {
	Table  string
	Column string
	Cause  error
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("table %s: missing column %q", e.Table, e.Column)
	}
	if e.Cause != nil {
		return fmt.Sprintf("table %s: %v", e.Table, e.Cause)
	}
	return fmt.Sprintf("table %s: invalid schema", e.Table)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrMissingColumn && e.Column != ""
}

// newSchemaError creates a SchemaError for a missing column.
func newSchemaError(table, column string) *SchemaError {
	return &SchemaError{Table: table, Column: column}
}

// InputError reports a missing or empty required input.
type InputError struct {
	Input   string
	Message string
}

func (e *InputError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("input %s: %s", e.Input, e.Message)
	}
	return fmt.Sprintf("input %s: missing or empty", e.Input)
}

// Is implements error matching for InputError.
func (e *InputError) Is(target error) bool {
	return target == ErrMissingInput
}

// QualityWarning is a non-fatal data-quality finding. Warnings are collected
// on the run report; they never abort the pipeline.
type QualityWarning struct {
	Code    QualityCode `json:"code"`
	Message string      `json:"message"`
	Count   int         `json:"count"`
}

// QualityCode categorizes data-quality warnings.
type QualityCode int

const (
	// QualityEmptyJoin indicates the activity/sleep join produced zero rows.
	QualityEmptyJoin QualityCode = iota
	// QualityZeroInBed indicates days where minutes-in-bed is zero and the
	// efficiency target is non-finite.
	QualityZeroInBed
	// QualityUserDropped indicates users whose entire history was removed at
	// finalization for lack of lag coverage.
	QualityUserDropped
)

func (c QualityCode) String() string {
	switch c {
	case QualityEmptyJoin:
		return "empty_join"
	case QualityZeroInBed:
		return "zero_in_bed"
	case QualityUserDropped:
		return "user_dropped"
	default:
		return "unknown"
	}
}
