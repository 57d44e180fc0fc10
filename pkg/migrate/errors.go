package migrate

import (
	"errors"
	"fmt"

	"github.com/baderkha/shelter/pkg/migrate/connector"
)

var (
	ErrUnsupportedEngine = connector.ErrUnsupportedEngine
	ErrConnectionFailed  = errors.New("connection failed")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrInvalidRange      = errors.New("invalid row range")
	ErrBatchFailed       = errors.New("batch failed")
	ErrRowCountMismatch  = errors.New("row count mismatch")
	ErrStagingIO         = errors.New("staging io error")
	ErrUploadFailed      = errors.New("upload failed")
	ErrBulkLoadFailed    = errors.New("bulk load failed")

	// pre-flight only
	ErrTableNotFound   = errors.New("table not found")
	ErrUnsupportedType = errors.New("unsupported column type")
	ErrColumnMismatch  = errors.New("column mismatch")
)

// Side : which end of the migration an error belongs to
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// ConnectionError : connecting to, or testing, one side failed
type ConnectionError struct {
	Side Side
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed : %v", e.Side, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnectionFailed }

func (e *ConnectionError) Unwrap() error { return e.Err }

// BatchError : a batch failed, aborting the run
type BatchError struct {
	BatchNumber int64
	Offset      int64
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (offset %d) failed : %v", e.BatchNumber, e.Offset, e.Err)
}

func (e *BatchError) Is(target error) bool { return target == ErrBatchFailed }

func (e *BatchError) Unwrap() error { return e.Err }

// RowCountError : final row counts differ
type RowCountError struct {
	Source      int64
	Destination int64
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("%v : source has %d rows, destination has %d", ErrRowCountMismatch, e.Source, e.Destination)
}

func (e *RowCountError) Is(target error) bool { return target == ErrRowCountMismatch }

// ColumnError : the first incompatible column found by the pre-flight check.
// Err is ErrUnsupportedType or ErrColumnMismatch.
type ColumnError struct {
	Side   Side
	Column string
	Reason string
	Err    error
}

func (e *ColumnError) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s column %s : %s", e.Side, e.Column, e.Reason)
	}
	return fmt.Sprintf("column %s : %s", e.Column, e.Reason)
}

func (e *ColumnError) Unwrap() error { return e.Err }

// process exit codes
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitUnsupportedEngine = 1
	ExitConnectionFailed  = 2
	ExitIncompatible      = 3
)

// ExitCode : process status for an error returned by Validate or Run
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUnsupportedEngine):
		return ExitUnsupportedEngine
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionFailed
	case errors.Is(err, ErrTableNotFound),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrColumnMismatch):
		return ExitIncompatible
	}
	return ExitFailure
}
