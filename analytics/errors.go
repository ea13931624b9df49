package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGranularity is returned for any granularity other than
	// daily, monthly or yearly.
	ErrInvalidGranularity = errors.New("invalid aggregation granularity")

	// ErrInvalidRange is returned when a reporting range cannot be parsed.
	ErrInvalidRange = errors.New("invalid date range")
)

// ValidationError rejects a tracking request before any transaction starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransactionError wraps a store failure that aborted a tracking
// transaction. Nothing from the event was persisted.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("view tracking transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransaction reports whether err is, or wraps, a TransactionError.
func IsTransaction(err error) bool {
	var t *TransactionError
	return errors.As(err, &t)
}
