package parser

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the normalizer receives no records.
var ErrEmptyInput = errors.New("normalizer: received no records")

// AllRecordsInvalidError is returned when every input record was rejected.
type AllRecordsInvalidError struct {
	Rejected int
}

func (e *AllRecordsInvalidError) Error() string {
	return fmt.Sprintf("normalizer: no valid books after cleaning, %d records were invalid", e.Rejected)
}

// RejectionError explains why a single record was dropped.
type RejectionError struct {
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	return fmt.Errorf("%s: %w", e.Reason, e.Err).Error()
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}
