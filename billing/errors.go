/*
errors.go - Error types for the billing engine

ERROR CATEGORIES:
  1. Configuration errors - rejected when a definition, meter or reading is
     written (ValidationError). The engine never sees invalid configuration.
  2. Lookup errors - an entity referenced by a caller does not exist.
  3. Persistence errors - the invoice could not be written (PersistenceError,
     ErrDuplicateInvoiceNumber). Nothing is partially written.

Data absence (no reading, no previous period, zero denominator) is NOT an
error; see distribution.go. "Nothing to bill" is a nil invoice, not an error.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidChargeDefinition wraps rule/meter-type/currency violations.
	ErrInvalidChargeDefinition = errors.New("invalid charge definition")

	// ErrInvalidPeriodCharge is returned when a period charge references a
	// definition of another group or its amount has more than 2 decimal places.
	ErrInvalidPeriodCharge = errors.New("invalid period charge")

	// ErrUnknownMeterType is returned for a meter type without a unit mapping.
	ErrUnknownMeterType = errors.New("unknown meter type")

	// ErrUnitMismatch is returned when a stored unit disagrees with the meter type.
	ErrUnitMismatch = errors.New("meter unit does not match meter type")

	// ErrInvalidReading is returned for a negative or over-precise reading value.
	ErrInvalidReading = errors.New("invalid meter reading")

	// ErrDuplicateReading is returned when a meter already has a reading for the period.
	ErrDuplicateReading = errors.New("meter already has a reading for this period")

	// ErrMeterNotOwned is returned when a reading is submitted for another member's meter.
	ErrMeterNotOwned = errors.New("meter does not belong to this member")

	// ErrInvalidPeriod is returned for a month outside 1..12 or a non-positive year.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidGroup is returned for a group without a name.
	ErrInvalidGroup = errors.New("invalid group")

	// ErrInvalidMember is returned for a missing name or an invalid floor area.
	ErrInvalidMember = errors.New("invalid member")

	// ErrDuplicateInvoiceNumber is returned when the generated invoice number
	// collides with an existing one. The caller may retry the whole generation.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError describes a write-time configuration failure on one field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write of an invoice or one of its items.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether err was caused by invalid input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrDuplicateReading) ||
		errors.Is(err, ErrMeterNotOwned) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateInvoiceNumber) ||
		errors.Is(err, ErrDuplicateReading)
}
