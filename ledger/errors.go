/*
errors.go - Centralized error types for the rent ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps them onto status codes; callers test them with errors.Is.

ERROR CATEGORIES:
  1. Validation errors - Missing or malformed input, rejected before planning
  2. Referential errors - Tenant, house or payment not found
  3. Conflict errors - Business-rule violations with a user-actionable code
  4. Store errors - Uniqueness violations raised by persistence

Corrupt allocation rows are not errors at this level: the replay skips them
and reports them in Replay.Skipped (see paid.go).

SEE ALSO:
  - eligibility.go: Produces ConflictError
  - api/handlers.go: writeLedgerError maps these to HTTP responses
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrTenantNotFound  = errors.New("tenant not found")
	ErrHouseNotFound   = errors.New("house not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrAlreadyReversed is returned when the target already has a reversal.
	// Storage also returns it when the reversed_payment_id index rejects a row.
	ErrAlreadyReversed = errors.New("payment already reversed")

	// ErrReverseReversal is returned when the target is itself a reversal.
	ErrReverseReversal = errors.New("cannot reverse a reversal")

	// ErrEditNotAllowed is returned for edits outside the latest-payment,
	// current-month window.
	ErrEditNotAllowed = errors.New("payment cannot be edited")

	// ErrReversalNotAbsorbable is returned when no month has a paid balance
	// the reversal could unwind.
	ErrReversalNotAbsorbable = errors.New("reversal cannot be absorbed")

	// ErrDuplicatePayment is returned when a payment ID is already stored.
	ErrDuplicatePayment = errors.New("duplicate payment id")

	// ErrDuplicateHouse and ErrDuplicateTenant are returned when a create
	// names an ID that already exists. Existing records change only through
	// the rent-history append path.
	ErrDuplicateHouse  = errors.New("house already exists")
	ErrDuplicateTenant = errors.New("tenant already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Conflict codes surfaced to API clients.
const (
	CodeAlreadyReversed       = "already_reversed"
	CodeReversalOfReversal    = "reversal_of_reversal"
	CodeEditNotAllowed        = "edit_not_allowed"
	CodeReversalNotAbsorbable = "reversal_not_absorbable"
)

// ConflictError is a business-rule rejection. Code is stable for clients;
// Message is the reason text shown to the end user.
type ConflictError struct {
	Code      string
	PaymentID PaymentID
	Message   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (payment %s): %s", e.Code, e.PaymentID, e.Message)
}

func (e *ConflictError) Unwrap() error {
	switch e.Code {
	case CodeAlreadyReversed:
		return ErrAlreadyReversed
	case CodeReversalOfReversal:
		return ErrReverseReversal
	case CodeEditNotAllowed:
		return ErrEditNotAllowed
	case CodeReversalNotAbsorbable:
		return ErrReversalNotAbsorbable
	}
	return nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrHouseNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrDuplicateHouse) ||
		errors.Is(err, ErrDuplicateTenant)
}

// IsClientError reports whether err was caused by the request rather than
// by the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || IsNotFound(err) || IsConflict(err)
}
