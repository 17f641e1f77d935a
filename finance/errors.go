/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is and the helpers at the bottom.

ERROR CATEGORIES:
  1. Validation errors - rejected before any write, caller can correct
  2. Consistency violations - allocator bugs, abort instead of clamping
  3. Concurrency conflicts - recoverable, caller retries the whole call

SEE ALSO:
  - engine.go: Raises these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a payment amount is zero or negative.
	// Rejected before any read or write.
	ErrInvalidAmount = errors.New("invalid payment amount")

	// ErrStudentNotFound is returned when the payment references an unknown
	// student for the tenant.
	ErrStudentNotFound = errors.New("student not found")

	// ErrAlreadyAllocated is returned when AllocatePayment is re-invoked for
	// a payment that already has allocations. The original run is untouched.
	ErrAlreadyAllocated = errors.New("payment already allocated")

	// ErrConcurrentModification is returned when the commit transaction
	// cannot complete. No partial state is observable; the caller may retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConsistencyViolation signals a bug in the allocator: a plan that
	// would over-allocate the payment or overdraw a target. The transaction
	// is aborted rather than clamped.
	ErrConsistencyViolation = errors.New("allocation consistency violation")

	// ErrTargetNotFound is returned when a plan names an arrear or fee the
	// commit cannot find. Treated as a consistency violation.
	ErrTargetNotFound = errors.New("allocation target not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError reports a non-positive payment amount.
type InvalidAmountError struct {
	Amount Money
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount %s: must be positive", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// StudentNotFoundError identifies the missing student.
type StudentNotFoundError struct {
	TenantID  TenantID
	StudentID StudentID
}

func (e *StudentNotFoundError) Error() string {
	return fmt.Sprintf("student %s not found for tenant %s", e.StudentID, e.TenantID)
}

func (e *StudentNotFoundError) Unwrap() error { return ErrStudentNotFound }

// AlreadyAllocatedError reports a duplicate allocation run for a payment.
type AlreadyAllocatedError struct {
	PaymentID PaymentID
	Existing  int // number of allocation rows already present
}

func (e *AlreadyAllocatedError) Error() string {
	return fmt.Sprintf("payment %s already has %d allocations", e.PaymentID, e.Existing)
}

func (e *AlreadyAllocatedError) Unwrap() error { return ErrAlreadyAllocated }

// ConsistencyError carries the invariant that a bad plan violated.
type ConsistencyError struct {
	PaymentID PaymentID
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation for payment %s: %s", e.PaymentID, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistencyViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole AllocatePayment call may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrAlreadyAllocated)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrTargetNotFound)
}
