/*
store.go - Persistence interfaces for the allocation engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Read models + the mutations the Balance Aggregator performs
  TxStore: Unit of work - the whole read-plan-commit cycle for one payment
           runs inside a single WithTx call

APPEND-ONLY CONTRACT:
  Allocations are append-only: AppendAllocation exists, no update or
  delete. Arrears and payment summaries are the only mutable rows, and
  only through the narrow update methods below.

ATOMICITY:
  Commit of a plan is all-or-nothing. If any step inside WithTx fails,
  the implementation rolls everything back - no partial allocation rows,
  no partial balance mutation.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - finance/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: The only consumer of these interfaces
*/
package finance

import "context"

// Store exposes the read models the allocator needs and the mutations the
// commit performs. Implementations keep allocations append-only.
type Store interface {
	// StudentExists reports whether the student belongs to the tenant.
	StudentExists(ctx context.Context, tenantID TenantID, studentID StudentID) (bool, error)

	// ArrearsByStudent returns the student's arrears ordered oldest
	// FromYear first (tier-1 priority order).
	ArrearsByStudent(ctx context.Context, tenantID TenantID, studentID StudentID) ([]Arrear, error)

	// ArrearExists reports whether an arrear exists for the exact
	// (student, fromYear, toYear) triple.
	ArrearExists(ctx context.Context, tenantID TenantID, studentID StudentID, fromYear, toYear AcademicYearID) (bool, error)

	// InsertArrear creates a new arrear. Generation only.
	InsertArrear(ctx context.Context, a Arrear) error

	// UpdateArrear persists AmountPaid, BalanceDue and Status. Nothing
	// else on the row changes after creation.
	UpdateArrear(ctx context.Context, a Arrear) error

	// ObligationsByStudent returns the student's fee obligations for the
	// academic year in catalog order, each carrying its current paid
	// amount and installments.
	ObligationsByStudent(ctx context.Context, tenantID TenantID, studentID StudentID, yearID AcademicYearID) ([]FeeObligation, error)

	// UpsertPaymentSummary writes the derived aggregate for an obligation.
	UpsertPaymentSummary(ctx context.Context, s PaymentSummary) error

	// UpdateObligationStatus persists the recomputed fee status.
	UpdateObligationStatus(ctx context.Context, id FeeObligationID, status FeeStatus) error

	// OutstandingByYear returns, per student, the total unpaid balance
	// across the year's obligations and arrears into that year. Input to
	// arrear generation at year close.
	OutstandingByYear(ctx context.Context, tenantID TenantID, yearID AcademicYearID) ([]StudentOutstanding, error)

	// AppendAllocation persists one allocation row. Append-only.
	AppendAllocation(ctx context.Context, a Allocation) error

	// AllocationsByPayment returns a payment's allocations ordered by
	// allocation order.
	AllocationsByPayment(ctx context.Context, paymentID PaymentID) ([]Allocation, error)
}

// TxStore wraps Store with unit-of-work support. The engine runs every
// allocation cycle and every generation job inside WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back and no write is observable.
	WithTx(ctx context.Context, fn func(Store) error) error
}
