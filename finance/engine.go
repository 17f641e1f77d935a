/*
engine.go - Allocation orchestration and commit rules

PURPOSE:
  The entry point the payment-capture flow calls. For one payment the
  engine validates, serializes per student, reads the arrear ledger and
  obligation catalog, runs the waterfall, verifies the plan against the
  invariants, and commits everything inside one unit of work.

COMMIT RULES (Balance Aggregator):
  For each intent, in plan order:
    (a) allocation order = position + 1
    (b) persist the allocation row
    (c) ARREAR target: amountPaid += allocated, balance clamped at zero,
        status PAID when zero else PARTIAL
    (d) STUDENT_FEE target: upsert the payment summary, then recompute the
        obligation status with the same PAID/PARTIAL/NOT_STARTED rule
  Any failure aborts the whole commit; partial application would break the
  conservation and balance invariants.

SERIALIZATION:
  Two allocation runs for the same (tenant, student, year) must not
  interleave: both would read the same unpaid snapshots and double-spend.
  A per-key mutex serializes them ahead of the store transaction.

INVARIANTS VERIFIED BEFORE COMMIT:
  1. Plan total <= payment amount
  2. No target receives more than its balance
  3. Every intent amount is positive
  A violation is an internal bug, surfaced as ErrConsistencyViolation -
  never silently clamped.

SEE ALSO:
  - waterfall.go: The decision function
  - store.go: The unit-of-work contract
*/
package finance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store TxStore
	locks *studentLocks
	now   func() time.Time
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		store: store,
		locks: newStudentLocks(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// AllocationResult is what the payment-capture flow gets back: the
// committed allocations in order, and the unallocated remainder.
type AllocationResult struct {
	Allocations []Allocation
	Remaining   Money
}

// AllocatePayment runs the full waterfall cycle for one payment.
//
// Errors:
//   - ErrInvalidAmount: amount is zero or negative, nothing was read
//   - ErrStudentNotFound: unknown student for the tenant
//   - ErrAlreadyAllocated: this payment already has allocations
//   - ErrConcurrentModification: commit conflict, retry the whole call
func (e *Engine) AllocatePayment(ctx context.Context, p Payment) (AllocationResult, error) {
	if !p.Amount.IsPositive() {
		return AllocationResult{}, &InvalidAmountError{Amount: p.Amount}
	}

	unlock := e.locks.lock(lockKey(p.TenantID, p.StudentID, p.AcademicYearID))
	defer unlock()

	var result AllocationResult
	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := s.AllocationsByPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &AlreadyAllocatedError{PaymentID: p.ID, Existing: len(existing)}
		}

		ok, err := s.StudentExists(ctx, p.TenantID, p.StudentID)
		if err != nil {
			return err
		}
		if !ok {
			return &StudentNotFoundError{TenantID: p.TenantID, StudentID: p.StudentID}
		}

		arrears, err := s.ArrearsByStudent(ctx, p.TenantID, p.StudentID)
		if err != nil {
			return err
		}
		obligations, err := s.ObligationsByStudent(ctx, p.TenantID, p.StudentID, p.AcademicYearID)
		if err != nil {
			return err
		}

		plan, remainder := Allocate(p.Amount, arrears, BuildObligationSet(obligations))
		if err := verifyPlan(p, plan, arrears, obligations); err != nil {
			return err
		}

		allocations, err := e.commit(ctx, s, p, plan, arrears, obligations)
		if err != nil {
			return err
		}

		result = AllocationResult{Allocations: allocations, Remaining: remainder}
		return nil
	})
	if err != nil {
		return AllocationResult{}, err
	}
	return result, nil
}

// =============================================================================
// BALANCE AGGREGATOR - Applies a verified plan inside the transaction
// =============================================================================

func (e *Engine) commit(ctx context.Context, s Store, p Payment, plan []AllocationIntent, arrears []Arrear, obligations []FeeObligation) ([]Allocation, error) {
	arrearsByID := make(map[ArrearID]*Arrear, len(arrears))
	for i := range arrears {
		arrearsByID[arrears[i].ID] = &arrears[i]
	}
	obligationsByID := make(map[FeeObligationID]*FeeObligation, len(obligations))
	for i := range obligations {
		obligationsByID[obligations[i].ID] = &obligations[i]
	}

	now := e.now()
	allocations := make([]Allocation, 0, len(plan))

	for i, intent := range plan {
		alloc := Allocation{
			ID:        uuid.NewString(),
			PaymentID: p.ID,
			Target:    intent.Target,
			Amount:    intent.Amount,
			Order:     i + 1,
			CreatedAt: now,
		}
		if err := s.AppendAllocation(ctx, alloc); err != nil {
			return nil, err
		}

		switch target := intent.Target.(type) {
		case ArrearTarget:
			a, ok := arrearsByID[target.ID]
			if !ok {
				return nil, fmt.Errorf("arrear %s: %w", target.ID, ErrTargetNotFound)
			}
			a.ApplyPayment(intent.Amount)
			if err := s.UpdateArrear(ctx, *a); err != nil {
				return nil, err
			}

		case StudentFeeTarget:
			f, ok := obligationsByID[target.ID]
			if !ok {
				return nil, fmt.Errorf("fee obligation %s: %w", target.ID, ErrTargetNotFound)
			}
			f.Paid = f.Paid.Add(intent.Amount)
			f.Status = feeStatusFor(f.TotalAmount, f.Paid)

			summary := PaymentSummary{
				FeeObligationID: f.ID,
				TenantID:        f.TenantID,
				ExpectedAmount:  f.TotalAmount,
				PaidAmount:      f.Paid,
				Balance:         f.TotalAmount.Sub(f.Paid).ClampZero(),
				LastPaymentDate: &now,
			}
			if err := s.UpsertPaymentSummary(ctx, summary); err != nil {
				return nil, err
			}
			if err := s.UpdateObligationStatus(ctx, f.ID, f.Status); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unknown target kind %q: %w", intent.Target.Kind(), ErrTargetNotFound)
		}

		allocations = append(allocations, alloc)
	}

	return allocations, nil
}

// feeStatusFor applies the shared PAID/PARTIAL/NOT_STARTED rule.
func feeStatusFor(expected, paid Money) FeeStatus {
	switch {
	case !paid.IsPositive():
		return FeeNotStarted
	case paid.GreaterThan(expected) || paid.Equal(expected):
		return FeePaid
	default:
		return FeePartial
	}
}

// =============================================================================
// PLAN VERIFICATION - Detect allocator bugs before any write lands
// =============================================================================

func verifyPlan(p Payment, plan []AllocationIntent, arrears []Arrear, obligations []FeeObligation) error {
	balances := make(map[string]Money, len(arrears)+len(obligations))
	for _, a := range arrears {
		balances[string(TargetArrear)+":"+string(a.ID)] = a.BalanceDue
	}
	for _, f := range obligations {
		balances[string(TargetStudentFee)+":"+string(f.ID)] = f.Balance()
	}

	total := Money{}
	for _, intent := range plan {
		if !intent.Amount.IsPositive() {
			return &ConsistencyError{PaymentID: p.ID, Detail: fmt.Sprintf("non-positive intent amount %s", intent.Amount)}
		}
		key := string(intent.Target.Kind()) + ":" + intent.Target.TargetID()
		balance, ok := balances[key]
		if !ok {
			return &ConsistencyError{PaymentID: p.ID, Detail: fmt.Sprintf("intent targets unknown %s", key)}
		}
		if intent.Amount.GreaterThan(balance) {
			return &ConsistencyError{PaymentID: p.ID, Detail: fmt.Sprintf("intent for %s exceeds balance %s by %s", key, balance, intent.Amount.Sub(balance))}
		}
		balances[key] = balance.Sub(intent.Amount)
		total = total.Add(intent.Amount)
	}

	if total.GreaterThan(p.Amount) {
		return &ConsistencyError{PaymentID: p.ID, Detail: fmt.Sprintf("plan total %s exceeds payment amount %s", total, p.Amount)}
	}
	return nil
}

// =============================================================================
// ARREAR GENERATION - Idempotent year-close job
// =============================================================================

// GenerateArrears creates one arrear per student carrying a non-zero
// unpaid balance from fromYear into toYear. Re-running the job is a no-op
// for triples that already have an arrear. Returns the arrears created by
// this run.
func (e *Engine) GenerateArrears(ctx context.Context, tenantID TenantID, fromYear, toYear AcademicYearID) ([]Arrear, error) {
	var created []Arrear
	err := e.store.WithTx(ctx, func(s Store) error {
		outstanding, err := s.OutstandingByYear(ctx, tenantID, fromYear)
		if err != nil {
			return err
		}
		now := e.now()
		for _, o := range outstanding {
			if !o.Balance.IsPositive() {
				continue
			}
			exists, err := s.ArrearExists(ctx, tenantID, o.StudentID, fromYear, toYear)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			a := NewArrear(ArrearID(uuid.NewString()), tenantID, o.StudentID, fromYear, toYear, o.Balance, now)
			if err := s.InsertArrear(ctx, a); err != nil {
				return err
			}
			created = append(created, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// PER-STUDENT SERIALIZATION
// =============================================================================

// studentLocks hands out one mutex per (tenant, student, year) so that
// concurrent allocation runs for the same student cannot read the same
// unpaid snapshot and double-spend.
type studentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newStudentLocks() *studentLocks {
	return &studentLocks{locks: make(map[string]*sync.Mutex)}
}

func (sl *studentLocks) lock(key string) (unlock func()) {
	sl.mu.Lock()
	m, ok := sl.locks[key]
	if !ok {
		m = &sync.Mutex{}
		sl.locks[key] = m
	}
	sl.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func lockKey(tenantID TenantID, studentID StudentID, yearID AcademicYearID) string {
	return string(tenantID) + "|" + string(studentID) + "|" + string(yearID)
}
