/*
Package finance provides the core payment allocation engine for a
multi-tenant school back office.

PURPOSE:
  This package contains the domain types and algorithms that decide how an
  incoming cash payment is absorbed by a student's outstanding obligations:
  inter-year arrears first, then registration-like fees, then tuition. It
  owns the balance and status update rules those allocations trigger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal amount (never binary floating point)
  - Payment: An incoming cash amount for a student (owned externally)
  - Arrear: Unpaid balance carried forward from a prior academic year
  - FeeObligation: What a student owes for one fee in one academic year
  - Allocation: An immutable record of payment applied to one target
  - AllocationTarget: Tagged variant - either an arrear or a student fee

DESIGN PRINCIPLES:
  1. Immutability: Allocations are append-only, never edited
  2. Precision: Uses decimal.Decimal for all money arithmetic
  3. Type Safety: Strong typing for IDs prevents mixing tenants/students
  4. Monotonicity: Balances only move toward zero, statuses toward PAID

SEE ALSO:
  - waterfall.go: The three-tier allocation decision function
  - engine.go: Orchestration, commit rules, and invariant checks
  - store.go: Persistence interfaces
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount in the tenant's single currency
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money      { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money      { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsPositive() bool       { return m.Value.IsPositive() }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool  { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool     { return m.Value.Equal(o.Value) }
func (m Money) String() string         { return m.Value.String() }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// ClampZero floors the amount at zero. Balances are never negative.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return Money{}
	}
	return m
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type StudentID string
type AcademicYearID string
type PaymentID string
type ArrearID string
type FeeObligationID string

// =============================================================================
// FEE CATEGORY - Closed enum, resolved once when the obligation is loaded
// =============================================================================

type FeeCategory string

const (
	CategoryRegistration   FeeCategory = "REGISTRATION"
	CategoryReRegistration FeeCategory = "RE_REGISTRATION"
	CategoryTuition        FeeCategory = "TUITION"
	CategoryOther          FeeCategory = "OTHER"
)

// ParseFeeCategory maps a raw catalog code to the closed enum.
// Unknown codes fall back to CategoryOther, which allocates in the
// tuition tier.
func ParseFeeCategory(code string) FeeCategory {
	switch code {
	case "REGISTRATION", "INSCRIPTION":
		return CategoryRegistration
	case "RE_REGISTRATION", "REINSCRIPTION":
		return CategoryReRegistration
	case "TUITION", "SCOLARITE":
		return CategoryTuition
	default:
		return CategoryOther
	}
}

// IsRegistrationLike reports whether the category allocates in tier 2
// (and gates tier 3).
func (c FeeCategory) IsRegistrationLike() bool {
	return c == CategoryRegistration || c == CategoryReRegistration
}

// =============================================================================
// STATUSES - Monotone: never regress within an allocation run
// =============================================================================

type FeeStatus string

const (
	FeeNotStarted FeeStatus = "NOT_STARTED"
	FeePartial    FeeStatus = "PARTIAL"
	FeePaid       FeeStatus = "PAID"
)

type ArrearStatus string

const (
	ArrearOpen    ArrearStatus = "OPEN"
	ArrearPartial ArrearStatus = "PARTIAL"
	ArrearPaid    ArrearStatus = "PAID"
)

// =============================================================================
// PAYMENT - Incoming cash, immutable, created outside this engine
// =============================================================================

type Payment struct {
	ID             PaymentID
	TenantID       TenantID
	StudentID      StudentID
	AcademicYearID AcademicYearID
	Amount         Money
	ReceivedAt     time.Time
}

// =============================================================================
// ARREAR - Balance carried forward between academic years
// =============================================================================

// Arrear is created once per (student, fromYear, toYear) and never deleted.
// Only AmountPaid, BalanceDue and Status mutate after creation, and only
// through ApplyPayment.
type Arrear struct {
	ID        ArrearID
	TenantID  TenantID
	StudentID StudentID
	FromYear  AcademicYearID
	ToYear    AcademicYearID
	AmountDue  Money
	AmountPaid Money
	BalanceDue Money
	Status     ArrearStatus
	CreatedAt  time.Time
}

// =============================================================================
// FEE OBLIGATION - What one student owes for one fee in one year
// =============================================================================

// Installment is an ordering/display hint for tuition obligations.
// Allocation never targets an installment directly.
type Installment struct {
	Label      string
	Amount     Money
	DueDate    time.Time
	OrderIndex int
}

// FeeObligation is the read model the allocator sees. TotalAmount is
// post-discount and fixed after creation; Paid comes from the obligation's
// payment summary at load time.
type FeeObligation struct {
	ID             FeeObligationID
	TenantID       TenantID
	StudentID      StudentID
	AcademicYearID AcademicYearID
	Category       FeeCategory
	TotalAmount    Money
	Paid           Money
	Status         FeeStatus
	Installments   []Installment
}

// Balance is the amount still owed, floored at zero.
func (f FeeObligation) Balance() Money {
	return f.TotalAmount.Sub(f.Paid).ClampZero()
}

// PaymentSummary is the derived aggregate per obligation, recomputed on
// every allocation touching it.
type PaymentSummary struct {
	FeeObligationID FeeObligationID
	TenantID        TenantID
	ExpectedAmount  Money
	PaidAmount      Money
	Balance         Money
	LastPaymentDate *time.Time
}

// =============================================================================
// ALLOCATION - Immutable audit record: payment applied to one target
// =============================================================================

type TargetType string

const (
	TargetArrear     TargetType = "ARREAR"
	TargetStudentFee TargetType = "STUDENT_FEE"
)

// AllocationTarget is a tagged variant: an allocation targets either an
// arrear or a student fee, never both and never neither.
type AllocationTarget interface {
	TargetID() string
	Kind() TargetType
}

type ArrearTarget struct {
	ID ArrearID
}

func (t ArrearTarget) TargetID() string { return string(t.ID) }
func (t ArrearTarget) Kind() TargetType { return TargetArrear }

type StudentFeeTarget struct {
	ID FeeObligationID
}

func (t StudentFeeTarget) TargetID() string { return string(t.ID) }
func (t StudentFeeTarget) Kind() TargetType { return TargetStudentFee }

// Compile-time checks
var (
	_ AllocationTarget = ArrearTarget{}
	_ AllocationTarget = StudentFeeTarget{}
)

// AllocationIntent is one step of a waterfall plan, before commit.
type AllocationIntent struct {
	Target AllocationTarget
	Amount Money
}

// Allocation is the persisted, append-only record. Order values for one
// payment form a contiguous sequence starting at 1.
type Allocation struct {
	ID        string
	PaymentID PaymentID
	Target    AllocationTarget
	Amount    Money
	Order     int
	CreatedAt time.Time
}
