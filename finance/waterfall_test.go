/*
waterfall_test.go - Specification tests for the allocation waterfall

PURPOSE:
  These tests serve as EXECUTABLE SPECIFICATIONS of the allocation
  behavior. Each test documents one rule of the waterfall and validates
  that the implementation conforms to it.

ORGANIZATION:
  Tests are grouped by behavior area:
  1. Tier order - arrears before registration before tuition
  2. The tier-3 gate - unpaid registration blocks tuition for the call
  3. Ordering rules - oldest arrear first, earliest unpaid installment
  4. Edge rules - zero balances, early termination, conservation

READING THESE TESTS:
  Each test has GIVEN/WHEN/THEN comments explaining the scenario.
*/
package finance_test

import (
	"testing"
	"time"

	"github.com/edufin/finance-engine/finance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func m(n float64) finance.Money {
	return finance.NewMoney(n)
}

func arrear(id string, fromYear string, due, paid float64) finance.Arrear {
	a := finance.NewArrear(
		finance.ArrearID(id), "tenant-1", "student-1",
		finance.AcademicYearID(fromYear), "2025",
		m(due), time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC),
	)
	if paid > 0 {
		a.ApplyPayment(m(paid))
	}
	return a
}

func obligation(id string, category finance.FeeCategory, total, paid float64) finance.FeeObligation {
	return finance.FeeObligation{
		ID:             finance.FeeObligationID(id),
		TenantID:       "tenant-1",
		StudentID:      "student-1",
		AcademicYearID: "2025",
		Category:       category,
		TotalAmount:    m(total),
		Paid:           m(paid),
		Status:         finance.FeeNotStarted,
	}
}

func installment(label string, amount float64, orderIndex int) finance.Installment {
	return finance.Installment{
		Label:      label,
		Amount:     m(amount),
		DueDate:    time.Date(2025, time.Month(orderIndex), 5, 0, 0, 0, 0, time.UTC),
		OrderIndex: orderIndex,
	}
}

func planTotal(plan []finance.AllocationIntent) finance.Money {
	total := finance.Money{}
	for _, intent := range plan {
		total = total.Add(intent.Amount)
	}
	return total
}

// =============================================================================
// TIER ORDER TESTS
// =============================================================================

func TestAllocate_ArrearsBeforeTuition(t *testing.T) {
	// GIVEN: An arrear of 5000 and a tuition fee of 7000, no registration fee
	// WHEN: Allocating a payment of 10000
	// THEN: 5000 settles the arrear first, then 5000 goes to tuition

	arrears := []finance.Arrear{arrear("arr-1", "2024", 5000, 0)}
	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-tuition", finance.CategoryTuition, 7000, 0),
	})

	plan, remainder := finance.Allocate(m(10000), arrears, set)

	if len(plan) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(plan))
	}
	if plan[0].Target.Kind() != finance.TargetArrear || !plan[0].Amount.Equal(m(5000)) {
		t.Errorf("first intent should settle the arrear with 5000, got %s %s", plan[0].Target.Kind(), plan[0].Amount)
	}
	if plan[1].Target.Kind() != finance.TargetStudentFee || !plan[1].Amount.Equal(m(5000)) {
		t.Errorf("second intent should put 5000 to tuition, got %s %s", plan[1].Target.Kind(), plan[1].Amount)
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

func TestAllocate_RegistrationBeforeTuition_WhenBothUnpaid(t *testing.T) {
	// GIVEN: An unpaid registration fee of 3000 and a tuition fee of 7000
	// WHEN: Allocating a payment of 2000
	// THEN: All 2000 goes to the registration fee, tuition gets nothing

	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-reg", finance.CategoryRegistration, 3000, 0),
		obligation("fee-tuition", finance.CategoryTuition, 7000, 0),
	})

	plan, remainder := finance.Allocate(m(2000), nil, set)

	if len(plan) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(plan))
	}
	if plan[0].Target.TargetID() != "fee-reg" || !plan[0].Amount.Equal(m(2000)) {
		t.Errorf("expected 2000 to fee-reg, got %s to %s", plan[0].Amount, plan[0].Target.TargetID())
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

func TestAllocate_ReRegistrationAllocatesInTier2(t *testing.T) {
	// GIVEN: A re-registration fee (returning student) of 1500
	// WHEN: Allocating a payment of 1500
	// THEN: It settles in tier 2 exactly like a registration fee

	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-rereg", finance.CategoryReRegistration, 1500, 0),
	})

	plan, remainder := finance.Allocate(m(1500), nil, set)

	if len(plan) != 1 || plan[0].Target.TargetID() != "fee-rereg" {
		t.Fatalf("expected one intent for fee-rereg, got %v", plan)
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

// =============================================================================
// THE TIER-3 GATE
// =============================================================================

func TestAllocate_Gate_SettlingRegistrationDoesNotUnlockTuitionSameCall(t *testing.T) {
	// GIVEN: An unpaid registration fee of 3000 and a tuition fee of 7000
	// WHEN: Allocating a payment of 5000 (enough to settle registration)
	// THEN: Registration takes 3000; the remaining 2000 is NOT applied to
	//       tuition in this call - it comes back as the remainder

	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-reg", finance.CategoryRegistration, 3000, 0),
		obligation("fee-tuition", finance.CategoryTuition, 7000, 0),
	})

	plan, remainder := finance.Allocate(m(5000), nil, set)

	if len(plan) != 1 {
		t.Fatalf("expected 1 intent (tuition gated), got %d", len(plan))
	}
	if plan[0].Target.TargetID() != "fee-reg" || !plan[0].Amount.Equal(m(3000)) {
		t.Errorf("expected 3000 to fee-reg, got %s to %s", plan[0].Amount, plan[0].Target.TargetID())
	}
	if !remainder.Equal(m(2000)) {
		t.Errorf("expected remainder 2000, got %s", remainder)
	}
}

func TestAllocate_Gate_PaidRegistrationUnlocksTuition(t *testing.T) {
	// GIVEN: A registration fee already fully paid and a tuition fee of 7000
	// WHEN: Allocating a payment of 4000
	// THEN: Tuition is reachable because no registration fee was unpaid at
	//       the start of the call

	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-reg", finance.CategoryRegistration, 3000, 3000),
		obligation("fee-tuition", finance.CategoryTuition, 7000, 0),
	})

	plan, remainder := finance.Allocate(m(4000), nil, set)

	if len(plan) != 1 || plan[0].Target.TargetID() != "fee-tuition" {
		t.Fatalf("expected one tuition intent, got %v", plan)
	}
	if !plan[0].Amount.Equal(m(4000)) {
		t.Errorf("expected 4000 to tuition, got %s", plan[0].Amount)
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

// =============================================================================
// ORDERING RULES
// =============================================================================

func TestAllocate_Arrears_OldestFromYearFirst(t *testing.T) {
	// GIVEN: Arrears from 2022 (1000) and 2023 (2000), supplied oldest first
	// WHEN: Allocating a payment of 1500
	// THEN: The 2022 arrear settles fully before the 2023 arrear gets 500

	arrears := []finance.Arrear{
		arrear("arr-2022", "2022", 1000, 0),
		arrear("arr-2023", "2023", 2000, 0),
	}

	plan, remainder := finance.Allocate(m(1500), arrears, finance.ObligationSet{})

	if len(plan) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(plan))
	}
	if plan[0].Target.TargetID() != "arr-2022" || !plan[0].Amount.Equal(m(1000)) {
		t.Errorf("expected 1000 to arr-2022 first, got %s to %s", plan[0].Amount, plan[0].Target.TargetID())
	}
	if plan[1].Target.TargetID() != "arr-2023" || !plan[1].Amount.Equal(m(500)) {
		t.Errorf("expected 500 to arr-2023, got %s to %s", plan[1].Amount, plan[1].Target.TargetID())
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

func TestBuildObligationSet_TuitionOrderedByEarliestUnpaidInstallment(t *testing.T) {
	// GIVEN: Tuition A paid through installment 2, tuition B entirely unpaid
	// WHEN: Building the obligation set
	// THEN: B (first unpaid installment 1) sorts before A (first unpaid 3)

	tuitionA := obligation("fee-a", finance.CategoryTuition, 9000, 6000)
	tuitionA.Installments = []finance.Installment{
		installment("Term 1", 3000, 1),
		installment("Term 2", 3000, 2),
		installment("Term 3", 3000, 3),
	}
	tuitionB := obligation("fee-b", finance.CategoryTuition, 6000, 0)
	tuitionB.Installments = []finance.Installment{
		installment("Term 1", 3000, 1),
		installment("Term 2", 3000, 2),
	}

	set := finance.BuildObligationSet([]finance.FeeObligation{tuitionA, tuitionB})

	if len(set.Tuition) != 2 {
		t.Fatalf("expected 2 tuition obligations, got %d", len(set.Tuition))
	}
	if set.Tuition[0].ID != "fee-b" {
		t.Errorf("expected fee-b (earliest unpaid installment) first, got %s", set.Tuition[0].ID)
	}
}

func TestAllocate_TuitionSpillsInInstallmentOrder(t *testing.T) {
	// GIVEN: No arrears, no registration fees; tuition A (installment order 1)
	//        and tuition B (installment order 2), 5000 balance each
	// WHEN: Allocating a payment of 7000
	// THEN: A absorbs 5000 fully, then B takes the remaining 2000

	tuitionA := obligation("fee-a", finance.CategoryTuition, 5000, 0)
	tuitionA.Installments = []finance.Installment{installment("Term 1", 5000, 1)}
	tuitionB := obligation("fee-b", finance.CategoryTuition, 5000, 0)
	tuitionB.Installments = []finance.Installment{installment("Term 2", 5000, 2)}

	set := finance.BuildObligationSet([]finance.FeeObligation{tuitionB, tuitionA})

	plan, remainder := finance.Allocate(m(7000), nil, set)

	if len(plan) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(plan))
	}
	if plan[0].Target.TargetID() != "fee-a" || !plan[0].Amount.Equal(m(5000)) {
		t.Errorf("expected 5000 to fee-a first, got %s to %s", plan[0].Amount, plan[0].Target.TargetID())
	}
	if plan[1].Target.TargetID() != "fee-b" || !plan[1].Amount.Equal(m(2000)) {
		t.Errorf("expected 2000 to fee-b, got %s to %s", plan[1].Amount, plan[1].Target.TargetID())
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

func TestBuildObligationSet_NoInstallmentData_SortsLast(t *testing.T) {
	// GIVEN: One tuition with installments, one without any
	// WHEN: Building the obligation set
	// THEN: The one without installment data sorts after the one with

	withInstallments := obligation("fee-with", finance.CategoryTuition, 6000, 0)
	withInstallments.Installments = []finance.Installment{installment("Term 1", 3000, 1)}
	withoutInstallments := obligation("fee-bare", finance.CategoryTuition, 6000, 0)

	set := finance.BuildObligationSet([]finance.FeeObligation{withoutInstallments, withInstallments})

	if set.Tuition[0].ID != "fee-with" {
		t.Errorf("expected fee-with first, got %s", set.Tuition[0].ID)
	}
	if set.Tuition[1].ID != "fee-bare" {
		t.Errorf("expected fee-bare last, got %s", set.Tuition[1].ID)
	}
}

// =============================================================================
// EDGE RULES
// =============================================================================

func TestAllocate_ZeroBalanceTargetsSkipped(t *testing.T) {
	// GIVEN: A fully paid arrear and a fully paid registration fee, plus an
	//        unpaid tuition fee
	// WHEN: Allocating a payment
	// THEN: The paid targets consume no plan slot; tuition gets everything

	arrears := []finance.Arrear{arrear("arr-paid", "2023", 1000, 1000)}
	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-reg", finance.CategoryRegistration, 3000, 3000),
		obligation("fee-tuition", finance.CategoryTuition, 7000, 0),
	})

	plan, remainder := finance.Allocate(m(2000), arrears, set)

	if len(plan) != 1 || plan[0].Target.TargetID() != "fee-tuition" {
		t.Fatalf("expected one tuition intent, got %v", plan)
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

func TestAllocate_ExactAmount_TerminatesEarly(t *testing.T) {
	// GIVEN: Two arrears of 1000 each
	// WHEN: Allocating exactly 1000
	// THEN: Only the first arrear appears in the plan

	arrears := []finance.Arrear{
		arrear("arr-1", "2022", 1000, 0),
		arrear("arr-2", "2023", 1000, 0),
	}

	plan, remainder := finance.Allocate(m(1000), arrears, finance.ObligationSet{})

	if len(plan) != 1 || plan[0].Target.TargetID() != "arr-1" {
		t.Fatalf("expected only arr-1 in the plan, got %v", plan)
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}

func TestAllocate_NeverExceedsPaymentAmount(t *testing.T) {
	// GIVEN: Targets totalling far more than the payment
	// WHEN: Allocating
	// THEN: Plan total + remainder equals the payment amount exactly

	arrears := []finance.Arrear{arrear("arr-1", "2023", 8000, 0)}
	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-reg", finance.CategoryRegistration, 3000, 0),
		obligation("fee-tuition", finance.CategoryTuition, 9000, 0),
	})

	amount := m(9500)
	plan, remainder := finance.Allocate(amount, arrears, set)

	total := planTotal(plan)
	if total.GreaterThan(amount) {
		t.Errorf("plan total %s exceeds payment amount %s", total, amount)
	}
	if !total.Add(remainder).Equal(amount) {
		t.Errorf("conservation broken: total %s + remainder %s != amount %s", total, remainder, amount)
	}
}

func TestAllocate_NothingOutstanding_FullRemainder(t *testing.T) {
	// GIVEN: No arrears and no obligations
	// WHEN: Allocating a payment of 500
	// THEN: The plan is empty and the entire amount is the remainder

	plan, remainder := finance.Allocate(m(500), nil, finance.ObligationSet{})

	if len(plan) != 0 {
		t.Fatalf("expected empty plan, got %v", plan)
	}
	if !remainder.Equal(m(500)) {
		t.Errorf("expected remainder 500, got %s", remainder)
	}
}

func TestAllocate_OtherCategoryAllocatesInTuitionTier(t *testing.T) {
	// GIVEN: A fee with an unrecognized category code
	// WHEN: Allocating with no registration fees outstanding
	// THEN: It is reachable in tier 3 like tuition

	set := finance.BuildObligationSet([]finance.FeeObligation{
		obligation("fee-canteen", finance.ParseFeeCategory("CANTEEN"), 1200, 0),
	})

	plan, remainder := finance.Allocate(m(1200), nil, set)

	if len(plan) != 1 || plan[0].Target.TargetID() != "fee-canteen" {
		t.Fatalf("expected one intent for fee-canteen, got %v", plan)
	}
	if !remainder.IsZero() {
		t.Errorf("expected zero remainder, got %s", remainder)
	}
}
