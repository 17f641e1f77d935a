package finance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufin/finance-engine/finance"
	"github.com/edufin/finance-engine/finance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================
// Note: m, arrear, obligation and installment helpers are defined in
// waterfall_test.go

func newTestEngine() (*finance.Engine, *store.TxMemory) {
	mem := store.NewTxMemory()
	engine := finance.NewEngine(mem).WithClock(func() time.Time {
		return time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	})
	return engine, mem
}

func payment(id string, amount float64) finance.Payment {
	return finance.Payment{
		ID:             finance.PaymentID(id),
		TenantID:       "tenant-1",
		StudentID:      "student-1",
		AcademicYearID: "2025",
		Amount:         m(amount),
		ReceivedAt:     time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC),
	}
}

// =============================================================================
// FULL CYCLE TESTS
// =============================================================================

func TestAllocatePayment_CommitsBalancesAndStatuses(t *testing.T) {
	// GIVEN: An arrear of 5000 and a tuition fee of 7000
	// WHEN: Allocating a payment of 10000
	// THEN: The arrear is PAID, tuition holds 5000 (PARTIAL), and the
	//       allocation orders are contiguous from 1

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.SeedArrear(arrear("arr-1", "2024", 5000, 0))
	mem.SeedObligation(obligation("fee-tuition", finance.CategoryTuition, 7000, 0))

	result, err := engine.AllocatePayment(context.Background(), payment("pay-1", 10000))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, 1, result.Allocations[0].Order)
	assert.Equal(t, 2, result.Allocations[1].Order)
	assert.True(t, result.Remaining.IsZero(), "expected zero remainder, got %s", result.Remaining)

	a, ok := mem.Arrear("arr-1")
	require.True(t, ok)
	assert.Equal(t, finance.ArrearPaid, a.Status)
	assert.True(t, a.BalanceDue.IsZero())
	assert.True(t, a.AmountPaid.Equal(m(5000)))

	f, ok := mem.Obligation("fee-tuition")
	require.True(t, ok)
	assert.Equal(t, finance.FeePartial, f.Status)
	assert.True(t, f.Paid.Equal(m(5000)))
	assert.True(t, f.Balance().Equal(m(2000)))

	sum, ok := mem.Summary("fee-tuition")
	require.True(t, ok)
	assert.True(t, sum.PaidAmount.Equal(m(5000)))
	assert.True(t, sum.Balance.Equal(m(2000)))
	require.NotNil(t, sum.LastPaymentDate)
}

func TestAllocatePayment_GateRemainderComesBack(t *testing.T) {
	// GIVEN: Unpaid registration 3000 and tuition 7000
	// WHEN: Allocating 5000
	// THEN: Registration settles, tuition stays untouched, remainder 2000

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.SeedObligation(obligation("fee-1-reg", finance.CategoryRegistration, 3000, 0))
	mem.SeedObligation(obligation("fee-2-tuition", finance.CategoryTuition, 7000, 0))

	result, err := engine.AllocatePayment(context.Background(), payment("pay-1", 5000))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.True(t, result.Remaining.Equal(m(2000)), "expected remainder 2000, got %s", result.Remaining)

	reg, _ := mem.Obligation("fee-1-reg")
	assert.Equal(t, finance.FeePaid, reg.Status)

	tuition, _ := mem.Obligation("fee-2-tuition")
	assert.Equal(t, finance.FeeNotStarted, tuition.Status)
	assert.True(t, tuition.Paid.IsZero())
}

func TestAllocatePayment_SecondPaymentContinuesWhereFirstStopped(t *testing.T) {
	// GIVEN: The gate left tuition untouched after payment 1
	// WHEN: A second payment arrives
	// THEN: Registration is now settled, so tuition is reachable

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.SeedObligation(obligation("fee-1-reg", finance.CategoryRegistration, 3000, 0))
	mem.SeedObligation(obligation("fee-2-tuition", finance.CategoryTuition, 7000, 0))

	_, err := engine.AllocatePayment(context.Background(), payment("pay-1", 5000))
	require.NoError(t, err)

	result, err := engine.AllocatePayment(context.Background(), payment("pay-2", 2000))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, "fee-2-tuition", result.Allocations[0].Target.TargetID())

	tuition, _ := mem.Obligation("fee-2-tuition")
	assert.Equal(t, finance.FeePartial, tuition.Status)
	assert.True(t, tuition.Paid.Equal(m(2000)))
}

// =============================================================================
// VALIDATION AND IDEMPOTENCY
// =============================================================================

func TestAllocatePayment_NonPositiveAmount_Rejected(t *testing.T) {
	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")

	_, err := engine.AllocatePayment(context.Background(), payment("pay-1", 0))
	assert.ErrorIs(t, err, finance.ErrInvalidAmount)

	_, err = engine.AllocatePayment(context.Background(), payment("pay-2", -50))
	assert.ErrorIs(t, err, finance.ErrInvalidAmount)
}

func TestAllocatePayment_UnknownStudent_Rejected(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.AllocatePayment(context.Background(), payment("pay-1", 100))
	assert.ErrorIs(t, err, finance.ErrStudentNotFound)

	var nfErr *finance.StudentNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, finance.StudentID("student-1"), nfErr.StudentID)
}

func TestAllocatePayment_Rerun_IsRejectedAndChangesNothing(t *testing.T) {
	// GIVEN: A payment that has already been allocated
	// WHEN: AllocatePayment is invoked again for the same payment
	// THEN: ErrAlreadyAllocated, and the first run's state is untouched

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.SeedObligation(obligation("fee-tuition", finance.CategoryTuition, 7000, 0))

	_, err := engine.AllocatePayment(context.Background(), payment("pay-1", 3000))
	require.NoError(t, err)

	_, err = engine.AllocatePayment(context.Background(), payment("pay-1", 3000))
	assert.ErrorIs(t, err, finance.ErrAlreadyAllocated)

	var dupErr *finance.AlreadyAllocatedError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, 1, dupErr.Existing)

	f, _ := mem.Obligation("fee-tuition")
	assert.True(t, f.Paid.Equal(m(3000)), "rerun must not double-apply, got paid %s", f.Paid)

	allocations, err := mem.AllocationsByPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Len(t, allocations, 1)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestAllocatePayment_ConcurrentPayments_NeverOverpay(t *testing.T) {
	// GIVEN: A single tuition fee of 5000
	// WHEN: Two payments of 4000 allocate concurrently
	// THEN: The fee absorbs exactly 5000 in total; the rest is remainder

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.SeedObligation(obligation("fee-tuition", finance.CategoryTuition, 5000, 0))

	var wg sync.WaitGroup
	results := make([]finance.AllocationResult, 2)
	errs := make([]error, 2)
	for i, id := range []string{"pay-1", "pay-2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = engine.AllocatePayment(context.Background(), payment(id, 4000))
		}(i, id)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	f, _ := mem.Obligation("fee-tuition")
	assert.True(t, f.Paid.Equal(m(5000)), "fee must absorb exactly its total, got %s", f.Paid)
	assert.Equal(t, finance.FeePaid, f.Status)

	totalRemaining := results[0].Remaining.Add(results[1].Remaining)
	assert.True(t, totalRemaining.Equal(m(3000)), "expected 3000 total remainder, got %s", totalRemaining)
}

// =============================================================================
// ARREAR GENERATION
// =============================================================================

func TestGenerateArrears_CreatesOnePerIndebtedStudent(t *testing.T) {
	// GIVEN: student-1 owes 2000 for 2025, student-2 owes nothing
	// WHEN: Closing 2025 into 2026
	// THEN: Exactly one OPEN arrear is created, for student-1

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.AddStudent("tenant-1", "student-2")
	mem.SeedObligation(obligation("fee-owing", finance.CategoryTuition, 2000, 0))

	paid := obligation("fee-paid", finance.CategoryTuition, 3000, 3000)
	paid.StudentID = "student-2"
	mem.SeedObligation(paid)

	created, err := engine.GenerateArrears(context.Background(), "tenant-1", "2025", "2026")
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.Equal(t, finance.StudentID("student-1"), created[0].StudentID)
	assert.Equal(t, finance.ArrearOpen, created[0].Status)
	assert.True(t, created[0].AmountDue.Equal(m(2000)))
	assert.True(t, created[0].BalanceDue.Equal(m(2000)))
}

func TestGenerateArrears_Rerun_IsIdempotent(t *testing.T) {
	// GIVEN: A completed generation run for (2025, 2026)
	// WHEN: The job runs again for the same year pair
	// THEN: No new arrears are created

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	mem.SeedObligation(obligation("fee-owing", finance.CategoryTuition, 2000, 0))

	first, err := engine.GenerateArrears(context.Background(), "tenant-1", "2025", "2026")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := engine.GenerateArrears(context.Background(), "tenant-1", "2025", "2026")
	require.NoError(t, err)
	assert.Empty(t, second, "rerun must not duplicate arrears")
}

func TestGenerateArrears_ChainsUnpaidArrearsForward(t *testing.T) {
	// GIVEN: An unpaid arrear carried into 2025 and no 2025 obligations
	// WHEN: Closing 2025 into 2026
	// THEN: The unpaid arrear balance rolls into a new 2025->2026 arrear

	engine, mem := newTestEngine()
	mem.AddStudent("tenant-1", "student-1")
	old := finance.NewArrear("arr-old", "tenant-1", "student-1", "2024", "2025", m(1200),
		time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC))
	mem.SeedArrear(old)

	created, err := engine.GenerateArrears(context.Background(), "tenant-1", "2025", "2026")
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.Equal(t, finance.AcademicYearID("2025"), created[0].FromYear)
	assert.Equal(t, finance.AcademicYearID("2026"), created[0].ToYear)
	assert.True(t, created[0].AmountDue.Equal(m(1200)))
}
