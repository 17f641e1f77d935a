package finance_test

import (
	"testing"
	"time"

	"github.com/edufin/finance-engine/finance"
)

func TestNewArrear_StartsOpenWithFullBalance(t *testing.T) {
	now := time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC)
	a := finance.NewArrear("arr-1", "tenant-1", "student-1", "2024", "2025", m(3000), now)

	if a.Status != finance.ArrearOpen {
		t.Errorf("expected OPEN, got %s", a.Status)
	}
	if !a.BalanceDue.Equal(m(3000)) || !a.AmountPaid.IsZero() {
		t.Errorf("expected balance 3000 and zero paid, got %s / %s", a.BalanceDue, a.AmountPaid)
	}
}

func TestArrearApplyPayment_PartialThenPaid(t *testing.T) {
	a := arrear("arr-1", "2024", 3000, 0)

	a.ApplyPayment(m(1000))
	if a.Status != finance.ArrearPartial {
		t.Errorf("expected PARTIAL after 1000/3000, got %s", a.Status)
	}
	if !a.BalanceDue.Equal(m(2000)) {
		t.Errorf("expected balance 2000, got %s", a.BalanceDue)
	}

	a.ApplyPayment(m(2000))
	if a.Status != finance.ArrearPaid {
		t.Errorf("expected PAID after settling, got %s", a.Status)
	}
	if !a.BalanceDue.IsZero() {
		t.Errorf("expected zero balance, got %s", a.BalanceDue)
	}
}

func TestArrearApplyPayment_BalanceNeverGoesNegative(t *testing.T) {
	// The allocator never plans an over-payment, but the balance rule
	// clamps regardless.
	a := arrear("arr-1", "2024", 1000, 0)
	a.ApplyPayment(m(1500))

	if a.BalanceDue.IsNegative() {
		t.Errorf("balance must never be negative, got %s", a.BalanceDue)
	}
	if a.Status != finance.ArrearPaid {
		t.Errorf("expected PAID, got %s", a.Status)
	}
}
