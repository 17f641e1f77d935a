/*
arrear.go - Arrear ledger update rules

PURPOSE:
  The mutation rules for arrears. An arrear is created once per
  (student, fromYear, toYear) when a school year is closed with an unpaid
  balance, and from then on only AmountPaid, BalanceDue and Status change,
  monotonically toward PAID.

SEE ALSO:
  - engine.go: GenerateArrears (idempotent year-close job) and commit
  - waterfall.go: Consumes arrears in tier 1
*/
package finance

import "time"

// NewArrear builds an open arrear carrying amountDue from fromYear into
// toYear. The caller supplies the identifier.
func NewArrear(id ArrearID, tenantID TenantID, studentID StudentID, fromYear, toYear AcademicYearID, amountDue Money, now time.Time) Arrear {
	return Arrear{
		ID:         id,
		TenantID:   tenantID,
		StudentID:  studentID,
		FromYear:   fromYear,
		ToYear:     toYear,
		AmountDue:  amountDue,
		AmountPaid: Money{},
		BalanceDue: amountDue,
		Status:     ArrearOpen,
		CreatedAt:  now,
	}
}

// ApplyPayment records an allocated amount against the arrear. This is the
// only mutator after creation. The balance is floored at zero and the
// status moves to PARTIAL or PAID, never backward.
func (a *Arrear) ApplyPayment(amount Money) {
	a.AmountPaid = a.AmountPaid.Add(amount)
	a.BalanceDue = a.AmountDue.Sub(a.AmountPaid).ClampZero()
	if a.BalanceDue.IsZero() {
		a.Status = ArrearPaid
	} else {
		a.Status = ArrearPartial
	}
}

// StudentOutstanding is one student's unpaid balance at year close, the
// input shape for arrear generation.
type StudentOutstanding struct {
	StudentID StudentID
	Balance   Money
}
