/*
catalog.go - Obligation Catalog read-model assembly

PURPOSE:
  Shapes a student's fee obligations for one academic year into the form
  the waterfall allocator consumes: registration-like fees in catalog
  order, tuition fees ordered by their earliest unpaid installment.

ORDERING RULE:
  Tuition obligations sort by the order index of their first installment
  that is not yet covered by the paid amount. An obligation without
  installment data sorts last (large sentinel). Registration-like fees
  keep catalog order - the reference system specifies no sub-priority.

SEE ALSO:
  - waterfall.go: Consumes the ObligationSet
  - types.go: FeeObligation, Installment
*/
package finance

import "sort"

// orderIndexSentinel sorts obligations without installment data after
// every obligation that has one.
const orderIndexSentinel = 1 << 30

// ObligationSet partitions a student's obligations for the allocator.
// RegistrationLike holds REGISTRATION and RE_REGISTRATION in catalog
// order; Tuition holds everything else, sorted for tier 3.
type ObligationSet struct {
	RegistrationLike []FeeObligation
	Tuition          []FeeObligation
}

// BuildObligationSet partitions and orders obligations. The input slice is
// catalog order and is not modified.
func BuildObligationSet(obligations []FeeObligation) ObligationSet {
	var set ObligationSet
	for _, f := range obligations {
		if f.Category.IsRegistrationLike() {
			set.RegistrationLike = append(set.RegistrationLike, f)
		} else {
			set.Tuition = append(set.Tuition, f)
		}
	}

	sort.SliceStable(set.Tuition, func(i, j int) bool {
		return firstUnpaidOrderIndex(set.Tuition[i]) < firstUnpaidOrderIndex(set.Tuition[j])
	})
	return set
}

// firstUnpaidOrderIndex walks installments in order and returns the order
// index of the first one not fully covered by the paid amount.
func firstUnpaidOrderIndex(f FeeObligation) int {
	if len(f.Installments) == 0 {
		return orderIndexSentinel
	}

	installments := make([]Installment, len(f.Installments))
	copy(installments, f.Installments)
	sort.SliceStable(installments, func(i, j int) bool {
		return installments[i].OrderIndex < installments[j].OrderIndex
	})

	covered := f.Paid
	for _, inst := range installments {
		if covered.LessThan(inst.Amount) {
			return inst.OrderIndex
		}
		covered = covered.Sub(inst.Amount)
	}
	// All installments covered; any residual balance sorts last.
	return orderIndexSentinel
}
