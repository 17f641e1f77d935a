/*
waterfall.go - The three-tier payment allocation decision

PURPOSE:
  Pure decision function: given a payment amount plus the arrear ledger and
  obligation catalog read models, produce an ordered list of allocation
  intents and the unallocated remainder. No I/O, no mutation of inputs.

TIER ORDER (each tier only starts while remainder > 0):
  1. Arrears, oldest academic-year gap first
  2. Registration-like fees (REGISTRATION, RE_REGISTRATION), catalog order
  3. Tuition fees, ordered by earliest unpaid installment - GATED

THE TIER-3 GATE:
  Tuition is considered only if the student had NO unpaid registration-like
  fee at the start of the call. Settling registration fully inside the same
  call does not unlock tuition for that call: the leftover becomes the
  remainder and reaches tuition on a later run. This mirrors the reference
  system's documented behavior; see DESIGN.md for the candidate fix.

EDGE RULES:
  - A zero-balance target is skipped and consumes no plan slot
  - An amount that exactly zeroes a tier terminates the walk early

SEE ALSO:
  - catalog.go: Builds the ObligationSet input
  - engine.go: Verifies and commits the plan
*/
package finance

// Allocate runs the waterfall for one payment amount.
//
// Inputs:
//   - amount: must be positive (validated by the caller)
//   - arrears: pre-sorted oldest FromYear first
//   - obligations: partitioned and ordered by BuildObligationSet
//
// The returned plan preserves decision order; intent i commits with
// allocation order i+1. Remainder is amount minus the plan total.
func Allocate(amount Money, arrears []Arrear, obligations ObligationSet) ([]AllocationIntent, Money) {
	var plan []AllocationIntent
	remainder := amount

	// Tier 1 - arrears, oldest first.
	for _, a := range arrears {
		if !remainder.IsPositive() {
			break
		}
		if !a.BalanceDue.IsPositive() {
			continue
		}
		allocated := remainder.Min(a.BalanceDue)
		plan = append(plan, AllocationIntent{
			Target: ArrearTarget{ID: a.ID},
			Amount: allocated,
		})
		remainder = remainder.Sub(allocated)
	}

	// Tier 2 snapshot: unpaid registration-like fees BEFORE this tier runs.
	// The snapshot also gates tier 3.
	var unpaidRegistration []FeeObligation
	for _, f := range obligations.RegistrationLike {
		if f.Balance().IsPositive() {
			unpaidRegistration = append(unpaidRegistration, f)
		}
	}

	// Tier 2 - registration-like fees.
	for _, f := range unpaidRegistration {
		if !remainder.IsPositive() {
			break
		}
		allocated := remainder.Min(f.Balance())
		plan = append(plan, AllocationIntent{
			Target: StudentFeeTarget{ID: f.ID},
			Amount: allocated,
		})
		remainder = remainder.Sub(allocated)
	}

	// Tier 3 - tuition, only if the student entered this call with no
	// unpaid registration-like fee. The pre-tier-2 snapshot decides, even
	// when tier 2 just settled everything.
	if len(unpaidRegistration) == 0 {
		for _, f := range obligations.Tuition {
			if !remainder.IsPositive() {
				break
			}
			balance := f.Balance()
			if !balance.IsPositive() {
				continue
			}
			allocated := remainder.Min(balance)
			plan = append(plan, AllocationIntent{
				Target: StudentFeeTarget{ID: f.ID},
				Amount: allocated,
			})
			remainder = remainder.Sub(allocated)
		}
	}

	return plan, remainder
}
