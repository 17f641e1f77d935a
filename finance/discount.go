/*
discount.go - Regime and discount resolution

PURPOSE:
  Resolves a fee's post-discount amount from a regime (standard,
  staff-child, ad-hoc reduction) before the obligation enters the catalog.
  Pure function: no state, no failure modes. An unknown regime or a regime
  with no rule for the fee category returns the gross amount unchanged.

RULE KINDS:
  FIXED:   net = gross - value, floored at zero
  PERCENT: net = gross - gross * value/100

SEE ALSO:
  - api/handlers.go: Applies the resolver when obligations are created
*/
package finance

import "github.com/shopspring/decimal"

// =============================================================================
// REGIME - Named discount policy
// =============================================================================

type DiscountKind string

const (
	DiscountFixed   DiscountKind = "FIXED"
	DiscountPercent DiscountKind = "PERCENT"
)

// DiscountRule reduces one fee category's gross amount.
type DiscountRule struct {
	Category FeeCategory
	Kind     DiscountKind
	Value    decimal.Decimal // flat amount for FIXED, percentage for PERCENT
}

// Regime is a named set of discount rules.
type Regime struct {
	Code  string
	Name  string
	Rules []DiscountRule
}

// Standard regime codes.
const (
	RegimeStandard   = "STANDARD"
	RegimeStaffChild = "STAFF_CHILD"
)

// ResolveNetAmount returns the post-discount amount for a fee category.
// A nil regime or a regime without a matching rule leaves gross unchanged.
func ResolveNetAmount(regime *Regime, category FeeCategory, gross Money) Money {
	if regime == nil {
		return gross
	}
	for _, rule := range regime.Rules {
		if rule.Category != category {
			continue
		}
		switch rule.Kind {
		case DiscountFixed:
			return gross.Sub(Money{Value: rule.Value}).ClampZero()
		case DiscountPercent:
			cut := gross.Value.Mul(rule.Value).Div(decimal.NewFromInt(100))
			return gross.Sub(Money{Value: cut}).ClampZero()
		}
	}
	return gross
}

// =============================================================================
// REGIME CATALOG - In-code registry of named regimes
// =============================================================================

// RegimeCatalog resolves regime codes. The zero value knows the built-in
// regimes; ad-hoc reductions register on top.
type RegimeCatalog struct {
	custom map[string]Regime
}

func NewRegimeCatalog() *RegimeCatalog {
	return &RegimeCatalog{custom: make(map[string]Regime)}
}

// Register adds or replaces an ad-hoc regime.
func (c *RegimeCatalog) Register(r Regime) {
	c.custom[r.Code] = r
}

// Lookup returns the regime for a code, or nil if unknown.
func (c *RegimeCatalog) Lookup(code string) *Regime {
	if r, ok := c.custom[code]; ok {
		return &r
	}
	if r, ok := builtinRegimes[code]; ok {
		return &r
	}
	return nil
}

// List returns every known regime, built-ins first.
func (c *RegimeCatalog) List() []Regime {
	out := []Regime{builtinRegimes[RegimeStandard], builtinRegimes[RegimeStaffChild]}
	for code, r := range c.custom {
		if code == RegimeStandard || code == RegimeStaffChild {
			continue
		}
		out = append(out, r)
	}
	return out
}

var builtinRegimes = map[string]Regime{
	RegimeStandard: {
		Code: RegimeStandard,
		Name: "Standard",
		// No rules: gross amounts pass through unchanged.
	},
	RegimeStaffChild: {
		Code: RegimeStaffChild,
		Name: "Staff child",
		Rules: []DiscountRule{
			{Category: CategoryTuition, Kind: DiscountPercent, Value: decimal.NewFromInt(50)},
		},
	},
}
