package optimization

import (
	"fmt"
	"math"
)

// Bound is a per-asset weight range.
type Bound struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// GroupBound limits the total weight held in one asset group (sector, region).
type GroupBound struct {
	Group string  `json:"group"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ConstraintSet is the declarative description of portfolio-construction
// rules, independent of any solver. Optional limits are nil when inactive;
// the formulator omits the corresponding rows instead of defaulting them.
type ConstraintSet struct {
	// Budget is the required sum of weights, typically 1.0.
	Budget float64 `json:"budget"`
	// Leverage bounds the sum of absolute weights when set.
	Leverage *float64 `json:"leverage,omitempty"`
	// Turnover bounds the sum of absolute weight changes from the previous
	// portfolio when set. Ignored when no previous portfolio is supplied.
	Turnover *float64 `json:"turnover,omitempty"`
	// Cardinality bounds the number of non-zero positions when set. Setting
	// it switches the program to the mixed-integer path.
	Cardinality *int `json:"cardinality,omitempty"`
	// AllowShort permits negative weights.
	AllowShort bool `json:"allow_short"`
	// Bounds overrides the default per-asset range for specific symbols.
	Bounds map[string]Bound `json:"bounds,omitempty"`
	// GroupBounds limit per-group concentrations. Groups come from the asset
	// universe's group tags.
	GroupBounds []GroupBound `json:"group_bounds,omitempty"`
	// Groups maps symbols to their group tag for GroupBounds. Symbols without
	// a tag belong to no group.
	Groups map[string]string `json:"groups,omitempty"`
}

// NewLongOnly returns the common baseline: fully-invested long-only portfolio
// with each weight in [0, budget].
func NewLongOnly(budget float64) ConstraintSet {
	return ConstraintSet{Budget: budget}
}

// BoundsFor returns the effective weight range for a symbol: the explicit
// bound when present, otherwise [0, budget] long-only or [-budget, budget]
// with shorting.
func (cs *ConstraintSet) BoundsFor(symbol string) Bound {
	if b, ok := cs.Bounds[symbol]; ok {
		return b
	}
	if cs.AllowShort {
		return Bound{Lower: -cs.Budget, Upper: cs.Budget}
	}
	return Bound{Lower: 0, Upper: cs.Budget}
}

// Validate checks the constraint set against a universe of symbols and
// returns an InfeasibleConstraintSetError for combinations that cannot admit
// any portfolio. Runs before every formulation.
func (cs *ConstraintSet) Validate(symbols []string) error {
	if cs.Budget <= 0 {
		return &InfeasibleConstraintSetError{Reason: fmt.Sprintf("budget must be positive, got %v", cs.Budget)}
	}
	if cs.Leverage != nil && *cs.Leverage < cs.Budget {
		return &InfeasibleConstraintSetError{
			Reason: fmt.Sprintf("leverage bound %v is below budget %v", *cs.Leverage, cs.Budget),
		}
	}
	if cs.Turnover != nil && *cs.Turnover < 0 {
		return &InfeasibleConstraintSetError{Reason: fmt.Sprintf("turnover bound is negative: %v", *cs.Turnover)}
	}
	if cs.Cardinality != nil && *cs.Cardinality < 1 {
		return &InfeasibleConstraintSetError{Reason: fmt.Sprintf("cardinality bound must be at least 1, got %d", *cs.Cardinality)}
	}

	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[s] = true
	}
	for symbol := range cs.Bounds {
		if !known[symbol] {
			return &InfeasibleConstraintSetError{Reason: fmt.Sprintf("bound references unknown asset %q", symbol)}
		}
	}

	upperSum := 0.0
	for _, symbol := range symbols {
		b := cs.BoundsFor(symbol)
		if b.Lower > b.Upper {
			return &InfeasibleConstraintSetError{
				Reason: fmt.Sprintf("asset %s has lower bound %v above upper bound %v", symbol, b.Lower, b.Upper),
			}
		}
		if !cs.AllowShort && b.Lower < 0 {
			return &InfeasibleConstraintSetError{
				Reason: fmt.Sprintf("asset %s has negative lower bound %v but shorting is disabled", symbol, b.Lower),
			}
		}
		upperSum += b.Upper
	}
	if upperSum < cs.Budget-1e-12 {
		return &InfeasibleConstraintSetError{
			Reason: fmt.Sprintf("per-asset upper bounds sum to %v, below budget %v", upperSum, cs.Budget),
		}
	}

	for _, gb := range cs.GroupBounds {
		if gb.Lower > gb.Upper {
			return &InfeasibleConstraintSetError{
				Reason: fmt.Sprintf("group %s has lower bound %v above upper bound %v", gb.Group, gb.Lower, gb.Upper),
			}
		}
		if gb.Upper < 0 {
			return &InfeasibleConstraintSetError{Reason: fmt.Sprintf("group %s has negative upper bound %v", gb.Group, gb.Upper)}
		}
	}

	return nil
}

// MaxTurnover is the turnover of a full reallocation under this constraint
// set, useful as an always-feasible bound in sweeps.
func (cs *ConstraintSet) MaxTurnover() float64 {
	if cs.Leverage != nil {
		return 2 * *cs.Leverage
	}
	return 2 * math.Abs(cs.Budget)
}
