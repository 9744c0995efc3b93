package rewrite

import (
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// QuantizedInput is one input variable's binary-level expansion: exactly
// one (or, if AllowNull, at most one) Selectors[i] is 1, and Variable
// equals Levels[i] for that i (§4.4.2, §8 I4).
type QuantizedInput struct {
	Variable  solver.Variable
	Selectors []solver.Variable
	Levels    []float64
}

// SubstitutionCoeffs returns the coefficient table SubstituteLinear
// expects to replace Variable by its level expansion sum(Levels[i] *
// Selectors[i]) inside an arbitrary polynomial.
func (q *QuantizedInput) SubstitutionCoeffs() map[algebra.VarHandle]float64 {
	coeffs := make(map[algebra.VarHandle]float64, len(q.Selectors))
	for i, b := range q.Selectors {
		coeffs[b] = q.Levels[i]
	}
	return coeffs
}

// Quantize expands input into a binary level selection against levels's
// dim-th level set, restricted to input's own [lower, upper] bounds, and
// asserts input == sum(level * selector). allowNull controls whether zero
// active selectors is a legal outcome (§4.4.2: "enforced as a single <=
// or = constraint depending on whether missing inputs are treated as
// zero or forbidden").
//
// Panics with a ContractViolation if levels has no entries for dim
// inside input's bounds: the caller supplied a level set that does not
// cover the input it is quantizing, which §4.4.2 requires ("Encoders
// MUST be invoked with a level table that is a superset of" the
// required closure).
func Quantize(s *solver.Session, input solver.Variable, dim int, levels domain.LevelSet, allowNull bool) (*QuantizedInput, error) {
	lower, upper := input.Bounds()
	const boundsEps = 1e-9
	var usable []float64
	for _, l := range levels.Levels(dim) {
		if l >= lower-boundsEps && l <= upper+boundsEps {
			usable = append(usable, l)
		}
	}
	if len(usable) == 0 {
		panic(&solver.ContractViolation{
			Stage:   "rewrite.Quantize",
			Message: fmt.Sprintf("level set has no entries for dimension %d within [%g, %g]", dim, lower, upper),
		})
	}

	selectors := make([]solver.Variable, len(usable))
	selectorSum := algebra.Zero()
	expansion := algebra.Zero()
	for i, l := range usable {
		b := s.CreateVariable(fmt.Sprintf("%s_lvl%d", input.Tag(), i), solver.Binary, 0, 1)
		selectors[i] = b
		selectorSum = selectorSum.AddTerm(algebra.LinearTerm(1, b))
		expansion = expansion.AddTerm(algebra.LinearTerm(l, b))
	}

	selectorCount := selectorSum.AddTerm(algebra.ConstantTerm(-1))
	if allowNull {
		if _, err := s.AddLeqZero(selectorCount); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.AddEqZero(selectorCount); err != nil {
			return nil, err
		}
	}

	pinning := expansion.AddTerm(algebra.LinearTerm(-1, input))
	if _, err := s.AddEqZero(pinning); err != nil {
		return nil, err
	}

	return &QuantizedInput{Variable: input, Selectors: selectors, Levels: usable}, nil
}
