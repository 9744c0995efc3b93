package rewrite

import (
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// PrimalDual emits the §4.4.2 rewrite: dual feasibility (free mu per
// equality, non-negative lambda per inequality) plus the strong-duality
// equality cᵀy = bᵀμ + hᵀλ, with every input variable replaced by its
// quantized level expansion so that the input*dual products inside
// b(x)ᵀμ and h(x)ᵀλ reduce to binary*continuous McCormick products.
//
// Every input variable referenced by enc.InputVariables is quantized
// against levels (§4.4.2's closure requirement: levels must be a
// superset of {0, every heuristic threshold, the driver's global upper
// bound}). allowNullInputs controls whether a quantized input may select
// no level (forbidding it is the default: most inputs are real demands,
// not optional ones).
//
// e must not be a feasibility encoder; call rewrite.Feasibility instead.
func PrimalDual(s *solver.Session, e encoder.Encoder, enc *encoder.Encoding, levels domain.LevelSet, allowNullInputs bool) error {
	if e.Feasibility() {
		panic(&solver.ContractViolation{
			Stage:   "rewrite.PrimalDual",
			Message: fmt.Sprintf("encoder %q is feasibility-only; primal-dual requires a convex inner maximization", e.Name()),
		})
	}

	eqs := e.EqualityConstraints()
	ineqs := e.InequalityConstraints()

	quantized := make(map[string]*QuantizedInput)
	for dim, vars := range enc.InputVariables {
		for _, v := range vars {
			if _, done := quantized[v.ID()]; done {
				continue
			}
			q, err := Quantize(s, v, dim, levels, allowNullInputs)
			if err != nil {
				return err
			}
			quantized[v.ID()] = q
		}
	}

	mu := make([]solver.Variable, len(eqs))
	for k := range eqs {
		mu[k] = s.CreateVariable(dualName(e.Name()+"_mu", k), solver.Continuous, -s.BigM(), s.BigM())
	}
	lambda := make([]solver.Variable, len(ineqs))
	for j := range ineqs {
		lambda[j] = s.CreateVariable(dualName(e.Name()+"_lambda", j), solver.Continuous, 0, s.BigM())
	}

	// dualObjective accumulates bᵀμ + hᵀλ. Each row's polynomial is
	// written as (Ay - b(x) == 0) / (Gy - h(x) <= 0), so an input term
	// x_i with declared coefficient t.Coefficient inside row k means
	// b_k(x) contains -t.Coefficient*x_i; the corresponding b^T mu
	// summand is therefore -t.Coefficient*mu_k*x_i (and symmetrically for
	// h^T lambda). Substituting x_i's quantized expansion turns each
	// summand into a sum of level*(binary*continuous) products. A bare
	// constant term c in the same row is a fixed (non-adversarial)
	// contribution to b(x)/h(x) and enters the dual objective directly
	// as -c*mu_k / -c*lambda_j, with no quantized expansion needed.
	dualObjective := algebra.Zero()

	for k, row := range eqs {
		for _, t := range row.Terms() {
			if t.IsConstant() {
				dualObjective = dualObjective.AddTerm(algebra.LinearTerm(-t.Coefficient, mu[k]))
				continue
			}
			if t.Exponent != 1 {
				continue
			}
			q, isInput := quantized[t.Variable.ID()]
			if !isInput {
				continue
			}
			terms := make([]SignedProductTerm, len(q.Selectors))
			for i, b := range q.Selectors {
				terms[i] = SignedProductTerm{
					Coefficient:     -t.Coefficient * q.Levels[i],
					Binary:          b,
					Continuous:      mu[k],
					ContinuousLower: -s.BigM(),
					ContinuousUpper: s.BigM(),
				}
			}
			sum, err := LinearizeSignedProductSum(s, terms)
			if err != nil {
				return err
			}
			dualObjective = dualObjective.Add(sum)
		}
	}

	for j, row := range ineqs {
		for _, t := range row.Terms() {
			if t.IsConstant() {
				dualObjective = dualObjective.AddTerm(algebra.LinearTerm(-t.Coefficient, lambda[j]))
				continue
			}
			if t.Exponent != 1 {
				continue
			}
			q, isInput := quantized[t.Variable.ID()]
			if !isInput {
				continue
			}
			terms := make([]ProductTerm, len(q.Selectors))
			for i, b := range q.Selectors {
				terms[i] = ProductTerm{
					Coefficient:  -t.Coefficient * q.Levels[i],
					Binary:       b,
					Continuous:   lambda[j],
					ContinuousUB: s.BigM(),
				}
			}
			sum, err := LinearizeProductSum(s, terms)
			if err != nil {
				return err
			}
			dualObjective = dualObjective.Add(sum)
		}
	}

	strongDuality := enc.InnerMaxObjective.Copy().Add(dualObjective.Negate())
	if _, err := s.AddEqZero(strongDuality); err != nil {
		return err
	}

	return linkGlobalObjective(s, enc)
}
