package bilevel

import (
	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// RealisticOptions configures the realistic-input constraint family of
// §4.6 step 8. Each clause is independent and separately toggled, per
// §9 Open Question (i)'s resolution to treat "density" and
// "large-demand distance caps" as a labeled family rather than one
// monolithic, undocumented predicate.
type RealisticOptions struct {
	// DensityMin, if > 0, requires at least this fraction of input
	// indices to take a strictly positive value (a lower bound on how
	// many commodities/items the adversary must actually use).
	DensityMin float64

	// LargeDemandThreshold and LargeDemandMinCount, if LargeDemandMinCount
	// > 0, require at least LargeDemandMinCount input indices to be at
	// least LargeDemandThreshold.
	LargeDemandThreshold float64
	LargeDemandMinCount  int

	// MaxDistanceHops, if > 0, is forwarded to encoders (e.g.
	// DemandPinningOptions.MaxDistanceHops) by the caller before Encode;
	// recorded here only so the driver can log which cap was active.
	MaxDistanceHops int
}

// applyRealisticConstraints adds the density and large-demand clauses
// against the shared input variables. inputs is the per-index input
// variable list the optimal encoder produced (one slice per index;
// only the first dimension of each is used, matching the
// single-dimension inputs of the traffic/demand-pinning family this
// constraint family was designed for).
func applyRealisticConstraints(s *solver.Session, inputs encoder.PreInputVariables, o *RealisticOptions) error {
	if o == nil {
		return nil
	}
	indices := make([]int, 0, len(inputs))
	for i := range inputs {
		indices = append(indices, i)
	}

	if o.DensityMin > 0 {
		if err := applyDensityConstraint(s, inputs, indices, o.DensityMin); err != nil {
			return err
		}
	}
	if o.LargeDemandMinCount > 0 {
		if err := applyLargeDemandConstraint(s, inputs, indices, o.LargeDemandThreshold, o.LargeDemandMinCount); err != nil {
			return err
		}
	}
	return nil
}

// applyDensityConstraint requires at least ceil(densityMin*N) of the
// inputs to be strictly positive, via a binary "active" indicator per
// index and a big-M lower bound linking it to the input's value.
func applyDensityConstraint(s *solver.Session, inputs encoder.PreInputVariables, indices []int, densityMin float64) error {
	n := len(indices)
	if n == 0 {
		return nil
	}
	activeSum := algebra.Zero()
	for _, i := range indices {
		v := inputs[i][0]
		active := s.CreateVariable("density_active", solver.Binary, 0, 1)
		// v <= bigM*active  =>  active must be 1 whenever v > 0.
		poly := algebra.NewPolynomial(algebra.LinearTerm(1, v), algebra.LinearTerm(-s.BigM(), active))
		if _, err := s.AddLeqZero(poly); err != nil {
			return err
		}
		activeSum = activeSum.AddTerm(algebra.LinearTerm(1, active))
	}
	minActive := densityMin * float64(n)
	ineq := algebra.Constant(minActive).Add(activeSum.Negate())
	_, err := s.AddLeqZero(ineq)
	return err
}

// applyLargeDemandConstraint requires at least minCount of the inputs
// to reach threshold, via a two-sided big-M indicator per index tested
// against threshold.
func applyLargeDemandConstraint(s *solver.Session, inputs encoder.PreInputVariables, indices []int, threshold float64, minCount int) error {
	largeSum := algebra.Zero()
	for _, i := range indices {
		v := inputs[i][0]
		large := s.CreateVariable("large_demand", solver.Binary, 0, 1)
		// v - threshold <= bigM*large  =>  large must be 1 whenever v > threshold.
		poly := algebra.NewPolynomial(
			algebra.LinearTerm(1, v), algebra.ConstantTerm(-threshold), algebra.LinearTerm(-s.BigM(), large),
		)
		if _, err := s.AddLeqZero(poly); err != nil {
			return err
		}
		// threshold - v <= bigM*(1-large)  =>  large == 1 only when v >= threshold.
		reach := algebra.NewPolynomial(
			algebra.ConstantTerm(threshold-s.BigM()), algebra.LinearTerm(-1, v), algebra.LinearTerm(s.BigM(), large),
		)
		if _, err := s.AddLeqZero(reach); err != nil {
			return err
		}
		largeSum = largeSum.AddTerm(algebra.LinearTerm(1, large))
	}
	ineq := algebra.Constant(float64(minCount)).Add(largeSum.Negate())
	_, err := s.AddLeqZero(ineq)
	return err
}
