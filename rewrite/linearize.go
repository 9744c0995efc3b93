package rewrite

import (
	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// ProductTerm is one coef * binary * continuous summand of a weight sum
// that needs McCormick linearization before it can appear in a linear
// constraint or objective (§9: "binary x continuous linearization...
// isolate it as one function on the polynomial layer, reusable by every
// rewrite and encoder"). ContinuousUB must be a valid upper bound on
// Continuous's value — callers read it off Continuous.Bounds() in the
// common case.
type ProductTerm struct {
	Coefficient  float64
	Binary       solver.Variable
	Continuous   solver.Variable
	ContinuousUB float64
}

// LinearizeProductSum returns a linear polynomial equal to
// sum(t.Coefficient * t.Binary * t.Continuous), by introducing one fresh
// McCormick-linearized variable per term via Session.LinearizeBinaryTimesContinuous.
// Shared by the primal-dual rewrite (input-quantized dual products) and
// by encoders.FFD (bin loads) and encoders.VectorBinPacking (capacity
// rows). The FFDProd weight uses encoders' own continuousProduct instead.
func LinearizeProductSum(s *solver.Session, terms []ProductTerm) (algebra.Polynomial, error) {
	poly := algebra.Zero()
	for _, t := range terms {
		z, err := s.LinearizeBinaryTimesContinuous(t.Binary, t.Continuous, t.ContinuousUB)
		if err != nil {
			return algebra.Polynomial{}, err
		}
		poly = poly.AddTerm(algebra.LinearTerm(t.Coefficient, z))
	}
	return poly, nil
}

// SignedProductTerm is ProductTerm's counterpart for a continuous factor
// that may be negative (e.g. a free KKT equality dual) — see
// Session.LinearizeBinaryTimesBoundedContinuous.
type SignedProductTerm struct {
	Coefficient     float64
	Binary          solver.Variable
	Continuous      solver.Variable
	ContinuousLower float64
	ContinuousUpper float64
}

// LinearizeSignedProductSum is LinearizeProductSum for factors whose
// continuous side may be negative.
func LinearizeSignedProductSum(s *solver.Session, terms []SignedProductTerm) (algebra.Polynomial, error) {
	poly := algebra.Zero()
	for _, t := range terms {
		z, err := s.LinearizeBinaryTimesBoundedContinuous(t.Binary, t.Continuous, t.ContinuousLower, t.ContinuousUpper)
		if err != nil {
			return algebra.Polynomial{}, err
		}
		poly = poly.AddTerm(algebra.LinearTerm(t.Coefficient, z))
	}
	return poly, nil
}
