// Package rewrite implements C4, the inner-rewrite generator: given an
// encoder.Encoder that has already built its inner problem against a
// solver.Session (via Encode), emit the additional constraints that make
// the shared session satisfiable only when the encoder's primal
// variables are optimal (or, for feasibility encoders, merely feasible)
// for the current input (§4.4).
package rewrite

import (
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// linkGlobalObjective asserts enc.GlobalObjective == enc.InnerMaxObjective
// (§4.3 invariant 3), the one step every rewrite variant performs
// regardless of whether it emits KKT machinery, a strong-duality
// equality, or nothing beyond primal feasibility.
func linkGlobalObjective(s *solver.Session, enc *encoder.Encoding) error {
	poly := enc.InnerMaxObjective.Copy().AddTerm(algebra.LinearTerm(-1, enc.GlobalObjective))
	_, err := s.AddEqZero(poly)
	return err
}

// Feasibility emits nothing beyond the GlobalObjective link: Encode has
// already asserted every primal constraint for a feasibility encoder, and
// no inner maximization exists to dualize (§4.4.3).
func Feasibility(s *solver.Session, enc *encoder.Encoding) error {
	return linkGlobalObjective(s, enc)
}

func dualName(prefix string, i int) string {
	return fmt.Sprintf("%s_dual%d", prefix, i)
}
