package rewrite

import (
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// KKT emits the §4.4.1 rewrite: a non-negative dual per inequality, a
// free dual per equality, stationarity, and complementary slackness
// (SOS-1 when the session's backend supports it, big-M otherwise — both
// paths live entirely behind Session.AddSOS1, per §9's fallback
// guidance). Primal feasibility is already present: e.Encode asserted it
// directly against s before this is called.
//
// e must not be a feasibility encoder; call rewrite.Feasibility for
// those instead. Panics (a ContractViolation, per §7) if e.Feasibility()
// is true, since dualizing a non-convex heuristic has no meaning.
func KKT(s *solver.Session, e encoder.Encoder, enc *encoder.Encoding) error {
	if e.Feasibility() {
		panic(&solver.ContractViolation{
			Stage:   "rewrite.KKT",
			Message: fmt.Sprintf("encoder %q is feasibility-only; KKT requires a convex inner maximization", e.Name()),
		})
	}

	primal := e.PrimalVariables()
	eqs := e.EqualityConstraints()
	ineqs := e.InequalityConstraints()

	// One free dual mu_k per equality row, one non-negative dual
	// lambda_j per inequality row.
	mu := make([]solver.Variable, len(eqs))
	for k := range eqs {
		mu[k] = s.CreateVariable(dualName(e.Name()+"_mu", k), solver.Continuous, -s.BigM(), s.BigM())
	}
	lambda := make([]solver.Variable, len(ineqs))
	for j := range ineqs {
		lambda[j] = s.CreateVariable(dualName(e.Name()+"_lambda", j), solver.Continuous, 0, s.BigM())
	}

	// Stationarity: for every primal component y_m,
	// c_m - sum_j G_jm*lambda_j - sum_k A_km*mu_k == 0, where c_m, G_jm,
	// A_km are the (already-declared, constant) coefficients of y_m in
	// the objective, each inequality, and each equality respectively.
	for _, y := range primal {
		poly := algebra.Constant(enc.InnerMaxObjective.CoefficientOf(y))
		for j, g := range ineqs {
			if coef := g.CoefficientOf(y); coef != 0 {
				poly = poly.AddTerm(algebra.LinearTerm(-coef, lambda[j]))
			}
		}
		for k, a := range eqs {
			if coef := a.CoefficientOf(y); coef != 0 {
				poly = poly.AddTerm(algebra.LinearTerm(-coef, mu[k]))
			}
		}
		if _, err := s.AddEqZero(poly); err != nil {
			return err
		}
	}

	// Complementary slackness: slack_j := -g_j(y) >= 0 via
	// g_j(y) + slack_j == 0, then SOS-1(slack_j, lambda_j).
	for j, g := range ineqs {
		slack := s.CreateVariable(fmt.Sprintf("%s_slack%d", e.Name(), j), solver.Continuous, 0, s.BigM())
		if _, err := s.AddEqZero(g.Copy().AddTerm(algebra.LinearTerm(1, slack))); err != nil {
			return err
		}
		if _, err := s.AddSOS1([]solver.Variable{slack, lambda[j]}); err != nil {
			return err
		}
	}

	return linkGlobalObjective(s, enc)
}
