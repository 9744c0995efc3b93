// Package smt implements the constraint/SMT flavor of solver.Backend
// required by §4.2: a feasibility solver with no notion of an objective
// direction. Maximization is simulated by bisecting an auxiliary upper
// bound on the objective and re-checking feasibility at each probe.
//
// The retrieved example pack carries no SMT/SAT solver dependency (only
// a hand-written CDCL interface sketch with no backing engine), so this
// backend is built on top of the same branch-and-bound engine as
// solver/milp (see DESIGN.md for the per-dependency justification),
// configured to ignore the objective vector entirely when deciding
// feasibility.
package smt

import (
	"context"
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
)

const defaultBisectionTolerance = 1e-4
const defaultBisectionSteps = 60

// Backend is the SMT/feasibility flavor of solver.Backend.
type Backend struct {
	inner              *milp.Backend
	bisectionTolerance float64
	bisectionMaxSteps  int
}

// NewBackend creates an empty feasibility backend, reporting progress to
// sink (nil means discard).
func NewBackend(sink solver.ProgressSink) *Backend {
	return &Backend{
		inner:              milp.NewBackend(sink),
		bisectionTolerance: defaultBisectionTolerance,
		bisectionMaxSteps:  defaultBisectionSteps,
	}
}

func (b *Backend) CreateVariable(tag string, kind solver.Kind, lower, upper float64) solver.Variable {
	return b.inner.CreateVariable(tag, kind, lower, upper)
}

func (b *Backend) AddLeqZero(p algebra.Polynomial, name string) (string, error) {
	return b.inner.AddLeqZero(p, name)
}

func (b *Backend) AddEqZero(p algebra.Polynomial, name string) (string, error) {
	return b.inner.AddEqZero(p, name)
}

func (b *Backend) AddSOS1(vars []solver.Variable, name string) (string, bool, error) {
	// Feasibility-only solving has no natural notion of SOS-1 priority
	// branching (there is no objective to bound by); callers fall back
	// to the big-M linearization, same as any backend reporting false.
	return name, false, nil
}

func (b *Backend) RemoveConstraint(name string) error { return b.inner.RemoveConstraint(name) }

func (b *Backend) ChangeConstraintRHS(name string, value float64) error {
	return b.inner.ChangeConstraintRHS(name, value)
}

func (b *Backend) CleanAll(opts solver.CleanOptions) { b.inner.CleanAll(opts) }

func (b *Backend) SetTimeout(seconds float64) { b.inner.SetTimeout(seconds) }

func (b *Backend) ModelUpdate() { b.inner.ModelUpdate() }

func (b *Backend) GetVariable(res solver.Result, v solver.Variable) (float64, error) {
	return b.inner.GetVariable(res, v)
}

func (b *Backend) SupportsSOS1() bool { return false }

// SetBisectionTolerance overrides the default width at which bisection
// stops and reports its best feasible probe.
func (b *Backend) SetBisectionTolerance(tol float64) { b.bisectionTolerance = tol }

// Maximize simulates maximization over a feasibility-only engine: binary
// search an upper bound U on objective, feasibility-check
// "objective >= U" at each probe (via a temporary constraint, removed
// before the next probe), and converge on the greatest U for which the
// model remains feasible.
func (b *Backend) Maximize(ctx context.Context, objective algebra.Polynomial, opts solver.MaximizeOptions) (solver.Result, error) {
	// First establish feasibility at all, and a finite search bracket,
	// by solving the unconstrained (zero-objective) feasibility problem.
	probe, err := b.inner.Maximize(ctx, algebra.Zero(), opts)
	if err != nil {
		return solver.Result{}, err
	}
	if probe.Status == solver.StatusInfeasible {
		return solver.Result{Status: solver.StatusInfeasible}, nil
	}

	lo := objectiveValue(probe, objective)
	hi := lo + solver.DefaultBigM

	best := probe
	for step := 0; step < b.bisectionMaxSteps && hi-lo > b.bisectionTolerance; step++ {
		select {
		case <-ctx.Done():
			return best, nil
		default:
		}
		mid := lo + (hi-lo)/2

		name := fmt.Sprintf("smt_bisect#%d", step)
		// assert objective >= mid, i.e. mid - objective <= 0.
		probePoly := objective.Negate().AddTerm(algebra.ConstantTerm(mid))
		if _, err := b.inner.AddLeqZero(probePoly, name); err != nil {
			return solver.Result{}, err
		}
		res, err := b.inner.Maximize(ctx, algebra.Zero(), opts)
		_ = b.inner.RemoveConstraint(name)
		if err != nil {
			return solver.Result{}, err
		}
		if res.Status == solver.StatusInfeasible {
			hi = mid
			continue
		}
		lo = mid
		best = res
	}

	return best.WithObjective(objectiveValue(best, objective)), nil
}

func objectiveValue(res solver.Result, objective algebra.Polynomial) float64 {
	var sum float64
	for _, t := range objective.Terms() {
		if t.IsConstant() {
			sum += t.Coefficient
			continue
		}
		v, ok := t.Variable.(solver.Variable)
		if !ok {
			continue
		}
		val, _ := res.GetValue(v)
		sum += t.Coefficient * val
	}
	return sum
}
