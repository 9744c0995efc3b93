package milp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// convertToEqualities folds inequality constraints G x <= h into
// equality constraints by adding one non-negative slack variable per
// row, adapted from the teacher's conversion used ahead of gonum's
// equality-only simplex.
func convertToEqualities(c []float64, a *mat.Dense, b []float64, g *mat.Dense, h []float64) (cNew []float64, aNew *mat.Dense, bNew []float64) {
	if g == nil {
		panic("milp: convertToEqualities called with nil G")
	}

	nVar := len(c)
	nCons := len(b)
	nIneq := len(h)
	nNewVar := nVar + nIneq
	nNewCons := nCons + nIneq

	cNew = make([]float64, nNewVar)
	copy(cNew, c)

	bNew = make([]float64, nNewCons)
	copy(bNew, b)
	copy(bNew[nCons:], h)

	aNew = mat.NewDense(nNewCons, nNewVar, nil)
	if a != nil {
		aNew.Slice(0, nCons, 0, nVar).(*mat.Dense).Copy(a)
	}
	aNew.Slice(nCons, nNewCons, 0, nVar).(*mat.Dense).Copy(g)

	bottomRight := aNew.Slice(nCons, nNewCons, nVar, nVar+nIneq).(*mat.Dense)
	for i := 0; i < nIneq; i++ {
		bottomRight.Set(i, i, 1)
	}

	return
}

// combineInequalities assembles the branch-and-bound-only inequality
// rows accumulated along this node's path into a single G, h pair, in
// the variable space of p.c (which already includes any slack variables
// introduced by the initial equality conversion).
func (p subProblem) combineInequalities() (*mat.Dense, []float64) {
	if len(p.bnbConstraints) == 0 {
		return nil, nil
	}
	h := make([]float64, 0, len(p.bnbConstraints))
	gData := make([]float64, 0, len(p.bnbConstraints)*len(p.c))
	for _, con := range p.bnbConstraints {
		gData = append(gData, con.gsharp...)
		h = append(h, con.hsharp)
	}
	g := mat.NewDense(len(p.bnbConstraints), len(p.c), gData)
	return g, h
}

var (
	errSubproblemInfeasible = errors.New("milp: subproblem LP relaxation infeasible")
	errSubproblemDegenerate = errors.New("milp: subproblem LP relaxation degenerate")
)

// solve solves this node's LP relaxation (ignoring integrality and
// SOS-1 constraints; those are handled by the branch-and-bound loop).
func (p subProblem) solve() nodeSolution {
	g, h := p.combineInequalities()

	var z float64
	var x []float64
	var err error

	if g != nil {
		c, a, b := convertToEqualities(p.c, p.a, p.b, g, h)
		z, x, err = lp.Simplex(c, a, b, 0, nil)
		if err == nil && len(x) != len(p.c) {
			x = x[:len(p.c)]
		}
	} else {
		z, x, err = lp.Simplex(p.c, p.a, p.b, 0, nil)
	}

	if err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			err = errSubproblemInfeasible
		case errors.Is(err, lp.ErrSingular):
			err = errSubproblemDegenerate
		}
	}

	return nodeSolution{problem: &p, x: x, z: z, err: err}
}

// branch splits a node on a single integer-constrained variable whose
// LP-relaxation value is fractional, producing a "floor" child and a
// "ceiling" child.
func (s nodeSolution) branch(branchOn int) (p1, p2 subProblem) {
	currentCoeff := s.x[branchOn]

	p1 = s.problem.getChild(branchOn, 1, math.Floor(currentCoeff))
	p2 = s.problem.getChild(branchOn, -1, -(math.Floor(currentCoeff) + 1))

	return
}

func (p subProblem) getChild(branchOn int, factor float64, smallerOrEqualThan float64) subProblem {
	child := p.copy()
	newConstraint := bnbConstraint{
		branchedVariable: branchOn,
		hsharp:           smallerOrEqualThan,
		gsharp:           make([]float64, len(p.c)),
	}
	newConstraint.gsharp[branchOn] = factor
	child.bnbConstraints = append(child.bnbConstraints, newConstraint)
	return child
}

// branchSOS1 splits a node on a violated SOS-1 group by dividing the
// group at its midpoint: one child forces the first half to zero, the
// other forces the second half to zero. This is the standard SOS-1
// branching rule and is the reason the MILP back end can honor §4.4.1's
// preference for SOS-1 over big-M complementary slackness.
func (p subProblem) branchSOS1(group []int) (p1, p2 subProblem) {
	mid := len(group) / 2
	p1 = p.forceZero(group[mid:])
	p2 = p.forceZero(group[:mid])
	return
}

func (p subProblem) forceZero(indices []int) subProblem {
	child := p.copy()
	for _, idx := range indices {
		child.sos1Fixed[idx] = true
		con := bnbConstraint{
			branchedVariable: idx,
			hsharp:           0,
			gsharp:           make([]float64, len(p.c)),
		}
		con.gsharp[idx] = 1
		child.bnbConstraints = append(child.bnbConstraints, con)
		conNeg := bnbConstraint{
			branchedVariable: idx,
			hsharp:           0,
			gsharp:           make([]float64, len(p.c)),
		}
		conNeg.gsharp[idx] = -1
		child.bnbConstraints = append(child.bnbConstraints, conNeg)
	}
	return child
}

// copy returns an independent subProblem sharing the parent's immutable
// slices (c, a, b, integrality) by reference, and a fresh copy of the
// mutable bnbConstraints / sos1Fixed state, mirroring the teacher's
// memory-conscious copy().
func (p *subProblem) copy() subProblem {
	n := subProblem{
		id:                 p.id,
		parent:             p.id,
		c:                  p.c,
		a:                  p.a,
		b:                  p.b,
		integrality:        p.integrality,
		sos1Groups:         p.sos1Groups,
		branchingHeuristic: p.branchingHeuristic,
		bnbConstraints:     make([]bnbConstraint, len(p.bnbConstraints)),
		sos1Fixed:          make(map[int]bool, len(p.sos1Fixed)),
	}
	copy(n.bnbConstraints, p.bnbConstraints)
	for k, v := range p.sos1Fixed {
		n.sos1Fixed[k] = v
	}
	return n
}
