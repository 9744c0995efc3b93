package milp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// compiled bundles the milpProblem alongside the bookkeeping needed to
// translate a solution back into the caller's original variable space.
type compiled struct {
	problem           *milpProblem
	shift             []float64 // x_i = x'_i + shift[i]; x'_i >= 0 is what the engine actually solves
	objectiveConstant float64   // sum(objective[i] * shift[i]), added back onto the reported objective
}

// compile converts the backend's current variables, active constraints
// and active SOS-1 groups into a milpProblem, adapted from the
// teacher's Problem.toSolveable.
//
// gonum's lp.Simplex solves in standard form (every variable >= 0), the
// same restriction the teacher's own TODO flags as unhandled ("dealing
// with variables that are unrestricted in sign"). The KKT rewrite
// (§4.4.1) needs free dual variables for equality constraints, so this
// compile shifts every variable x_i to x'_i = x_i - lower_i >= 0 before
// building c/A/b/G/h, and records the shift to undo on the way out.
// +-Inf bounds are replaced with a finite bigM first, so the shift
// itself is always finite.
func compile(vars []variableRecord, cons []constraintRecord, sos1 []sos1Record, objective []float64, bigM float64, heuristic BranchHeuristic) *compiled {
	n := len(vars)

	shift := make([]float64, n)
	shiftedUpper := make([]float64, n)
	var objectiveConstant float64
	for i, v := range vars {
		lower, upper := v.lower, v.upper
		if math.IsInf(lower, -1) {
			lower = -bigM
		}
		if math.IsInf(upper, 1) {
			upper = bigM
		}
		shift[i] = lower
		shiftedUpper[i] = upper - lower
		objectiveConstant += objective[i] * lower
	}

	c := make([]float64, n)
	for i := range objective {
		c[i] = -objective[i] // minimize -objective == maximize objective
	}

	integrality := make([]bool, n)
	for i, v := range vars {
		integrality[i] = v.kind != kindContinuous
	}

	var aData, bData []float64
	var gData, hData []float64

	for _, con := range cons {
		if con.removed {
			continue
		}
		row := make([]float64, n)
		rhs := con.rhs
		for idx, coef := range con.coeffs {
			row[idx] = coef
			rhs -= coef * shift[idx]
		}
		switch con.kind {
		case constraintEq:
			aData = append(aData, row...)
			bData = append(bData, rhs)
		case constraintLeq:
			gData = append(gData, row...)
			hData = append(hData, rhs)
		}
	}

	// shifted upper bounds as inequality rows; the shifted lower bound
	// is always zero, which is the simplex's standing assumption.
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		row[i] = 1
		gData = append(gData, row...)
		hData = append(hData, shiftedUpper[i])
	}

	var a *mat.Dense
	if len(bData) > 0 {
		a = mat.NewDense(len(bData), n, aData)
	}
	var g *mat.Dense
	if len(hData) > 0 {
		g = mat.NewDense(len(hData), n, gData)
	}

	var groups [][]int
	for _, s := range sos1 {
		if s.removed {
			continue
		}
		idx := make([]int, len(s.indices))
		copy(idx, s.indices)
		groups = append(groups, idx)
	}

	return &compiled{
		problem: &milpProblem{
			c:                  c,
			a:                  a,
			b:                  bData,
			g:                  g,
			h:                  hData,
			integrality:        integrality,
			sos1Groups:         groups,
			branchingHeuristic: heuristic,
		},
		shift:             shift,
		objectiveConstant: objectiveConstant,
	}
}

// unshift translates a solution vector in the engine's nonnegative
// variable space back into the caller's original variable space.
func unshift(x []float64, shift []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + shift[i]
	}
	return out
}

func (p *milpProblem) toInitialSubproblem() subProblem {
	cNew := p.c
	aNew := p.a
	bNew := p.b
	intNew := p.integrality

	if p.g != nil {
		cNew, aNew, bNew = convertToEqualities(p.c, p.a, p.b, p.g, p.h)
		intNew = make([]bool, len(cNew))
		copy(intNew, p.integrality)
	}

	return subProblem{
		id:                 0,
		c:                  cNew,
		a:                  aNew,
		b:                  bNew,
		integrality:        intNew,
		sos1Groups:         p.sos1Groups,
		branchingHeuristic: p.branchingHeuristic,
		bnbConstraints:     []bnbConstraint{},
		sos1Fixed:          map[int]bool{},
	}
}
