// Package milp implements the MILP back end of solver.Backend: branch
// and bound over an LP relaxation solved with gonum's simplex, adapted
// from a from-scratch Go MILP solver (variables/constraints declared
// against an abstract Problem, then compiled to c/A/b/G/h matrices and
// solved node by node). SOS-1 complementary-slackness constraints
// (§4.4.1) are branched on natively; everything else is linear.
package milp

import "gonum.org/v1/gonum/mat"

// BranchHeuristic names a rule for choosing which fractional integer
// variable to branch on. The setting is carried into the compiled
// problem, but branchAndBound does not consult it: it always branches on
// the first fractional integer variable in index order.
type BranchHeuristic int

const (
	BranchMaxFun BranchHeuristic = iota
	BranchMostInfeasible
	BranchNaive
)

// variableRecord is this backend's internal representation of a
// solver.Variable: its declared kind and bounds, plus its position in
// the compiled coefficient vectors.
type variableRecord struct {
	tag   string
	kind  kind
	lower float64
	upper float64
}

type kind int

const (
	kindContinuous kind = iota
	kindInteger
	kindBinary
)

// constraintKind distinguishes <=0 from ==0 constraints.
type constraintKind int

const (
	constraintLeq constraintKind = iota
	constraintEq
)

// constraintRecord is an arena entry for one named constraint. coeffs is
// keyed by variable index; rhs and coeffs are split apart (rather than
// kept as a single "poly <= 0" blob) specifically so ChangeConstraintRHS
// can mutate rhs in place without touching coeffs, and so RemoveConstraint
// can tombstone the entry without shifting any other entry's index (§9:
// "use an arena-and-index representation for constraints so that names
// remain stable under removal").
type constraintRecord struct {
	name    string
	kind    constraintKind
	coeffs  map[int]float64
	rhs     float64
	removed bool
}

// sos1Record is an arena entry for one named SOS-1 group: at most one of
// the listed variable indices may be non-zero in any feasible solution.
type sos1Record struct {
	name    string
	indices []int
	removed bool
}

// milpProblem is the concrete numerical problem compiled from a
// Backend's current state immediately before a Maximize call:
//
//	minimize c^T x   s.t.  A x = b,  G x <= h
//
// (the backend always minimizes internally; Maximize negates c when the
// caller wants a maximum). sos1Groups references variable indices into x.
type milpProblem struct {
	c                      []float64
	a                      *mat.Dense
	b                      []float64
	g                      *mat.Dense
	h                      []float64
	integrality            []bool
	sos1Groups             [][]int
	branchingHeuristic     BranchHeuristic
}

// subProblem is one node of the branch-and-bound enumeration tree: the
// original problem plus the additional single-variable bound
// constraints accumulated along the path from the root.
type subProblem struct {
	id     int64
	parent int64

	c           []float64
	a           *mat.Dense
	b           []float64
	g           *mat.Dense
	h           []float64
	integrality []bool
	sos1Groups  [][]int

	branchingHeuristic BranchHeuristic

	// bnbConstraints are additional "g# x <= h#" rows accumulated by
	// branching on a single variable's bound.
	bnbConstraints []bnbConstraint

	// sos1Fixed records variable indices forced to zero by SOS-1
	// branching along this path (index -> forced-zero).
	sos1Fixed map[int]bool
}

type bnbConstraint struct {
	branchedVariable int
	hsharp           float64
	gsharp           []float64
}

type nodeSolution struct {
	problem *subProblem
	x       []float64
	z       float64
	err     error
}
