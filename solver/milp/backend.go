package milp

import (
	"context"
	"fmt"
	"time"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// Backend is the MILP flavor of solver.Backend: branch and bound over
// an LP relaxation, with SOS-1 complementary-slackness groups branched
// on natively (§4.2, §4.4.1).
type Backend struct {
	vars        []variableRecord
	constraints []constraintRecord
	sos1        []sos1Record
	nameIndex   map[string]int
	sos1Index   map[string]int
	varIdxByID  map[string]int

	bigM               float64
	branchingHeuristic BranchHeuristic
	workers            int

	timeoutSeconds    float64
	noImprovementSecs float64
	focusBestBound    bool

	sink solver.ProgressSink
}

// NewBackend creates an empty MILP backend. sink may be nil, in which
// case progress is discarded.
func NewBackend(sink solver.ProgressSink) *Backend {
	if sink == nil {
		sink = solver.DiscardSink{}
	}
	return &Backend{
		nameIndex:          make(map[string]int),
		sos1Index:          make(map[string]int),
		varIdxByID:         make(map[string]int),
		bigM:               solver.DefaultBigM,
		branchingHeuristic: BranchMaxFun,
		workers:            1,
		sink:               sink,
	}
}

// SetWorkers configures the thread count passed through to this
// backend's search (§5: the driver configures thread count, the
// backend owns whether/how it uses it).
func (b *Backend) SetWorkers(n int) {
	if n <= 0 {
		panic("milp: workers must be positive")
	}
	b.workers = n
}

// SetBranchingHeuristic records the variable-branching rule; see
// BranchHeuristic for how the search uses it.
func (b *Backend) SetBranchingHeuristic(h BranchHeuristic) { b.branchingHeuristic = h }

func (b *Backend) varIndex(v solver.Variable) int {
	idx, ok := b.varIdxByID[v.ID()]
	if !ok {
		panic("milp: variable handle not found in this backend")
	}
	return idx
}

func toKind(k solver.Kind) kind {
	switch k {
	case solver.Continuous:
		return kindContinuous
	case solver.Integer:
		return kindInteger
	case solver.Binary:
		return kindBinary
	default:
		panic("milp: unknown variable kind")
	}
}

// CreateVariable implements solver.Backend.
func (b *Backend) CreateVariable(tag string, sk solver.Kind, lower, upper float64) solver.Variable {
	k := toKind(sk)
	if k == kindBinary {
		lower, upper = 0, 1
	}
	idx := len(b.vars)
	b.vars = append(b.vars, variableRecord{tag: tag, kind: k, lower: lower, upper: upper})
	id := fmt.Sprintf("v%d", idx)
	b.varIdxByID[id] = idx
	return solver.NewVariable(id, tag, sk, lower, upper)
}

// polyToCoeffs converts a linear polynomial to (coeffs by variable
// index, constant). Panics on any term of exponent > 1: by the time a
// polynomial reaches this backend every rewrite has already linearized
// it (§4.4), so a quadratic term here is a contract violation, not a
// recoverable condition.
func (b *Backend) polyToCoeffs(p algebra.Polynomial) (map[int]float64, float64) {
	coeffs := make(map[int]float64)
	var constant float64
	for _, t := range p.Terms() {
		if t.IsConstant() {
			constant += t.Coefficient
			continue
		}
		if t.Exponent != 1 {
			panic("milp: quadratic term reached the solver backend unlinearized")
		}
		v, ok := t.Variable.(solver.Variable)
		if !ok {
			panic("milp: polynomial term variable is not a solver.Variable")
		}
		coeffs[b.varIndex(v)] += t.Coefficient
	}
	return coeffs, constant
}

// AddLeqZero implements solver.Backend.
func (b *Backend) AddLeqZero(p algebra.Polynomial, name string) (string, error) {
	coeffs, constant := b.polyToCoeffs(p)
	b.addConstraint(name, constraintLeq, coeffs, -constant)
	return name, nil
}

// AddEqZero implements solver.Backend.
func (b *Backend) AddEqZero(p algebra.Polynomial, name string) (string, error) {
	coeffs, constant := b.polyToCoeffs(p)
	b.addConstraint(name, constraintEq, coeffs, -constant)
	return name, nil
}

func (b *Backend) addConstraint(name string, k constraintKind, coeffs map[int]float64, rhs float64) {
	if _, exists := b.nameIndex[name]; exists {
		panic(fmt.Sprintf("milp: constraint name %q already in use", name))
	}
	b.nameIndex[name] = len(b.constraints)
	b.constraints = append(b.constraints, constraintRecord{name: name, kind: k, coeffs: coeffs, rhs: rhs})
}

// AddSOS1 implements solver.Backend: natively supported.
func (b *Backend) AddSOS1(vars []solver.Variable, name string) (string, bool, error) {
	idx := make([]int, len(vars))
	for i, v := range vars {
		idx[i] = b.varIndex(v)
	}
	if _, exists := b.sos1Index[name]; exists {
		panic(fmt.Sprintf("milp: SOS-1 group name %q already in use", name))
	}
	b.sos1Index[name] = len(b.sos1)
	b.sos1 = append(b.sos1, sos1Record{name: name, indices: idx})
	return name, true, nil
}

// RemoveConstraint implements solver.Backend.
func (b *Backend) RemoveConstraint(name string) error {
	if i, ok := b.nameIndex[name]; ok {
		b.constraints[i].removed = true
		return nil
	}
	if i, ok := b.sos1Index[name]; ok {
		b.sos1[i].removed = true
		return nil
	}
	return fmt.Errorf("milp: no constraint named %q", name)
}

// ChangeConstraintRHS implements solver.Backend.
func (b *Backend) ChangeConstraintRHS(name string, value float64) error {
	i, ok := b.nameIndex[name]
	if !ok {
		return fmt.Errorf("milp: no constraint named %q", name)
	}
	b.constraints[i].rhs = value
	return nil
}

// CleanAll implements solver.Backend.
func (b *Backend) CleanAll(opts solver.CleanOptions) {
	b.focusBestBound = opts.FocusBestBound
	if opts.Timeout > 0 {
		b.timeoutSeconds = opts.Timeout
	}
}

// SetTimeout implements solver.Backend.
func (b *Backend) SetTimeout(seconds float64) { b.timeoutSeconds = seconds }

// SetNoImprovementTimeout sets the no-improvement wall-clock budget.
func (b *Backend) SetNoImprovementTimeout(seconds float64) { b.noImprovementSecs = seconds }

// ModelUpdate implements solver.Backend; this backend does not buffer.
func (b *Backend) ModelUpdate() {}

// SupportsSOS1 implements solver.Backend.
func (b *Backend) SupportsSOS1() bool { return true }

// GetVariable implements solver.Backend.
func (b *Backend) GetVariable(res solver.Result, v solver.Variable) (float64, error) {
	val, ok := res.GetValue(v)
	if !ok {
		return 0, fmt.Errorf("milp: variable %s has no value in this result", v)
	}
	return val, nil
}

// Maximize implements solver.Backend: builds the current model, runs
// branch and bound, and reports the incumbent (or best-effort
// incumbent on timeout) as a solver.Result.
func (b *Backend) Maximize(ctx context.Context, objective algebra.Polynomial, opts solver.MaximizeOptions) (solver.Result, error) {
	objCoeffs, objConstant := b.polyToCoeffs(objective)
	objVec := make([]float64, len(b.vars))
	for idx, coef := range objCoeffs {
		objVec[idx] = coef
	}

	reducedVars, keep, fixed, fixedObjConstant, reducedCons := presolveFixedVariables(b.vars, b.constraints, objVec)
	reducedObj := make([]float64, len(reducedVars))
	for newIdx, oldIdx := range keep {
		reducedObj[newIdx] = objVec[oldIdx]
	}

	comp := compile(reducedVars, reducedCons, activeSOS1(b.sos1, keep), reducedObj, b.bigM, b.branchingHeuristic)
	baseConstant := objConstant + fixedObjConstant + comp.objectiveConstant

	budget := searchBudget{}
	if b.timeoutSeconds > 0 {
		budget.WallClock = time.Duration(b.timeoutSeconds * float64(time.Second))
	}
	if b.noImprovementSecs > 0 {
		budget.NoImprovement = time.Duration(b.noImprovementSecs * float64(time.Second))
	}

	report := func(z float64, bound *float64) {
		b.sink.Record(solver.ProgressEntry{
			TimestampMs: time.Now().UnixMilli(),
			Objective:   -z + baseConstant,
			BestBound:   negatePtr(bound, baseConstant),
		})
	}

	incumbent, outcome := branchAndBound(ctx, comp.problem, budget, report)

	switch outcome {
	case outcomeInfeasible:
		return solver.Result{Status: solver.StatusInfeasible}, nil
	case outcomeInterrupted:
		return solver.Result{Status: solver.StatusInterrupted}, nil
	}

	reducedX := unshift(incumbent.x, comp.shift)
	full := expandSolution(reducedX, keep, fixed, len(b.vars))
	values := make(map[string]float64, len(full))
	for i, val := range full {
		values[fmt.Sprintf("v%d", i)] = val
	}

	status := solver.StatusOptimal
	if outcome == outcomeTimeLimit {
		status = solver.StatusTimeLimit
	}

	return solver.NewResult(status, -incumbent.z+baseConstant, values), nil
}

func negatePtr(v *float64, offset float64) *float64 {
	if v == nil {
		return nil
	}
	out := -*v + offset
	return &out
}

// activeSOS1 remaps SOS-1 groups through the presolve keep/reindex
// table, dropping any member that presolve fixed to a constant (a fixed
// member can never violate SOS-1 jointly with another free member in a
// way this backend needs to branch on).
func activeSOS1(groups []sos1Record, keep []int) []sos1Record {
	origToReduced := make(map[int]int, len(keep))
	for newIdx, oldIdx := range keep {
		origToReduced[oldIdx] = newIdx
	}
	out := make([]sos1Record, 0, len(groups))
	for _, g := range groups {
		if g.removed {
			continue
		}
		var idx []int
		for _, i := range g.indices {
			if ni, ok := origToReduced[i]; ok {
				idx = append(idx, ni)
			}
		}
		if len(idx) > 1 {
			out = append(out, sos1Record{name: g.name, indices: idx})
		}
	}
	return out
}
