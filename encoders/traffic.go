// Package encoders implements the representative C5 encoders of §4.5:
// concrete encoder.Encoder implementations over a domain.Topology or
// domain.Bins external collaborator.
package encoders

import (
	"context"
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// TrafficOptimalOptions configures TrafficOptimal.Encode.
type TrafficOptimalOptions struct {
	// K is the number of precomputed shortest paths offered per
	// commodity. Defaults to 1 if zero.
	K int
}

// TrafficOptimal is the traffic-engineering max-flow optimal encoder:
// primal variables are per-commodity per-path flows, constrained by
// per-edge capacity and per-commodity flow <= demand; the objective is
// total demand met. Inputs are per-commodity demands (§4.5).
type TrafficOptimal struct {
	topo        domain.Topology
	commodities []domain.Commodity
	paths       [][]domain.Path
	flow        [][]solver.Variable
	demand      []solver.Variable
	ineqs       []algebra.Polynomial
}

// NewTrafficOptimal builds a traffic-engineering encoder over topo.
func NewTrafficOptimal(topo domain.Topology) *TrafficOptimal {
	return &TrafficOptimal{topo: topo}
}

func (e *TrafficOptimal) Name() string      { return "traffic-te-optimal" }
func (e *TrafficOptimal) Feasibility() bool { return false }

func (e *TrafficOptimal) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	o, _ := opts.(TrafficOptimalOptions)
	if o.K <= 0 {
		o.K = 1
	}

	e.commodities = e.topo.NodePairs()
	e.paths = make([][]domain.Path, len(e.commodities))
	e.flow = make([][]solver.Variable, len(e.commodities))
	e.demand = make([]solver.Variable, len(e.commodities))
	inputVars := make(encoder.PreInputVariables, len(e.commodities))

	for i, c := range e.commodities {
		d, err := sharedOrFreshInput(s, pre, eq, i, fmt.Sprintf("demand_%d", i))
		if err != nil {
			return nil, err
		}
		e.demand[i] = d
		inputVars[i] = []solver.Variable{d}

		paths := e.topo.KShortestPaths(c.Src, c.Dst, o.K)
		e.paths[i] = paths
		e.flow[i] = make([]solver.Variable, len(paths))
		sumFlow := algebra.Zero()
		for p := range paths {
			v := s.CreateVariable(fmt.Sprintf("flow_%d_%d", i, p), solver.Continuous, 0, s.BigM())
			e.flow[i][p] = v
			sumFlow = sumFlow.AddTerm(algebra.LinearTerm(1, v))
		}
		ineq := sumFlow.AddTerm(algebra.LinearTerm(-1, d))
		if _, err := s.AddLeqZero(ineq); err != nil {
			return nil, err
		}
		e.ineqs = append(e.ineqs, ineq)
	}

	for _, edgeEnt := range e.topo.Edges() {
		edgeSum := algebra.Zero()
		for i := range e.commodities {
			for p, path := range e.paths[i] {
				if pathUsesEdge(path, edgeEnt) {
					edgeSum = edgeSum.AddTerm(algebra.LinearTerm(1, e.flow[i][p]))
				}
			}
		}
		ineq := edgeSum.AddTerm(algebra.ConstantTerm(-edgeEnt.Capacity))
		if _, err := s.AddLeqZero(ineq); err != nil {
			return nil, err
		}
		e.ineqs = append(e.ineqs, ineq)
	}

	objective := algebra.Zero()
	for i := range e.commodities {
		for _, v := range e.flow[i] {
			objective = objective.AddTerm(algebra.LinearTerm(1, v))
		}
	}
	global := s.CreateVariable(e.Name()+"_global", solver.Continuous, -s.BigM(), s.BigM())

	return &encoder.Encoding{
		InnerMaxObjective: objective,
		GlobalObjective:   global,
		InputVariables:    inputVars,
		Aux:               map[string]interface{}{"paths": e.paths, "commodities": e.commodities},
	}, nil
}

func (e *TrafficOptimal) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	inputs := make(map[int][]float64, len(e.demand))
	var total float64
	for i, d := range e.demand {
		v, ok := res.GetValue(d)
		if !ok {
			return nil, &solver.ContractViolation{Stage: "extract", Message: "demand variable has no value in result"}
		}
		inputs[i] = []float64{v}
	}
	primal := make(map[string]float64)
	for i := range e.flow {
		for p, v := range e.flow[i] {
			val, _ := res.GetValue(v)
			primal[fmt.Sprintf("flow_%d_%d", i, p)] = val
			total += val
		}
	}
	return &encoder.Solution{EncoderName: e.Name(), Inputs: inputs, Primal: primal, GlobalObjective: total}, nil
}

func (e *TrafficOptimal) PrimalVariables() []solver.Variable {
	var out []solver.Variable
	for _, row := range e.flow {
		out = append(out, row...)
	}
	return out
}

func (e *TrafficOptimal) EqualityConstraints() []algebra.Polynomial { return nil }

func (e *TrafficOptimal) InequalityConstraints() []algebra.Polynomial { return e.ineqs }

func pathUsesEdge(p domain.Path, edge domain.Edge) bool {
	for _, e := range p.Edges {
		if e.From == edge.From && e.To == edge.To {
			return true
		}
	}
	return false
}

// sharedOrFreshInput returns pre[i][0] if supplied (forcing shared
// variable identity, §4.3 invariant 1), else creates a fresh continuous
// input variable; it then applies any explicit equality pin from eq[i].
func sharedOrFreshInput(s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, i int, tag string) (solver.Variable, error) {
	var v solver.Variable
	if vs, ok := pre[i]; ok && len(vs) > 0 {
		v = vs[0]
	} else {
		v = s.CreateVariable(tag, solver.Continuous, 0, s.BigM())
	}
	if fixed, ok := eq[i]; ok && len(fixed) > 0 {
		poly := algebra.NewPolynomial(algebra.LinearTerm(1, v), algebra.ConstantTerm(-fixed[0]))
		if _, err := s.AddEqZero(poly); err != nil {
			return solver.Variable{}, err
		}
	}
	return v, nil
}
