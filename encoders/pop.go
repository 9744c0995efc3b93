package encoders

import (
	"context"
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// POPOptions configures POPPartitioned.Encode.
type POPOptions struct {
	K             int
	NumPartitions int
	Partitions    domain.Partitions
}

// POPPartitioned is the "POP partitioned" heuristic encoder of §4.5:
// each edge's capacity is divided by NumPartitions and each commodity is
// restricted to the capacity share of its assigned partition, per an
// externally supplied domain.Partitions map.
type POPPartitioned struct {
	topo        domain.Topology
	commodities []domain.Commodity
	paths       [][]domain.Path
	flow        [][]solver.Variable
	demand      []solver.Variable
	ineqs       []algebra.Polynomial
}

func NewPOPPartitioned(topo domain.Topology) *POPPartitioned {
	return &POPPartitioned{topo: topo}
}

func (e *POPPartitioned) Name() string      { return "traffic-pop-partitioned" }
func (e *POPPartitioned) Feasibility() bool { return false }

func (e *POPPartitioned) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	o, ok := opts.(POPOptions)
	if !ok || o.NumPartitions <= 0 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "POPPartitioned requires POPOptions with NumPartitions > 0"})
	}
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
			v := s.CreateVariable(fmt.Sprintf("pop_flow_%d_%d", i, p), solver.Continuous, 0, s.BigM())
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
		share := edgeEnt.Capacity / float64(o.NumPartitions)
		for part := 0; part < o.NumPartitions; part++ {
			partitionSum := algebra.Zero()
			any := false
			for i := range e.commodities {
				if o.Partitions[i] != part {
					continue
				}
				for p, path := range e.paths[i] {
					if pathUsesEdge(path, edgeEnt) {
						partitionSum = partitionSum.AddTerm(algebra.LinearTerm(1, e.flow[i][p]))
						any = true
					}
				}
			}
			if !any {
				continue
			}
			ineq := partitionSum.AddTerm(algebra.ConstantTerm(-share))
			if _, err := s.AddLeqZero(ineq); err != nil {
				return nil, err
			}
			e.ineqs = append(e.ineqs, ineq)
		}
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

func (e *POPPartitioned) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
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
			primal[fmt.Sprintf("pop_flow_%d_%d", i, p)] = val
			total += val
		}
	}
	return &encoder.Solution{EncoderName: e.Name(), Inputs: inputs, Primal: primal, GlobalObjective: total}, nil
}

func (e *POPPartitioned) PrimalVariables() []solver.Variable {
	var out []solver.Variable
	for _, row := range e.flow {
		out = append(out, row...)
	}
	return out
}

func (e *POPPartitioned) EqualityConstraints() []algebra.Polynomial { return nil }

func (e *POPPartitioned) InequalityConstraints() []algebra.Polynomial { return e.ineqs }
