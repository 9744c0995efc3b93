package encoders

import (
	"context"
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/rewrite"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// DemandPinningOptions configures DemandPinning.Encode.
type DemandPinningOptions struct {
	K int

	// Threshold is the demand level at or below which a commodity is
	// pinned to its shortest path.
	Threshold float64

	// MaxDistanceHops, if > 0, forbids pinning on a shortest path longer
	// than this many hops — "modified demand pinning" (§4.5).
	MaxDistanceHops int

	// Quantized selects the quantized variant: the <=threshold test is
	// built as a linear selector over Levels' binary level expansion of
	// the demand input, rather than a big-M indicator (§4.5 "Quantized
	// variant encodes the <=threshold test as a linear selector of the
	// input's binary levels").
	Quantized bool
	Levels    domain.LevelSet
	LevelDim  int
}

// DemandPinning is the "demand pinning (indirect)" encoder of §4.5, with
// the "modified" distance-cap variant and the quantized-selector variant
// folded in as Options (the three only differ in how the pin indicator
// is built and whether it is additionally gated by path length).
type DemandPinning struct {
	topo        domain.Topology
	commodities []domain.Commodity
	paths       [][]domain.Path
	flow        [][]solver.Variable
	demand      []solver.Variable
	ineqs       []algebra.Polynomial
	eqs         []algebra.Polynomial
}

func NewDemandPinning(topo domain.Topology) *DemandPinning {
	return &DemandPinning{topo: topo}
}

func (e *DemandPinning) Name() string      { return "demand-pinning" }
func (e *DemandPinning) Feasibility() bool { return false }

func (e *DemandPinning) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	o, ok := opts.(DemandPinningOptions)
	if !ok {
		panic(&solver.ContractViolation{Stage: "encode", Message: "DemandPinning requires DemandPinningOptions"})
	}
	if o.K <= 0 {
		o.K = 2
	}

	e.commodities = e.topo.NodePairs()
	e.paths = make([][]domain.Path, len(e.commodities))
	e.flow = make([][]solver.Variable, len(e.commodities))
	e.demand = make([]solver.Variable, len(e.commodities))
	inputVars := make(encoder.PreInputVariables, len(e.commodities))

	for i, c := range e.commodities {
		d, err := sharedOrFreshInput(s, pre, eq, i, fmt.Sprintf("dp_demand_%d", i))
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
			v := s.CreateVariable(fmt.Sprintf("dp_flow_%d_%d", i, p), solver.Continuous, 0, s.BigM())
			e.flow[i][p] = v
			sumFlow = sumFlow.AddTerm(algebra.LinearTerm(1, v))
		}
		capIneq := sumFlow.AddTerm(algebra.LinearTerm(-1, d))
		if _, err := s.AddLeqZero(capIneq); err != nil {
			return nil, err
		}
		e.ineqs = append(e.ineqs, capIneq)

		pinned, err := e.pinIndicator(s, d, i, o)
		if err != nil {
			return nil, err
		}

		shortestLen := 1 << 30
		if len(paths) > 0 {
			shortestLen = len(paths[0].Edges)
		}
		if o.MaxDistanceHops > 0 && shortestLen > o.MaxDistanceHops {
			// never allowed to pin: the indicator gates no path, and the
			// demand itself stays unrestricted.
			pinned = algebra.Zero()
		}

		// when pinned, every non-shortest path carries zero flow:
		// flow[i][p] - bigM*(1 - pinned) <= 0  <=>  flow[i][p] - bigM + bigM*pinned <= 0
		for p := 1; p < len(e.flow[i]); p++ {
			gate := algebra.NewPolynomial(algebra.LinearTerm(1, e.flow[i][p]), algebra.ConstantTerm(-s.BigM())).
				Add(pinned.Scale(s.BigM()))
			if _, err := s.AddLeqZero(gate); err != nil {
				return nil, err
			}
			e.ineqs = append(e.ineqs, gate)
		}
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

// pinIndicator returns a linear polynomial equal to 1 when demand i
// should be pinned to its shortest path, 0 otherwise.
func (e *DemandPinning) pinIndicator(s *solver.Session, d solver.Variable, i int, o DemandPinningOptions) (algebra.Polynomial, error) {
	if o.Quantized {
		q, err := rewrite.Quantize(s, d, o.LevelDim, o.Levels, false)
		if err != nil {
			return algebra.Polynomial{}, err
		}
		poly := algebra.Zero()
		for lvlIdx, lvl := range q.Levels {
			if lvl <= o.Threshold {
				poly = poly.AddTerm(algebra.LinearTerm(1, q.Selectors[lvlIdx]))
			}
		}
		return poly, nil
	}

	z := s.CreateVariable(fmt.Sprintf("dp_pin_%d", i), solver.Binary, 0, 1)
	// demand - threshold <= bigM*(1-z)  <=>  demand - threshold - bigM + bigM*z <= 0
	upper := algebra.NewPolynomial(
		algebra.LinearTerm(1, d), algebra.ConstantTerm(-o.Threshold-s.BigM()), algebra.LinearTerm(s.BigM(), z),
	)
	if _, err := s.AddLeqZero(upper); err != nil {
		return algebra.Polynomial{}, err
	}
	// threshold - demand <= bigM*z  <=>  threshold - demand - bigM*z <= 0
	lower := algebra.NewPolynomial(
		algebra.LinearTerm(-1, d), algebra.ConstantTerm(o.Threshold), algebra.LinearTerm(-s.BigM(), z),
	)
	if _, err := s.AddLeqZero(lower); err != nil {
		return algebra.Polynomial{}, err
	}
	return algebra.Linear(1, z), nil
}

func (e *DemandPinning) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
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
			primal[fmt.Sprintf("dp_flow_%d_%d", i, p)] = val
			total += val
		}
	}
	return &encoder.Solution{EncoderName: e.Name(), Inputs: inputs, Primal: primal, GlobalObjective: total}, nil
}

func (e *DemandPinning) PrimalVariables() []solver.Variable {
	var out []solver.Variable
	for _, row := range e.flow {
		out = append(out, row...)
	}
	return out
}

func (e *DemandPinning) EqualityConstraints() []algebra.Polynomial { return e.eqs }

func (e *DemandPinning) InequalityConstraints() []algebra.Polynomial { return e.ineqs }
