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

// FFDVariant selects the weight function FFD.Encode uses to derive each
// item's synthetic packing weight from its (possibly multi-dimensional)
// size input (§4.5).
type FFDVariant int

const (
	// FF uses the raw size directly; items must be single-dimensional.
	FF FFDVariant = iota
	// FFDSum sums sizes across dimensions.
	FFDSum
	// FFDProd multiplies sizes across dimensions (requires continuous x
	// continuous McCormick linearization, §9).
	FFDProd
	// FFDDiv sums sizes normalized by each dimension's max capacity.
	FFDDiv
)

// FFDOptions configures FFD.Encode.
type FFDOptions struct {
	Bins     domain.Bins
	NumItems int
	Variant  FFDVariant
}

// FFD is the first-fit-decreasing family of non-convex heuristic
// encoders (§4.5): items are placed, in index order, into the
// lowest-indexed bin with room for them. Because "lowest-indexed bin
// with room" is a disjunctive, history-dependent choice, FFD is a
// feasibility-only encoder — it receives only the rewrite.Feasibility
// rewrite (§4.4.3), not KKT or primal-dual.
type FFD struct {
	bins       domain.Bins
	numBins    int
	dims       int
	variant    FFDVariant
	size       [][]solver.Variable
	weight     []solver.Variable
	capacity   []float64
	placed     [][]solver.Variable
	infeasible [][]solver.Variable
	used       []solver.Variable
	eqs        []algebra.Polynomial
	ineqs      []algebra.Polynomial
}

func NewFFD() *FFD { return &FFD{} }

func (e *FFD) Name() string {
	switch e.variant {
	case FFDSum:
		return "ffd-sum"
	case FFDProd:
		return "ffd-prod"
	case FFDDiv:
		return "ffd-div"
	default:
		return "first-fit"
	}
}

func (e *FFD) Feasibility() bool { return true }

func (e *FFD) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	o, ok := opts.(FFDOptions)
	if !ok || o.Bins == nil || o.NumItems <= 0 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "FFD requires FFDOptions{Bins, NumItems}"})
	}
	e.bins = o.Bins
	e.numBins = o.Bins.NumBins()
	e.dims = o.Bins.Dimensions()
	e.variant = o.Variant
	if e.variant == FF && e.dims != 1 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "FF variant requires single-dimensional bins"})
	}
	if e.variant == FFDProd && e.dims < 2 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "FFDProd variant requires at least two dimensions"})
	}

	inputVars := make(encoder.PreInputVariables, o.NumItems)
	e.size = make([][]solver.Variable, o.NumItems)
	e.weight = make([]solver.Variable, o.NumItems)

	for i := 0; i < o.NumItems; i++ {
		e.size[i] = make([]solver.Variable, e.dims)
		for d := 0; d < e.dims; d++ {
			v, err := sharedOrFreshInputDim(s, pre, eq, i, d, fmt.Sprintf("ffd_size_%d_%d", i, d), e.bins.MaxCapacity(d))
			if err != nil {
				return nil, err
			}
			e.size[i][d] = v
		}
		inputVars[i] = append([]solver.Variable{}, e.size[i]...)

		w, err := e.weightOf(s, i)
		if err != nil {
			return nil, err
		}
		e.weight[i] = w
	}

	// §4.5: "sorting is imposed by a monotonicity constraint on the
	// chosen weight function" — the first-fit cascade below assumes
	// items already arrive in decreasing weight order, so that order
	// must be forced on the adversarial weight variables themselves,
	// not assumed of them.
	for i := 0; i < o.NumItems-1; i++ {
		ordering := algebra.NewPolynomial(algebra.LinearTerm(1, e.weight[i+1]), algebra.LinearTerm(-1, e.weight[i]))
		if _, err := s.AddLeqZero(ordering); err != nil {
			return nil, err
		}
		e.ineqs = append(e.ineqs, ordering)
	}

	e.capacity = make([]float64, e.numBins)
	for b := 0; b < e.numBins; b++ {
		e.capacity[b] = e.capacityOf(b)
	}

	e.placed = make([][]solver.Variable, o.NumItems)
	e.infeasible = make([][]solver.Variable, o.NumItems)
	for i := 0; i < o.NumItems; i++ {
		e.placed[i] = make([]solver.Variable, e.numBins)
		e.infeasible[i] = make([]solver.Variable, e.numBins)
		placementSum := algebra.Zero()
		for b := 0; b < e.numBins; b++ {
			load, err := e.loadBefore(s, i, b)
			if err != nil {
				return nil, err
			}
			infeasible := s.CreateVariable(fmt.Sprintf("ffd_infeasible_%d_%d", i, b), solver.Binary, 0, 1)
			e.infeasible[i][b] = infeasible

			// cap - load - weight < 0  =>  infeasible == 1
			slack := algebra.NewPolynomial(algebra.ConstantTerm(e.capacity[b]), algebra.LinearTerm(-1, e.weight[i])).Add(load.Negate())
			forceOne := slack.Negate().AddTerm(algebra.LinearTerm(-s.BigM(), infeasible))
			if _, err := s.AddLeqZero(forceOne); err != nil {
				return nil, err
			}
			e.ineqs = append(e.ineqs, forceOne)
			// cap - load - weight >= 0  =>  infeasible == 0
			forceZero := slack.AddTerm(algebra.ConstantTerm(-s.BigM())).AddTerm(algebra.LinearTerm(s.BigM(), infeasible))
			if _, err := s.AddLeqZero(forceZero); err != nil {
				return nil, err
			}
			e.ineqs = append(e.ineqs, forceZero)

			p := s.CreateVariable(fmt.Sprintf("ffd_placed_%d_%d", i, b), solver.Binary, 0, 1)
			e.placed[i][b] = p
			placementSum = placementSum.AddTerm(algebra.LinearTerm(1, p))

			// p <= 1 - infeasible[i][b]: item only placed in a bin that
			// actually has room for it.
			feasibleGate := algebra.NewPolynomial(algebra.LinearTerm(1, p), algebra.LinearTerm(1, infeasible), algebra.ConstantTerm(-1))
			if _, err := s.AddLeqZero(feasibleGate); err != nil {
				return nil, err
			}
			e.ineqs = append(e.ineqs, feasibleGate)

			for prev := 0; prev < b; prev++ {
				// p <= infeasible[i][prev]: every earlier bin must have
				// been full before item i is allowed to skip to b.
				skipGate := algebra.NewPolynomial(algebra.LinearTerm(1, p), algebra.LinearTerm(-1, e.infeasible[i][prev]))
				if _, err := s.AddLeqZero(skipGate); err != nil {
					return nil, err
				}
				e.ineqs = append(e.ineqs, skipGate)
			}
		}
		exactlyOne := placementSum.AddTerm(algebra.ConstantTerm(-1))
		if _, err := s.AddEqZero(exactlyOne); err != nil {
			return nil, err
		}
		e.eqs = append(e.eqs, exactlyOne)
	}

	e.used = make([]solver.Variable, e.numBins)
	for b := 0; b < e.numBins; b++ {
		e.used[b] = s.CreateVariable(fmt.Sprintf("ffd_used_%d", b), solver.Binary, 0, 1)
	}
	for i := 0; i < o.NumItems; i++ {
		for b, p := range e.placed[i] {
			ineq := algebra.NewPolynomial(algebra.LinearTerm(1, p), algebra.LinearTerm(-1, e.used[b]))
			if _, err := s.AddLeqZero(ineq); err != nil {
				return nil, err
			}
			e.ineqs = append(e.ineqs, ineq)
		}
	}

	objective := algebra.Zero()
	for b := 0; b < e.numBins; b++ {
		objective = objective.AddTerm(algebra.LinearTerm(-1, e.used[b]))
	}
	global := s.CreateVariable(e.Name()+"_global", solver.Continuous, -s.BigM(), s.BigM())

	return &encoder.Encoding{
		InnerMaxObjective: objective,
		GlobalObjective:   global,
		InputVariables:    inputVars,
		Aux:               map[string]interface{}{"numBins": e.numBins},
	}, nil
}

// loadBefore returns a linear polynomial equal to the total weight
// already committed to bin b by items 0..i-1, via the shared
// binary-times-continuous linearizer.
func (e *FFD) loadBefore(s *solver.Session, i, b int) (algebra.Polynomial, error) {
	var terms []rewrite.ProductTerm
	for prev := 0; prev < i; prev++ {
		_, ub := e.weight[prev].Bounds()
		terms = append(terms, rewrite.ProductTerm{
			Coefficient:  1,
			Binary:       e.placed[prev][b],
			Continuous:   e.weight[prev],
			ContinuousUB: ub,
		})
	}
	if len(terms) == 0 {
		return algebra.Zero(), nil
	}
	return rewrite.LinearizeProductSum(s, terms)
}

// weightOf materializes item i's synthetic packing weight as a fresh
// variable equal to the variant's weight function of its sizes.
func (e *FFD) weightOf(s *solver.Session, i int) (solver.Variable, error) {
	switch e.variant {
	case FF:
		return e.size[i][0], nil
	case FFDSum, FFDDiv:
		var ub float64
		poly := algebra.Zero()
		for d := 0; d < e.dims; d++ {
			if e.variant == FFDDiv {
				poly = poly.AddTerm(algebra.LinearTerm(1/e.bins.MaxCapacity(d), e.size[i][d]))
				ub += 1
			} else {
				poly = poly.AddTerm(algebra.LinearTerm(1, e.size[i][d]))
				ub += e.bins.MaxCapacity(d)
			}
		}
		w := s.CreateVariable(fmt.Sprintf("ffd_weight_%d", i), solver.Continuous, 0, ub)
		eqn := poly.AddTerm(algebra.LinearTerm(-1, w))
		if _, err := s.AddEqZero(eqn); err != nil {
			return solver.Variable{}, err
		}
		e.eqs = append(e.eqs, eqn)
		return w, nil
	case FFDProd:
		prod := e.size[i][0]
		lower, upper := prod.Bounds()
		for d := 1; d < e.dims; d++ {
			yLower, yUpper := e.size[i][d].Bounds()
			next, err := continuousProduct(s, prod, e.size[i][d], lower, upper, yLower, yUpper)
			if err != nil {
				return solver.Variable{}, err
			}
			prod = next
			lower, upper = prod.Bounds()
		}
		return prod, nil
	default:
		panic(&solver.ContractViolation{Stage: "encode", Message: "unknown FFD variant"})
	}
}

func (e *FFD) capacityOf(b int) float64 {
	switch e.variant {
	case FF:
		return e.bins.Capacity(b, 0)
	case FFDProd:
		cap := 1.0
		for d := 0; d < e.dims; d++ {
			cap *= e.bins.Capacity(b, d)
		}
		return cap
	case FFDDiv:
		var cap float64
		for d := 0; d < e.dims; d++ {
			cap += e.bins.Capacity(b, d) / e.bins.MaxCapacity(d)
		}
		return cap
	default: // FFDSum
		var cap float64
		for d := 0; d < e.dims; d++ {
			cap += e.bins.Capacity(b, d)
		}
		return cap
	}
}

// continuousProduct returns z == x*y via the relaxed McCormick envelope
// for two bounded continuous factors (not exact, unlike the binary x
// continuous case elsewhere in this package, since neither factor is
// discrete here).
func continuousProduct(s *solver.Session, x, y solver.Variable, xLower, xUpper, yLower, yUpper float64) (solver.Variable, error) {
	zLower, zUpper := xLower*yLower, xLower*yLower
	for _, v := range []float64{xLower * yUpper, xUpper * yLower, xUpper * yUpper} {
		if v < zLower {
			zLower = v
		}
		if v > zUpper {
			zUpper = v
		}
	}
	z := s.CreateVariable(fmt.Sprintf("%s_x_%s", x.Tag(), y.Tag()), solver.Continuous, zLower, zUpper)
	// z >= xLower*y + yLower*x - xLower*yLower
	under1 := algebra.NewPolynomial(
		algebra.LinearTerm(-xLower, y), algebra.LinearTerm(-yLower, x), algebra.LinearTerm(1, z), algebra.ConstantTerm(xLower*yLower),
	)
	if _, err := s.AddLeqZero(under1); err != nil {
		return solver.Variable{}, err
	}
	// z >= xUpper*y + yUpper*x - xUpper*yUpper
	under2 := algebra.NewPolynomial(
		algebra.LinearTerm(-xUpper, y), algebra.LinearTerm(-yUpper, x), algebra.LinearTerm(1, z), algebra.ConstantTerm(xUpper*yUpper),
	)
	if _, err := s.AddLeqZero(under2); err != nil {
		return solver.Variable{}, err
	}
	// z <= xUpper*y + yLower*x - xUpper*yLower
	over1 := algebra.NewPolynomial(
		algebra.LinearTerm(xUpper, y), algebra.LinearTerm(yLower, x), algebra.LinearTerm(-1, z), algebra.ConstantTerm(-xUpper*yLower),
	)
	if _, err := s.AddLeqZero(over1); err != nil {
		return solver.Variable{}, err
	}
	// z <= xLower*y + yUpper*x - xLower*yUpper
	over2 := algebra.NewPolynomial(
		algebra.LinearTerm(xLower, y), algebra.LinearTerm(yUpper, x), algebra.LinearTerm(-1, z), algebra.ConstantTerm(-xLower*yUpper),
	)
	if _, err := s.AddLeqZero(over2); err != nil {
		return solver.Variable{}, err
	}
	return z, nil
}

func (e *FFD) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	inputs := make(map[int][]float64, len(e.size))
	for i, row := range e.size {
		vals := make([]float64, len(row))
		for d, v := range row {
			vals[d], _ = res.GetValue(v)
		}
		inputs[i] = vals
	}
	primal := make(map[string]float64)
	var binsUsed float64
	for b, u := range e.used {
		v, _ := res.GetValue(u)
		primal[fmt.Sprintf("used_%d", b)] = v
		binsUsed += v
	}
	return &encoder.Solution{EncoderName: e.Name(), Inputs: inputs, Primal: primal, GlobalObjective: -binsUsed}, nil
}

func (e *FFD) PrimalVariables() []solver.Variable {
	var out []solver.Variable
	for _, row := range e.placed {
		out = append(out, row...)
	}
	for _, row := range e.infeasible {
		out = append(out, row...)
	}
	out = append(out, e.used...)
	out = append(out, e.weight...)
	return out
}

func (e *FFD) EqualityConstraints() []algebra.Polynomial { return e.eqs }

func (e *FFD) InequalityConstraints() []algebra.Polynomial { return e.ineqs }
