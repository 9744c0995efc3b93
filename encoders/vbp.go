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

// VBPOptions configures VectorBinPacking.Encode.
type VBPOptions struct {
	Bins     domain.Bins
	NumItems int
}

// VectorBinPacking is the vector-bin-packing optimal encoder of §4.5:
// items with per-dimension sizes placed in bins, one linear capacity
// constraint per bin per dimension, objective is bins used (as a
// maximization of its negation, since the encoder contract maximizes).
// Symmetry is broken by restricting item i to bins <= i.
type VectorBinPacking struct {
	bins    domain.Bins
	numBins int
	dims    int
	size    [][]solver.Variable // size[i][d]
	placed  [][]solver.Variable // placed[i][b], nil for b > i
	used    []solver.Variable
	eqs     []algebra.Polynomial
	ineqs   []algebra.Polynomial
}

func NewVectorBinPacking() *VectorBinPacking { return &VectorBinPacking{} }

func (e *VectorBinPacking) Name() string      { return "vbp-optimal" }
func (e *VectorBinPacking) Feasibility() bool { return false }

func (e *VectorBinPacking) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	o, ok := opts.(VBPOptions)
	if !ok || o.Bins == nil || o.NumItems <= 0 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "VectorBinPacking requires VBPOptions{Bins, NumItems}"})
	}
	e.bins = o.Bins
	e.numBins = o.Bins.NumBins()
	e.dims = o.Bins.Dimensions()

	inputVars := make(encoder.PreInputVariables, o.NumItems)
	e.size = make([][]solver.Variable, o.NumItems)
	e.placed = make([][]solver.Variable, o.NumItems)

	for i := 0; i < o.NumItems; i++ {
		e.size[i] = make([]solver.Variable, e.dims)
		for d := 0; d < e.dims; d++ {
			v, err := sharedOrFreshInputDim(s, pre, eq, i, d, fmt.Sprintf("vbp_size_%d_%d", i, d), e.bins.MaxCapacity(d))
			if err != nil {
				return nil, err
			}
			e.size[i][d] = v
		}
		inputVars[i] = append([]solver.Variable{}, e.size[i]...)

		numBinChoices := i + 1
		if numBinChoices > e.numBins {
			numBinChoices = e.numBins
		}
		e.placed[i] = make([]solver.Variable, numBinChoices)
		placementSum := algebra.Zero()
		for b := 0; b < numBinChoices; b++ {
			p := s.CreateVariable(fmt.Sprintf("vbp_placed_%d_%d", i, b), solver.Binary, 0, 1)
			e.placed[i][b] = p
			placementSum = placementSum.AddTerm(algebra.LinearTerm(1, p))
		}
		exactlyOne := placementSum.AddTerm(algebra.ConstantTerm(-1))
		if _, err := s.AddEqZero(exactlyOne); err != nil {
			return nil, err
		}
		e.eqs = append(e.eqs, exactlyOne)
	}

	e.used = make([]solver.Variable, e.numBins)
	for b := 0; b < e.numBins; b++ {
		e.used[b] = s.CreateVariable(fmt.Sprintf("vbp_used_%d", b), solver.Binary, 0, 1)
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

	for b := 0; b < e.numBins; b++ {
		for d := 0; d < e.dims; d++ {
			var terms []rewrite.ProductTerm
			for i := 0; i < o.NumItems; i++ {
				if b >= len(e.placed[i]) {
					continue
				}
				terms = append(terms, rewrite.ProductTerm{
					Coefficient:  1,
					Binary:       e.placed[i][b],
					Continuous:   e.size[i][d],
					ContinuousUB: e.bins.MaxCapacity(d),
				})
			}
			if len(terms) == 0 {
				continue
			}
			usage, err := rewrite.LinearizeProductSum(s, terms)
			if err != nil {
				return nil, err
			}
			ineq := usage.AddTerm(algebra.ConstantTerm(-e.bins.Capacity(b, d)))
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
		Aux:               map[string]interface{}{"numBins": e.numBins, "dims": e.dims},
	}, nil
}

func (e *VectorBinPacking) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
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

func (e *VectorBinPacking) PrimalVariables() []solver.Variable {
	var out []solver.Variable
	for _, row := range e.placed {
		out = append(out, row...)
	}
	out = append(out, e.used...)
	return out
}

func (e *VectorBinPacking) EqualityConstraints() []algebra.Polynomial { return e.eqs }

func (e *VectorBinPacking) InequalityConstraints() []algebra.Polynomial { return e.ineqs }

// sharedOrFreshInputDim is sharedOrFreshInput generalized to a
// multi-dimensional input (one Variable per dimension, keyed by (index,
// dim) inside pre/eq's per-index slice).
func sharedOrFreshInputDim(s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, index, dim int, tag string, upperBound float64) (solver.Variable, error) {
	var v solver.Variable
	if vs, ok := pre[index]; ok && dim < len(vs) {
		v = vs[dim]
	} else {
		v = s.CreateVariable(tag, solver.Continuous, 0, upperBound)
	}
	if fixed, ok := eq[index]; ok && dim < len(fixed) {
		poly := algebra.NewPolynomial(algebra.LinearTerm(1, v), algebra.ConstantTerm(-fixed[dim]))
		if _, err := s.AddEqZero(poly); err != nil {
			return solver.Variable{}, err
		}
	}
	return v, nil
}
