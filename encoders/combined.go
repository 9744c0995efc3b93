package encoders

import (
	"context"
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// Reduction selects how Combined aggregates its sub-encoders' global
// objectives into its own.
type Reduction int

const (
	// Worst takes the minimum of the sub-encoders' objectives — "a
	// product construction that evaluates several heuristic encoders
	// over the same shared inputs and returns the worst of them" (§4.5
	// "Combined heuristics").
	Worst Reduction = iota
	// Average takes the arithmetic mean — "the inner objective is the
	// average... over samples" (§4.5 "Expected POP").
	Average
)

// Combined generalizes "Expected POP" (Average over numSamples POP
// instances) and "combined heuristics" (Worst over arbitrary heuristic
// encoders) into one reducer over an arbitrary slice of sub-encoders,
// per SPEC_FULL.md's supplement.
type Combined struct {
	subs      []encoder.Encoder
	reduction Reduction
	encodings []*encoder.Encoding
	selectors []solver.Variable
	ownEq     []algebra.Polynomial
	ownIneq   []algebra.Polynomial
}

// NewCombined builds a Combined encoder over subs, reduced by reduction.
func NewCombined(subs []encoder.Encoder, reduction Reduction) *Combined {
	return &Combined{subs: subs, reduction: reduction}
}

func (e *Combined) Name() string { return "combined" }

// Feasibility reports true for Worst: selecting the minimizing
// sub-encoder is a disjunctive, non-convex construct (it introduces a
// binary argmin selector), so Combined-with-Worst gets only the
// feasibility rewrite, same as any other non-convex heuristic (§4.4.3).
// Average is a pure linear aggregate and stays convex.
func (e *Combined) Feasibility() bool { return e.reduction == Worst }

func (e *Combined) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	if len(e.subs) == 0 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "Combined requires at least one sub-encoder"})
	}
	e.encodings = make([]*encoder.Encoding, len(e.subs))
	mergedInputs := make(encoder.PreInputVariables)
	for idx, sub := range e.subs {
		enc, err := sub.Encode(ctx, s, pre, eq, opts)
		if err != nil {
			return nil, err
		}
		e.encodings[idx] = enc
		for k, v := range enc.InputVariables {
			if _, exists := mergedInputs[k]; !exists {
				mergedInputs[k] = v
			}
		}
	}

	global := s.CreateVariable(e.Name()+"_global", solver.Continuous, -s.BigM(), s.BigM())

	switch e.reduction {
	case Average:
		sum := algebra.Zero()
		for _, enc := range e.encodings {
			sum = sum.AddTerm(algebra.LinearTerm(1, enc.GlobalObjective))
		}
		n := 1.0 / float64(len(e.encodings))
		poly := sum.Scale(n).AddTerm(algebra.LinearTerm(-1, global))
		if _, err := s.AddEqZero(poly); err != nil {
			return nil, err
		}
		e.ownEq = append(e.ownEq, poly)

	case Worst:
		e.selectors = make([]solver.Variable, len(e.encodings))
		selSum := algebra.Zero()
		for idx, enc := range e.encodings {
			z := s.CreateVariable(fmt.Sprintf("combined_sel%d", idx), solver.Binary, 0, 1)
			e.selectors[idx] = z
			selSum = selSum.AddTerm(algebra.LinearTerm(1, z))

			upper := algebra.NewPolynomial(algebra.LinearTerm(1, global), algebra.LinearTerm(-1, enc.GlobalObjective))
			if _, err := s.AddLeqZero(upper); err != nil {
				return nil, err
			}
			e.ownIneq = append(e.ownIneq, upper)

			// global >= sub.global - bigM*(1-z)
			tight := algebra.NewPolynomial(
				algebra.LinearTerm(1, enc.GlobalObjective), algebra.LinearTerm(-1, global),
				algebra.ConstantTerm(-s.BigM()), algebra.LinearTerm(s.BigM(), z),
			)
			if _, err := s.AddLeqZero(tight); err != nil {
				return nil, err
			}
			e.ownIneq = append(e.ownIneq, tight)
		}
		selEq := selSum.AddTerm(algebra.ConstantTerm(-1))
		if _, err := s.AddEqZero(selEq); err != nil {
			return nil, err
		}
		e.ownEq = append(e.ownEq, selEq)
	}

	return &encoder.Encoding{
		InnerMaxObjective: algebra.Linear(1, global),
		GlobalObjective:   global,
		InputVariables:    mergedInputs,
		Aux:               map[string]interface{}{"subEncodings": e.encodings},
	}, nil
}

func (e *Combined) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	inputs := make(map[int][]float64)
	primal := make(map[string]float64)
	for idx, sub := range e.subs {
		sol, err := sub.ExtractSolution(res)
		if err != nil {
			return nil, err
		}
		for k, v := range sol.Inputs {
			inputs[k] = v
		}
		for k, v := range sol.Primal {
			primal[fmt.Sprintf("sub%d_%s", idx, k)] = v
		}
	}
	global, _ := res.GetValue(e.encodings[0].GlobalObjective)
	switch e.reduction {
	case Average:
		var sum float64
		for _, enc := range e.encodings {
			v, _ := res.GetValue(enc.GlobalObjective)
			sum += v
		}
		global = sum / float64(len(e.encodings))
	case Worst:
		global = 1e308
		for _, enc := range e.encodings {
			v, _ := res.GetValue(enc.GlobalObjective)
			if v < global {
				global = v
			}
		}
	}
	return &encoder.Solution{EncoderName: e.Name(), Inputs: inputs, Primal: primal, GlobalObjective: global}, nil
}

func (e *Combined) PrimalVariables() []solver.Variable {
	var out []solver.Variable
	for _, sub := range e.subs {
		out = append(out, sub.PrimalVariables()...)
	}
	return out
}

func (e *Combined) EqualityConstraints() []algebra.Polynomial {
	var out []algebra.Polynomial
	for _, sub := range e.subs {
		out = append(out, sub.EqualityConstraints()...)
	}
	return append(out, e.ownEq...)
}

func (e *Combined) InequalityConstraints() []algebra.Polynomial {
	var out []algebra.Polynomial
	for _, sub := range e.subs {
		out = append(out, sub.InequalityConstraints()...)
	}
	return append(out, e.ownIneq...)
}
