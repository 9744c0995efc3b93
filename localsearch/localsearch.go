// Package localsearch implements C8, the three input-space baselines
// used when the MILP rewrite is too large or only a lower bound is
// needed quickly: Random, Hill Climbing, and Simulated Annealing
// (§4.8). All three share one evaluation hook (run inner optimal and
// inner heuristic as plain, unrewritten inner solves with the
// candidate input pinned) and one zap-backed progress-logging
// contract.
package localsearch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// Point is one candidate adversarial input: per-index, per-dimension
// values, in the same shape as encoder.InputEqualities.
type Point map[int][]float64

// Clone returns an independent copy of p.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	for i, v := range p {
		out[i] = append([]float64{}, v...)
	}
	return out
}

// Box is an axis-aligned feasible region over the input space, one
// [Lower, Upper] pair per (index, dimension).
type Box struct {
	Lower Point
	Upper Point
}

// Sample draws one i.i.d. uniform point from the box.
func (b Box) Sample(rng *rand.Rand) Point {
	out := make(Point, len(b.Lower))
	for i, lowerRow := range b.Lower {
		upperRow := b.Upper[i]
		row := make([]float64, len(lowerRow))
		for d := range lowerRow {
			lo, hi := lowerRow[d], upperRow[d]
			row[d] = lo + rng.Float64()*(hi-lo)
		}
		out[i] = row
	}
	return out
}

// Clip projects x onto the box, coordinate by coordinate.
func (b Box) Clip(x Point) Point {
	out := make(Point, len(x))
	for i, row := range x {
		lowerRow, upperRow := b.Lower[i], b.Upper[i]
		clipped := make([]float64, len(row))
		for d, v := range row {
			lo, hi := lowerRow[d], upperRow[d]
			switch {
			case v < lo:
				clipped[d] = lo
			case v > hi:
				clipped[d] = hi
			default:
				clipped[d] = v
			}
		}
		out[i] = clipped
	}
	return out
}

// NewBackendFunc constructs a fresh solver.Backend for one evaluation.
// Local search never reuses a session across evaluations: each
// candidate point is a standalone pair of inner solves, not an outer
// MILP (§4.8 "evaluate both encoders as pure inner solves").
type NewBackendFunc func() solver.Backend

// EncoderFactory builds a fresh (optimal, heuristic) pair and their
// Encode-time options. Called once per evaluation so that each
// inner solve gets its own unshared primal variables.
type EncoderFactory func() (optimal, heuristic encoder.Encoder, optimalOpts, heuristicOpts encoder.Options)

// Evaluator runs the shared evaluation hook of §4.8: pin x as an
// explicit input equality against fresh sessions for the optimal and
// heuristic encoders, solve each as a pure inner maximization (no
// outer rewrite), and report the gap between their objectives.
type Evaluator struct {
	NewBackend NewBackendFunc
	Factory    EncoderFactory
}

// EvalResult is one evaluation's outcome.
type EvalResult struct {
	Point        Point
	OptimalObj   float64
	HeuristicObj float64
	Gap          float64
}

// Evaluate runs one pair of inner solves at x.
func (e Evaluator) Evaluate(ctx context.Context, x Point) (EvalResult, error) {
	optimal, heuristic, optimalOpts, heuristicOpts := e.Factory()
	eq := encoder.InputEqualities(x)

	optVal, err := e.solveInner(ctx, optimal, optimalOpts, eq)
	if err != nil {
		return EvalResult{}, fmt.Errorf("evaluate optimal: %w", err)
	}
	heuVal, err := e.solveInner(ctx, heuristic, heuristicOpts, eq)
	if err != nil {
		return EvalResult{}, fmt.Errorf("evaluate heuristic: %w", err)
	}
	return EvalResult{Point: x, OptimalObj: optVal, HeuristicObj: heuVal, Gap: optVal - heuVal}, nil
}

func (e Evaluator) solveInner(ctx context.Context, enc encoder.Encoder, opts encoder.Options, eq encoder.InputEqualities) (float64, error) {
	session := solver.NewSession(e.NewBackend(), nil)
	built, err := enc.Encode(ctx, session, encoder.PreInputVariables{}, eq, opts)
	if err != nil {
		return 0, err
	}
	res, err := session.Maximize(ctx, built.InnerMaxObjective, solver.MaximizeOptions{Reset: true})
	if err != nil {
		return 0, err
	}
	if !res.Status.HasIncumbent() {
		return 0, &solver.SolverStatusUnsupported{Stage: "local-search inner solve", Status: res.Status}
	}
	return res.Objective, nil
}

// recordProgress logs one step to sink, non-blocking per the
// ProgressSink contract.
func recordProgress(sink solver.ProgressSink, objective float64) {
	if sink == nil {
		sink = solver.DiscardSink{}
	}
	sink.Record(solver.ProgressEntry{TimestampMs: time.Now().UnixMilli(), Objective: objective})
}

// loggerOrNop returns logger, or a no-op logger when nil.
func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
