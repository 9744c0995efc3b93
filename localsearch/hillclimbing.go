package localsearch

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/microsoft/MetaOpt-sub005/solver"
)

// HillClimbingOptions configures HillClimbing.
type HillClimbingOptions struct {
	Seed         Point
	NumNeighbors int
	Sigma        float64
	Timeout      time.Duration
	Rng          *rand.Rand
	Sink         solver.ProgressSink
	Logger       *zap.Logger
}

// HillClimbingResult is HillClimbing's outcome.
type HillClimbingResult struct {
	Best  EvalResult
	Steps int
}

// HillClimbing starts at opts.Seed and, at each step, draws
// NumNeighbors Gaussian perturbations (sigma configurable, clipped to
// box), moving to the best neighbor only if it strictly improves;
// stops at Timeout or the first step with no improving neighbor (§4.8).
func HillClimbing(ctx context.Context, eval Evaluator, box Box, opts HillClimbingOptions) (HillClimbingResult, error) {
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	logger := loggerOrNop(opts.Logger)
	noise := distuv.Normal{Mu: 0, Sigma: opts.Sigma, Src: rng}

	current, err := eval.Evaluate(ctx, opts.Seed)
	if err != nil {
		return HillClimbingResult{}, err
	}
	recordProgress(opts.Sink, current.Gap)

	deadline := time.Now().Add(opts.Timeout)
	result := HillClimbingResult{Best: current}

	for {
		if opts.Timeout > 0 && time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		bestNeighbor := current
		improved := false
		for n := 0; n < opts.NumNeighbors; n++ {
			candidate := perturb(current.Point, noise, box)
			r, err := eval.Evaluate(ctx, candidate)
			if err != nil {
				logger.Warn("hill-climbing neighbor failed, skipping", zap.Error(err))
				continue
			}
			if r.Gap > bestNeighbor.Gap {
				bestNeighbor = r
				improved = true
			}
		}
		result.Steps++
		if !improved {
			break
		}
		current = bestNeighbor
		recordProgress(opts.Sink, current.Gap)
		if current.Gap > result.Best.Gap {
			result.Best = current
		}
	}
	return result, nil
}

// perturb draws a Gaussian neighbor of p, clipped to box.
func perturb(p Point, noise distuv.Normal, box Box) Point {
	out := make(Point, len(p))
	for i, row := range p {
		perturbed := make([]float64, len(row))
		for d, v := range row {
			perturbed[d] = v + noise.Rand()
		}
		out[i] = perturbed
	}
	return box.Clip(out)
}
