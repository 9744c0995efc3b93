package localsearch

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// AnnealingOptions configures SimulatedAnnealing.
type AnnealingOptions struct {
	Seed                 Point
	NumNeighbors         int
	Sigma                float64
	InitialTemperature   float64
	Decay                float64
	NumNoIncreaseToReset int
	Timeout              time.Duration
	Rng                  *rand.Rand
	Sink                 solver.ProgressSink
	Logger               *zap.Logger

	// Grey, if non-nil, restricts each step's perturbations to
	// structural near-neighbors: indices sharing a partition with a
	// randomly chosen pivot index, rather than perturbing every
	// dimension freely (§4.8 "grey mode").
	Grey domain.Partitions
}

// AnnealingResult is SimulatedAnnealing's outcome.
type AnnealingResult struct {
	Best  EvalResult
	Steps int
}

// SimulatedAnnealing behaves like HillClimbing but accepts worsening
// moves with probability exp(-delta/T), cools geometrically
// (T *= Decay), and resets T to InitialTemperature whenever
// NumNoIncreaseToReset consecutive steps produce no improvement (§4.8).
func SimulatedAnnealing(ctx context.Context, eval Evaluator, box Box, opts AnnealingOptions) (AnnealingResult, error) {
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	logger := loggerOrNop(opts.Logger)
	noise := distuv.Normal{Mu: 0, Sigma: opts.Sigma, Src: rng}

	current, err := eval.Evaluate(ctx, opts.Seed)
	if err != nil {
		return AnnealingResult{}, err
	}
	recordProgress(opts.Sink, current.Gap)

	result := AnnealingResult{Best: current}
	temperature := opts.InitialTemperature
	noIncreaseStreak := 0
	deadline := time.Now().Add(opts.Timeout)

	for {
		if opts.Timeout > 0 && time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		improvedThisStep := false
		for n := 0; n < opts.NumNeighbors; n++ {
			candidate := perturbGrey(current.Point, noise, box, opts.Grey, rng)
			r, err := eval.Evaluate(ctx, candidate)
			if err != nil {
				logger.Warn("annealing neighbor failed, skipping", zap.Error(err))
				continue
			}
			delta := r.Gap - current.Gap
			accept := delta > 0
			if !accept && temperature > 0 {
				accept = rng.Float64() < math.Exp(delta/temperature)
			}
			if accept {
				current = r
				if delta > 0 {
					improvedThisStep = true
				}
			}
		}
		result.Steps++
		if current.Gap > result.Best.Gap {
			result.Best = current
		}
		recordProgress(opts.Sink, current.Gap)

		if improvedThisStep {
			noIncreaseStreak = 0
		} else {
			noIncreaseStreak++
		}
		if noIncreaseStreak >= opts.NumNoIncreaseToReset && opts.NumNoIncreaseToReset > 0 {
			temperature = opts.InitialTemperature
			noIncreaseStreak = 0
		} else {
			temperature *= opts.Decay
		}
	}
	return result, nil
}

// perturbGrey is perturb restricted to a grey-mode structural
// neighborhood when partitions is non-nil: only indices sharing a
// partition with a randomly chosen pivot index move.
func perturbGrey(p Point, noise distuv.Normal, box Box, partitions domain.Partitions, rng *rand.Rand) Point {
	if partitions == nil {
		return perturb(p, noise, box)
	}
	indices := make([]int, 0, len(p))
	for i := range p {
		indices = append(indices, i)
	}
	if len(indices) == 0 {
		return p.Clone()
	}
	pivot := indices[rng.Intn(len(indices))]
	members := partitions.Members(partitions[pivot])
	moving := make(map[int]bool, len(members))
	for _, m := range members {
		moving[m] = true
	}

	out := make(Point, len(p))
	for i, row := range p {
		if !moving[i] {
			out[i] = append([]float64{}, row...)
			continue
		}
		perturbed := make([]float64, len(row))
		for d, v := range row {
			perturbed[d] = v + noise.Rand()
		}
		out[i] = perturbed
	}
	return box.Clip(out)
}
