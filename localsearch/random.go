package localsearch

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/microsoft/MetaOpt-sub005/solver"
)

// RandomOptions configures Random.
type RandomOptions struct {
	NumTrials int
	Rng       *rand.Rand
	Sink      solver.ProgressSink
	Logger    *zap.Logger
}

// RandomResult is Random's outcome: the best point seen and every
// successful trial's record, in draw order. The records carry no
// timestamp; each trial's timestamp goes to the progress sink (§4.8
// "ordering is recorded with time stamps").
type RandomResult struct {
	Best   EvalResult
	Trials []EvalResult
}

// Random draws NumTrials i.i.d. points from box, evaluates both
// encoders as pure inner solves at each, and reports the best gap seen
// (§4.8).
func Random(ctx context.Context, eval Evaluator, box Box, opts RandomOptions) (RandomResult, error) {
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	logger := loggerOrNop(opts.Logger)

	var result RandomResult
	best := EvalResult{Gap: -1}
	haveBest := false

	for trial := 0; trial < opts.NumTrials; trial++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		x := box.Sample(rng)
		r, err := eval.Evaluate(ctx, x)
		if err != nil {
			logger.Warn("random trial failed, skipping", zap.Int("trial", trial), zap.Error(err))
			continue
		}
		result.Trials = append(result.Trials, r)
		recordProgress(opts.Sink, r.Gap)

		if !haveBest || r.Gap > best.Gap {
			best = r
			haveBest = true
		}
	}
	result.Best = best
	return result, nil
}
