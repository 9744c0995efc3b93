package localsearch_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/localsearch"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
)

// maxEncoder/halfEncoder mirror the pair used elsewhere to exercise the
// shared bilevel machinery: optimal maximizes y<=b, heuristic only
// reaches half of b. Evaluator solves each as a pure inner maximization
// with b pinned, so Gap = 0.5*b for any pinned x.
type maxEncoder struct {
	y, b solver.Variable
}

func (e *maxEncoder) Name() string      { return "max" }
func (e *maxEncoder) Feasibility() bool { return false }

func (e *maxEncoder) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	e.b = s.CreateVariable("b", solver.Continuous, 0, 10)
	e.y = s.CreateVariable("y", solver.Continuous, 0, 10)
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.LinearTerm(-1, e.b))); err != nil {
		return nil, err
	}
	if vals, ok := eq[0]; ok {
		if _, err := s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, e.b), algebra.ConstantTerm(-vals[0]))); err != nil {
			return nil, err
		}
	}
	return &encoder.Encoding{InnerMaxObjective: algebra.Linear(1, e.y), InputVariables: encoder.PreInputVariables{0: {e.b}}}, nil
}

func (e *maxEncoder) ExtractSolution(res solver.Result) (*encoder.Solution, error) { return nil, nil }
func (e *maxEncoder) PrimalVariables() []solver.Variable                          { return []solver.Variable{e.y} }
func (e *maxEncoder) EqualityConstraints() []algebra.Polynomial                   { return nil }
func (e *maxEncoder) InequalityConstraints() []algebra.Polynomial                 { return nil }

type halfEncoder struct {
	y, b solver.Variable
}

func (e *halfEncoder) Name() string      { return "half" }
func (e *halfEncoder) Feasibility() bool { return true }

func (e *halfEncoder) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	e.b = s.CreateVariable("b", solver.Continuous, 0, 10)
	e.y = s.CreateVariable("y", solver.Continuous, 0, 10)
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.LinearTerm(-0.5, e.b))); err != nil {
		return nil, err
	}
	if vals, ok := eq[0]; ok {
		if _, err := s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, e.b), algebra.ConstantTerm(-vals[0]))); err != nil {
			return nil, err
		}
	}
	return &encoder.Encoding{InnerMaxObjective: algebra.Linear(1, e.y), InputVariables: encoder.PreInputVariables{0: {e.b}}}, nil
}

func (e *halfEncoder) ExtractSolution(res solver.Result) (*encoder.Solution, error) { return nil, nil }
func (e *halfEncoder) PrimalVariables() []solver.Variable                          { return []solver.Variable{e.y} }
func (e *halfEncoder) EqualityConstraints() []algebra.Polynomial                   { return nil }
func (e *halfEncoder) InequalityConstraints() []algebra.Polynomial                 { return nil }

func newEvaluator() localsearch.Evaluator {
	return localsearch.Evaluator{
		NewBackend: func() solver.Backend { return milp.NewBackend(nil) },
		Factory: func() (encoder.Encoder, encoder.Encoder, encoder.Options, encoder.Options) {
			return &maxEncoder{}, &halfEncoder{}, nil, nil
		},
	}
}

func TestEvaluator_EvaluatesBothEncodersAtThePinnedPoint(t *testing.T) {
	eval := newEvaluator()
	res, err := eval.Evaluate(context.Background(), localsearch.Point{0: {4}})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.OptimalObj, 1e-6)
	assert.InDelta(t, 2.0, res.HeuristicObj, 1e-6)
	assert.InDelta(t, 2.0, res.Gap, 1e-6)
}

func box() localsearch.Box {
	return localsearch.Box{Lower: localsearch.Point{0: {0}}, Upper: localsearch.Point{0: {10}}}
}

func TestRandom_ReturnsBestOfAllTrials(t *testing.T) {
	eval := newEvaluator()
	opts := localsearch.RandomOptions{NumTrials: 8, Rng: rand.New(rand.NewSource(7))}

	res, err := localsearch.Random(context.Background(), eval, box(), opts)
	require.NoError(t, err)
	require.Len(t, res.Trials, 8)
	for _, tr := range res.Trials {
		assert.LessOrEqual(t, tr.Gap, res.Best.Gap+1e-9)
		assert.InDelta(t, tr.Point[0][0]*0.5, tr.Gap, 1e-6)
	}
}

func TestHillClimbing_NeverRegressesFromTheSeed(t *testing.T) {
	eval := newEvaluator()
	seed := localsearch.Point{0: {1}}
	opts := localsearch.HillClimbingOptions{
		Seed: seed, NumNeighbors: 10, Sigma: 5, Timeout: 20 * time.Millisecond,
		Rng: rand.New(rand.NewSource(3)),
	}

	res, err := localsearch.HillClimbing(context.Background(), eval, box(), opts)
	require.NoError(t, err)
	// the seed's own gap is 0.5*1=0.5; hill climbing only moves on
	// strict improvement, and the achievable gap is capped at 0.5*10=5.
	assert.GreaterOrEqual(t, res.Best.Gap, 0.5-1e-9)
	assert.LessOrEqual(t, res.Best.Gap, 5.0+1e-9)
}

func TestSimulatedAnnealing_StaysWithinTheFeasibleGapRange(t *testing.T) {
	eval := newEvaluator()
	seed := localsearch.Point{0: {1}}
	opts := localsearch.AnnealingOptions{
		Seed: seed, NumNeighbors: 10, Sigma: 5,
		InitialTemperature: 1, Decay: 0.9, NumNoIncreaseToReset: 3,
		Timeout: 20 * time.Millisecond, Rng: rand.New(rand.NewSource(11)),
	}

	res, err := localsearch.SimulatedAnnealing(context.Background(), eval, box(), opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Best.Gap, 0.0)
	assert.LessOrEqual(t, res.Best.Gap, 5.0+1e-9)
}

func TestPoint_CloneIsIndependent(t *testing.T) {
	p := localsearch.Point{0: {1, 2}}
	clone := p.Clone()
	clone[0][0] = 99
	assert.Equal(t, 1.0, p[0][0])
}
