package bilevel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/bilevel"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
)

// maxEncoder maximizes y subject to y <= b, where b is the single shared
// input variable. A convex encoder: exercised under both KKT and
// primal-dual rewrites.
type maxEncoder struct {
	y, b solver.Variable
	enc  *encoder.Encoding
}

func (e *maxEncoder) Name() string      { return "max" }
func (e *maxEncoder) Feasibility() bool { return false }

func (e *maxEncoder) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	if vs, ok := pre[0]; ok {
		e.b = vs[0]
	} else {
		e.b = s.CreateVariable("b", solver.Continuous, 0, 10)
	}
	e.y = s.CreateVariable("y", solver.Continuous, 0, 10)
	ineq := algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.LinearTerm(-1, e.b))
	if _, err := s.AddLeqZero(ineq); err != nil {
		return nil, err
	}
	if vals, ok := eq[0]; ok {
		if _, err := s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, e.b), algebra.ConstantTerm(-vals[0]))); err != nil {
			return nil, err
		}
	}
	global := s.CreateVariable("max_global", solver.Continuous, -s.BigM(), s.BigM())
	e.enc = &encoder.Encoding{
		InnerMaxObjective: algebra.Linear(1, e.y),
		GlobalObjective:   global,
		InputVariables:    encoder.PreInputVariables{0: {e.b}},
	}
	return e.enc, nil
}

func (e *maxEncoder) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	yVal, _ := res.GetValue(e.y)
	bVal, _ := res.GetValue(e.b)
	gVal, _ := res.GetValue(e.enc.GlobalObjective)
	return &encoder.Solution{EncoderName: e.Name(), Inputs: map[int][]float64{0: {bVal}}, Primal: map[string]float64{"y": yVal}, GlobalObjective: gVal}, nil
}

func (e *maxEncoder) PrimalVariables() []solver.Variable         { return []solver.Variable{e.y} }
func (e *maxEncoder) EqualityConstraints() []algebra.Polynomial  { return nil }
func (e *maxEncoder) InequalityConstraints() []algebra.Polynomial {
	return []algebra.Polynomial{algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.LinearTerm(-1, e.b))}
}

// halfEncoder is a feasibility-only heuristic stand-in: it pins its
// output to half of the shared input, modeling a heuristic that
// systematically leaves half the achievable value on the table.
type halfEncoder struct {
	y, b solver.Variable
	enc  *encoder.Encoding
}

func (e *halfEncoder) Name() string      { return "half" }
func (e *halfEncoder) Feasibility() bool { return true }

func (e *halfEncoder) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	if vs, ok := pre[0]; ok {
		e.b = vs[0]
	} else {
		e.b = s.CreateVariable("b_heu", solver.Continuous, 0, 10)
	}
	e.y = s.CreateVariable("y_heu", solver.Continuous, 0, 10)
	eqn := algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.LinearTerm(-0.5, e.b))
	if _, err := s.AddEqZero(eqn); err != nil {
		return nil, err
	}
	global := s.CreateVariable("half_global", solver.Continuous, -s.BigM(), s.BigM())
	e.enc = &encoder.Encoding{
		InnerMaxObjective: algebra.Linear(1, e.y),
		GlobalObjective:   global,
		InputVariables:    encoder.PreInputVariables{0: {e.b}},
	}
	return e.enc, nil
}

func (e *halfEncoder) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	yVal, _ := res.GetValue(e.y)
	gVal, _ := res.GetValue(e.enc.GlobalObjective)
	return &encoder.Solution{EncoderName: e.Name(), Primal: map[string]float64{"y": yVal}, GlobalObjective: gVal}, nil
}

func (e *halfEncoder) PrimalVariables() []solver.Variable        { return []solver.Variable{e.y} }
func (e *halfEncoder) EqualityConstraints() []algebra.Polynomial {
	return []algebra.Polynomial{algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.LinearTerm(-0.5, e.b))}
}
func (e *halfEncoder) InequalityConstraints() []algebra.Polynomial { return nil }

func newDriver() *bilevel.Driver {
	return bilevel.New(solver.NewSession(milp.NewBackend(nil), nil), nil)
}

func TestMaximizeOptimalityGap_KKTWithUpperBound(t *testing.T) {
	d := newDriver()
	opt := &maxEncoder{}
	heu := &halfEncoder{}

	opts := bilevel.Options{GlobalInputUB: 6, InnerRewrite: bilevel.RewriteKKT}
	optSol, heuSol, err := d.MaximizeOptimalityGap(context.Background(), opt, heu, nil, nil, opts)
	require.NoError(t, err)

	// b is pushed to its upper bound of 6: optimal binds y=b=6, the
	// heuristic can only reach half of that (3), for a gap of 3.
	assert.InDelta(t, 6.0, optSol.GlobalObjective, 1e-6)
	assert.InDelta(t, 3.0, heuSol.GlobalObjective, 1e-6)
}

func TestMaximizeOptimalityGap_PrimalDualQuantizesInput(t *testing.T) {
	d := newDriver()
	opt := &maxEncoder{}
	heu := &halfEncoder{}

	opts := bilevel.Options{
		InnerRewrite: bilevel.RewritePrimalDual,
		Levels:       domain.NewLevelSet(map[int][]float64{0: {2, 4, 8}}),
	}
	optSol, heuSol, err := d.MaximizeOptimalityGap(context.Background(), opt, heu, nil, nil, opts)
	require.NoError(t, err)

	// b is restricted to {0,2,4,8}; the widest gap is at the top level.
	assert.InDelta(t, 8.0, optSol.GlobalObjective, 1e-6)
	assert.InDelta(t, 4.0, heuSol.GlobalObjective, 1e-6)
}

func TestFindOptimalityGapAtLeast(t *testing.T) {
	d := newDriver()
	opts := bilevel.Options{GlobalInputUB: 6, InnerRewrite: bilevel.RewriteKKT}

	ok, err := d.FindOptimalityGapAtLeast(context.Background(), &maxEncoder{}, &halfEncoder{}, nil, nil, 2.0, opts, false)
	require.NoError(t, err)
	assert.True(t, ok, "gap of 3 (at b=6) satisfies a floor of 2")

	ok, err = d.FindOptimalityGapAtLeast(context.Background(), &maxEncoder{}, &halfEncoder{}, nil, nil, 100.0, opts, false)
	require.NoError(t, err)
	assert.False(t, ok, "no feasible input reaches a gap of 100 when b is capped at 6")
}

func TestFindMaximumGapInterval_BracketsTheTrueMaximum(t *testing.T) {
	d := newDriver()
	opts := bilevel.Options{GlobalInputUB: 6, InnerRewrite: bilevel.RewriteKKT}

	lo, hi, err := d.FindMaximumGapInterval(context.Background(), &maxEncoder{}, &halfEncoder{}, nil, nil, 0.1, 1, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, lo, 3.0+1e-6)
	assert.GreaterOrEqual(t, hi, 3.0-1e-6)
	assert.LessOrEqual(t, hi-lo, 0.1+1e-6)
}
