package rewrite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/rewrite"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
)

// boundedMaxEncoder is a minimal convex test encoder: maximize y subject
// to y <= b, where b is a single free input variable. Used to exercise
// KKT and primal-dual against a problem simple enough to predict the
// solved values of by hand.
type boundedMaxEncoder struct {
	feasibilityOnly bool

	y, b  solver.Variable
	ineqs []algebra.Polynomial
	enc   *encoder.Encoding
}

func (e *boundedMaxEncoder) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
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
	e.ineqs = []algebra.Polynomial{ineq}

	if vals, ok := eq[0]; ok {
		if _, err := s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, e.b), algebra.ConstantTerm(-vals[0]))); err != nil {
			return nil, err
		}
	}

	global := s.CreateVariable("global", solver.Continuous, -s.BigM(), s.BigM())
	e.enc = &encoder.Encoding{
		InnerMaxObjective: algebra.Linear(1, e.y),
		GlobalObjective:   global,
		InputVariables:    encoder.PreInputVariables{0: {e.b}},
	}
	return e.enc, nil
}

func (e *boundedMaxEncoder) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	yVal, _ := res.GetValue(e.y)
	bVal, _ := res.GetValue(e.b)
	gVal, _ := res.GetValue(e.enc.GlobalObjective)
	return &encoder.Solution{
		EncoderName:     e.Name(),
		Inputs:          map[int][]float64{0: {bVal}},
		Primal:          map[string]float64{"y": yVal},
		GlobalObjective: gVal,
	}, nil
}

func (e *boundedMaxEncoder) PrimalVariables() []solver.Variable         { return []solver.Variable{e.y} }
func (e *boundedMaxEncoder) EqualityConstraints() []algebra.Polynomial  { return nil }
func (e *boundedMaxEncoder) InequalityConstraints() []algebra.Polynomial { return e.ineqs }
func (e *boundedMaxEncoder) Feasibility() bool                         { return e.feasibilityOnly }
func (e *boundedMaxEncoder) Name() string                              { return "bounded-max" }

func newSession() *solver.Session {
	return solver.NewSession(milp.NewBackend(nil), nil)
}

func TestFeasibility_LinksGlobalObjective(t *testing.T) {
	s := newSession()
	e := &boundedMaxEncoder{}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{0: {4}}, nil)
	require.NoError(t, err)

	require.NoError(t, rewrite.Feasibility(s, enc))

	res, err := s.Maximize(context.Background(), algebra.Linear(1, enc.GlobalObjective), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())
	assert.InDelta(t, 4.0, res.Objective, 1e-6)
}

func TestKKT_PanicsOnFeasibilityEncoder(t *testing.T) {
	s := newSession()
	e := &boundedMaxEncoder{feasibilityOnly: true}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{0: {4}}, nil)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = rewrite.KKT(s, e, enc)
	})
}

func TestKKT_ForcesPrimalToBindAtInput(t *testing.T) {
	s := newSession()
	e := &boundedMaxEncoder{}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{0: {3}}, nil)
	require.NoError(t, err)

	require.NoError(t, rewrite.KKT(s, e, enc))

	// With KKT constraints in force, y is forced to equal b (=3)
	// regardless of which direction the outer objective pushes.
	res, err := s.Maximize(context.Background(), algebra.Linear(-1, enc.GlobalObjective), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	yVal, _ := res.GetValue(e.y)
	assert.InDelta(t, 3.0, yVal, 1e-6)
}

// capEncoder maximizes y subject to a plain constant-RHS bound, y <= 5,
// with no input variables at all. Used to check that a constant term in
// a constraint row contributes to the strong-duality dual objective.
type capEncoder struct {
	y     solver.Variable
	ineqs []algebra.Polynomial
	enc   *encoder.Encoding
}

func (e *capEncoder) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	e.y = s.CreateVariable("y", solver.Continuous, 0, 10)
	ineq := algebra.NewPolynomial(algebra.LinearTerm(1, e.y), algebra.ConstantTerm(-5))
	if _, err := s.AddLeqZero(ineq); err != nil {
		return nil, err
	}
	e.ineqs = []algebra.Polynomial{ineq}

	global := s.CreateVariable("cap_global", solver.Continuous, -s.BigM(), s.BigM())
	e.enc = &encoder.Encoding{
		InnerMaxObjective: algebra.Linear(1, e.y),
		GlobalObjective:   global,
		InputVariables:    encoder.PreInputVariables{},
	}
	return e.enc, nil
}

func (e *capEncoder) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	yVal, _ := res.GetValue(e.y)
	return &encoder.Solution{EncoderName: e.Name(), Primal: map[string]float64{"y": yVal}}, nil
}

func (e *capEncoder) PrimalVariables() []solver.Variable         { return []solver.Variable{e.y} }
func (e *capEncoder) EqualityConstraints() []algebra.Polynomial  { return nil }
func (e *capEncoder) InequalityConstraints() []algebra.Polynomial { return e.ineqs }
func (e *capEncoder) Feasibility() bool                          { return false }
func (e *capEncoder) Name() string                               { return "cap" }

func TestPrimalDual_IncludesConstantRowTermsInDualObjective(t *testing.T) {
	s := newSession()
	e := &capEncoder{}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{}, nil)
	require.NoError(t, err)

	// no input variables to quantize: levels is irrelevant here.
	require.NoError(t, rewrite.PrimalDual(s, e, enc, domain.LevelSet{}, false))

	res, err := s.Maximize(context.Background(), algebra.Linear(1, enc.GlobalObjective), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	// strong duality requires y == 5*lambda; without folding the
	// constant RHS (5) into the dual objective this would instead force
	// y == 0, collapsing the achievable optimum to zero.
	assert.InDelta(t, 5.0, res.Objective, 1e-6)
}

func TestPrimalDual_AssertsStrongDuality(t *testing.T) {
	s := newSession()
	e := &boundedMaxEncoder{}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{}, nil)
	require.NoError(t, err)

	levels := domain.NewLevelSet(map[int][]float64{0: {2, 5, 8}})
	require.NoError(t, rewrite.PrimalDual(s, e, enc, levels, false))

	res, err := s.Maximize(context.Background(), algebra.Linear(1, enc.GlobalObjective), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	// b is quantized to one of {0,2,5,8}; y binds at b (KKT-style), so the
	// maximum achievable global objective under a valid quantization is 8.
	assert.InDelta(t, 8.0, res.Objective, 1e-6)
}
