package solver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
)

func newTestSession() *solver.Session {
	return solver.NewSession(milp.NewBackend(nil), nil)
}

func TestSession_SimpleMaximize(t *testing.T) {
	s := newTestSession()
	x := s.CreateVariable("x", solver.Continuous, 0, 10)

	// x <= 4
	_, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, x), algebra.ConstantTerm(-4)))
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), algebra.Linear(1, x), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	assert.True(t, res.Status.HasIncumbent())
	assert.InDelta(t, 4.0, res.Objective, 1e-6)

	val, ok := res.GetValue(x)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, val, 1e-6)
}

func TestSession_Infeasible(t *testing.T) {
	s := newTestSession()
	x := s.CreateVariable("x", solver.Continuous, 0, 10)

	// x <= -1 combined with x >= 0 (the variable's own bound) is infeasible.
	_, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, x), algebra.ConstantTerm(1)))
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), algebra.Linear(1, x), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, solver.StatusInfeasible, res.Status)
}

func TestSession_LinearizeBinaryTimesBinary(t *testing.T) {
	s := newTestSession()
	x := s.CreateVariable("x", solver.Binary, 0, 1)
	y := s.CreateVariable("y", solver.Binary, 0, 1)

	z, err := s.LinearizeBinaryTimesBinary(x, y)
	require.NoError(t, err)

	// force both to 1; z must follow.
	_, err = s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, x), algebra.ConstantTerm(-1)))
	require.NoError(t, err)
	_, err = s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, y), algebra.ConstantTerm(-1)))
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), algebra.Linear(1, z), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	zVal, ok := res.GetValue(z)
	require.True(t, ok)
	assert.InDelta(t, 1.0, zVal, 1e-6)
}

func TestSession_LinearizeBinaryTimesContinuous(t *testing.T) {
	s := newTestSession()
	x := s.CreateVariable("x", solver.Binary, 0, 1)
	y := s.CreateVariable("y", solver.Continuous, 0, 5)

	z, err := s.LinearizeBinaryTimesContinuous(x, y, 5)
	require.NoError(t, err)

	_, err = s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, x), algebra.ConstantTerm(-1)))
	require.NoError(t, err)
	_, err = s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, y), algebra.ConstantTerm(-3)))
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), algebra.Linear(1, z), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	zVal, _ := res.GetValue(z)
	assert.InDelta(t, 3.0, zVal, 1e-6)
}

func TestSession_AddSOS1FallsBackToBigM(t *testing.T) {
	// milp.Backend supports SOS1 natively; exercise the contract instead
	// of the fallback (covered indirectly: addSOS1BigM is unexported and
	// only reachable through a backend that reports !ok).
	s := newTestSession()
	a := s.CreateVariable("a", solver.Continuous, 0, 1)
	b := s.CreateVariable("b", solver.Continuous, 0, 1)

	_, err := s.AddSOS1([]solver.Variable{a, b})
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), algebra.Linear(1, a).Add(algebra.Linear(1, b)), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())
	assert.InDelta(t, 1.0, res.Objective, 1e-6)
}

func TestSession_AddAbs(t *testing.T) {
	s := newTestSession()
	x := s.CreateVariable("x", solver.Continuous, -10, 10)
	y := s.CreateVariable("y", solver.Continuous, 0, 10)

	require.NoError(t, s.AddAbs(y, algebra.Linear(1, x)))
	_, err := s.AddEqZero(algebra.NewPolynomial(algebra.LinearTerm(1, x), algebra.ConstantTerm(3)))
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), algebra.Linear(-1, y), solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	yVal, _ := res.GetValue(y)
	assert.InDelta(t, 3.0, yVal, 1e-6)
}
