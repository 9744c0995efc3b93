package algebra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeVar string

func (f fakeVar) ID() string { return string(f) }

func TestPolynomial_AddNoAutoSimplify(t *testing.T) {
	x := fakeVar("x")
	p := Linear(1, x).AddTerm(LinearTerm(2, x))

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 3.0, p.CoefficientOf(x))
}

func TestPolynomial_Simplify(t *testing.T) {
	x, y := fakeVar("x"), fakeVar("y")
	p := NewPolynomial(LinearTerm(1, x), LinearTerm(2, x), LinearTerm(1, y), LinearTerm(-1, y))

	simplified := p.Simplify()

	assert.Equal(t, 1, simplified.Len())
	assert.Equal(t, 3.0, simplified.CoefficientOf(x))
	assert.Equal(t, 0.0, simplified.CoefficientOf(y))
}

func TestPolynomial_AddConcatenatesWithoutCombining(t *testing.T) {
	x := fakeVar("x")
	p := Linear(1, x)
	q := Linear(2, x)

	sum := p.Add(q)

	assert.Equal(t, 2, sum.Len())
	assert.Equal(t, 3.0, sum.CoefficientOf(x))
}

func TestPolynomial_Negate(t *testing.T) {
	x := fakeVar("x")
	p := NewPolynomial(LinearTerm(2, x), ConstantTerm(5))

	negated := p.Negate()

	assert.Equal(t, -2.0, negated.CoefficientOf(x))
	assert.Equal(t, -5.0, negated.ConstantValue())
}

func TestPolynomial_Scale(t *testing.T) {
	x := fakeVar("x")
	p := NewPolynomial(LinearTerm(2, x), ConstantTerm(3))

	scaled := p.Scale(2)

	assert.Equal(t, 4.0, scaled.CoefficientOf(x))
	assert.Equal(t, 6.0, scaled.ConstantValue())
}

func TestPolynomial_IsLinear(t *testing.T) {
	x := fakeVar("x")
	linear := NewPolynomial(LinearTerm(1, x))
	quadratic := NewPolynomial(QuadraticTerm(1, x))

	assert.True(t, linear.IsLinear())
	assert.False(t, quadratic.IsLinear())
}

func TestPolynomial_SubstituteLinear(t *testing.T) {
	x, a, b := fakeVar("x"), fakeVar("a"), fakeVar("b")
	p := NewPolynomial(LinearTerm(2, x), ConstantTerm(1))

	out := SubstituteLinear(p, x, map[VarHandle]float64{a: 1, b: 2}, 3)

	assert.Equal(t, 1.0, out.ConstantValue()-6.0) // original constant term untouched
	assert.Equal(t, 2.0, out.CoefficientOf(a))
	assert.Equal(t, 4.0, out.CoefficientOf(b))
}

func TestPolynomial_SubstituteLinearPanicsOnQuadratic(t *testing.T) {
	x := fakeVar("x")
	p := NewPolynomial(QuadraticTerm(1, x))

	assert.Panics(t, func() {
		SubstituteLinear(p, x, map[VarHandle]float64{}, 0)
	})
}

func TestPolynomial_CopyIsIndependent(t *testing.T) {
	x := fakeVar("x")
	p := Linear(1, x)
	cp := p.Copy()
	p2 := p.AddTerm(LinearTerm(1, x))

	assert.Equal(t, 1, cp.Len())
	assert.Equal(t, 2, p2.Len())
}

func TestZeroAndConstant(t *testing.T) {
	assert.Equal(t, 0, Zero().Len())
	assert.Equal(t, 0, Constant(0).Len())
	assert.Equal(t, 1, Constant(5).Len())
}
