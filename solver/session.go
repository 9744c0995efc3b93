package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/microsoft/MetaOpt-sub005/algebra"
)

// DefaultBigM is the big-M constant used internally to replace +-Inf
// bounds and to build big-M linearizations, per §4.2 ("the
// implementation uses a big-M ~= 10^3 for derived constructs").
const DefaultBigM = 1e3

// Session is a solver session: the lifetime boundary for every Variable
// and constraint created against one Backend. Two encoders sharing
// adversarial inputs (§5) must be invoked against the same Session; two
// concurrent invocations must use disjoint Sessions. The driver
// enforces this by comparing Session.ID.
type Session struct {
	ID      string
	backend Backend
	sink    ProgressSink
	bigM    float64
	seq     int
}

// NewSession creates a Session wrapping backend, tagged with a fresh
// UUID and reporting progress to sink (DiscardSink{} if nil).
func NewSession(backend Backend, sink ProgressSink) *Session {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Session{
		ID:      uuid.NewString(),
		backend: backend,
		sink:    sink,
		bigM:    DefaultBigM,
	}
}

// SetBigM overrides the default big-M constant used for derived
// constructs in this session.
func (s *Session) SetBigM(m float64) { s.bigM = m }

// BigM returns the big-M constant currently in force.
func (s *Session) BigM() float64 { return s.bigM }

// Backend exposes the underlying backend, for callers (e.g. the driver)
// that need to compare sessions or probe backend-specific capability.
func (s *Session) Backend() Backend { return s.backend }

func (s *Session) nextName(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s#%d", prefix, s.seq)
}

// CreateVariable creates a variable with the given kind and bounds.
func (s *Session) CreateVariable(tag string, kind Kind, lower, upper float64) Variable {
	return s.backend.CreateVariable(tag, kind, lower, upper)
}

// AddLeqZero asserts poly <= 0.
func (s *Session) AddLeqZero(poly algebra.Polynomial) (string, error) {
	return s.backend.AddLeqZero(poly, s.nextName("leq"))
}

// AddEqZero asserts poly == 0.
func (s *Session) AddEqZero(poly algebra.Polynomial) (string, error) {
	return s.backend.AddEqZero(poly, s.nextName("eq"))
}

// AddSOS1 asserts that at most one of vars is non-zero, preferring the
// backend's native encoding and falling back to a big-M binary
// linearization when the backend reports it cannot (§4.4.1, §9).
func (s *Session) AddSOS1(vars []Variable) (string, error) {
	if name, ok, err := s.backend.AddSOS1(vars, s.nextName("sos1")); ok || err != nil {
		return name, err
	}
	return s.addSOS1BigM(vars)
}

// addSOS1BigM encodes "at most one of vars is non-zero" as: for each
// var_i introduce a binary indicator z_i with var_i <= bigM*z_i and
// sum(z_i) <= 1. This is the documented fallback path for backends that
// do not support SOS1 natively.
func (s *Session) addSOS1BigM(vars []Variable) (string, error) {
	indicatorSum := algebra.Zero()
	for _, v := range vars {
		z := s.CreateVariable(v.Tag()+"_sos1z", Binary, 0, 1)
		// var_i - bigM*z_i <= 0
		poly := algebra.NewPolynomial(
			algebra.LinearTerm(1, v),
			algebra.LinearTerm(-s.bigM, z),
		)
		if _, err := s.AddLeqZero(poly); err != nil {
			return "", err
		}
		indicatorSum = indicatorSum.AddTerm(algebra.LinearTerm(1, z))
	}
	// sum(z_i) - 1 <= 0
	indicatorSum = indicatorSum.AddTerm(algebra.ConstantTerm(-1))
	name := s.nextName("sos1bigm")
	if _, err := s.backend.AddLeqZero(indicatorSum, name); err != nil {
		return "", err
	}
	s.sink.Record(ProgressEntry{BigM: s.bigM})
	return name, nil
}

// AddAbs asserts y == |poly|, implemented as two inequalities gated by
// a binary switch z: poly <= y, -poly <= y, y <= poly + bigM*(1-z),
// y <= -poly + bigM*z. This is a backend-independent composition of
// CreateVariable/AddLeqZero, per §9.
func (s *Session) AddAbs(y Variable, poly algebra.Polynomial) error {
	if _, err := s.AddLeqZero(poly.Copy().AddTerm(algebra.LinearTerm(-1, y))); err != nil {
		return err
	}
	if _, err := s.AddLeqZero(poly.Negate().AddTerm(algebra.LinearTerm(-1, y))); err != nil {
		return err
	}
	z := s.CreateVariable(y.Tag()+"_absz", Binary, 0, 1)
	// y - poly - bigM*(1-z) <= 0  <=>  y - poly - bigM + bigM*z <= 0
	upper1 := poly.Negate().AddTerm(algebra.LinearTerm(1, y)).
		AddTerm(algebra.ConstantTerm(-s.bigM)).
		AddTerm(algebra.LinearTerm(s.bigM, z))
	if _, err := s.AddLeqZero(upper1); err != nil {
		return err
	}
	// y + poly - bigM*z <= 0
	upper2 := poly.Copy().AddTerm(algebra.LinearTerm(1, y)).
		AddTerm(algebra.LinearTerm(-s.bigM, z))
	if _, err := s.AddLeqZero(upper2); err != nil {
		return err
	}
	return nil
}

// LinearizeBinaryTimesBinary returns a binary z equal to x*y, via the
// standard McCormick-exact binary product linearization:
// z <= x, z <= y, z >= x+y-1, z >= 0.
func (s *Session) LinearizeBinaryTimesBinary(x, y Variable) (Variable, error) {
	z := s.CreateVariable(fmt.Sprintf("%s_x_%s", x.Tag(), y.Tag()), Binary, 0, 1)
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, z), algebra.LinearTerm(-1, x))); err != nil {
		return Variable{}, err
	}
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, z), algebra.LinearTerm(-1, y))); err != nil {
		return Variable{}, err
	}
	// x + y - 1 - z <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(
		algebra.LinearTerm(-1, x), algebra.LinearTerm(-1, y), algebra.LinearTerm(1, z), algebra.ConstantTerm(1),
	)); err != nil {
		return Variable{}, err
	}
	return z, nil
}

// LinearizeBinaryTimesContinuous returns a continuous z equal to x*y for
// binary x and continuous y with known upper bound yUB, via the
// standard McCormick-exact product linearization:
// z >= 0, z <= yUB*x, z <= y, z >= y - yUB*(1-x).
func (s *Session) LinearizeBinaryTimesContinuous(x, y Variable, yUB float64) (Variable, error) {
	z := s.CreateVariable(fmt.Sprintf("%s_x_%s", x.Tag(), y.Tag()), Continuous, 0, yUB)
	// z - yUB*x <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, z), algebra.LinearTerm(-yUB, x))); err != nil {
		return Variable{}, err
	}
	// z - y <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, z), algebra.LinearTerm(-1, y))); err != nil {
		return Variable{}, err
	}
	// y - yUB*(1-x) - z <= 0  <=>  y - yUB + yUB*x - z <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(
		algebra.LinearTerm(1, y), algebra.ConstantTerm(-yUB), algebra.LinearTerm(yUB, x), algebra.LinearTerm(-1, z),
	)); err != nil {
		return Variable{}, err
	}
	return z, nil
}

// LinearizeBinaryTimesBoundedContinuous returns z == x*y for binary x and
// continuous y with known (possibly signed) bounds [yLower, yUpper], via
// the general four-inequality McCormick-exact linearization: z <=
// yUpper*x, z >= yLower*x, z <= y - yLower*(1-x), z >= y - yUpper*(1-x).
// Used where LinearizeBinaryTimesContinuous's y >= 0 assumption does not
// hold, e.g. the primal-dual rewrite's free equality duals (§4.4.2).
func (s *Session) LinearizeBinaryTimesBoundedContinuous(x, y Variable, yLower, yUpper float64) (Variable, error) {
	zLower, zUpper := math.Min(0, yLower), math.Max(0, yUpper)
	z := s.CreateVariable(fmt.Sprintf("%s_x_%s", x.Tag(), y.Tag()), Continuous, zLower, zUpper)
	// z - yUpper*x <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(1, z), algebra.LinearTerm(-yUpper, x))); err != nil {
		return Variable{}, err
	}
	// yLower*x - z <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(algebra.LinearTerm(yLower, x), algebra.LinearTerm(-1, z))); err != nil {
		return Variable{}, err
	}
	// z - y + yLower*(1-x) <= 0  <=>  z - y + yLower - yLower*x <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(
		algebra.LinearTerm(1, z), algebra.LinearTerm(-1, y), algebra.ConstantTerm(yLower), algebra.LinearTerm(-yLower, x),
	)); err != nil {
		return Variable{}, err
	}
	// y - yUpper*(1-x) - z <= 0  <=>  y - yUpper + yUpper*x - z <= 0
	if _, err := s.AddLeqZero(algebra.NewPolynomial(
		algebra.LinearTerm(1, y), algebra.ConstantTerm(-yUpper), algebra.LinearTerm(yUpper, x), algebra.LinearTerm(-1, z),
	)); err != nil {
		return Variable{}, err
	}
	return z, nil
}

// Maximize solves for objective.
func (s *Session) Maximize(ctx context.Context, objective algebra.Polynomial, opts MaximizeOptions) (Result, error) {
	return s.backend.Maximize(ctx, objective, opts)
}

// CleanAll resets session-wide solve options.
func (s *Session) CleanAll(opts CleanOptions) { s.backend.CleanAll(opts) }

// SetTimeout sets the wall-clock solve budget in seconds.
func (s *Session) SetTimeout(seconds float64) { s.backend.SetTimeout(seconds) }

// ModelUpdate flushes buffered model changes.
func (s *Session) ModelUpdate() { s.backend.ModelUpdate() }

// RemoveConstraint removes a previously added constraint by name.
func (s *Session) RemoveConstraint(name string) error { return s.backend.RemoveConstraint(name) }

// ChangeConstraintRHS mutates a constraint's right-hand side in place.
func (s *Session) ChangeConstraintRHS(name string, value float64) error {
	return s.backend.ChangeConstraintRHS(name, value)
}

// GetVariable reads v's value out of res.
func (s *Session) GetVariable(res Result, v Variable) (float64, error) {
	return s.backend.GetVariable(res, v)
}

// SupportsSOS1 reports whether this session's backend encodes SOS1
// natively.
func (s *Session) SupportsSOS1() bool { return s.backend.SupportsSOS1() }
