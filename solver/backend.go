package solver

import (
	"context"

	"github.com/microsoft/MetaOpt-sub005/algebra"
)

// Backend is the abstraction every solver back end (solver/milp,
// solver/smt) implements. It covers §4.2's required operations except
// for AddAbs, LinearizeBinaryTimesBinary and LinearizeBinaryTimesContinuous,
// which are backend-independent compositions of the primitives below
// and live on Session instead (§9: "isolate as one function on the
// polynomial layer, reusable by every rewrite and encoder").
type Backend interface {
	// CreateVariable creates a variable with the given kind and bounds.
	// +-Inf bounds are legal; the backend replaces them internally with
	// a finite safe bound for derived constructs.
	CreateVariable(tag string, kind Kind, lower, upper float64) Variable

	// AddLeqZero asserts poly <= 0 and returns a stable constraint name.
	AddLeqZero(poly algebra.Polynomial, name string) (string, error)

	// AddEqZero asserts poly == 0 and returns a stable constraint name.
	AddEqZero(poly algebra.Polynomial, name string) (string, error)

	// AddSOS1 asserts that at most one of vars is non-zero. Returns
	// false if this backend cannot encode SOS1 natively (callers fall
	// back to a big-M linearization built from CreateVariable/AddLeqZero).
	AddSOS1(vars []Variable, name string) (string, bool, error)

	// RemoveConstraint removes a previously added constraint by name.
	RemoveConstraint(name string) error

	// ChangeConstraintRHS mutates a previously added constraint's
	// right-hand side in place.
	ChangeConstraintRHS(name string, value float64) error

	// Maximize solves for the given objective. ctx governs cancellation;
	// the wall-clock budget is configured via CleanAll/SetTimeout ahead of
	// the call. This interface has no no-improvement setter: a backend
	// that supports one exposes its own (milp.Backend.SetNoImprovementTimeout).
	Maximize(ctx context.Context, objective algebra.Polynomial, opts MaximizeOptions) (Result, error)

	// CleanAll resets solver-session-wide options.
	CleanAll(opts CleanOptions)

	// SetTimeout sets the wall-clock solve budget.
	SetTimeout(seconds float64)

	// ModelUpdate flushes any buffered model changes. Backends that do
	// not buffer may implement this as a no-op.
	ModelUpdate()

	// GetVariable reads v's value out of a Result produced by this
	// backend.
	GetVariable(res Result, v Variable) (float64, error)

	// SupportsSOS1 reports whether AddSOS1 can succeed on this backend.
	SupportsSOS1() bool
}
