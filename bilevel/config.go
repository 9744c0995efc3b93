// Package bilevel implements C6, the outer adversarial-input search: it
// drives a shared solver.Session through an optimal encoder and a
// heuristic encoder, rewrites each inner problem per the chosen
// discipline, and maximizes the gap between their global objectives.
package bilevel

import (
	"go.uber.org/zap"

	"github.com/microsoft/MetaOpt-sub005/domain"
)

// RewriteKind selects which inner-rewrite the driver applies to a
// convex encoder (one with Feasibility() == false). Feasibility-only
// encoders always get rewrite.Feasibility regardless of this setting,
// since dualizing a non-convex heuristic has no meaning (§4.4).
type RewriteKind int

const (
	// RewriteKKT applies the stationarity/complementary-slackness
	// rewrite (§4.4.1) — exact, but requires the encoder's constraints
	// to stay linear in the primal variables for every fixed input.
	RewriteKKT RewriteKind = iota
	// RewritePrimalDual applies strong duality with input quantization
	// (§4.4.2) — keeps the outer model linear even when inputs appear
	// inside constraint coefficients, at the cost of discretizing them.
	RewritePrimalDual
)

func (k RewriteKind) String() string {
	switch k {
	case RewriteKKT:
		return "kkt"
	case RewritePrimalDual:
		return "primal-dual"
	default:
		return "unknown"
	}
}

// Options is the explicit configuration record replacing the source's
// CLI singleton (§9 "Global mutable state"), threaded through every
// driver entry point.
type Options struct {
	// GlobalInputUB bounds every input variable's value, unless
	// overridden per-index by PerInputUB. Zero means "rely on the
	// encoder's own declared bounds only."
	GlobalInputUB float64
	// PerInputUB overrides GlobalInputUB for specific input indices.
	PerInputUB map[int]float64

	// InnerRewrite selects the rewrite applied to each convex (non
	// feasibility-only) encoder.
	InnerRewrite RewriteKind
	// AllowNullInputs is forwarded to rewrite.PrimalDual's Quantize
	// calls: whether an input may legally select zero levels.
	AllowNullInputs bool

	// Levels is the quantization level set rewrite.PrimalDual requires.
	// Unused when InnerRewrite == RewriteKKT.
	Levels domain.LevelSet

	// Realistic, if non-nil, adds the labeled realistic-input
	// constraint family of §4.6 step 8 / bilevel/realistic.go.
	Realistic *RealisticOptions

	// WallClockTimeoutSeconds and NoImprovementTimeoutSeconds bound the
	// outer maximize call (§5 "Cancellation"); zero means unset.
	// NoImprovementTimeoutSeconds takes effect only on backends that
	// expose SetNoImprovementTimeout (solver/milp does; solver/smt does
	// not).
	WallClockTimeoutSeconds     float64
	NoImprovementTimeoutSeconds float64

	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) upperBoundFor(index int) (float64, bool) {
	if ub, ok := o.PerInputUB[index]; ok {
		return ub, true
	}
	if o.GlobalInputUB > 0 {
		return o.GlobalInputUB, true
	}
	return 0, false
}
