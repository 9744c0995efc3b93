// Package encoder defines the contract every problem-specific encoder
// (package encoders) must satisfy, and that the inner-rewrite generator
// (package rewrite) relies on to build a KKT or primal-dual rewrite
// without switching on encoder identity (§4.3).
package encoder

import (
	"context"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// PreInputVariables, when supplied to Encode, forces the encoder to
// reuse these exact variable handles for its input variables rather
// than creating fresh ones — this is how two encoders sharing an
// adversarial input (the bilevel driver's optimal and heuristic
// encoders) end up reasoning about literally the same solver variables
// (§4.3 invariant 1, §8 I1).
//
// Keys are input indices in whatever numbering the caller and encoder
// have agreed on (e.g. commodity index for traffic encoders, item index
// for bin packing); values are one or more Variables per input (a
// per-dimension item size needs one Variable per dimension).
type PreInputVariables map[int][]solver.Variable

// InputEqualities pins specific inputs to fixed values. Sparse: inputs
// absent from the map stay free if the domain permits it (§4.3
// invariant 4).
type InputEqualities map[int][]float64

// Options carries encoder-specific knobs (e.g. a demand-pinning
// threshold, a partition count) as an opaque bag; each encoder type
// defines and documents the concrete option struct it expects to find
// here, type-asserted internally.
type Options interface{}

// Encoding is the structural contract C4's rewriter reads off after
// Encode returns: the inner objective to force to optimality, the
// variable the outer model reads the inner optimum's value from, and
// the input-variable table the driver and other encoders key into.
type Encoding struct {
	// InnerMaxObjective is the scalar quantity the inner problem
	// maximizes, expressed over this encoder's primal variables
	// (§4.3 invariant 2).
	InnerMaxObjective algebra.Polynomial

	// GlobalObjective is a fresh variable the rewrite constrains to
	// equal InnerMaxObjective, so the outer driver can compose it
	// arithmetically (§4.3 invariant 3).
	GlobalObjective solver.Variable

	// InputVariables maps input index to the Variable handles carrying
	// that input (reused verbatim from PreInputVariables when supplied).
	InputVariables PreInputVariables

	// Aux carries encoder-specific lookup tables needed to interpret a
	// solver solution back into domain objects (flows per commodity,
	// placements per bin, admission bits per packet, ...).
	Aux map[string]interface{}
}

// Solution is the per-encoder result of a solved Encoding: input values,
// primary decision values, and the scalar global objective, sufficient
// to re-evaluate the encoder independently for sanity (§3, §6).
type Solution struct {
	EncoderName     string
	Inputs          map[int][]float64
	Primal          map[string]float64
	GlobalObjective float64
}

// Encoder is the contract every C5 problem-specific encoder implements.
type Encoder interface {
	// Encode builds this encoder's inner problem against the shared
	// solver session, honoring pre and eq per §4.3.
	Encode(ctx context.Context, s *solver.Session, pre PreInputVariables, eq InputEqualities, opts Options) (*Encoding, error)

	// ExtractSolution reads a solved Encoding back into domain values.
	// Calling it twice on the same res must return structurally equal
	// Solutions (§8 I5).
	ExtractSolution(res solver.Result) (*Solution, error)

	// PrimalVariables is the ordered list of this encoder's primal
	// decision variables, declared so C4 can build a rewrite without
	// inspecting encoder-specific fields (§4.3 invariant 5).
	PrimalVariables() []solver.Variable

	// EqualityConstraints is the ordered list of this encoder's Ay=b
	// rows, as (poly == 0) polynomials over PrimalVariables and input
	// variables.
	EqualityConstraints() []algebra.Polynomial

	// InequalityConstraints is the ordered list of this encoder's
	// Gy<=h rows, as (poly <= 0) polynomials.
	InequalityConstraints() []algebra.Polynomial

	// Feasibility reports whether this encoder represents a feasibility
	// program (no inner maximization exists — §4.4.3, non-convex
	// heuristics like FFD or SP-PIFO) rather than an optimization. C4
	// emits only a feasibility rewrite for these: primal feasibility
	// constraints as-is, no KKT or primal-dual machinery, no duals.
	Feasibility() bool

	// Name identifies the encoder for logging and Solution.EncoderName.
	Name() string
}
