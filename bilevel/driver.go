package bilevel

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/rewrite"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// state is the outer-search state machine of §4.6.
type state int

const (
	stateIdle state = iota
	stateEncodingOptimal
	stateEncodingHeuristic
	stateRewriting
	stateSolving
	stateReturned
	stateTimeoutIncumbent
	stateInfeasible
)

func (st state) String() string {
	switch st {
	case stateIdle:
		return "IDLE"
	case stateEncodingOptimal:
		return "ENCODING(optimal)"
	case stateEncodingHeuristic:
		return "ENCODING(heuristic)"
	case stateRewriting:
		return "REWRITING"
	case stateSolving:
		return "SOLVING"
	case stateReturned:
		return "RETURNED"
	case stateTimeoutIncumbent:
		return "TIMEOUT_INCUMBENT"
	case stateInfeasible:
		return "INFEASIBLE"
	default:
		return "UNKNOWN"
	}
}

// Driver runs the outer adversarial-input search over one shared
// solver.Session. A Driver is not safe for concurrent invocations of
// MaximizeOptimalityGap/FindOptimalityGapAtLeast — two concurrent
// outer searches must each own a Driver over a disjoint Session (§5).
type Driver struct {
	session *solver.Session
	logger  *zap.Logger
	state   state
}

// New builds a Driver over session, logging through logger (a no-op
// logger if nil).
func New(session *solver.Session, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{session: session, logger: logger, state: stateIdle}
}

// Session exposes the driver's underlying session, so a caller
// assembling a second Driver can assert disjointness: `d1.Session().ID
// != d2.Session().ID` (§5).
func (d *Driver) Session() *solver.Session { return d.session }

func (d *Driver) transition(to state) {
	d.logger.Debug("bilevel state transition", zap.String("from", d.state.String()), zap.String("to", to.String()))
	d.state = to
}

// MaximizeOptimalityGap runs the ten-step outer search of §4.6: clean
// the session, encode the optimal problem to obtain the shared input
// variables, encode the heuristic against those same variables, rewrite
// both inner problems, add the outer objective and any realistic
// constraints, and maximize.
func (d *Driver) MaximizeOptimalityGap(
	ctx context.Context,
	optimal, heuristic encoder.Encoder,
	optimalOpts, heuristicOpts encoder.Options,
	opts Options,
) (*encoder.Solution, *encoder.Solution, error) {
	logger := opts.logger()
	d.transition(stateIdle)
	d.session.CleanAll(solver.CleanOptions{})
	if opts.WallClockTimeoutSeconds > 0 {
		d.session.SetTimeout(opts.WallClockTimeoutSeconds)
	}
	if nb, ok := d.session.Backend().(interface{ SetNoImprovementTimeout(float64) }); ok && opts.NoImprovementTimeoutSeconds > 0 {
		nb.SetNoImprovementTimeout(opts.NoImprovementTimeoutSeconds)
	}

	d.transition(stateEncodingOptimal)
	optEnc, err := optimal.Encode(ctx, d.session, encoder.PreInputVariables{}, encoder.InputEqualities{}, optimalOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode optimal: %w", err)
	}

	// Step 3: apply global/per-input upper bounds against the shared
	// variables the optimal encoder just created, before the heuristic
	// ever sees them (upper bounds first, equalities second — §4.6).
	if err := applyInputUpperBounds(d.session, optEnc.InputVariables, opts); err != nil {
		return nil, nil, fmt.Errorf("apply input bounds: %w", err)
	}

	d.transition(stateEncodingHeuristic)
	heuEnc, err := heuristic.Encode(ctx, d.session, optEnc.InputVariables, encoder.InputEqualities{}, heuristicOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode heuristic: %w", err)
	}

	d.transition(stateRewriting)
	if err := d.rewriteEncoder(optimal, optEnc, opts); err != nil {
		return nil, nil, fmt.Errorf("rewrite optimal: %w", err)
	}
	if err := d.rewriteEncoder(heuristic, heuEnc, opts); err != nil {
		return nil, nil, fmt.Errorf("rewrite heuristic: %w", err)
	}

	if err := applyRealisticConstraints(d.session, optEnc.InputVariables, opts.Realistic); err != nil {
		return nil, nil, fmt.Errorf("apply realistic constraints: %w", err)
	}

	outerObjective := algebra.NewPolynomial(
		algebra.LinearTerm(1, optEnc.GlobalObjective),
		algebra.LinearTerm(-1, heuEnc.GlobalObjective),
	)

	d.transition(stateSolving)
	res, err := d.session.Maximize(ctx, outerObjective, solver.MaximizeOptions{Reset: true})
	if err != nil {
		return nil, nil, fmt.Errorf("outer solve: %w", err)
	}

	switch res.Status {
	case solver.StatusOptimal:
		d.transition(stateReturned)
	case solver.StatusTimeLimit:
		d.transition(stateTimeoutIncumbent)
		logger.Warn("outer solve hit timeout, returning incumbent", zap.Float64("objective", res.Objective))
	case solver.StatusInfeasible:
		d.transition(stateInfeasible)
		return nil, nil, &solver.InfeasibleInput{ConstraintName: "outer model", Message: "no feasible adversarial input found"}
	default:
		d.transition(stateInfeasible)
		return nil, nil, &solver.SolverStatusUnsupported{Stage: "outer solve", Status: res.Status}
	}

	optSol, err := optimal.ExtractSolution(res)
	if err != nil {
		return nil, nil, fmt.Errorf("extract optimal: %w", err)
	}
	heuSol, err := heuristic.ExtractSolution(res)
	if err != nil {
		return nil, nil, fmt.Errorf("extract heuristic: %w", err)
	}
	return optSol, heuSol, nil
}

// rewriteEncoder applies rewrite.Feasibility to a non-convex encoder,
// or opts.InnerRewrite to a convex one.
func (d *Driver) rewriteEncoder(e encoder.Encoder, enc *encoder.Encoding, opts Options) error {
	if e.Feasibility() {
		return rewrite.Feasibility(d.session, enc)
	}
	switch opts.InnerRewrite {
	case RewritePrimalDual:
		return rewrite.PrimalDual(d.session, e, enc, opts.Levels, opts.AllowNullInputs)
	default:
		return rewrite.KKT(d.session, e, enc)
	}
}

func applyInputUpperBounds(s *solver.Session, inputs encoder.PreInputVariables, opts Options) error {
	for i, vars := range inputs {
		ub, ok := opts.upperBoundFor(i)
		if !ok {
			continue
		}
		for _, v := range vars {
			_, declaredUB := v.Bounds()
			if declaredUB <= ub {
				continue
			}
			poly := algebra.NewPolynomial(algebra.LinearTerm(1, v), algebra.ConstantTerm(-ub))
			if _, err := s.AddLeqZero(poly); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindOptimalityGapAtLeast adds opt.global - heu.global >= targetGap to
// a fresh encoding of the same pair and runs a feasibility-style solve,
// returning as soon as any feasible witness exists or the solver
// reports infeasible (§4.6).
func (d *Driver) FindOptimalityGapAtLeast(
	ctx context.Context,
	optimal, heuristic encoder.Encoder,
	optimalOpts, heuristicOpts encoder.Options,
	targetGap float64,
	opts Options,
	simplify bool,
) (bool, error) {
	d.transition(stateIdle)
	d.session.CleanAll(solver.CleanOptions{})

	d.transition(stateEncodingOptimal)
	optEnc, err := optimal.Encode(ctx, d.session, encoder.PreInputVariables{}, encoder.InputEqualities{}, optimalOpts)
	if err != nil {
		return false, fmt.Errorf("encode optimal: %w", err)
	}
	if err := applyInputUpperBounds(d.session, optEnc.InputVariables, opts); err != nil {
		return false, fmt.Errorf("apply input bounds: %w", err)
	}

	d.transition(stateEncodingHeuristic)
	heuEnc, err := heuristic.Encode(ctx, d.session, optEnc.InputVariables, encoder.InputEqualities{}, heuristicOpts)
	if err != nil {
		return false, fmt.Errorf("encode heuristic: %w", err)
	}

	d.transition(stateRewriting)
	if err := d.rewriteEncoder(optimal, optEnc, opts); err != nil {
		return false, fmt.Errorf("rewrite optimal: %w", err)
	}
	if err := d.rewriteEncoder(heuristic, heuEnc, opts); err != nil {
		return false, fmt.Errorf("rewrite heuristic: %w", err)
	}
	if err := applyRealisticConstraints(d.session, optEnc.InputVariables, opts.Realistic); err != nil {
		return false, fmt.Errorf("apply realistic constraints: %w", err)
	}

	gapFloor := algebra.NewPolynomial(
		algebra.ConstantTerm(targetGap),
		algebra.LinearTerm(-1, optEnc.GlobalObjective),
		algebra.LinearTerm(1, heuEnc.GlobalObjective),
	)
	if simplify {
		gapFloor = gapFloor.Simplify()
	}
	floorName, err := d.session.AddLeqZero(gapFloor)
	if err != nil {
		return false, fmt.Errorf("add gap floor: %w", err)
	}
	// the session is shared across probes: drop this floor once solved so
	// it does not constrain later calls.
	defer func() { _ = d.session.RemoveConstraint(floorName) }()

	d.transition(stateSolving)
	res, err := d.session.Maximize(ctx, algebra.Zero(), solver.MaximizeOptions{Reset: true})
	if err != nil {
		return false, fmt.Errorf("feasibility solve: %w", err)
	}

	switch res.Status {
	case solver.StatusOptimal, solver.StatusTimeLimit:
		d.transition(stateReturned)
		return res.Status.HasIncumbent(), nil
	case solver.StatusInfeasible:
		d.transition(stateInfeasible)
		return false, nil
	default:
		d.transition(stateInfeasible)
		return false, &solver.SolverStatusUnsupported{Stage: "feasibility solve", Status: res.Status}
	}
}

// FindMaximumGapInterval brackets the true maximum gap via repeated
// FindOptimalityGapAtLeast calls on a geometric schedule: grow the
// upper probe while it remains feasible, then bisect within
// [lo, hi] until the interval width is within confidence (§4.6).
func (d *Driver) FindMaximumGapInterval(
	ctx context.Context,
	optimal, heuristic encoder.Encoder,
	optimalOpts, heuristicOpts encoder.Options,
	confidence, startingGap float64,
	opts Options,
) (lo, hi float64, err error) {
	if startingGap <= 0 {
		startingGap = 1
	}
	lo = 0 // gap >= 0 always holds (§8 I2), so lo=0 is always a safe floor.
	hi = startingGap

	feasible, err := d.FindOptimalityGapAtLeast(ctx, optimal, heuristic, optimalOpts, heuristicOpts, hi, opts, false)
	if err != nil {
		return 0, 0, err
	}
	for feasible {
		lo = hi
		hi *= 2
		feasible, err = d.FindOptimalityGapAtLeast(ctx, optimal, heuristic, optimalOpts, heuristicOpts, hi, opts, false)
		if err != nil {
			return 0, 0, err
		}
	}

	for hi-lo > confidence {
		mid := lo + (hi-lo)/2
		feasible, err = d.FindOptimalityGapAtLeast(ctx, optimal, heuristic, optimalOpts, heuristicOpts, mid, opts, false)
		if err != nil {
			return 0, 0, err
		}
		if feasible {
			lo = mid
		} else {
			hi = mid
		}
		if math.IsInf(hi, 1) {
			break
		}
	}
	return lo, hi, nil
}
