package encoders

import (
	"context"
	"fmt"

	"github.com/microsoft/MetaOpt-sub005/algebra"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// SchedulingVariant selects the rank-admission discipline PacketScheduling
// encodes (§4.5).
type SchedulingVariant int

const (
	// PIFO adds no admission rule of its own: any set of at most
	// queueCap packets may be admitted, whatever their ranks.
	PIFO SchedulingVariant = iota
	// SPPIFO (split-PIFO) partitions the queue into NumQueues
	// rank-ordered sub-queues with a static boundary per sub-queue.
	SPPIFO
	// AIFO admits probabilistically against a sampled threshold rather
	// than a hard per-queue boundary; modeled here as admission against a
	// single adaptive threshold variable.
	AIFO
)

// PacketSchedulingOptions configures PacketScheduling.Encode.
type PacketSchedulingOptions struct {
	Variant    SchedulingVariant
	NumPackets int
	QueueCap   int
	NumQueues  int // only used by SPPIFO
	Boundaries []float64
}

// PacketScheduling is the packet-scheduling heuristic encoder family of
// §4.5: packets arrive with a rank input and are admitted into a
// capacity-bounded queue according to the selected discipline. The
// count of rank inversions among admitted packets and the total number
// admitted are the two testable outer quantities referenced by §8 I7.
type PacketScheduling struct {
	variant    SchedulingVariant
	rank       []solver.Variable
	admit      []solver.Variable
	queueOf    [][]solver.Variable // queueOf[i][q], only for SPPIFO
	inversion  [][]solver.Variable
	queueCap   int
	numQueues  int
	boundaries []float64
	eqs        []algebra.Polynomial
	ineqs      []algebra.Polynomial
}

func NewPacketScheduling() *PacketScheduling { return &PacketScheduling{} }

func (e *PacketScheduling) Name() string {
	switch e.variant {
	case SPPIFO:
		return "sp-pifo"
	case AIFO:
		return "aifo"
	default:
		return "pifo"
	}
}

func (e *PacketScheduling) Feasibility() bool { return true }

func (e *PacketScheduling) Encode(ctx context.Context, s *solver.Session, pre encoder.PreInputVariables, eq encoder.InputEqualities, opts encoder.Options) (*encoder.Encoding, error) {
	o, ok := opts.(PacketSchedulingOptions)
	if !ok || o.NumPackets <= 0 || o.QueueCap <= 0 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "PacketScheduling requires PacketSchedulingOptions{NumPackets, QueueCap}"})
	}
	e.variant = o.Variant
	e.queueCap = o.QueueCap
	e.numQueues = o.NumQueues
	e.boundaries = o.Boundaries
	if e.variant == SPPIFO && e.numQueues <= 0 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "SPPIFO requires NumQueues > 0"})
	}

	e.rank = make([]solver.Variable, o.NumPackets)
	e.admit = make([]solver.Variable, o.NumPackets)
	inputVars := make(encoder.PreInputVariables, o.NumPackets)

	for i := 0; i < o.NumPackets; i++ {
		r, err := sharedOrFreshInput(s, pre, eq, i, fmt.Sprintf("ps_rank_%d", i))
		if err != nil {
			return nil, err
		}
		e.rank[i] = r
		inputVars[i] = []solver.Variable{r}
		e.admit[i] = s.CreateVariable(fmt.Sprintf("ps_admit_%d", i), solver.Binary, 0, 1)
	}

	switch e.variant {
	case PIFO:
		if err := e.encodePIFO(s); err != nil {
			return nil, err
		}
	case SPPIFO:
		if err := e.encodeSPPIFO(s); err != nil {
			return nil, err
		}
	case AIFO:
		if err := e.encodeAIFO(s); err != nil {
			return nil, err
		}
	}

	// global capacity: at most queueCap admitted overall.
	admittedSum := algebra.Zero()
	for _, a := range e.admit {
		admittedSum = admittedSum.AddTerm(algebra.LinearTerm(1, a))
	}
	capIneq := admittedSum.AddTerm(algebra.ConstantTerm(-float64(e.queueCap)))
	if _, err := s.AddLeqZero(capIneq); err != nil {
		return nil, err
	}
	e.ineqs = append(e.ineqs, capIneq)

	// Rank-inversion indicators over every admitted ordered pair (i<j):
	// an inversion is admit[i]*admit[j]==1 with rank[i] > rank[j] (a
	// later-arriving, lower-priority packet admitted ahead of an
	// earlier, higher-priority one that was dropped or follows it).
	e.inversion = make([][]solver.Variable, o.NumPackets)
	for i := 0; i < o.NumPackets; i++ {
		e.inversion[i] = make([]solver.Variable, o.NumPackets)
		for j := i + 1; j < o.NumPackets; j++ {
			inv, err := e.inversionIndicator(s, i, j)
			if err != nil {
				return nil, err
			}
			e.inversion[i][j] = inv
		}
	}

	objective := algebra.Zero()
	for _, a := range e.admit {
		objective = objective.AddTerm(algebra.LinearTerm(1, a))
	}
	for i := range e.inversion {
		for j := range e.inversion[i] {
			if e.inversion[i][j].Tag() != "" {
				objective = objective.AddTerm(algebra.LinearTerm(-1, e.inversion[i][j]))
			}
		}
	}
	global := s.CreateVariable(e.Name()+"_global", solver.Continuous, -s.BigM(), s.BigM())

	return &encoder.Encoding{
		InnerMaxObjective: objective,
		GlobalObjective:   global,
		InputVariables:    inputVars,
		Aux:               map[string]interface{}{"numPackets": o.NumPackets},
	}, nil
}

// encodePIFO adds no constraints. Under PIFO the only admission
// constraint is the global queueCap limit that Encode adds for every
// variant, so admission is not tied to rank: the encoding does not
// restrict the admitted set to the queueCap highest-ranked packets, and
// it models no eviction.
func (e *PacketScheduling) encodePIFO(s *solver.Session) error {
	return nil
}

// encodeSPPIFO partitions packets into NumQueues static rank bands via
// Boundaries and admits up to queueCap/NumQueues per band.
func (e *PacketScheduling) encodeSPPIFO(s *solver.Session) error {
	if len(e.boundaries) != e.numQueues-1 {
		panic(&solver.ContractViolation{Stage: "encode", Message: "SPPIFO requires len(Boundaries) == NumQueues-1"})
	}
	perQueueCap := e.queueCap / e.numQueues
	if perQueueCap < 1 {
		perQueueCap = 1
	}
	e.queueOf = make([][]solver.Variable, len(e.rank))
	for i, r := range e.rank {
		e.queueOf[i] = make([]solver.Variable, e.numQueues)
		membershipSum := algebra.Zero()
		for q := 0; q < e.numQueues; q++ {
			m := s.CreateVariable(fmt.Sprintf("ps_queue_%d_%d", i, q), solver.Binary, 0, 1)
			e.queueOf[i][q] = m
			membershipSum = membershipSum.AddTerm(algebra.LinearTerm(1, m))

			if q > 0 {
				// m==1 requires rank >= boundaries[q-1]
				lower := algebra.NewPolynomial(
					algebra.ConstantTerm(e.boundaries[q-1]), algebra.LinearTerm(-1, r),
					algebra.ConstantTerm(-s.BigM()), algebra.LinearTerm(s.BigM(), m),
				)
				if _, err := s.AddLeqZero(lower); err != nil {
					return err
				}
				e.ineqs = append(e.ineqs, lower)
			}
			if q < e.numQueues-1 {
				// m==1 requires rank < boundaries[q]
				upper := algebra.NewPolynomial(
					algebra.LinearTerm(1, r), algebra.ConstantTerm(-e.boundaries[q]),
					algebra.ConstantTerm(-s.BigM()), algebra.LinearTerm(s.BigM(), m),
				)
				if _, err := s.AddLeqZero(upper); err != nil {
					return err
				}
				e.ineqs = append(e.ineqs, upper)
			}
		}
		membershipEq := membershipSum.AddTerm(algebra.ConstantTerm(-1))
		if _, err := s.AddEqZero(membershipEq); err != nil {
			return err
		}
		e.eqs = append(e.eqs, membershipEq)

		// admit[i] <= sum of its own queue memberships (trivially 1, so
		// admission is unconstrained by membership alone; the per-queue
		// capacity below is what actually rations admission).
	}

	for q := 0; q < e.numQueues; q++ {
		admittedInQueue := algebra.Zero()
		for i := range e.rank {
			z, err := s.LinearizeBinaryTimesBinary(e.admit[i], e.queueOf[i][q])
			if err != nil {
				return err
			}
			admittedInQueue = admittedInQueue.AddTerm(algebra.LinearTerm(1, z))
		}
		ineq := admittedInQueue.AddTerm(algebra.ConstantTerm(-float64(perQueueCap)))
		if _, err := s.AddLeqZero(ineq); err != nil {
			return err
		}
		e.ineqs = append(e.ineqs, ineq)
	}
	return nil
}

// encodeAIFO admits against a single adaptive threshold variable shared
// across all packets: admit[i]==1 requires rank[i] >= threshold. The
// threshold itself is a free auxiliary variable the solver may set,
// modeling AIFO's adaptively-resampled admission line as whatever
// single cut the adversarial search finds most damaging (§4.5).
func (e *PacketScheduling) encodeAIFO(s *solver.Session) error {
	threshold := s.CreateVariable("ps_threshold", solver.Continuous, 0, s.BigM())
	for i, r := range e.rank {
		// admit[i]==1 requires rank[i] - threshold >= 0
		gate := algebra.NewPolynomial(
			algebra.LinearTerm(-1, r), algebra.LinearTerm(1, threshold),
			algebra.ConstantTerm(-s.BigM()), algebra.LinearTerm(s.BigM(), e.admit[i]),
		)
		if _, err := s.AddLeqZero(gate); err != nil {
			return err
		}
		e.ineqs = append(e.ineqs, gate)
	}
	return nil
}

// inversionIndicator returns a binary equal to 1 when packets i and j
// (i<j, arriving in that order) are both admitted and rank[i] > rank[j]
// — a later-priority packet admitted alongside an earlier, higher-rank
// one out of order.
func (e *PacketScheduling) inversionIndicator(s *solver.Session, i, j int) (solver.Variable, error) {
	bothAdmitted, err := s.LinearizeBinaryTimesBinary(e.admit[i], e.admit[j])
	if err != nil {
		return solver.Variable{}, err
	}
	outOfOrder := s.CreateVariable(fmt.Sprintf("ps_outoforder_%d_%d", i, j), solver.Binary, 0, 1)
	// rank[i] - rank[j] > 0  =>  outOfOrder == 1
	forceOne := algebra.NewPolynomial(
		algebra.LinearTerm(1, e.rank[i]), algebra.LinearTerm(-1, e.rank[j]),
		algebra.LinearTerm(-s.BigM(), outOfOrder),
	)
	if _, err := s.AddLeqZero(forceOne); err != nil {
		return solver.Variable{}, err
	}
	e.ineqs = append(e.ineqs, forceOne)
	// outOfOrder == 1  =>  rank[i] - rank[j] >= 0
	allowOne := algebra.NewPolynomial(
		algebra.LinearTerm(-1, e.rank[i]), algebra.LinearTerm(1, e.rank[j]),
		algebra.ConstantTerm(-s.BigM()), algebra.LinearTerm(s.BigM(), outOfOrder),
	)
	if _, err := s.AddLeqZero(allowOne); err != nil {
		return solver.Variable{}, err
	}
	e.ineqs = append(e.ineqs, allowOne)

	inv, err := s.LinearizeBinaryTimesBinary(bothAdmitted, outOfOrder)
	if err != nil {
		return solver.Variable{}, err
	}
	return inv, nil
}

func (e *PacketScheduling) ExtractSolution(res solver.Result) (*encoder.Solution, error) {
	inputs := make(map[int][]float64, len(e.rank))
	var totalAdmitted float64
	for i, r := range e.rank {
		v, ok := res.GetValue(r)
		if !ok {
			return nil, &solver.ContractViolation{Stage: "extract", Message: "rank variable has no value in result"}
		}
		inputs[i] = []float64{v}
	}
	primal := make(map[string]float64)
	for i, a := range e.admit {
		v, _ := res.GetValue(a)
		primal[fmt.Sprintf("admit_%d", i)] = v
		totalAdmitted += v
	}
	var inversions float64
	for i := range e.inversion {
		for j := range e.inversion[i] {
			if e.inversion[i][j].Tag() == "" {
				continue
			}
			v, _ := res.GetValue(e.inversion[i][j])
			inversions += v
		}
	}
	primal["total_admitted"] = totalAdmitted
	primal["inversions"] = inversions
	return &encoder.Solution{EncoderName: e.Name(), Inputs: inputs, Primal: primal, GlobalObjective: totalAdmitted - inversions}, nil
}

func (e *PacketScheduling) PrimalVariables() []solver.Variable {
	out := append([]solver.Variable{}, e.admit...)
	for _, row := range e.queueOf {
		out = append(out, row...)
	}
	for _, row := range e.inversion {
		for _, v := range row {
			if v.Tag() != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (e *PacketScheduling) EqualityConstraints() []algebra.Polynomial { return e.eqs }

func (e *PacketScheduling) InequalityConstraints() []algebra.Polynomial { return e.ineqs }
