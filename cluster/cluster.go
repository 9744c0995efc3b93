// Package cluster implements C7, the clustering decomposition: when
// inputs decompose along structural boundaries, solve one bilevel
// instance per cluster, then a reduced aggregate instance over
// cross-cluster summaries, then recompose (§4.7). The decomposition is
// a heuristic lower bound on the true gap, never a certified one.
package cluster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/microsoft/MetaOpt-sub005/bilevel"
	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/solver"
)

// Cluster is one sub-instance produced by an external partitioner: a
// set of input indices plus the backend and budget its own bilevel
// solve should use.
type Cluster struct {
	ID      string
	Indices []int
	// WallClockBudgetSeconds is this cluster's per-cluster solve budget
	// (§4.7 step 1).
	WallClockBudgetSeconds float64
}

// Result is one cluster's bilevel outcome, carrying enough to recompose
// (§4.7 step 3: "used as a warm start or as an equality on non-cross-
// cluster inputs").
type Result struct {
	Cluster   Cluster
	Optimal   *encoder.Solution
	Heuristic *encoder.Solution
	Gap       float64
}

// ReducedSummary is the cross-cluster aggregate Summarize builds for
// step 2 (§4.7): density, count of "large" demands, and the max
// path-length cap in force, one per cluster. RunReduced accepts these
// but does not read them.
type ReducedSummary struct {
	ClusterID        string
	Density          float64
	LargeDemandCount int
	MaxDistanceHops  int
}

// NewBackendFunc constructs a fresh, independent solver.Backend — each
// cluster's bilevel solve runs on its own session (§5 "each cluster's
// bilevel is a separate solver session, executed sequentially").
type NewBackendFunc func() solver.Backend

// Decomposer runs the three-step decomposition of §4.7. It holds only
// the backend constructor and a logger; the encoder pair for each solve
// comes from the EncoderFactory passed to RunClusters/RunReduced.
type Decomposer struct {
	newBackend NewBackendFunc
	logger     *zap.Logger
}

// NewDecomposer builds a Decomposer. newBackend is called once per
// cluster (and once more for the reduced solve) to obtain an isolated
// solver.Backend.
func NewDecomposer(newBackend NewBackendFunc, logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{newBackend: newBackend, logger: logger}
}

// EncoderFactory builds the (optimal, heuristic) encoder pair and their
// Encode-time options for one cluster or the reduced instance. Building
// fresh encoders per call keeps each solver session's primal variables
// private to that session.
type EncoderFactory func(c Cluster) (optimal, heuristic encoder.Encoder, optimalOpts, heuristicOpts encoder.Options)

// RunClusters executes step 1: one independent MaximizeOptimalityGap per
// cluster, sequentially, each against a fresh session.
func (d *Decomposer) RunClusters(ctx context.Context, clusters []Cluster, factory EncoderFactory, opts bilevel.Options) ([]Result, error) {
	results := make([]Result, 0, len(clusters))
	for _, c := range clusters {
		backend := d.newBackend()
		session := solver.NewSession(backend, nil)
		driver := bilevel.New(session, d.logger.With(zap.String("cluster", c.ID)))

		clusterOpts := opts
		if c.WallClockBudgetSeconds > 0 {
			clusterOpts.WallClockTimeoutSeconds = c.WallClockBudgetSeconds
		}

		optimal, heuristic, optimalOpts, heuristicOpts := factory(c)
		optSol, heuSol, err := driver.MaximizeOptimalityGap(ctx, optimal, heuristic, optimalOpts, heuristicOpts, clusterOpts)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: %w", c.ID, err)
		}
		results = append(results, Result{
			Cluster:   c,
			Optimal:   optSol,
			Heuristic: heuSol,
			Gap:       optSol.GlobalObjective - heuSol.GlobalObjective,
		})
	}
	return results, nil
}

// Summarize builds step 2's reduced cross-cluster input from each
// cluster's result: density is the fraction of its inputs that were
// pinned to a nonzero value, large-demand count is how many exceeded
// largeDemandThreshold.
func Summarize(results []Result, largeDemandThreshold float64, maxDistanceHops int) []ReducedSummary {
	out := make([]ReducedSummary, 0, len(results))
	for _, r := range results {
		var nonzero, large int
		for _, vals := range r.Optimal.Inputs {
			if len(vals) == 0 {
				continue
			}
			if vals[0] != 0 {
				nonzero++
			}
			if vals[0] > largeDemandThreshold {
				large++
			}
		}
		density := 0.0
		if n := len(r.Optimal.Inputs); n > 0 {
			density = float64(nonzero) / float64(n)
		}
		out = append(out, ReducedSummary{
			ClusterID:        r.Cluster.ID,
			Density:          density,
			LargeDemandCount: large,
			MaxDistanceHops:  maxDistanceHops,
		})
	}
	return out
}

// RunReduced executes step 2: one more bilevel solve, against its own
// fresh session, of the factory's encoder pair with levels as the
// quantization levels. summaries is not read: no density, large-demand
// or distance-cap value constrains the reduced solve.
func (d *Decomposer) RunReduced(ctx context.Context, summaries []ReducedSummary, factory EncoderFactory, levels domain.LevelSet, opts bilevel.Options) (*encoder.Solution, *encoder.Solution, error) {
	backend := d.newBackend()
	session := solver.NewSession(backend, nil)
	driver := bilevel.New(session, d.logger.With(zap.String("phase", "reduced")))

	reducedOpts := opts
	reducedOpts.Levels = levels

	optimal, heuristic, optimalOpts, heuristicOpts := factory(Cluster{ID: "reduced-" + uuid.NewString()})
	return driver.MaximizeOptimalityGap(ctx, optimal, heuristic, optimalOpts, heuristicOpts, reducedOpts)
}

// Recompose executes step 3: for each cluster, returns the equality
// pins a caller should feed back into a full-scale re-solve (its
// per-cluster optimal solution's inputs). reducedOptimal is not read:
// the result carries no cross-cluster aggregates. This decomposition
// produces a heuristic lower bound on the true gap (§4.7 correctness
// contract) — callers requiring a certified gap must not use it.
func Recompose(clusterResults []Result, reducedOptimal *encoder.Solution) map[string]encoder.InputEqualities {
	out := make(map[string]encoder.InputEqualities, len(clusterResults))
	for _, r := range clusterResults {
		eq := make(encoder.InputEqualities, len(r.Optimal.Inputs))
		for idx, vals := range r.Optimal.Inputs {
			eq[idx] = append([]float64{}, vals...)
		}
		out[r.Cluster.ID] = eq
	}
	return out
}
