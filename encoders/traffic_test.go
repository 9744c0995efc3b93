package encoders_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/encoders"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
	"github.com/microsoft/MetaOpt-sub005/topology"
)

func diamondGraph() *topology.Graph {
	g := topology.New()
	g.AddEdge("s", "a", 5)
	g.AddEdge("s", "b", 3)
	g.AddEdge("a", "t", 4)
	g.AddEdge("b", "t", 6)
	return g
}

// pinAllExcept zeroes out every commodity's demand except want, which is
// pinned to value, so the test's expectations depend on exactly one flow.
func pinAllExcept(commodities []domain.Commodity, want int, value float64) encoder.InputEqualities {
	eq := make(encoder.InputEqualities, len(commodities))
	for i := range commodities {
		if i == want {
			eq[i] = []float64{value}
		} else {
			eq[i] = []float64{0}
		}
	}
	return eq
}

func TestTrafficOptimal_DiamondMaxFlow(t *testing.T) {
	g := diamondGraph()
	commodities := g.NodePairs()
	stIndex := -1
	for i, c := range commodities {
		if c.Src == "s" && c.Dst == "t" {
			stIndex = i
		}
	}
	require.GreaterOrEqual(t, stIndex, 0)

	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)
	e := encoders.NewTrafficOptimal(g)

	eq := pinAllExcept(commodities, stIndex, 100)
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, eq, encoders.TrafficOptimalOptions{K: 2})
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), enc.InnerMaxObjective, solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	// s->a->t caps at min(5,4)=4, s->b->t caps at min(3,6)=3: max-flow(s,t) = 7.
	assert.InDelta(t, 7.0, res.Objective, 1e-6)
}

func TestPOPPartitioned_SplitsCapacityAndCanOnlyLoseFlow(t *testing.T) {
	g := diamondGraph()
	commodities := g.NodePairs()
	stIndex := -1
	for i, c := range commodities {
		if c.Src == "s" && c.Dst == "t" {
			stIndex = i
		}
	}
	require.GreaterOrEqual(t, stIndex, 0)

	parts := make(domain.Partitions, len(commodities))
	for i := range commodities {
		parts[i] = 0 // every commodity in the single partition that matters
	}

	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)
	e := encoders.NewPOPPartitioned(g)

	eq := pinAllExcept(commodities, stIndex, 100)
	opts := encoders.POPOptions{K: 2, NumPartitions: 2, Partitions: parts}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, eq, opts)
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), enc.InnerMaxObjective, solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	// partitioning a single-partition-occupied split can only match or
	// reduce the unpartitioned optimum of 7 (each edge share is halved).
	assert.LessOrEqual(t, res.Objective, 7.0+1e-6)
}

func TestTrafficOptimal_SharesInputVariableIdentity(t *testing.T) {
	// §8 I1: two encoders invoked with the same PreInputVariables must
	// reason about literally the same solver variable.
	g := diamondGraph()
	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)

	optimal := encoders.NewTrafficOptimal(g)
	optEnc, err := optimal.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{}, encoders.TrafficOptimalOptions{K: 1})
	require.NoError(t, err)

	heuristic := encoders.NewTrafficOptimal(g)
	heuEnc, err := heuristic.Encode(context.Background(), s, optEnc.InputVariables, encoder.InputEqualities{}, encoders.TrafficOptimalOptions{K: 1})
	require.NoError(t, err)

	for i, vars := range optEnc.InputVariables {
		heuVars := heuEnc.InputVariables[i]
		require.Len(t, heuVars, len(vars))
		for j := range vars {
			assert.Equal(t, vars[j].ID(), heuVars[j].ID())
		}
	}
}
