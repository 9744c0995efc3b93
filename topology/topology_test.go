package topology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/domain"
	"github.com/microsoft/MetaOpt-sub005/topology"
)

func diamond() *topology.Graph {
	g := topology.New()
	g.AddEdge("s", "a", 5)
	g.AddEdge("s", "b", 3)
	g.AddEdge("a", "t", 4)
	g.AddEdge("b", "t", 6)
	return g
}

func TestGraph_EdgesAndCapacity(t *testing.T) {
	g := diamond()

	assert.Equal(t, 4, g.NumNodes())
	cap, ok := g.EdgeCapacity("s", "a")
	require.True(t, ok)
	assert.Equal(t, 5.0, cap)

	_, ok = g.EdgeCapacity("t", "s")
	assert.False(t, ok)
}

func TestGraph_AvgAndMinCapacity(t *testing.T) {
	g := diamond()

	assert.InDelta(t, (5.0+3.0+4.0+6.0)/4.0, g.AvgCapacity(), 1e-9)
	assert.Equal(t, 3.0, g.MinCapacity())
}

func TestGraph_KShortestPaths(t *testing.T) {
	g := diamond()

	paths := g.KShortestPaths("s", "t", 2)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Len(t, p.Edges, 2)
		assert.Equal(t, "s", p.Edges[0].From)
		assert.Equal(t, "t", p.Edges[len(p.Edges)-1].To)
	}
}

func TestGraph_KShortestPaths_NoPath(t *testing.T) {
	g := topology.New()
	g.AddEdge("s", "a", 1)
	g.AddEdge("b", "t", 1) // disconnected from s

	paths := g.KShortestPaths("s", "t", 2)
	assert.Empty(t, paths)
}

func TestGraph_RandomPartitionCoversAllCommodities(t *testing.T) {
	g := diamond()
	commodities := g.NodePairs()

	parts := g.RandomPartition(commodities, 3, 42)

	assert.Len(t, parts, len(commodities))
	for i := range commodities {
		p, ok := parts[i]
		assert.True(t, ok)
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 3)
	}
	assert.LessOrEqual(t, parts.NumPartitions(), 3)
}

var _ domain.Topology = (*topology.Graph)(nil)
