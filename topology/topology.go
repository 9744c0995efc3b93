// Package topology provides the one concrete domain.Topology this repo
// ships: an in-memory directed capacity graph backed by
// github.com/katalvlaran/lvlath/graph/core for storage and
// github.com/katalvlaran/lvlath/dijkstra for shortest-path search,
// composed into a Yen-style k-shortest-paths helper. It is external
// collaborator material, not part of the bilevel compiler's core — kept
// here only so the end-to-end scenarios of this repo's tests are
// self-contained.
package topology

import (
	"math"
	"math/rand"
	"sort"

	"github.com/katalvlaran/lvlath/dijkstra"
	"github.com/katalvlaran/lvlath/graph/core"

	"github.com/microsoft/MetaOpt-sub005/domain"
)

// Graph is a directed capacity graph. Every edge also carries a hop
// weight of 1, so shortest paths are computed by hop count — the graph's
// own capacities never participate in path length.
type Graph struct {
	g        *core.Graph
	capacity map[[2]string]float64
	nodes    []string
}

// New builds an empty directed capacity graph.
func New() *Graph {
	return &Graph{g: core.NewGraph(true, true), capacity: make(map[[2]string]float64)}
}

// AddEdge inserts a directed edge with the given capacity, auto-adding
// endpoints.
func (t *Graph) AddEdge(from, to string, capacity float64) {
	if !t.g.HasVertex(from) {
		t.nodes = append(t.nodes, from)
	}
	if !t.g.HasVertex(to) {
		t.nodes = append(t.nodes, to)
	}
	t.g.AddEdge(from, to, 1)
	t.capacity[[2]string{from, to}] = capacity
}

func (t *Graph) NumNodes() int { return len(t.nodes) }

func (t *Graph) NodePairs() []domain.Commodity {
	out := make([]domain.Commodity, 0, len(t.nodes)*(len(t.nodes)-1))
	for _, a := range t.nodes {
		for _, b := range t.nodes {
			if a != b {
				out = append(out, domain.Commodity{Src: a, Dst: b})
			}
		}
	}
	return out
}

func (t *Graph) Edges() []domain.Edge {
	out := make([]domain.Edge, 0, len(t.capacity))
	for ft, cap := range t.capacity {
		out = append(out, domain.Edge{From: ft[0], To: ft[1], Capacity: cap})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func (t *Graph) EdgeCapacity(from, to string) (float64, bool) {
	c, ok := t.capacity[[2]string{from, to}]
	return c, ok
}

func (t *Graph) AvgCapacity() float64 {
	if len(t.capacity) == 0 {
		return 0
	}
	var sum float64
	for _, c := range t.capacity {
		sum += c
	}
	return sum / float64(len(t.capacity))
}

func (t *Graph) MinCapacity() float64 {
	min := -1.0
	for _, c := range t.capacity {
		if min < 0 || c < min {
			min = c
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// KShortestPaths returns up to k hop-count-shortest paths from src to
// dst, by repeated Dijkstra calls each excluding one edge used by the
// previously found path (a single-removal simplification of Yen's
// algorithm — sufficient for the small topologies this repo's encoders
// operate on).
func (t *Graph) KShortestPaths(src, dst string, k int) []domain.Path {
	var out []domain.Path
	excluded := map[[2]string]bool{}
	for len(out) < k {
		working := t.withoutEdges(excluded)
		dist, prev, err := dijkstra.Dijkstra(working, dijkstra.Source(src), dijkstra.WithReturnPath())
		if err != nil {
			break
		}
		if d, ok := dist[dst]; !ok || (d == math.MaxInt64 && src != dst) {
			break
		}
		path := reconstructPath(prev, src, dst, t.capacity)
		if path == nil {
			break
		}
		out = append(out, *path)
		if len(path.Edges) == 0 {
			break
		}
		last := path.Edges[len(path.Edges)-1]
		excluded[[2]string{last.From, last.To}] = true
	}
	return out
}

func (t *Graph) withoutEdges(excluded map[[2]string]bool) *core.Graph {
	g := core.NewGraph(true, true)
	for _, n := range t.nodes {
		g.AddVertex(&core.Vertex{ID: n, Metadata: map[string]interface{}{}})
	}
	for ft := range t.capacity {
		if excluded[ft] {
			continue
		}
		g.AddEdge(ft[0], ft[1], 1)
	}
	return g
}

func reconstructPath(prev map[string]string, src, dst string, capacity map[[2]string]float64) *domain.Path {
	if src == dst {
		return &domain.Path{}
	}
	var hops []string
	cur := dst
	for cur != "" && cur != src {
		hops = append([]string{cur}, hops...)
		cur = prev[cur]
	}
	if cur != src {
		return nil
	}
	hops = append([]string{src}, hops...)
	edges := make([]domain.Edge, 0, len(hops)-1)
	for i := 0; i+1 < len(hops); i++ {
		from, to := hops[i], hops[i+1]
		edges = append(edges, domain.Edge{From: from, To: to, Capacity: capacity[[2]string{from, to}]})
	}
	return &domain.Path{Edges: edges}
}

// RandomPartition assigns every commodity to one of m partitions,
// uniformly at random under seed.
func (t *Graph) RandomPartition(commodities []domain.Commodity, m int, seed int64) domain.Partitions {
	r := rand.New(rand.NewSource(seed))
	out := make(domain.Partitions, len(commodities))
	for i := range commodities {
		out[i] = r.Intn(m)
	}
	return out
}
