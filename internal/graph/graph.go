package graph

import (
	"fmt"
	"sort"

	"github.com/trailhound/trailhound/internal/models"
)

// Edge is one typed, directed relationship between two resolved entities
type Edge struct {
	Src        string              `json:"src"`
	Dst        string              `json:"dst"`
	Rel        models.Relationship `json:"relationship"`
	Class      models.EdgeClass    `json:"edge_class"`
	Strength   float64             `json:"strength"`   // 0-1
	Confidence float64             `json:"confidence"` // 0-1
	Sources    []string            `json:"sources"`
}

// Graph is a directed multigraph over resolved entities. Nodes and edges
// live in arenas addressed by integer index; the public surface speaks
// entity IDs. Not safe for concurrent mutation; each investigation owns
// its graph exclusively.
type Graph struct {
	nodes   []models.ResolvedEntity
	index   map[string]int
	out     [][]int // node -> edge indices
	in      [][]int
	edges   []Edge
	edgeIdx map[edgeKey]int
}

type edgeKey struct {
	src, dst int
	rel      models.Relationship
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		index:   make(map[string]int),
		edgeIdx: make(map[edgeKey]int),
	}
}

// AddNode inserts or updates a resolved entity. Re-adding an existing ID
// replaces the stored entity and keeps its edges.
func (g *Graph) AddNode(e models.ResolvedEntity) {
	if i, ok := g.index[e.ID]; ok {
		g.nodes[i] = e
		return
	}
	g.index[e.ID] = len(g.nodes)
	g.nodes = append(g.nodes, e)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
}

// AddEdge inserts a relationship edge. Both endpoints must already be
// nodes. A duplicate (src, dst, relationship) merges: strength combines
// as 1-(1-s1)(1-s2), confidence takes the max, sources union. Self-edges
// are rejected unless the relationship is same_identity.
func (g *Graph) AddEdge(e Edge) error {
	src, ok := g.index[e.Src]
	if !ok {
		return fmt.Errorf("unknown source node %s", e.Src)
	}
	dst, ok := g.index[e.Dst]
	if !ok {
		return fmt.Errorf("unknown destination node %s", e.Dst)
	}
	if src == dst && e.Rel != models.RelSameIdentity {
		return fmt.Errorf("self-edge %s not allowed for relationship %s", e.Src, e.Rel)
	}
	e.Strength = clamp01(e.Strength)
	e.Confidence = clamp01(e.Confidence)

	key := edgeKey{src: src, dst: dst, rel: e.Rel}
	if i, ok := g.edgeIdx[key]; ok {
		existing := &g.edges[i]
		existing.Strength = 1 - (1-existing.Strength)*(1-e.Strength)
		if e.Confidence > existing.Confidence {
			existing.Confidence = e.Confidence
		}
		existing.Sources = unionSorted(existing.Sources, e.Sources)
		return nil
	}

	g.edgeIdx[key] = len(g.edges)
	g.out[src] = append(g.out[src], len(g.edges))
	g.in[dst] = append(g.in[dst], len(g.edges))
	g.edges = append(g.edges, e)
	return nil
}

// Node returns the entity for an ID
func (g *Graph) Node(id string) (models.ResolvedEntity, bool) {
	i, ok := g.index[id]
	if !ok {
		return models.ResolvedEntity{}, false
	}
	return g.nodes[i], true
}

// Nodes returns all entities ordered by ID
func (g *Graph) Nodes() []models.ResolvedEntity {
	out := make([]models.ResolvedEntity, len(g.nodes))
	copy(out, g.nodes)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns a copy of every edge
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgeBetween looks up the merged edge for (src, dst, rel)
func (g *Graph) EdgeBetween(src, dst string, rel models.Relationship) (Edge, bool) {
	si, ok := g.index[src]
	if !ok {
		return Edge{}, false
	}
	di, ok := g.index[dst]
	if !ok {
		return Edge{}, false
	}
	if i, ok := g.edgeIdx[edgeKey{src: si, dst: di, rel: rel}]; ok {
		return g.edges[i], true
	}
	return Edge{}, false
}

// NodeCount and EdgeCount report graph size
func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// neighbors lists distinct adjacent node indices, treating edges as
// undirected.
func (g *Graph) neighbors(i int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, ei := range g.out[i] {
		d := g.index[g.edges[ei].Dst]
		if !seen[d] && d != i {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, ei := range g.in[i] {
		s := g.index[g.edges[ei].Src]
		if !seen[s] && s != i {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func unionSorted(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
