package graph

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/internal/models"
)

func entity(id string) models.ResolvedEntity {
	return models.ResolvedEntity{
		ID:         id,
		Type:       models.EntityPerson,
		Confidence: 80,
	}
}

func edge(src, dst string, rel models.Relationship, strength, conf float64) Edge {
	return Edge{
		Src: src, Dst: dst, Rel: rel, Class: models.EdgeDirect,
		Strength: strength, Confidence: conf, Sources: []string{"test"},
	}
}

func lineGraph(ids ...string) *Graph {
	g := New()
	for _, id := range ids {
		g.AddNode(entity(id))
	}
	for i := 0; i+1 < len(ids); i++ {
		_ = g.AddEdge(edge(ids[i], ids[i+1], models.RelKnows, 0.5, 0.9))
	}
	return g
}

func TestAddNodeIdempotent(t *testing.T) {
	g := New()
	g.AddNode(entity("a"))
	g.AddNode(entity("a"))
	assert.Equal(t, 1, g.NodeCount())
}

func TestAddEdgeMergesDuplicates(t *testing.T) {
	g := New()
	g.AddNode(entity("a"))
	g.AddNode(entity("b"))

	require.NoError(t, g.AddEdge(edge("a", "b", models.RelKnows, 0.5, 0.6)))
	require.NoError(t, g.AddEdge(edge("a", "b", models.RelKnows, 0.5, 0.8)))

	assert.Equal(t, 1, g.EdgeCount())
	merged, ok := g.EdgeBetween("a", "b", models.RelKnows)
	require.True(t, ok)
	// 1 - (1-0.5)(1-0.5)
	assert.InDelta(t, 0.75, merged.Strength, 0.001)
	assert.Equal(t, 0.8, merged.Confidence)
}

func TestEdgeMergeMonotonic(t *testing.T) {
	g := New()
	g.AddNode(entity("a"))
	g.AddNode(entity("b"))
	require.NoError(t, g.AddEdge(edge("a", "b", models.RelKnows, 0.6, 0.9)))

	before, _ := g.EdgeBetween("a", "b", models.RelKnows)
	require.NoError(t, g.AddEdge(edge("a", "b", models.RelKnows, 0.1, 0.2)))
	after, _ := g.EdgeBetween("a", "b", models.RelKnows)

	assert.GreaterOrEqual(t, after.Strength, before.Strength)
	assert.GreaterOrEqual(t, after.Confidence, before.Confidence)
	assert.LessOrEqual(t, after.Strength, 1.0)
}

func TestSelfEdgeRules(t *testing.T) {
	g := New()
	g.AddNode(entity("a"))

	assert.Error(t, g.AddEdge(edge("a", "a", models.RelKnows, 0.5, 0.5)))
	assert.NoError(t, g.AddEdge(edge("a", "a", models.RelSameIdentity, 0.5, 0.5)))
}

func TestAddEdgeRequiresNodes(t *testing.T) {
	g := New()
	g.AddNode(entity("a"))
	assert.Error(t, g.AddEdge(edge("a", "ghost", models.RelKnows, 0.5, 0.5)))
}

func TestEgoNetworkDepthCap(t *testing.T) {
	g := lineGraph("a", "b", "c", "d", "e")

	sub, ok := g.EgoNetwork("a", 2)
	require.True(t, ok)
	assert.Len(t, sub.Nodes, 3) // a, b, c
	assert.Len(t, sub.Edges, 2)

	_, ok = g.EgoNetwork("ghost", 2)
	assert.False(t, ok)
}

func TestShortestPath(t *testing.T) {
	g := lineGraph("a", "b", "c")
	path, conf, ok := g.ShortestPath("a", "c")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, path)
	assert.InDelta(t, 0.81, conf, 0.001)

	_, _, ok = g.ShortestPath("c", "a")
	assert.False(t, ok, "edges are directed")
}

func TestShortestPathPrefersConfidentTie(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b1", "b2", "c"} {
		g.AddNode(entity(id))
	}
	_ = g.AddEdge(edge("a", "b1", models.RelKnows, 0.5, 0.5))
	_ = g.AddEdge(edge("b1", "c", models.RelKnows, 0.5, 0.5))
	_ = g.AddEdge(edge("a", "b2", models.RelKnows, 0.5, 0.9))
	_ = g.AddEdge(edge("b2", "c", models.RelKnows, 0.5, 0.9))

	path, conf, ok := g.ShortestPath("a", "c")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b2", "c"}, path)
	assert.InDelta(t, 0.81, conf, 0.001)
}

func TestTransitiveClosure(t *testing.T) {
	g := lineGraph("a", "b", "c")

	added := g.TransitiveClosure(models.RelKnows, 2)
	assert.Equal(t, 1, added)

	inferred, ok := g.EdgeBetween("a", "c", models.RelKnows)
	require.True(t, ok)
	assert.Equal(t, models.EdgeTransitive, inferred.Class)
	assert.InDelta(t, 0.25, inferred.Strength, 0.001) // 0.5 * 0.5
	// 0.9 * 0.9 edge confidences with a 0.9 penalty per hop
	assert.InDelta(t, 0.9*0.9*0.9*0.9, inferred.Confidence, 0.001)
}

func TestPageRankSink(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "hub"} {
		g.AddNode(entity(id))
	}
	_ = g.AddEdge(edge("a", "hub", models.RelKnows, 0.5, 0.9))
	_ = g.AddEdge(edge("b", "hub", models.RelKnows, 0.5, 0.9))

	ranks := g.PageRank()
	assert.Greater(t, ranks["hub"], ranks["a"])
	assert.Greater(t, ranks["hub"], ranks["b"])

	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestDegreeCentrality(t *testing.T) {
	g := lineGraph("a", "b", "c")
	deg := g.DegreeCentrality()
	assert.InDelta(t, 1.0, deg["b"], 0.001)
	assert.InDelta(t, 0.5, deg["a"], 0.001)
}

func TestBetweennessCentrality(t *testing.T) {
	g := lineGraph("a", "b", "c")
	bc := g.BetweennessCentrality()
	assert.Greater(t, bc["b"], bc["a"])
	assert.Equal(t, 0.0, bc["a"])
}

func TestCommunities(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c", "x", "y", "lone"} {
		g.AddNode(entity(id))
	}
	_ = g.AddEdge(edge("a", "b", models.RelKnows, 0.5, 0.9))
	_ = g.AddEdge(edge("b", "c", models.RelKnows, 0.5, 0.9))
	_ = g.AddEdge(edge("x", "y", models.RelKnows, 0.5, 0.9))

	comps := g.Communities()
	require.Len(t, comps, 3)
	assert.Equal(t, []string{"a", "b", "c"}, comps[0])
	assert.Equal(t, []string{"x", "y"}, comps[1])
	assert.Equal(t, []string{"lone"}, comps[2])
}

func TestStatistics(t *testing.T) {
	g := lineGraph("a", "b", "c")
	s := g.Statistics()
	assert.Equal(t, 3, s.NodeCount)
	assert.Equal(t, 2, s.EdgeCount)
	assert.Equal(t, 1, s.ComponentCount)
	assert.InDelta(t, 0.9, s.MeanConfidence, 0.001)
	assert.InDelta(t, 2.0/6.0, s.Density, 0.001)
}

func TestNodeSupersetInvariant(t *testing.T) {
	g := lineGraph("a", "b", "c", "d")
	g.TransitiveClosure(models.RelKnows, 3)

	for _, e := range g.Edges() {
		_, srcOK := g.Node(e.Src)
		_, dstOK := g.Node(e.Dst)
		assert.True(t, srcOK && dstOK, "edge endpoints must be nodes")
		assert.False(t, math.IsNaN(e.Strength))
		assert.True(t, e.Strength >= 0 && e.Strength <= 1, fmt.Sprintf("strength %v", e.Strength))
		assert.True(t, e.Confidence >= 0 && e.Confidence <= 1)
	}
}
