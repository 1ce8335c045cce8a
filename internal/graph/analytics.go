package graph

import (
	"math"
	"sort"

	"github.com/trailhound/trailhound/internal/models"
)

const (
	pagerankDamping    = 0.85
	pagerankIterations = 20
	pagerankEpsilon    = 1e-4

	betweennessSampleThreshold = 1000
	betweennessSamples         = 100
)

// Subgraph is the result of an ego-network extraction
type Subgraph struct {
	Nodes []models.ResolvedEntity `json:"nodes"`
	Edges []Edge                  `json:"edges"`
}

// EgoNetwork returns the BFS subgraph around a node, depth-capped to
// 1..5 hops over undirected adjacency.
func (g *Graph) EgoNetwork(id string, depth int) (Subgraph, bool) {
	center, ok := g.index[id]
	if !ok {
		return Subgraph{}, false
	}
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	dist := map[int]int{center: 0}
	frontier := []int{center}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []int
		for _, i := range frontier {
			for _, n := range g.neighbors(i) {
				if _, seen := dist[n]; !seen {
					dist[n] = d + 1
					next = append(next, n)
				}
			}
		}
		frontier = next
	}

	var sub Subgraph
	for i := range g.nodes {
		if _, ok := dist[i]; ok {
			sub.Nodes = append(sub.Nodes, g.nodes[i])
		}
	}
	sort.Slice(sub.Nodes, func(i, j int) bool { return sub.Nodes[i].ID < sub.Nodes[j].ID })
	for _, e := range g.edges {
		_, sok := dist[g.index[e.Src]]
		_, dok := dist[g.index[e.Dst]]
		if sok && dok {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub, true
}

// ShortestPath returns the node IDs along a shortest directed path,
// breaking equal-length ties by higher path confidence (product of edge
// confidences). Returns false when no path exists.
func (g *Graph) ShortestPath(src, dst string) ([]string, float64, bool) {
	si, ok := g.index[src]
	if !ok {
		return nil, 0, false
	}
	di, ok := g.index[dst]
	if !ok {
		return nil, 0, false
	}
	if si == di {
		return []string{src}, 1, true
	}

	type state struct {
		dist int
		conf float64
		prev int
	}
	best := map[int]state{si: {dist: 0, conf: 1, prev: -1}}
	frontier := []int{si}
	for len(frontier) > 0 {
		var next []int
		for _, i := range frontier {
			cur := best[i]
			for _, ei := range g.out[i] {
				e := g.edges[ei]
				n := g.index[e.Dst]
				cand := state{dist: cur.dist + 1, conf: cur.conf * e.Confidence, prev: i}
				prev, seen := best[n]
				switch {
				case !seen:
					best[n] = cand
					next = append(next, n)
				case cand.dist == prev.dist && cand.conf > prev.conf:
					best[n] = cand
				}
			}
		}
		if _, ok := best[di]; ok {
			break
		}
		frontier = next
	}

	end, ok := best[di]
	if !ok {
		return nil, 0, false
	}
	var path []string
	for i := di; i != -1; i = best[i].prev {
		path = append(path, g.nodes[i].ID)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path, end.conf, true
}

// TransitiveClosure adds inferred A→C edges wherever A→B and B→C carry
// the relationship, up to maxDepth hops. Inferred strength is the
// product along the path; confidence is the product with a 0.9 penalty
// per hop. Existing direct edges are not downgraded.
func (g *Graph) TransitiveClosure(rel models.Relationship, maxDepth int) int {
	if maxDepth < 2 {
		maxDepth = 2
	}
	type inferred struct {
		strength, confidence float64
		sources              []string
	}

	added := 0
	for start := range g.nodes {
		// Depth-bounded walk along rel edges from each node
		type walk struct {
			node       int
			depth      int
			strength   float64
			confidence float64
			sources    []string
		}
		queue := []walk{{node: start, depth: 0, strength: 1, confidence: 1}}
		reached := make(map[int]inferred)
		for len(queue) > 0 {
			w := queue[0]
			queue = queue[1:]
			if w.depth >= maxDepth {
				continue
			}
			for _, ei := range g.out[w.node] {
				e := g.edges[ei]
				if e.Rel != rel {
					continue
				}
				n := g.index[e.Dst]
				if n == start {
					continue
				}
				next := walk{
					node:       n,
					depth:      w.depth + 1,
					strength:   w.strength * e.Strength,
					confidence: w.confidence * e.Confidence * 0.9,
					sources:    unionSorted(w.sources, e.Sources),
				}
				if next.depth >= 2 {
					if prev, ok := reached[n]; !ok || next.strength > prev.strength {
						reached[n] = inferred{strength: next.strength, confidence: next.confidence, sources: next.sources}
					}
				}
				queue = append(queue, next)
			}
		}
		for n, inf := range reached {
			if _, exists := g.edgeIdx[edgeKey{src: start, dst: n, rel: rel}]; exists {
				continue
			}
			_ = g.AddEdge(Edge{
				Src:        g.nodes[start].ID,
				Dst:        g.nodes[n].ID,
				Rel:        rel,
				Class:      models.EdgeTransitive,
				Strength:   inf.strength,
				Confidence: inf.confidence,
				Sources:    inf.sources,
			})
			added++
		}
	}
	return added
}

// PageRank runs the standard iteration: damping 0.85, 20 rounds or until
// the L1 delta drops under 1e-4. Returns scores keyed by entity ID.
func (g *Graph) PageRank() map[string]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}
	}
	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	for iter := 0; iter < pagerankIterations; iter++ {
		base := (1 - pagerankDamping) / float64(n)
		for i := range next {
			next[i] = base
		}
		for i := range g.nodes {
			outDeg := len(g.out[i])
			if outDeg == 0 {
				// Dangling mass spreads uniformly
				share := pagerankDamping * rank[i] / float64(n)
				for j := range next {
					next[j] += share
				}
				continue
			}
			share := pagerankDamping * rank[i] / float64(outDeg)
			for _, ei := range g.out[i] {
				next[g.index[g.edges[ei].Dst]] += share
			}
		}
		delta := 0.0
		for i := range rank {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < pagerankEpsilon {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, node := range g.nodes {
		out[node.ID] = rank[i]
	}
	return out
}

// DegreeCentrality returns normalized undirected degree per entity
func (g *Graph) DegreeCentrality() map[string]float64 {
	n := len(g.nodes)
	out := make(map[string]float64, n)
	if n <= 1 {
		for _, node := range g.nodes {
			out[node.ID] = 0
		}
		return out
	}
	for i, node := range g.nodes {
		out[node.ID] = float64(len(g.neighbors(i))) / float64(n-1)
	}
	return out
}

// BetweennessCentrality runs Brandes' accumulation over undirected
// shortest paths. Above the sample threshold only a deterministic sample
// of sources is used.
func (g *Graph) BetweennessCentrality() map[string]float64 {
	n := len(g.nodes)
	score := make([]float64, n)

	sources := make([]int, 0, n)
	for i := 0; i < n; i++ {
		sources = append(sources, i)
	}
	if n > betweennessSampleThreshold {
		step := n / betweennessSamples
		var sampled []int
		for i := 0; i < n; i += step {
			sampled = append(sampled, i)
		}
		sources = sampled
	}

	for _, s := range sources {
		// Brandes single-source phase
		stack := make([]int, 0, n)
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.neighbors(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}
		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				score[w] += delta[w]
			}
		}
	}

	out := make(map[string]float64, n)
	scale := 1.0
	if len(sources) < n && len(sources) > 0 {
		scale = float64(n) / float64(len(sources))
	}
	for i, node := range g.nodes {
		// Undirected paths are counted twice
		out[node.ID] = score[i] * scale / 2
	}
	return out
}

// Communities returns connected components over the symmetrized graph,
// each component's member IDs sorted, largest first.
func (g *Graph) Communities() [][]string {
	n := len(g.nodes)
	visited := make([]bool, n)
	var comps [][]string
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		var members []string
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			members = append(members, g.nodes[v].ID)
			for _, w := range g.neighbors(v) {
				if !visited[w] {
					visited[w] = true
					queue = append(queue, w)
				}
			}
		}
		sort.Strings(members)
		comps = append(comps, members)
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}

// Stats summarizes the graph
type Stats struct {
	NodeCount      int     `json:"node_count"`
	EdgeCount      int     `json:"edge_count"`
	Density        float64 `json:"density"`
	MeanDegree     float64 `json:"mean_degree"`
	ComponentCount int     `json:"component_count"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// Statistics computes the summary metrics
func (g *Graph) Statistics() Stats {
	s := Stats{NodeCount: len(g.nodes), EdgeCount: len(g.edges)}
	if s.NodeCount > 1 {
		s.Density = float64(s.EdgeCount) / float64(s.NodeCount*(s.NodeCount-1))
		s.MeanDegree = 2 * float64(s.EdgeCount) / float64(s.NodeCount)
	}
	s.ComponentCount = len(g.Communities())
	if s.EdgeCount > 0 {
		sum := 0.0
		for _, e := range g.edges {
			sum += e.Confidence
		}
		s.MeanConfidence = sum / float64(s.EdgeCount)
	}
	return s
}
