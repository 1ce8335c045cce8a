package resolve

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/trailhound/trailhound/internal/match"
	"github.com/trailhound/trailhound/internal/models"
)

// Scores at or above ambiguousFloor but below the merge threshold are
// flagged for human review instead of merged.
const ambiguousFloor = 60

// Edge is a derived relationship between two resolved entities, handed
// to the graph as clusters form.
type Edge struct {
	SrcID      string
	DstID      string
	Rel        models.Relationship
	Class      models.EdgeClass
	Strength   float64
	Confidence float64
	Sources    []string
}

// Resolver clusters normalized candidates into resolved entities. The
// outcome for a fixed candidate set is independent of input order.
type Resolver struct {
	matcher        *match.Matcher
	mergeThreshold float64
	logger         *slog.Logger
}

// New creates a resolver. mergeThreshold is on the 0-100 match scale.
func New(matcher *match.Matcher, mergeThreshold float64) *Resolver {
	if mergeThreshold <= 0 {
		mergeThreshold = 70
	}
	return &Resolver{
		matcher:        matcher,
		mergeThreshold: mergeThreshold,
		logger:         slog.Default().With("component", "resolver"),
	}
}

// Resolve clusters the candidate set and derives co-mention edges.
func (r *Resolver) Resolve(entities []models.NormalizedEntity) ([]models.ResolvedEntity, []Edge) {
	// Fix a canonical processing order so arrival order cannot influence
	// blocking, pairing, or merge outcomes.
	ordered := make([]models.NormalizedEntity, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Candidate.ID < ordered[j].Candidate.ID
	})

	pairs := r.scorePairs(ordered)

	uf := newUnionFind(len(ordered))
	for _, p := range pairs {
		if p.score >= r.mergeThreshold {
			uf.union(p.a, p.b)
		}
	}

	ambiguous := make(map[int]bool)
	for _, p := range pairs {
		if p.score >= ambiguousFloor && p.score < r.mergeThreshold &&
			uf.find(p.a) != uf.find(p.b) {
			ambiguous[p.a] = true
			ambiguous[p.b] = true
			r.logger.Info("ambiguous candidate pair left unmerged",
				"candidate_a", ordered[p.a].Candidate.ID,
				"candidate_b", ordered[p.b].Candidate.ID,
				"score", p.score,
			)
		}
	}

	var resolved []models.ResolvedEntity
	for _, members := range splitWeakClusters(uf.components(), pairs, ordered) {
		cluster := make([]models.NormalizedEntity, len(members))
		isAmbiguous := false
		for i, idx := range members {
			cluster[i] = ordered[idx]
			if ambiguous[idx] {
				isAmbiguous = true
			}
		}
		entity := buildEntity(cluster)
		entity.Ambiguous = isAmbiguous
		resolved = append(resolved, entity)
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID < resolved[j].ID })
	return resolved, deriveEdges(resolved)
}

type scoredPair struct {
	a, b  int
	score float64
}

// scorePairs blocks candidates by cheap keys and scores every comparable
// same-type pair exactly once.
func (r *Resolver) scorePairs(ordered []models.NormalizedEntity) []scoredPair {
	blocks := make(map[string][]int)
	addBlock := func(key string, idx int) {
		if key != "" {
			blocks[key] = append(blocks[key], idx)
		}
	}
	for i, ne := range ordered {
		c := ne.Canonical
		addBlock("ek:"+c.EmailKey, i)
		addBlock("ph:"+c.E164, i)
		addBlock("dm:"+c.Domain, i)
		for _, code := range c.PhoneticCodes {
			addBlock("pc:"+code, i)
		}
		for _, v := range c.UsernameVariants {
			addBlock("uv:"+v, i)
		}
	}

	seen := make(map[[2]int]bool)
	var pairs []scoredPair
	for _, members := range blocks {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				a, b := members[x], members[y]
				if ordered[a].Candidate.Type != ordered[b].Candidate.Type {
					continue
				}
				key := [2]int{a, b}
				if seen[key] {
					continue
				}
				seen[key] = true
				pairs = append(pairs, scoredPair{a: a, b: b, score: r.matcher.Score(ordered[a], ordered[b]).Score})
			}
		}
	}
	// Deterministic pair order regardless of block-map iteration
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})
	return pairs
}

// splitWeakClusters breaks up clusters whose combined confidence falls
// below the unlikely floor by removing their weakest accepted merge.
func splitWeakClusters(components map[int][]int, pairs []scoredPair, ordered []models.NormalizedEntity) [][]int {
	var out [][]int
	for _, members := range components {
		out = append(out, splitOne(members, pairs, ordered)...)
	}
	// Canonical order for deterministic output
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func splitOne(members []int, pairs []scoredPair, ordered []models.NormalizedEntity) [][]int {
	for len(members) > 1 {
		cluster := make([]models.NormalizedEntity, len(members))
		for i, idx := range members {
			cluster[i] = ordered[idx]
		}
		if clusterConfidence(cluster) >= ambiguousFloor {
			break
		}

		inCluster := make(map[int]bool, len(members))
		for _, idx := range members {
			inCluster[idx] = true
		}
		weakest := -1
		for i, p := range pairs {
			if !inCluster[p.a] || !inCluster[p.b] {
				continue
			}
			if weakest < 0 || p.score < pairs[weakest].score {
				weakest = i
			}
		}
		if weakest < 0 {
			break
		}

		// Rebuild connectivity without the weakest link
		local := newUnionFind(len(members))
		pos := make(map[int]int, len(members))
		for i, idx := range members {
			pos[idx] = i
		}
		for i, p := range pairs {
			if i == weakest || !inCluster[p.a] || !inCluster[p.b] {
				continue
			}
			local.union(pos[p.a], pos[p.b])
		}
		comps := local.components()
		if len(comps) == 1 {
			// Removing the link did not disconnect anything
			break
		}
		var result [][]int
		for _, localMembers := range comps {
			sub := make([]int, len(localMembers))
			for i, lm := range localMembers {
				sub[i] = members[lm]
			}
			result = append(result, splitOne(sub, pairs, ordered)...)
		}
		return result
	}
	return [][]int{members}
}

// buildEntity merges a cluster into one resolved entity with conflict
// tracking. The entity ID is derived from the member candidate IDs, so
// the same cluster always produces the same entity.
func buildEntity(cluster []models.NormalizedEntity) models.ResolvedEntity {
	memberIDs := make([]string, len(cluster))
	for i, ne := range cluster {
		memberIDs[i] = ne.Candidate.ID
	}
	sort.Strings(memberIDs)

	attrs, disputed := mergeAttributes(cluster)
	confidence := clusterConfidence(cluster)

	sources := make(map[string]bool)
	refs := make(map[string]bool)
	for _, ne := range cluster {
		sources[ne.Candidate.SourceName] = true
		for _, ref := range ne.Candidate.SourceRefs {
			refs[ref] = true
		}
	}

	return models.ResolvedEntity{
		ID:                 entityID(memberIDs),
		Type:               cluster[0].Candidate.Type,
		Attributes:         attrs,
		DisputedAttributes: disputed,
		Confidence:         confidence,
		Verification:       models.VerificationFromConfidence(confidence),
		MemberCandidates:   memberIDs,
		Sources:            sortedKeys(sources),
		SourceRefs:         sortedKeys(refs),
	}
}

func entityID(sortedMemberIDs []string) string {
	return fmt.Sprintf("ent-%016x", xxhash.Sum64String(strings.Join(sortedMemberIDs, "|")))
}

// mergeAttributes coalesces singleton values and resolves conflicts by
// source confidence, then extraction confidence, then recency. Losing
// values land in disputed_attributes.
func mergeAttributes(cluster []models.NormalizedEntity) (map[string]string, map[string][]string) {
	type valued struct {
		value string
		ne    models.NormalizedEntity
	}
	byKey := make(map[string][]valued)
	for _, ne := range cluster {
		for k, v := range ne.Candidate.Attributes {
			if v == "" {
				continue
			}
			byKey[k] = append(byKey[k], valued{value: v, ne: ne})
		}
	}

	attrs := make(map[string]string, len(byKey))
	var disputed map[string][]string
	for k, vals := range byKey {
		distinct := make(map[string]valued)
		for _, v := range vals {
			prev, exists := distinct[strings.ToLower(v.value)]
			if !exists || betterWitness(v.ne, prev.ne) {
				distinct[strings.ToLower(v.value)] = v
			}
		}
		if len(distinct) == 1 {
			for _, v := range distinct {
				attrs[k] = v.value
			}
			continue
		}

		var winners []valued
		for _, v := range distinct {
			winners = append(winners, v)
		}
		sort.Slice(winners, func(i, j int) bool {
			if betterWitness(winners[i].ne, winners[j].ne) {
				return true
			}
			if betterWitness(winners[j].ne, winners[i].ne) {
				return false
			}
			return winners[i].value < winners[j].value
		})
		attrs[k] = winners[0].value
		if disputed == nil {
			disputed = make(map[string][]string)
		}
		for _, loser := range winners[1:] {
			disputed[k] = append(disputed[k], loser.value)
		}
	}
	return attrs, disputed
}

func betterWitness(a, b models.NormalizedEntity) bool {
	if a.Candidate.SourceConfidence != b.Candidate.SourceConfidence {
		return a.Candidate.SourceConfidence > b.Candidate.SourceConfidence
	}
	if a.Candidate.ExtractionConfidence != b.Candidate.ExtractionConfidence {
		return a.Candidate.ExtractionConfidence > b.Candidate.ExtractionConfidence
	}
	return a.Candidate.RetrievedAt.After(b.Candidate.RetrievedAt)
}

// clusterConfidence combines member evidence on the 0-100 scale: each
// independent witness reduces residual doubt multiplicatively.
func clusterConfidence(cluster []models.NormalizedEntity) float64 {
	doubt := 1.0
	for _, ne := range cluster {
		strength := ne.Candidate.SourceConfidence * ne.Candidate.ExtractionConfidence
		if strength < 0 {
			strength = 0
		}
		if strength > 0.99 {
			strength = 0.99
		}
		doubt *= 1 - strength
	}
	return (1 - doubt) * 100
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
