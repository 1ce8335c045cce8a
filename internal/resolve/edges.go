package resolve

import (
	"math"
	"strings"

	"github.com/trailhound/trailhound/internal/models"
)

// deriveEdges builds relationship edges from the resolved set: a typed
// relationship where attributes imply one, co_occurs for entities that
// share a raw result otherwise.
func deriveEdges(resolved []models.ResolvedEntity) []Edge {
	var edges []Edge
	for i := 0; i < len(resolved); i++ {
		for j := i + 1; j < len(resolved); j++ {
			a, b := resolved[i], resolved[j]
			shared := sharedRefs(a.SourceRefs, b.SourceRefs)

			if e, ok := typedEdge(a, b, shared); ok {
				edges = append(edges, e)
				continue
			}
			if len(shared) == 0 {
				continue
			}
			edges = append(edges, Edge{
				SrcID:      a.ID,
				DstID:      b.ID,
				Rel:        models.RelCoOccurs,
				Class:      models.EdgeDirect,
				Strength:   coOccurrenceStrength(len(shared)),
				Confidence: minConfidence(a, b),
				Sources:    shared,
			})
		}
	}
	return edges
}

// typedEdge recognizes relationships the merged attributes imply
func typedEdge(a, b models.ResolvedEntity, shared []string) (Edge, bool) {
	// Person works at the organization named as their employer
	if pair, ok := orient(a, b, models.EntityPerson, models.EntityOrganization); ok {
		employer := pair[0].Attributes[models.AttrEmployer]
		org := pair[1].Attributes[models.AttrName]
		if employer != "" && org != "" && tokensOverlap(employer, org) {
			return Edge{
				SrcID:      pair[0].ID,
				DstID:      pair[1].ID,
				Rel:        models.RelWorksWith,
				Class:      models.EdgeDirect,
				Strength:   0.8,
				Confidence: minConfidence(a, b),
				Sources:    shared,
			}, true
		}
	}
	// Named registrant on a WHOIS record registered the domain
	if pair, ok := orient(a, b, models.EntityPerson, models.EntityDomain); ok {
		if len(shared) > 0 && (hasSource(a, "whois") || hasSource(b, "whois")) {
			return Edge{
				SrcID:      pair[0].ID,
				DstID:      pair[1].ID,
				Rel:        models.RelRegistered,
				Class:      models.EdgeDirect,
				Strength:   0.9,
				Confidence: minConfidence(a, b),
				Sources:    shared,
			}, true
		}
	}
	// Registrant email on a WHOIS record registered the domain
	if pair, ok := orient(a, b, models.EntityEmail, models.EntityDomain); ok {
		if len(shared) > 0 && (hasSource(a, "whois") || hasSource(b, "whois")) {
			return Edge{
				SrcID:      pair[0].ID,
				DstID:      pair[1].ID,
				Rel:        models.RelRegistered,
				Class:      models.EdgeDirect,
				Strength:   0.9,
				Confidence: minConfidence(a, b),
				Sources:    shared,
			}, true
		}
	}
	// A social profile carrying the person's exact name is owned by them
	if pair, ok := orient(a, b, models.EntityPerson, models.EntitySocialProfile); ok {
		if len(shared) > 0 {
			return Edge{
				SrcID:      pair[0].ID,
				DstID:      pair[1].ID,
				Rel:        models.RelOwns,
				Class:      models.EdgeInferred,
				Strength:   0.6,
				Confidence: minConfidence(a, b) * 0.8,
				Sources:    shared,
			}, true
		}
	}
	return Edge{}, false
}

// orient returns the pair ordered as (wantFirst, wantSecond) when the
// two entities carry exactly those types.
func orient(a, b models.ResolvedEntity, first, second models.EntityType) ([2]models.ResolvedEntity, bool) {
	if a.Type == first && b.Type == second {
		return [2]models.ResolvedEntity{a, b}, true
	}
	if b.Type == first && a.Type == second {
		return [2]models.ResolvedEntity{b, a}, true
	}
	return [2]models.ResolvedEntity{}, false
}

func sharedRefs(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, r := range a {
		set[r] = true
	}
	var out []string
	for _, r := range b {
		if set[r] {
			out = append(out, r)
		}
	}
	return out
}

func hasSource(e models.ResolvedEntity, name string) bool {
	for _, s := range e.Sources {
		if s == name {
			return true
		}
	}
	return false
}

func tokensOverlap(a, b string) bool {
	setA := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(a)) {
		setA[t] = true
	}
	for _, t := range strings.Fields(strings.ToLower(b)) {
		if setA[t] {
			return true
		}
	}
	return false
}

// Each additional shared raw result halves residual doubt
func coOccurrenceStrength(shared int) float64 {
	return 1 - math.Pow(0.5, float64(shared))
}

func minConfidence(a, b models.ResolvedEntity) float64 {
	conf := a.Confidence
	if b.Confidence < conf {
		conf = b.Confidence
	}
	return conf / 100
}
