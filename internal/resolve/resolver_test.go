package resolve

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/internal/match"
	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/normalize"
)

func newResolver(threshold float64) *Resolver {
	return New(match.New(match.DefaultWeights()), threshold)
}

func normalizeAll(t *testing.T, cands []models.Candidate) []models.NormalizedEntity {
	t.Helper()
	n := normalize.New(models.GeographicHints{Country: "US"})
	return n.NormalizeAll(cands)
}

func candidate(id, source string, sourceConf float64, typ models.EntityType, attrs map[string]string) models.Candidate {
	return models.Candidate{
		ID:                   id,
		Type:                 typ,
		Attributes:           attrs,
		SourceRefs:           []string{"raw-" + id},
		SourceName:           source,
		SourceConfidence:     sourceConf,
		ExtractionConfidence: 0.9,
		RetrievedAt:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestResolveMergesAliasedEmails(t *testing.T) {
	r := newResolver(70)
	cands := []models.Candidate{
		candidate("a", "github", 0.85, models.EntityEmail,
			map[string]string{models.AttrEmail: "alice.roe+work@gmail.com"}),
		candidate("b", "hibp", 0.95, models.EntityEmail,
			map[string]string{models.AttrEmail: "aliceroe@googlemail.com"}),
	}
	resolved, _ := r.Resolve(normalizeAll(t, cands))

	require.Len(t, resolved, 1)
	assert.Len(t, resolved[0].MemberCandidates, 2)
	assert.ElementsMatch(t, []string{"github", "hibp"}, resolved[0].Sources)
	assert.Greater(t, resolved[0].Confidence, 90.0)
	assert.Equal(t, models.VerificationVerified, resolved[0].Verification)
}

func TestResolveKeepsDistinctPeopleApart(t *testing.T) {
	r := newResolver(70)
	cands := []models.Candidate{
		candidate("a", "duckduckgo", 0.5, models.EntityPerson,
			map[string]string{models.AttrName: "Alice Roe"}),
		candidate("b", "duckduckgo", 0.5, models.EntityPerson,
			map[string]string{models.AttrName: "Bob Quartz"}),
	}
	resolved, _ := r.Resolve(normalizeAll(t, cands))
	assert.Len(t, resolved, 2)
}

func TestResolveOrderIndependent(t *testing.T) {
	cands := []models.Candidate{
		candidate("a", "github", 0.85, models.EntityPerson,
			map[string]string{models.AttrName: "Alice Roe", models.AttrEmployer: "Example Labs"}),
		candidate("b", "duckduckgo", 0.5, models.EntityPerson,
			map[string]string{models.AttrName: "Roe Alice"}),
		candidate("c", "duckduckgo", 0.5, models.EntityPerson,
			map[string]string{models.AttrName: "Bob Quartz"}),
		candidate("d", "hibp", 0.95, models.EntityEmail,
			map[string]string{models.AttrEmail: "alice@example.com"}),
		candidate("e", "github", 0.85, models.EntityEmail,
			map[string]string{models.AttrEmail: "alice@example.com"}),
	}

	baseline, _ := newResolver(70).Resolve(normalizeAll(t, cands))
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]models.Candidate, len(cands))
		copy(shuffled, cands)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got, _ := newResolver(70).Resolve(normalizeAll(t, shuffled))

		require.Len(t, got, len(baseline))
		for i := range baseline {
			assert.Equal(t, baseline[i].ID, got[i].ID)
			assert.Equal(t, baseline[i].MemberCandidates, got[i].MemberCandidates)
			assert.Equal(t, baseline[i].Confidence, got[i].Confidence)
		}
	}
}

func TestResolveConflictResolution(t *testing.T) {
	r := newResolver(70)
	older := candidate("a", "duckduckgo", 0.5, models.EntityPerson,
		map[string]string{
			models.AttrName:     "Alice Roe",
			models.AttrEmail:    "alice@example.com",
			models.AttrEmployer: "Old Corp",
		})
	newer := candidate("b", "github", 0.85, models.EntityPerson,
		map[string]string{
			models.AttrName:     "Alice Roe",
			models.AttrEmail:    "alice@example.com",
			models.AttrEmployer: "Example Labs",
		})

	resolved, _ := r.Resolve(normalizeAll(t, []models.Candidate{older, newer}))
	require.Len(t, resolved, 1)

	// The higher source confidence wins the conflict
	assert.Equal(t, "Example Labs", resolved[0].Attributes[models.AttrEmployer])
	assert.Contains(t, resolved[0].DisputedAttributes[models.AttrEmployer], "Old Corp")
}

func TestResolveAmbiguousPairNotMerged(t *testing.T) {
	// Similar but not identical names at a high threshold: the pair lands
	// between the ambiguous floor and the merge threshold.
	r := newResolver(99)
	cands := []models.Candidate{
		candidate("a", "duckduckgo", 0.5, models.EntityPerson,
			map[string]string{models.AttrName: "Alice Roe"}),
		candidate("b", "duckduckgo", 0.5, models.EntityPerson,
			map[string]string{models.AttrName: "Alice Role"}),
	}
	resolved, _ := r.Resolve(normalizeAll(t, cands))

	require.Len(t, resolved, 2)
	for _, e := range resolved {
		assert.True(t, e.Ambiguous, "unmerged near-threshold pair should be flagged")
	}
}

func TestResolveDerivesWorksWithEdge(t *testing.T) {
	r := newResolver(70)
	cands := []models.Candidate{
		candidate("a", "github", 0.85, models.EntityPerson,
			map[string]string{models.AttrName: "Alice Roe", models.AttrEmployer: "Example Labs"}),
		candidate("b", "github", 0.85, models.EntityOrganization,
			map[string]string{models.AttrName: "Example Labs"}),
	}
	// Same raw result
	cands[1].SourceRefs = []string{"raw-a"}

	resolved, edges := r.Resolve(normalizeAll(t, cands))
	require.Len(t, resolved, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, models.RelWorksWith, edges[0].Rel)
	assert.Equal(t, models.EdgeDirect, edges[0].Class)
}

func TestResolveDerivesCoOccursEdge(t *testing.T) {
	r := newResolver(70)
	cands := []models.Candidate{
		candidate("a", "duckduckgo", 0.5, models.EntityEmail,
			map[string]string{models.AttrEmail: "alice@example.com"}),
		candidate("b", "duckduckgo", 0.5, models.EntityUsername,
			map[string]string{models.AttrUsername: "quartzbob"}),
	}
	cands[1].SourceRefs = []string{"raw-a"}

	_, edges := r.Resolve(normalizeAll(t, cands))
	require.Len(t, edges, 1)
	assert.Equal(t, models.RelCoOccurs, edges[0].Rel)
	assert.InDelta(t, 0.5, edges[0].Strength, 0.001)
}

func TestResolveRegisteredEdgeFromWhois(t *testing.T) {
	r := newResolver(70)
	email := candidate("a", "whois", 0.9, models.EntityEmail,
		map[string]string{models.AttrEmail: "alice@aroe.example"})
	domain := candidate("b", "whois", 0.9, models.EntityDomain,
		map[string]string{models.AttrDomain: "aroe.example"})
	domain.SourceRefs = []string{"raw-a"}

	_, edges := r.Resolve(normalizeAll(t, []models.Candidate{email, domain}))
	require.Len(t, edges, 1)
	assert.Equal(t, models.RelRegistered, edges[0].Rel)
}

func TestEntityIDStableAcrossRuns(t *testing.T) {
	a := entityID([]string{"c-1", "c-2"})
	b := entityID([]string{"c-1", "c-2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entityID([]string{"c-1", "c-3"}))
}
