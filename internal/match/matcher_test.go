package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/normalize"
)

func normalized(attrs map[string]string) models.NormalizedEntity {
	n := normalize.New(models.GeographicHints{Country: "US"})
	return n.Normalize(models.Candidate{
		Type:             models.EntityPerson,
		Attributes:       attrs,
		SourceConfidence: 0.8,
	})
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "Levenshtein(%q,%q)", tt.a, tt.b)
	}
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("martha", "martha"))
	assert.InDelta(t, 0.961, JaroWinkler("martha", "marhta"), 0.01)
	assert.Equal(t, 0.0, JaroWinkler("abc", "xyz"))
	// Symmetric
	assert.Equal(t, JaroWinkler("dwayne", "duane"), JaroWinkler("duane", "dwayne"))
}

func TestTokenSetJaccard(t *testing.T) {
	assert.Equal(t, 1.0, TokenSetJaccard("alice roe", "roe alice"))
	assert.InDelta(t, 0.333, TokenSetJaccard("alice roe", "alice smith"), 0.01)
	assert.Equal(t, 0.0, TokenSetJaccard("alice", "bob"))
}

func TestScoreExactEmailMatch(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{models.AttrEmail: "alice.roe+news@gmail.com"})
	b := normalized(map[string]string{models.AttrEmail: "aliceroe@gmail.com"})

	r := m.Score(a, b)
	// Email is the only comparable field, so its weight renormalizes to 100%
	assert.Equal(t, 100.0, r.Score)
	assert.Len(t, r.Fields, 1)
	assert.Equal(t, "deliverable_key", r.Fields[0].Algorithm)
	assert.NotEmpty(t, r.Reasoning)
}

func TestScoreSymmetric(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{
		models.AttrName:     "Alice Roe",
		models.AttrUsername: "alice_roe",
	})
	b := normalized(map[string]string{
		models.AttrName:     "Roe Alice",
		models.AttrUsername: "aliceroe",
	})
	assert.InDelta(t, m.Score(a, b).Score, m.Score(b, a).Score, 0.001)
}

func TestScoreNameVariants(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{models.AttrName: "Alice Roe"})

	exact := m.Score(a, normalized(map[string]string{models.AttrName: "Roe, Alice"}))
	assert.Equal(t, 100.0, exact.Score, "token order must not matter")

	typo := m.Score(a, normalized(map[string]string{models.AttrName: "Alice Role"}))
	assert.Greater(t, typo.Score, 70.0)
	assert.Less(t, typo.Score, 100.0)

	different := m.Score(a, normalized(map[string]string{models.AttrName: "Bob Quartz"}))
	assert.Less(t, different.Score, 60.0)
}

func TestScorePhoneRules(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{models.AttrPhone: "+15551234567"})

	exact := m.Score(a, normalized(map[string]string{models.AttrPhone: "(555) 123-4567"}))
	assert.Equal(t, 100.0, exact.Score)

	last7 := m.Score(a, normalized(map[string]string{models.AttrPhone: "+445551234567"}))
	assert.Equal(t, 80.0, last7.Score)
}

func TestScoreUsernameVariant(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{models.AttrUsername: "alice_roe"})
	b := normalized(map[string]string{models.AttrUsername: "alice.roe"})

	r := m.Score(a, b)
	// Canonical forms are identical once separators are stripped
	assert.Equal(t, 100.0, r.Score)
}

func TestScoreBiographical(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{
		models.AttrName:      "Alice Roe",
		models.AttrBirthYear: "1990",
		models.AttrCity:      "Lisbon",
	})
	b := normalized(map[string]string{
		models.AttrName:      "Alice Roe",
		models.AttrBirthYear: "1991",
		models.AttrCity:      "Lisbon",
	})
	r := m.Score(a, b)
	assert.Equal(t, 100.0, fieldScore(r, "name"))
	// (70 + 60) / 2 comparable hints
	assert.InDelta(t, 65.0, fieldScore(r, "biographical"), 0.01)
}

func TestScoreNoComparableFields(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{models.AttrEmail: "alice@example.com"})
	b := normalized(map[string]string{models.AttrPhone: "+15551234567"})

	r := m.Score(a, b)
	assert.Equal(t, 0.0, r.Score)
	assert.Contains(t, r.Reasoning[0], "no comparable fields")
}

func TestWeightRenormalization(t *testing.T) {
	m := New(DefaultWeights())
	a := normalized(map[string]string{
		models.AttrName:  "Alice Roe",
		models.AttrEmail: "alice@example.com",
	})
	b := normalized(map[string]string{
		models.AttrName:  "Alice Roe",
		models.AttrEmail: "alice@example.com",
	})
	r := m.Score(a, b)
	totalWeight := 0.0
	for _, f := range r.Fields {
		totalWeight += f.Weight
	}
	assert.InDelta(t, 100.0, totalWeight, 0.001)
	assert.Equal(t, 100.0, r.Score)
}

func fieldScore(r Result, field string) float64 {
	for _, f := range r.Fields {
		if f.Field == field {
			return f.Score
		}
	}
	return -1
}
