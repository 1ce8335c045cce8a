package match

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trailhound/trailhound/internal/models"
)

// Weights distribute the overall score across comparison fields. Fields
// absent from both records drop out and the rest renormalize.
type Weights struct {
	Name         float64
	Email        float64
	Phone        float64
	Username     float64
	Biographical float64
}

// DefaultWeights is the standard distribution
func DefaultWeights() Weights {
	return Weights{Name: 25, Email: 25, Phone: 15, Username: 15, Biographical: 20}
}

// FieldScore is the per-field breakdown of one comparison
type FieldScore struct {
	Field        string  `json:"field"`
	Algorithm    string  `json:"algorithm"`
	Score        float64 `json:"score"`  // 0-100
	Weight       float64 `json:"weight"` // effective, post-renormalization
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail"`
}

// Result is a scored comparison between two entity records
type Result struct {
	Score     float64      `json:"score"` // 0-100
	Fields    []FieldScore `json:"fields"`
	Reasoning []string     `json:"reasoning"`
}

// Matcher computes weighted similarity between two normalized records
type Matcher struct {
	weights Weights
}

// New creates a matcher with the given weights; zero weights fall back
// to the defaults.
func New(weights Weights) *Matcher {
	if weights.Name+weights.Email+weights.Phone+weights.Username+weights.Biographical == 0 {
		weights = DefaultWeights()
	}
	return &Matcher{weights: weights}
}

// Score compares two normalized records and returns the weighted score
// with per-field reasoning. Comparisons are symmetric.
func (m *Matcher) Score(a, b models.NormalizedEntity) Result {
	type fieldEval struct {
		name   string
		weight float64
		eval   func() (float64, string, string, bool)
	}
	evals := []fieldEval{
		{"name", m.weights.Name, func() (float64, string, string, bool) { return scoreName(a, b) }},
		{"email", m.weights.Email, func() (float64, string, string, bool) { return scoreEmail(a, b) }},
		{"phone", m.weights.Phone, func() (float64, string, string, bool) { return scorePhone(a, b) }},
		{"username", m.weights.Username, func() (float64, string, string, bool) { return scoreUsername(a, b) }},
		{"biographical", m.weights.Biographical, func() (float64, string, string, bool) { return scoreBio(a, b) }},
	}

	var fields []FieldScore
	totalWeight := 0.0
	for _, fe := range evals {
		score, algorithm, detail, applicable := fe.eval()
		if !applicable {
			continue
		}
		totalWeight += fe.weight
		fields = append(fields, FieldScore{
			Field:     fe.name,
			Algorithm: algorithm,
			Score:     score,
			Weight:    fe.weight,
			Detail:    detail,
		})
	}
	if totalWeight == 0 {
		return Result{Reasoning: []string{"no comparable fields"}}
	}

	total := 0.0
	reasoning := make([]string, 0, len(fields))
	for i := range fields {
		fields[i].Weight = fields[i].Weight / totalWeight * 100
		fields[i].Contribution = fields[i].Score * fields[i].Weight / 100
		total += fields[i].Contribution
		reasoning = append(reasoning, fmt.Sprintf("%s: %s scored %.0f (weight %.0f%%): %s",
			fields[i].Field, fields[i].Algorithm, fields[i].Score, fields[i].Weight, fields[i].Detail))
	}
	return Result{Score: total, Fields: fields, Reasoning: reasoning}
}

// scoreName takes the max over token-set Jaccard, ordered-token edit
// distance, Jaro-Winkler, and phonetic-code match.
func scoreName(a, b models.NormalizedEntity) (float64, string, string, bool) {
	ka, kb := a.Canonical.NameKey, b.Canonical.NameKey
	if ka == "" || kb == "" {
		return 0, "", "", false
	}
	if ka == kb {
		return 100, "exact", fmt.Sprintf("%q == %q", ka, kb), true
	}

	best, algorithm := TokenSetJaccard(ka, kb)*100, "token_set_jaccard"
	if s := EditRatio(ka, kb) * 100; s > best {
		best, algorithm = s, "edit_distance"
	}
	if s := JaroWinkler(ka, kb) * 100; s > best {
		best, algorithm = s, "jaro_winkler"
	}
	if phoneticOverlap(a.Canonical.PhoneticCodes, b.Canonical.PhoneticCodes) {
		if s := 85.0; s > best {
			best, algorithm = s, "phonetic"
		}
	}
	return best, algorithm, fmt.Sprintf("%q vs %q", ka, kb), true
}

func phoneticOverlap(a, b []string) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	shared := 0
	for _, c := range b {
		if set[c] {
			shared++
		}
	}
	// One shared code is a coincidence; two covers both name parts.
	return shared >= 2
}

func scoreEmail(a, b models.NormalizedEntity) (float64, string, string, bool) {
	if a.Canonical.EmailKey == "" || b.Canonical.EmailKey == "" {
		return 0, "", "", false
	}
	ka, kb := a.Canonical.EmailKey, b.Canonical.EmailKey
	if ka == kb {
		return 100, "deliverable_key", fmt.Sprintf("%q == %q", ka, kb), true
	}

	localA, domainA, _ := strings.Cut(ka, "@")
	localB, domainB, _ := strings.Cut(kb, "@")
	if localA == localB {
		return 90, "local_part", fmt.Sprintf("same local %q across %q / %q", localA, domainA, domainB), true
	}
	if domainA == domainB {
		s := JaroWinkler(localA, localB) * 100
		return s, "jaro_winkler", fmt.Sprintf("same domain %q, locals %q vs %q", domainA, localA, localB), true
	}
	return 0, "none", fmt.Sprintf("%q vs %q share nothing", ka, kb), true
}

func scorePhone(a, b models.NormalizedEntity) (float64, string, string, bool) {
	if a.Canonical.E164 == "" || b.Canonical.E164 == "" {
		return 0, "", "", false
	}
	if a.Canonical.E164 == b.Canonical.E164 {
		return 100, "e164", a.Canonical.E164 + " exact", true
	}
	if a.Canonical.PhoneLast7 != "" && a.Canonical.PhoneLast7 == b.Canonical.PhoneLast7 {
		return 80, "last7", "matching last-7 digits " + a.Canonical.PhoneLast7, true
	}
	s := JaroWinkler(strings.TrimPrefix(a.Canonical.E164, "+"), strings.TrimPrefix(b.Canonical.E164, "+")) * 100
	return s, "jaro_winkler", fmt.Sprintf("%s vs %s", a.Canonical.E164, b.Canonical.E164), true
}

func scoreUsername(a, b models.NormalizedEntity) (float64, string, string, bool) {
	if a.Canonical.Username == "" || b.Canonical.Username == "" {
		return 0, "", "", false
	}
	if a.Canonical.Username == b.Canonical.Username {
		return 100, "canonical", a.Canonical.Username + " exact", true
	}
	if variantsIntersect(a.Canonical.UsernameVariants, b.Canonical.UsernameVariants) {
		return 90, "variant", fmt.Sprintf("%q and %q share a variant", a.Canonical.Username, b.Canonical.Username), true
	}
	s := EditRatio(a.Canonical.Username, b.Canonical.Username) * 100
	return s, "edit_distance", fmt.Sprintf("%q vs %q", a.Canonical.Username, b.Canonical.Username), true
}

func variantsIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

// scoreBio combines birth-year, city, and employer hints. Applicable
// when both records carry at least one of the three.
func scoreBio(a, b models.NormalizedEntity) (float64, string, string, bool) {
	type pair struct{ va, vb string }
	birth := pair{a.Candidate.Attributes[models.AttrBirthYear], b.Candidate.Attributes[models.AttrBirthYear]}
	city := pair{a.Canonical.City, b.Canonical.City}
	employer := pair{a.Candidate.Attributes[models.AttrEmployer], b.Candidate.Attributes[models.AttrEmployer]}

	comparable := 0
	score := 0.0
	var details []string

	if birth.va != "" && birth.vb != "" {
		comparable++
		ya, errA := strconv.Atoi(birth.va)
		yb, errB := strconv.Atoi(birth.vb)
		if errA == nil && errB == nil {
			diff := ya - yb
			if diff < 0 {
				diff = -diff
			}
			if diff <= 1 {
				score += 70
				details = append(details, fmt.Sprintf("birth year %d≈%d", ya, yb))
			} else {
				details = append(details, fmt.Sprintf("birth year %d≠%d", ya, yb))
			}
		}
	}
	if city.va != "" && city.vb != "" {
		comparable++
		if strings.EqualFold(city.va, city.vb) {
			score += 60
			details = append(details, "city "+city.va)
		} else {
			details = append(details, fmt.Sprintf("city %q≠%q", city.va, city.vb))
		}
	}
	if employer.va != "" && employer.vb != "" {
		comparable++
		overlap := TokenOverlap(employer.va, employer.vb)
		score += overlap * 80
		details = append(details, fmt.Sprintf("employer overlap %.0f%%", overlap*100))
	}

	if comparable == 0 {
		return 0, "", "", false
	}
	score /= float64(comparable)
	if score > 100 {
		score = 100
	}
	return score, "hint_combination", strings.Join(details, "; "), true
}
