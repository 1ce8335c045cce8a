package normalize

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"github.com/trailhound/trailhound/internal/models"
)

// Normalizer computes canonical comparison forms per candidate. It is
// stateless apart from the seed's geographic hints, which resolve
// national phone formats and sanity-check locations. Normalizing an
// already-normalized value is a no-op.
type Normalizer struct {
	defaultCountry string
	logger         *slog.Logger
}

// New creates a normalizer. hints supplies the default phone country.
func New(hints models.GeographicHints) *Normalizer {
	return &Normalizer{
		defaultCountry: strings.ToUpper(strings.TrimSpace(hints.Country)),
		logger:         slog.Default().With("component", "normalizer"),
	}
}

// Normalize computes canonical forms and a quality score for one
// candidate. Unusable values leave their canonical form empty rather
// than failing the candidate.
func (n *Normalizer) Normalize(c models.Candidate) models.NormalizedEntity {
	var forms models.CanonicalForms

	if v := c.Attributes[models.AttrEmail]; v != "" {
		forms.Email, forms.EmailKey = EmailForms(v)
	}
	if v := c.Attributes[models.AttrPhone]; v != "" {
		forms.E164, forms.PhoneLast7 = PhoneForms(v, n.defaultCountry)
	}
	if v := c.Attributes[models.AttrUsername]; v != "" {
		forms.Username, forms.UsernameVariants = UsernameForms(v)
	}
	if v := c.Attributes[models.AttrName]; v != "" {
		forms.NameTokens, forms.NameKey, forms.PhoneticCodes = NameForms(v)
	}
	if v := c.Attributes[models.AttrDomain]; v != "" {
		forms.Domain = DomainForm(v)
	}
	forms.Country, forms.Region, forms.City = locationForms(
		c.Attributes[models.AttrCountry],
		c.Attributes[models.AttrRegion],
		c.Attributes[models.AttrCity],
	)

	return models.NormalizedEntity{
		Candidate:    c,
		Canonical:    forms,
		QualityScore: n.quality(c, forms),
	}
}

// NormalizeAll maps the normalizer over a batch, preserving order
func (n *Normalizer) NormalizeAll(cands []models.Candidate) []models.NormalizedEntity {
	out := make([]models.NormalizedEntity, 0, len(cands))
	for _, c := range cands {
		out = append(out, n.Normalize(c))
	}
	return out
}

var separatorRe = regexp.MustCompile(`[._\-]`)
var nameSplitRe = regexp.MustCompile(`[\s,;/]+`)

// UsernameForms lowercases and strips separators for the canonical form
// and generates the comparison variant set.
func UsernameForms(raw string) (canonical string, variants []string) {
	base := strings.ToLower(strings.TrimSpace(raw))
	base = strings.TrimPrefix(base, "@")
	if base == "" {
		return "", nil
	}
	canonical = separatorRe.ReplaceAllString(base, "")

	set := map[string]bool{canonical: true, base: true}
	for _, sep := range []string{"_", ".", "-"} {
		set[separatorRe.ReplaceAllString(base, sep)] = true
	}
	// Trailing-digit strip covers handle123-style dedup suffixes
	if trimmed := strings.TrimRight(canonical, "0123456789"); len(trimmed) >= 3 && trimmed != canonical {
		set[trimmed] = true
	}

	variants = make([]string, 0, len(set))
	for v := range set {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return canonical, variants
}

// NameForms tokenizes a personal name, orders the tokens alphabetically
// for the comparison key, and computes phonetic codes per token.
func NameForms(raw string) (tokens []string, key string, phonetic []string) {
	for _, t := range nameSplitRe.Split(strings.ToLower(strings.TrimSpace(raw)), -1) {
		t = strings.Trim(t, ".'\"")
		if t == "" {
			continue
		}
		tokens = append(tokens, t)
	}
	if len(tokens) == 0 {
		return nil, "", nil
	}
	sort.Strings(tokens)
	key = strings.Join(tokens, " ")

	seen := make(map[string]bool)
	for _, t := range tokens {
		for _, code := range []string{Soundex(t), MetaphoneLike(t)} {
			if code != "" && !seen[code] {
				seen[code] = true
				phonetic = append(phonetic, code)
			}
		}
	}
	sort.Strings(phonetic)
	return tokens, key, phonetic
}

// DomainForm lowercases, IDN-normalizes, and strips the trailing dot
func DomainForm(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")
	if d == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(d); err == nil {
		return ascii
	}
	return d
}

// Common country spellings mapped to ISO 3166-1 alpha-2
var countryNames = map[string]string{
	"united states": "US", "usa": "US", "america": "US",
	"united kingdom": "GB", "uk": "GB", "great britain": "GB", "england": "GB",
	"germany": "DE", "france": "FR", "spain": "ES", "portugal": "PT",
	"italy": "IT", "netherlands": "NL", "belgium": "BE", "switzerland": "CH",
	"austria": "AT", "sweden": "SE", "norway": "NO", "denmark": "DK",
	"finland": "FI", "poland": "PL", "ireland": "IE", "canada": "CA",
	"australia": "AU", "new zealand": "NZ", "japan": "JP", "south korea": "KR",
	"china": "CN", "india": "IN", "brazil": "BR", "mexico": "MX",
	"singapore": "SG", "israel": "IL", "south africa": "ZA", "turkey": "TR",
	"russia": "RU", "ukraine": "UA",
}

func locationForms(country, region, city string) (string, string, string) {
	country = strings.TrimSpace(country)
	if country != "" {
		if len(country) == 2 {
			country = strings.ToUpper(country)
		} else if iso, ok := countryNames[strings.ToLower(country)]; ok {
			country = iso
		}
	}
	return country, titleCase(region), titleCase(city)
}

func titleCase(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}

// Attributes a fully populated candidate of each type would carry
var expectedAttrs = map[models.EntityType][]string{
	models.EntityPerson:        {models.AttrName, models.AttrEmployer, models.AttrCity},
	models.EntityOrganization:  {models.AttrName},
	models.EntityEmail:         {models.AttrEmail},
	models.EntityPhone:         {models.AttrPhone},
	models.EntityUsername:      {models.AttrUsername},
	models.EntitySocialProfile: {models.AttrUsername, models.AttrPlatform, models.AttrURL},
	models.EntityDomain:        {models.AttrDomain},
	models.EntityLocation:      {models.AttrCity},
	models.EntityDocument:      {models.AttrURL},
}

// quality combines attribute completeness, internal consistency, and the
// source's base confidence into one 0-1 score.
func (n *Normalizer) quality(c models.Candidate, forms models.CanonicalForms) float64 {
	expected := expectedAttrs[c.Type]
	completeness := 1.0
	if len(expected) > 0 {
		present := 0
		for _, k := range expected {
			if c.Attributes[k] != "" {
				present++
			}
		}
		// A candidate always carries its primary attribute; scale from a
		// floor so sparse-but-valid candidates are not zeroed.
		completeness = 0.5 + 0.5*float64(present)/float64(len(expected))
	}

	consistency := 1.0
	switch c.Type {
	case models.EntityEmail:
		if forms.EmailKey == "" {
			consistency = 0.3
		}
	case models.EntityPhone:
		if forms.E164 == "" {
			consistency = 0.3
		} else if n.defaultCountry != "" {
			if code := callingCodes[n.defaultCountry]; code != "" &&
				!strings.HasPrefix(forms.E164, "+"+code) {
				consistency = 0.8
			}
		}
	case models.EntityDomain:
		if forms.Domain == "" {
			consistency = 0.3
		}
	}

	source := c.SourceConfidence
	if source <= 0 {
		source = 0.5
	}
	return completeness * consistency * source
}
