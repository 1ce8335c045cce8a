package parse

import (
	"regexp"
	"strings"
)

// Heuristic named-entity recognition over plain text. This is a cheap
// capitalized-sequence scanner, not a statistical model, so its finds
// carry a deliberately low extraction confidence.
const nerConfidence = 0.3

var capSeqRe = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+){1,3}\b`)

var orgSuffixes = []string{
	"Inc", "LLC", "Ltd", "Corp", "Corporation", "Company", "Co",
	"GmbH", "Group", "Labs", "Technologies", "Systems", "Solutions",
	"University", "Institute", "Foundation",
}

var locationMarkers = []string{
	"based in", "located in", "lives in", "living in", "moved to",
	"from", "headquartered in",
}

// Common sentence-initial words that false-positive as name tokens.
var stopLeads = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"There": true, "Here": true, "When": true, "Where": true, "What": true,
	"While": true, "After": true, "Before": true, "About": true, "According": true,
	"However": true, "Although": true, "Because": true, "During": true,
	"January": true, "February": true, "March": true, "April": true, "May": true,
	"June": true, "July": true, "August": true, "September": true,
	"October": true, "November": true, "December": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
	"New": true, "More": true, "Read": true, "Sign": true, "Log": true,
}

type textEntity struct {
	kind string // person | organization | location
	text string
}

// extractTextEntities scans prose for capitalized sequences and
// classifies them by suffix and surrounding context.
func extractTextEntities(text string) []textEntity {
	var out []textEntity
	seen := make(map[string]bool)
	lower := strings.ToLower(text)

	for _, loc := range capSeqRe.FindAllStringIndex(text, -1) {
		m := text[loc[0]:loc[1]]
		tokens := strings.Fields(m)
		if stopLeads[tokens[0]] {
			continue
		}
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}

		kind := "person"
		if hasOrgSuffix(tokens) {
			kind = "organization"
		} else if precededByLocationMarker(lower, loc[0]) {
			kind = "location"
		} else if len(tokens) > 3 {
			// Four capitalized tokens without an org suffix is usually a
			// headline fragment, not a name.
			continue
		}

		seen[key] = true
		out = append(out, textEntity{kind: kind, text: m})
	}
	return out
}

func hasOrgSuffix(tokens []string) bool {
	last := strings.TrimRight(tokens[len(tokens)-1], ".,")
	for _, s := range orgSuffixes {
		if last == s {
			return true
		}
	}
	return false
}

func precededByLocationMarker(lower string, offset int) bool {
	start := offset - 20
	if start < 0 {
		start = 0
	}
	window := lower[start:offset]
	for _, marker := range locationMarkers {
		if strings.Contains(window, marker+" ") || strings.HasSuffix(window, marker+" ") {
			return true
		}
	}
	return false
}
