package parse

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// E.164 plus the common national groupings: (555) 123-4567,
	// 555-123-4567, 555.123.4567, +44 20 7946 0958.
	phoneRe = regexp.MustCompile(`\+?\d{1,3}[ .\-]?\(?\d{2,4}\)?[ .\-]?\d{3,4}[ .\-]?\d{3,4}`)

	urlRe = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)

	// @-prefixed handles outside email context.
	handleRe = regexp.MustCompile(`(?:^|[\s(])@([a-zA-Z0-9_]{2,30})\b`)

	domainRe = regexp.MustCompile(`\b([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,}\b`)

	digitsOnly = regexp.MustCompile(`\D`)
)

// Social platforms whose profile URLs carry a username as the first path
// segment.
var profileHosts = map[string]string{
	"github.com":      "github",
	"twitter.com":     "twitter",
	"x.com":           "twitter",
	"instagram.com":   "instagram",
	"linkedin.com":    "linkedin",
	"facebook.com":    "facebook",
	"reddit.com":      "reddit",
	"mastodon.social": "mastodon",
	"gitlab.com":      "gitlab",
	"medium.com":      "medium",
	"t.me":            "telegram",
	"tiktok.com":      "tiktok",
}

func extractEmails(text string) []string {
	return dedupeLower(emailRe.FindAllString(text, -1))
}

func extractPhones(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range phoneRe.FindAllString(text, -1) {
		digits := digitsOnly.ReplaceAllString(m, "")
		// Too few digits is a date or a version number, too many is noise.
		if len(digits) < 7 || len(digits) > 15 {
			continue
		}
		key := digits
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(m))
	}
	return out
}

func extractURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range urlRe.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:")
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// extractHandles finds @-prefixed usernames and usernames embedded in
// social profile URLs. The second return value maps username to platform
// for profile-URL finds.
func extractHandles(text string) ([]string, map[string]string) {
	platforms := make(map[string]string)
	var handles []string
	seen := make(map[string]bool)

	for _, m := range handleRe.FindAllStringSubmatch(text, -1) {
		h := strings.ToLower(m[1])
		if !seen[h] {
			seen[h] = true
			handles = append(handles, h)
		}
	}

	for _, raw := range extractURLs(text) {
		host, path := splitURL(raw)
		platform, ok := profileHosts[strings.TrimPrefix(host, "www.")]
		if !ok {
			continue
		}
		segs := strings.Split(strings.Trim(path, "/"), "/")
		if len(segs) == 0 || segs[0] == "" {
			continue
		}
		h := strings.ToLower(segs[0])
		if platform == "linkedin" {
			// linkedin.com/in/<user>
			if len(segs) < 2 || segs[0] != "in" {
				continue
			}
			h = strings.ToLower(segs[1])
		}
		if platform == "reddit" {
			if len(segs) < 2 || (segs[0] != "user" && segs[0] != "u") {
				continue
			}
			h = strings.ToLower(segs[1])
		}
		if !validHandle(h) {
			continue
		}
		if !seen[h] {
			seen[h] = true
			handles = append(handles, h)
		}
		platforms[h] = platform
	}
	return handles, platforms
}

func extractDomains(text string) []string {
	// Email addresses are covered by the email candidate; strip them so
	// neither their local part nor their host shows up as a bare domain.
	text = emailRe.ReplaceAllString(text, " ")

	var out []string
	seen := make(map[string]bool)
	for _, m := range domainRe.FindAllString(strings.ToLower(text), -1) {
		if seen[m] {
			continue
		}
		if looksLikeFilename(m) {
			continue
		}
		// Well-known platform hosts carry no subject signal on their own.
		if _, ok := profileHosts[strings.TrimPrefix(m, "www.")]; ok {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func splitURL(raw string) (host, path string) {
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func validHandle(h string) bool {
	if len(h) < 2 || len(h) > 40 {
		return false
	}
	skip := map[string]bool{
		"search": true, "login": true, "signup": true, "about": true,
		"help": true, "home": true, "explore": true, "settings": true,
		"tag": true, "tags": true, "hashtag": true, "share": true,
	}
	return !skip[h]
}

func looksLikeFilename(s string) bool {
	exts := []string{".html", ".htm", ".php", ".asp", ".aspx", ".js", ".css",
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".json", ".xml", ".txt", ".pdf"}
	for _, ext := range exts {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

func dedupeLower(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.ToLower(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
