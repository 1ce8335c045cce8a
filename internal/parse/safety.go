package parse

import (
	"regexp"

	"github.com/trailhound/trailhound/internal/models"
)

// Patterns that mark retrieved content as hostile. Flagged content is
// redacted before it is cached, stored, or logged; the raw bytes never
// travel further down the pipeline.
var unsafePatterns = []struct {
	name  string
	regex *regexp.Regexp
}{
	{"sql_injection", regexp.MustCompile(`(?i)('\s*or\s+'?1'?\s*=\s*'?1|union\s+(all\s+)?select\b|;\s*drop\s+table\b|exec\s+xp_cmdshell)`)},
	{"xss", regexp.MustCompile(`(?i)(<script[\s>]|javascript\s*:|onerror\s*=|onload\s*=|document\.cookie)`)},
	{"command_injection", regexp.MustCompile(`(?i)(;\s*(rm|wget|curl|nc|bash|sh)\s+-|\$\(.*\)|` + "`" + `[^` + "`" + `]+` + "`" + `\s*;|\|\s*(sh|bash)\b)`)},
	{"path_traversal", regexp.MustCompile(`(\.\./){2,}|%2e%2e%2f%2e%2e%2f|\.\.\\\.\.\\`)},
}

const redactedPlaceholder = "[REDACTED: content flagged by security screen]"

// Sanitize screens one raw result and redacts it in place when the
// content trips an unsafe pattern, returning the pattern name. HTML
// bodies are screened after markup stripping so an ordinary page's
// script tags and event-handler attributes do not condemn the whole
// document; only the markers surviving in character data flag it.
// maxBytes of zero disables the size cap.
func Sanitize(result *models.RawResult, maxBytes int64) (string, bool) {
	if maxBytes > 0 && int64(len(result.Content)) > maxBytes {
		redact(result)
		return "oversized_content", true
	}
	content := result.Content
	if mediaClass(result.MediaType) == "html" {
		content = []byte(stripTags(string(content)))
	}
	for _, p := range unsafePatterns {
		if p.regex.Match(content) {
			redact(result)
			return p.name, true
		}
	}
	return "", false
}

func redact(result *models.RawResult) {
	result.Content = []byte(redactedPlaceholder)
	result.SecurityFlagged = true
}
