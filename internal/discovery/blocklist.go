package discovery

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Blocklist rejects query strings that must never reach the scheduler:
// credential-dumping operators, raw SSN or card numbers in outgoing
// queries, and explicit probes of authentication endpoints.
type Blocklist struct {
	names    []string
	patterns []*regexp.Regexp
}

type blocklistFile struct {
	Patterns []struct {
		Name  string `yaml:"name"`
		Regex string `yaml:"regex"`
	} `yaml:"patterns"`
}

var defaultPatterns = []struct {
	name  string
	regex string
}{
	{"credential_dump", `(?i)\b(password|passwd|pwd|credential)s?\s*(dump|leak|list|file)\b`},
	{"credential_filetype", `(?i)filetype:(sql|env|pem|key|log)\b.*\b(pass|secret|credential)`},
	{"ssn", `\b\d{3}-\d{2}-\d{4}\b`},
	{"credit_card", `\b(?:4\d{3}|5[1-5]\d{2}|3[47]\d{2}|6011)[ -]?\d{4}[ -]?\d{4}[ -]?\d{2,4}\b`},
	{"auth_endpoint", `(?i)(/wp-login\.php|/wp-admin|/phpmyadmin|/admin/login|/\.git/|/etc/passwd|:\d+/login\b)`},
	{"index_of_secrets", `(?i)intitle:"?index of"?.*\b(password|backup|secret|\.env)\b`},
	{"injection", `(?i)('\s*or\s+'?1'?\s*=\s*'?1|union\s+select|;\s*drop\s+table)`},
}

// DefaultBlocklist returns the built-in pattern set
func DefaultBlocklist() *Blocklist {
	b := &Blocklist{}
	for _, p := range defaultPatterns {
		b.names = append(b.names, p.name)
		b.patterns = append(b.patterns, regexp.MustCompile(p.regex))
	}
	return b
}

// LoadBlocklist reads additional patterns from a YAML file and appends
// them to the defaults. The built-in set is never removed.
func LoadBlocklist(path string) (*Blocklist, error) {
	b := DefaultBlocklist()
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocklist %s: %w", path, err)
	}
	var file blocklistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse blocklist %s: %w", path, err)
	}
	for _, p := range file.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid blocklist pattern %q: %w", p.Name, err)
		}
		b.names = append(b.names, p.Name)
		b.patterns = append(b.patterns, re)
	}
	return b, nil
}

// Check returns the name of the first pattern the string trips, if any
func (b *Blocklist) Check(s string) (string, bool) {
	for i, re := range b.patterns {
		if re.MatchString(s) {
			return b.names[i], true
		}
	}
	return "", false
}
