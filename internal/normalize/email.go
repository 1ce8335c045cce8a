package normalize

import (
	"strings"
)

// Providers where the local part has alias semantics. dots means dots in
// the local part are insignificant for delivery; plusTag means +suffix
// aliases deliver to the base address.
type providerRules struct {
	dots    bool
	plusTag bool
}

var providers = map[string]providerRules{
	"gmail.com":      {dots: true, plusTag: true},
	"googlemail.com": {dots: true, plusTag: true},
	"outlook.com":    {plusTag: true},
	"hotmail.com":    {plusTag: true},
	"live.com":       {plusTag: true},
	"proton.me":      {plusTag: true},
	"protonmail.com": {plusTag: true},
	"fastmail.com":   {plusTag: true},
	"icloud.com":     {plusTag: true},
}

// Domains that deliver to the same mailbox under a canonical name
var equivalentDomains = map[string]string{
	"googlemail.com": "gmail.com",
	"protonmail.com": "proton.me",
}

// EmailForms returns the lowercased address and its deliverable key. The
// key strips plus-tags and insignificant dots and maps equivalent
// domains, so two aliases of one mailbox share a key. Invalid input
// returns empty forms.
func EmailForms(raw string) (email, key string) {
	email = strings.ToLower(strings.TrimSpace(raw))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || !strings.Contains(domain, ".") {
		return "", ""
	}

	keyLocal, keyDomain := local, domain
	if canonical, ok := equivalentDomains[keyDomain]; ok {
		keyDomain = canonical
	}
	rules := providers[domain]
	if rules.plusTag {
		if i := strings.Index(keyLocal, "+"); i > 0 {
			keyLocal = keyLocal[:i]
		}
	}
	if rules.dots {
		keyLocal = strings.ReplaceAll(keyLocal, ".", "")
	}
	return email, keyLocal + "@" + keyDomain
}

// SameMailboxProvider reports whether two domains deliver to the same
// provider mailbox space.
func SameMailboxProvider(domainA, domainB string) bool {
	a, b := domainA, domainB
	if c, ok := equivalentDomains[a]; ok {
		a = c
	}
	if c, ok := equivalentDomains[b]; ok {
		b = c
	}
	return a == b
}
