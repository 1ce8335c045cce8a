package investigation

import (
	"regexp"
	"strings"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

// Input caps per seed field
const (
	maxUsernames = 20
	maxEmails    = 10
	maxPhones    = 5
	maxDomains   = 10
)

var (
	emailFormatRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	phoneFormatRe = regexp.MustCompile(`^\+?[0-9(][0-9 .\-()]{5,18}[0-9]$`)
	domainRe      = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?)+$`)
)

// sensitiveTerms flag seed hints that would steer the investigation
// toward protected attributes. Matching hints are dropped, never sent
// to any connector.
var sensitiveTerms = []string{
	"medical", "diagnosis", "health record", "hiv", "prescription",
	"religion", "religious", "church membership",
	"bank account", "iban", "routing number", "credit card", "ssn",
	"social security",
}

// minorTerms flag attempts to identify minors; these reject the seed
// outright.
var minorTerms = []string{
	"minor", "child", "underage", "elementary school", "middle school",
}

// ValidateSeed checks the seed against the submission contract, fills
// threshold defaults, and strips hints aimed at sensitive attributes.
// Returns the cleaned seed or a validation error.
func ValidateSeed(seed models.Seed) (models.Seed, error) {
	subj := &seed.Subject

	if strings.TrimSpace(subj.FullName) == "" {
		return seed, errors.Validation("full_name is required")
	}
	if containsAny(strings.ToLower(subj.FullName), minorTerms) {
		return seed, errors.SecurityRejected("seed appears to target a minor")
	}

	if len(subj.Usernames) > maxUsernames {
		return seed, errors.Validationf("at most %d usernames accepted", maxUsernames)
	}
	if len(subj.Emails) > maxEmails {
		return seed, errors.Validationf("at most %d emails accepted", maxEmails)
	}
	if len(subj.PhoneNumbers) > maxPhones {
		return seed, errors.Validationf("at most %d phone numbers accepted", maxPhones)
	}
	if len(subj.KnownDomains) > maxDomains {
		return seed, errors.Validationf("at most %d known domains accepted", maxDomains)
	}

	for _, e := range subj.Emails {
		if !emailFormatRe.MatchString(strings.TrimSpace(e)) {
			return seed, errors.Validationf("invalid email address %q", e)
		}
	}
	for _, p := range subj.PhoneNumbers {
		if !phoneFormatRe.MatchString(strings.TrimSpace(p)) {
			return seed, errors.Validationf("invalid phone number %q", p)
		}
	}
	for _, d := range subj.KnownDomains {
		if !domainRe.MatchString(strings.ToLower(strings.TrimSpace(d))) {
			return seed, errors.Validationf("invalid domain %q", d)
		}
	}

	c := &seed.Constraints
	if c.MaxSearchDepth == 0 {
		c.MaxSearchDepth = 2
	}
	if c.MaxSearchDepth < 1 || c.MaxSearchDepth > 10 {
		return seed, errors.Validation("max_search_depth must be within 1-10")
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 30
	}
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return seed, errors.Validation("retention_days must be within 1-365")
	}
	if c.MaxDurationMinutes != 0 && (c.MaxDurationMinutes < 1 || c.MaxDurationMinutes > 360) {
		return seed, errors.Validation("max_duration_minutes must be within 1-360")
	}

	th := &seed.Thresholds
	if th.MinimumEntityConfidence == 0 {
		th.MinimumEntityConfidence = 70
	}
	if th.MinimumSourceConfidence == 0 {
		th.MinimumSourceConfidence = 60
	}
	if th.MinimumEntityConfidence < 0 || th.MinimumEntityConfidence > 100 ||
		th.MinimumSourceConfidence < 0 || th.MinimumSourceConfidence > 100 {
		return seed, errors.Validation("confidence thresholds must be within 0-100")
	}

	scrubHints(subj)
	return seed, nil
}

// scrubHints drops free-text hints that name protected attributes.
// Dropping keeps the rest of the seed usable; the terms never reach
// the planner.
func scrubHints(subj *models.SubjectIdentifiers) {
	if containsAny(strings.ToLower(subj.ProfessionalHints.Employer), sensitiveTerms) {
		subj.ProfessionalHints.Employer = ""
	}
	if containsAny(strings.ToLower(subj.ProfessionalHints.Title), sensitiveTerms) {
		subj.ProfessionalHints.Title = ""
	}
	if containsAny(strings.ToLower(subj.ProfessionalHints.Industry), sensitiveTerms) {
		subj.ProfessionalHints.Industry = ""
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
