package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trailhound/trailhound/internal/models"
)

// Attribute-class weights for privacy exposure, saturating per class
const (
	weightContact      = 30.0
	weightProfessional = 25.0
	weightIdentity     = 20.0
	weightBehavioral   = 15.0
	weightNetwork      = 10.0
)

// Overall blend across sub-scores
const (
	blendPrivacy  = 0.35
	blendSecurity = 0.30
	blendIdentity = 0.20
	blendMisc     = 0.15
)

// RiskScores are the computed sub-scores plus the contributing factors
type RiskScores struct {
	Privacy  float64
	Security float64
	Identity float64
	Misc     float64
	Overall  float64
	Level    models.RiskLevel
	Factors  []models.RiskFactor
}

// exposure classifies an entity's attributes into privacy classes
type exposure struct {
	contact      int
	professional int
	identity     int
	behavioral   int
	network      int
}

// scoreRisk computes the three sub-scores and the overall blend from the
// resolved set and timeline. Only entities at or above the minimum
// confidence count; low-confidence noise must not inflate risk.
func scoreRisk(resolved []models.ResolvedEntity, events []models.TimelineEvent, minConfidence float64, now time.Time) RiskScores {
	var counted []models.ResolvedEntity
	for _, e := range resolved {
		if e.Confidence >= minConfidence {
			counted = append(counted, e)
		}
	}

	exp := classify(counted, events)
	var factors []models.RiskFactor

	privacy := 0.0
	addClass := func(name string, count int, weight float64) {
		if count == 0 {
			return
		}
		// Each additional exposure in a class contributes less
		score := weight * saturate(count)
		privacy += score
		factors = append(factors, models.RiskFactor{
			Category: "privacy",
			Signal:   name,
			Score:    score,
			Detail:   fmt.Sprintf("%d exposed %s attribute(s)", count, name),
		})
	}
	addClass("contact", exp.contact, weightContact)
	addClass("professional", exp.professional, weightProfessional)
	addClass("identity", exp.identity, weightIdentity)
	addClass("behavioral", exp.behavioral, weightBehavioral)
	addClass("network", exp.network, weightNetwork)
	privacy = cap100(privacy)

	security, secFactors := scoreSecurity(counted, events, now)
	factors = append(factors, secFactors...)

	identity, idFactors := scoreIdentityTheft(counted)
	factors = append(factors, idFactors...)

	// Misc: breadth of the overall footprint
	misc := cap100(float64(len(counted)) * 4)
	if misc > 0 {
		factors = append(factors, models.RiskFactor{
			Category: "misc",
			Signal:   "footprint_breadth",
			Score:    misc,
			Detail:   fmt.Sprintf("%d confirmed entities discovered", len(counted)),
		})
	}

	overall := blendPrivacy*privacy + blendSecurity*security + blendIdentity*identity + blendMisc*misc
	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Score != factors[j].Score {
			return factors[i].Score > factors[j].Score
		}
		return factors[i].Signal < factors[j].Signal
	})

	return RiskScores{
		Privacy:  privacy,
		Security: security,
		Identity: identity,
		Misc:     misc,
		Overall:  overall,
		Level:    models.RiskLevelFromScore(overall),
		Factors:  factors,
	}
}

func classify(resolved []models.ResolvedEntity, events []models.TimelineEvent) exposure {
	var exp exposure
	for _, e := range resolved {
		switch e.Type {
		case models.EntityEmail, models.EntityPhone:
			exp.contact++
		case models.EntityPerson:
			if e.Attributes[models.AttrEmployer] != "" || e.Attributes[models.AttrTitle] != "" {
				exp.professional++
			}
			if e.Attributes[models.AttrBirthYear] != "" {
				exp.identity++
			}
		case models.EntityOrganization:
			exp.professional++
		case models.EntityLocation:
			exp.identity++
		case models.EntitySocialProfile, models.EntityUsername:
			exp.network++
		case models.EntityDomain:
			exp.network++
		}
	}
	for _, ev := range events {
		switch ev.Type {
		case models.EventDigitalPost:
			exp.behavioral++
		case models.EventLocationMove:
			exp.identity++
		}
	}
	return exp
}

func scoreSecurity(resolved []models.ResolvedEntity, events []models.TimelineEvent, now time.Time) (float64, []models.RiskFactor) {
	var factors []models.RiskFactor
	score := 0.0

	// Breach exposure: count scaled by recency
	breaches := 0
	recent := 0
	passwordExposed := false
	for _, e := range resolved {
		if e.Type != models.EntityDocument || e.Attributes[models.AttrBreach] == "" {
			continue
		}
		breaches++
		if strings.Contains(strings.ToLower(e.Attributes["data_classes"]), "password") {
			passwordExposed = true
		}
	}
	for _, ev := range events {
		if ev.Type == models.EventDigitalBreach && now.Sub(ev.Date) < 3*365*24*time.Hour {
			recent++
		}
	}
	if breaches > 0 {
		s := cap100(float64(breaches)*15 + float64(recent)*10)
		score += s
		factors = append(factors, models.RiskFactor{
			Category: "security",
			Signal:   "breach_exposure",
			Score:    s,
			Detail:   fmt.Sprintf("%d breach(es), %d within three years", breaches, recent),
		})
	}
	if passwordExposed {
		score += 25
		factors = append(factors, models.RiskFactor{
			Category: "security",
			Signal:   "credential_exposure",
			Score:    25,
			Detail:   "password material included in breach data",
		})
	}

	return cap100(score), factors
}

func scoreIdentityTheft(resolved []models.ResolvedEntity) (float64, []models.RiskFactor) {
	var factors []models.RiskFactor
	score := 0.0

	addSignal := func(signal, detail string, s float64) {
		score += s
		factors = append(factors, models.RiskFactor{
			Category: "identity_theft",
			Signal:   signal,
			Score:    s,
			Detail:   detail,
		})
	}

	birthKnown := false
	addressKnown := false
	contactCount := 0
	breachedPII := 0
	for _, e := range resolved {
		if e.Attributes[models.AttrBirthYear] != "" {
			birthKnown = true
		}
		if e.Type == models.EntityLocation && e.Attributes[models.AttrCity] != "" {
			addressKnown = true
		}
		if e.Type == models.EntityEmail || e.Type == models.EntityPhone {
			contactCount++
		}
		if e.Type == models.EntityDocument {
			classes := strings.ToLower(e.Attributes["data_classes"])
			if strings.Contains(classes, "physical address") ||
				strings.Contains(classes, "date of birth") ||
				strings.Contains(classes, "government") {
				breachedPII++
			}
		}
	}
	if birthKnown {
		addSignal("dob_available", "date of birth derivable from public data", 30)
	}
	if addressKnown {
		addSignal("address_data", "location data ties the subject to a place", 20)
	}
	if contactCount >= 2 {
		addSignal("contact_correlation", fmt.Sprintf("%d contact identifiers enable account recovery attacks", contactCount), 20)
	}
	if breachedPII > 0 {
		addSignal("breached_pii", fmt.Sprintf("%d breach(es) leaked identity documents or addresses", breachedPII), 30)
	}

	return cap100(score), factors
}

// saturate maps a count to (0,1]: 1 - 0.6^n
func saturate(n int) float64 {
	v := 1.0
	for i := 0; i < n && i < 10; i++ {
		v *= 0.6
	}
	return 1 - v
}

func cap100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
