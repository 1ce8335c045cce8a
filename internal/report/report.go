package report

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trailhound/trailhound/internal/graph"
	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/timeline"
)

// Input is everything the reporter needs from the pipeline
type Input struct {
	InvestigationID string
	Resolved        []models.ResolvedEntity
	RawResults      []models.RawResult
	Graph           *graph.Graph
	Timeline        *timeline.Builder
	SubjectID       string
	MinConfidence   float64 // minimum_entity_confidence threshold
	Partial         bool
	GeneratedAt     time.Time
}

// Builder assembles the final report. Output is deterministic for a
// fixed resolved set, graph, and timeline.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a reporter
func NewBuilder() *Builder {
	return &Builder{logger: slog.Default().With("component", "reporter")}
}

// Build computes risk scores and assembles every report section
func (b *Builder) Build(in Input) *models.Report {
	generatedAt := in.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	events := in.Timeline.Events(in.SubjectID)
	scores := scoreRisk(in.Resolved, events, in.MinConfidence, generatedAt)

	keyExposures := scores.Factors
	if len(keyExposures) > 5 {
		keyExposures = keyExposures[:5]
	}

	sources := make(map[string]bool)
	for _, rr := range in.RawResults {
		sources[rr.SourceName] = true
	}

	rep := &models.Report{
		InvestigationID: in.InvestigationID,
		GeneratedAt:     generatedAt,
		Partial:         in.Partial,
		Summary: models.ExecutiveSummary{
			OverallScore:  round1(scores.Overall),
			Level:         scores.Level,
			PrivacyScore:  round1(scores.Privacy),
			SecurityScore: round1(scores.Security),
			IdentityScore: round1(scores.Identity),
			KeyExposures:  keyExposures,
			EntityCount:   len(in.Resolved),
			SourceCount:   len(sources),
		},
		IdentityInventory: identityInventory(in.Resolved),
		ExposureAnalysis:  exposureAnalysis(in.Resolved),
		ActivityTimeline:  timelineSummaries(events),
		Recommendations:   recommend(scores),
		DetailedFindings:  findings(in.Resolved),
		SourceReferences:  sourceReferences(in.RawResults),
	}
	if in.Graph != nil {
		s := in.Graph.Statistics()
		rep.Graph = models.GraphSummary{
			NodeCount:      s.NodeCount,
			EdgeCount:      s.EdgeCount,
			Density:        s.Density,
			MeanDegree:     s.MeanDegree,
			ComponentCount: s.ComponentCount,
			MeanConfidence: s.MeanConfidence,
		}
	}

	b.logger.Info("report assembled",
		"investigation_id", in.InvestigationID,
		"overall_score", rep.Summary.OverallScore,
		"level", rep.Summary.Level,
		"entities", rep.Summary.EntityCount,
		"partial", rep.Partial,
	)
	return rep
}

var verificationOrder = []models.VerificationStatus{
	models.VerificationVerified,
	models.VerificationProbable,
	models.VerificationPossible,
	models.VerificationUnlikely,
}

func identityInventory(resolved []models.ResolvedEntity) []models.IdentityGroup {
	byStatus := make(map[models.VerificationStatus][]models.ResolvedEntity)
	for _, e := range resolved {
		byStatus[e.Verification] = append(byStatus[e.Verification], e)
	}
	var out []models.IdentityGroup
	for _, status := range verificationOrder {
		entities := byStatus[status]
		if len(entities) == 0 {
			continue
		}
		sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
		out = append(out, models.IdentityGroup{Status: status, Entities: entities})
	}
	return out
}

var exposureCategories = []struct {
	name  string
	types []models.EntityType
}{
	{"contact", []models.EntityType{models.EntityEmail, models.EntityPhone}},
	{"professional", []models.EntityType{models.EntityOrganization}},
	{"identity", []models.EntityType{models.EntityPerson, models.EntityLocation}},
	{"network", []models.EntityType{models.EntitySocialProfile, models.EntityUsername, models.EntityDomain}},
	{"documents", []models.EntityType{models.EntityDocument}},
}

func exposureAnalysis(resolved []models.ResolvedEntity) []models.ExposureCategory {
	var out []models.ExposureCategory
	for _, cat := range exposureCategories {
		typeSet := make(map[models.EntityType]bool, len(cat.types))
		for _, t := range cat.types {
			typeSet[t] = true
		}
		count := 0
		confSum := 0.0
		refs := make(map[string]bool)
		for _, e := range resolved {
			if !typeSet[e.Type] {
				continue
			}
			count++
			confSum += e.Confidence
			for _, r := range e.SourceRefs {
				refs[r] = true
			}
		}
		if count == 0 {
			continue
		}
		out = append(out, models.ExposureCategory{
			Category:   cat.name,
			Count:      count,
			Score:      round1(confSum / float64(count)),
			SourceRefs: sortedKeys(refs),
		})
	}
	return out
}

func timelineSummaries(events []models.TimelineEvent) []models.TimelineSummary {
	out := make([]models.TimelineSummary, 0, len(events))
	for _, e := range events {
		out = append(out, models.TimelineSummary{
			Date:       e.Date,
			Precision:  e.Precision,
			Type:       e.Type,
			Title:      e.Title,
			Confidence: e.Confidence,
		})
	}
	return out
}

func findings(resolved []models.ResolvedEntity) []models.Finding {
	sorted := make([]models.ResolvedEntity, len(resolved))
	copy(sorted, resolved)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].ID < sorted[j].ID
	})
	out := make([]models.Finding, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, models.Finding{Entity: e, SourceRefs: e.SourceRefs})
	}
	return out
}

func sourceReferences(raw []models.RawResult) []models.SourceReference {
	out := make([]models.SourceReference, 0, len(raw))
	for _, rr := range raw {
		out = append(out, models.SourceReference{
			ResultID:    rr.ID,
			SourceName:  rr.SourceName,
			URL:         rr.URL,
			RetrievedAt: rr.RetrievedAt,
			ContentHash: rr.ContentHash,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].ResultID < out[j].ResultID
	})
	return out
}

// recommend builds the prioritized remediation list from the factors
// that actually fired.
func recommend(scores RiskScores) []models.Recommendation {
	type template struct {
		signal   string
		category string
		action   string
		impact   float64
		effort   models.EffortLevel
	}
	templates := []template{
		{"credential_exposure", "security", "Rotate passwords for all accounts tied to breached addresses and enable two-factor authentication", 0.9, models.EffortLow},
		{"breach_exposure", "security", "Review each breach listing and close or rename affected accounts", 0.7, models.EffortMedium},
		{"breached_pii", "identity_theft", "Consider a credit freeze; breached identity documents enable account fraud", 0.8, models.EffortMedium},
		{"dob_available", "identity_theft", "Remove birth-date mentions from public profiles", 0.6, models.EffortLow},
		{"contact_correlation", "identity_theft", "Use distinct email addresses for recovery and for public registration", 0.5, models.EffortMedium},
		{"contact", "privacy", "Request removal of exposed contact details from indexing sites", 0.6, models.EffortMedium},
		{"network", "privacy", "Audit linked social profiles and unify privacy settings", 0.4, models.EffortLow},
		{"behavioral", "privacy", "Reduce publicly dated activity that reveals patterns of life", 0.3, models.EffortHigh},
		{"address_data", "identity_theft", "Scrub home-location hints from public posts and registrations", 0.5, models.EffortMedium},
	}

	fired := make(map[string]bool, len(scores.Factors))
	for _, f := range scores.Factors {
		fired[f.Signal] = true
	}

	var out []models.Recommendation
	priority := 1
	for _, t := range templates {
		if !fired[t.signal] {
			continue
		}
		out = append(out, models.Recommendation{
			Priority:       priority,
			Category:       t.category,
			Action:         t.action,
			ImpactEstimate: t.impact,
			Effort:         t.effort,
		})
		priority++
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String renders a compact one-line summary for logs and CLI output
func Summary(r *models.Report) string {
	return fmt.Sprintf("%s risk %.1f (%s): %d entities from %d sources",
		r.InvestigationID, r.Summary.OverallScore, r.Summary.Level,
		r.Summary.EntityCount, r.Summary.SourceCount)
}
