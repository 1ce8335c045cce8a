package discovery

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailhound/trailhound/internal/connectors"
	"github.com/trailhound/trailhound/internal/models"
)

// Base priorities per query kind. Composite queries outrank
// single-attribute queries; names are the least selective.
var kindPriority = map[models.QueryKind]int{
	models.QueryKindComposite: 90,
	models.QueryKindEmail:     85,
	models.QueryKindPhone:     80,
	models.QueryKindUsername:  75,
	models.QueryKindDomain:    70,
	models.QueryKindName:      60,
	models.QueryKindCompany:   50,
	models.QueryKindLocation:  45,
}

// Planner turns seed identifiers into a deduplicated, prioritized query
// plan, and later expands it with follow-up queries for newly discovered
// identifiers.
type Planner struct {
	registry  *connectors.Registry
	blocklist *Blocklist
	queryCap  int
	logger    *slog.Logger
}

// NewPlanner creates a planner
func NewPlanner(registry *connectors.Registry, blocklist *Blocklist, queryCap int) *Planner {
	if queryCap <= 0 {
		queryCap = 200
	}
	if blocklist == nil {
		blocklist = DefaultBlocklist()
	}
	return &Planner{
		registry:  registry,
		blocklist: blocklist,
		queryCap:  queryCap,
		logger:    slog.Default().With("component", "planner"),
	}
}

// Plan builds the depth-0 query set for a seed. Rejected queries are
// returned as security_rejected error entries; they never reach the
// scheduler.
func (p *Planner) Plan(seed models.Seed) ([]models.Query, []models.InvestigationError) {
	var drafts []draft

	subj := seed.Subject
	if name := strings.TrimSpace(subj.FullName); name != "" {
		drafts = append(drafts, draft{kind: models.QueryKindName, query: name})

		if city := strings.TrimSpace(subj.GeographicHints.City); city != "" {
			drafts = append(drafts, draft{
				kind: models.QueryKindComposite, query: name + " " + city, covered: 2,
			})
		}
		if employer := strings.TrimSpace(subj.ProfessionalHints.Employer); employer != "" {
			drafts = append(drafts, draft{
				kind: models.QueryKindComposite, query: name + " " + employer, covered: 2,
			})
		}
		if country := strings.TrimSpace(subj.GeographicHints.Country); country != "" && subj.GeographicHints.City == "" {
			drafts = append(drafts, draft{
				kind: models.QueryKindComposite, query: name + " " + country, covered: 2,
			})
		}
	}
	for _, email := range subj.Emails {
		if email = strings.TrimSpace(email); email != "" {
			drafts = append(drafts, draft{kind: models.QueryKindEmail, query: email})
		}
	}
	for _, username := range subj.Usernames {
		if username = strings.TrimSpace(username); username != "" {
			drafts = append(drafts, draft{kind: models.QueryKindUsername, query: username})
		}
	}
	for _, phone := range subj.PhoneNumbers {
		if phone = strings.TrimSpace(phone); phone != "" {
			drafts = append(drafts, draft{kind: models.QueryKindPhone, query: phone})
		}
	}
	for _, domain := range subj.KnownDomains {
		if domain = strings.TrimSpace(domain); domain != "" {
			drafts = append(drafts, draft{kind: models.QueryKindDomain, query: domain})
		}
	}
	if employer := strings.TrimSpace(subj.ProfessionalHints.Employer); employer != "" {
		drafts = append(drafts, draft{kind: models.QueryKindCompany, query: employer})
	}

	return p.materialize(drafts, 0)
}

// FollowUp builds expansion queries for identifiers discovered during
// resolution. The caller enforces the depth ceiling; queries equal to
// ones already issued are dropped by the fingerprint the same way the
// initial plan deduplicates.
func (p *Planner) FollowUp(seed models.Seed, resolved []models.ResolvedEntity, depth int, issued map[string]bool) ([]models.Query, []models.InvestigationError) {
	known := make(map[string]bool)
	for _, e := range seed.Subject.Emails {
		known["email:"+strings.ToLower(e)] = true
	}
	for _, u := range seed.Subject.Usernames {
		known["username:"+strings.ToLower(u)] = true
	}
	for _, d := range seed.Subject.KnownDomains {
		known["domain:"+strings.ToLower(d)] = true
	}

	var drafts []draft
	for _, entity := range resolved {
		switch entity.Type {
		case models.EntityEmail:
			if v := entity.Attributes[models.AttrEmail]; v != "" && !known["email:"+strings.ToLower(v)] {
				drafts = append(drafts, draft{kind: models.QueryKindEmail, query: v})
			}
		case models.EntityUsername, models.EntitySocialProfile:
			if v := entity.Attributes[models.AttrUsername]; v != "" && !known["username:"+strings.ToLower(v)] {
				drafts = append(drafts, draft{kind: models.QueryKindUsername, query: v})
			}
		case models.EntityDomain:
			if v := entity.Attributes[models.AttrDomain]; v != "" && !known["domain:"+strings.ToLower(v)] {
				drafts = append(drafts, draft{kind: models.QueryKindDomain, query: v})
			}
		}
	}

	queries, rejected := p.materialize(drafts, depth)

	// Drop anything the investigation already executed.
	kept := queries[:0]
	for _, q := range queries {
		if !issued[dedupKey(q.Kind, q.QueryString)] {
			kept = append(kept, q)
		}
	}
	return kept, rejected
}

type draft struct {
	kind    models.QueryKind
	query   string
	covered int // seed attributes the query combines
}

// materialize routes drafts to connectors, assigns priorities, runs the
// security pass, deduplicates, and caps the plan. The output is
// deterministic for a fixed input.
func (p *Planner) materialize(drafts []draft, depth int) ([]models.Query, []models.InvestigationError) {
	seen := make(map[string]bool)
	var queries []models.Query
	var rejected []models.InvestigationError

	for _, d := range drafts {
		norm := normalizeQueryString(d.query)
		key := dedupKey(d.kind, norm)
		if seen[key] {
			continue
		}
		seen[key] = true

		if pattern, hit := p.blocklist.Check(d.query); hit {
			p.logger.Warn("query rejected by blocked pattern",
				"pattern", pattern,
				"kind", d.kind,
			)
			rejected = append(rejected, models.InvestigationError{
				Kind:      "security_rejected",
				Message:   fmt.Sprintf("query matched blocked pattern %q", pattern),
				Timestamp: time.Now().UTC(),
			})
			continue
		}

		targets := p.registry.ForKind(d.kind)
		if len(targets) == 0 {
			continue
		}
		names := make([]string, len(targets))
		confSum := 0.0
		for i, c := range targets {
			names[i] = c.Name()
			confSum += c.BaseConfidence()
		}

		priority := kindPriority[d.kind] + int(confSum/float64(len(targets))*10) + d.covered*2
		if priority > 100 {
			priority = 100
		}

		queries = append(queries, models.Query{
			ID:               uuid.NewString(),
			QueryString:      d.query,
			Kind:             d.kind,
			TargetConnectors: names,
			Priority:         priority,
			Depth:            depth,
		})
	}

	sort.SliceStable(queries, func(i, j int) bool {
		if queries[i].Priority != queries[j].Priority {
			return queries[i].Priority > queries[j].Priority
		}
		if queries[i].Kind != queries[j].Kind {
			return queries[i].Kind < queries[j].Kind
		}
		return queries[i].QueryString < queries[j].QueryString
	})

	if len(queries) > p.queryCap {
		queries = queries[:p.queryCap]
	}
	return queries, rejected
}

func normalizeQueryString(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func dedupKey(kind models.QueryKind, normalized string) string {
	return string(kind) + "|" + normalizeQueryString(normalized)
}

// DedupKey exposes the plan-level identity of a query for tracking which
// queries an investigation has already issued.
func DedupKey(q models.Query) string {
	return dedupKey(q.Kind, q.QueryString)
}
