package investigation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/internal/cache"
	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/connectors"
	"github.com/trailhound/trailhound/internal/discovery"
	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/fetch"
	"github.com/trailhound/trailhound/internal/match"
	"github.com/trailhound/trailhound/internal/metrics"
	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/normalize"
	"github.com/trailhound/trailhound/internal/parse"
	"github.com/trailhound/trailhound/internal/ratelimit"
	"github.com/trailhound/trailhound/internal/resolve"
	"github.com/trailhound/trailhound/internal/storage"
)

// fakeSource is a scriptable connector for coordinator scenarios
type fakeSource struct {
	name    string
	kinds   []models.QueryKind
	conf    float64
	delay   time.Duration
	mu      sync.Mutex
	calls   int
	respond func(call int, q models.Query) ([]models.RawResult, error)
}

func (f *fakeSource) Name() string                      { return f.name }
func (f *fakeSource) Type() string                      { return "test" }
func (f *fakeSource) SupportedKinds() []models.QueryKind { return f.kinds }
func (f *fakeSource) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{models.EntityPerson, models.EntityDomain}
}
func (f *fakeSource) RateLimitPerHour() int   { return 100000 }
func (f *fakeSource) BaseConfidence() float64 { return f.conf }
func (f *fakeSource) ValidateCredentials(ctx context.Context) (bool, error) {
	return true, nil
}
func (f *fakeSource) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, errors.TimeoutWrap(ctx.Err(), "search aborted").WithSource(f.name)
		}
	}
	return f.respond(call, q)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func whoisResult(q models.Query, record string) models.RawResult {
	return models.RawResult{
		ID:          uuid.NewString(),
		QueryID:     q.ID,
		SourceName:  "whois",
		URL:         "whois://" + q.QueryString,
		Title:       q.QueryString,
		Content:     []byte(record),
		MediaType:   "text/plain",
		Metadata:    map[string]string{"schema": "whois"},
		RetrievedAt: time.Now().UTC(),
		ContentHash: "h-" + q.QueryString,
	}
}

func newTestManager(t *testing.T, pipeline config.PipelineConfig, sources ...*fakeSource) (*Manager, storage.Store) {
	t.Helper()
	registry := connectors.NewRegistry()
	limiter := ratelimit.NewController()
	for _, s := range sources {
		registry.Register(s)
		limiter.Register(s.Name(), s.RateLimitPerHour())
	}
	store := storage.NewMemory()
	m := NewManager(Deps{
		Registry: registry,
		Planner:  discovery.NewPlanner(registry, nil, 0),
		Scheduler: fetch.New(registry, cache.New(1000, time.Hour, nil, nil), limiter,
			fetch.Options{MaxConcurrent: 4, QueryTimeout: 5 * time.Second}),
		Parser:   parse.New(1<<20, false),
		Store:    store,
		Pipeline: pipeline,
	})
	return m, store
}

func awaitTerminal(t *testing.T, m *Manager, id string) *models.Investigation {
	t.Helper()
	var inv *models.Investigation
	require.Eventually(t, func() bool {
		got, err := m.Status(context.Background(), id)
		if err != nil {
			return false
		}
		inv = got
		return got.Status.IsTerminal()
	}, 10*time.Second, 10*time.Millisecond)
	return inv
}

func TestSingleSourceInvestigation(t *testing.T) {
	whois := &fakeSource{
		name:  "whois",
		kinds: []models.QueryKind{models.QueryKindDomain},
		conf:  1.0,
	}
	whois.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		record := "Registrant Name: Alice Roe\n" +
			"Registrar: Example Registrar\n" +
			"Creation Date: 2019-05-01T00:00:00Z\n"
		return []models.RawResult{whoisResult(q, record)}, nil
	}
	m, store := newTestManager(t, config.PipelineConfig{}, whois)

	inv, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     "Alice Roe",
			KnownDomains: []string{"aroe.example"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)

	final := awaitTerminal(t, m, inv.ID())
	assert.Equal(t, models.StatusCompleted, final.Status)

	rep, err := m.Report(context.Background(), inv.ID())
	require.NoError(t, err)
	assert.False(t, rep.Partial)
	assert.Equal(t, models.RiskLevelLow, rep.Summary.Level)

	var person, domain *models.ResolvedEntity
	for i := range rep.DetailedFindings {
		e := &rep.DetailedFindings[i].Entity
		switch e.Type {
		case models.EntityPerson:
			person = e
		case models.EntityDomain:
			domain = e
		}
	}
	require.NotNil(t, person, "registrant should resolve to a person")
	require.NotNil(t, domain, "queried domain should resolve")
	assert.Equal(t, "Alice Roe", person.Attributes[models.AttrName])
	assert.GreaterOrEqual(t, person.Confidence, 90.0)
	assert.GreaterOrEqual(t, rep.Graph.EdgeCount, 1, "registrant and domain should be linked")

	// Terminal record survives run eviction: the store is authoritative
	stored, err := store.GetInvestigation(context.Background(), inv.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestIdenticalSeedsShareFetches(t *testing.T) {
	search := &fakeSource{
		name:  "search",
		kinds: []models.QueryKind{models.QueryKindEmail},
		conf:  0.9,
		delay: 50 * time.Millisecond,
	}
	search.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		return []models.RawResult{{
			ID:          "r-bob",
			QueryID:     q.ID,
			SourceName:  "search",
			Content:     []byte("contact bob@example.com for details"),
			MediaType:   "text/plain",
			RetrievedAt: time.Now().UTC(),
			ContentHash: "h-bob",
		}}, nil
	}
	m, _ := newTestManager(t, config.PipelineConfig{}, search)

	seed := func() models.Seed {
		return models.Seed{
			Subject: models.SubjectIdentifiers{
				FullName: "Bob Chen",
				Emails:   []string{"bob@example.com"},
			},
			Constraints: models.Constraints{MaxSearchDepth: 1},
		}
	}
	a, err := m.Submit(context.Background(), seed())
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	b, err := m.Submit(context.Background(), seed())
	require.NoError(t, err)

	finalA := awaitTerminal(t, m, a.ID())
	finalB := awaitTerminal(t, m, b.ID())
	assert.Equal(t, models.StatusCompleted, finalA.Status)
	assert.Equal(t, models.StatusCompleted, finalB.Status)

	assert.Equal(t, 1, search.callCount(), "identical fingerprints must share one upstream call")

	repA, err := m.Report(context.Background(), a.ID())
	require.NoError(t, err)
	repB, err := m.Report(context.Background(), b.ID())
	require.NoError(t, err)
	require.Len(t, repA.SourceReferences, 1)
	require.Len(t, repB.SourceReferences, 1)
	assert.Equal(t, repA.SourceReferences[0].ContentHash, repB.SourceReferences[0].ContentHash)
}

func TestRateLimitedSourceRecoversWithoutSurfacing(t *testing.T) {
	search := &fakeSource{
		name:  "search",
		kinds: []models.QueryKind{models.QueryKindEmail},
		conf:  0.9,
	}
	search.respond = func(call int, q models.Query) ([]models.RawResult, error) {
		if call == 1 {
			return nil, errors.RateLimited("search").WithContext("retry_after", 30*time.Millisecond)
		}
		return []models.RawResult{{
			ID:          uuid.NewString(),
			QueryID:     q.ID,
			SourceName:  "search",
			Content:     []byte("profile for carol@example.com"),
			MediaType:   "text/plain",
			RetrievedAt: time.Now().UTC(),
			ContentHash: "h-carol",
		}}, nil
	}
	m, _ := newTestManager(t, config.PipelineConfig{}, search)

	inv, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName: "Carol Diaz",
			Emails:   []string{"carol@example.com"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)

	final := awaitTerminal(t, m, inv.ID())
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 2, search.callCount(), "the paced retry should succeed")
	for _, e := range final.Errors {
		assert.NotEqual(t, "rate_limited", e.Kind, "a handled 429 must not surface to the record")
	}
}

func TestConflictingIdentitiesStayDistinct(t *testing.T) {
	// Same name and city; email local parts differ and birth years are
	// five apart. The pair must land between the ambiguous floor and the
	// merge threshold and stay unmerged.
	mk := func(id, email, birthYear string) models.Candidate {
		return models.Candidate{
			ID:   id,
			Type: models.EntityPerson,
			Attributes: map[string]string{
				models.AttrName:      "Alice Roe",
				models.AttrEmail:     email,
				models.AttrCity:      "Springfield",
				models.AttrBirthYear: birthYear,
			},
			SourceRefs:           []string{"raw-" + id},
			SourceName:           "test",
			SourceConfidence:     0.8,
			ExtractionConfidence: 0.9,
		}
	}
	cands := []models.Candidate{
		mk("c1", "aroe@example.com", "1985"),
		mk("c2", "alice.roe@example.com", "1990"),
	}

	normalized := normalize.New(models.GeographicHints{}).NormalizeAll(cands)
	matcher := match.New(match.DefaultWeights())
	score := matcher.Score(normalized[0], normalized[1]).Score
	assert.GreaterOrEqual(t, score, 60.0)
	assert.LessOrEqual(t, score, 75.0)

	resolved, _ := resolve.New(matcher, 70).Resolve(normalized)
	require.Len(t, resolved, 2, "conflicting identities must not merge")
	for _, e := range resolved {
		assert.True(t, e.Ambiguous)
		assert.Equal(t, models.VerificationPossible, e.Verification)
	}
}

func TestBlockedSeedMakesNoOutboundCall(t *testing.T) {
	whois := &fakeSource{
		name:  "whois",
		kinds: []models.QueryKind{models.QueryKindDomain},
		conf:  0.9,
	}
	whois.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		return []models.RawResult{whoisResult(q, "Registrar: Example")}, nil
	}
	m, _ := newTestManager(t, config.PipelineConfig{}, whois)

	// The domain is well-formed but trips the credential-dump pattern
	inv, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     "X Y",
			KnownDomains: []string{"passwordsdump.example"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)

	final := awaitTerminal(t, m, inv.ID())
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 0, whois.callCount(), "rejected queries must never go out")

	found := false
	for _, e := range final.Errors {
		if e.Kind == "security_rejected" {
			found = true
		}
	}
	assert.True(t, found, "rejection must be recorded on the investigation")
}

func TestDeadlineProducesPartialReport(t *testing.T) {
	slow := &fakeSource{
		name:  "slow",
		kinds: []models.QueryKind{models.QueryKindEmail, models.QueryKindDomain},
		conf:  0.9,
		delay: 300 * time.Millisecond,
	}
	slow.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		return []models.RawResult{whoisResult(q, "Registrar: Example")}, nil
	}
	m, store := newTestManager(t, config.PipelineConfig{MaxDuration: 150 * time.Millisecond}, slow)

	inv, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     "Dana Fox",
			Emails:       []string{"dana@example.com", "dfox@example.org"},
			KnownDomains: []string{"dana.example", "fox.example"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)

	final := awaitTerminal(t, m, inv.ID())
	assert.Equal(t, models.StatusCompleted, final.Status)

	timedOut := false
	for _, e := range final.Errors {
		if e.Kind == "timeout" {
			timedOut = true
		}
	}
	assert.True(t, timedOut, "deadline expiry must be recorded")

	rep, err := m.Report(context.Background(), inv.ID())
	require.NoError(t, err)
	assert.True(t, rep.Partial)

	stored, err := store.GetInvestigation(context.Background(), inv.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestCancelStopsInvestigation(t *testing.T) {
	slow := &fakeSource{
		name:  "slow",
		kinds: []models.QueryKind{models.QueryKindDomain},
		conf:  0.9,
		delay: 5 * time.Second,
	}
	slow.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		return []models.RawResult{whoisResult(q, "Registrar: Example")}, nil
	}
	m, _ := newTestManager(t, config.PipelineConfig{}, slow)

	inv, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     "Eve Gray",
			KnownDomains: []string{"eve.example"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)

	events, unsubscribe, err := m.Subscribe(inv.ID())
	require.NoError(t, err)
	defer unsubscribe()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, m.Cancel(inv.ID()))

	final := awaitTerminal(t, m, inv.ID())
	assert.Equal(t, models.StatusCancelled, final.Status)
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must propagate within 2s")

	// The stream must end with a terminal event
	var last models.ProgressEvent
	for ev := range events {
		last = ev
	}
	assert.Equal(t, models.EventCompletion, last.Type)
	assert.Equal(t, string(models.StatusCancelled), last.Data["status"])

	// Cancellation before any result still yields a report: partial,
	// with nothing in it.
	rep, err := m.Report(context.Background(), inv.ID())
	require.NoError(t, err)
	assert.True(t, rep.Partial)
	assert.Empty(t, rep.DetailedFindings)
}

func TestFollowUpRoundExpandsPlan(t *testing.T) {
	// Round one discovers a new domain; depth 2 lets the planner chase it
	search := &fakeSource{
		name:  "search",
		kinds: []models.QueryKind{models.QueryKindEmail, models.QueryKindDomain},
		conf:  0.9,
	}
	search.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		if q.Kind == models.QueryKindEmail {
			return []models.RawResult{{
				ID:          uuid.NewString(),
				QueryID:     q.ID,
				SourceName:  "search",
				Content:     []byte("owner of hidden-site.example"),
				MediaType:   "text/plain",
				RetrievedAt: time.Now().UTC(),
				ContentHash: "h-email",
			}}, nil
		}
		return []models.RawResult{whoisResult(q, "Registrar: Example")}, nil
	}
	m, _ := newTestManager(t, config.PipelineConfig{}, search)

	inv, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName: "Frank Hill",
			Emails:   []string{"frank@example.com"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 2},
	})
	require.NoError(t, err)

	final := awaitTerminal(t, m, inv.ID())
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.GreaterOrEqual(t, final.QueriesTotal, 2, "follow-up round should add the discovered domain")
	assert.GreaterOrEqual(t, search.callCount(), 2)
}

func TestIngestRetainsRedactedResult(t *testing.T) {
	state := newPipelineState(models.Seed{})
	hostile := models.RawResult{
		ID:         "r1",
		SourceName: "search",
		Content:    []byte("hello <script>document.cookie</script> mail me a@b.com"),
		MediaType:  "text/plain",
	}
	added := state.ingest(connectors.NewRegistry(), parse.New(0, false), metrics.New(), fetch.Outcome{
		Connector: "search",
		Results:   []models.RawResult{hostile},
	})

	assert.Zero(t, added, "flagged content must yield no candidates")
	require.Len(t, state.rawResults, 1)
	kept := state.rawResults[0]
	assert.True(t, kept.SecurityFlagged, "retained copy must carry the flag")
	assert.NotContains(t, string(kept.Content), "document.cookie")
	assert.NotContains(t, string(kept.Content), "a@b.com")
}

// panicOnSave panics on the nth SaveInvestigation to simulate a crash
// inside the pipeline goroutine
type panicOnSave struct {
	storage.Store
	mu      sync.Mutex
	saves   int
	panicAt int
}

func (p *panicOnSave) SaveInvestigation(ctx context.Context, inv *models.Investigation) error {
	p.mu.Lock()
	p.saves++
	n := p.saves
	p.mu.Unlock()
	if n == p.panicAt {
		panic("store corrupted")
	}
	return p.Store.SaveInvestigation(ctx, inv)
}

func TestPipelinePanicFailsOnlyThatInvestigation(t *testing.T) {
	whois := &fakeSource{
		name:  "whois",
		kinds: []models.QueryKind{models.QueryKindDomain},
		conf:  0.9,
	}
	whois.respond = func(_ int, q models.Query) ([]models.RawResult, error) {
		return []models.RawResult{whoisResult(q, "Registrar: Example")}, nil
	}
	registry := connectors.NewRegistry()
	registry.Register(whois)
	limiter := ratelimit.NewController()
	limiter.Register(whois.Name(), whois.RateLimitPerHour())
	// Save 1 is Submit; save 2 is the first in-pipeline persist
	store := &panicOnSave{Store: storage.NewMemory(), panicAt: 2}
	m := NewManager(Deps{
		Registry: registry,
		Planner:  discovery.NewPlanner(registry, nil, 0),
		Scheduler: fetch.New(registry, cache.New(1000, time.Hour, nil, nil), limiter,
			fetch.Options{MaxConcurrent: 4, QueryTimeout: 5 * time.Second}),
		Parser: parse.New(1<<20, false),
		Store:  store,
	})

	first, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     "Gina Ito",
			KnownDomains: []string{"gina.example"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)

	final := awaitTerminal(t, m, first.ID())
	assert.Equal(t, models.StatusFailed, final.Status)
	foundInternal := false
	for _, e := range final.Errors {
		if e.Kind == "internal" {
			foundInternal = true
		}
	}
	assert.True(t, foundInternal, "the crash must land as a terminal error entry")
	_, err = m.Report(context.Background(), first.ID())
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	// The crash must not poison later investigations on the same manager
	second, err := m.Submit(context.Background(), models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     "Hana Juma",
			KnownDomains: []string{"hana.example"},
		},
		Constraints: models.Constraints{MaxSearchDepth: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, awaitTerminal(t, m, second.ID()).Status)
}

func TestProgressBlendsQueriesAndEntities(t *testing.T) {
	m, _ := newTestManager(t, config.PipelineConfig{})
	r := &run{
		inv:              &models.Investigation{QueriesExecuted: 5, QueriesTotal: 10, EntitiesFound: 2},
		expectedEntities: 4,
	}
	m.updateProgress(r)
	assert.InDelta(t, 45.0, r.inv.ProgressPercentage, 0.01)

	r.inv.QueriesExecuted = 10
	r.inv.EntitiesFound = 40
	m.updateProgress(r)
	assert.InDelta(t, 90.0, r.inv.ProgressPercentage, 0.01,
		"both terms cap; the final tenth belongs to reporting")
}

func TestExpectedEntitiesScalesWithSeed(t *testing.T) {
	sparse := models.Seed{Subject: models.SubjectIdentifiers{FullName: "A B"}}
	assert.Equal(t, 4, expectedEntities(sparse), "sparse seeds keep a floor")

	rich := models.Seed{Subject: models.SubjectIdentifiers{
		FullName:     "A B",
		Emails:       []string{"a@x.example", "b@x.example"},
		KnownDomains: []string{"x.example"},
	}}
	assert.Equal(t, 8, expectedEntities(rich))
}

func TestStatusUnknownInvestigation(t *testing.T) {
	m, _ := newTestManager(t, config.PipelineConfig{})
	_, err := m.Status(context.Background(), "missing")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	_, err = m.Report(context.Background(), "missing")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	assert.True(t, errors.IsKind(m.Cancel("missing"), errors.KindNotFound))
}
