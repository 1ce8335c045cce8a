package investigation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/connectors"
	"github.com/trailhound/trailhound/internal/discovery"
	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/fetch"
	"github.com/trailhound/trailhound/internal/graph"
	"github.com/trailhound/trailhound/internal/match"
	"github.com/trailhound/trailhound/internal/metrics"
	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/normalize"
	"github.com/trailhound/trailhound/internal/parse"
	"github.com/trailhound/trailhound/internal/report"
	"github.com/trailhound/trailhound/internal/resolve"
	"github.com/trailhound/trailhound/internal/storage"
	"github.com/trailhound/trailhound/internal/timeline"
)

// Deps are the process-wide collaborators a Manager coordinates
type Deps struct {
	Registry  *connectors.Registry
	Planner   *discovery.Planner
	Scheduler *fetch.Scheduler
	Parser    *parse.Parser
	Store     storage.Store
	// GraphBackend mirrors the final graph to an external database.
	// Optional; export failures degrade, never fail the investigation.
	GraphBackend graph.Backend
	// Metrics is optional; a private instrument set is created when nil
	Metrics  *metrics.Metrics
	Pipeline config.PipelineConfig
}

// Manager owns every running investigation: its state machine, its
// progress hub, and the handoff to the store at terminal state.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// run is the in-memory state of one active investigation. The pipeline
// goroutine is the only writer of inv; readers copy under mu.
type run struct {
	mu         sync.Mutex
	inv        *models.Investigation
	hub        *hub
	cancel     context.CancelFunc
	stageStart time.Time
	// expectedEntities is the denominator of the entity progress term,
	// derived from the seed at plan time.
	expectedEntities int
}

func (r *run) snapshot() *models.Investigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.inv
	cp.Errors = append([]models.InvestigationError(nil), r.inv.Errors...)
	return &cp
}

// NewManager creates an investigation manager
func NewManager(deps Deps) *Manager {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Manager{
		deps:   deps,
		logger: slog.Default().With("component", "coordinator"),
		runs:   make(map[string]*run),
	}
}

// Submit validates the seed, persists the created record, and starts
// the pipeline. The returned record reflects the created state.
func (m *Manager) Submit(ctx context.Context, seed models.Seed) (*models.Investigation, error) {
	seed, err := ValidateSeed(seed)
	if err != nil {
		if errors.IsKind(err, errors.KindSecurityRejected) {
			m.deps.Metrics.SecurityRejected()
		}
		return nil, err
	}
	if seed.InvestigationID == "" {
		seed.InvestigationID = uuid.NewString()
	}

	deadline := m.maxDuration(seed)
	now := time.Now().UTC()
	estimated := now.Add(deadline)
	inv := &models.Investigation{
		Seed:                seed,
		Status:              models.StatusCreated,
		CurrentStage:        "created",
		StartedAt:           now,
		EstimatedCompletion: &estimated,
	}
	if err := m.deps.Store.SaveInvestigation(ctx, inv); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{inv: inv, hub: newHub(), cancel: cancel, stageStart: now}
	m.mu.Lock()
	m.runs[seed.InvestigationID] = r
	m.mu.Unlock()

	m.deps.Metrics.InvestigationStarted()
	go m.execute(runCtx, r, deadline)

	m.logger.Info("investigation submitted",
		"investigation_id", seed.InvestigationID,
		"depth", seed.Constraints.MaxSearchDepth,
		"deadline", deadline,
	)
	return r.snapshot(), nil
}

// Status returns the record without its report. Terminal investigations
// are read from the store after the run is evicted.
func (m *Manager) Status(ctx context.Context, id string) (*models.Investigation, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if ok {
		return r.snapshot().WithoutReport(), nil
	}
	inv, err := m.deps.Store.GetInvestigation(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv.WithoutReport(), nil
}

// Report returns the report for a completed or cancelled investigation,
// not_ready while the investigation is still running. A cancelled
// investigation carries a partial report built from whatever had been
// collected when the cancel landed.
func (m *Manager) Report(ctx context.Context, id string) (*models.Report, error) {
	inv, err := m.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case models.StatusCompleted, models.StatusCancelled:
		return m.deps.Store.GetReport(ctx, id)
	case models.StatusFailed:
		return nil, errors.NotFoundf("investigation %s failed before a report was produced", id)
	default:
		return nil, errors.NotReadyf("investigation %s is %s", id, inv.Status)
	}
}

// List returns stored investigations newest-first
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*models.Investigation, error) {
	return m.deps.Store.ListInvestigations(ctx, limit, offset)
}

// Cancel stops a running investigation. Cancelling a terminal or
// unknown investigation returns not_found.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return errors.NotFoundf("no running investigation %s", id)
	}
	r.cancel()
	return nil
}

// Subscribe attaches a progress listener. Late subscribers receive the
// current status immediately; the channel closes at terminal state.
func (m *Manager) Subscribe(id string) (<-chan models.ProgressEvent, func(), error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil, errors.NotFoundf("no running investigation %s", id)
	}
	ch, cancel := r.hub.Subscribe()
	return ch, cancel, nil
}

func (m *Manager) maxDuration(seed models.Seed) time.Duration {
	if mins := seed.Constraints.MaxDurationMinutes; mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	if m.deps.Pipeline.MaxDuration > 0 {
		return m.deps.Pipeline.MaxDuration
	}
	return 120 * time.Minute
}

// execute drives one investigation to a terminal state
func (m *Manager) execute(ctx context.Context, r *run, deadline time.Duration) {
	id := r.inv.ID()
	ctx, cancelDeadline := context.WithTimeout(ctx, deadline)
	defer cancelDeadline()
	defer func() {
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
	}()
	// A crash in one pipeline must not take down the process or the
	// other in-flight investigations.
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("pipeline panicked", "investigation_id", id, "panic", rec)
			m.recordErrors(r, []models.InvestigationError{{
				Kind:      "internal",
				Message:   fmt.Sprintf("pipeline aborted: %v", rec),
				Timestamp: time.Now().UTC(),
			}})
			m.finishFailed(r)
		}
	}()

	seed := r.inv.Seed
	state := newPipelineState(seed)

	m.transition(r, models.StatusPlanning, "planning")
	queries, rejected := m.deps.Planner.Plan(seed)
	m.recordErrors(r, rejected)
	r.mu.Lock()
	r.inv.QueriesTotal = len(queries)
	r.expectedEntities = expectedEntities(seed)
	r.mu.Unlock()

	partial := false
	for round := 0; round < seed.Constraints.MaxSearchDepth; round++ {
		if len(queries) == 0 {
			break
		}
		if ctx.Err() != nil {
			partial = true
			break
		}

		m.transition(r, models.StatusFetching, "fetching")
		m.runRound(ctx, r, state, queries)

		// Parsing runs pipelined inside the round; the explicit state
		// marks the flush before resolution.
		m.transition(r, models.StatusParsing, "parsing")
		m.transition(r, models.StatusResolving, "resolving")
		state.resolveAll()
		m.publishEntityCount(r, state)

		if round+1 >= seed.Constraints.MaxSearchDepth {
			break
		}
		m.transition(r, models.StatusPlanning, "planning follow-up")
		var followRejected []models.InvestigationError
		queries, followRejected = m.deps.Planner.FollowUp(seed, state.resolved, round+1, state.issued)
		m.recordErrors(r, followRejected)
		r.mu.Lock()
		r.inv.QueriesTotal += len(queries)
		r.mu.Unlock()
	}

	switch {
	case ctx.Err() == context.Canceled:
		// Whatever was collected before the cancel still gets a report
		m.finishCancelled(r, m.assembleReport(r, state, true))
		return
	case ctx.Err() == context.DeadlineExceeded:
		partial = true
		m.recordErrors(r, []models.InvestigationError{{
			Kind:      "timeout",
			Message:   "investigation deadline expired; report assembled from partial data",
			Timestamp: time.Now().UTC(),
		}})
	}

	m.transition(r, models.StatusReporting, "reporting")
	rep := m.assembleReport(r, state, partial)
	m.finishCompleted(r, rep)
}

// runRound drains one query batch, parsing results as they arrive
func (m *Manager) runRound(ctx context.Context, r *run, state *pipelineState, queries []models.Query) {
	for _, q := range queries {
		state.issued[discovery.DedupKey(q)] = true
	}

	m.deps.Scheduler.Run(ctx, queries, func(o fetch.Outcome) {
		m.observeOutcome(o)
		r.mu.Lock()
		r.inv.QueriesExecuted++
		executed, total := r.inv.QueriesExecuted, r.inv.QueriesTotal
		r.mu.Unlock()

		if o.Err != nil {
			m.recordErrors(r, []models.InvestigationError{{
				Kind:      errors.KindString(errors.KindOf(o.Err)),
				Source:    o.Connector,
				QueryID:   o.Query.ID,
				Message:   o.Err.Error(),
				Timestamp: time.Now().UTC(),
			}})
		}

		// Parsing is pipelined with fetching: results never wait for
		// the full round to drain.
		newCandidates := state.ingest(m.deps.Registry, m.deps.Parser, m.deps.Metrics, o)

		m.updateProgress(r)
		data := map[string]interface{}{
			"queries_executed": executed,
			"queries_total":    total,
			"connector":        o.Connector,
		}
		r.hub.Publish(models.ProgressEvent{
			Type:            models.EventStatusUpdate,
			InvestigationID: r.inv.ID(),
			Data:            data,
		})
		if newCandidates > 0 {
			r.hub.Publish(models.ProgressEvent{
				Type:            models.EventNewEntity,
				InvestigationID: r.inv.ID(),
				Data:            map[string]interface{}{"candidates": newCandidates},
			})
		}
	})
}

// observeOutcome records one fetch outcome's instrumentation
func (m *Manager) observeOutcome(o fetch.Outcome) {
	switch {
	case o.CacheHit:
		m.deps.Metrics.CacheLookup("hit")
		return
	case o.Coalesced:
		m.deps.Metrics.CacheLookup("coalesced")
		return
	default:
		m.deps.Metrics.CacheLookup("miss")
	}

	label := "success"
	switch {
	case o.Err == nil:
	case errors.IsKind(o.Err, errors.KindRateLimited):
		label = "rate_limited"
		m.deps.Metrics.RateLimitWait()
	default:
		label = "error"
	}
	m.deps.Metrics.ConnectorRequest(o.Connector, label, o.Elapsed)

	for i := range o.Results {
		if o.Results[i].SecurityFlagged {
			m.deps.Metrics.ContentRedacted()
		}
	}
}

func (m *Manager) assembleReport(r *run, state *pipelineState, partial bool) *models.Report {
	id := r.inv.ID()

	g := graph.New()
	for _, e := range state.resolved {
		g.AddNode(e)
	}
	for _, e := range state.edges {
		if err := g.AddEdge(graph.Edge{
			Src: e.SrcID, Dst: e.DstID,
			Rel: e.Rel, Class: e.Class,
			Strength: e.Strength, Confidence: e.Confidence,
			Sources: e.Sources,
		}); err != nil {
			m.logger.Warn("edge skipped", "investigation_id", id, "error", err)
		}
	}

	tb := timeline.NewBuilder()
	tb.CollectEvents(id, state.resolved)

	if m.deps.GraphBackend != nil {
		exportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := m.deps.GraphBackend.ExportGraph(exportCtx, g); err != nil {
			m.logger.Warn("graph export failed", "investigation_id", id, "error", err)
		}
		cancel()
	}

	return report.NewBuilder().Build(report.Input{
		InvestigationID: id,
		Resolved:        state.resolved,
		RawResults:      state.rawResults,
		Graph:           g,
		Timeline:        tb,
		SubjectID:       id,
		MinConfidence:   float64(r.inv.Seed.Thresholds.MinimumEntityConfidence),
		Partial:         partial,
		GeneratedAt:     time.Now().UTC(),
	})
}

func (m *Manager) transition(r *run, status models.InvestigationStatus, stage string) {
	r.mu.Lock()
	m.deps.Metrics.StageDuration(string(r.inv.Status), time.Since(r.stageStart))
	r.stageStart = time.Now()
	r.inv.Status = status
	r.inv.CurrentStage = stage
	r.mu.Unlock()

	r.hub.Publish(models.ProgressEvent{
		Type:            models.EventStageTransition,
		InvestigationID: r.inv.ID(),
		Data:            map[string]interface{}{"status": string(status), "stage": stage},
	})
	m.persist(r)
}

// updateProgress blends query completion with entity discovery;
// reporting is the final tenth.
func (m *Manager) updateProgress(r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inv.QueriesTotal == 0 {
		return
	}
	queryFrac := float64(r.inv.QueriesExecuted) / float64(r.inv.QueriesTotal)
	if queryFrac > 1 {
		queryFrac = 1
	}
	entityFrac := 0.0
	if r.expectedEntities > 0 {
		entityFrac = float64(r.inv.EntitiesFound) / float64(r.expectedEntities)
		if entityFrac > 1 {
			entityFrac = 1
		}
	}
	r.inv.ProgressPercentage = 70*queryFrac + 20*entityFrac
}

// expectedEntities estimates how many entities a seed should surface.
// Each populated seed dimension typically resolves to itself plus one
// discovered neighbor; the floor keeps sparse seeds from saturating the
// entity term on the first hit.
func expectedEntities(seed models.Seed) int {
	s := seed.Subject
	n := 0
	if s.FullName != "" {
		n++
	}
	n += len(s.Usernames) + len(s.Emails) + len(s.PhoneNumbers) + len(s.KnownDomains)
	if s.GeographicHints.City != "" || s.GeographicHints.Region != "" || s.GeographicHints.Country != "" {
		n++
	}
	if s.ProfessionalHints.Employer != "" || s.ProfessionalHints.Title != "" || s.ProfessionalHints.Industry != "" {
		n++
	}
	if n < 2 {
		n = 2
	}
	return 2 * n
}

func (m *Manager) publishEntityCount(r *run, state *pipelineState) {
	r.mu.Lock()
	r.inv.EntitiesFound = len(state.resolved)
	r.mu.Unlock()
	m.updateProgress(r)
}

func (m *Manager) recordErrors(r *run, errs []models.InvestigationError) {
	if len(errs) == 0 {
		return
	}
	r.mu.Lock()
	r.inv.Errors = append(r.inv.Errors, errs...)
	r.mu.Unlock()
	for _, e := range errs {
		if e.Kind == "security_rejected" {
			m.deps.Metrics.SecurityRejected()
		}
		r.hub.Publish(models.ProgressEvent{
			Type:            models.EventError,
			InvestigationID: r.inv.ID(),
			Data:            map[string]interface{}{"kind": e.Kind, "message": e.Message, "source": e.Source},
		})
	}
}

func (m *Manager) finishCompleted(r *run, rep *models.Report) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.inv.Status = models.StatusCompleted
	r.inv.CurrentStage = "completed"
	r.inv.ProgressPercentage = 100
	r.inv.CompletedAt = &now
	r.inv.Report = rep
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.deps.Store.SaveReport(ctx, rep); err != nil {
		m.logger.Error("report save failed", "investigation_id", r.inv.ID(), "error", err)
	}
	m.persist(r)

	r.hub.Publish(models.ProgressEvent{
		Type:            models.EventCompletion,
		InvestigationID: r.inv.ID(),
		Data: map[string]interface{}{
			"status":  string(models.StatusCompleted),
			"partial": rep.Partial,
		},
	})
	m.deps.Metrics.EntitiesResolved(r.inv.EntitiesFound)
	m.deps.Metrics.InvestigationFinished(string(models.StatusCompleted), now.Sub(r.inv.StartedAt))
	m.logger.Info("investigation completed",
		"investigation_id", r.inv.ID(),
		"entities", r.inv.EntitiesFound,
		"partial", rep.Partial,
	)
}

func (m *Manager) finishCancelled(r *run, rep *models.Report) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.inv.Status = models.StatusCancelled
	r.inv.CurrentStage = "cancelled"
	r.inv.CompletedAt = &now
	r.inv.Report = rep
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.deps.Store.SaveReport(ctx, rep); err != nil {
		m.logger.Error("report save failed", "investigation_id", r.inv.ID(), "error", err)
	}
	m.persist(r)

	r.hub.Publish(models.ProgressEvent{
		Type:            models.EventCompletion,
		InvestigationID: r.inv.ID(),
		Data: map[string]interface{}{
			"status":  string(models.StatusCancelled),
			"partial": rep.Partial,
		},
	})
	m.deps.Metrics.InvestigationFinished(string(models.StatusCancelled), now.Sub(r.inv.StartedAt))
	m.logger.Info("investigation cancelled", "investigation_id", r.inv.ID())
}

// finishFailed is the terminal path for non-recoverable pipeline
// errors. The last-known progress and error entries stay on the record.
func (m *Manager) finishFailed(r *run) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.inv.Status = models.StatusFailed
	r.inv.CurrentStage = "failed"
	r.inv.CompletedAt = &now
	r.mu.Unlock()
	m.persist(r)

	r.hub.Publish(models.ProgressEvent{
		Type:            models.EventCompletion,
		InvestigationID: r.inv.ID(),
		Data:            map[string]interface{}{"status": string(models.StatusFailed)},
	})
	m.deps.Metrics.InvestigationFinished(string(models.StatusFailed), now.Sub(r.inv.StartedAt))
	m.logger.Error("investigation failed", "investigation_id", r.inv.ID())
}

func (m *Manager) persist(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.deps.Store.SaveInvestigation(ctx, r.snapshot()); err != nil {
		m.logger.Error("investigation save failed", "investigation_id", r.inv.ID(), "error", err)
	}
}

// pipelineState accumulates per-investigation data across rounds. The
// scheduler callback is its only concurrent writer.
type pipelineState struct {
	mu         sync.Mutex
	seed       models.Seed
	normalizer *normalize.Normalizer
	resolver   *resolve.Resolver

	rawResults []models.RawResult
	candidates []models.Candidate
	resolved   []models.ResolvedEntity
	edges      []resolve.Edge
	issued     map[string]bool
}

func newPipelineState(seed models.Seed) *pipelineState {
	return &pipelineState{
		seed:       seed,
		normalizer: normalize.New(seed.Subject.GeographicHints),
		resolver: resolve.New(
			match.New(match.DefaultWeights()),
			float64(seed.Thresholds.MinimumEntityConfidence),
		),
		issued: make(map[string]bool),
	}
}

// ingest parses one outcome's results into candidates. Results from
// sources below the source-confidence floor are kept as references but
// contribute no candidates.
func (s *pipelineState) ingest(registry *connectors.Registry, parser *parse.Parser, met *metrics.Metrics, o fetch.Outcome) int {
	if len(o.Results) == 0 {
		return 0
	}
	sourceConf := 0.5
	if conn, ok := registry.Get(o.Connector); ok {
		sourceConf = conn.BaseConfidence()
	}

	added := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range o.Results {
		rr := o.Results[i]
		if sourceConf*100 >= float64(s.seed.Thresholds.MinimumSourceConfidence) {
			cands := parser.Parse(&rr, sourceConf)
			for i := range cands {
				met.CandidateParsed(string(cands[i].Type))
			}
			s.candidates = append(s.candidates, cands...)
			added += len(cands)
		}
		// Retained after parsing so a security redaction sticks to the
		// stored copy, not just the parser's view.
		s.rawResults = append(s.rawResults, rr)
	}
	return added
}

// resolveAll re-resolves the full candidate set. Resolution is
// idempotent and order-independent, so recomputing per round keeps the
// clusters consistent as new evidence lands.
func (s *pipelineState) resolveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := s.normalizer.NormalizeAll(s.candidates)
	s.resolved, s.edges = s.resolver.Resolve(normalized)
}
