package fetch

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trailhound/trailhound/internal/cache"
	"github.com/trailhound/trailhound/internal/connectors"
	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/parse"
	"github.com/trailhound/trailhound/internal/ratelimit"
)

// Options bound one scheduler run
type Options struct {
	MaxConcurrent    int           // worker count, default 16
	QueryTimeout     time.Duration // per-query deadline, default 30s
	RetryMaxAttempts int           // attempts per (query, connector), default 3
	RetryBase        time.Duration // default 500ms
	RetryFactor      float64       // default 2.0
	RetryCap         time.Duration // default 30s
	RetryJitterFrac  float64       // default 0.2
	MaxContentBytes  int64         // security-screen size cap, 0 disables
}

func (o *Options) fill() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 16
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryFactor <= 1 {
		o.RetryFactor = 2.0
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 30 * time.Second
	}
	if o.RetryJitterFrac < 0 {
		o.RetryJitterFrac = 0.2
	}
}

// Outcome is the result of one query against one connector
type Outcome struct {
	Query     models.Query
	Connector string
	Results   []models.RawResult
	CacheHit  bool
	Coalesced bool
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

// Scheduler drains a query plan against the connector registry, going
// through the cache and the rate-limit controller on every call.
type Scheduler struct {
	registry *connectors.Registry
	cache    *cache.ResultCache
	limiter  *ratelimit.Controller
	opts     Options
	logger   *slog.Logger

	// sleep is replaceable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler
func New(registry *connectors.Registry, resultCache *cache.ResultCache, limiter *ratelimit.Controller, opts Options) *Scheduler {
	opts.fill()
	return &Scheduler{
		registry: registry,
		cache:    resultCache,
		limiter:  limiter,
		opts:     opts,
		logger:   slog.Default().With("component", "scheduler"),
		sleep:    sleepCtx,
	}
}

// Run drains the plan. Queries dispatch in priority order; each worker
// takes the highest-priority pending query. onOutcome is called for
// every (query, connector) completion, including failures; it may be
// nil. Cancelling ctx drops the remaining queue and returns promptly.
func (s *Scheduler) Run(ctx context.Context, plan []models.Query, onOutcome func(Outcome)) []Outcome {
	queue := orderPlan(plan)

	var mu sync.Mutex
	next := 0
	take := func() (models.Query, bool) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(queue) {
			return models.Query{}, false
		}
		q := queue[next]
		next++
		return q, true
	}

	var outMu sync.Mutex
	var outcomes []Outcome
	record := func(o Outcome) {
		outMu.Lock()
		outcomes = append(outcomes, o)
		outMu.Unlock()
		if onOutcome != nil {
			onOutcome(o)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.opts.MaxConcurrent; w++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				q, ok := take()
				if !ok {
					return nil
				}
				for _, name := range q.TargetConnectors {
					if gctx.Err() != nil {
						return nil
					}
					record(s.executeOne(gctx, q, name))
				}
			}
		})
	}
	_ = g.Wait()
	return outcomes
}

// orderPlan sorts highest priority first and, within a priority band,
// interleaves queries across their primary connectors so a band
// dominated by one source cannot starve the others.
func orderPlan(plan []models.Query) []models.Query {
	queue := make([]models.Query, len(plan))
	copy(queue, plan)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Priority > queue[j].Priority })

	out := make([]models.Query, 0, len(queue))
	for lo := 0; lo < len(queue); {
		hi := lo + 1
		for hi < len(queue) && queue[hi].Priority == queue[lo].Priority {
			hi++
		}
		out = append(out, interleaveBand(queue[lo:hi])...)
		lo = hi
	}
	return out
}

func interleaveBand(band []models.Query) []models.Query {
	if len(band) < 2 {
		return band
	}
	var order []string
	byConn := make(map[string][]models.Query)
	for _, q := range band {
		key := ""
		if len(q.TargetConnectors) > 0 {
			key = q.TargetConnectors[0]
		}
		if _, ok := byConn[key]; !ok {
			order = append(order, key)
		}
		byConn[key] = append(byConn[key], q)
	}

	out := make([]models.Query, 0, len(band))
	for len(out) < len(band) {
		for _, key := range order {
			if qs := byConn[key]; len(qs) > 0 {
				out = append(out, qs[0])
				byConn[key] = qs[1:]
			}
		}
	}
	return out
}

// executeOne runs one query against one connector with retries. The
// cache is consulted first; a hit bypasses the rate limiter entirely.
func (s *Scheduler) executeOne(ctx context.Context, q models.Query, name string) (out Outcome) {
	out = Outcome{Query: q, Connector: name}
	started := time.Now()
	defer func() { out.Elapsed = time.Since(started) }()

	conn, ok := s.registry.Get(name)
	if !ok {
		out.Err = errors.Internal("connector not registered: " + name)
		return out
	}

	key := cache.Fingerprint(name, q.QueryString, q.Parameters)
	results, cacheOutcome, err := s.cache.GetOrFetch(ctx, name, key, func(fctx context.Context) ([]models.RawResult, error) {
		r, attempts, ferr := s.fetchWithRetry(fctx, conn, q)
		out.Attempts = attempts
		// Hostile payloads are redacted here, before the cache keeps a
		// copy; only the placeholder travels further down the pipeline.
		for i := range r {
			if pattern, hit := parse.Sanitize(&r[i], s.opts.MaxContentBytes); hit {
				s.logger.Warn("result redacted by security screen",
					"connector", name,
					"query_id", q.ID,
					"pattern", pattern,
					"url", r[i].URL,
				)
			}
		}
		return r, ferr
	})
	out.Results = results
	out.CacheHit = cacheOutcome.Hit
	out.Coalesced = cacheOutcome.Coalesced
	out.Err = err

	if err != nil {
		s.logger.Warn("query failed",
			"query_id", q.ID,
			"connector", name,
			"kind", errors.KindString(errors.KindOf(err)),
			"error", err,
		)
	}
	return out
}

func (s *Scheduler) fetchWithRetry(ctx context.Context, conn connectors.Connector, q models.Query) ([]models.RawResult, int, error) {
	name := conn.Name()
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryMaxAttempts; attempt++ {
		if err := s.limiter.Acquire(ctx, name); err != nil {
			return nil, attempt, err
		}

		qctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
		results, err := conn.Search(qctx, q)
		cancel()

		if err == nil {
			s.limiter.ReportSuccess(name)
			s.registry.MarkStatus(name, connectors.StatusActive, "")
			return results, attempt, nil
		}
		lastErr = err

		switch {
		case errors.IsKind(err, errors.KindRateLimited):
			retryAfter := connectors.RetryAfter(err)
			s.limiter.ReportRateLimited(name, retryAfter)
			s.registry.MarkBackoff(name, s.limiter.BackoffUntil(name))
			// The next Acquire waits out the backoff; the attempt still
			// counts against the budget.
		case errors.IsKind(err, errors.KindCredentialsInvalid):
			s.registry.MarkStatus(name, connectors.StatusError, err.Error())
			return nil, attempt, err
		case !errors.IsTransient(err):
			s.registry.MarkStatus(name, connectors.StatusError, err.Error())
			return nil, attempt, err
		}

		if attempt < s.opts.RetryMaxAttempts {
			if serr := s.sleep(ctx, s.retryDelay(attempt)); serr != nil {
				return nil, attempt, errors.TimeoutWrap(serr, "retry wait aborted").WithSource(name)
			}
		}
	}
	return nil, s.opts.RetryMaxAttempts, lastErr
}

// retryDelay computes base*factor^(attempt-1) capped, with ±jitter
func (s *Scheduler) retryDelay(attempt int) time.Duration {
	d := float64(s.opts.RetryBase)
	for i := 1; i < attempt; i++ {
		d *= s.opts.RetryFactor
	}
	if d > float64(s.opts.RetryCap) {
		d = float64(s.opts.RetryCap)
	}
	if f := s.opts.RetryJitterFrac; f > 0 {
		d *= 1 + (rand.Float64()*2-1)*f
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
