package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/trailhound/trailhound/internal/errors"
)

// Backoff parameters for the exponential window set on rate_limited
// responses: base 1s, factor 2, cap 300s, ±20% jitter.
const (
	backoffBase   = time.Second
	backoffFactor = 2.0
	backoffCap    = 300 * time.Second
	backoffJitter = 0.2
)

// Controller enforces per-source request budgets. Each source gets a token
// bucket sized to its declared hourly budget with per-minute smoothing,
// plus a rolling-hour hard cap and an exponential backoff window that
// opens when the source reports 429.
type Controller struct {
	mu      sync.Mutex
	sources map[string]*sourceState
	logger  *slog.Logger
	now     func() time.Time
	rng     *rand.Rand
	rngMu   sync.Mutex
}

type sourceState struct {
	// acquireMu serializes waiters so acquisitions within one source are
	// handed out in arrival order.
	acquireMu sync.Mutex

	mu           sync.Mutex
	limiter      *rate.Limiter
	perHour      int
	grants       []time.Time // successful acquisitions inside the rolling hour
	backoffUntil time.Time
	backoffExp   int
}

// NewController creates a rate-limit controller
func NewController() *Controller {
	return &Controller{
		sources: make(map[string]*sourceState),
		logger:  slog.Default().With("component", "ratelimit"),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register declares a source and its hourly budget. Re-registering
// replaces the budget.
func (c *Controller) Register(source string, perHour int) {
	if perHour <= 0 {
		perHour = 60
	}
	burst := perHour / 60
	if burst < 1 {
		burst = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[source] = &sourceState{
		// Smooth the hourly budget across the hour; bursts bounded to a
		// minute's worth of requests.
		limiter: rate.NewLimiter(rate.Limit(float64(perHour)/3600.0), burst),
		perHour: perHour,
	}
}

func (c *Controller) state(source string) *sourceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[source]
	if !ok {
		s = &sourceState{
			limiter: rate.NewLimiter(rate.Limit(60.0/3600.0), 1),
			perHour: 60,
		}
		c.sources[source] = s
	}
	return s
}

// Acquire blocks until a request to the source may proceed, or the
// context ends. Waiters within one source are served in arrival order.
func (c *Controller) Acquire(ctx context.Context, source string) error {
	s := c.state(source)

	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	// Wait out any backoff window first.
	for {
		s.mu.Lock()
		until := s.backoffUntil
		s.mu.Unlock()
		wait := until.Sub(c.now())
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.TimeoutWrap(ctx.Err(), "cancelled waiting for backoff window").WithSource(source)
		}
	}

	// Rolling-hour hard cap: never more than perHour grants in any
	// trailing hour.
	for {
		s.mu.Lock()
		s.pruneGrants(c.now())
		if len(s.grants) < s.perHour {
			s.mu.Unlock()
			break
		}
		wait := s.grants[0].Add(time.Hour).Sub(c.now())
		s.mu.Unlock()
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.TimeoutWrap(ctx.Err(), "cancelled waiting for hourly budget").WithSource(source)
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return errors.TimeoutWrap(err, "cancelled waiting for rate token").WithSource(source)
	}

	s.mu.Lock()
	s.grants = append(s.grants, c.now())
	s.mu.Unlock()
	return nil
}

// TryAcquire either grants a request immediately or fails fast with a
// rate_limited error.
func (c *Controller) TryAcquire(source string) error {
	s := c.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.now()
	if now.Before(s.backoffUntil) {
		return errors.RateLimited(source).WithContext("backoff_until", s.backoffUntil)
	}
	s.pruneGrants(now)
	if len(s.grants) >= s.perHour {
		return errors.RateLimited(source).WithContext("hourly_budget", s.perHour)
	}
	if !s.limiter.Allow() {
		return errors.RateLimited(source)
	}
	s.grants = append(s.grants, now)
	return nil
}

// ReportRateLimited opens (or widens) the source's backoff window.
// retryAfter, when positive, seeds the window with the server-provided
// duration; otherwise the exponential schedule applies.
func (c *Controller) ReportRateLimited(source string, retryAfter time.Duration) {
	s := c.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	window := retryAfter
	if window <= 0 {
		window = time.Duration(float64(backoffBase) * pow(backoffFactor, s.backoffExp))
	}
	if window > backoffCap {
		window = backoffCap
	}
	window = c.applyJitter(window)
	s.backoffExp++
	s.backoffUntil = c.now().Add(window)
	c.logger.Warn("source backing off",
		"source", source,
		"window", window,
		"exponent", s.backoffExp,
	)
}

// ReportSuccess resets the backoff exponent after a request succeeds
func (c *Controller) ReportSuccess(source string) {
	s := c.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoffExp = 0
}

// BackoffUntil reports when the source's backoff window closes
func (c *Controller) BackoffUntil(source string) time.Time {
	s := c.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoffUntil
}

// GrantsInWindow reports successful acquisitions inside the rolling hour
func (c *Controller) GrantsInWindow(source string) int {
	s := c.state(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneGrants(c.now())
	return len(s.grants)
}

func (s *sourceState) pruneGrants(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(s.grants) && s.grants[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.grants = append(s.grants[:0], s.grants[i:]...)
	}
}

func (c *Controller) applyJitter(d time.Duration) time.Duration {
	c.rngMu.Lock()
	f := 1 + backoffJitter*(2*c.rng.Float64()-1)
	c.rngMu.Unlock()
	return time.Duration(float64(d) * f)
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
