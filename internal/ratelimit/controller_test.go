package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/trailhound/trailhound/internal/errors"
)

func TestTryAcquireWithinBudget(t *testing.T) {
	c := NewController()
	c.Register("crtsh", 120) // burst of 2 per minute

	if err := c.TryAcquire("crtsh"); err != nil {
		t.Fatalf("first acquisition should succeed: %v", err)
	}
	if got := c.GrantsInWindow("crtsh"); got != 1 {
		t.Errorf("GrantsInWindow = %d, want 1", got)
	}
}

func TestTryAcquireFailsFastDuringBackoff(t *testing.T) {
	c := NewController()
	c.Register("hibp", 600)

	c.ReportRateLimited("hibp", 30*time.Second)

	err := c.TryAcquire("hibp")
	if err == nil {
		t.Fatal("expected rate_limited during backoff window")
	}
	if errors.KindOf(err) != errors.KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", errors.KindString(errors.KindOf(err)))
	}
}

func TestHourlyBudgetNeverExceeded(t *testing.T) {
	c := NewController()
	// Budget of 3; generous bucket so only the rolling-hour cap binds.
	c.Register("whois", 3)
	s := c.state("whois")
	s.limiter.SetBurst(100)
	s.limiter.SetLimit(1000)

	granted := 0
	for i := 0; i < 10; i++ {
		if err := c.TryAcquire("whois"); err == nil {
			granted++
		}
	}
	if granted != 3 {
		t.Errorf("granted %d acquisitions, want exactly the hourly budget of 3", granted)
	}
}

func TestRetryAfterSeedsWindow(t *testing.T) {
	c := NewController()
	c.Register("github", 5000)

	before := time.Now()
	c.ReportRateLimited("github", 10*time.Second)
	until := c.BackoffUntil("github")

	// ±20% jitter around 10s
	min := before.Add(7 * time.Second)
	max := before.Add(13 * time.Second)
	if until.Before(min) || until.After(max) {
		t.Errorf("backoff until %v outside jittered 10s window [%v, %v]", until, min, max)
	}
}

func TestSuccessResetsExponent(t *testing.T) {
	c := NewController()
	c.Register("wayback", 600)

	c.ReportRateLimited("wayback", 0)
	c.ReportRateLimited("wayback", 0)
	s := c.state("wayback")
	s.mu.Lock()
	exp := s.backoffExp
	s.mu.Unlock()
	if exp != 2 {
		t.Fatalf("backoffExp = %d, want 2", exp)
	}

	c.ReportSuccess("wayback")
	s.mu.Lock()
	exp = s.backoffExp
	s.mu.Unlock()
	if exp != 0 {
		t.Errorf("backoffExp after success = %d, want 0", exp)
	}
}

func TestBackoffWindowCapped(t *testing.T) {
	c := NewController()
	c.Register("duckduckgo", 60)

	// Drive the exponent far past the cap.
	for i := 0; i < 20; i++ {
		c.ReportRateLimited("duckduckgo", 0)
	}
	until := c.BackoffUntil("duckduckgo")
	maxWindow := time.Duration(float64(backoffCap) * (1 + backoffJitter))
	if time.Until(until) > maxWindow+time.Second {
		t.Errorf("backoff window exceeds cap: %v", time.Until(until))
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	c := NewController()
	c.Register("slow", 60)
	c.ReportRateLimited("slow", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Acquire(ctx, "slow")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Acquire took %v to observe cancellation", elapsed)
	}
	if errors.KindOf(err) != errors.KindTimeout {
		t.Errorf("kind = %s, want timeout", errors.KindString(errors.KindOf(err)))
	}
}

func TestUnknownSourceGetsDefaultBudget(t *testing.T) {
	c := NewController()
	if err := c.TryAcquire("never-registered"); err != nil {
		t.Fatalf("unregistered source should still be usable: %v", err)
	}
}
