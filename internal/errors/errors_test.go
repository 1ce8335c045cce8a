package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindValidation, "validation"},
		{KindNotFound, "not_found"},
		{KindNotReady, "not_ready"},
		{KindUnauthorized, "unauthorized"},
		{KindRateLimited, "rate_limited"},
		{KindTimeout, "timeout"},
		{KindUpstreamUnavailable, "upstream_unavailable"},
		{KindCredentialsInvalid, "credentials_invalid"},
		{KindMalformedResponse, "malformed_response"},
		{KindSecurityRejected, "security_rejected"},
		{KindInternal, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := KindString(tt.kind); got != tt.expected {
				t.Errorf("KindString(%d) = %q, want %q", tt.kind, got, tt.expected)
			}
		})
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	err := Timeout("query deadline expired")
	if !stderrors.Is(err, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is should match on kind")
	}
	if stderrors.Is(err, &Error{Kind: KindRateLimited}) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := UpstreamUnavailable(cause, "source unreachable")
	if stderrors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"timeout is transient", Timeout("deadline"), true},
		{"upstream unavailable is transient", UpstreamUnavailable(fmt.Errorf("503"), "down"), true},
		{"rate limited defers to backoff, not retry", RateLimited("crtsh"), false},
		{"credentials are not transient", CredentialsInvalid("hibp"), false},
		{"malformed response is not transient", MalformedResponse(fmt.Errorf("bad json"), "parse"), false},
		{"security rejection is never retried", SecurityRejected("blocked pattern"), false},
		{"foreign errors are not transient", fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Internal("corrupt working set")) {
		t.Error("internal errors are fatal")
	}
	if IsFatal(RateLimited("github")) {
		t.Error("rate_limited is not fatal")
	}
	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindTimeout, SeverityMedium, "ignored") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWithSourceAndQuery(t *testing.T) {
	err := RateLimited("wayback").WithQuery("q-123").WithContext("attempt", 2)
	if err.Source != "wayback" {
		t.Errorf("Source = %q, want wayback", err.Source)
	}
	if err.QueryID != "q-123" {
		t.Errorf("QueryID = %q, want q-123", err.QueryID)
	}
	detail := err.DetailedString()
	if len(detail) == 0 {
		t.Error("DetailedString() returned empty string")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(fmt.Errorf("boom")) != KindInternal {
		t.Error("foreign errors classify as internal")
	}
}
