package errors

import (
	"fmt"
	"strings"
)

// Kind represents the category of error
type Kind int

const (
	// KindValidation - input failed schema validation, surfaced to the caller
	KindValidation Kind = iota
	// KindNotFound - the requested record does not exist
	KindNotFound
	// KindNotReady - the requested value is not available yet
	KindNotReady
	// KindUnauthorized - access control forbids the request
	KindUnauthorized
	// KindRateLimited - a source refused the request for quota reasons
	KindRateLimited
	// KindTimeout - a deadline expired before the operation finished
	KindTimeout
	// KindUpstreamUnavailable - a source could not be reached or returned 5xx
	KindUpstreamUnavailable
	// KindCredentialsInvalid - a source rejected the configured credentials
	KindCredentialsInvalid
	// KindMalformedResponse - a source returned an unparseable envelope
	KindMalformedResponse
	// KindSecurityRejected - a query or content tripped a blocked pattern
	KindSecurityRejected
	// KindInternal - programming error, unexpected internal state
	KindInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact the investigation
	SeverityHigh
	// SeverityCritical - must be addressed, fails the investigation
	SeverityCritical
)

// Error is a structured error carrying classification and context.
// Every catch boundary in the pipeline classifies through this type
// before deciding to log, retry, degrade, or surface.
type Error struct {
	Kind     Kind
	Severity Severity
	Message  string
	Cause    error
	Source   string // connector name, when the error is per-source
	QueryID  string // query the error belongs to, when applicable
	Context  map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so errors.Is(err, &Error{Kind: KindTimeout}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSource records the connector the error came from
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithQuery records the query the error belongs to
func (e *Error) WithQuery(queryID string) *Error {
	e.QueryID = queryID
	return e
}

// IsFatal returns true if this error should fail the investigation
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns the error with its context, for logs
func (e *Error) DetailedString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", KindString(e.Kind), e.Message))
	if e.Source != "" {
		sb.WriteString(fmt.Sprintf(" source=%s", e.Source))
	}
	if e.QueryID != "" {
		sb.WriteString(fmt.Sprintf(" query=%s", e.QueryID))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" cause=%v", e.Cause))
	}
	for k, v := range e.Context {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	return sb.String()
}

// KindString returns the wire name of a kind, matching the errors[]
// entries recorded on the investigation record.
func KindString(k Kind) string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindNotReady:
		return "not_ready"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindCredentialsInvalid:
		return "credentials_invalid"
	case KindMalformedResponse:
		return "malformed_response"
	case KindSecurityRejected:
		return "security_rejected"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// New creates a new error with the given kind, severity, and message
func New(kind Kind, severity Severity, message string) *Error {
	return &Error{Kind: kind, Severity: severity, Message: message}
}

// Wrap wraps an existing error with classification
func Wrap(err error, kind Kind, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Severity: severity, Message: message, Cause: err}
}

// KindOf returns the kind of an error, KindInternal for foreign errors
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// IsTransient reports whether a retry may succeed. Rate limiting is
// deliberately excluded: it defers to the backoff controller, not the
// scheduler's retry loop.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}

// IsFatal checks if an error should fail the investigation
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.IsFatal()
	}
	return false
}

// Convenience constructors for the taxonomy

// Validation creates a validation error
func Validation(message string) *Error {
	return New(KindValidation, SeverityHigh, message)
}

// Validationf creates a validation error with formatting
func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// NotFound creates a not_found error
func NotFound(message string) *Error {
	return New(KindNotFound, SeverityLow, message)
}

// NotFoundf creates a not_found error with formatting
func NotFoundf(format string, args ...interface{}) *Error {
	return New(KindNotFound, SeverityLow, fmt.Sprintf(format, args...))
}

// NotReady creates a not_ready error
func NotReady(message string) *Error {
	return New(KindNotReady, SeverityLow, message)
}

// NotReadyf creates a not_ready error with formatting
func NotReadyf(format string, args ...interface{}) *Error {
	return New(KindNotReady, SeverityLow, fmt.Sprintf(format, args...))
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, SeverityMedium, message)
}

// RateLimited creates a rate_limited error for a source
func RateLimited(source string) *Error {
	e := New(KindRateLimited, SeverityLow, "rate limit exceeded")
	e.Source = source
	return e
}

// Timeout creates a timeout error
func Timeout(message string) *Error {
	return New(KindTimeout, SeverityMedium, message)
}

// TimeoutWrap wraps an error as a timeout
func TimeoutWrap(err error, message string) *Error {
	return Wrap(err, KindTimeout, SeverityMedium, message)
}

// UpstreamUnavailable wraps an upstream connectivity failure
func UpstreamUnavailable(err error, message string) *Error {
	return Wrap(err, KindUpstreamUnavailable, SeverityMedium, message)
}

// CredentialsInvalid creates a credentials_invalid error for a source
func CredentialsInvalid(source string) *Error {
	e := New(KindCredentialsInvalid, SeverityMedium, "credentials rejected")
	e.Source = source
	return e
}

// MalformedResponse wraps an unparseable upstream envelope
func MalformedResponse(err error, message string) *Error {
	return Wrap(err, KindMalformedResponse, SeverityLow, message)
}

// SecurityRejected creates a security_rejected error. Never retried.
func SecurityRejected(message string) *Error {
	return New(KindSecurityRejected, SeverityHigh, message)
}

// SecurityRejectedf creates a security_rejected error with formatting
func SecurityRejectedf(format string, args ...interface{}) *Error {
	return New(KindSecurityRejected, SeverityHigh, fmt.Sprintf(format, args...))
}

// Internal creates an internal error
func Internal(message string) *Error {
	return New(KindInternal, SeverityCritical, message)
}

// Internalf creates an internal error with formatting
func Internalf(format string, args ...interface{}) *Error {
	return New(KindInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// InternalWrap wraps a programming error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, KindInternal, SeverityCritical, message)
}
