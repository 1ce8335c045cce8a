package connectors

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailhound/trailhound/internal/cache"
	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

// defaultHeaders is the shared request header set. Adapters may override
// individual headers per request.
var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (compatible; trailhound/1.0)",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Encoding": "gzip, deflate",
	"Connection":      "keep-alive",
}

// HTTPClient is the shared transport for HTTP-backed adapters. It
// classifies failures into the error taxonomy so callers never see a raw
// transport error.
type HTTPClient struct {
	client          *http.Client
	maxBodyBytes    int64
}

// NewHTTPClient creates the shared adapter transport
func NewHTTPClient(maxBodyBytes int64) *HTTPClient {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 * 1024 * 1024
	}
	return &HTTPClient{
		client: &http.Client{
			// Per-request deadlines come from the context; this is the
			// backstop for adapters called without one.
			Timeout: 60 * time.Second,
		},
		maxBodyBytes: maxBodyBytes,
	}
}

// Get fetches a URL and returns the body with its media type. Errors are
// classified: deadline -> timeout, connectivity -> upstream_unavailable,
// 401/403 -> credentials_invalid, 429 -> rate_limited (with any
// Retry-After attached), 5xx -> upstream_unavailable.
func (h *HTTPClient) Get(ctx context.Context, source, url string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.InternalWrap(err, "building request").WithSource(source)
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(err, source)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := errors.RateLimited(source)
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			e = e.WithContext("retry_after", ra)
		}
		return nil, "", e
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", errors.CredentialsInvalid(source)
	case resp.StatusCode >= 500:
		return nil, "", errors.UpstreamUnavailable(nil, "upstream returned "+resp.Status).WithSource(source)
	case resp.StatusCode >= 400:
		return nil, "", errors.MalformedResponse(nil, "unexpected status "+resp.Status).WithSource(source)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodyBytes))
	if err != nil {
		return nil, "", classifyTransportError(err, source)
	}

	mediaType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return body, mediaType, nil
}

// GetJSON fetches a URL and unmarshals the JSON body into target
func (h *HTTPClient) GetJSON(ctx context.Context, source, url string, headers map[string]string, target interface{}) error {
	merged := map[string]string{"Accept": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}
	body, _, err := h.Get(ctx, source, url, merged)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.MalformedResponse(err, "decoding response body").WithSource(source)
	}
	return nil
}

func classifyTransportError(err error, source string) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.TimeoutWrap(err, "request deadline expired").WithSource(source)
	}
	if strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
		return errors.TimeoutWrap(err, "request deadline expired").WithSource(source)
	}
	if strings.Contains(err.Error(), context.Canceled.Error()) {
		return errors.TimeoutWrap(err, "request cancelled").WithSource(source)
	}
	return errors.UpstreamUnavailable(err, "request failed").WithSource(source)
}

// RetryAfter extracts a server-provided backoff hint from a rate_limited
// error, zero when absent.
func RetryAfter(err error) time.Duration {
	e, ok := err.(*errors.Error)
	if !ok || e.Context == nil {
		return 0
	}
	if d, ok := e.Context["retry_after"].(time.Duration); ok {
		return d
	}
	return 0
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// newRawResult assembles a RawResult with its content hash filled in
func newRawResult(q models.Query, source, url, title string, content []byte, mediaType string, metadata map[string]string) models.RawResult {
	return models.RawResult{
		ID:          uuid.NewString(),
		QueryID:     q.ID,
		SourceName:  source,
		URL:         url,
		Title:       title,
		Content:     content,
		MediaType:   mediaType,
		Metadata:    metadata,
		RetrievedAt: time.Now().UTC(),
		ContentHash: cache.ContentHash(content),
	}
}
