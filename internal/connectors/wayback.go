package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/trailhound/trailhound/internal/models"
)

const waybackName = "wayback"

// Wayback is the archive connector, backed by the Internet Archive CDX
// API. It lists archived captures for a domain or URL.
type Wayback struct {
	http      *HTTPClient
	ratePerHr int
}

// NewWayback creates the archive connector
func NewWayback(http *HTTPClient, ratePerHr int) *Wayback {
	if ratePerHr <= 0 {
		ratePerHr = 120
	}
	return &Wayback{http: http, ratePerHr: ratePerHr}
}

func (w *Wayback) Name() string { return waybackName }
func (w *Wayback) Type() string { return "archive" }

func (w *Wayback) SupportedKinds() []models.QueryKind {
	return []models.QueryKind{models.QueryKindDomain, models.QueryKindUsername}
}

func (w *Wayback) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{models.EntityDomain, models.EntityDocument}
}

func (w *Wayback) RateLimitPerHour() int   { return w.ratePerHr }
func (w *Wayback) BaseConfidence() float64 { return 0.7 }

// ValidateCredentials always succeeds: the CDX API is public
func (w *Wayback) ValidateCredentials(ctx context.Context) (bool, error) {
	return true, nil
}

// Search lists up to 25 archived captures for the target
func (w *Wayback) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	target := strings.TrimSpace(q.QueryString)
	endpoint := "https://web.archive.org/cdx/search/cdx?url=" + url.QueryEscape(target) +
		"&output=json&limit=25&collapse=digest&fl=timestamp,original,mimetype,statuscode"

	var rows [][]string
	if err := w.http.GetJSON(ctx, waybackName, endpoint, nil, &rows); err != nil {
		return nil, err
	}
	// First row is the field header
	if len(rows) <= 1 {
		return nil, nil
	}
	rows = rows[1:]

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, nil
	}
	rr := newRawResult(q, waybackName, "https://web.archive.org/web/*/"+target, target,
		payload, "application/json", map[string]string{"schema": "wayback_cdx"})
	return []models.RawResult{rr}, nil
}
