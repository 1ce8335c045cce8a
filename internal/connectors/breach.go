package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

const breachName = "hibp"

// Breach is the breach-database connector, backed by the Have I Been
// Pwned v3 API. It requires an API key; without one the connector reports
// its credentials as invalid and the planner routes around it.
type Breach struct {
	http      *HTTPClient
	apiKey    string
	ratePerHr int
}

// NewBreach creates the breach-database connector
func NewBreach(http *HTTPClient, apiKey string, ratePerHr int) *Breach {
	if ratePerHr <= 0 {
		// The entry-level HIBP plan allows 10 requests per minute
		ratePerHr = 600
	}
	return &Breach{http: http, apiKey: apiKey, ratePerHr: ratePerHr}
}

func (b *Breach) Name() string { return breachName }
func (b *Breach) Type() string { return "breach-database" }

func (b *Breach) SupportedKinds() []models.QueryKind {
	return []models.QueryKind{models.QueryKindEmail}
}

func (b *Breach) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{models.EntityEmail, models.EntityDocument}
}

func (b *Breach) RateLimitPerHour() int   { return b.ratePerHr }
func (b *Breach) BaseConfidence() float64 { return 0.95 }

// ValidateCredentials reports whether an API key is configured
func (b *Breach) ValidateCredentials(ctx context.Context) (bool, error) {
	if b.apiKey == "" {
		return false, errors.CredentialsInvalid(breachName)
	}
	return true, nil
}

type breachEntry struct {
	Name        string   `json:"Name"`
	Title       string   `json:"Title"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	PwnCount    int64    `json:"PwnCount"`
	DataClasses []string `json:"DataClasses"`
	IsVerified  bool     `json:"IsVerified"`
}

// Search lists the breaches an email address appears in
func (b *Breach) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	if b.apiKey == "" {
		return nil, errors.CredentialsInvalid(breachName)
	}
	email := strings.ToLower(strings.TrimSpace(q.QueryString))
	endpoint := "https://haveibeenpwned.com/api/v3/breachedaccount/" + url.PathEscape(email) +
		"?truncateResponse=false"

	headers := map[string]string{"hibp-api-key": b.apiKey}
	var entries []breachEntry
	if err := b.http.GetJSON(ctx, breachName, endpoint, headers, &entries); err != nil {
		// 404 means "not in any breach", which the shared client reports
		// as malformed_response for a 4xx; treat it as an empty result.
		if errors.IsKind(err, errors.KindMalformedResponse) {
			return nil, nil
		}
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, nil
	}
	rr := newRawResult(q, breachName, "https://haveibeenpwned.com/account/"+url.PathEscape(email), email,
		payload, "application/json", map[string]string{"schema": "hibp_breaches", "account": email})
	return []models.RawResult{rr}, nil
}
