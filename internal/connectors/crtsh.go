package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/trailhound/trailhound/internal/models"
)

const crtshName = "crtsh"

// CrtSh is the certificate-transparency connector, backed by the crt.sh
// JSON endpoint.
type CrtSh struct {
	http      *HTTPClient
	ratePerHr int
}

// NewCrtSh creates the certificate-transparency connector
func NewCrtSh(http *HTTPClient, ratePerHr int) *CrtSh {
	if ratePerHr <= 0 {
		ratePerHr = 60
	}
	return &CrtSh{http: http, ratePerHr: ratePerHr}
}

func (c *CrtSh) Name() string { return crtshName }
func (c *CrtSh) Type() string { return "certificate-transparency" }

func (c *CrtSh) SupportedKinds() []models.QueryKind {
	return []models.QueryKind{models.QueryKindDomain}
}

func (c *CrtSh) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{models.EntityDomain, models.EntityOrganization}
}

func (c *CrtSh) RateLimitPerHour() int   { return c.ratePerHr }
func (c *CrtSh) BaseConfidence() float64 { return 0.85 }

// ValidateCredentials always succeeds: crt.sh is public
func (c *CrtSh) ValidateCredentials(ctx context.Context) (bool, error) {
	return true, nil
}

type crtshEntry struct {
	IssuerName   string `json:"issuer_name"`
	CommonName   string `json:"common_name"`
	NameValue    string `json:"name_value"`
	NotBefore    string `json:"not_before"`
	NotAfter     string `json:"not_after"`
	SerialNumber string `json:"serial_number"`
}

// Search lists certificates logged for the domain, including subdomains
func (c *CrtSh) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	domain := strings.ToLower(strings.TrimSpace(q.QueryString))
	endpoint := "https://crt.sh/?q=" + url.QueryEscape("%."+domain) + "&output=json"

	var entries []crtshEntry
	if err := c.http.GetJSON(ctx, crtshName, endpoint, nil, &entries); err != nil {
		return nil, err
	}

	// The endpoint returns one row per logged certificate; dedupe on the
	// name set and keep a bounded sample.
	seen := make(map[string]bool)
	var kept []crtshEntry
	for _, e := range entries {
		key := e.CommonName + "|" + e.NameValue
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, e)
		if len(kept) >= 50 {
			break
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(kept)
	if err != nil {
		return nil, nil
	}
	rr := newRawResult(q, crtshName, "https://crt.sh/?q="+url.QueryEscape(domain), domain,
		payload, "application/json", map[string]string{"schema": "crtsh", "certificates": ""})
	return []models.RawResult{rr}, nil
}
