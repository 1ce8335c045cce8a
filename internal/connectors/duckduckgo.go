package connectors

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

const duckduckgoName = "duckduckgo"

// DuckDuckGo is the search-engine connector. It scrapes the HTML results
// page, which needs no API key.
type DuckDuckGo struct {
	http      *HTTPClient
	ratePerHr int
}

// NewDuckDuckGo creates the search-engine connector
func NewDuckDuckGo(http *HTTPClient, ratePerHr int) *DuckDuckGo {
	if ratePerHr <= 0 {
		ratePerHr = 100
	}
	return &DuckDuckGo{http: http, ratePerHr: ratePerHr}
}

func (d *DuckDuckGo) Name() string { return duckduckgoName }
func (d *DuckDuckGo) Type() string { return "search-engine" }

func (d *DuckDuckGo) SupportedKinds() []models.QueryKind {
	return []models.QueryKind{
		models.QueryKindName,
		models.QueryKindUsername,
		models.QueryKindEmail,
		models.QueryKindCompany,
		models.QueryKindComposite,
	}
}

func (d *DuckDuckGo) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{
		models.EntityPerson,
		models.EntityOrganization,
		models.EntitySocialProfile,
		models.EntityUsername,
		models.EntityDomain,
	}
}

func (d *DuckDuckGo) RateLimitPerHour() int  { return d.ratePerHr }
func (d *DuckDuckGo) BaseConfidence() float64 { return 0.5 }

// ValidateCredentials always succeeds: the HTML endpoint is public
func (d *DuckDuckGo) ValidateCredentials(ctx context.Context) (bool, error) {
	return true, nil
}

// Search scrapes one results page for the query string
func (d *DuckDuckGo) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(q.QueryString)
	body, _, err := d.http.Get(ctx, duckduckgoName, endpoint, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.MalformedResponse(err, "parsing results page").WithSource(duckduckgoName)
	}

	var results []models.RawResult
	doc.Find(".result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= 10 {
			return false
		}
		anchor := sel.Find(".result__a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return true
		}
		title := strings.TrimSpace(anchor.Text())
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" && snippet == "" {
			return true
		}
		results = append(results, newRawResult(q, duckduckgoName, resolveRedirect(href), title,
			[]byte(snippet), "text/plain", map[string]string{"rank": strconv.Itoa(i)}))
		return true
	})
	return results, nil
}

// resolveRedirect unwraps the uddg redirect parameter on result links
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}
