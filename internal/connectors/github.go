package connectors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/go-github/v57/github"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

const githubName = "github"

// GitHub is the code-repository connector. It searches user profiles by
// username or full name through the GitHub search API. An API token is
// optional but raises the effective quota.
type GitHub struct {
	client    *github.Client
	hasToken  bool
	ratePerHr int
}

// NewGitHub creates the code-repository connector
func NewGitHub(token string, ratePerHr int) *GitHub {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if ratePerHr <= 0 {
		// Unauthenticated search quota: 10/min
		ratePerHr = 600
	}
	return &GitHub{client: client, hasToken: token != "", ratePerHr: ratePerHr}
}

func (g *GitHub) Name() string { return githubName }
func (g *GitHub) Type() string { return "code-repository" }

func (g *GitHub) SupportedKinds() []models.QueryKind {
	return []models.QueryKind{
		models.QueryKindUsername,
		models.QueryKindName,
		models.QueryKindEmail,
	}
}

func (g *GitHub) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{
		models.EntityPerson,
		models.EntityUsername,
		models.EntitySocialProfile,
		models.EntityEmail,
		models.EntityLocation,
	}
}

func (g *GitHub) RateLimitPerHour() int   { return g.ratePerHr }
func (g *GitHub) BaseConfidence() float64 { return 0.85 }

// ValidateCredentials verifies the token when one is configured
func (g *GitHub) ValidateCredentials(ctx context.Context) (bool, error) {
	if !g.hasToken {
		return true, nil
	}
	_, resp, err := g.client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, errors.CredentialsInvalid(githubName)
		}
		return false, classifyGitHubError(err, nil)
	}
	return true, nil
}

// Search runs a user search and hydrates the top profiles
func (g *GitHub) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	searchQuery := q.QueryString
	if q.Kind == models.QueryKindName {
		searchQuery = searchQuery + " in:fullname"
	}

	result, resp, err := g.client.Search.Users(ctx, searchQuery, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 5},
	})
	if err != nil {
		return nil, classifyGitHubError(err, resp)
	}

	var results []models.RawResult
	for _, user := range result.Users {
		if user.GetLogin() == "" {
			continue
		}
		// Hydrate the profile: the search result omits name, company,
		// location, and public email.
		full, _, err := g.client.Users.Get(ctx, user.GetLogin())
		if err != nil {
			full = user
		}
		payload, err := json.Marshal(full)
		if err != nil {
			continue
		}
		results = append(results, newRawResult(q, githubName, full.GetHTMLURL(), full.GetLogin(),
			payload, "application/json", map[string]string{"schema": "github_user"}))
	}
	return results, nil
}

func classifyGitHubError(err error, resp *github.Response) error {
	if _, ok := err.(*github.RateLimitError); ok {
		return errors.RateLimited(githubName)
	}
	if _, ok := err.(*github.AbuseRateLimitError); ok {
		return errors.RateLimited(githubName)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return errors.CredentialsInvalid(githubName)
		case resp.StatusCode >= 500:
			return errors.UpstreamUnavailable(err, "github unavailable").WithSource(githubName)
		}
	}
	if err == context.DeadlineExceeded || err == context.Canceled {
		return errors.TimeoutWrap(err, "github search aborted").WithSource(githubName)
	}
	return errors.UpstreamUnavailable(err, "github request failed").WithSource(githubName)
}
