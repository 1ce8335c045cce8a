package connectors

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

const whoisName = "whois"

// Whois is the domain-registry connector: a plain port-43 WHOIS client
// that follows one registry referral.
type Whois struct {
	dialer    *net.Dialer
	ratePerHr int
}

// NewWhois creates the domain-registry connector
func NewWhois(ratePerHr int) *Whois {
	if ratePerHr <= 0 {
		ratePerHr = 60
	}
	return &Whois{
		dialer:    &net.Dialer{Timeout: 10 * time.Second},
		ratePerHr: ratePerHr,
	}
}

func (w *Whois) Name() string { return whoisName }
func (w *Whois) Type() string { return "domain-registry" }

func (w *Whois) SupportedKinds() []models.QueryKind {
	return []models.QueryKind{models.QueryKindDomain}
}

func (w *Whois) SupportedEntityTypes() []models.EntityType {
	return []models.EntityType{
		models.EntityDomain,
		models.EntityPerson,
		models.EntityOrganization,
		models.EntityEmail,
	}
}

func (w *Whois) RateLimitPerHour() int   { return w.ratePerHr }
func (w *Whois) BaseConfidence() float64 { return 0.9 }

// ValidateCredentials always succeeds: WHOIS needs no credentials
func (w *Whois) ValidateCredentials(ctx context.Context) (bool, error) {
	return true, nil
}

// Search queries IANA for the domain and follows the "refer:" line to the
// authoritative registry.
func (w *Whois) Search(ctx context.Context, q models.Query) ([]models.RawResult, error) {
	domain := strings.ToLower(strings.TrimSpace(q.QueryString))

	record, err := w.query(ctx, "whois.iana.org:43", domain)
	if err != nil {
		return nil, err
	}

	server := referralServer(record)
	if server != "" {
		referred, err := w.query(ctx, server+":43", domain)
		if err == nil && len(referred) > 0 {
			record = referred
		}
		// Referral failures fall back to the IANA record
	}

	if len(strings.TrimSpace(record)) == 0 {
		return nil, errors.MalformedResponse(nil, "empty whois record").WithSource(whoisName)
	}

	rr := newRawResult(q, whoisName, "whois://"+domain, domain,
		[]byte(record), "text/plain", map[string]string{"schema": "whois"})
	return []models.RawResult{rr}, nil
}

func (w *Whois) query(ctx context.Context, addr, domain string) (string, error) {
	conn, err := w.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.TimeoutWrap(ctx.Err(), "whois dial aborted").WithSource(whoisName)
		}
		return "", errors.UpstreamUnavailable(err, "whois server unreachable").WithSource(whoisName)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(15 * time.Second))
	}

	if _, err := conn.Write([]byte(domain + "\r\n")); err != nil {
		return "", errors.UpstreamUnavailable(err, "whois write failed").WithSource(whoisName)
	}

	data, err := io.ReadAll(io.LimitReader(conn, 256*1024))
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", errors.TimeoutWrap(err, "whois read deadline expired").WithSource(whoisName)
		}
		return "", errors.UpstreamUnavailable(err, "whois read failed").WithSource(whoisName)
	}
	return string(data), nil
}

// referralServer extracts the authoritative server from an IANA record
func referralServer(record string) string {
	for _, line := range strings.Split(record, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "refer:") || strings.HasPrefix(lower, "whois:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				return parts[len(parts)-1]
			}
		}
	}
	return ""
}
