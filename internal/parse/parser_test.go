package parse

import (
	"strings"
	"testing"
	"time"

	"github.com/trailhound/trailhound/internal/models"
)

func rawResult(content, mediaType string, metadata map[string]string) *models.RawResult {
	return &models.RawResult{
		ID:          "raw-1",
		QueryID:     "q-1",
		SourceName:  "test",
		URL:         "https://example.com/page",
		Content:     []byte(content),
		MediaType:   mediaType,
		Metadata:    metadata,
		RetrievedAt: time.Now().UTC(),
	}
}

func candidatesOfType(cands []models.Candidate, typ models.EntityType) []models.Candidate {
	var out []models.Candidate
	for _, c := range cands {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestParsePlainTextExtraction(t *testing.T) {
	p := New(0, false)
	text := "Contact Alice at alice.roe@example.com or +1 (555) 123-4567. " +
		"She posts as @aroe and runs aroe-photography.net."
	cands := p.Parse(rawResult(text, "text/plain", nil), 0.5)

	emails := candidatesOfType(cands, models.EntityEmail)
	if len(emails) != 1 || emails[0].Attributes[models.AttrEmail] != "alice.roe@example.com" {
		t.Errorf("email extraction = %+v", emails)
	}
	if len(candidatesOfType(cands, models.EntityPhone)) != 1 {
		t.Error("missing phone candidate")
	}
	usernames := candidatesOfType(cands, models.EntityUsername)
	if len(usernames) != 1 || usernames[0].Attributes[models.AttrUsername] != "aroe" {
		t.Errorf("username extraction = %+v", usernames)
	}
	found := false
	for _, d := range candidatesOfType(cands, models.EntityDomain) {
		if d.Attributes[models.AttrDomain] == "aroe-photography.net" {
			found = true
		}
	}
	if !found {
		t.Error("missing domain candidate")
	}
}

func TestParseCarriesSourceMetadata(t *testing.T) {
	p := New(0, false)
	cands := p.Parse(rawResult("reach me: alice@example.com", "text/plain", nil), 0.85)
	if len(cands) == 0 {
		t.Fatal("no candidates")
	}
	c := cands[0]
	if c.SourceConfidence != 0.85 {
		t.Errorf("source confidence = %v, want 0.85", c.SourceConfidence)
	}
	if len(c.SourceRefs) != 1 || c.SourceRefs[0] != "raw-1" {
		t.Errorf("source refs = %v", c.SourceRefs)
	}
	if c.ID == "" {
		t.Error("candidate ID not assigned")
	}
}

func TestParseHTMLProfileLinks(t *testing.T) {
	p := New(0, false)
	html := `<html><head><script>var x = "ignored@script.example";</script></head>
	<body><p>Find me on <a href="https://github.com/aroe">GitHub</a>.</p>
	<p>Mail: <b>alice@example.com</b></p></body></html>`
	cands := p.Parse(rawResult(html, "text/html", nil), 0.5)

	profiles := candidatesOfType(cands, models.EntitySocialProfile)
	if len(profiles) != 1 {
		t.Fatalf("got %d social profiles, want 1", len(profiles))
	}
	if profiles[0].Attributes[models.AttrUsername] != "aroe" ||
		profiles[0].Attributes[models.AttrPlatform] != "github" {
		t.Errorf("profile attrs = %v", profiles[0].Attributes)
	}
	for _, e := range candidatesOfType(cands, models.EntityEmail) {
		if e.Attributes[models.AttrEmail] == "ignored@script.example" {
			t.Error("script content leaked into extraction")
		}
	}
}

func TestParseGitHubUserSchema(t *testing.T) {
	p := New(0, false)
	payload := `{"login":"aroe","name":"Alice Roe","email":"alice@example.com",
	"company":"@ExampleCorp","location":"Lisbon","blog":"https://aroe.example",
	"bio":"photographer","html_url":"https://github.com/aroe"}`
	cands := p.Parse(rawResult(payload, "application/json", map[string]string{"schema": "github_user"}), 0.85)

	profiles := candidatesOfType(cands, models.EntitySocialProfile)
	if len(profiles) != 1 || profiles[0].ExtractionConfidence != structuralConfidence {
		t.Fatalf("profile candidates = %+v", profiles)
	}
	persons := candidatesOfType(cands, models.EntityPerson)
	if len(persons) != 1 || persons[0].Attributes[models.AttrName] != "Alice Roe" {
		t.Fatalf("person candidates = %+v", persons)
	}
	if persons[0].Attributes[models.AttrEmployer] != "ExampleCorp" {
		t.Errorf("employer = %q, want ExampleCorp", persons[0].Attributes[models.AttrEmployer])
	}
	orgs := candidatesOfType(cands, models.EntityOrganization)
	if len(orgs) != 1 || orgs[0].Attributes[models.AttrName] != "ExampleCorp" {
		t.Errorf("org candidates = %+v", orgs)
	}
}

func TestParseCrtShSchema(t *testing.T) {
	p := New(0, false)
	payload := `[{"common_name":"aroe.example","name_value":"aroe.example\n*.aroe.example\nmail.aroe.example"}]`
	cands := p.Parse(rawResult(payload, "application/json", map[string]string{"schema": "crtsh"}), 0.85)

	domains := candidatesOfType(cands, models.EntityDomain)
	got := make(map[string]bool)
	for _, d := range domains {
		got[d.Attributes[models.AttrDomain]] = true
	}
	if !got["aroe.example"] || !got["mail.aroe.example"] {
		t.Errorf("domain set = %v", got)
	}
	if len(domains) != 2 {
		t.Errorf("got %d domains, want 2 after wildcard folding and dedup", len(domains))
	}
}

func TestParseBreachSchema(t *testing.T) {
	p := New(0, false)
	payload := `[{"Name":"ExampleBreach","Title":"Example Breach","Domain":"breached.example",
	"BreachDate":"2021-03-04","DataClasses":["Email addresses","Passwords"],"IsVerified":true}]`
	meta := map[string]string{"schema": "hibp_breaches", "account": "alice@example.com"}
	cands := p.Parse(rawResult(payload, "application/json", meta), 0.95)

	docs := candidatesOfType(cands, models.EntityDocument)
	if len(docs) != 1 {
		t.Fatalf("got %d breach documents, want 1", len(docs))
	}
	attrs := docs[0].Attributes
	if attrs[models.AttrBreach] != "ExampleBreach" || attrs[models.AttrEmail] != "alice@example.com" {
		t.Errorf("breach attrs = %v", attrs)
	}
	if !strings.Contains(attrs["data_classes"], "Passwords") {
		t.Errorf("data classes = %q", attrs["data_classes"])
	}
}

func TestParseWhoisRecord(t *testing.T) {
	p := New(0, false)
	record := "Domain Name: AROE.EXAMPLE\nRegistrar: Example Registrar LLC\n" +
		"Creation Date: 2019-05-01T00:00:00Z\nRegistrant Organization: Roe Photography\n" +
		"Registrant Email: alice@aroe.example\nRegistrar Abuse Contact Email: abuse@registrar.example\n"
	rr := rawResult(record, "text/plain", map[string]string{"schema": "whois"})
	rr.Title = "aroe.example"
	cands := p.Parse(rr, 0.9)

	domains := candidatesOfType(cands, models.EntityDomain)
	if len(domains) != 1 {
		t.Fatalf("got %d domain candidates, want 1", len(domains))
	}
	if domains[0].Attributes[models.AttrRegistrar] != "Example Registrar LLC" {
		t.Errorf("registrar = %q", domains[0].Attributes[models.AttrRegistrar])
	}
	var emails []string
	for _, e := range candidatesOfType(cands, models.EntityEmail) {
		emails = append(emails, e.Attributes[models.AttrEmail])
	}
	if len(emails) != 1 || emails[0] != "alice@aroe.example" {
		t.Errorf("emails = %v, abuse contact should be skipped", emails)
	}
	orgs := candidatesOfType(cands, models.EntityOrganization)
	if len(orgs) != 1 || orgs[0].Attributes[models.AttrName] != "Roe Photography" {
		t.Errorf("orgs = %+v", orgs)
	}
}

func TestParseRedactsUnsafeContent(t *testing.T) {
	p := New(0, false)
	tests := []struct {
		name    string
		content string
	}{
		{"sql injection", `found: ' OR '1'='1 in page`},
		{"xss", `<script>document.cookie</script>`},
		{"path traversal", `GET ../../../../etc/shadow`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := rawResult(tt.content+" plus alice@example.com", "text/plain", nil)
			cands := p.Parse(rr, 0.5)
			if len(cands) != 0 {
				t.Errorf("flagged content produced %d candidates", len(cands))
			}
			if !rr.SecurityFlagged {
				t.Error("result not flagged")
			}
			if strings.Contains(string(rr.Content), "alice@example.com") {
				t.Error("content not redacted")
			}
		})
	}
}

func TestParseHTMLScriptTagNotFlagged(t *testing.T) {
	p := New(0, false)
	page := `<html><head><script src="/assets/app.js"></script></head>` +
		`<body onload="init()"><p>Reach me at alice@example.com</p></body></html>`
	rr := rawResult(page, "text/html", nil)
	cands := p.Parse(rr, 0.5)

	if rr.SecurityFlagged {
		t.Fatal("an ordinary page with script tags must not be flagged")
	}
	emails := candidatesOfType(cands, models.EntityEmail)
	if len(emails) != 1 || emails[0].Attributes[models.AttrEmail] != "alice@example.com" {
		t.Errorf("emails = %+v", emails)
	}
}

func TestParseHTMLHostileTextStillFlagged(t *testing.T) {
	p := New(0, false)
	page := `<html><body>paste this: javascript:alert(document.cookie)</body></html>`
	rr := rawResult(page, "text/html", nil)
	if cands := p.Parse(rr, 0.5); len(cands) != 0 {
		t.Errorf("flagged page produced %d candidates", len(cands))
	}
	if !rr.SecurityFlagged {
		t.Error("hostile character data must flag the page")
	}
}

func TestParseSkipsAlreadyFlaggedResult(t *testing.T) {
	p := New(0, false)
	rr := rawResult("contact alice@example.com", "text/plain", nil)
	rr.SecurityFlagged = true
	if cands := p.Parse(rr, 0.5); len(cands) != 0 {
		t.Errorf("flagged result produced %d candidates", len(cands))
	}
}

func TestParseOversizedContentRedacted(t *testing.T) {
	p := New(64, false)
	rr := rawResult(strings.Repeat("x", 1000), "text/plain", nil)
	cands := p.Parse(rr, 0.5)
	if len(cands) != 0 || !rr.SecurityFlagged {
		t.Error("oversized content should be flagged with no candidates")
	}
}

func TestParseMalformedJSONNeverRaises(t *testing.T) {
	p := New(0, false)
	rr := rawResult("{not json", "application/json", map[string]string{"schema": "github_user"})
	if cands := p.Parse(rr, 0.85); len(cands) != 0 {
		t.Errorf("malformed payload produced %d candidates", len(cands))
	}
	rr2 := rawResult("{also: not json", "application/json", nil)
	if cands := p.Parse(rr2, 0.5); len(cands) != 0 {
		t.Errorf("malformed generic json produced %d candidates", len(cands))
	}
}

func TestParseTextEntityScanner(t *testing.T) {
	p := New(0, true)
	text := "Alice Roe works at Example Labs and is based in Porto today."
	cands := p.Parse(rawResult(text, "text/plain", nil), 0.5)

	persons := candidatesOfType(cands, models.EntityPerson)
	foundPerson := false
	for _, c := range persons {
		if c.Attributes[models.AttrName] == "Alice Roe" {
			foundPerson = true
			if c.ExtractionConfidence != nerConfidence {
				t.Errorf("scanner confidence = %v, want %v", c.ExtractionConfidence, nerConfidence)
			}
		}
	}
	if !foundPerson {
		t.Error("scanner missed the person name")
	}
	foundOrg := false
	for _, c := range candidatesOfType(cands, models.EntityOrganization) {
		if c.Attributes[models.AttrName] == "Example Labs" {
			foundOrg = true
		}
	}
	if !foundOrg {
		t.Error("scanner missed the organization")
	}
}

func TestParseDeduplicatesWithinResult(t *testing.T) {
	p := New(0, false)
	text := "alice@example.com mentioned twice: alice@example.com and ALICE@example.com"
	cands := p.Parse(rawResult(text, "text/plain", nil), 0.5)
	if n := len(candidatesOfType(cands, models.EntityEmail)); n != 1 {
		t.Errorf("got %d email candidates, want 1", n)
	}
}
