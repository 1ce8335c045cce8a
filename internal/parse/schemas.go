package parse

import (
	"encoding/json"
	"strings"

	"github.com/trailhound/trailhound/internal/models"
)

// Structural extractors for the JSON and text schemas the bundled
// connectors emit. Each one knows the exact shape its source produces
// and extracts at structural confidence.

type githubUserDoc struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Location  string `json:"location"`
	Blog      string `json:"blog"`
	Bio       string `json:"bio"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
}

func parseGitHubUser(content []byte, b *candidateBuilder) error {
	var user githubUserDoc
	if err := json.Unmarshal(content, &user); err != nil {
		return err
	}
	if user.Login == "" {
		return nil
	}

	b.add(models.EntitySocialProfile, map[string]string{
		models.AttrUsername: strings.ToLower(user.Login),
		models.AttrPlatform: "github",
		models.AttrURL:      user.HTMLURL,
	}, structuralConfidence)

	if user.Name != "" {
		attrs := map[string]string{models.AttrName: user.Name}
		if user.Company != "" {
			attrs[models.AttrEmployer] = strings.TrimPrefix(user.Company, "@")
		}
		b.add(models.EntityPerson, attrs, structuralConfidence)
	}
	if user.Email != "" {
		b.add(models.EntityEmail, map[string]string{models.AttrEmail: strings.ToLower(user.Email)}, structuralConfidence)
	}
	if user.Location != "" {
		b.add(models.EntityLocation, map[string]string{models.AttrCity: user.Location}, structuralConfidence)
	}
	if user.Company != "" {
		b.add(models.EntityOrganization, map[string]string{
			models.AttrName: strings.TrimPrefix(user.Company, "@"),
		}, structuralConfidence)
	}
	// Bios often carry alternate handles and personal domains.
	if user.Bio != "" || user.Blog != "" {
		for _, domain := range extractDomains(user.Bio + "\n" + user.Blog) {
			b.add(models.EntityDomain, map[string]string{models.AttrDomain: domain}, regexConfidence)
		}
		for _, email := range extractEmails(user.Bio) {
			b.add(models.EntityEmail, map[string]string{models.AttrEmail: email}, regexConfidence)
		}
	}
	return nil
}

type certDoc struct {
	IssuerName string `json:"issuer_name"`
	CommonName string `json:"common_name"`
	NameValue  string `json:"name_value"`
	NotBefore  string `json:"not_before"`
}

func parseCrtSh(content []byte, b *candidateBuilder) error {
	var certs []certDoc
	if err := json.Unmarshal(content, &certs); err != nil {
		return err
	}
	for _, cert := range certs {
		names := strings.Split(cert.NameValue, "\n")
		names = append(names, cert.CommonName)
		for _, name := range names {
			name = strings.ToLower(strings.TrimSpace(name))
			name = strings.TrimPrefix(name, "*.")
			if name == "" || strings.Contains(name, " ") || !strings.Contains(name, ".") {
				continue
			}
			b.add(models.EntityDomain, map[string]string{models.AttrDomain: name}, structuralConfidence)
		}
	}
	return nil
}

type breachDoc struct {
	Name        string   `json:"Name"`
	Title       string   `json:"Title"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	DataClasses []string `json:"DataClasses"`
	IsVerified  bool     `json:"IsVerified"`
}

func parseBreaches(result *models.RawResult, b *candidateBuilder) error {
	var breaches []breachDoc
	if err := json.Unmarshal(result.Content, &breaches); err != nil {
		return err
	}
	account := result.Metadata["account"]
	for _, breach := range breaches {
		attrs := map[string]string{
			models.AttrBreach: breach.Name,
			"breach_title":    breach.Title,
			"breach_date":     breach.BreachDate,
			"data_classes":    strings.Join(breach.DataClasses, ","),
		}
		if account != "" {
			attrs[models.AttrEmail] = account
		}
		if breach.Domain != "" {
			attrs[models.AttrDomain] = breach.Domain
		}
		b.add(models.EntityDocument, attrs, structuralConfidence)
	}
	return nil
}

func parseWaybackCDX(result *models.RawResult, b *candidateBuilder) error {
	var rows [][]string
	if err := json.Unmarshal(result.Content, &rows); err != nil {
		return err
	}
	for _, row := range rows {
		// fl=timestamp,original,mimetype,statuscode
		if len(row) < 2 {
			continue
		}
		original := row[1]
		host, _ := splitURL(original)
		host = strings.ToLower(strings.TrimPrefix(host, "www."))
		if i := strings.Index(host, ":"); i >= 0 {
			host = host[:i]
		}
		if host == "" || !strings.Contains(host, ".") {
			continue
		}
		b.add(models.EntityDomain, map[string]string{models.AttrDomain: host}, structuralConfidence)
		b.add(models.EntityDocument, map[string]string{
			models.AttrURL:     original,
			"archive_snapshot": row[0],
		}, structuralConfidence)
	}
	return nil
}

// parseWhoisRecord extracts registration facts from a key: value WHOIS
// response. title carries the queried domain.
func parseWhoisRecord(record, title string, b *candidateBuilder) {
	attrs := map[string]string{}
	domain := strings.ToLower(strings.TrimSpace(title))
	if domain != "" {
		attrs[models.AttrDomain] = domain
	}

	for _, line := range strings.Split(record, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "registrar":
			attrs[models.AttrRegistrar] = value
		case "registrant name":
			b.add(models.EntityPerson, map[string]string{models.AttrName: value}, structuralConfidence)
		case "creation date", "created", "registered on":
			attrs["created"] = value
		case "registrant organization", "org", "organisation":
			b.add(models.EntityOrganization, map[string]string{models.AttrName: value}, structuralConfidence)
		case "registrant country":
			attrs[models.AttrCountry] = value
		}
	}
	if len(attrs) > 0 {
		b.add(models.EntityDomain, attrs, structuralConfidence)
	}

	// Registrant and abuse contacts surface as plain addresses.
	for _, email := range extractEmails(record) {
		if strings.Contains(email, "abuse") {
			continue
		}
		b.add(models.EntityEmail, map[string]string{models.AttrEmail: email}, regexConfidence)
	}
}
