package parse

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/trailhound/trailhound/internal/models"
)

// Extraction confidences by method. Structural extraction trusts the
// source schema; regex finds are strong but context-free; the text
// scanner is a guess.
const (
	structuralConfidence = 0.9
	regexConfidence      = 0.8
	htmlRegexConfidence  = 0.7
)

// Parser turns raw results into typed entity candidates. Parse never
// returns an error: malformed content yields zero candidates and a
// logged warning, and hostile content is redacted in place.
type Parser struct {
	maxBytes     int64
	textEntities bool
	logger       *slog.Logger
}

// New creates a parser. maxBytes caps accepted content size; zero
// disables the cap. textEntities enables the heuristic prose scanner.
func New(maxBytes int64, textEntities bool) *Parser {
	return &Parser{
		maxBytes:     maxBytes,
		textEntities: textEntities,
		logger:       slog.Default().With("component", "parser"),
	}
}

// Parse extracts candidates from one raw result. sourceConfidence is the
// base confidence of the connector that produced the result. If the
// content trips the security screen the result is flagged and redacted
// and no candidates are produced. Results the fetch path already
// flagged contribute nothing.
func (p *Parser) Parse(result *models.RawResult, sourceConfidence float64) []models.Candidate {
	if result.SecurityFlagged {
		return nil
	}
	if pattern, hit := Sanitize(result, p.maxBytes); hit {
		p.logger.Warn("raw result failed security screen",
			"source", result.SourceName,
			"pattern", pattern,
			"url", result.URL,
		)
		return nil
	}

	builder := &candidateBuilder{result: result, sourceConfidence: sourceConfidence}

	if schema := result.Metadata["schema"]; schema != "" {
		if p.parseStructural(schema, result, builder) {
			return builder.out
		}
		// Unknown schema falls through to media-type dispatch.
	}

	switch mediaClass(result.MediaType) {
	case "html":
		p.parseHTML(result, builder)
	case "json":
		p.parseGenericJSON(result, builder)
	case "xml":
		p.parseText(stripTags(string(result.Content)), builder, regexConfidence)
	default:
		p.parseText(string(result.Content), builder, regexConfidence)
	}
	return builder.out
}

func mediaClass(mediaType string) string {
	mt := strings.ToLower(mediaType)
	switch {
	case strings.Contains(mt, "html"):
		return "html"
	case strings.Contains(mt, "json"):
		return "json"
	case strings.Contains(mt, "xml"):
		return "xml"
	default:
		return "text"
	}
}

// parseStructural dispatches on the source schema hint. Returns false
// when the schema is unknown so the caller can fall back.
func (p *Parser) parseStructural(schema string, result *models.RawResult, b *candidateBuilder) bool {
	var err error
	switch schema {
	case "github_user":
		err = parseGitHubUser(result.Content, b)
	case "crtsh":
		err = parseCrtSh(result.Content, b)
	case "hibp_breaches":
		err = parseBreaches(result, b)
	case "wayback_cdx":
		err = parseWaybackCDX(result, b)
	case "whois":
		parseWhoisRecord(string(result.Content), result.Title, b)
	default:
		return false
	}
	if err != nil {
		p.logger.Warn("structural parse failed, no candidates extracted",
			"source", result.SourceName,
			"schema", schema,
			"error", err,
		)
	}
	return true
}

// parseHTML extracts visible text and profile links from a document
func (p *Parser) parseHTML(result *models.RawResult, b *candidateBuilder) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Content))
	if err != nil {
		p.logger.Warn("html parse failed, falling back to raw text",
			"source", result.SourceName, "error", err)
		p.parseText(string(result.Content), b, htmlRegexConfidence)
		return
	}
	doc.Find("script, style, noscript").Remove()

	var links strings.Builder
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			links.WriteString(href)
			links.WriteString("\n")
		}
	})

	p.parseText(doc.Text()+"\n"+links.String(), b, htmlRegexConfidence)
}

// parseGenericJSON collects every string leaf and runs the regex
// extractors over the concatenation.
func (p *Parser) parseGenericJSON(result *models.RawResult, b *candidateBuilder) {
	var root interface{}
	if err := json.Unmarshal(result.Content, &root); err != nil {
		p.logger.Warn("json parse failed, no candidates extracted",
			"source", result.SourceName, "error", err)
		return
	}
	var sb strings.Builder
	collectStrings(root, &sb)
	p.parseText(sb.String(), b, regexConfidence)
}

func collectStrings(v interface{}, sb *strings.Builder) {
	switch t := v.(type) {
	case string:
		sb.WriteString(t)
		sb.WriteString("\n")
	case []interface{}:
		for _, e := range t {
			collectStrings(e, sb)
		}
	case map[string]interface{}:
		for _, e := range t {
			collectStrings(e, sb)
		}
	}
}

// parseText runs the regex extractors, and the heuristic entity scanner
// when enabled, over free text.
func (p *Parser) parseText(text string, b *candidateBuilder, conf float64) {
	for _, email := range extractEmails(text) {
		b.add(models.EntityEmail, map[string]string{models.AttrEmail: email}, conf)
	}
	for _, phone := range extractPhones(text) {
		b.add(models.EntityPhone, map[string]string{models.AttrPhone: phone}, conf)
	}
	handles, platforms := extractHandles(text)
	for _, h := range handles {
		attrs := map[string]string{models.AttrUsername: h}
		typ := models.EntityUsername
		if platform := platforms[h]; platform != "" {
			attrs[models.AttrPlatform] = platform
			typ = models.EntitySocialProfile
		}
		b.add(typ, attrs, conf)
	}
	for _, domain := range extractDomains(text) {
		b.add(models.EntityDomain, map[string]string{models.AttrDomain: domain}, conf)
	}

	if !p.textEntities {
		return
	}
	for _, te := range extractTextEntities(text) {
		switch te.kind {
		case "person":
			b.add(models.EntityPerson, map[string]string{models.AttrName: te.text}, nerConfidence)
		case "organization":
			b.add(models.EntityOrganization, map[string]string{models.AttrName: te.text}, nerConfidence)
		case "location":
			b.add(models.EntityLocation, map[string]string{models.AttrCity: te.text}, nerConfidence)
		}
	}
}

// candidateBuilder accumulates candidates for one raw result, folding
// duplicate (type, attributes) extractions into one.
type candidateBuilder struct {
	result           *models.RawResult
	sourceConfidence float64
	out              []models.Candidate
	seen             map[string]bool
}

func (b *candidateBuilder) add(typ models.EntityType, attrs map[string]string, extractionConf float64) {
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	key := string(typ)
	for _, k := range []string{models.AttrEmail, models.AttrPhone, models.AttrUsername,
		models.AttrDomain, models.AttrName, models.AttrURL} {
		if v, ok := attrs[k]; ok {
			key += "|" + k + "=" + strings.ToLower(v)
		}
	}
	if b.seen[key] {
		return
	}
	b.seen[key] = true

	b.out = append(b.out, models.Candidate{
		ID:                   uuid.NewString(),
		Type:                 typ,
		Attributes:           attrs,
		SourceRefs:           []string{b.result.ID},
		SourceName:           b.result.SourceName,
		SourceConfidence:     b.sourceConfidence,
		ExtractionConfidence: extractionConf,
		RetrievedAt:          b.result.RetrievedAt,
	})
}

// stripTags removes markup from XML-ish content so the regex extractors
// see only character data.
func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			sb.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
