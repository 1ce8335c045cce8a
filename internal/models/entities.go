package models

import (
	"time"
)

// EntityType is the closed set of entity categories the pipeline extracts
type EntityType string

const (
	EntityPerson        EntityType = "person"
	EntityOrganization  EntityType = "organization"
	EntityEmail         EntityType = "email"
	EntityPhone         EntityType = "phone"
	EntityUsername      EntityType = "username"
	EntityDomain        EntityType = "domain"
	EntitySocialProfile EntityType = "social_profile"
	EntityLocation      EntityType = "location"
	EntityDocument      EntityType = "document"
	EntityEvent         EntityType = "event"
)

// Attribute keys used in entity attribute maps. Kept as a small enum-like
// set rather than open dictionaries.
const (
	AttrName      = "name"
	AttrEmail     = "email"
	AttrPhone     = "phone"
	AttrUsername  = "username"
	AttrDomain    = "domain"
	AttrURL       = "url"
	AttrPlatform  = "platform"
	AttrEmployer  = "employer"
	AttrTitle     = "title"
	AttrCity      = "city"
	AttrRegion    = "region"
	AttrCountry   = "country"
	AttrBirthYear = "birth_year"
	AttrBreach    = "breach"
	AttrRegistrar = "registrar"
)

// Candidate is a typed extraction from a raw result, pre-normalization
type Candidate struct {
	ID                   string            `json:"candidate_id"`
	Type                 EntityType        `json:"entity_type"`
	Attributes           map[string]string `json:"attributes"`
	SourceRefs           []string          `json:"source_refs"` // raw result IDs
	SourceName           string            `json:"source_name"`
	SourceConfidence     float64           `json:"source_confidence"`     // connector base confidence, 0-1
	ExtractionConfidence float64           `json:"extraction_confidence"` // 0-1
	RetrievedAt          time.Time         `json:"retrieved_at"`
}

// CanonicalForms are the comparison keys computed by the normalizer
type CanonicalForms struct {
	Email            string   `json:"email,omitempty"`           // lowercased full address
	EmailKey         string   `json:"email_key,omitempty"`       // deliverable key: tags/dots stripped, domain canonical
	E164             string   `json:"e164,omitempty"`            // +<country><number>
	PhoneLast7       string   `json:"phone_last7,omitempty"`     // partial-match key
	Username         string   `json:"username,omitempty"`        // lowercase, separators stripped
	UsernameVariants []string `json:"username_variants,omitempty"`
	NameTokens       []string `json:"name_tokens,omitempty"` // alphabetical order
	NameKey          string   `json:"name_key,omitempty"`    // joined ordered tokens
	PhoneticCodes    []string `json:"phonetic_codes,omitempty"`
	Domain           string   `json:"domain,omitempty"` // lowercase, IDN-normalized
	Country          string   `json:"country,omitempty"`
	Region           string   `json:"region,omitempty"`
	City             string   `json:"city,omitempty"`
}

// NormalizedEntity is a candidate plus canonical forms and a quality score
type NormalizedEntity struct {
	Candidate    Candidate      `json:"candidate"`
	Canonical    CanonicalForms `json:"canonical"`
	QualityScore float64        `json:"quality_score"` // 0-1
}

// VerificationStatus discretizes resolved-entity confidence
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified" // >=90
	VerificationProbable VerificationStatus = "probable" // 75-89
	VerificationPossible VerificationStatus = "possible" // 60-74
	VerificationUnlikely VerificationStatus = "unlikely" // <60
)

// VerificationFromConfidence maps a 0-100 confidence to a status
func VerificationFromConfidence(confidence float64) VerificationStatus {
	switch {
	case confidence >= 90:
		return VerificationVerified
	case confidence >= 75:
		return VerificationProbable
	case confidence >= 60:
		return VerificationPossible
	default:
		return VerificationUnlikely
	}
}

// ResolvedEntity is a cluster of normalized candidates treated as one
// real-world entity.
type ResolvedEntity struct {
	ID                 string              `json:"entity_id"`
	Type               EntityType          `json:"entity_type"`
	Attributes         map[string]string   `json:"attributes"`
	DisputedAttributes map[string][]string `json:"disputed_attributes,omitempty"`
	Confidence         float64             `json:"confidence"` // 0-100
	Verification       VerificationStatus  `json:"verification_status"`
	MemberCandidates   []string            `json:"member_candidates"`
	Sources            []string            `json:"sources"`
	SourceRefs         []string            `json:"source_refs"`
	Ambiguous          bool                `json:"ambiguous,omitempty"`
}

// Relationship types an edge can carry
type Relationship string

const (
	RelWorksWith    Relationship = "works_with"
	RelKnows        Relationship = "knows"
	RelFamily       Relationship = "family"
	RelOwns         Relationship = "owns"
	RelRegistered   Relationship = "registered"
	RelLocatedAt    Relationship = "located_at"
	RelAuthored     Relationship = "authored"
	RelCites        Relationship = "cites"
	RelSameIdentity Relationship = "same_identity"
	RelCoOccurs     Relationship = "co_occurs"
)

// EdgeClass classifies how an edge was derived
type EdgeClass string

const (
	EdgeDirect     EdgeClass = "direct"
	EdgeInferred   EdgeClass = "inferred"
	EdgeTransitive EdgeClass = "transitive"
)

// DatePrecision records how much of a timeline date is trustworthy
type DatePrecision string

const (
	PrecisionExactTime  DatePrecision = "exact_time"
	PrecisionExactDate  DatePrecision = "exact_date"
	PrecisionMonth      DatePrecision = "month"
	PrecisionYear       DatePrecision = "year"
	PrecisionApproxYear DatePrecision = "approx_year"
	PrecisionUnknown    DatePrecision = "unknown"
)

// precisionRank orders precisions from most to least precise for sorting
func (p DatePrecision) Rank() int {
	switch p {
	case PrecisionExactTime:
		return 0
	case PrecisionExactDate:
		return 1
	case PrecisionMonth:
		return 2
	case PrecisionYear:
		return 3
	case PrecisionApproxYear:
		return 4
	default:
		return 5
	}
}

// EventType is the enumerated timeline event taxonomy
type EventType string

const (
	EventBirth             EventType = "birth"
	EventEducationStart    EventType = "education_start"
	EventEducationGraduate EventType = "education_graduate"
	EventJobStart          EventType = "job_start"
	EventJobEnd            EventType = "job_end"
	EventRelationshipStart EventType = "relationship_start"
	EventRelationshipEnd   EventType = "relationship_end"
	EventLocationMove      EventType = "location_move"
	EventDigitalSignup     EventType = "digital_signup"
	EventDigitalPost       EventType = "digital_post"
	EventDigitalBreach     EventType = "digital_breach"
	EventLegalFiling       EventType = "legal_filing"
	EventMediaMention      EventType = "media_mention"
)

// TimelineEvent is one dated fact about a subject
type TimelineEvent struct {
	ID         string            `json:"event_id"`
	SubjectID  string            `json:"subject_id"`
	Type       EventType         `json:"event_type"`
	Date       time.Time         `json:"date"`
	Precision  DatePrecision     `json:"date_precision"`
	Title      string            `json:"title"`
	Location   string            `json:"location,omitempty"`
	Confidence float64           `json:"confidence"` // 0-1
	Sources    []string          `json:"sources"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
