package models

import (
	"time"
)

// InvestigationStatus tracks the coordinator state machine
type InvestigationStatus string

const (
	StatusCreated   InvestigationStatus = "created"
	StatusPlanning  InvestigationStatus = "planning"
	StatusFetching  InvestigationStatus = "fetching"
	StatusParsing   InvestigationStatus = "parsing"
	StatusResolving InvestigationStatus = "resolving"
	StatusReporting InvestigationStatus = "reporting"
	StatusCompleted InvestigationStatus = "completed"
	StatusFailed    InvestigationStatus = "failed"
	StatusCancelled InvestigationStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s InvestigationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// GeographicHints narrow the subject's location
type GeographicHints struct {
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"` // ISO 3166-1 alpha-2
}

// ProfessionalHints narrow the subject's work history
type ProfessionalHints struct {
	Employer string `json:"employer,omitempty"`
	Industry string `json:"industry,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Constraints bound an investigation
type Constraints struct {
	ExcludeSensitiveAttributes bool `json:"exclude_sensitive_attributes"`
	ExcludeMinors              bool `json:"exclude_minors"`
	MaxSearchDepth             int  `json:"max_search_depth"` // 1-10
	RetentionDays              int  `json:"retention_days"`   // 1-365
	MaxDurationMinutes         int  `json:"max_duration_minutes,omitempty"`
}

// Thresholds hold the confidence floors for an investigation
type Thresholds struct {
	MinimumEntityConfidence int `json:"minimum_entity_confidence"` // default 70
	MinimumSourceConfidence int `json:"minimum_source_confidence"` // default 60
}

// SubjectIdentifiers are the seed attributes supplied by the client
type SubjectIdentifiers struct {
	FullName          string            `json:"full_name"`
	Usernames         []string          `json:"usernames,omitempty"`     // <=20
	Emails            []string          `json:"emails,omitempty"`        // <=10
	PhoneNumbers      []string          `json:"phone_numbers,omitempty"` // E.164, <=5
	GeographicHints   GeographicHints   `json:"geographic_hints,omitempty"`
	ProfessionalHints ProfessionalHints `json:"professional_hints,omitempty"`
	KnownDomains      []string          `json:"known_domains,omitempty"` // <=10
}

// Seed is the per-investigation input object
type Seed struct {
	InvestigationID string             `json:"investigation_id"`
	CorrelationID   string             `json:"correlation_id,omitempty"`
	Subject         SubjectIdentifiers `json:"subject_identifiers"`
	Constraints     Constraints        `json:"constraints"`
	Thresholds      Thresholds         `json:"thresholds"`
}

// QueryKind classifies a planned query
type QueryKind string

const (
	QueryKindName      QueryKind = "name"
	QueryKindUsername  QueryKind = "username"
	QueryKindEmail     QueryKind = "email"
	QueryKindPhone     QueryKind = "phone"
	QueryKindDomain    QueryKind = "domain"
	QueryKindCompany   QueryKind = "company"
	QueryKindLocation  QueryKind = "location"
	QueryKindComposite QueryKind = "composite"
)

// Query is one unit of work in the plan: one query string routed to an
// ordered list of connectors.
type Query struct {
	ID               string            `json:"query_id"`
	QueryString      string            `json:"query_string"`
	Kind             QueryKind         `json:"kind"`
	TargetConnectors []string          `json:"target_connectors"`
	Priority         int               `json:"priority"` // 0-100
	Parameters       map[string]string `json:"parameters,omitempty"`
	Depth            int               `json:"depth"` // hop distance from seed
}

// RawResult is the bytes and metadata returned by one connector for one query
type RawResult struct {
	ID              string            `json:"id"`
	QueryID         string            `json:"query_id"`
	SourceName      string            `json:"source_name"`
	URL             string            `json:"url"`
	Title           string            `json:"title"`
	Content         []byte            `json:"content"`
	MediaType       string            `json:"media_type"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	RetrievedAt     time.Time         `json:"retrieved_at"`
	ContentHash     string            `json:"content_hash"`
	SecurityFlagged bool              `json:"security_flagged,omitempty"`
}

// InvestigationError is one machine-readable entry in the record's errors[]
type InvestigationError struct {
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	QueryID   string    `json:"query_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Investigation is the record the coordinator owns until terminal state
type Investigation struct {
	Seed                Seed                 `json:"seed"`
	Status              InvestigationStatus  `json:"status"`
	ProgressPercentage  float64              `json:"progress_percentage"`
	CurrentStage        string               `json:"current_stage"`
	EntitiesFound       int                  `json:"entities_found"`
	QueriesExecuted     int                  `json:"queries_executed"`
	QueriesTotal        int                  `json:"queries_total"`
	Errors              []InvestigationError `json:"errors"`
	StartedAt           time.Time            `json:"started_at"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time           `json:"estimated_completion,omitempty"`
	Report              *Report              `json:"report,omitempty"`
}

// ID returns the investigation identifier
func (inv *Investigation) ID() string {
	return inv.Seed.InvestigationID
}

// WithoutReport returns a shallow copy suitable for status responses
func (inv *Investigation) WithoutReport() *Investigation {
	cp := *inv
	cp.Report = nil
	return &cp
}

// ProgressEventType classifies a streamed progress event
type ProgressEventType string

const (
	EventStatusUpdate    ProgressEventType = "status_update"
	EventNewEntity       ProgressEventType = "new_entity"
	EventStageTransition ProgressEventType = "stage_transition"
	EventError           ProgressEventType = "error"
	EventCompletion      ProgressEventType = "completion"
)

// ProgressEvent is one streamed update for a subscriber
type ProgressEvent struct {
	Type            ProgressEventType      `json:"type"`
	InvestigationID string                 `json:"investigation_id"`
	Timestamp       time.Time              `json:"timestamp"`
	Data            map[string]interface{} `json:"data,omitempty"`
	Dropped         int                    `json:"dropped,omitempty"` // events dropped since the last delivery
}

// Critical reports whether the event may never be dropped from a full
// subscriber channel.
func (e ProgressEvent) Critical() bool {
	return e.Type == EventStageTransition || e.Type == EventCompletion || e.Type == EventError
}
