package models

import (
	"time"
)

// RiskLevel buckets an overall risk score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"      // <30
	RiskLevelMedium   RiskLevel = "MEDIUM"   // 30-49
	RiskLevelHigh     RiskLevel = "HIGH"     // 50-69
	RiskLevelCritical RiskLevel = "CRITICAL" // >=70
)

// RiskLevelFromScore maps a 0-100 score to a level
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 70:
		return RiskLevelCritical
	case score >= 50:
		return RiskLevelHigh
	case score >= 30:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// RiskFactor is one contribution to a sub-score
type RiskFactor struct {
	Category string  `json:"category"`
	Signal   string  `json:"signal"`
	Score    float64 `json:"score"`
	Detail   string  `json:"detail,omitempty"`
}

// ExecutiveSummary heads the report
type ExecutiveSummary struct {
	OverallScore  float64      `json:"overall_score"`
	Level         RiskLevel    `json:"level"`
	PrivacyScore  float64      `json:"privacy_score"`
	SecurityScore float64      `json:"security_score"`
	IdentityScore float64      `json:"identity_theft_score"`
	KeyExposures  []RiskFactor `json:"key_exposures"`
	EntityCount   int          `json:"entity_count"`
	SourceCount   int          `json:"source_count"`
}

// IdentityGroup buckets resolved entities by verification status
type IdentityGroup struct {
	Status   VerificationStatus `json:"status"`
	Entities []ResolvedEntity   `json:"entities"`
}

// ExposureCategory is one row of the exposure analysis
type ExposureCategory struct {
	Category   string   `json:"category"`
	Count      int      `json:"count"`
	Score      float64  `json:"score"`
	SourceRefs []string `json:"source_refs"`
}

// EffortLevel estimates remediation effort
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

// Recommendation is one prioritized remediation step
type Recommendation struct {
	Priority       int         `json:"priority"`
	Category       string      `json:"category"`
	Action         string      `json:"action"`
	ImpactEstimate float64     `json:"impact_estimate"` // 0-1
	Effort         EffortLevel `json:"effort"`
}

// TimelineSummary is one ordered event summary in the report
type TimelineSummary struct {
	Date       time.Time     `json:"date"`
	Precision  DatePrecision `json:"date_precision"`
	Type       EventType     `json:"event_type"`
	Title      string        `json:"title"`
	Confidence float64       `json:"confidence"`
}

// Finding ties one resolved entity to its evidence
type Finding struct {
	Entity     ResolvedEntity `json:"entity"`
	SourceRefs []string       `json:"source_refs"`
}

// SourceReference records where a raw result came from
type SourceReference struct {
	ResultID    string    `json:"result_id"`
	SourceName  string    `json:"source_name"`
	URL         string    `json:"url"`
	RetrievedAt time.Time `json:"retrieved_at"`
	ContentHash string    `json:"content_hash"`
}

// GraphSummary carries the graph statistics into the report
type GraphSummary struct {
	NodeCount      int     `json:"node_count"`
	EdgeCount      int     `json:"edge_count"`
	Density        float64 `json:"density"`
	MeanDegree     float64 `json:"mean_degree"`
	ComponentCount int     `json:"component_count"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// Report is the final structured value of an investigation
type Report struct {
	InvestigationID   string             `json:"investigation_id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	Partial           bool               `json:"partial"`
	Summary           ExecutiveSummary   `json:"executive_summary"`
	IdentityInventory []IdentityGroup    `json:"identity_inventory"`
	ExposureAnalysis  []ExposureCategory `json:"exposure_analysis"`
	ActivityTimeline  []TimelineSummary  `json:"activity_timeline"`
	Recommendations   []Recommendation   `json:"remediation_recommendations"`
	DetailedFindings  []Finding          `json:"detailed_findings"`
	SourceReferences  []SourceReference  `json:"source_references"`
	Graph             GraphSummary       `json:"graph"`
}
