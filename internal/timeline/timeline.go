package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/trailhound/trailhound/internal/models"
)

// Age priors when no birth event exists: education starts around 18,
// first employment around 22.
const (
	educationStartAgePrior = 18
	firstJobAgePrior       = 22
)

// Builder maintains per-subject event sequences. Events identical in
// (subject, type, date, normalized title) merge across sources:
// confidence combines as 1-∏(1-c) and sources union. Storage order is
// irrelevant; reads sort by (date, precision, confidence).
type Builder struct {
	events map[string]map[string]*models.TimelineEvent // subject -> merge key -> event
}

// NewBuilder creates an empty timeline
func NewBuilder() *Builder {
	return &Builder{events: make(map[string]map[string]*models.TimelineEvent)}
}

// Add records one event, merging with an existing identical one
func (b *Builder) Add(e models.TimelineEvent) {
	if e.SubjectID == "" || e.Date.IsZero() {
		return
	}
	if e.Precision == "" {
		e.Precision = models.PrecisionUnknown
	}
	if e.Confidence < 0 {
		e.Confidence = 0
	}
	if e.Confidence > 1 {
		e.Confidence = 1
	}

	key := mergeKey(e)
	bySubject, ok := b.events[e.SubjectID]
	if !ok {
		bySubject = make(map[string]*models.TimelineEvent)
		b.events[e.SubjectID] = bySubject
	}

	existing, ok := bySubject[key]
	if !ok {
		if e.ID == "" {
			e.ID = fmt.Sprintf("evt-%016x", xxhash.Sum64String(key))
		}
		cp := e
		bySubject[key] = &cp
		return
	}

	// Merge: residual doubt multiplies, sources union, keep the more
	// precise date rendering.
	existing.Confidence = 1 - (1-existing.Confidence)*(1-e.Confidence)
	existing.Sources = unionStrings(existing.Sources, e.Sources)
	if e.Precision.Rank() < existing.Precision.Rank() {
		existing.Date = e.Date
		existing.Precision = e.Precision
	}
	if existing.Location == "" {
		existing.Location = e.Location
	}
	for k, v := range e.Metadata {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]string)
		}
		if _, ok := existing.Metadata[k]; !ok {
			existing.Metadata[k] = v
		}
	}
}

func mergeKey(e models.TimelineEvent) string {
	title := strings.Join(strings.Fields(strings.ToLower(e.Title)), " ")
	return e.SubjectID + "|" + string(e.Type) + "|" + e.Date.Format("2006-01-02") + "|" + title
}

// Events returns the subject's events ordered by (date, precision rank,
// confidence descending).
func (b *Builder) Events(subjectID string) []models.TimelineEvent {
	bySubject := b.events[subjectID]
	out := make([]models.TimelineEvent, 0, len(bySubject))
	for _, e := range bySubject {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Precision.Rank() != out[j].Precision.Rank() {
			return out[i].Precision.Rank() < out[j].Precision.Rank()
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Subjects lists subject IDs with at least one event
func (b *Builder) Subjects() []string {
	out := make([]string, 0, len(b.events))
	for s := range b.events {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Canonical milestone kinds in life order
var milestoneKinds = []models.EventType{
	models.EventBirth,
	models.EventEducationStart,
	models.EventEducationGraduate,
	models.EventJobStart,
	models.EventRelationshipStart,
	models.EventLocationMove,
	models.EventDigitalSignup,
}

// Milestones returns the first occurrence per canonical milestone kind
func (b *Builder) Milestones(subjectID string) []models.TimelineEvent {
	events := b.Events(subjectID)
	var out []models.TimelineEvent
	for _, kind := range milestoneKinds {
		for _, e := range events {
			if e.Type == kind {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// EstimatedAge estimates the subject's age at asOf. A birth event wins;
// otherwise the first education or first job event anchors the estimate
// with the declared priors. Returns false when nothing anchors an
// estimate.
func (b *Builder) EstimatedAge(subjectID string, asOf time.Time) (int, bool) {
	events := b.Events(subjectID)
	for _, e := range events {
		if e.Type == models.EventBirth {
			return yearsBetween(e.Date, asOf), true
		}
	}
	for _, e := range events {
		if e.Type == models.EventEducationStart {
			return yearsBetween(e.Date, asOf) + educationStartAgePrior, true
		}
	}
	for _, e := range events {
		if e.Type == models.EventJobStart {
			return yearsBetween(e.Date, asOf) + firstJobAgePrior, true
		}
	}
	return 0, false
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years
}

// Bucket granularities for activity aggregation
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
	BucketYear  Bucket = "year"
)

// BucketCount is one aggregation cell
type BucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ActivityBuckets counts events per bucket, ordered chronologically
func (b *Builder) ActivityBuckets(subjectID string, bucket Bucket) []BucketCount {
	counts := make(map[string]int)
	for _, e := range b.Events(subjectID) {
		counts[bucketLabel(e.Date, bucket)]++
	}
	out := make([]BucketCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, BucketCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// MostActivePeriods returns the top-n buckets by event count
func (b *Builder) MostActivePeriods(subjectID string, bucket Bucket, n int) []BucketCount {
	all := b.ActivityBuckets(subjectID, bucket)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func bucketLabel(t time.Time, bucket Bucket) string {
	switch bucket {
	case BucketDay:
		return t.Format("2006-01-02")
	case BucketWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case BucketMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006")
	}
}

func unionStrings(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
