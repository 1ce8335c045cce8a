package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/internal/models"
)

func event(typ models.EventType, date time.Time, title string, conf float64, sources ...string) models.TimelineEvent {
	return models.TimelineEvent{
		SubjectID:  "subj-1",
		Type:       typ,
		Date:       date,
		Precision:  models.PrecisionExactDate,
		Title:      title,
		Confidence: conf,
		Sources:    sources,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractDates(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		want      time.Time
		precision models.DatePrecision
	}{
		{"iso datetime", "posted at 2021-03-04T15:04:05Z today", day(2021, 3, 4).Add(15*time.Hour + 4*time.Minute + 5*time.Second), models.PrecisionExactTime},
		{"iso date", "joined 2019-05-01 according to", day(2019, 5, 1), models.PrecisionExactDate},
		{"us numeric", "on 3/4/2021 the", day(2021, 3, 4), models.PrecisionExactDate},
		{"eu numeric", "am 4.3.2021 wurde", day(2021, 3, 4), models.PrecisionExactDate},
		{"named month with day", "on March 4, 2021 she", day(2021, 3, 4), models.PrecisionExactDate},
		{"named month only", "since March 2021 the", day(2021, 3, 1), models.PrecisionMonth},
		{"year only", "founded in 2015 as", day(2015, 1, 1), models.PrecisionYear},
		{"approx year", "born around 1990 in", day(1990, 1, 1), models.PrecisionApproxYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := ExtractDates(tt.text)
			require.NotEmpty(t, dates, "no dates found in %q", tt.text)
			assert.Equal(t, tt.want, dates[0].Date)
			assert.Equal(t, tt.precision, dates[0].Precision)
		})
	}
}

func TestExtractDatesNoDoubleCount(t *testing.T) {
	// The year inside an ISO date must not also match the year-only pattern
	dates := ExtractDates("released 2021-03-04 worldwide")
	require.Len(t, dates, 1)
	assert.Equal(t, models.PrecisionExactDate, dates[0].Precision)
}

func TestExtractDatesRejectsInvalid(t *testing.T) {
	assert.Empty(t, ExtractDates("version 2021-13-45 of the library"))
}

func TestAddMergesIdenticalEvents(t *testing.T) {
	b := NewBuilder()
	b.Add(event(models.EventDigitalBreach, day(2021, 3, 4), "Account Exposed", 0.6, "hibp"))
	b.Add(event(models.EventDigitalBreach, day(2021, 3, 4), "account exposed", 0.5, "duckduckgo"))

	events := b.Events("subj-1")
	require.Len(t, events, 1, "case-insensitive identical events must merge")
	// 1 - (1-0.6)(1-0.5)
	assert.InDelta(t, 0.8, events[0].Confidence, 0.001)
	assert.ElementsMatch(t, []string{"hibp", "duckduckgo"}, events[0].Sources)
}

func TestEventsSortedByDateThenPrecision(t *testing.T) {
	b := NewBuilder()
	exact := event(models.EventJobStart, day(2020, 6, 1), "started job", 0.8, "s")
	vague := models.TimelineEvent{
		SubjectID: "subj-1", Type: models.EventLocationMove,
		Date: day(2020, 6, 1), Precision: models.PrecisionYear,
		Title: "moved", Confidence: 0.5, Sources: []string{"s"},
	}
	earlier := event(models.EventEducationStart, day(2015, 9, 1), "enrolled", 0.7, "s")
	b.Add(vague)
	b.Add(exact)
	b.Add(earlier)

	events := b.Events("subj-1")
	require.Len(t, events, 3)
	assert.Equal(t, "enrolled", events[0].Title)
	assert.Equal(t, "started job", events[1].Title, "same date: higher precision first")
	assert.Equal(t, "moved", events[2].Title)
}

func TestMilestonesFirstPerKind(t *testing.T) {
	b := NewBuilder()
	b.Add(event(models.EventJobStart, day(2022, 1, 1), "second job", 0.8, "s"))
	b.Add(event(models.EventJobStart, day(2018, 1, 1), "first job", 0.8, "s"))
	b.Add(event(models.EventDigitalSignup, day(2010, 1, 1), "signed up", 0.8, "s"))

	milestones := b.Milestones("subj-1")
	require.Len(t, milestones, 2)
	assert.Equal(t, models.EventJobStart, milestones[0].Type)
	assert.Equal(t, "first job", milestones[0].Title)
}

func TestEstimatedAge(t *testing.T) {
	asOf := day(2026, 8, 1)

	b := NewBuilder()
	b.Add(event(models.EventBirth, day(1990, 3, 4), "born", 0.9, "s"))
	age, ok := b.EstimatedAge("subj-1", asOf)
	require.True(t, ok)
	assert.Equal(t, 36, age)

	// No birth event: education start anchors with the age-18 prior
	b2 := NewBuilder()
	b2.Add(event(models.EventEducationStart, day(2010, 9, 1), "enrolled", 0.8, "s"))
	age, ok = b2.EstimatedAge("subj-1", asOf)
	require.True(t, ok)
	assert.Equal(t, 15+18, age)

	// First job anchors with the age-22 prior
	b3 := NewBuilder()
	b3.Add(event(models.EventJobStart, day(2016, 6, 1), "hired", 0.8, "s"))
	age, ok = b3.EstimatedAge("subj-1", asOf)
	require.True(t, ok)
	assert.Equal(t, 10+22, age)

	_, ok = NewBuilder().EstimatedAge("subj-1", asOf)
	assert.False(t, ok)
}

func TestActivityBuckets(t *testing.T) {
	b := NewBuilder()
	b.Add(event(models.EventDigitalPost, day(2021, 3, 4), "post one", 0.5, "s"))
	b.Add(event(models.EventDigitalPost, day(2021, 3, 20), "post two", 0.5, "s"))
	b.Add(event(models.EventDigitalPost, day(2021, 5, 1), "post three", 0.5, "s"))

	buckets := b.ActivityBuckets("subj-1", BucketMonth)
	require.Len(t, buckets, 2)
	assert.Equal(t, BucketCount{Label: "2021-03", Count: 2}, buckets[0])
	assert.Equal(t, BucketCount{Label: "2021-05", Count: 1}, buckets[1])

	top := b.MostActivePeriods("subj-1", BucketMonth, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "2021-03", top[0].Label)
}

func TestCollectEventsFromEntities(t *testing.T) {
	b := NewBuilder()
	resolved := []models.ResolvedEntity{
		{
			Type:       models.EntityDocument,
			Confidence: 90,
			Sources:    []string{"hibp"},
			Attributes: map[string]string{
				models.AttrBreach: "ExampleBreach",
				"breach_date":     "2021-03-04",
				"data_classes":    "Email addresses,Passwords",
			},
		},
		{
			Type:       models.EntityDomain,
			Confidence: 85,
			Sources:    []string{"whois"},
			Attributes: map[string]string{
				models.AttrDomain: "aroe.example",
				"created":         "2019-05-01T00:00:00Z",
			},
		},
		{
			Type:       models.EntityEmail,
			Confidence: 95,
			Attributes: map[string]string{models.AttrEmail: "alice@example.com"},
		},
	}

	added := b.CollectEvents("subj-1", resolved)
	assert.Equal(t, 2, added)

	events := b.Events("subj-1")
	require.Len(t, events, 2)
	assert.Equal(t, models.EventDigitalSignup, events[0].Type)
	assert.Equal(t, models.EventDigitalBreach, events[1].Type)
}
