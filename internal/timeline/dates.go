package timeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trailhound/trailhound/internal/models"
)

// ExtractedDate is one date found in free text with its precision
type ExtractedDate struct {
	Date      time.Time
	Precision models.DatePrecision
	Matched   string
}

var (
	isoDateTimeRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::(\d{2}))?(?:Z|[+-]\d{2}:?\d{2})?\b`)
	isoDateRe     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	usNumericRe   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	euNumericRe   = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	namedMonthRe  = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(?:(\d{1,2})(?:st|nd|rd|th)?,?\s+)?(\d{4})\b`)
	yearOnlyRe    = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	approxYearRe  = regexp.MustCompile(`(?i)\b(?:around|circa|ca\.?|approx\.?|about|~)\s*(19\d{2}|20\d{2})\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ExtractDates finds dated mentions in free text, most precise pattern
// first. Regions consumed by a more precise pattern are not re-matched
// by a coarser one.
func ExtractDates(text string) []ExtractedDate {
	var out []ExtractedDate
	consumed := make([]bool, len(text))

	take := func(lo, hi int) bool {
		for i := lo; i < hi; i++ {
			if consumed[i] {
				return false
			}
		}
		for i := lo; i < hi; i++ {
			consumed[i] = true
		}
		return true
	}

	for _, loc := range isoDateTimeRe.FindAllStringSubmatchIndex(text, -1) {
		m := isoDateTimeRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		h, _ := strconv.Atoi(m[4])
		mi, _ := strconv.Atoi(m[5])
		s := 0
		if m[6] != "" {
			s, _ = strconv.Atoi(m[6])
		}
		if !validYMD(y, mo, d) {
			continue
		}
		out = append(out, ExtractedDate{
			Date:      time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC),
			Precision: models.PrecisionExactTime,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	for _, loc := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		m := isoDateRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if !validYMD(y, mo, d) {
			continue
		}
		out = append(out, ExtractedDate{
			Date:      time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC),
			Precision: models.PrecisionExactDate,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	for _, loc := range usNumericRe.FindAllStringSubmatchIndex(text, -1) {
		m := usNumericRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		// A day over 12 in the first position means EU ordering
		if mo > 12 && d <= 12 {
			mo, d = d, mo
		}
		if !validYMD(y, mo, d) {
			continue
		}
		out = append(out, ExtractedDate{
			Date:      time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC),
			Precision: models.PrecisionExactDate,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	for _, loc := range euNumericRe.FindAllStringSubmatchIndex(text, -1) {
		m := euNumericRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if !validYMD(y, mo, d) {
			continue
		}
		out = append(out, ExtractedDate{
			Date:      time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC),
			Precision: models.PrecisionExactDate,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	for _, loc := range namedMonthRe.FindAllStringSubmatchIndex(text, -1) {
		m := namedMonthRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		month := monthNames[strings.ToLower(strings.TrimSuffix(m[1], "."))]
		y, _ := strconv.Atoi(m[3])
		day := 1
		precision := models.PrecisionMonth
		if m[2] != "" {
			day, _ = strconv.Atoi(m[2])
			precision = models.PrecisionExactDate
		}
		if !validYMD(y, int(month), day) {
			continue
		}
		out = append(out, ExtractedDate{
			Date:      time.Date(y, month, day, 0, 0, 0, 0, time.UTC),
			Precision: precision,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	for _, loc := range approxYearRe.FindAllStringSubmatchIndex(text, -1) {
		m := approxYearRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		out = append(out, ExtractedDate{
			Date:      time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
			Precision: models.PrecisionApproxYear,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	for _, loc := range yearOnlyRe.FindAllStringSubmatchIndex(text, -1) {
		m := yearOnlyRe.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil || !take(loc[0], loc[1]) {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		out = append(out, ExtractedDate{
			Date:      time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
			Precision: models.PrecisionYear,
			Matched:   text[loc[0]:loc[1]],
		})
	}
	return out
}

// ParseDate parses a single known-format date string, trying the same
// pattern library in precision order.
func ParseDate(s string) (time.Time, models.DatePrecision, bool) {
	dates := ExtractDates(s)
	if len(dates) == 0 {
		return time.Time{}, models.PrecisionUnknown, false
	}
	best := dates[0]
	for _, d := range dates[1:] {
		if d.Precision.Rank() < best.Precision.Rank() {
			best = d
		}
	}
	return best.Date, best.Precision, true
}

func validYMD(y, mo, d int) bool {
	if y < 1800 || y > 2200 || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d && int(t.Month()) == mo
}
