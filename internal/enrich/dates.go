package enrich

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lifeinbox/intake/internal/dump"
)

// Date matcher confidences. Explicit calendar dates are near-certain,
// relative phrases depend on the reference clock being right.
const (
	explicitDateConfidence = 0.9
	relativeDateConfidence = 0.7
)

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	monthDayPattern  = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	weekdayPattern   = regexp.MustCompile(`(?i)\b(?:next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	relativePattern  = regexp.MustCompile(`(?i)\b(today|tomorrow)\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
}

// ResolveDates extracts date references from text and resolves each to a
// concrete day relative to now. Duplicate references to the same day are
// collapsed, keeping the higher-confidence match.
func ResolveDates(text string, now time.Time) []dump.DateEntity {
	byDay := make(map[string]dump.DateEntity)

	add := func(span string, resolved time.Time, confidence float64) {
		day := startOfDay(resolved)
		key := day.Format("2006-01-02")
		if prev, ok := byDay[key]; ok && prev.Confidence >= confidence {
			return
		}
		byDay[key] = dump.DateEntity{
			Entity:   dump.Entity{Value: day.Format("2006-01-02"), Confidence: confidence, Span: span},
			Resolved: day,
		}
	}

	for _, m := range isoDatePattern.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if resolved, ok := calendarDay(year, time.Month(month), day, now.Location()); ok {
			add(m[0], resolved, explicitDateConfidence)
		}
	}

	for _, m := range slashDatePattern.FindAllStringSubmatch(text, -1) {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if resolved, ok := calendarDay(year, time.Month(month), day, now.Location()); ok {
			add(m[0], resolved, explicitDateConfidence)
		}
	}

	for _, m := range monthDayPattern.FindAllStringSubmatch(text, -1) {
		month := monthsByName[strings.ToLower(m[1])]
		day, _ := strconv.Atoi(m[2])
		year := now.Year()
		explicitYear := m[3] != ""
		if explicitYear {
			year, _ = strconv.Atoi(m[3])
		}
		resolved, ok := calendarDay(year, month, day, now.Location())
		if !ok {
			continue
		}
		// A month-day with no year that already passed means next year.
		if !explicitYear && resolved.Before(startOfDay(now)) {
			resolved, ok = calendarDay(year+1, month, day, now.Location())
			if !ok {
				continue
			}
		}
		add(m[0], resolved, explicitDateConfidence)
	}

	for _, m := range weekdayPattern.FindAllStringSubmatch(text, -1) {
		weekday := weekdaysByName[strings.ToLower(m[1])]
		add(m[0], nextWeekday(now, weekday), relativeDateConfidence)
	}

	for _, m := range relativePattern.FindAllStringSubmatch(text, -1) {
		resolved := startOfDay(now)
		if strings.EqualFold(m[1], "tomorrow") {
			resolved = resolved.AddDate(0, 0, 1)
		}
		add(m[0], resolved, relativeDateConfidence)
	}

	if len(byDay) == 0 {
		return nil
	}
	out := make([]dump.DateEntity, 0, len(byDay))
	for _, entity := range byDay {
		out = append(out, entity)
	}
	sortDateEntities(out)
	return out
}

// nextWeekday resolves a bare weekday name to its next occurrence strictly
// after today, so "Friday" spoken on a Friday means a week out.
func nextWeekday(now time.Time, weekday time.Weekday) time.Time {
	today := startOfDay(now)
	delta := (int(weekday) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return today.AddDate(0, 0, delta)
}

// calendarDay validates that the components form a real calendar date.
// time.Date normalizes overflow (June 31 → July 1), which would silently
// accept garbage matches.
func calendarDay(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sortDateEntities(entities []dump.DateEntity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Resolved.Before(entities[j].Resolved)
	})
}
