package enrich

import (
	"regexp"
	"strings"
	"time"

	"github.com/lifeinbox/intake/internal/dump"
)

// maxScanLength bounds how much text the pattern matchers look at. The full
// raw content is still stored; only extraction is truncated.
const maxScanLength = 10000

// Per-type matcher confidences.
const (
	emailConfidence    = 0.95
	urlConfidence      = 0.95
	amountConfidence   = 0.85
	phoneConfidence    = 0.8
	timeConfidence     = 0.8
	orgConfidence      = 0.7
	locationConfidence = 0.6
	personConfidence   = 0.5
)

var (
	emailPattern  = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	urlPattern    = regexp.MustCompile(`\bhttps?://[^\s<>"]+|\bwww\.[^\s<>"]+`)
	amountPattern = regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?|\b\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|dollars?|euros?|pounds?)\b`)
	phonePattern  = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)[\s.-]?)?\d{3}[\s.-]\d{3,4}(?:[\s.-]\d{4})?\b`)
	timePattern   = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s?(?:am|pm)?\b|\b\d{1,2}\s?(?:am|pm)\b`)

	locationPattern = regexp.MustCompile(`\b(?:in|at|to|from|near)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)
	personPattern   = regexp.MustCompile(`\b(?:with|meet|meeting|call|ask|tell)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)
	orgPattern      = regexp.MustCompile(`\b([A-Z][A-Za-z&]+(?:\s+[A-Z][A-Za-z&]+)*\s+(?:Inc|Corp|LLC|Ltd|GmbH|Co)\.?)\b`)
)

// weekday and month words are capitalized mid-sentence and would otherwise
// leak into the location/person matchers.
var calendarWords = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
	"January": true, "February": true, "March": true, "April": true,
	"May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
	"Today": true, "Tomorrow": true,
}

// ExtractEntities runs the pattern matchers over content and returns the
// populated sidecar structure. Empty or whitespace-only content yields an
// empty-but-valid result, never an error.
func ExtractEntities(content string, now time.Time) dump.Entities {
	entities := dump.Entities{
		Summary: dump.EntitySummary{ByType: map[string]int{}},
	}

	text := strings.TrimSpace(content)
	if text == "" {
		return entities
	}
	if len(text) > maxScanLength {
		text = text[:maxScanLength]
	}

	entities.Dates = ResolveDates(text, now)
	entities.Times = matchAll(timePattern, text, timeConfidence)
	entities.Emails = matchAll(emailPattern, text, emailConfidence)
	entities.URLs = matchAll(urlPattern, text, urlConfidence)
	entities.Amounts = matchAll(amountPattern, text, amountConfidence)
	entities.Phones = matchAll(phonePattern, text, phoneConfidence)
	entities.Organizations = matchGroup(orgPattern, text, orgConfidence)
	entities.Locations = filterCalendarWords(matchGroup(locationPattern, text, locationConfidence))
	entities.People = filterCalendarWords(matchGroup(personPattern, text, personConfidence))

	entities.Summary = summarize(entities)
	return entities
}

func matchAll(pattern *regexp.Regexp, text string, confidence float64) []dump.Entity {
	matches := pattern.FindAllString(text, -1)
	return dedupe(matches, matches, confidence)
}

func matchGroup(pattern *regexp.Regexp, text string, confidence float64) []dump.Entity {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	values := make([]string, 0, len(matches))
	spans := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m[1])
		spans = append(spans, m[0])
	}
	return dedupe(values, spans, confidence)
}

func dedupe(values, spans []string, confidence float64) []dump.Entity {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]dump.Entity, 0, len(values))
	for i, value := range values {
		value = strings.TrimSpace(value)
		key := strings.ToLower(value)
		if value == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, dump.Entity{Value: value, Confidence: confidence, Span: spans[i]})
	}
	return out
}

func filterCalendarWords(entities []dump.Entity) []dump.Entity {
	out := entities[:0]
	for _, e := range entities {
		first := strings.SplitN(e.Value, " ", 2)[0]
		if calendarWords[first] {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func summarize(entities dump.Entities) dump.EntitySummary {
	summary := dump.EntitySummary{ByType: map[string]int{}}

	var confidenceSum float64
	count := func(name string, list []dump.Entity) {
		if len(list) == 0 {
			return
		}
		summary.ByType[name] = len(list)
		summary.Total += len(list)
		for _, e := range list {
			confidenceSum += e.Confidence
		}
	}

	if len(entities.Dates) > 0 {
		summary.ByType["dates"] = len(entities.Dates)
		summary.Total += len(entities.Dates)
		for _, d := range entities.Dates {
			confidenceSum += d.Confidence
		}
	}
	count("times", entities.Times)
	count("locations", entities.Locations)
	count("people", entities.People)
	count("organizations", entities.Organizations)
	count("amounts", entities.Amounts)
	count("phones", entities.Phones)
	count("emails", entities.Emails)
	count("urls", entities.URLs)

	if summary.Total > 0 {
		summary.AverageConfidence = confidenceSum / float64(summary.Total)
	}
	return summary
}
