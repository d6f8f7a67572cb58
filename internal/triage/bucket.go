// Package triage maps referenced dates to calendar-relative urgency
// buckets used to order and group content for review.
package triage

import "time"

// Bucket is a calendar-relative urgency classification.
type Bucket string

const (
	BucketOverdue   Bucket = "overdue"
	BucketToday     Bucket = "today"
	BucketTomorrow  Bucket = "tomorrow"
	BucketNextWeek  Bucket = "nextWeek"
	BucketNextMonth Bucket = "nextMonth"
	BucketLater     Bucket = "later"
)

// Order returns the display ordering of a bucket, most urgent first.
func (b Bucket) Order() int {
	switch b {
	case BucketOverdue:
		return 0
	case BucketToday:
		return 1
	case BucketTomorrow:
		return 2
	case BucketNextWeek:
		return 3
	case BucketNextMonth:
		return 4
	default:
		return 5
	}
}

// Buckets lists all buckets in display order.
func Buckets() []Bucket {
	return []Bucket{BucketOverdue, BucketToday, BucketTomorrow, BucketNextWeek, BucketNextMonth, BucketLater}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Assign classifies date relative to now. It is pure: now is explicit
// and neither input is mutated. Today and tomorrow take precedence
// over the week window, and window upper bounds are exclusive, so a
// date exactly seven days out lands in nextMonth territory.
func Assign(date, now time.Time) Bucket {
	today := startOfDay(now)

	if date.Before(today) {
		return BucketOverdue
	}

	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	switch {
	case date.Before(tomorrow):
		return BucketToday
	case date.Before(dayAfter):
		return BucketTomorrow
	case date.Before(today.AddDate(0, 0, 7)):
		return BucketNextWeek
	case date.Before(today.AddDate(0, 1, 0)):
		return BucketNextMonth
	default:
		return BucketLater
	}
}

// EarliestDate selects the minimum of the given timestamps. The second
// return is false when the slice is empty; content with no extractable
// date defaults to BucketLater when a bucket must be assigned.
func EarliestDate(dates []time.Time) (time.Time, bool) {
	if len(dates) == 0 {
		return time.Time{}, false
	}
	earliest := dates[0]
	for _, d := range dates[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, true
}

// ForDates assigns a bucket based on the earliest of the given dates,
// defaulting to BucketLater when none exist.
func ForDates(dates []time.Time, now time.Time) Bucket {
	earliest, ok := EarliestDate(dates)
	if !ok {
		return BucketLater
	}
	return Assign(earliest, now)
}
