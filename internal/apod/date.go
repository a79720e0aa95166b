package apod

import "time"

// DateLayout is the accepted format for date strings (YYYY-MM-DD)
const DateLayout = "2006-01-02"

// WeekLength is the number of days returned in week mode
const WeekLength = 7

// Normalize returns midnight UTC of t's calendar day in t's own location
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized date.
// Falls back to the calendar day of now if the text cannot be parsed.
func ParseDate(text string, now time.Time) time.Time {
	t, err := time.Parse(DateLayout, text)
	if err != nil {
		return Normalize(now)
	}
	return Normalize(t)
}

// StartOfWeek returns the Sunday on or before the normalized date d
func StartOfWeek(d time.Time) time.Time {
	d = Normalize(d)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// startDate picks the date an Options value refers to
func startDate(opts Options, now time.Time) time.Time {
	if !opts.Date.IsZero() {
		return Normalize(opts.Date)
	}
	if opts.DateText != "" {
		return ParseDate(opts.DateText, now)
	}
	return Normalize(now)
}

// Dates resolves opts into the ordered list of days to fetch.
// Day mode yields the requested day. Week mode yields the seven days of the
// calendar week (Sunday through Saturday) before the week containing it.
// Unknown modes are treated as day mode.
func Dates(opts Options, now time.Time) []time.Time {
	start := startDate(opts, now)

	if opts.Mode != ModeWeek {
		return []time.Time{start}
	}

	first := StartOfWeek(start).AddDate(0, 0, -WeekLength)
	dates := make([]time.Time, WeekLength)
	for i := range dates {
		dates[i] = first.AddDate(0, 0, i)
	}
	return dates
}

// Resolve is Dates evaluated against the current time
func Resolve(opts Options) []time.Time {
	return Dates(opts, time.Now())
}
