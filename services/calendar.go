package services

import "time"

// Calendar maps instants to calendar dates of a single time zone.
// Dates are represented as midnight UTC of that calendar day so they survive a DATE column unchanged.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar builds a Calendar for loc. A nil now uses time.Now.
func NewCalendar(loc *time.Location, now func() time.Time) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Calendar{loc: loc, now: now}
}

// DateOf returns the calendar date t falls on in the calendar's zone.
func (c Calendar) DateOf(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date.
func (c Calendar) Today() time.Time {
	return c.DateOf(c.now())
}

// MonthStart returns the first day of the current month.
func (c Calendar) MonthStart() time.Time {
	today := c.Today()
	return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SameDate compares two stored dates by their UTC year/month/day.
func SameDate(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// Location returns the calendar's time zone.
func (c Calendar) Location() *time.Location {
	return c.loc
}
