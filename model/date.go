package model

import (
	"fmt"
	"time"
)

// Date is a calendar date with no time-of-day or zone component. Reservation
// check-in/check-out are Dates in the business timezone (spec §3); the
// business timezone only re-enters the picture when a Date must be compared
// to a timestamp (e.g. against a downstream job's scheduled_start).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate truncates t (interpreted in loc) to a calendar date.
func NewDate(t time.Time, loc *time.Location) Date {
	t = t.In(loc)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a date string using the given layout ("01/02/2006" for
// iTrip, "2006-01-02" for Evolve — spec §4.4).
func ParseDate(value, layout string) (Date, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// Time returns d as midnight in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before, Equal, After compare calendar dates irrespective of timezone —
// both sides must already be expressed in the same business timezone.
func (d Date) Before(o Date) bool { return d.Time(time.UTC).Before(o.Time(time.UTC)) }
func (d Date) Equal(o Date) bool  { return d == o }
func (d Date) After(o Date) bool  { return d.Time(time.UTC).After(o.Time(time.UTC)) }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Nights returns the number of nights between check-in d and check-out o.
func (d Date) Nights(o Date) int {
	di := d.Time(time.UTC)
	oi := o.Time(time.UTC)
	return int(oi.Sub(di).Hours() / 24)
}

// Overlaps reports whether [d, dEnd) intersects [o, oEnd).
func Overlaps(d, dEnd, o, oEnd Date) bool {
	return d.Before(oEnd) && o.Before(dEnd)
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool {
	return d == Date{}
}
