// Package timeutil holds the calendar-date and zoned-time arithmetic used by
// the slot engine and the booking service.
package timeutil

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"booking-service/internal/domain"
)

const DateLayout = "2006-01-02"

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: timezone is required", domain.ErrInvalidInput)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidInput, name)
	}
	return loc, nil
}

// ZoneOr resolves name, falling back to def when name is empty.
func ZoneOr(name string, def *time.Location) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return def, nil
	}
	return LoadZone(name)
}

// Clock is a wall-clock time of day. Hour 24 with minute 0 denotes the end
// of the day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts "HH:MM" and anything prefixed by it, such as the
// "HH:MM:SS" form Postgres returns for TIME columns.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 {
		return Clock{}, fmt.Errorf("%w: invalid time of day %q", domain.ErrInvalidInput, s)
	}
	s = s[:5]
	if s == "24:00" {
		return Clock{Hour: 24}, nil
	}
	tt, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: invalid time of day %q", domain.ErrInvalidInput, s)
	}
	return Clock{Hour: tt.Hour(), Minute: tt.Minute()}, nil
}

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) Before(o Clock) bool { return c.Minutes() < o.Minutes() }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Date is a civil calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", domain.ErrInvalidInput, s)
	}
	return DateOf(t, time.UTC), nil
}

// DateOf returns the civil date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC), time.UTC)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) After(o Date) bool {
	if d.Year != o.Year {
		return d.Year > o.Year
	}
	if d.Month != o.Month {
		return d.Month > o.Month
	}
	return d.Day > o.Day
}

// Midnight is the first instant of the date in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At converts a wall-clock time on this date into an absolute instant.
// The conversion happens per date, so each date gets the UTC offset that
// is in force on it. Wall times inside a DST gap are normalized forward.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// DayBounds returns [midnight, next midnight) of the date in loc.
func (d Date) DayBounds(loc *time.Location) (time.Time, time.Time) {
	return d.Midnight(loc), d.AddDays(1).Midnight(loc)
}

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

// Overlaps uses the strict test aStart < bEnd && aEnd > bStart, so
// intervals that merely touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Contains reports whether inner lies fully inside iv.
func (iv Interval) Contains(inner Interval) bool {
	return !inner.Start.Before(iv.Start) && !inner.End.After(iv.End)
}

// Merge returns the union of the intervals, sorted by start. Overlapping
// and adjacent intervals are coalesced; empty ones are dropped.
func Merge(in []Interval) []Interval {
	spans := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.End.After(iv.Start) {
			spans = append(spans, iv)
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	out := []Interval{spans[0]}
	for _, iv := range spans[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// MaxTime and MinTime pick the later and earlier of two instants.
func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func MinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
