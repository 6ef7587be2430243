// Package slots turns weekly rules, date exceptions, event type constraints
// and existing bookings into concrete bookable windows.
//
// Candidates advance by a fixed step (15 minutes by default) regardless of
// the event duration, so consecutive offered slots may overlap. This gives
// invitees fine-grained start times; it is not a bin packing.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"booking-service/internal/domain"
	"booking-service/internal/store"
	"booking-service/internal/timeutil"
)

const DefaultStep = 15 * time.Minute

// Slot is one bookable window. Start/End are presented in the viewer zone;
// StartUTC/EndUTC are authoritative.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	StartUTC time.Time `json:"startUTC"`
	EndUTC   time.Time `json:"endUTC"`
}

type Engine struct {
	eventTypes store.EventTypeStore
	rules      store.RuleStore
	bookings   store.BookingReader
	owner      *time.Location
	step       time.Duration
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithStep(step time.Duration) Option {
	return func(e *Engine) {
		if step > 0 {
			e.step = step
		}
	}
}

// New builds an engine. owner is the zone whose calendar dates bound the
// per-day booking quota and which custom-hours exceptions without a zone use.
func New(eventTypes store.EventTypeStore, rules store.RuleStore, bookings store.BookingReader,
	owner *time.Location, log *zap.Logger, opts ...Option) *Engine {
	if owner == nil {
		owner = time.UTC
	}
	e := &Engine{
		eventTypes: eventTypes,
		rules:      rules,
		bookings:   bookings,
		owner:      owner,
		step:       DefaultStep,
		now:        time.Now,
		log:        log.Named("slots"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Owner is the zone that defines calendar dates for daily quotas.
func (e *Engine) Owner() *time.Location { return e.owner }

// DayBounds returns the owner-zone calendar day containing t.
func (e *Engine) DayBounds(t time.Time) (time.Time, time.Time) {
	return timeutil.DateOf(t, e.owner).DayBounds(e.owner)
}

// ActiveEventType loads an event type and rejects inactive ones.
func (e *Engine) ActiveEventType(ctx context.Context, id int64) (domain.EventType, error) {
	et, err := e.eventTypes.GetEventType(ctx, id)
	if err != nil {
		return domain.EventType{}, err
	}
	if !et.Active {
		return domain.EventType{}, fmt.Errorf("%w: id %d is inactive", domain.ErrEventTypeNotFound, id)
	}
	return et, nil
}

// Compute returns the bookable slots of an event type inside
// [rangeStart, rangeEnd], sorted by UTC start.
func (e *Engine) Compute(ctx context.Context, eventTypeID int64, rangeStart, rangeEnd time.Time, viewerTZ string) ([]Slot, error) {
	viewer, err := timeutil.LoadZone(viewerTZ)
	if err != nil {
		return nil, err
	}
	if rangeEnd.Before(rangeStart) {
		return nil, fmt.Errorf("%w: range end is before range start", domain.ErrInvalidInput)
	}
	et, err := e.ActiveEventType(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}

	within, ok := e.clamp(et, rangeStart, rangeEnd)
	if !ok {
		return []Slot{}, nil
	}

	windows, err := e.windows(ctx, et, within)
	if err != nil {
		return nil, err
	}
	candidates := e.candidates(et, windows, within)
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	from, _ := e.DayBounds(within.Start.Add(-et.BufferBefore()))
	_, to := e.DayBounds(within.End.Add(et.BufferAfter()))
	existing, err := e.bookings.ListActive(ctx, et.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	perDay := map[timeutil.Date]int{}
	for _, b := range existing {
		perDay[timeutil.DateOf(b.StartUTC, e.owner)]++
	}

	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if Conflicts(et, c, existing) {
			continue
		}
		if et.MaxBookingsPerDay != nil && perDay[timeutil.DateOf(c.Start, e.owner)] >= *et.MaxBookingsPerDay {
			continue
		}
		out = append(out, Slot{
			Start:    c.Start.In(viewer),
			End:      c.End.In(viewer),
			StartUTC: c.Start.UTC(),
			EndUTC:   c.End.UTC(),
		})
	}

	e.log.Debug("slots computed",
		zap.Int64("event_type_id", et.ID),
		zap.Time("from", within.Start),
		zap.Time("to", within.End),
		zap.Int("candidates", len(candidates)),
		zap.Int("bookings", len(existing)),
		zap.Int("available", len(out)))
	return out, nil
}

// CheckWindow verifies that [start, end) is a slot the engine would offer
// for et when no bookings existed: exact duration, inside the lead time and
// advance window, and aligned with a candidate of an availability window.
// Booking conflicts and quotas are checked by the caller inside its lock.
func (e *Engine) CheckWindow(ctx context.Context, et domain.EventType, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: start must be before end", domain.ErrInvalidInput)
	}
	if end.Sub(start) != et.Duration() {
		return fmt.Errorf("%w: window must last exactly %d minutes", domain.ErrInvalidInput, et.DurationMins)
	}

	want := timeutil.Interval{Start: start.UTC(), End: end.UTC()}
	within, ok := e.clamp(et, want.Start, want.End)
	if !ok || !within.Contains(want) {
		return fmt.Errorf("%w: outside the bookable horizon", domain.ErrSlotUnavailable)
	}

	windows, err := e.windows(ctx, et, within)
	if err != nil {
		return err
	}
	for _, c := range e.candidates(et, windows, within) {
		if c.Start.Equal(want.Start) {
			return nil
		}
	}
	return fmt.Errorf("%w: outside availability", domain.ErrSlotUnavailable)
}

// Conflicts reports whether candidate c, widened by the event type's
// buffers, intersects any booking that occupies its window.
func Conflicts(et domain.EventType, c timeutil.Interval, bookings []domain.Booking) bool {
	bufferedStart := c.Start.Add(-et.BufferBefore())
	bufferedEnd := c.End.Add(et.BufferAfter())
	for _, b := range bookings {
		if !b.Status.Blocks() {
			continue
		}
		if timeutil.Overlaps(bufferedStart, bufferedEnd, b.StartUTC, b.EndUTC) {
			return true
		}
	}
	return false
}

// clamp intersects the request with [now+lead, now+advance].
func (e *Engine) clamp(et domain.EventType, start, end time.Time) (timeutil.Interval, bool) {
	now := e.now().UTC()
	lo := timeutil.MaxTime(start.UTC(), now.Add(et.MinLead()))
	hi := end.UTC()
	if et.MaxAdvanceDays > 0 {
		hi = timeutil.MinTime(hi, now.Add(et.MaxAdvance()))
	}
	if !hi.After(lo) {
		return timeutil.Interval{}, false
	}
	return timeutil.Interval{Start: lo, End: hi}, true
}

// windows returns the merged availability windows for every civil date
// touching within. Dates are padded by one day on each side because a rule
// zone may be up to a day away from UTC.
func (e *Engine) windows(ctx context.Context, et domain.EventType, within timeutil.Interval) ([]timeutil.Interval, error) {
	first := timeutil.DateOf(within.Start, time.UTC).AddDays(-1)
	last := timeutil.DateOf(within.End, time.UTC).AddDays(1)

	rules, err := e.rules.GetRules(ctx, et.ID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	exceptions, err := e.rules.GetExceptions(ctx, et.ID, first, last)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}

	overridden := map[timeutil.Date][]domain.AvailabilityException{}
	for _, ex := range exceptions {
		d, err := timeutil.ParseDate(ex.Date)
		if err != nil {
			return nil, err
		}
		overridden[d] = append(overridden[d], ex)
	}

	byDate := map[timeutil.Date][]timeutil.Interval{}

	for _, r := range rules {
		if !r.Active {
			continue
		}
		span, loc, err := ruleSpan(r.StartTime, r.EndTime, r.Timezone, e.owner)
		if err != nil {
			e.log.Warn("skipping invalid availability rule", zap.Int64("rule_id", r.ID), zap.Error(err))
			continue
		}
		dates, err := weeklyDates(r.DayOfWeek, first, last, loc)
		if err != nil {
			e.log.Warn("skipping invalid availability rule", zap.Int64("rule_id", r.ID), zap.Error(err))
			continue
		}
		for _, d := range dates {
			if _, ok := overridden[d]; ok {
				continue
			}
			byDate[d] = append(byDate[d], timeutil.Interval{Start: d.At(span[0], loc), End: d.At(span[1], loc)})
		}
	}

	for d, exs := range overridden {
		if closedAllDay(exs) {
			continue
		}
		for _, ex := range exs {
			span, loc, err := ruleSpan(ex.StartTime, ex.EndTime, ex.Timezone, e.owner)
			if err != nil {
				e.log.Warn("skipping invalid availability exception", zap.Int64("exception_id", ex.ID), zap.Error(err))
				continue
			}
			byDate[d] = append(byDate[d], timeutil.Interval{Start: d.At(span[0], loc), End: d.At(span[1], loc)})
		}
	}

	var out []timeutil.Interval
	for _, spans := range byDate {
		out = append(out, timeutil.Merge(spans)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func closedAllDay(exs []domain.AvailabilityException) bool {
	for _, ex := range exs {
		if ex.Kind != domain.ExceptionCustomHours {
			return true
		}
	}
	return false
}

func ruleSpan(startTime, endTime, tz string, def *time.Location) ([2]timeutil.Clock, *time.Location, error) {
	var span [2]timeutil.Clock
	loc, err := timeutil.ZoneOr(tz, def)
	if err != nil {
		return span, nil, err
	}
	if span[0], err = timeutil.ParseClock(startTime); err != nil {
		return span, nil, err
	}
	if span[1], err = timeutil.ParseClock(endTime); err != nil {
		return span, nil, err
	}
	if !span[0].Before(span[1]) {
		return span, nil, errors.New("start time must be before end time")
	}
	return span, loc, nil
}

// candidates cuts each window into duration-long slots starting every step
// and keeps those that lie inside within. Starts are de-duplicated because
// rules in different zones may produce the same instant.
func (e *Engine) candidates(et domain.EventType, windows []timeutil.Interval, within timeutil.Interval) []timeutil.Interval {
	dur := et.Duration()
	if dur <= 0 {
		return nil
	}
	seen := map[int64]struct{}{}
	var out []timeutil.Interval
	for _, w := range windows {
		for s := w.Start; !s.Add(dur).After(w.End); s = s.Add(e.step) {
			c := timeutil.Interval{Start: s.UTC(), End: s.Add(dur).UTC()}
			if !within.Contains(c) {
				continue
			}
			if _, dup := seen[c.Start.Unix()]; dup {
				continue
			}
			seen[c.Start.Unix()] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
