package slots_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"booking-service/internal/domain"
	"booking-service/internal/slots"
	"booking-service/internal/store"
	"booking-service/internal/timeutil"
)

// Wednesday; the following Monday is 2026-10-19.
var wednesday = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.Memory
	engine *slots.Engine
	et     domain.EventType
}

func newFixture(t *testing.T, now time.Time, et domain.EventType) *fixture {
	t.Helper()
	mem := store.NewMemory()
	if et.Name == "" {
		et.Name = "30-min call"
	}
	if et.DurationMins == 0 {
		et.DurationMins = 30
	}
	if et.LocationKind == "" {
		et.LocationKind = domain.LocationVideo
	}
	if et.MaxAdvanceDays == 0 {
		et.MaxAdvanceDays = 60
	}
	et.Active = true
	require.NoError(t, mem.CreateEventType(context.Background(), &et))

	engine := slots.New(mem, mem, mem, time.UTC, zap.NewNop(), slots.WithClock(func() time.Time { return now }))
	return &fixture{store: mem, engine: engine, et: et}
}

func (f *fixture) rule(t *testing.T, dow int, start, end, tz string) {
	t.Helper()
	require.NoError(t, f.store.InsertRule(context.Background(), &domain.AvailabilityRule{
		EventTypeID: f.et.ID, DayOfWeek: dow, StartTime: start, EndTime: end, Timezone: tz, Active: true,
	}))
}

func (f *fixture) exception(t *testing.T, ex domain.AvailabilityException) {
	t.Helper()
	ex.EventTypeID = f.et.ID
	require.NoError(t, f.store.InsertException(context.Background(), &ex))
}

func (f *fixture) book(t *testing.T, start, end time.Time) {
	t.Helper()
	err := f.store.WithEventTypeLock(context.Background(), f.et.ID, func(tx store.BookingTx) error {
		id := uuid.New()
		return tx.Insert(context.Background(), domain.Booking{
			UUID: id, EventTypeID: f.et.ID, StartUTC: start, EndUTC: end,
			Status: domain.BookingConfirmed, TokenVersion: 1,
		}, domain.Invitee{BookingUUID: id, Name: "Existing", Email: "existing@example.com"})
	})
	require.NoError(t, err)
}

func (f *fixture) compute(t *testing.T, from, to time.Time, tz string) []slots.Slot {
	t.Helper()
	out, err := f.engine.Compute(context.Background(), f.et.ID, from, to, tz)
	require.NoError(t, err)
	return out
}

func utc(month time.Month, day, hour, min int) time.Time {
	return time.Date(2026, month, day, hour, min, 0, 0, time.UTC)
}

func starts(in []slots.Slot) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, s.StartUTC.Format("15:04"))
	}
	return out
}

func TestComputeWeeklyRule(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")

	assert.Equal(t, []string{
		"09:00", "09:15", "09:30", "09:45", "10:00", "10:15",
		"10:30", "10:45", "11:00", "11:15", "11:30",
	}, starts(got))
	for _, s := range got {
		assert.Equal(t, 30*time.Minute, s.EndUTC.Sub(s.StartUTC))
		assert.False(t, s.EndUTC.After(utc(10, 19, 12, 0)))
	}
}

func TestComputeBuffersExcludeNeighbours(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{BufferBeforeMins: 15, BufferAfterMins: 15})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")
	f.book(t, utc(10, 19, 10, 0), utc(10, 19, 10, 30))

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")

	assert.Equal(t, []string{"09:00", "09:15", "10:45", "11:00", "11:15", "11:30"}, starts(got))
	for _, s := range got {
		assert.False(t, timeutil.Overlaps(s.StartUTC, s.EndUTC, utc(10, 19, 9, 45), utc(10, 19, 10, 45)))
	}
}

func TestCancelledBookingsDoNotBlock(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "10:00", "UTC")
	f.book(t, utc(10, 19, 9, 0), utc(10, 19, 9, 30))

	var id uuid.UUID
	bookings, err := f.store.ListActive(context.Background(), f.et.ID, utc(10, 19, 0, 0), utc(10, 20, 0, 0))
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	id = bookings[0].UUID
	require.NoError(t, f.store.WithEventTypeLock(context.Background(), f.et.ID, func(tx store.BookingTx) error {
		return tx.UpdateStatus(context.Background(), id, domain.BookingCancelled, "", wednesday)
	}))

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")
	assert.Equal(t, []string{"09:00", "09:15", "09:30"}, starts(got))
}

func TestUnavailableExceptionClosesDate(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")
	f.rule(t, int(time.Monday), "14:00", "16:00", "UTC")
	f.exception(t, domain.AvailabilityException{Date: "2026-10-19", Kind: domain.ExceptionUnavailable, Reason: "holiday"})

	assert.Empty(t, f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC"))

	// The following Monday is untouched.
	assert.NotEmpty(t, f.compute(t, utc(10, 26, 0, 0), utc(10, 26, 23, 59), "UTC"))
}

func TestCustomHoursReplaceRules(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")
	f.exception(t, domain.AvailabilityException{
		Date: "2026-10-19", Kind: domain.ExceptionCustomHours, StartTime: "14:00", EndTime: "15:00", Timezone: "UTC",
	})

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")
	assert.Equal(t, []string{"14:00", "14:15", "14:30"}, starts(got))
}

func TestOverlappingRulesAreMerged(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "11:00", "UTC")
	f.rule(t, int(time.Monday), "10:00", "12:00", "UTC")

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")
	assert.Len(t, got, 11)
	assert.Equal(t, "10:30", starts(got)[6])
}

func TestAdjacentRulesFormOneWindow(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "10:00", "UTC")
	f.rule(t, int(time.Monday), "10:00", "11:00", "UTC")

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")
	assert.Contains(t, starts(got), "09:45")
}

func TestMaxBookingsPerDay(t *testing.T) {
	one := 1
	f := newFixture(t, wednesday, domain.EventType{MaxBookingsPerDay: &one})
	f.rule(t, int(time.Monday), "09:00", "17:00", "UTC")
	f.book(t, utc(10, 19, 16, 0), utc(10, 19, 16, 30))

	assert.Empty(t, f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC"))
	assert.NotEmpty(t, f.compute(t, utc(10, 26, 0, 0), utc(10, 26, 23, 59), "UTC"))
}

func TestLeadTimeAndAdvanceWindow(t *testing.T) {
	monday := utc(10, 19, 10, 5)
	f := newFixture(t, monday, domain.EventType{MaxAdvanceDays: 7})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "UTC")
	assert.Equal(t, []string{"10:15", "10:30", "10:45", "11:00", "11:15", "11:30"}, starts(got))

	// Beyond the advance window the range clamps to nothing.
	got = f.compute(t, utc(11, 2, 0, 0), utc(11, 2, 23, 59), "UTC")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	withLead := newFixture(t, monday, domain.EventType{MinLeadHours: 48})
	withLead.rule(t, int(time.Monday), "09:00", "12:00", "UTC")
	assert.Empty(t, withLead.compute(t, utc(10, 19, 0, 0), utc(10, 20, 23, 59), "UTC"))
}

func TestViewerZoneRoundTrip(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")

	got := f.compute(t, utc(10, 19, 0, 0), utc(10, 19, 23, 59), "Asia/Kolkata")
	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, "Asia/Kolkata", s.Start.Location().String())
		assert.True(t, s.Start.UTC().Equal(s.StartUTC))
		assert.True(t, s.End.UTC().Equal(s.EndUTC))
	}
	assert.Equal(t, "14:30", got[0].Start.Format("15:04"))
}

func TestRuleZoneFollowsDST(t *testing.T) {
	f := newFixture(t, utc(2, 25, 12, 0), domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "09:30", "America/New_York")

	got := f.compute(t, utc(3, 1, 0, 0), utc(3, 10, 0, 0), "UTC")
	require.Len(t, got, 2)
	assert.Equal(t, utc(3, 2, 14, 0), got[0].StartUTC)
	assert.Equal(t, utc(3, 9, 13, 0), got[1].StartUTC)
}

func TestComputeInvalidInput(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	ctx := context.Background()

	_, err := f.engine.Compute(ctx, f.et.ID, utc(10, 19, 0, 0), utc(10, 20, 0, 0), "Nowhere/Special")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = f.engine.Compute(ctx, f.et.ID, utc(10, 20, 0, 0), utc(10, 19, 0, 0), "UTC")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = f.engine.Compute(ctx, 999, utc(10, 19, 0, 0), utc(10, 20, 0, 0), "UTC")
	assert.True(t, errors.Is(err, domain.ErrEventTypeNotFound))

	inactive := domain.EventType{Name: "off", DurationMins: 30, LocationKind: domain.LocationPhone}
	require.NoError(t, f.store.CreateEventType(ctx, &inactive))
	_, err = f.engine.Compute(ctx, inactive.ID, utc(10, 19, 0, 0), utc(10, 20, 0, 0), "UTC")
	assert.True(t, errors.Is(err, domain.ErrEventTypeNotFound))
}

func TestCheckWindow(t *testing.T) {
	f := newFixture(t, wednesday, domain.EventType{})
	f.rule(t, int(time.Monday), "09:00", "12:00", "UTC")
	ctx := context.Background()

	assert.NoError(t, f.engine.CheckWindow(ctx, f.et, utc(10, 19, 9, 15), utc(10, 19, 9, 45)))

	err := f.engine.CheckWindow(ctx, f.et, utc(10, 19, 9, 10), utc(10, 19, 9, 40))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable), "misaligned start")

	err = f.engine.CheckWindow(ctx, f.et, utc(10, 19, 11, 45), utc(10, 19, 12, 15))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable), "runs past the window")

	err = f.engine.CheckWindow(ctx, f.et, utc(10, 19, 9, 0), utc(10, 19, 10, 0))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "wrong duration")

	err = f.engine.CheckWindow(ctx, f.et, utc(10, 12, 9, 0), utc(10, 12, 9, 30))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable), "in the past")
}

func TestSlotsNeverOverlapBufferedBookings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	zones := []string{"UTC", "Europe/Berlin", "America/New_York", "Asia/Tokyo"}

	for i := 0; i < 25; i++ {
		t.Run(fmt.Sprintf("fixture-%d", i), func(t *testing.T) {
			et := domain.EventType{
				DurationMins:     15 * (1 + rng.Intn(4)),
				BufferBeforeMins: 5 * rng.Intn(4),
				BufferAfterMins:  5 * rng.Intn(4),
			}
			f := newFixture(t, wednesday, et)

			for r := 0; r < 1+rng.Intn(4); r++ {
				startH := 6 + rng.Intn(8)
				endH := startH + 1 + rng.Intn(5)
				f.rule(t, rng.Intn(7), fmt.Sprintf("%02d:00", startH), fmt.Sprintf("%02d:30", endH), zones[rng.Intn(len(zones))])
			}
			if rng.Intn(2) == 0 {
				f.exception(t, domain.AvailabilityException{
					Date: fmt.Sprintf("2026-10-%02d", 19+rng.Intn(7)), Kind: domain.ExceptionUnavailable,
				})
			}

			var booked []timeutil.Interval
			for b := 0; b < rng.Intn(6); b++ {
				start := utc(10, 19+rng.Intn(7), 6+rng.Intn(12), 15*rng.Intn(4))
				end := start.Add(time.Duration(f.et.DurationMins) * time.Minute)
				f.book(t, start, end)
				booked = append(booked, timeutil.Interval{Start: start, End: end})
			}

			got := f.compute(t, utc(10, 19, 0, 0), utc(10, 26, 0, 0), zones[rng.Intn(len(zones))])
			for i, s := range got {
				assert.Equal(t, f.et.Duration(), s.EndUTC.Sub(s.StartUTC))
				if i > 0 {
					assert.True(t, got[i-1].StartUTC.Before(s.StartUTC))
				}
				for _, b := range booked {
					assert.False(t, timeutil.Overlaps(
						s.StartUTC.Add(-f.et.BufferBefore()), s.EndUTC.Add(f.et.BufferAfter()), b.Start, b.End),
						"slot %s conflicts with booking %s", s.StartUTC, b.Start)
				}
			}
		})
	}
}
