package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"booking-service/internal/domain"
	"booking-service/internal/store"
)

var fixedNow = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func sampleNotice() Notice {
	return Notice{
		BookingUUID:  uuid.MustParse("6f1c9a9e-4a51-4c55-9a59-2b9f0a3f7e10"),
		EventType:    "30-min call",
		StartUTC:     time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		EndUTC:       time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		InviteeName:  "Ada",
		InviteeEmail: "ada@example.com",
		CancelToken:  "cancel-token",
	}
}

func TestRedisPublisherPublishesEnvelope(t *testing.T) {
	client, rmock := redismock.NewClientMock()
	p := NewRedisPublisher(client, "")
	p.newID = func() string { return "evt-1" }
	p.now = func() time.Time { return fixedNow }

	n := sampleNotice()
	expected := n
	expected.Kind = KindConfirmation
	want, err := json.Marshal(Envelope{ID: "evt-1", Type: KindConfirmation, Timestamp: fixedNow, Payload: expected})
	require.NoError(t, err)

	rmock.ExpectPublish(DefaultChannel, string(want)).SetVal(1)

	require.NoError(t, p.SendConfirmation(context.Background(), n))
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestRedisPublisherSurfacesErrors(t *testing.T) {
	client, rmock := redismock.NewClientMock()
	p := NewRedisPublisher(client, "bookings")
	p.newID = func() string { return "evt-2" }
	p.now = func() time.Time { return fixedNow }

	n := sampleNotice()
	n.Kind = KindCancellation
	want, err := json.Marshal(Envelope{ID: "evt-2", Type: KindCancellation, Timestamp: fixedNow, Payload: n})
	require.NoError(t, err)

	rmock.ExpectPublish("bookings", string(want)).SetErr(errors.New("connection refused"))

	err = p.SendCancellation(context.Background(), sampleNotice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish booking_cancelled")
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
	fail    bool
}

func (r *recorder) record(n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("smtp down")
	}
	r.notices = append(r.notices, n)
	return nil
}

func (r *recorder) SendConfirmation(_ context.Context, n Notice) error { return r.record(n) }
func (r *recorder) SendReschedule(_ context.Context, n Notice) error   { return r.record(n) }
func (r *recorder) SendCancellation(_ context.Context, n Notice) error { return r.record(n) }
func (r *recorder) SendReminder(_ context.Context, n Notice) error     { return r.record(n) }

func seedBooking(t *testing.T, mem *store.Memory, etID int64, start time.Time, status domain.BookingStatus) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := mem.WithEventTypeLock(context.Background(), etID, func(tx store.BookingTx) error {
		return tx.Insert(context.Background(), domain.Booking{
			UUID: id, EventTypeID: etID, StartUTC: start, EndUTC: start.Add(30 * time.Minute),
			Status: status, TokenVersion: 1,
		}, domain.Invitee{BookingUUID: id, Name: "Grace", Email: "grace@example.com", Timezone: "Europe/Berlin"})
	})
	require.NoError(t, err)
	return id
}

func TestReminderJobSendsOncePerBooking(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	et := domain.EventType{Name: "Intro", DurationMins: 30, LocationKind: domain.LocationVideo, Active: true}
	require.NoError(t, mem.CreateEventType(ctx, &et))

	soon := seedBooking(t, mem, et.ID, fixedNow.Add(3*time.Hour), domain.BookingConfirmed)
	seedBooking(t, mem, et.ID, fixedNow.Add(48*time.Hour), domain.BookingConfirmed)
	seedBooking(t, mem, et.ID, fixedNow.Add(2*time.Hour), domain.BookingCancelled)

	rec := &recorder{}
	job := NewReminderJob(mem, rec, 24*time.Hour, zap.NewNop())
	job.now = func() time.Time { return fixedNow }

	n, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.notices, 1)
	assert.Equal(t, soon, rec.notices[0].BookingUUID)
	assert.Equal(t, KindReminder, rec.notices[0].Kind)
	assert.Equal(t, "Intro", rec.notices[0].EventType)
	assert.Empty(t, rec.notices[0].CancelToken)

	n, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReminderJobRetriesFailedSends(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	et := domain.EventType{Name: "Intro", DurationMins: 30, LocationKind: domain.LocationVideo, Active: true}
	require.NoError(t, mem.CreateEventType(ctx, &et))
	seedBooking(t, mem, et.ID, fixedNow.Add(time.Hour), domain.BookingConfirmed)

	rec := &recorder{fail: true}
	job := NewReminderJob(mem, rec, 24*time.Hour, zap.NewNop())
	job.now = func() time.Time { return fixedNow }

	n, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec.fail = false
	n, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	job := NewReminderJob(store.NewMemory(), &recorder{}, time.Hour, zap.NewNop())
	_, err := job.Schedule("every now and then")
	assert.Error(t, err)

	c, err := job.Schedule("*/10 * * * *")
	require.NoError(t, err)
	c.Stop()
}
