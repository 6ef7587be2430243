// Package booking implements the booking lifecycle: create, cancel and
// reschedule, each re-validated inside the per-event-type critical section.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-service/internal/domain"
	"booking-service/internal/notify"
	"booking-service/internal/slots"
	"booking-service/internal/store"
	"booking-service/internal/timeutil"
	"booking-service/internal/token"
)

type CreateRequest struct {
	EventTypeID int64     `validate:"required,gt=0"`
	Name        string    `validate:"required,max=200"`
	Email       string    `validate:"required,email,max=320"`
	Start       time.Time `validate:"required"`
	End         time.Time `validate:"required"`
	Timezone    string    `validate:"omitempty,max=64"`
	Notes       string    `validate:"max=2000"`
}

// Result is a booking together with the capability tokens its invitee needs
// to manage it.
type Result struct {
	domain.BookingDetail
	RescheduleToken string
	CancelToken     string
}

type Service struct {
	bookings store.BookingRepository
	engine   *slots.Engine
	codec    *token.Codec
	notifier notify.Notifier
	validate *validator.Validate
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(bookings store.BookingRepository, engine *slots.Engine, codec *token.Codec,
	notifier notify.Notifier, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		bookings: bookings,
		engine:   engine,
		codec:    codec,
		notifier: notifier,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.Named("booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create reserves [req.Start, req.End) for a new invitee. The window is
// checked again under the event type lock, so a stale slot list yields
// ErrSlotUnavailable rather than a double booking.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return Result{}, invalid(err)
	}
	if req.Timezone != "" {
		if _, err := timeutil.LoadZone(req.Timezone); err != nil {
			return Result{}, err
		}
	}

	et, err := s.engine.ActiveEventType(ctx, req.EventTypeID)
	if err != nil {
		return Result{}, s.fail("load event type", err)
	}

	now := s.now()
	b := domain.Booking{
		UUID:         uuid.New(),
		EventTypeID:  et.ID,
		StartUTC:     req.Start.UTC(),
		EndUTC:       req.End.UTC(),
		Status:       domain.BookingConfirmed,
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inv := domain.Invitee{
		BookingUUID: b.UUID,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Timezone:    req.Timezone,
		Notes:       req.Notes,
		CreatedAt:   now,
	}

	err = s.bookings.WithEventTypeLock(ctx, et.ID, func(tx store.BookingTx) error {
		if err := s.admit(ctx, tx, et, b.StartUTC, b.EndUTC, uuid.Nil); err != nil {
			return err
		}
		return tx.Insert(ctx, b, inv)
	})
	if err != nil {
		return Result{}, s.fail("create booking", err)
	}

	res, err := s.withTokens(domain.BookingDetail{Booking: b, Invitee: inv, EventType: et})
	if err != nil {
		return Result{}, s.fail("issue tokens", err)
	}
	s.log.Info("booking created",
		zap.String("booking_uuid", b.UUID.String()),
		zap.Int64("event_type_id", et.ID),
		zap.Time("start_utc", b.StartUTC))

	n := notify.NoticeFor(notify.KindConfirmation, res.BookingDetail)
	n.RescheduleToken, n.CancelToken = res.RescheduleToken, res.CancelToken
	s.send(ctx, n, s.notifier.SendConfirmation)
	return res, nil
}

// Cancel moves a booking to cancelled. Cancelling an already cancelled
// booking succeeds and sends nothing.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, tok, reason string) (domain.BookingDetail, error) {
	grant, err := s.codec.VerifyFor(tok, token.ActionCancel, id)
	if err != nil {
		return domain.BookingDetail{}, err
	}
	current, err := s.bookings.GetDetail(ctx, id)
	if err != nil {
		return domain.BookingDetail{}, s.fail("load booking", err)
	}

	changed := false
	err = s.bookings.WithEventTypeLock(ctx, current.Booking.EventTypeID, func(tx store.BookingTx) error {
		b, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.TokenVersion != grant.Version {
			return fmt.Errorf("%w: token has been superseded", domain.ErrUnauthorized)
		}
		if b.Status == domain.BookingCancelled {
			return nil
		}
		changed = true
		return tx.UpdateStatus(ctx, id, domain.BookingCancelled, strings.TrimSpace(reason), s.now())
	})
	if err != nil {
		return domain.BookingDetail{}, s.fail("cancel booking", err)
	}

	detail, err := s.bookings.GetDetail(ctx, id)
	if err != nil {
		return domain.BookingDetail{}, s.fail("reload booking", err)
	}
	if changed {
		s.log.Info("booking cancelled", zap.String("booking_uuid", id.String()))
		s.send(ctx, notify.NoticeFor(notify.KindCancellation, detail), s.notifier.SendCancellation)
	}
	return detail, nil
}

// Reschedule moves a booking to a new window in place. The token version
// is bumped, so every token issued before the move stops verifying and the
// returned pair replaces them.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, tok string, newStart, newEnd time.Time) (Result, error) {
	grant, err := s.codec.VerifyFor(tok, token.ActionReschedule, id)
	if err != nil {
		return Result{}, err
	}
	if newStart.IsZero() || newEnd.IsZero() {
		return Result{}, fmt.Errorf("%w: newStart and newEnd are required", domain.ErrInvalidInput)
	}
	current, err := s.bookings.GetDetail(ctx, id)
	if err != nil {
		return Result{}, s.fail("load booking", err)
	}
	et, err := s.engine.ActiveEventType(ctx, current.Booking.EventTypeID)
	if err != nil {
		return Result{}, s.fail("load event type", err)
	}

	start, end := newStart.UTC(), newEnd.UTC()
	var moved domain.Booking
	err = s.bookings.WithEventTypeLock(ctx, et.ID, func(tx store.BookingTx) error {
		b, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.TokenVersion != grant.Version {
			return fmt.Errorf("%w: token has been superseded", domain.ErrUnauthorized)
		}
		if !b.Status.Blocks() {
			return fmt.Errorf("%w: booking is %s", domain.ErrUnauthorized, b.Status)
		}
		if err := s.admit(ctx, tx, et, start, end, id); err != nil {
			return err
		}
		moved, err = tx.UpdateWindow(ctx, id, start, end, s.now())
		return err
	})
	if err != nil {
		return Result{}, s.fail("reschedule booking", err)
	}

	res, err := s.withTokens(domain.BookingDetail{Booking: moved, Invitee: current.Invitee, EventType: et})
	if err != nil {
		return Result{}, s.fail("issue tokens", err)
	}
	s.log.Info("booking rescheduled",
		zap.String("booking_uuid", id.String()),
		zap.Time("start_utc", moved.StartUTC),
		zap.Int("reschedule_count", moved.RescheduleCount))

	n := notify.NoticeFor(notify.KindReschedule, res.BookingDetail)
	n.RescheduleToken, n.CancelToken = res.RescheduleToken, res.CancelToken
	s.send(ctx, n, s.notifier.SendReschedule)
	return res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.BookingDetail, error) {
	d, err := s.bookings.GetDetail(ctx, id)
	if err != nil {
		return domain.BookingDetail{}, s.fail("load booking", err)
	}
	return d, nil
}

// admit runs the same checks the slot engine applies, against the state
// visible inside the critical section. exclude keeps a moved booking out of
// its own conflict set and quota.
func (s *Service) admit(ctx context.Context, tx store.BookingTx, et domain.EventType, start, end time.Time, exclude uuid.UUID) error {
	if err := s.engine.CheckWindow(ctx, et, start, end); err != nil {
		return err
	}

	want := timeutil.Interval{Start: start, End: end}
	from := start.Add(-et.BufferBefore())
	to := end.Add(et.BufferAfter())
	existing, err := tx.FindConflicting(ctx, et.ID, from, to, exclude)
	if err != nil {
		return err
	}
	if slots.Conflicts(et, want, existing) {
		return fmt.Errorf("%w: window overlaps an existing booking", domain.ErrSlotUnavailable)
	}

	if et.MaxBookingsPerDay != nil {
		dayStart, dayEnd := s.engine.DayBounds(start)
		n, err := tx.CountForDay(ctx, et.ID, dayStart, dayEnd, exclude)
		if err != nil {
			return err
		}
		if n >= *et.MaxBookingsPerDay {
			return fmt.Errorf("%w: daily limit of %d reached", domain.ErrSlotUnavailable, *et.MaxBookingsPerDay)
		}
	}
	return nil
}

func (s *Service) withTokens(d domain.BookingDetail) (Result, error) {
	resched, err := s.codec.Issue(d.Booking.UUID, token.ActionReschedule, d.Booking.TokenVersion)
	if err != nil {
		return Result{}, err
	}
	cancel, err := s.codec.Issue(d.Booking.UUID, token.ActionCancel, d.Booking.TokenVersion)
	if err != nil {
		return Result{}, err
	}
	return Result{BookingDetail: d, RescheduleToken: resched, CancelToken: cancel}, nil
}

// send never fails the caller: the write is already committed.
func (s *Service) send(ctx context.Context, n notify.Notice, fn func(context.Context, notify.Notice) error) {
	if err := fn(ctx, n); err != nil {
		s.log.Error("notification failed",
			zap.String("kind", string(n.Kind)),
			zap.String("booking_uuid", n.BookingUUID.String()),
			zap.Error(err))
	}
}

var domainErrors = []error{
	domain.ErrInvalidInput,
	domain.ErrEventTypeNotFound,
	domain.ErrBookingNotFound,
	domain.ErrSlotUnavailable,
	domain.ErrUnauthorized,
	domain.ErrInternal,
}

// fail passes domain errors through and turns anything else into
// ErrInternal after logging it.
func (s *Service) fail(op string, err error) error {
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	s.log.Error(op, zap.Error(err))
	return fmt.Errorf("%w: %s", domain.ErrInternal, op)
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, ", "))
}
