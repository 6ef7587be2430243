// Package notify hands booking lifecycle events to the outside world.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-service/internal/domain"
)

type Kind string

const (
	KindConfirmation Kind = "booking_confirmed"
	KindReschedule   Kind = "booking_rescheduled"
	KindCancellation Kind = "booking_cancelled"
	KindReminder     Kind = "booking_reminder"
)

type Notice struct {
	Kind            Kind      `json:"kind"`
	BookingUUID     uuid.UUID `json:"booking_uuid"`
	EventType       string    `json:"event_type"`
	StartUTC        time.Time `json:"start_utc"`
	EndUTC          time.Time `json:"end_utc"`
	InviteeName     string    `json:"invitee_name"`
	InviteeEmail    string    `json:"invitee_email"`
	InviteeTimezone string    `json:"invitee_timezone,omitempty"`
	RescheduleToken string    `json:"reschedule_token,omitempty"`
	CancelToken     string    `json:"cancel_token,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// NoticeFor builds a notice without tokens; callers add them when the
// recipient should receive fresh ones.
func NoticeFor(kind Kind, d domain.BookingDetail) Notice {
	return Notice{
		Kind:            kind,
		BookingUUID:     d.Booking.UUID,
		EventType:       d.EventType.Name,
		StartUTC:        d.Booking.StartUTC,
		EndUTC:          d.Booking.EndUTC,
		InviteeName:     d.Invitee.Name,
		InviteeEmail:    d.Invitee.Email,
		InviteeTimezone: d.Invitee.Timezone,
		Reason:          d.Booking.CancellationReason,
	}
}

type Notifier interface {
	SendConfirmation(ctx context.Context, n Notice) error
	SendReschedule(ctx context.Context, n Notice) error
	SendCancellation(ctx context.Context, n Notice) error
	SendReminder(ctx context.Context, n Notice) error
}

// LogNotifier only logs. It is the fallback when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (l *LogNotifier) emit(n Notice) error {
	l.log.Info("booking notification",
		zap.String("kind", string(n.Kind)),
		zap.String("booking_uuid", n.BookingUUID.String()),
		zap.String("event_type", n.EventType),
		zap.Time("start_utc", n.StartUTC))
	return nil
}

func (l *LogNotifier) SendConfirmation(_ context.Context, n Notice) error { return l.emit(n) }
func (l *LogNotifier) SendReschedule(_ context.Context, n Notice) error   { return l.emit(n) }
func (l *LogNotifier) SendCancellation(_ context.Context, n Notice) error { return l.emit(n) }
func (l *LogNotifier) SendReminder(_ context.Context, n Notice) error     { return l.emit(n) }
