// Package store defines the persistence ports of the booking engine and
// provides a PostgreSQL and an in-memory implementation.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"booking-service/internal/domain"
	"booking-service/internal/timeutil"
)

type EventTypeStore interface {
	GetEventType(ctx context.Context, id int64) (domain.EventType, error)
	ListEventTypes(ctx context.Context, activeOnly bool) ([]domain.EventType, error)
	CreateEventType(ctx context.Context, et *domain.EventType) error
}

// RuleStore gives access to weekly rules and date exceptions. The slot
// engine only reads; the admin surface writes.
type RuleStore interface {
	GetRules(ctx context.Context, eventTypeID int64) ([]domain.AvailabilityRule, error)
	GetExceptions(ctx context.Context, eventTypeID int64, from, to timeutil.Date) ([]domain.AvailabilityException, error)
	InsertRule(ctx context.Context, r *domain.AvailabilityRule) error
	InsertException(ctx context.Context, ex *domain.AvailabilityException) error
}

// BookingReader lists bookings that occupy their window (confirmed or
// rescheduled) and overlap [from, to).
type BookingReader interface {
	ListActive(ctx context.Context, eventTypeID int64, from, to time.Time) ([]domain.Booking, error)
}

// BookingTx is the set of operations allowed inside the per-event-type
// critical section. exclude may be uuid.Nil.
type BookingTx interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	FindConflicting(ctx context.Context, eventTypeID int64, from, to time.Time, exclude uuid.UUID) ([]domain.Booking, error)
	CountForDay(ctx context.Context, eventTypeID int64, dayStart, dayEnd time.Time, exclude uuid.UUID) (int, error)
	Insert(ctx context.Context, b domain.Booking, inv domain.Invitee) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, reason string, at time.Time) error
	UpdateWindow(ctx context.Context, id uuid.UUID, start, end, at time.Time) (domain.Booking, error)
}

type BookingRepository interface {
	BookingReader
	GetDetail(ctx context.Context, id uuid.UUID) (domain.BookingDetail, error)
	// WithEventTypeLock runs fn serialized against every other call for the
	// same event type. Writes made through tx are committed only when fn
	// returns nil.
	WithEventTypeLock(ctx context.Context, eventTypeID int64, fn func(tx BookingTx) error) error
	ListBookings(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	ListDueReminders(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Store interface {
	EventTypeStore
	RuleStore
	BookingRepository
	Close()
}
