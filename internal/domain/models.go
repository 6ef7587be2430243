package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LocationKind string

const (
	LocationVideo    LocationKind = "video"
	LocationInPerson LocationKind = "in_person"
	LocationPhone    LocationKind = "phone"
)

type EventType struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	DurationMins      int          `json:"duration_minutes"`
	LocationKind      LocationKind `json:"location_kind"`
	LocationDetail    string       `json:"location_detail,omitempty"`
	Active            bool         `json:"active"`
	MaxBookingsPerDay *int         `json:"max_bookings_per_day,omitempty"`
	BufferBeforeMins  int          `json:"buffer_before_minutes"`
	BufferAfterMins   int          `json:"buffer_after_minutes"`
	MinLeadHours      int          `json:"min_lead_time_hours"`
	MaxAdvanceDays    int          `json:"max_advance_days"`
	CreatedAt         time.Time    `json:"created_at,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at,omitempty"`
}

func (e EventType) Duration() time.Duration {
	return time.Duration(e.DurationMins) * time.Minute
}

func (e EventType) BufferBefore() time.Duration {
	return time.Duration(e.BufferBeforeMins) * time.Minute
}

func (e EventType) BufferAfter() time.Duration {
	return time.Duration(e.BufferAfterMins) * time.Minute
}

// MinLead is the earliest offset from now at which a slot may start.
func (e EventType) MinLead() time.Duration {
	return time.Duration(e.MinLeadHours) * time.Hour
}

// MaxAdvance is zero when the event type sets no booking horizon.
func (e EventType) MaxAdvance() time.Duration {
	return time.Duration(e.MaxAdvanceDays) * 24 * time.Hour
}

func (e EventType) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: event type name is required", ErrInvalidInput)
	}
	if e.DurationMins <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if e.BufferBeforeMins < 0 || e.BufferAfterMins < 0 {
		return fmt.Errorf("%w: buffers must not be negative", ErrInvalidInput)
	}
	if e.MinLeadHours < 0 || e.MaxAdvanceDays < 0 {
		return fmt.Errorf("%w: lead time and advance window must not be negative", ErrInvalidInput)
	}
	if e.MaxBookingsPerDay != nil && *e.MaxBookingsPerDay < 0 {
		return fmt.Errorf("%w: max bookings per day must not be negative", ErrInvalidInput)
	}
	switch e.LocationKind {
	case LocationVideo, LocationInPerson, LocationPhone:
	default:
		return fmt.Errorf("%w: unknown location kind %q", ErrInvalidInput, e.LocationKind)
	}
	return nil
}

type AvailabilityRule struct {
	ID          int64     `json:"id"`
	EventTypeID int64     `json:"event_type_id"`
	DayOfWeek   int       `json:"day_of_week"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Timezone    string    `json:"timezone"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type ExceptionKind string

const (
	ExceptionUnavailable ExceptionKind = "unavailable"
	ExceptionCustomHours ExceptionKind = "custom_hours"
)

type AvailabilityException struct {
	ID          int64         `json:"id"`
	EventTypeID int64         `json:"event_type_id"`
	Date        string        `json:"date"` // YYYY-MM-DD
	Kind        ExceptionKind `json:"kind"`
	StartTime   string        `json:"start_time,omitempty"`
	EndTime     string        `json:"end_time,omitempty"`
	Timezone    string        `json:"timezone,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
}

type BookingStatus string

const (
	BookingConfirmed   BookingStatus = "confirmed"
	BookingCancelled   BookingStatus = "cancelled"
	BookingRescheduled BookingStatus = "rescheduled"
)

// Blocks reports whether a booking in this status occupies its window.
func (s BookingStatus) Blocks() bool {
	return s == BookingConfirmed || s == BookingRescheduled
}

type Booking struct {
	UUID               uuid.UUID     `json:"uuid"`
	EventTypeID        int64         `json:"event_type_id"`
	StartUTC           time.Time     `json:"start_utc"`
	EndUTC             time.Time     `json:"end_utc"`
	Status             BookingStatus `json:"status"`
	TokenVersion       int           `json:"token_version"`
	RescheduleCount    int           `json:"reschedule_count"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	RescheduledAt      *time.Time    `json:"rescheduled_at,omitempty"`
	RemindedAt         *time.Time    `json:"reminded_at,omitempty"`
}

type Invitee struct {
	BookingUUID uuid.UUID `json:"booking_uuid"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Timezone    string    `json:"timezone,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BookingDetail is a booking joined with its invitee and event type.
type BookingDetail struct {
	Booking   Booking
	Invitee   Invitee
	EventType EventType
}
