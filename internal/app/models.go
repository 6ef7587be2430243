package app

import (
	"time"

	"github.com/google/uuid"

	"booking-service/internal/booking"
	"booking-service/internal/calendar"
	"booking-service/internal/domain"
	"booking-service/internal/slots"
	"booking-service/internal/timeutil"
)

type bookReq struct {
	EventTypeID int64     `json:"eventTypeId" binding:"required,gt=0"`
	Name        string    `json:"name" binding:"required"`
	Email       string    `json:"email" binding:"required,email"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required"`
	Timezone    string    `json:"timezone,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type rescheduleReq struct {
	BookingID string    `json:"bookingId" binding:"required"`
	Token     string    `json:"token" binding:"required"`
	NewStart  time.Time `json:"newStart" binding:"required"`
	NewEnd    time.Time `json:"newEnd" binding:"required"`
}

type cancelReq struct {
	BookingID string `json:"bookingId" binding:"required"`
	Token     string `json:"token" binding:"required"`
	Reason    string `json:"reason,omitempty"`
}

type eventTypeView struct {
	ID                int64               `json:"id"`
	Name              string              `json:"name"`
	Description       string              `json:"description,omitempty"`
	DurationMinutes   int                 `json:"durationMinutes"`
	LocationKind      domain.LocationKind `json:"locationKind"`
	LocationDetail    string              `json:"locationDetail,omitempty"`
	BufferBefore      int                 `json:"bufferBeforeMinutes"`
	BufferAfter       int                 `json:"bufferAfterMinutes"`
	MinLeadHours      int                 `json:"minLeadTimeHours"`
	MaxAdvanceDays    int                 `json:"maxAdvanceDays"`
	MaxBookingsPerDay *int                `json:"maxBookingsPerDay,omitempty"`
}

func newEventTypeView(et domain.EventType) eventTypeView {
	return eventTypeView{
		ID:                et.ID,
		Name:              et.Name,
		Description:       et.Description,
		DurationMinutes:   et.DurationMins,
		LocationKind:      et.LocationKind,
		LocationDetail:    et.LocationDetail,
		BufferBefore:      et.BufferBeforeMins,
		BufferAfter:       et.BufferAfterMins,
		MinLeadHours:      et.MinLeadHours,
		MaxAdvanceDays:    et.MaxAdvanceDays,
		MaxBookingsPerDay: et.MaxBookingsPerDay,
	}
}

type availabilityResp struct {
	EventType      eventTypeView `json:"eventType"`
	AvailableSlots []slots.Slot  `json:"availableSlots"`
	Timezone       string        `json:"timezone"`
}

type inviteeView struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// bookingView is returned to the invitee right after create and reschedule,
// the only moments the tokens are handed out.
type bookingView struct {
	UUID              uuid.UUID            `json:"uuid"`
	Status            domain.BookingStatus `json:"status"`
	EventType         eventTypeView        `json:"eventType"`
	Start             time.Time            `json:"start"`
	End               time.Time            `json:"end"`
	Invitee           inviteeView          `json:"invitee"`
	ICSURL            string               `json:"icsUrl"`
	GoogleCalendarURL string               `json:"googleCalendarUrl"`
	RescheduleToken   string               `json:"rescheduleToken"`
	CancelToken       string               `json:"cancelToken"`
}

func newBookingView(res booking.Result, baseURL string) bookingView {
	d := res.BookingDetail
	return bookingView{
		UUID:      d.Booking.UUID,
		Status:    d.Booking.Status,
		EventType: newEventTypeView(d.EventType),
		Start:     d.Booking.StartUTC,
		End:       d.Booking.EndUTC,
		Invitee: inviteeView{
			Name:     d.Invitee.Name,
			Email:    d.Invitee.Email,
			Timezone: d.Invitee.Timezone,
		},
		ICSURL:            calendar.ICSURL(baseURL, d),
		GoogleCalendarURL: calendar.GoogleURL(d),
		RescheduleToken:   res.RescheduleToken,
		CancelToken:       res.CancelToken,
	}
}

// publicBookingView never carries the invitee's email.
type publicBookingView struct {
	UUID            uuid.UUID            `json:"uuid"`
	Status          domain.BookingStatus `json:"status"`
	EventType       eventTypeView        `json:"eventType"`
	Start           time.Time            `json:"start"`
	End             time.Time            `json:"end"`
	LocalStart      time.Time            `json:"localStart"`
	LocalEnd        time.Time            `json:"localEnd"`
	Timezone        string               `json:"timezone"`
	Invitee         inviteeView          `json:"invitee"`
	RescheduleCount int                  `json:"rescheduleCount"`
	CancelledAt     *time.Time           `json:"cancelledAt,omitempty"`
}

func newPublicBookingView(d domain.BookingDetail, owner *time.Location) publicBookingView {
	loc, err := timeutil.ZoneOr(d.Invitee.Timezone, owner)
	if err != nil {
		loc = owner
	}
	return publicBookingView{
		UUID:            d.Booking.UUID,
		Status:          d.Booking.Status,
		EventType:       newEventTypeView(d.EventType),
		Start:           d.Booking.StartUTC,
		End:             d.Booking.EndUTC,
		LocalStart:      d.Booking.StartUTC.In(loc),
		LocalEnd:        d.Booking.EndUTC.In(loc),
		Timezone:        loc.String(),
		Invitee:         inviteeView{Name: d.Invitee.Name, Timezone: d.Invitee.Timezone},
		RescheduleCount: d.Booking.RescheduleCount,
		CancelledAt:     d.Booking.CancelledAt,
	}
}

type errorResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ruleReq struct {
	DayOfWeek *int   `json:"day_of_week" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Timezone  string `json:"timezone" binding:"required"`
	Active    *bool  `json:"active"`
}

type exceptionReq struct {
	Date      string               `json:"date" binding:"required"`
	Kind      domain.ExceptionKind `json:"kind" binding:"required"`
	StartTime string               `json:"start_time,omitempty"`
	EndTime   string               `json:"end_time,omitempty"`
	Timezone  string               `json:"timezone,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}
