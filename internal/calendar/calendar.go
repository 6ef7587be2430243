// Package calendar renders bookings for the invitee's own calendar: an
// RFC 5545 object and a Google Calendar template link.
package calendar

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"booking-service/internal/domain"
)

const productID = "-//booking-service//bookings//EN"

const googleTemplateURL = "https://calendar.google.com/calendar/render"

// googleStamp is the basic UTC form the template link expects.
const googleStamp = "20060102T150405Z"

// BuildICS serializes one booking as a VCALENDAR with a single VEVENT. The
// event UID is stable across reschedules; SEQUENCE follows the reschedule
// count so calendar clients replace the earlier copy.
func BuildICS(d domain.BookingDetail, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	ev := cal.AddEvent(UID(d.Booking))
	ev.SetDtStampTime(stamp.UTC())
	ev.SetCreatedTime(d.Booking.CreatedAt.UTC())
	ev.SetModifiedAt(d.Booking.UpdatedAt.UTC())
	ev.SetStartAt(d.Booking.StartUTC)
	ev.SetEndAt(d.Booking.EndUTC)
	ev.SetSummary(Title(d))
	if desc := description(d); desc != "" {
		ev.SetDescription(desc)
	}
	if loc := Location(d.EventType); loc != "" {
		ev.SetLocation(loc)
	}
	ev.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(d.Booking.RescheduleCount))
	if d.Booking.Status == domain.BookingCancelled {
		ev.SetProperty(ical.ComponentPropertyStatus, "CANCELLED")
	} else {
		ev.SetProperty(ical.ComponentPropertyStatus, "CONFIRMED")
	}
	if d.Invitee.Email != "" {
		ev.AddAttendee("mailto:"+d.Invitee.Email,
			ical.CalendarUserTypeIndividual,
			ical.ParticipationStatusAccepted,
			ical.WithCN(d.Invitee.Name))
	}
	return cal.Serialize()
}

// GoogleURL returns a link that opens a pre-filled Google Calendar event.
func GoogleURL(d domain.BookingDetail) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", Title(d))
	q.Set("dates", d.Booking.StartUTC.UTC().Format(googleStamp)+"/"+d.Booking.EndUTC.UTC().Format(googleStamp))
	if desc := description(d); desc != "" {
		q.Set("details", desc)
	}
	if loc := Location(d.EventType); loc != "" {
		q.Set("location", loc)
	}
	return googleTemplateURL + "?" + q.Encode()
}

// ICSURL is where the public API serves the booking's calendar object.
func ICSURL(baseURL string, d domain.BookingDetail) string {
	return strings.TrimRight(baseURL, "/") + "/booking/" + d.Booking.UUID.String() + "/calendar.ics"
}

func UID(b domain.Booking) string {
	return b.UUID.String() + "@booking-service"
}

func Title(d domain.BookingDetail) string {
	if d.Invitee.Name == "" {
		return d.EventType.Name
	}
	return fmt.Sprintf("%s with %s", d.EventType.Name, d.Invitee.Name)
}

func Location(et domain.EventType) string {
	switch {
	case et.LocationDetail != "":
		return et.LocationDetail
	case et.LocationKind == domain.LocationVideo:
		return "Video call"
	case et.LocationKind == domain.LocationPhone:
		return "Phone call"
	default:
		return ""
	}
}

func description(d domain.BookingDetail) string {
	var parts []string
	if d.EventType.Description != "" {
		parts = append(parts, d.EventType.Description)
	}
	if d.Invitee.Notes != "" {
		parts = append(parts, "Notes: "+d.Invitee.Notes)
	}
	return strings.Join(parts, "\n\n")
}
