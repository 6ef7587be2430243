package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booking-service/internal/booking"
	"booking-service/internal/calendar"
)

// GET /health
func (a *App) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /availability?eventTypeId=&start=ISO&end=ISO&timezone=
func (a *App) AvailabilityHandler(c *gin.Context) {
	var q struct {
		EventTypeID int64  `form:"eventTypeId" binding:"required,gt=0"`
		Start       string `form:"start" binding:"required"`
		End         string `form:"end" binding:"required"`
		Timezone    string `form:"timezone"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		a.badRequest(c, "eventTypeId, start and end are required")
		return
	}
	start, err := time.Parse(time.RFC3339, q.Start)
	if err != nil {
		a.badRequest(c, "invalid start")
		return
	}
	end, err := time.Parse(time.RFC3339, q.End)
	if err != nil {
		a.badRequest(c, "invalid end")
		return
	}
	if end.Before(start) {
		a.badRequest(c, "start must not be after end")
		return
	}
	maxRange := time.Duration(a.Config.Slots.MaxRangeDays) * 24 * time.Hour
	if end.Sub(start) > maxRange {
		a.badRequest(c, fmt.Sprintf("range must not exceed %d days", a.Config.Slots.MaxRangeDays))
		return
	}
	tz := q.Timezone
	if tz == "" {
		tz = a.Slots.Owner().String()
	}

	ctx := c.Request.Context()
	et, err := a.Slots.ActiveEventType(ctx, q.EventTypeID)
	if err != nil {
		a.fail(c, err)
		return
	}
	out, err := a.Slots.Compute(ctx, et.ID, start, end, tz)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResp{
		EventType:      newEventTypeView(et),
		AvailableSlots: out,
		Timezone:       tz,
	})
}

// GET /event-types
func (a *App) ListEventTypesHandler(c *gin.Context) {
	ets, err := a.Store.ListEventTypes(c.Request.Context(), true)
	if err != nil {
		a.fail(c, err)
		return
	}
	views := make([]eventTypeView, 0, len(ets))
	for _, et := range ets {
		views = append(views, newEventTypeView(et))
	}
	c.JSON(http.StatusOK, gin.H{"eventTypes": views})
}

// POST /book
func (a *App) BookHandler(c *gin.Context) {
	var req bookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err.Error())
		return
	}

	res, err := a.Bookings.Create(c.Request.Context(), booking.CreateRequest{
		EventTypeID: req.EventTypeID,
		Name:        req.Name,
		Email:       req.Email,
		Start:       req.Start,
		End:         req.End,
		Timezone:    req.Timezone,
		Notes:       req.Notes,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "booking": newBookingView(res, a.Config.PublicBaseURL)})
}

// POST /reschedule
func (a *App) RescheduleHandler(c *gin.Context) {
	var req rescheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		a.badRequest(c, "invalid bookingId")
		return
	}

	res, err := a.Bookings.Reschedule(c.Request.Context(), id, req.Token, req.NewStart, req.NewEnd)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": newBookingView(res, a.Config.PublicBaseURL)})
}

// POST /cancel
func (a *App) CancelHandler(c *gin.Context) {
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err.Error())
		return
	}
	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		a.badRequest(c, "invalid bookingId")
		return
	}

	d, err := a.Bookings.Cancel(c.Request.Context(), id, req.Token, req.Reason)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": newPublicBookingView(d, a.Slots.Owner())})
}

// GET /booking/:uuid
func (a *App) GetBookingHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		a.badRequest(c, "invalid booking uuid")
		return
	}
	d, err := a.Bookings.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPublicBookingView(d, a.Slots.Owner()))
}

// GET /booking/:uuid/calendar.ics
func (a *App) BookingICSHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		a.badRequest(c, "invalid booking uuid")
		return
	}
	d, err := a.Bookings.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="booking-`+id.String()+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(calendar.BuildICS(d, time.Now())))
}
