package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"booking-service/internal/domain"
	"booking-service/internal/timeutil"
)

// POST /admin/event-types
func (a *App) CreateEventTypeHandler(c *gin.Context) {
	var et domain.EventType
	if err := c.ShouldBindJSON(&et); err != nil {
		a.badRequest(c, err.Error())
		return
	}
	et.ID = 0
	et.Name = strings.TrimSpace(et.Name)
	if err := et.Validate(); err != nil {
		a.fail(c, err)
		return
	}
	if err := a.Store.CreateEventType(c.Request.Context(), &et); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, et)
}

// GET /admin/event-types
func (a *App) ListAllEventTypesHandler(c *gin.Context) {
	ets, err := a.Store.ListEventTypes(c.Request.Context(), false)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ets)
}

// POST /admin/event-types/:id/rules
func (a *App) CreateRuleHandler(c *gin.Context) {
	etID, ok := a.eventTypeParam(c)
	if !ok {
		return
	}
	var req ruleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err.Error())
		return
	}
	r := domain.AvailabilityRule{
		EventTypeID: etID,
		DayOfWeek:   *req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Timezone:    req.Timezone,
		Active:      req.Active == nil || *req.Active,
	}
	if err := validateRule(r); err != nil {
		a.fail(c, err)
		return
	}
	if err := a.Store.InsertRule(c.Request.Context(), &r); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GET /admin/event-types/:id/rules
func (a *App) ListRulesHandler(c *gin.Context) {
	etID, ok := a.eventTypeParam(c)
	if !ok {
		return
	}
	rules, err := a.Store.GetRules(c.Request.Context(), etID)
	if err != nil {
		a.fail(c, err)
		return
	}
	if rules == nil {
		rules = []domain.AvailabilityRule{}
	}
	c.JSON(http.StatusOK, rules)
}

// POST /admin/event-types/:id/exceptions
func (a *App) CreateExceptionHandler(c *gin.Context) {
	etID, ok := a.eventTypeParam(c)
	if !ok {
		return
	}
	var req exceptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err.Error())
		return
	}
	ex := domain.AvailabilityException{
		EventTypeID: etID,
		Date:        req.Date,
		Kind:        req.Kind,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Timezone:    req.Timezone,
		Reason:      req.Reason,
	}
	if err := validateException(ex); err != nil {
		a.fail(c, err)
		return
	}
	if err := a.Store.InsertException(c.Request.Context(), &ex); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ex)
}

// GET /admin/event-types/:id/exceptions?from=YYYY-MM-DD&to=YYYY-MM-DD
// Defaults to the next 365 days in the owner zone.
func (a *App) ListExceptionsHandler(c *gin.Context) {
	etID, ok := a.eventTypeParam(c)
	if !ok {
		return
	}
	from := timeutil.DateOf(time.Now(), a.Slots.Owner())
	to := from.AddDays(365)
	if s := c.Query("from"); s != "" {
		d, err := timeutil.ParseDate(s)
		if err != nil {
			a.badRequest(c, "invalid from")
			return
		}
		from = d
	}
	if s := c.Query("to"); s != "" {
		d, err := timeutil.ParseDate(s)
		if err != nil {
			a.badRequest(c, "invalid to")
			return
		}
		to = d
	}
	exs, err := a.Store.GetExceptions(c.Request.Context(), etID, from, to)
	if err != nil {
		a.fail(c, err)
		return
	}
	if exs == nil {
		exs = []domain.AvailabilityException{}
	}
	c.JSON(http.StatusOK, exs)
}

// GET /admin/bookings?from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		a.badRequest(c, "from is required (RFC 3339)")
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		a.badRequest(c, "to is required (RFC 3339)")
		return
	}
	if !from.Before(to) {
		a.badRequest(c, "from must be before to")
		return
	}
	bookings, err := a.Store.ListBookings(c.Request.Context(), from.UTC(), to.UTC())
	if err != nil {
		a.fail(c, err)
		return
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

// eventTypeParam resolves :id to an existing event type, writing the error
// response itself when it cannot.
func (a *App) eventTypeParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		a.badRequest(c, "invalid event type id")
		return 0, false
	}
	if _, err := a.Store.GetEventType(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return 0, false
	}
	return id, true
}

func validateRule(r domain.AvailabilityRule) error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be 0 (Sunday) to 6", domain.ErrInvalidInput)
	}
	if _, err := timeutil.LoadZone(r.Timezone); err != nil {
		return err
	}
	return validateSpan(r.StartTime, r.EndTime)
}

func validateException(ex domain.AvailabilityException) error {
	if _, err := timeutil.ParseDate(ex.Date); err != nil {
		return err
	}
	switch ex.Kind {
	case domain.ExceptionUnavailable:
		return nil
	case domain.ExceptionCustomHours:
		if ex.Timezone != "" {
			if _, err := timeutil.LoadZone(ex.Timezone); err != nil {
				return err
			}
		}
		return validateSpan(ex.StartTime, ex.EndTime)
	default:
		return fmt.Errorf("%w: unknown exception kind %q", domain.ErrInvalidInput, ex.Kind)
	}
}

func validateSpan(start, end string) error {
	s, err := timeutil.ParseClock(start)
	if err != nil {
		return err
	}
	e, err := timeutil.ParseClock(end)
	if err != nil {
		return err
	}
	if !s.Before(e) {
		return fmt.Errorf("%w: start_time must be before end_time", domain.ErrInvalidInput)
	}
	return nil
}
