// Package app is the HTTP surface of the booking engine.
package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"booking-service/internal/booking"
	"booking-service/internal/config"
	"booking-service/internal/domain"
	"booking-service/internal/slots"
	"booking-service/internal/store"
)

type App struct {
	Store    store.Store
	Slots    *slots.Engine
	Bookings *booking.Service
	Config   *config.Config
	Log      *zap.Logger
}

func New(cfg *config.Config, st store.Store, engine *slots.Engine, svc *booking.Service, log *zap.Logger) *App {
	return &App{Store: st, Slots: engine, Bookings: svc, Config: cfg, Log: log.Named("http")}
}

// Router wires every route onto a fresh gin engine.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(a.Log))

	router.GET("/health", a.HealthHandler)

	router.GET("/availability", a.AvailabilityHandler)
	router.GET("/event-types", a.ListEventTypesHandler)
	router.POST("/book", a.BookHandler)
	router.POST("/reschedule", a.RescheduleHandler)
	router.POST("/cancel", a.CancelHandler)
	router.GET("/booking/:uuid", a.GetBookingHandler)
	router.GET("/booking/:uuid/calendar.ics", a.BookingICSHandler)

	admin := router.Group("/admin", AdminAuth(a.Config.Admin))
	{
		admin.POST("/event-types", a.CreateEventTypeHandler)
		admin.GET("/event-types", a.ListAllEventTypesHandler)
		admin.POST("/event-types/:id/rules", a.CreateRuleHandler)
		admin.GET("/event-types/:id/rules", a.ListRulesHandler)
		admin.POST("/event-types/:id/exceptions", a.CreateExceptionHandler)
		admin.GET("/event-types/:id/exceptions", a.ListExceptionsHandler)
		admin.GET("/bookings", a.ListBookingsHandler)
	}
	return router
}

// RequestLogger logs one line per request through zap.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Info("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}

// classify maps the domain error taxonomy onto HTTP.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrEventTypeNotFound):
		return http.StatusNotFound, "EVENT_TYPE_NOT_FOUND"
	case errors.Is(err, domain.ErrBookingNotFound):
		return http.StatusNotFound, "BOOKING_NOT_FOUND"
	case errors.Is(err, domain.ErrSlotUnavailable):
		return http.StatusConflict, "SLOT_UNAVAILABLE"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (a *App) fail(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.Log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResp{Success: false, Error: code, Message: msg})
}

func (a *App) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Success: false, Error: "INVALID_INPUT", Message: msg})
}
