package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/in"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

const authUserKey = "authUser"

type SchedulingController struct {
	useCase in.SchedulingUseCase
	cfg     *config.Config
	logger  out.LoggerPort
}

func NewSchedulingController(useCase in.SchedulingUseCase, cfg *config.Config, logger out.LoggerPort) *SchedulingController {
	return &SchedulingController{
		useCase: useCase,
		cfg:     cfg,
		logger:  logger.WithModule("SchedulingController"),
	}
}

func (c *SchedulingController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", c.health)

	api := router.Group("/api/v1")
	api.Use(c.basicAuth(), c.requestTimeout())
	{
		api.GET("/dealers/:dealerId/vehicles/:vehicleId/availability", c.getAvailability)
		api.GET("/dealers/:dealerId/appointments", c.listForDate)
		api.GET("/dealers/:dealerId/calendar", c.monthOverview)
		api.GET("/dealers/:dealerId/calendar.ics", c.monthICS)
		api.GET("/customers/:customerId/appointments", c.listForCustomer)

		api.POST("/appointments", c.book)
		api.GET("/appointments/:appointmentId", c.getAppointment)
		api.POST("/appointments/:appointmentId/confirm", c.confirm)
		api.POST("/appointments/:appointmentId/complete", c.complete)
		api.POST("/appointments/:appointmentId/cancel", c.cancel)
	}
}

type BookRequest struct {
	DealerID        string    `json:"dealerId" binding:"required"`
	VehicleID       string    `json:"vehicleId" binding:"required"`
	CustomerID      string    `json:"customerId" binding:"required"`
	Start           time.Time `json:"start" binding:"required"`
	DurationMinutes int       `json:"durationMinutes"`
	Note            string    `json:"note"`
}

// TransitionRequest is optional; without it the authenticated console user
// acts as staff.
type TransitionRequest struct {
	ActorID   string `json:"actorId"`
	ActorRole string `json:"actorRole"`
	Reason    string `json:"reason"`
}

type ErrorResponse struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (c *SchedulingController) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": c.cfg.App.Version,
	})
}

func (c *SchedulingController) getAvailability(ctx *gin.Context) {
	date, ok := c.dateQuery(ctx)
	if !ok {
		return
	}

	dealerID := ctx.Param("dealerId")
	vehicleID := ctx.Param("vehicleId")
	slots, err := c.useCase.GetAvailability(ctx.Request.Context(), dealerID, vehicleID, date)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"dealerId":  dealerID,
		"vehicleId": vehicleID,
		"date":      date,
		"slots":     slots,
	})
}

func (c *SchedulingController) book(ctx *gin.Context) {
	var req BookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, err.Error())
		return
	}

	appointment, err := c.useCase.Book(ctx.Request.Context(), in.BookRequest{
		DealerID:        req.DealerID,
		VehicleID:       req.VehicleID,
		CustomerID:      req.CustomerID,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		Note:            req.Note,
	})
	if err != nil {
		c.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, appointment)
}

func (c *SchedulingController) getAppointment(ctx *gin.Context) {
	id, ok := c.appointmentID(ctx)
	if !ok {
		return
	}

	appointment, err := c.useCase.GetAppointment(ctx.Request.Context(), id)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, appointment)
}

func (c *SchedulingController) confirm(ctx *gin.Context) {
	c.transition(ctx, func(reqCtx context.Context, id uuid.UUID, actor domain.Actor, _ string) (*domain.Appointment, error) {
		return c.useCase.Confirm(reqCtx, id, actor)
	})
}

func (c *SchedulingController) complete(ctx *gin.Context) {
	c.transition(ctx, func(reqCtx context.Context, id uuid.UUID, actor domain.Actor, _ string) (*domain.Appointment, error) {
		return c.useCase.Complete(reqCtx, id, actor)
	})
}

func (c *SchedulingController) cancel(ctx *gin.Context) {
	c.transition(ctx, c.useCase.Cancel)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (*domain.Appointment, error)

func (c *SchedulingController) transition(ctx *gin.Context, apply transitionFunc) {
	id, ok := c.appointmentID(ctx)
	if !ok {
		return
	}

	var req TransitionRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			c.badRequest(ctx, err.Error())
			return
		}
	}

	actor, err := c.actor(ctx, req)
	if err != nil {
		c.badRequest(ctx, err.Error())
		return
	}

	appointment, err := apply(ctx.Request.Context(), id, actor, req.Reason)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, appointment)
}

func (c *SchedulingController) listForDate(ctx *gin.Context) {
	date, ok := c.dateQuery(ctx)
	if !ok {
		return
	}

	appointments, err := c.useCase.ListForDate(ctx.Request.Context(), ctx.Param("dealerId"), date)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"dealerId":     ctx.Param("dealerId"),
		"date":         date,
		"appointments": appointments,
	})
}

func (c *SchedulingController) listForCustomer(ctx *gin.Context) {
	appointments, err := c.useCase.ListForCustomer(ctx.Request.Context(), ctx.Param("customerId"))
	if err != nil {
		c.fail(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"customerId":   ctx.Param("customerId"),
		"appointments": appointments,
	})
}

func (c *SchedulingController) monthOverview(ctx *gin.Context) {
	projection, ok := c.month(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"dealerId": projection.DealerID,
		"month":    fmt.Sprintf("%04d-%02d", projection.Year, projection.Month),
		"builtAt":  projection.BuiltAt,
		"days":     projection.Summaries(),
	})
}

func (c *SchedulingController) monthICS(ctx *gin.Context) {
	projection, ok := c.month(ctx)
	if !ok {
		return
	}

	filename := fmt.Sprintf("testdrives-%s-%04d-%02d.ics", projection.DealerID, projection.Year, projection.Month)
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(RenderMonthICS(projection)))
}

func (c *SchedulingController) month(ctx *gin.Context) (*domain.MonthProjection, bool) {
	raw := ctx.Query("month")
	if raw == "" {
		c.badRequest(ctx, "month query parameter is required (YYYY-MM)")
		return nil, false
	}
	parsed, err := time.Parse("2006-01", raw)
	if err != nil {
		c.badRequest(ctx, "Invalid month format, expected YYYY-MM")
		return nil, false
	}

	projection, err := c.useCase.MonthOverview(ctx.Request.Context(), ctx.Param("dealerId"), parsed.Year(), parsed.Month())
	if err != nil {
		c.fail(ctx, err)
		return nil, false
	}
	return projection, true
}

func (c *SchedulingController) dateQuery(ctx *gin.Context) (json_types.Date, bool) {
	raw := ctx.Query("date")
	if raw == "" {
		c.badRequest(ctx, "date query parameter is required (YYYY-MM-DD)")
		return json_types.Date{}, false
	}

	date, err := json_types.ParseDate(raw)
	if err != nil {
		c.badRequest(ctx, "Invalid date format, expected YYYY-MM-DD")
		return json_types.Date{}, false
	}
	return date, true
}

func (c *SchedulingController) appointmentID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("appointmentId"))
	if err != nil {
		c.badRequest(ctx, "Invalid appointment ID format")
		return uuid.Nil, false
	}
	return id, true
}

func (c *SchedulingController) actor(ctx *gin.Context, req TransitionRequest) (domain.Actor, error) {
	actor := domain.Actor{ID: ctx.GetString(authUserKey), Role: domain.ActorRoleStaff}
	if req.ActorID != "" {
		actor.ID = req.ActorID
	}
	if req.ActorRole != "" {
		role := domain.ActorRole(req.ActorRole)
		switch role {
		case domain.ActorRoleStaff, domain.ActorRoleCustomer, domain.ActorRoleSystem:
			actor.Role = role
		default:
			return domain.Actor{}, fmt.Errorf("unknown actorRole: %s", req.ActorRole)
		}
	}
	return actor, nil
}

func (c *SchedulingController) badRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, ErrorResponse{Code: domain.ErrorCodeValidation, Message: message})
}

func (c *SchedulingController) fail(ctx *gin.Context, err error) {
	schedulingErr := domain.AsSchedulingError(err)
	status := StatusFor(schedulingErr.Code)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		c.logger.Error("http.request.failed", out.LogFields{
			"path":  ctx.FullPath(),
			"error": err.Error(),
		})
	}

	ctx.JSON(status, ErrorResponse{Code: schedulingErr.Code, Message: schedulingErr.Message})
}

func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidation:
		return http.StatusBadRequest
	case domain.ErrorCodeNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeSlotUnavailable, domain.ErrorCodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (c *SchedulingController) requestTimeout() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if c.cfg.HTTP.RequestTimeout <= 0 {
			ctx.Next()
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.cfg.HTTP.RequestTimeout)
		defer cancel()

		ctx.Request = ctx.Request.WithContext(reqCtx)
		ctx.Next()
	}
}

func (c *SchedulingController) basicAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if !hasAuth || !c.validClient(username, password) {
			ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ctx.Set(authUserKey, username)
		ctx.Next()
	}
}

func (c *SchedulingController) validClient(username, password string) bool {
	valid := false
	for _, client := range c.cfg.Auth.BasicClients {
		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(client.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(client.Password)) == 1
		if userMatch && passMatch {
			valid = true
		}
	}
	return valid
}
