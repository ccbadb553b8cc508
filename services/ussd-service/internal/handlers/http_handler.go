package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/pkg/middleware"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/service"
)

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

type Services struct {
	Gateway    *service.GatewayService
	Users      *service.UserService
	Devices    *service.DeviceService
	SimCards   *service.SimCardService
	Reference  *service.ReferenceService
	Statistics *service.StatisticsService
}

type HTTPHandler struct {
	gateway    *service.GatewayService
	users      *service.UserService
	devices    *service.DeviceService
	sims       *service.SimCardService
	reference  *service.ReferenceService
	statistics *service.StatisticsService
	auth       *middleware.AuthMiddleware
	limiter    gin.HandlerFunc
	checks     map[string]HealthCheck
	logger     *logrus.Logger
}

func NewHTTPHandler(services Services, auth *middleware.AuthMiddleware, logger *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{
		gateway:    services.Gateway,
		users:      services.Users,
		devices:    services.Devices,
		sims:       services.SimCards,
		reference:  services.Reference,
		statistics: services.Statistics,
		auth:       auth,
		limiter:    func(c *gin.Context) { c.Next() },
		checks:     map[string]HealthCheck{},
		logger:     logger,
	}
}

// WithRateLimit guards login and every authenticated route.
func (h *HTTPHandler) WithRateLimit(limiter *middleware.RateLimiter) *HTTPHandler {
	h.limiter = limiter.Middleware()
	return h
}

func (h *HTTPHandler) WithHealthCheck(name string, check HealthCheck) *HTTPHandler {
	h.checks[name] = check
	return h
}

func (h *HTTPHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/v1")
	api.POST("/auth/login", h.limiter, h.Login)

	authed := api.Group("")
	authed.Use(h.auth.Authenticate(), h.ResolveCaller(), h.limiter)

	admin := string(models.RoleAdmin)
	customer := string(models.RoleCustomer)
	executor := string(models.RoleExecutor)
	adminOnly := h.auth.RequireRole(admin)

	authed.GET("/profile", h.Profile)

	for _, op := range []models.OperationType{models.OperationActivation, models.OperationTopup} {
		path := "/" + string(op) + "s"
		authed.POST(path, h.auth.RequireRole(customer, admin), h.Submit(op))
		authed.GET(path, h.ListByType(op))
		authed.POST(path+"/cancel-pending", adminOnly, h.CancelPending(op))
	}

	authed.GET("/transactions", h.ListTransactions)
	authed.GET("/transactions/:id", h.GetTransaction)
	authed.POST("/transactions/:id/response", h.auth.RequireRole(executor, admin), h.RecordResponse)
	authed.GET("/executor/jobs", h.auth.RequireRole(executor, admin), h.PendingJobs)

	admins := authed.Group("", adminOnly)
	{
		admins.GET("/statistics", h.Statistics)

		admins.POST("/devices", h.CreateDevice)
		admins.GET("/devices", h.ListDevices)
		admins.GET("/devices/:id", h.GetDevice)
		admins.PUT("/devices/:id", h.UpdateDevice)
		admins.DELETE("/devices/:id", h.DeleteDevice)
		admins.PATCH("/devices/:id/status", h.SetDeviceStatus)

		admins.POST("/simcards", h.CreateSimCard)
		admins.GET("/simcards", h.ListSimCards)
		admins.GET("/simcards/:id", h.GetSimCard)
		admins.PUT("/simcards/:id", h.UpdateSimCard)
		admins.DELETE("/simcards/:id", h.DeleteSimCard)
		admins.PATCH("/simcards/:id/flags", h.SetSimCardFlags)

		admins.POST("/users", h.CreateUser)
		admins.GET("/users", h.ListUsers)
		admins.GET("/users/:id", h.GetUser)
		admins.PUT("/users/:id", h.UpdateUser)
		admins.DELETE("/users/:id", h.DeleteUser)
		admins.PATCH("/users/:id/balance", h.AdjustBalance)

		admins.POST("/messages", h.CreateTemplate)
		admins.GET("/messages", h.ListTemplates)
		admins.GET("/messages/:id", h.GetTemplate)
		admins.PUT("/messages/:id", h.UpdateTemplate)
		admins.DELETE("/messages/:id", h.DeleteTemplate)

		admins.POST("/config", h.CreateConfig)
		admins.GET("/config", h.ListConfig)
		admins.GET("/config/:id", h.GetConfig)
		admins.PUT("/config/:id", h.UpdateConfig)
		admins.DELETE("/config/:id", h.DeleteConfig)
		admins.PATCH("/config/:id/toggle", h.ToggleConfig)
	}
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var payload loginPayload
	if err := decodeBody(c, &payload, normalize.UserAliases); err != nil {
		h.respondError(c, err)
		return
	}
	if payload.Phone == "" || payload.Password == "" {
		h.respondError(c, badRequest(msgIncomplete))
		return
	}

	token, user, err := h.users.Login(c.Request.Context(), string(payload.Phone), payload.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (h *HTTPHandler) Profile(c *gin.Context) {
	c.JSON(http.StatusOK, caller(c))
}

func (h *HTTPHandler) Submit(op models.OperationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload submitPayload
		if err := decodeBody(c, &payload, normalize.TransactionAliases); err != nil {
			h.respondError(c, err)
			return
		}

		tx, err := h.gateway.Submit(c.Request.Context(), caller(c), payload.request(op))
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tx)
	}
}

func (h *HTTPHandler) ListByType(op models.OperationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := transactionFilter(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		filter.Type = op
		h.listTransactions(c, filter)
	}
}

func (h *HTTPHandler) ListTransactions(c *gin.Context) {
	filter, err := transactionFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if t := c.Query("type"); t != "" {
		filter.Type = models.OperationType(t)
		if !filter.Type.Valid() {
			h.respondError(c, badRequest("type must be activation or topup"))
			return
		}
	}
	h.listTransactions(c, filter)
}

func (h *HTTPHandler) listTransactions(c *gin.Context, filter models.TransactionFilter) {
	txs, err := h.gateway.ListTransactions(c.Request.Context(), caller(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func transactionFilter(c *gin.Context) (models.TransactionFilter, error) {
	filter := models.TransactionFilter{
		Status:   models.TransactionStatus(c.Query("status")),
		Operator: c.Query("operator"),
	}
	for param, dst := range map[string]*int64{"limit": &filter.Limit, "skip": &filter.Skip} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return filter, badRequest(param + " must be a non-negative integer")
		}
		*dst = v
	}
	return filter, nil
}

func (h *HTTPHandler) GetTransaction(c *gin.Context) {
	tx, err := h.gateway.GetTransaction(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *HTTPHandler) CancelPending(op models.OperationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.gateway.CancelAllPending(c.Request.Context(), op)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *HTTPHandler) RecordResponse(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondError(c, badRequest(msgIncomplete))
		return
	}
	resp, err := service.DecodeExecutorResponse(body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tx, err := h.gateway.RecordResponse(c.Request.Context(), c.Param("id"), resp)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *HTTPHandler) PendingJobs(c *gin.Context) {
	deviceID := c.Query("device_id")
	if deviceID == "" {
		h.respondError(c, badRequest("device_id is required"))
		return
	}

	jobs, err := h.gateway.PendingJobs(c.Request.Context(), deviceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *HTTPHandler) Statistics(c *gin.Context) {
	stats, err := h.statistics.Compute(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "ussd-service",
		"dependencies": deps,
	})
}
