package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
	"github.com/teresa-solution/tenancy-allocation-service/internal/service"
)

// LandlordHeader carries the pre-authenticated acting landlord.
const LandlordHeader = "X-Landlord-ID"

const landlordKey = "landlord_id"

var validate = validator.New()

type RouterConfig struct {
	AllowedOrigins []string
	// HealthCheck reports readiness of the backing store; nil means always healthy.
	HealthCheck func() error
}

type Handler struct {
	svc *service.Services
}

func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

// NewRouter builds the HTTP API, /health and /metrics.
func NewRouter(svc *service.Services, cfg RouterConfig) *gin.Engine {
	h := NewHandler(svc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders(LandlordHeader)
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(requireLandlord())
	{
		v1.GET("/properties/:id/units/vacant", h.ListVacantUnits)
		v1.GET("/properties/:id/applications/pending", h.ListPendingApplications)

		v1.PUT("/units/:id/status", h.SetUnitStatus)

		v1.POST("/applications/:id/reject", h.RejectApplication)
		v1.POST("/applications/:id/reconsider", h.ReconsiderApplication)
		v1.POST("/applications/:id/assign", h.Assign)

		v1.POST("/profiles/resolve", h.ResolveIdentity)

		v1.POST("/tenancies", h.AssignDirect)
		v1.GET("/tenancies/:id", h.GetTenancy)
		v1.POST("/tenancies/:id/end", h.EndLease)
		v1.POST("/tenancies/:id/transfer", h.TransferUnit)

		v1.GET("/reconciliation", h.Reconcile)
		v1.GET("/transitions/:entity/:id", h.ListTransitions)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		monitoring.Requests.WithLabelValues("http", route, strconv.Itoa(c.Writer.Status())).Inc()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", route).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("Request processed")
	}
}

func requireLandlord() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(LandlordHeader)
		if raw == "" {
			errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", LandlordHeader+" header is required", nil)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequestResponse(c, "Invalid "+LandlordHeader, nil)
			return
		}
		c.Set(landlordKey, id)
		c.Next()
	}
}

func landlordFrom(c *gin.Context) uuid.UUID {
	id, _ := c.MustGet(landlordKey).(uuid.UUID)
	return id
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes the JSON body into req and validates it.
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequestResponse(c, "Invalid request body", err.Error())
		return false
	}
	if err := validate.Struct(req); err != nil {
		validationErrorResponse(c, err)
		return false
	}
	return true
}

type SetUnitStatusRequest struct {
	Status         string `json:"status" validate:"required,oneof=vacant occupied maintenance"`
	ExpectedStatus string `json:"expected_status" validate:"required,oneof=vacant occupied maintenance"`
}

type ResolveIdentityRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`
	Phone string `json:"phone" validate:"max=50"`
}

type LeaseTerms struct {
	// LeaseEndDate is a calendar date, YYYY-MM-DD.
	LeaseEndDate    *string `json:"lease_end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	SecurityDeposit *int64  `json:"security_deposit,omitempty" validate:"omitempty,gte=0"`
}

func (t LeaseTerms) endDate() *time.Time {
	if t.LeaseEndDate == nil {
		return nil
	}
	d, err := time.Parse(time.DateOnly, *t.LeaseEndDate)
	if err != nil {
		return nil
	}
	return &d
}

type AssignRequest struct {
	UnitID string `json:"unit_id" validate:"required,uuid"`
	LeaseTerms
}

type AssignDirectRequest struct {
	UnitID      string `json:"unit_id" validate:"required,uuid"`
	TenantEmail string `json:"tenant_email" validate:"required,email"`
	TenantName  string `json:"tenant_name" validate:"max=200"`
	TenantPhone string `json:"tenant_phone" validate:"max=50"`
	LeaseTerms
}

type TransferRequest struct {
	NewUnitID     string `json:"new_unit_id" validate:"required,uuid"`
	RecomputeRent bool   `json:"recompute_rent"`
}

// GET /v1/properties/:id/units/vacant
func (h *Handler) ListVacantUnits(c *gin.Context) {
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	units, err := h.svc.Inventory.GetVacantUnits(c.Request.Context(), propertyID)
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	if units == nil {
		units = []model.Unit{}
	}
	successResponse(c, units)
}

// PUT /v1/units/:id/status
func (h *Handler) SetUnitStatus(c *gin.Context) {
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetUnitStatusRequest
	if !bind(c, &req) {
		return
	}
	unit, err := h.svc.Inventory.SetStatus(c.Request.Context(), unitID,
		model.UnitStatus(req.Status), model.UnitStatus(req.ExpectedStatus), landlordFrom(c))
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, unit)
}

// GET /v1/properties/:id/applications/pending
func (h *Handler) ListPendingApplications(c *gin.Context) {
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	apps, err := h.svc.Registry.ListPending(c.Request.Context(), propertyID)
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	successResponse(c, apps)
}

// POST /v1/applications/:id/reject
func (h *Handler) RejectApplication(c *gin.Context) {
	h.transitionApplication(c, h.svc.Registry.Reject)
}

// POST /v1/applications/:id/reconsider
func (h *Handler) ReconsiderApplication(c *gin.Context) {
	h.transitionApplication(c, h.svc.Registry.Reconsider)
}

func (h *Handler) transitionApplication(c *gin.Context, fn func(ctx context.Context, id, actor uuid.UUID) (*model.Application, error)) {
	appID, ok := pathID(c, "id")
	if !ok {
		return
	}
	app, err := fn(c.Request.Context(), appID, landlordFrom(c))
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, app)
}

// POST /v1/profiles/resolve
func (h *Handler) ResolveIdentity(c *gin.Context) {
	var req ResolveIdentityRequest
	if !bind(c, &req) {
		return
	}
	profile, err := h.svc.Identity.Resolve(c.Request.Context(), req.Email, req.Name, req.Phone)
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, profile)
}

// POST /v1/applications/:id/assign
func (h *Handler) Assign(c *gin.Context) {
	appID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if !bind(c, &req) {
		return
	}
	tenancy, err := h.svc.Allocator.Assign(c.Request.Context(), service.AssignRequest{
		ApplicationID:   appID,
		UnitID:          uuid.MustParse(req.UnitID),
		LandlordID:      landlordFrom(c),
		LeaseEndDate:    req.endDate(),
		SecurityDeposit: req.SecurityDeposit,
	})
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	createdResponse(c, tenancy)
}

// POST /v1/tenancies
func (h *Handler) AssignDirect(c *gin.Context) {
	var req AssignDirectRequest
	if !bind(c, &req) {
		return
	}
	tenancy, err := h.svc.Allocator.AssignDirect(c.Request.Context(), service.DirectAssignRequest{
		UnitID:          uuid.MustParse(req.UnitID),
		LandlordID:      landlordFrom(c),
		TenantEmail:     req.TenantEmail,
		TenantName:      req.TenantName,
		TenantPhone:     req.TenantPhone,
		LeaseEndDate:    req.endDate(),
		SecurityDeposit: req.SecurityDeposit,
	})
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	createdResponse(c, tenancy)
}

// GET /v1/tenancies/:id
func (h *Handler) GetTenancy(c *gin.Context) {
	tenancyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tenancy, err := h.svc.Leases.GetTenancy(c.Request.Context(), tenancyID)
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, tenancy)
}

// POST /v1/tenancies/:id/end
func (h *Handler) EndLease(c *gin.Context) {
	tenancyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Leases.EndLease(c.Request.Context(), tenancyID, landlordFrom(c)); err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, gin.H{"tenancy_id": tenancyID, "status": model.TenancyEnded})
}

// POST /v1/tenancies/:id/transfer
func (h *Handler) TransferUnit(c *gin.Context) {
	tenancyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req TransferRequest
	if !bind(c, &req) {
		return
	}
	tenancy, err := h.svc.Leases.TransferUnit(c.Request.Context(), service.TransferRequest{
		TenancyID:     tenancyID,
		NewUnitID:     uuid.MustParse(req.NewUnitID),
		Actor:         landlordFrom(c),
		RecomputeRent: req.RecomputeRent,
	})
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, tenancy)
}

// GET /v1/reconciliation
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.svc.Reconciler.Check(c.Request.Context())
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	successResponse(c, report)
}

// GET /v1/transitions/:entity/:id
func (h *Handler) ListTransitions(c *gin.Context) {
	entityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := h.svc.Reconciler.History(c.Request.Context(), c.Param("entity"), entityID)
	if err != nil {
		operationErrorResponse(c, err)
		return
	}
	if history == nil {
		history = []model.Transition{}
	}
	successResponse(c, history)
}
