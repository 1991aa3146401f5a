// Package httptransport exposes the REST API.
package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/auth"
	jwtpkg "virtualaddresshub/backend/internal/auth/jwt"
	"virtualaddresshub/backend/internal/config"
	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/middleware"
	"virtualaddresshub/backend/internal/monitoring"
	"virtualaddresshub/backend/internal/service"
	"virtualaddresshub/backend/internal/websocket"
)

// Handler aggregates the user-facing mail and forwarding endpoints.
type Handler struct {
	mail       *service.MailItemService
	forwarding *service.ForwardingService
	webhooks   *service.WebhookService
}

// RouterDependencies carries everything the router needs.
type RouterDependencies struct {
	Config            *config.Config
	MailItemService   *service.MailItemService
	ForwardingService *service.ForwardingService
	WebhookService    *service.WebhookService
	AdminService      *service.AdminService
	AuthService       *auth.Service
	JWTManager        *jwtpkg.Manager
	WebSocketHub      *websocket.Hub
	Metrics           *monitoring.Metrics
	Logger            *zap.Logger
}

// NewRouter builds the Gin engine with all routes and middleware.
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
		router.Use(mm.HTTPMetrics())
	}

	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		mail:       deps.MailItemService,
		forwarding: deps.ForwardingService,
		webhooks:   deps.WebhookService,
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager)
	adminHandler := NewAdminHandler(deps.AdminService, deps.MailItemService, deps.ForwardingService)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	adminAuth := middleware.NewAdminAuth(deps.AuthService)
	authThrottle := middleware.NewIPThrottle(5, 10)

	// Swagger docs
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		authRoutes.Use(authThrottle.Handler())
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Mail Routes ==========
		mailRoutes := v1.Group("/mail")
		mailRoutes.Use(jwtAuth.RequireAuth())
		{
			mailRoutes.GET("", handler.listMail)
			mailRoutes.GET("/:id", handler.getMailItem)
			mailRoutes.GET("/:id/scan", handler.downloadScan)
			mailRoutes.GET("/:id/forwarding-options", handler.forwardingOptions)
			mailRoutes.POST("/:id/forward", handler.createForwardingRequest)
		}

		// ========== Forwarding Request Routes ==========
		forwardingRoutes := v1.Group("/forwarding-requests")
		forwardingRoutes.Use(jwtAuth.RequireAuth())
		{
			forwardingRoutes.GET("", handler.listForwardingRequests)
			forwardingRoutes.GET("/:id", handler.getForwardingRequest)
			forwardingRoutes.POST("/:id/cancel", handler.cancelForwardingRequest)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// ========== Webhook Routes ==========
		webhookRoutes := v1.Group("/webhooks")
		webhookRoutes.Use(jwtAuth.RequireAuth())
		{
			webhookRoutes.POST("", handler.createWebhook)
			webhookRoutes.GET("", handler.listWebhooks)
			webhookRoutes.GET("/:id", handler.getWebhook)
			webhookRoutes.PATCH("/:id", handler.updateWebhook)
			webhookRoutes.DELETE("/:id", handler.deleteWebhook)
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(jwtAuth.RequireAuth())
		{
			adminRoutes.GET("/users", adminAuth.RequireAdmin(), adminHandler.ListUsers)
			adminRoutes.PATCH("/users/:id/kyc", adminAuth.RequireAdmin(), adminHandler.SetKycStatus)

			adminRoutes.GET("/mail", adminAuth.RequireAdmin(), adminHandler.ListAllMail)
			adminRoutes.POST("/mail", adminAuth.RequireAdmin(), adminHandler.IntakeMailItem)
			adminRoutes.PATCH("/mail/:id/status", adminAuth.RequireAdmin(), adminHandler.AdvanceMailStatus)
			adminRoutes.PATCH("/mail/:id/expiry", adminAuth.RequireAdmin(), adminHandler.UpdateStorageExpiry)
			adminRoutes.POST("/mail/:id/forward", adminAuth.RequireAdmin(), adminHandler.ForwardOnBehalf)
		}
	}

	return router
}

// ========== Mail Handlers ==========

type mailItemResponse struct {
	ID               string              `json:"id"`
	Sender           string              `json:"sender"`
	Description      string              `json:"description"`
	Tag              string              `json:"tag,omitempty"`
	ForwardingStatus *domain.MailStatus  `json:"forwardingStatus,omitempty"`
	StorageExpiresAt *time.Time          `json:"storageExpiresAt,omitempty"`
	ReceivedAt       time.Time           `json:"receivedAt"`
	NextStatuses     []domain.MailStatus `json:"nextStatuses,omitempty"`
}

type mailListResponse struct {
	Items []mailItemResponse `json:"items"`
	Count int                `json:"count"`
}

// listMail godoc
// @Summary List the caller's mail items
// @Tags Mail
// @Produce json
// @Success 200 {object} mailListResponse
// @Router /v1/mail [get]
func (h *Handler) listMail(c *gin.Context) {
	userID := c.GetString("userID")

	items, err := h.mail.List(userID)
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	responses := make([]mailItemResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toMailItemResponse(&items[i]))
	}

	Success(c, mailListResponse{
		Items: responses,
		Count: len(responses),
	})
}

// getMailItem godoc
// @Summary Get one mail item
// @Tags Mail
// @Produce json
// @Param id path string true "Mail item ID"
// @Success 200 {object} mailItemResponse
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/mail/{id} [get]
func (h *Handler) getMailItem(c *gin.Context) {
	item, err := h.mail.Get(c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, toMailItemResponse(item))
}

// downloadScan godoc
// @Summary Redirect to the scanned copy of a mail item
// @Description Scan access is independent of storage expiry; expired
// items remain readable.
// @Tags Mail
// @Param id path string true "Mail item ID"
// @Success 302
// @Failure 404 {object} Response
// @Router /v1/mail/{id}/scan [get]
func (h *Handler) downloadScan(c *gin.Context) {
	url, err := h.mail.ScanURL(c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// forwardingOptions godoc
// @Summary Preview forwarding availability for a mail item
// @Tags Forwarding
// @Produce json
// @Param id path string true "Mail item ID"
// @Success 200 {object} service.ForwardingOptions
// @Failure 404 {object} Response
// @Router /v1/mail/{id}/forwarding-options [get]
func (h *Handler) forwardingOptions(c *gin.Context) {
	opts, err := h.forwarding.Options(c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, opts)
}

// ========== Forwarding Handlers ==========

type createForwardingRequestBody struct {
	RecipientName string `json:"recipientName" binding:"required"`
	AddressLine1  string `json:"addressLine1" binding:"required"`
	AddressLine2  string `json:"addressLine2"`
	City          string `json:"city" binding:"required"`
	Postcode      string `json:"postcode" binding:"required"`
	Country       string `json:"country" binding:"required"`
	Notes         string `json:"notes"`
}

// createForwardingRequest godoc
// @Summary Request physical forwarding of a mail item
// @Description Duplicate idempotency keys return 409, rate limiting
// 429, KYC and expiry blocks 403, and an admin override prompt 412.
// @Tags Forwarding
// @Accept json
// @Produce json
// @Param id path string true "Mail item ID"
// @Param Idempotency-Key header string false "Client retry token"
// @Param request body createForwardingRequestBody true "Destination address"
// @Success 201 {object} domain.ForwardingRequest
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Failure 429 {object} Response
// @Router /v1/mail/{id}/forward [post]
func (h *Handler) createForwardingRequest(c *gin.Context) {
	var body createForwardingRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	req, err := h.forwarding.CreateRequest(c.Request.Context(), service.CreateRequestInput{
		MailItemID:     c.Param("id"),
		CallerID:       c.GetString("userID"),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		RecipientName:  body.RecipientName,
		AddressLine1:   body.AddressLine1,
		AddressLine2:   body.AddressLine2,
		City:           body.City,
		Postcode:       body.Postcode,
		Country:        body.Country,
		Notes:          body.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	Created(c, req)
}

// listForwardingRequests godoc
// @Summary List the caller's forwarding requests
// @Tags Forwarding
// @Produce json
// @Success 200 {object} Response
// @Router /v1/forwarding-requests [get]
func (h *Handler) listForwardingRequests(c *gin.Context) {
	requests, err := h.forwarding.ListRequests(c.GetString("userID"))
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{
		"items": requests,
		"count": len(requests),
	})
}

// getForwardingRequest godoc
// @Summary Get one forwarding request
// @Tags Forwarding
// @Produce json
// @Param id path string true "Forwarding request ID"
// @Success 200 {object} domain.ForwardingRequest
// @Failure 404 {object} Response
// @Router /v1/forwarding-requests/{id} [get]
func (h *Handler) getForwardingRequest(c *gin.Context) {
	req, err := h.forwarding.GetRequest(c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, req)
}

// cancelForwardingRequest godoc
// @Summary Cancel a forwarding request
// @Description Allowed while the request is requested or in progress.
// @Tags Forwarding
// @Produce json
// @Param id path string true "Forwarding request ID"
// @Success 200 {object} domain.ForwardingRequest
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/forwarding-requests/{id}/cancel [post]
func (h *Handler) cancelForwardingRequest(c *gin.Context) {
	req, err := h.forwarding.Cancel(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, req)
}

func toMailItemResponse(item *domain.MailItem) mailItemResponse {
	resp := mailItemResponse{
		ID:               item.ID,
		Sender:           item.Sender,
		Description:      item.Description,
		Tag:              item.Tag,
		ForwardingStatus: item.ForwardingStatus,
		StorageExpiresAt: item.StorageExpiresAt,
		ReceivedAt:       item.ReceivedAt,
	}
	if item.ForwardingStatus != nil {
		resp.NextStatuses = domain.NextStatuses(item.CurrentStatus())
	}
	return resp
}
