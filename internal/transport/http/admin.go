package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"virtualaddresshub/backend/internal/service"
)

// AdminHandler serves the operator endpoints: mail intake, status
// progression, KYC review and storage windows.
type AdminHandler struct {
	admin      *service.AdminService
	mail       *service.MailItemService
	forwarding *service.ForwardingService
}

func NewAdminHandler(admin *service.AdminService, mail *service.MailItemService, forwarding *service.ForwardingService) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		mail:       mail,
		forwarding: forwarding,
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return page, pageSize
}

// ListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Param search query string false "Match against email or username"
// @Success 200 {object} Response
// @Router /v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)

	users, total, err := h.admin.ListUsers(page, pageSize, c.Query("search"))
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	responses := make([]*userResponse, 0, len(users))
	for i := range users {
		responses = append(responses, toUserResponse(&users[i]))
	}

	Success(c, gin.H{
		"items": responses,
		"total": total,
		"page":  page,
	})
}

type setKycStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetKycStatus godoc
// @Summary Set a user's KYC status
// @Description Accepts common synonyms such as "declined" and
// "in_review".
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body setKycStatusRequest true "New status"
// @Success 200 {object} userResponse
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/admin/users/{id}/kyc [patch]
func (h *AdminHandler) SetKycStatus(c *gin.Context) {
	var req setKycStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.admin.SetKycStatus(c.Param("id"), req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, toUserResponse(user))
}

// ListAllMail godoc
// @Summary List mail items across all users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} Response
// @Router /v1/admin/mail [get]
func (h *AdminHandler) ListAllMail(c *gin.Context) {
	page, pageSize := pageParams(c)

	items, total, err := h.admin.ListAllMail(page, pageSize)
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

type intakeMailRequest struct {
	UserID      string     `json:"userId" binding:"required"`
	Sender      string     `json:"sender" binding:"required"`
	Description string     `json:"description"`
	Tag         string     `json:"tag"`
	ScanURL     string     `json:"scanUrl"`
	ReceivedAt  *time.Time `json:"receivedAt"`
}

// IntakeMailItem godoc
// @Summary Record a newly received mail item
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body intakeMailRequest true "Mail item details"
// @Success 201 {object} domain.MailItem
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/admin/mail [post]
func (h *AdminHandler) IntakeMailItem(c *gin.Context) {
	var req intakeMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	item, err := h.mail.Intake(c.Request.Context(), service.IntakeInput{
		UserID:      req.UserID,
		Sender:      req.Sender,
		Description: req.Description,
		Tag:         req.Tag,
		ScanURL:     req.ScanURL,
		ReceivedAt:  req.ReceivedAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Created(c, item)
}

type advanceStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AdvanceMailStatus godoc
// @Summary Advance the forwarding status of a mail item
// @Description Statuses move strictly forward one step at a time.
// Synonyms such as "shipped" are accepted.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Mail item ID"
// @Param request body advanceStatusRequest true "Target status"
// @Success 200 {object} domain.MailItem
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/admin/mail/{id}/status [patch]
func (h *AdminHandler) AdvanceMailStatus(c *gin.Context) {
	var req advanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	item, err := h.forwarding.AdvanceStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, item)
}

type updateExpiryRequest struct {
	// ExpiresAt of null removes the storage window entirely.
	ExpiresAt *time.Time `json:"expiresAt"`
}

// UpdateStorageExpiry godoc
// @Summary Set or clear a mail item's storage window
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Mail item ID"
// @Param request body updateExpiryRequest true "New expiry"
// @Success 200 {object} domain.MailItem
// @Failure 404 {object} Response
// @Router /v1/admin/mail/{id}/expiry [patch]
func (h *AdminHandler) UpdateStorageExpiry(c *gin.Context) {
	var req updateExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	item, err := h.admin.UpdateStorageExpiry(c.Param("id"), req.ExpiresAt)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, item)
}

type adminForwardRequest struct {
	createForwardingRequestBody
	// Override acknowledges forwarding an item whose storage window
	// has lapsed.
	Override bool `json:"override"`
}

// ForwardOnBehalf godoc
// @Summary Create a forwarding request on a user's behalf
// @Description Expired items require override=true; without it the
// response is 412.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Mail item ID"
// @Param Idempotency-Key header string false "Client retry token"
// @Param request body adminForwardRequest true "Destination address"
// @Success 201 {object} domain.ForwardingRequest
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Failure 412 {object} Response
// @Router /v1/admin/mail/{id}/forward [post]
func (h *AdminHandler) ForwardOnBehalf(c *gin.Context) {
	var req adminForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	created, err := h.forwarding.CreateRequest(c.Request.Context(), service.CreateRequestInput{
		MailItemID:     c.Param("id"),
		CallerID:       c.GetString("userID"),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		RecipientName:  req.RecipientName,
		AddressLine1:   req.AddressLine1,
		AddressLine2:   req.AddressLine2,
		City:           req.City,
		Postcode:       req.Postcode,
		Country:        req.Country,
		Notes:          req.Notes,
		AdminOverride:  req.Override,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Created(c, created)
}
