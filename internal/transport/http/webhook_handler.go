package httptransport

import (
	"github.com/gin-gonic/gin"

	"virtualaddresshub/backend/internal/service"
)

// createWebhook godoc
// @Summary Register a webhook endpoint
// @Description The signing secret is returned once in this response.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateWebhookInput true "Endpoint details"
// @Success 201 {object} domain.Webhook
// @Failure 400 {object} Response
// @Router /v1/webhooks [post]
func (h *Handler) createWebhook(c *gin.Context) {
	var input service.CreateWebhookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	input.UserID = c.GetString("userID")

	webhook, err := h.webhooks.CreateWebhook(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Created(c, webhook)
}

// listWebhooks godoc
// @Summary List the caller's webhook endpoints
// @Tags Webhooks
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /v1/webhooks [get]
func (h *Handler) listWebhooks(c *gin.Context) {
	webhooks, err := h.webhooks.ListWebhooks(c.GetString("userID"))
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{
		"items": webhooks,
		"count": len(webhooks),
	})
}

// getWebhook godoc
// @Summary Get one webhook endpoint
// @Tags Webhooks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Webhook ID"
// @Success 200 {object} domain.Webhook
// @Failure 404 {object} Response
// @Router /v1/webhooks/{id} [get]
func (h *Handler) getWebhook(c *gin.Context) {
	webhook, err := h.webhooks.GetWebhook(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if webhook.UserID != c.GetString("userID") {
		NotFound(c, "webhook not found")
		return
	}
	Success(c, webhook)
}

// updateWebhook godoc
// @Summary Update a webhook endpoint
// @Tags Webhooks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Webhook ID"
// @Param request body service.UpdateWebhookInput true "Fields to change"
// @Success 200 {object} domain.Webhook
// @Failure 404 {object} Response
// @Router /v1/webhooks/{id} [patch]
func (h *Handler) updateWebhook(c *gin.Context) {
	existing, err := h.webhooks.GetWebhook(c.Param("id"))
	if err != nil || existing.UserID != c.GetString("userID") {
		NotFound(c, "webhook not found")
		return
	}

	var input service.UpdateWebhookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	webhook, err := h.webhooks.UpdateWebhook(c.Param("id"), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, webhook)
}

// deleteWebhook godoc
// @Summary Delete a webhook endpoint
// @Tags Webhooks
// @Security BearerAuth
// @Param id path string true "Webhook ID"
// @Success 204
// @Failure 404 {object} Response
// @Router /v1/webhooks/{id} [delete]
func (h *Handler) deleteWebhook(c *gin.Context) {
	existing, err := h.webhooks.GetWebhook(c.Param("id"))
	if err != nil || existing.UserID != c.GetString("userID") {
		NotFound(c, "webhook not found")
		return
	}

	if err := h.webhooks.DeleteWebhook(c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	NoContent(c)
}
