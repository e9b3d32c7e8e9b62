package handler

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"roadapp/api/internal/config"
	"roadapp/api/internal/service"
)

// WebhookHandler receives the vendor forwarding feed
type WebhookHandler struct {
	ingestService *service.IngestService
	statsService  *service.StatsService
	config        *config.Config
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingestService *service.IngestService, statsService *service.StatsService, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{ingestService: ingestService, statsService: statsService, config: cfg}
}

// Receive ingests one forwarded message. The endpoint always responds
// 200 once authenticated: a non-2xx reply makes the vendor re-deliver
// and eventually stall its forwarding queue, which loses more data
// than dropping one malformed message.
// @Summary Receive vendor forwarding message
// @Tags Forwarding
// @Accept json
// @Produce json
// @Param X-Forwarding-Secret header string false "Shared secret"
// @Success 200 {object} map[string]string
// @Router /forwarding/receive [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	if h.config.VendorForwardingSecret != "" &&
		c.GetHeader("X-Forwarding-Secret") != h.config.VendorForwardingSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid forwarding secret"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.ingestService.Handle(c.Request.Context(), body); err != nil {
		log.Printf("[WebhookHandler] Ingest error: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats reports how the forwarding feed is populating the cache
// @Summary Forwarding statistics
// @Tags Forwarding
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ForwardingStats
// @Router /forwarding/stats [get]
func (h *WebhookHandler) Stats(c *gin.Context) {
	stats, err := h.statsService.Forwarding(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
