package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roadapp/api/internal/model"
	"roadapp/api/internal/service"
)

// NotificationHandler manages push tokens and notification settings
type NotificationHandler struct {
	settingsService *service.SettingsService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(settingsService *service.SettingsService) *NotificationHandler {
	return &NotificationHandler{settingsService: settingsService}
}

// RegisterToken stores a push token for the current user
// @Summary Register push token
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterTokenRequest true "Token"
// @Success 200 {object} map[string]string
// @Router /notifications/token [post]
func (h *NotificationHandler) RegisterToken(c *gin.Context) {
	var req model.RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.settingsService.RegisterToken(c.Request.Context(), getUserIDFromContext(c), &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

// deactivateTokenRequest identifies the token to disable
type deactivateTokenRequest struct {
	Token string `json:"fcm_token" binding:"required"`
}

// DeactivateToken disables a push token on logout
// @Summary Deactivate push token
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body deactivateTokenRequest true "Token"
// @Success 200 {object} map[string]string
// @Router /notifications/token [delete]
func (h *NotificationHandler) DeactivateToken(c *gin.Context) {
	var req deactivateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.settingsService.DeactivateToken(c.Request.Context(), getUserIDFromContext(c), req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// GetSettings returns the current user's notification subscriptions
// @Summary Get notification settings
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.NotificationSetting
// @Router /notifications/settings [get]
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.GetSettings(c.Request.Context(), getUserIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSetting creates or updates one device subscription
// @Summary Update notification setting
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.UpdateNotificationSettingRequest true "Setting"
// @Success 200 {object} model.NotificationSetting
// @Router /notifications/settings [put]
func (h *NotificationHandler) UpdateSetting(c *gin.Context) {
	var req model.UpdateNotificationSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	setting, err := h.settingsService.UpdateSetting(c.Request.Context(), getUserIDFromContext(c), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, setting)
}
