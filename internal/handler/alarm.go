package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/model"
	"roadapp/api/internal/service"
)

// AlarmHandler serves alarm events
type AlarmHandler struct {
	alarmService  *service.AlarmService
	deviceService *service.DeviceService
}

// NewAlarmHandler creates a new alarm handler
func NewAlarmHandler(alarmService *service.AlarmService, deviceService *service.DeviceService) *AlarmHandler {
	return &AlarmHandler{alarmService: alarmService, deviceService: deviceService}
}

func (h *AlarmHandler) requireDeviceAccess(c *gin.Context, deviceID string) bool {
	if isAdminFromContext(c) {
		return true
	}
	owned, err := h.deviceService.OwnedBy(c.Request.Context(), deviceID, getUserIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if !owned {
		c.JSON(http.StatusForbidden, gin.H{"error": "device not assigned to user"})
		return false
	}
	return true
}

// List returns stored alarm events for one device
// @Summary List alarms
// @Tags Alarms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param family query string false "Alarm family filter"
// @Param severity query string false "Severity filter"
// @Param unread query bool false "Unread only"
// @Param start_ms query int false "Range start, epoch ms"
// @Param end_ms query int false "Range end, epoch ms"
// @Success 200 {object} model.AlarmListResponse
// @Router /devices/{id}/alarms [get]
func (h *AlarmHandler) List(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	startMs, _ := strconv.ParseInt(c.DefaultQuery("start_ms", "0"), 10, 64)
	endMs, _ := strconv.ParseInt(c.DefaultQuery("end_ms", "0"), 10, 64)
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	resp, err := h.alarmService.List(c.Request.Context(), &service.AlarmQuery{
		DeviceID:   deviceID,
		Family:     model.AlarmFamily(c.Query("family")),
		Severity:   model.Severity(c.Query("severity")),
		UnreadOnly: unread,
		StartMs:    startMs,
		EndMs:      endMs,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// markReadRequest selects alarms to mark read
type markReadRequest struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// MarkRead marks alarms read
// @Summary Mark alarms read
// @Tags Alarms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param body body markReadRequest true "Alarm IDs"
// @Success 200 {object} map[string]int64
// @Router /devices/{id}/alarms/read [post]
func (h *AlarmHandler) MarkRead(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.alarmService.MarkRead(c.Request.Context(), deviceID, req.IDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Acknowledge acknowledges one alarm
// @Summary Acknowledge alarm
// @Tags Alarms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param alarm_id path int true "Alarm ID"
// @Success 200 {object} map[string]string
// @Router /devices/{id}/alarms/{alarm_id}/ack [post]
func (h *AlarmHandler) Acknowledge(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	alarmID, err := strconv.Atoi(c.Param("alarm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm id"})
		return
	}
	if err := h.alarmService.Acknowledge(c.Request.Context(), deviceID, alarmID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// Summary aggregates stored alarms by severity
// @Summary Alarm summary
// @Tags Alarms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param start_ms query int false "Range start, epoch ms"
// @Param end_ms query int false "Range end, epoch ms"
// @Success 200 {object} model.AlarmSummary
// @Router /devices/{id}/alarms/summary [get]
func (h *AlarmHandler) Summary(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	startMs, _ := strconv.ParseInt(c.DefaultQuery("start_ms", "0"), 10, 64)
	endMs, _ := strconv.ParseInt(c.DefaultQuery("end_ms", "0"), 10, 64)

	summary, err := h.alarmService.Summary(c.Request.Context(), deviceID, startMs, endMs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// VendorHistory proxies an on-demand vendor alarm query
// @Summary Vendor alarm history
// @Tags Alarms
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param start_ms query int true "Range start, epoch ms"
// @Param end_ms query int true "Range end, epoch ms"
// @Success 200 {object} model.AlarmSummary
// @Router /devices/{id}/alarms/vendor [get]
func (h *AlarmHandler) VendorHistory(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	startMs, _ := strconv.ParseInt(c.Query("start_ms"), 10, 64)
	endMs, _ := strconv.ParseInt(c.Query("end_ms"), 10, 64)
	if startMs <= 0 || endMs <= startMs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_ms and end_ms are required"})
		return
	}

	summary, err := h.alarmService.VendorHistory(c.Request.Context(), deviceID, startMs, endMs)
	if err != nil {
		if errors.Is(err, mdvr.ErrNoData) {
			c.JSON(http.StatusOK, model.AlarmSummary{DeviceID: deviceID})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
