package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/model"
	"roadapp/api/internal/service"
)

// TrackSource is the slice of the vendor client used for track playback.
type TrackSource interface {
	Track(ctx context.Context, deviceID string, startMs, endMs int64) (*model.TrackPlayback, error)
	TrackDates(ctx context.Context, deviceID, startDate, endDate string) ([]string, error)
}

// GpsHandler serves latest fixes and track playback
type GpsHandler struct {
	cacheService  *service.CacheService
	deviceService *service.DeviceService
	tracks        TrackSource
}

// NewGpsHandler creates a new GPS handler
func NewGpsHandler(cacheService *service.CacheService, deviceService *service.DeviceService, tracks TrackSource) *GpsHandler {
	return &GpsHandler{cacheService: cacheService, deviceService: deviceService, tracks: tracks}
}

func (h *GpsHandler) requireDeviceAccess(c *gin.Context, deviceID string) bool {
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

// Latest returns the device's latest fix with provenance
// @Summary Latest GPS fix
// @Tags GPS
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 200 {object} model.DeviceStatus
// @Router /devices/{id}/gps/latest [get]
func (h *GpsHandler) Latest(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	status, err := h.cacheService.GetStatus(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, mdvr.ErrNoData) {
			c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "reason": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Track returns chronological track playback for a time range
// @Summary Track playback
// @Tags GPS
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param start_ms query int true "Range start, epoch ms"
// @Param end_ms query int false "Range end, epoch ms (default now)"
// @Success 200 {object} model.TrackPlayback
// @Router /devices/{id}/track [get]
func (h *GpsHandler) Track(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}

	startMs, err := strconv.ParseInt(c.Query("start_ms"), 10, 64)
	if err != nil || startMs <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_ms is required"})
		return
	}
	endMs, err := strconv.ParseInt(c.DefaultQuery("end_ms", "0"), 10, 64)
	if err != nil || endMs <= 0 {
		endMs = time.Now().UnixMilli()
	}
	if endMs <= startMs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_ms must be after start_ms"})
		return
	}

	track, err := h.tracks.Track(c.Request.Context(), deviceID, startMs, endMs)
	if err != nil {
		if errors.Is(err, mdvr.ErrNoData) {
			c.JSON(http.StatusOK, model.TrackPlayback{DeviceID: deviceID, Points: []model.TrackPoint{}})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, track)
}

// TrackDates returns the dates a device has recorded history for
// @Summary Available track dates
// @Tags GPS
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param start_date query string true "Range start, YYYY-MM-DD"
// @Param end_date query string true "Range end, YYYY-MM-DD"
// @Success 200 {object} map[string]interface{}
// @Router /devices/{id}/track/dates [get]
func (h *GpsHandler) TrackDates(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}

	startDate := c.Query("start_date")
	endDate := c.Query("end_date")
	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	if _, err := time.Parse("2006-01-02", endDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}

	dates, err := h.tracks.TrackDates(c.Request.Context(), deviceID, startDate, endDate)
	if err != nil {
		if errors.Is(err, mdvr.ErrNoData) {
			c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "dates": []string{}})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"dates":     dates,
		"total":     len(dates),
	})
}
