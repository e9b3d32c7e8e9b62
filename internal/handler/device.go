package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roadapp/api/internal/model"
	"roadapp/api/internal/service"
)

// DeviceHandler handles device-related requests
type DeviceHandler struct {
	deviceService *service.DeviceService
	cacheService  *service.CacheService
	importService *service.DeviceImportService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, cacheService *service.CacheService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService, cacheService: cacheService}
}

// SetImportService sets the bulk import service
func (h *DeviceHandler) SetImportService(importService *service.DeviceImportService) {
	h.importService = importService
}

// requireDeviceAccess aborts unless the caller owns the device or is
// an admin. Returns true when access is granted.
func (h *DeviceHandler) requireDeviceAccess(c *gin.Context, deviceID string) bool {
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

// List returns the caller's devices
// @Summary List devices
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	userID := getUserIDFromContext(c)
	if isAdminFromContext(c) {
		userID = 0
	}

	devices, total, err := h.deviceService.List(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":   devices,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Get returns one device
// @Summary Get device
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 200 {object} model.Device
// @Router /devices/{id} [get]
func (h *DeviceHandler) Get(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	device, err := h.deviceService.Get(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, device)
}

// Status returns the device's cached status with provenance
// @Summary Get device status
// @Description Cached status; falls back to a live vendor query when stale
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 200 {object} model.DeviceStatus
// @Router /devices/{id}/status [get]
func (h *DeviceHandler) Status(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.requireDeviceAccess(c, deviceID) {
		return
	}
	status, err := h.cacheService.GetStatus(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// StatusAll returns cached statuses for the caller's whole fleet in
// one call. Rows are served as cached, stale or not; no vendor calls.
// @Summary Fleet status
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /devices/status [get]
func (h *DeviceHandler) StatusAll(c *gin.Context) {
	// nil means every cached device; only admins get that view.
	var ids []string
	if !isAdminFromContext(c) {
		owned, err := h.deviceService.OwnedIDs(c.Request.Context(), getUserIDFromContext(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(owned) == 0 {
			c.JSON(http.StatusOK, gin.H{"devices": []model.DeviceStatus{}, "count": 0})
			return
		}
		ids = owned
	}

	statuses, err := h.cacheService.ListStatuses(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	online := 0
	for i := range statuses {
		if statuses[i].Online {
			online++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": statuses,
		"count":   len(statuses),
		"online":  online,
		"offline": len(statuses) - online,
	})
}

// Create registers a device (admin only)
// @Summary Create device
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param device body model.CreateDeviceRequest true "Device"
// @Success 201 {object} model.Device
// @Router /devices [post]
func (h *DeviceHandler) Create(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	var req model.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	device, err := h.deviceService.Create(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, device)
}

// Assign binds a device to a user (admin only)
// @Summary Assign device
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param assignment body model.AssignDeviceRequest true "Assignment"
// @Success 200 {object} map[string]string
// @Router /devices/{id}/assign [post]
func (h *DeviceHandler) Assign(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	var req model.AssignDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deviceService.Assign(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "assigned"})
}

// Delete removes a device (admin only)
// @Summary Delete device
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 200 {object} map[string]string
// @Router /devices/{id} [delete]
func (h *DeviceHandler) Delete(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	if err := h.deviceService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ImportTemplate downloads the xlsx import template
// @Summary Download device import template
// @Tags Devices
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Success 200 {file} binary
// @Router /devices/import/template [get]
func (h *DeviceHandler) ImportTemplate(c *gin.Context) {
	buf, err := h.importService.GenerateTemplate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="device_import_template.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Import bulk-registers devices from an uploaded workbook (admin only)
// @Summary Import devices from xlsx
// @Tags Devices
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Workbook"
// @Success 200 {object} model.DeviceImportResult
// @Router /devices/import [post]
func (h *DeviceHandler) Import(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	reader, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer reader.Close()

	result, err := h.importService.Import(c.Request.Context(), reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Sync pulls the vendor device-state list into the cache (admin only)
// @Summary Sync device states from vendor
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /devices/sync [post]
func (h *DeviceHandler) Sync(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	if err := h.deviceService.SyncStatuses(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

// SyncRegistry reconciles the local registry against the vendor's
// device inventory (admin only)
// @Summary Sync device registry from vendor
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.DeviceSyncResult
// @Router /devices/sync/registry [post]
func (h *DeviceHandler) SyncRegistry(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	result, err := h.deviceService.SyncRegistry(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Unassigned lists devices with no owning user (admin only)
// @Summary List unassigned devices
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /devices/unassigned [get]
func (h *DeviceHandler) Unassigned(c *gin.Context) {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return
	}
	devices, err := h.deviceService.Unassigned(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	summary, err := h.deviceService.RegistrySummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"summary": summary,
	})
}
