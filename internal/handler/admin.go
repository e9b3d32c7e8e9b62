package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"roadapp/api/internal/model"
	"roadapp/api/internal/service"
)

// AdminHandler handles user administration and the dashboard overview
type AdminHandler struct {
	authService  *service.AuthService
	statsService *service.StatsService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authService *service.AuthService, statsService *service.StatsService) *AdminHandler {
	return &AdminHandler{authService: authService, statsService: statsService}
}

func (h *AdminHandler) requireAdmin(c *gin.Context) bool {
	if !isAdminFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
		return false
	}
	return true
}

// CreateUser registers a new app user (admin only)
// @Summary Create user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param user body model.CreateUserRequest true "User"
// @Success 201 {object} model.User
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &model.User{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		IsAdmin:  req.IsAdmin,
		Status:   1,
	}
	if err := h.authService.CreateUser(c.Request.Context(), user); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ListUsers pages user accounts with device counts (admin only)
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	users, total, err := h.statsService.ListUsers(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":       users,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// Overview returns the admin dashboard headline (admin only)
// @Summary Dashboard overview
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SystemOverview
// @Router /admin/overview [get]
func (h *AdminHandler) Overview(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	overview, err := h.statsService.Overview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, overview)
}
