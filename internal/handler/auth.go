package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"roadapp/api/internal/config"
	"roadapp/api/internal/model"
	"roadapp/api/internal/service"
)

// AuthHandler handles login and JWT verification
type AuthHandler struct {
	authService *service.AuthService
	config      *config.Config
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, config: cfg}
}

// Login authenticates a user and issues a JWT
// @Summary Login
// @Description Authenticate with username and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body model.LoginRequest true "Credentials"
// @Success 200 {object} model.LoginResponse
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.config.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}

	c.JSON(http.StatusOK, model.LoginResponse{Token: signed, User: *user})
}

// AuthMiddleware verifies the Bearer token and stores the claims
func (h *AuthHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set("claims", claims)
		}
		c.Next()
	}
}

// getUserIDFromContext extracts the authenticated user ID from the JWT claims
func getUserIDFromContext(c *gin.Context) int {
	if claims, exists := c.Get("claims"); exists {
		if jwtClaims, ok := claims.(jwt.MapClaims); ok {
			if userID, ok := jwtClaims["user_id"].(float64); ok {
				return int(userID)
			}
		}
	}
	return 0
}

// isAdminFromContext reports whether the authenticated user is an admin
func isAdminFromContext(c *gin.Context) bool {
	if claims, exists := c.Get("claims"); exists {
		if jwtClaims, ok := claims.(jwt.MapClaims); ok {
			if isAdmin, ok := jwtClaims["is_admin"].(bool); ok {
				return isAdmin
			}
		}
	}
	return false
}
