package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"roadapp/api/internal/config"
)

// RateLimit enforces the configured per-path request limits with a
// Redis fixed-window counter. Redis being down fails open: dropping
// requests because the limiter is unavailable would outage the API on
// top of the Redis outage.
func RateLimit(cfg *config.Config, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RateLimit.Enabled || redisClient == nil {
			c.Next()
			return
		}

		rule := cfg.RuleForPath(c.Request.URL.Path)
		key := limiterKey(c, &rule)
		window := time.Now().Unix() / int64(rule.Window.Seconds())
		redisKey := fmt.Sprintf("road:ratelimit:%s:%d", key, window)

		ctx := c.Request.Context()
		count, err := redisClient.Incr(ctx, redisKey).Result()
		if err != nil {
			log.Printf("[RateLimit] Redis error, failing open: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			redisClient.Expire(ctx, redisKey, rule.Window)
		}

		remaining := int64(rule.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rule.Limit) {
			retryAfter := rule.Window.Seconds()
			c.Header("Retry-After", strconv.Itoa(int(retryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// limiterKey scopes the counter by authenticated user when the rule
// asks for it and a user is present, otherwise by client IP.
func limiterKey(c *gin.Context, rule *config.RateLimitRule) string {
	if rule.ByUser {
		if claims, exists := c.Get("claims"); exists {
			if jwtClaims, ok := claims.(jwt.MapClaims); ok {
				if userID, ok := jwtClaims["user_id"].(float64); ok {
					return fmt.Sprintf("user:%d:%s", int(userID), rule.Path)
				}
			}
		}
	}
	return fmt.Sprintf("ip:%s:%s", c.ClientIP(), rule.Path)
}
