package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"roadapp/api/internal/config"
	"roadapp/api/internal/handler"
	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/middleware"
	"roadapp/api/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	db     *gorm.DB
	redis  *redis.Client
	nats   *nats.Conn

	vendorClient *mdvr.Client
	cacheService *service.CacheService
	autoConfig   *service.AutoConfigService
	wsHub        *handler.WSHub
	wsHandler    *handler.WSHandler
	httpServer   *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) *Server {
	return &Server{
		config: cfg,
		db:     db,
		redis:  redisClient,
		nats:   natsConn,
	}
}

// Setup initializes services, handlers and routes
func (s *Server) Setup() {
	// Vendor access and normalization stack
	ts := mdvr.NewTimestampNormalizer(s.config.VendorClockSkewSeconds, s.config.VendorTimezoneOffsetHours)
	s.vendorClient = mdvr.NewClient(s.config.VendorBaseURL, s.config.VendorAccount, s.config.VendorPassword, ts)

	// WebSocket hub first (the ingest path publishes into its subjects)
	s.wsHub = handler.NewWSHub(s.nats)
	s.wsHandler = handler.NewWSHandler(s.wsHub)

	// Services
	s.cacheService = service.NewCacheService(s.db, s.redis, s.vendorClient, s.config)
	geocoder := service.NewNominatimGeocoder(s.redis)
	dispatcher := service.NewNatsPushDispatcher(s.nats)
	notifyService := service.NewNotificationService(s.db, dispatcher)
	ingestService := service.NewIngestService(s.db, s.nats, s.cacheService, notifyService, geocoder, ts)
	authService := service.NewAuthService(s.db)
	deviceService := service.NewDeviceService(s.db, s.vendorClient, s.vendorClient, s.cacheService, notifyService)
	importService := service.NewDeviceImportService(s.db, deviceService)
	alarmService := service.NewAlarmService(s.db, s.vendorClient)
	settingsService := service.NewSettingsService(s.db)
	statsService := service.NewStatsService(s.db)
	s.autoConfig = service.NewAutoConfigService(s.db, s.cacheService, s.vendorClient, s.config)

	// Handlers
	authHandler := handler.NewAuthHandler(authService, s.config)
	deviceHandler := handler.NewDeviceHandler(deviceService, s.cacheService)
	deviceHandler.SetImportService(importService)
	gpsHandler := handler.NewGpsHandler(s.cacheService, deviceService, s.vendorClient)
	alarmHandler := handler.NewAlarmHandler(alarmService, deviceService)
	webhookHandler := handler.NewWebhookHandler(ingestService, statsService, s.config)
	notificationHandler := handler.NewNotificationHandler(settingsService)
	adminHandler := handler.NewAdminHandler(authService, statsService)

	go s.wsHub.Run()
	log.Println("[Server] WebSocket hub started")

	s.router = gin.Default()

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Forwarding-Secret")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
	s.router.Use(middleware.RateLimit(s.config, s.redis))

	// Swagger UI
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Public routes
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.router.POST("/api/v1/auth/login", authHandler.Login)
	s.router.POST("/api/v1/forwarding/receive", webhookHandler.Receive)

	// WebSocket routes
	s.router.GET("/ws/stream", s.wsHandler.HandleStream)
	s.router.GET("/ws/stats", s.wsHandler.GetStats)

	// Protected routes
	api := s.router.Group("/api/v1")
	api.Use(authHandler.AuthMiddleware())
	{
		api.GET("/devices", deviceHandler.List)
		api.POST("/devices", deviceHandler.Create)
		api.GET("/devices/status", deviceHandler.StatusAll)
		api.GET("/devices/unassigned", deviceHandler.Unassigned)
		api.GET("/devices/import/template", deviceHandler.ImportTemplate)
		api.POST("/devices/import", deviceHandler.Import)
		api.POST("/devices/sync", deviceHandler.Sync)
		api.POST("/devices/sync/registry", deviceHandler.SyncRegistry)
		api.GET("/devices/:id", deviceHandler.Get)
		api.DELETE("/devices/:id", deviceHandler.Delete)
		api.POST("/devices/:id/assign", deviceHandler.Assign)
		api.GET("/devices/:id/status", deviceHandler.Status)

		api.GET("/devices/:id/gps/latest", gpsHandler.Latest)
		api.GET("/devices/:id/track", gpsHandler.Track)
		api.GET("/devices/:id/track/dates", gpsHandler.TrackDates)

		api.GET("/devices/:id/alarms", alarmHandler.List)
		api.GET("/devices/:id/alarms/summary", alarmHandler.Summary)
		api.GET("/devices/:id/alarms/vendor", alarmHandler.VendorHistory)
		api.POST("/devices/:id/alarms/read", alarmHandler.MarkRead)
		api.POST("/devices/:id/alarms/:alarm_id/ack", alarmHandler.Acknowledge)

		api.POST("/notifications/token", notificationHandler.RegisterToken)
		api.DELETE("/notifications/token", notificationHandler.DeactivateToken)
		api.GET("/notifications/settings", notificationHandler.GetSettings)
		api.PUT("/notifications/settings", notificationHandler.UpdateSetting)

		api.GET("/forwarding/stats", webhookHandler.Stats)

		api.POST("/admin/users", adminHandler.CreateUser)
		api.GET("/admin/users", adminHandler.ListUsers)
		api.GET("/admin/overview", adminHandler.Overview)
	}
}

// StartBackground starts the background workers
func (s *Server) StartBackground() {
	s.autoConfig.Start()
}

// Run starts the HTTP server (blocking)
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server and workers
func (s *Server) Shutdown(ctx context.Context) error {
	s.autoConfig.Stop()
	s.wsHub.Stop()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
