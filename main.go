package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ejectlabs/eject/internal/auth"
	"github.com/ejectlabs/eject/internal/config"
	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/database"
	"github.com/ejectlabs/eject/internal/deploy"
	"github.com/ejectlabs/eject/internal/events"
	"github.com/ejectlabs/eject/internal/handler"
	"github.com/ejectlabs/eject/internal/health"
	"github.com/ejectlabs/eject/internal/model"
	"github.com/ejectlabs/eject/internal/monitor"
	"github.com/ejectlabs/eject/internal/service"
	"github.com/ejectlabs/eject/internal/vcs"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db := database.Init(cfg.DBPath)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// GitHub client for repository creation and source pushes
	vcsClient, err := vcs.New(cfg.GithubToken, cfg.GithubOwner, cfg.GithubAPI)
	if err != nil {
		log.Fatalf("Failed to build GitHub client: %v", err)
	}

	// Coolify credentials live on each server record, so platform clients are
	// built per server through this factory
	paasFactory := func(server *model.Server) deploy.PaaS {
		return coolify.New(server.CoolifyURL, server.CoolifyToken, coolify.WithTimeout(cfg.HTTPTimeout))
	}

	bus := events.NewBus(logger)
	hub := events.NewHub()

	// Bridge deployment record events onto the websocket stream
	bus.Subscribe("*", func(event events.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Error("marshal event", "type", event.Type, "error", err)
			return
		}
		hub.Broadcast(payload)
	})

	// Initialize services
	deploySvc := deploy.NewService(
		db,
		paasFactory,
		vcsClient,
		health.NewProber(),
		deploy.NewCoolifyRemover(paasFactory, logger),
		bus,
		logger,
	)
	serverSvc := service.NewServerService(db, logger)

	// Background reconciler for deployments stuck in deploying
	mon := monitor.New(db, deploySvc, logger, cfg.MonitorInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	// Setup Gin
	r := gin.Default()

	// CORS: allow the frontend dev server and same-origin requests
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
	}))

	// ============ API Routes ============
	api := r.Group("/api")

	// Public routes (no auth required)
	limiter := auth.NewRateLimiter(5, 900)
	authH := handler.NewAuthHandler(db, cfg, limiter)
	api.POST("/auth/login", authH.Login)
	api.POST("/auth/setup", authH.Setup)
	api.GET("/auth/need-setup", authH.NeedSetup)

	// Protected routes (JWT required)
	protected := api.Group("")
	protected.Use(auth.Middleware(cfg.JWTSecret))

	// User info
	protected.GET("/auth/me", authH.Me)

	// Server CRUD
	serverH := handler.NewServerHandler(serverSvc, deploySvc, db)
	protected.GET("/servers", serverH.List)
	protected.POST("/servers", serverH.Create)
	protected.GET("/servers/:id", serverH.Get)
	protected.PUT("/servers/:id", serverH.Update)
	protected.DELETE("/servers/:id", serverH.Delete)
	protected.GET("/servers/:id/applications", serverH.Applications)

	// Per-server maintenance
	maintenanceH := handler.NewMaintenanceHandler(deploySvc, db)
	protected.POST("/servers/:id/orphans/cleanup", maintenanceH.OrphanCleanup)
	protected.POST("/servers/:id/purge", maintenanceH.Purge)

	// Deployment lifecycle
	deploymentH := handler.NewDeploymentHandler(deploySvc, cfg, db)
	protected.GET("/deployments", deploymentH.List)
	protected.POST("/deployments", deploymentH.Deploy)
	protected.GET("/deployments/:id", deploymentH.Get)
	protected.GET("/deployments/:id/attempts", deploymentH.Attempts)
	protected.POST("/deployments/:id/retry", deploymentH.Retry)
	protected.POST("/deployments/:id/reconcile", deploymentH.Reconcile)
	protected.POST("/deployments/:id/secrets-cleanup", deploymentH.SecretsCleanup)

	// Dashboard and audit trail
	dashboardH := handler.NewDashboardHandler(db)
	protected.GET("/dashboard", dashboardH.Stats)
	auditH := handler.NewAuditHandler(db)
	protected.GET("/audit-logs", auditH.List)

	// Live event stream
	streamH := handler.NewStreamHandler(hub, logger)
	protected.GET("/events", streamH.Events)

	// Start server
	addr := ":" + cfg.Port
	log.Printf("🚀 eject starting on http://localhost%s", addr)
	log.Printf("📁 Data directory: %s", cfg.DataDir)
	log.Printf("📦 Exports directory: %s", cfg.ExportsDir)

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
