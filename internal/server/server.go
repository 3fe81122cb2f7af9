package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/processor"
	"github.com/creatorops/rotor/internal/publish"
	"github.com/creatorops/rotor/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Registry  *service.RegistryService
	Rotation  *service.RotationService
	Health    *service.HealthService
	Pipeline  *service.PipelineService
	Intake    *service.IntakeService
	Autopilot *service.AutopilotService
	Analytics *service.AnalyticsService
	Snapshot  *service.SnapshotService
	Ops       *service.OpsService
	Auth      *service.AuthService
	Bus       *service.EventBus
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Autopilot.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Autopilot.Timezone, err)
	}

	sessionTTL, err := time.ParseDuration(cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid session TTL: %w", err)
	}

	pipelineCfg, err := pipelineConfig(&cfg.Autopilot)
	if err != nil {
		return nil, err
	}

	// Initialize services
	bus := service.NewEventBus()
	ops := service.NewOpsService(db, logger)
	sessions := service.NewSessionStore(db)
	session, err := sessions.Load()
	if err != nil {
		return nil, err
	}

	registry := service.NewRegistryService(db, logger)
	rotation := service.NewRotationService(db, logger, loc)
	health := service.NewHealthService(db, logger, loc, service.DefaultHealthConfig())
	intake := service.NewIntakeService(&cfg.Intake, db, logger, ops)
	analytics := service.NewAnalyticsService(db, logger, loc)
	snapshot := service.NewSnapshotService(&cfg.Analytics, db, logger, loc, health, ops)
	auth := service.NewAuthService(logger, cfg.Auth.TOTPSecret, sessionTTL)

	publishers := publish.NewManager(logger)
	for i := range cfg.Publishers {
		bridge := &cfg.Publishers[i]
		if !bridge.Enabled {
			continue
		}
		if err := publishers.Register(publish.NewBridge(bridge, logger)); err != nil {
			return nil, fmt.Errorf("failed to register publisher: %w", err)
		}
	}

	pipeline := service.NewPipelineService(db, logger, pipelineCfg, service.PipelineDeps{
		Rotation:   rotation,
		Health:     health,
		Ops:        ops,
		Bus:        bus,
		Sessions:   sessions,
		SessionID:  session.ID,
		Processor:  processor.NewBridge(&cfg.Processor, logger),
		Publishers: publishers,
	})

	autopilot := service.NewAutopilotService(&cfg.Autopilot, logger, loc,
		rotation, health, pipeline, intake, sessions, ops, bus, session)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:    cfg,
		DB:        db,
		Router:    router,
		Logger:    logger,
		Registry:  registry,
		Rotation:  rotation,
		Health:    health,
		Pipeline:  pipeline,
		Intake:    intake,
		Autopilot: autopilot,
		Analytics: analytics,
		Snapshot:  snapshot,
		Ops:       ops,
		Auth:      auth,
		Bus:       bus,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func pipelineConfig(cfg *config.Autopilot) (service.PipelineConfig, error) {
	pc := service.DefaultPipelineConfig()
	pc.MaxRetries = cfg.MaxRetries

	var err error
	if pc.RetryBackoff, err = time.ParseDuration(cfg.RetryBackoff); err != nil {
		return pc, fmt.Errorf("invalid retry backoff: %w", err)
	}
	if pc.MaxRetryBackoff, err = time.ParseDuration(cfg.MaxRetryBackoff); err != nil {
		return pc, fmt.Errorf("invalid max retry backoff: %w", err)
	}
	if pc.StepTimeout, err = time.ParseDuration(cfg.StepTimeout); err != nil {
		return pc, fmt.Errorf("invalid step timeout: %w", err)
	}
	return pc, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Auth middleware
	s.Router.Use(s.Auth.AuthMiddleware())
}

func (s *Server) setupRoutes() {
	// Liveness check
	s.Router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.handleLogin)
			auth.POST("/logout", s.handleLogout)
		}

		autopilot := api.Group("/autopilot")
		{
			autopilot.GET("/status", s.handleAutopilotStatus)
			autopilot.POST("/start", s.handleAutopilotStart)
			autopilot.POST("/pause", s.handleAutopilotPause)
			autopilot.POST("/resume", s.handleAutopilotResume)
			autopilot.POST("/stop", s.handleAutopilotStop)
			autopilot.GET("/events", s.handleAutopilotEvents)
		}

		accounts := api.Group("/accounts")
		{
			accounts.GET("/overview", s.handleAccountsOverview)
			accounts.POST("", s.handleAccountCreate)
			accounts.DELETE("/:id", s.handleAccountDelete)
			accounts.PATCH("/:id/status", s.handleAccountStatus)
			accounts.POST("/rotation", s.handleRotationAssign)
		}

		uploads := api.Group("/uploads")
		{
			uploads.GET("", s.handleUploadsList)
			uploads.POST("", s.handleUploadCreate)
		}

		api.GET("/health", s.handleHealthOverview)
		api.GET("/calendar", s.handleCalendar)
		api.GET("/analytics/summary", s.handleAnalyticsSummary)
		api.GET("/opslog", s.handleOpsLog)
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Requeue anything a previous process left mid-flight before the
	// loop can start claiming.
	if _, err := s.Pipeline.RecoverInFlight(); err != nil {
		return fmt.Errorf("failed to recover in-flight jobs: %w", err)
	}

	if err := s.Autopilot.Restore(); err != nil {
		return fmt.Errorf("failed to restore autopilot session: %w", err)
	}

	if err := s.Snapshot.Start(); err != nil {
		return fmt.Errorf("failed to start snapshot scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop schedulers first, then drain workers
	s.Snapshot.Stop()
	s.Autopilot.Shutdown(shutdownCtx)

	if s.Server == nil {
		return nil
	}

	return s.Server.Shutdown(shutdownCtx)
}
