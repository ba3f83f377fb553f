package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/workerd/internal/config"
	"github.com/GriffinCanCode/workerd/internal/logging"
	"github.com/GriffinCanCode/workerd/internal/monitoring"
	"github.com/GriffinCanCode/workerd/internal/worker"
)

// Server wraps the HTTP surface and the worker manager.
type Server struct {
	router   *gin.Engine
	manager  *worker.Manager
	manifest *config.Manifest
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing worker runtime",
		zap.String("port", cfg.Server.Port),
		zap.String("script_root", cfg.Worker.ScriptRoot),
	)

	metrics := monitoring.NewMetrics()

	var manifest *config.Manifest
	if cfg.Worker.Manifest != "" {
		m, err := config.LoadManifest(cfg.Worker.Manifest)
		if err != nil {
			return nil, err
		}
		manifest = m
		logger.Info("Loaded worker manifest",
			zap.String("path", cfg.Worker.Manifest),
			zap.Int("aliases", len(m.Workers)),
		)
	}

	manager := worker.NewManager(worker.Options{
		ScriptRoot:       cfg.Worker.ScriptRoot,
		QueueSize:        cfg.Worker.QueueSize,
		MaxWorkers:       cfg.Worker.MaxWorkers,
		MaxCallStackSize: cfg.Worker.MaxCallStack,
	}, logger.Named("worker"), metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(corsMiddleware())
	if cfg.RateLimit.Enabled {
		router.Use(rateLimitMiddleware(cfg.RateLimit))
	}

	s := &Server{
		router:   router,
		manager:  manager,
		manifest: manifest,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)

	router.POST("/workers", s.createWorker)
	router.GET("/workers", s.listWorkers)
	router.GET("/workers/:id", s.getWorker)
	router.POST("/workers/:id/messages", s.postMessage)
	router.DELETE("/workers/:id", s.terminateWorker)
	router.GET("/workers/:id/events", s.streamEvents)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized")
	return s, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down all workers.
func (s *Server) Close() error {
	s.logger.Info("Shutting down workers...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("Worker shutdown incomplete", zap.Error(err))
		return err
	}

	s.logger.Sync()
	return nil
}
