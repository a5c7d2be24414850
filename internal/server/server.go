package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"wechat-reader/internal/auth"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat"
	"wechat-reader/internal/server/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	config   *core.Config
	logger   *core.Logger
	db       *core.Database
	registry *core.Registry
	wechat   *wechat.Feature
	server   *http.Server
}

// New opens the database, registers features and builds the router
func New(ctx context.Context, config *core.Config, logger *core.Logger) (*Server, error) {
	db, err := openDatabase(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry := core.NewRegistry(logger)

	srv := &Server{
		config:   config,
		logger:   logger,
		db:       db,
		registry: registry,
	}

	// Register features if enabled
	if config.IsFeatureEnabled("wechat") {
		feature, err := wechat.NewFeature(ctx, logger, db, wechat.NewConfig(config))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create wechat feature: %w", err)
		}
		if err := registry.Register(feature); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to register wechat feature: %w", err)
		}
		srv.wechat = feature
	}

	srv.setupRoutes()
	return srv, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) setupRoutes() {
	systemHandler := handlers.NewSystemHandler(s.logger, s.registry, s.db)

	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)

	mux.Get("/health", systemHandler.HealthCheckHandler)

	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	if s.wechat != nil {
		if dir := s.wechat.LocalImageDir(); dir != "" {
			prefix := s.wechat.ImagePublicPrefix()
			mux.Get(prefix+"/*", handlers.ImageHandler(prefix, dir))
		}
	}

	// Feature routes
	mux.Group(func(r chi.Router) {
		r.Use(auth.Identify)
		s.registry.Mount(r)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Init initializes all registered features
func (s *Server) Init(ctx context.Context) error {
	if err := s.registry.InitAll(ctx); err != nil {
		s.logger.Error("Failed to initialize features", "error", err)
		return err
	}
	return nil
}

// Start initializes features and serves HTTP until the server is shut down
func (s *Server) Start(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	s.logger.Info("Starting server", "host", s.config.Server.Host, "port", s.config.Server.Port)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown HTTP server", "error", err)
	}

	if err := s.registry.ShutdownAll(ctx); err != nil {
		s.logger.Error("Failed to shutdown features", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
