package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/l0n3m4n/exposerver/pkg/accesslog"
	"github.com/l0n3m4n/exposerver/pkg/auth"
	"github.com/l0n3m4n/exposerver/pkg/config"
	"github.com/l0n3m4n/exposerver/pkg/listing"
	"github.com/l0n3m4n/exposerver/pkg/metadata"
	"github.com/l0n3m4n/exposerver/pkg/metrics"
	"github.com/l0n3m4n/exposerver/pkg/pathguard"
	"github.com/l0n3m4n/exposerver/pkg/telemetry"
	"github.com/l0n3m4n/exposerver/pkg/upload"
)

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	logger    *logrus.Logger
	gate      *auth.Gate
	accessLog *accesslog.Log
	extractor metadata.Extractor
	renderer  *listing.Renderer
	store     *upload.Store
	tracer    trace.Tracer

	engine        *gin.Engine
	server        *http.Server
	metricsServer *http.Server
}

// Option customizes a Server
type Option func(*Server)

// WithExtractor overrides the metadata extractor chosen at startup.
func WithExtractor(e metadata.Extractor) Option {
	return func(s *Server) {
		s.extractor = e
	}
}

// WithClock sets the time source for stored upload names.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.store.WithClock(now)
	}
}

// New creates a new server instance
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Server, error) {
	store, err := upload.NewStore(cfg.Server.UploadDir)
	if err != nil {
		return nil, err
	}

	renderer := listing.NewRenderer(cfg.Server.AssetsDir)
	if cfg.Server.SingleFile == "" {
		if err := renderer.CheckTemplate(); err != nil {
			return nil, fmt.Errorf("failed to load listing template: %w", err)
		}
	}

	// Set gin mode based on log level
	if logger.Level == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	// Log the peer address, not a client-supplied X-Forwarded-For
	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to configure trusted proxies: %w", err)
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		gate:      auth.NewGate(cfg.Auth),
		accessLog: accesslog.New(cfg.Log.File, cfg.Log.JSON),
		renderer:  renderer,
		store:     store,
		tracer:    otel.Tracer(telemetry.ServiceName),
		engine:    engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = metadata.New(logger)
	}

	// Add middleware
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(ginLogger(logger))
	engine.Use(metrics.Middleware())

	// Add OpenTelemetry middleware if telemetry is enabled
	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware(telemetry.ServiceName))
	}

	engine.Use(securityHeaders())

	if s.gate.Enabled() {
		engine.Use(authMiddleware(s.gate, s.accessLog, logger))
	}

	// Only requests that passed the gate reach the request log
	engine.Use(accessLogger(s.accessLog))

	if cfg.Server.SingleFile != "" {
		engine.Use(s.singleFileGuard())
	}

	s.setupRoutes()

	return s, nil
}

// Start starts the HTTP server and, when configured, the metrics listener.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.config.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			s.logger.Infof("Serving metrics on %s/metrics", s.config.Metrics.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	s.logger.Infof("Serving %s on %s", s.config.Server.Directory, s.config.Server.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warnf("Metrics server shutdown error: %v", err)
		}
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Engine returns the gin engine for testing purposes
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Extractor returns the metadata extractor in use
func (s *Server) Extractor() metadata.Extractor {
	return s.extractor
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Access log retrieval
	s.engine.GET(logsPath, s.handleLogs)
	s.engine.HEAD(logsPath, s.handleLogs)

	// Metadata extraction
	s.engine.GET("/metadata", s.handleMetadata)

	// UI assets
	s.engine.GET("/assets/ui/*filepath", s.handleAsset)

	// Uploads
	s.engine.POST("/upload", s.handleUpload)

	// Everything else: served tree for GET/HEAD, 404 for POST, 405 otherwise
	s.engine.NoRoute(s.handleFallback)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pathguard.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, upload.ErrMalformedUpload),
		errors.Is(err, upload.ErrNotMultipart),
		errors.Is(err, upload.ErrNoBoundary),
		errors.Is(err, upload.ErrEmptyBody),
		errors.Is(err, errUploadTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes a plain-text error response
func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		"status": status,
		"path":   c.Request.URL.Path,
		"ip":     c.ClientIP(),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if status >= 500 {
		entry.Error(msg)
	} else {
		entry.Debug(msg)
	}
	c.String(status, msg)
}
