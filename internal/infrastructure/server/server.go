package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/synatrahq/synatra-sub006/internal/api/http"
	"github.com/synatrahq/synatra-sub006/internal/api/middleware"
	"github.com/synatrahq/synatra-sub006/internal/gateway"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/config"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/logging"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/monitoring"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/tracing"
	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

// Server wraps the HTTP server and the sandbox pool behind it
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	pool     *sandbox.Pool
	http     *http.Server
}

// New wires metrics, tracing, the gateway client, the pool and the router
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	logger.Info("Initializing sandbox server",
		zap.String("addr", cfg.Addr()),
		zap.Int("pool_size", cfg.Pool.Size),
		zap.Int("queue_limit", cfg.Pool.QueueLimit),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	tracer := tracing.New("sandbox", logger.Named("tracing").Logger)

	var gw sandbox.ResourceGateway
	if cfg.Gateway.URL != "" {
		client, err := gateway.New(gateway.Options{
			URL:             cfg.Gateway.URL,
			Secret:          cfg.Gateway.Secret,
			Timeout:         cfg.Gateway.Timeout.Std(),
			Retries:         cfg.Gateway.Retries,
			RPS:             cfg.Gateway.RPS,
			Burst:           cfg.Gateway.Burst,
			BreakerFailures: cfg.Gateway.BreakerFailures,
			BreakerTimeout:  cfg.Gateway.BreakerTimeout.Std(),
		}, logger, metrics)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to create gateway client: %w", err)
		}
		gw = client
		logger.Info("Resource gateway configured", zap.String("url", cfg.Gateway.URL))
	} else {
		logger.Warn("No resource gateway configured, resource calls will be rejected")
	}

	pool, err := sandbox.NewPool(cfg.Sandbox(), gw, logger.Named("pool"))
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pool.WithObserver(metrics)

	s := &Server{
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		tracer:   tracer,
		pool:     pool,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) handler() http.Handler {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	if cfg.CORS.Enabled {
		cors := middleware.DefaultCORSConfig()
		if len(cfg.CORS.Origins) > 0 {
			cors.AllowOrigins = cfg.CORS.Origins
		}
		router.Use(middleware.CORS(cors))
	}

	handlers := apihttp.NewHandlers(s.pool, s.metrics, s.tracer, s.logger)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	api := router.Group("/")
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		api.Use(middleware.RateLimit(rl))
	}
	if cfg.Auth.ServiceSecret == "" {
		s.logger.Warn("SERVICE_SECRET is empty, inbound requests are not authenticated")
	}
	api.Use(middleware.ServiceAuth(cfg.Auth.ServiceSecret))
	api.POST("/execute", handlers.Execute)
	api.GET("/stats", handlers.Stats)

	if !cfg.Server.Gzip {
		return router
	}
	return gzhttp.GzipHandler(router)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Pool returns the sandbox pool
func (s *Server) Pool() *sandbox.Pool {
	return s.pool
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires, then shuts the pool down. Executions still running are aborted
// with a shutdown error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("HTTP shutdown did not complete", zap.Error(err))
	}

	s.pool.Shutdown()
	s.tracer.Close()
	s.logger.Info("Server stopped")
	return err
}
