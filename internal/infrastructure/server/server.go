package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/crawlrun/internal/api/http"
	"github.com/GriffinCanCode/crawlrun/internal/api/middleware"
	"github.com/GriffinCanCode/crawlrun/internal/domain/pipeline"
	"github.com/GriffinCanCode/crawlrun/internal/domain/sandbox"
	"github.com/GriffinCanCode/crawlrun/internal/domain/target"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/config"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/logging"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	handler    http.Handler
	httpServer *http.Server
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
}

// NewLogger builds the process logger from configuration
func NewLogger(cfg config.LogConfig) (*logging.Logger, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		logCfg.Level = cfg.Level
	}
	return logging.New(logCfg)
}

// NewServer creates a new server instance. A nil logger is replaced by one
// built from cfg.Logging.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		l, err := NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	logger.Info("Initializing crawlrun server",
		zap.String("addr", cfg.Address()),
		zap.Int("max_code_length", cfg.Pipeline.MaxCodeLength),
		zap.Duration("fetch_timeout", cfg.Pipeline.FetchTimeout),
		zap.Duration("exec_timeout", cfg.Pipeline.ExecTimeout),
		zap.Bool("pin_resolved", cfg.Pipeline.PinResolved),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("crawlrun", logger.Named("trace").Logger)

	orchestrator := pipeline.Build(pipeline.Limits{
		MaxCodeLength: cfg.Pipeline.MaxCodeLength,
		FetchTimeout:  cfg.Pipeline.FetchTimeout,
		ExecTimeout:   cfg.Pipeline.ExecTimeout,
		PinResolved:   cfg.Pipeline.PinResolved,
		UserAgent:     cfg.Pipeline.FetchUserAgent,
	}, logger.Logger).WithMetrics(metrics).WithTracer(tracer)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.Recovery(logger.Named("http").Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.HeadAndOptions())
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Bool("global", cfg.RateLimit.Global),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		if cfg.RateLimit.Global {
			router.Use(middleware.GlobalRateLimit(rl))
		} else {
			router.Use(middleware.RateLimit(rl))
		}
	}

	handlers := api.NewHandlers(orchestrator, api.Limits{
		MaxCodeLength:   cfg.Pipeline.MaxCodeLength,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		FetchTimeout:    cfg.Pipeline.FetchTimeout,
		ExecTimeout:     cfg.Pipeline.ExecTimeout,
	}, api.Policy{
		Capabilities:  sandbox.DefaultCapabilities().Names(),
		BlockedRanges: blockedRanges(target.DefaultDenylist()),
	}, metrics)

	router.NoRoute(handlers.NotFound)
	router.NoMethod(handlers.MethodNotAllowed)

	router.GET("/", handlers.Help)
	router.GET("/help", handlers.Help)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.POST("/run", handlers.Run)

	handler := gzhttp.GzipHandler(router)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		handler: handler,
		httpServer: &http.Server{
			Addr:              cfg.Address(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until it stops. A graceful shutdown
// returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on ln
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then flushes spans and logs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}
	s.tracer.Close()

	_ = s.logger.Sync()
	return err
}

func blockedRanges(d *target.Denylist) []string {
	prefixes := d.Prefixes()
	ranges := make([]string, len(prefixes))
	for i, p := range prefixes {
		ranges[i] = p.String()
	}
	return ranges
}
