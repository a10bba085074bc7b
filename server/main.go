package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/config"
	"github.com/san-kum/helmet-cv/server/handlers"
	"github.com/san-kum/helmet-cv/server/logging"
	"github.com/san-kum/helmet-cv/server/metrics"
	"github.com/san-kum/helmet-cv/server/middleware"
	"github.com/san-kum/helmet-cv/server/ml"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/processor"
	"github.com/san-kum/helmet-cv/server/session"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	detector    io.Closer
	pool        *ml.Pool
	sessions    *session.Store
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatal("Failed to load .env: ", err)
	}
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// the model is loaded once here; without it nothing can be served
	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("detector", cfg.Detector.Backend))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// stop accepting requests before tearing down what they use
	err = srv.Shutdown(ctx)
	err = multierr.Append(err, server.Close())
	if err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		return
	}

	logger.Info("Server exited")
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	m := metrics.New()

	if cfg.Video.UploadDir != "" {
		if err := os.MkdirAll(cfg.Video.UploadDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create upload dir: %w", err)
		}
	}

	detector, closer, err := newDetector(cfg.Detector, logger)
	if err != nil {
		return nil, err
	}
	pool := ml.NewPool(detector, cfg.Detector.QueueSize, cfg.Detector.Workers, logger)

	sessions := session.NewStore(session.StoreConfig{
		MaxSessions:     cfg.Session.MaxSessions,
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		HubBuffer:       cfg.Session.HubBuffer,
		Defaults: models.Thresholds{
			Confidence: cfg.Detection.Confidence,
			Overlap:    cfg.Detection.Overlap,
		},
	}, logger)
	sessions.OnEvict(func(*session.Session) { m.ActiveSessions.Dec() })

	frameProcessor := processor.NewFrameProcessor(pool, processor.OpenVidio, &processor.ProcessorConfig{
		Stride:         cfg.Video.Stride,
		FrameWidth:     cfg.Video.FrameWidth,
		FrameHeight:    cfg.Video.FrameHeight,
		RedrawInterval: cfg.Video.RedrawInterval,
		JPEGQuality:    cfg.Video.JPEGQuality,
	}, m, logger)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestMetrics(m))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))
	router.Use(middleware.InputValidation())

	sessionMiddleware := middleware.Sessions(sessions, middleware.SessionOptions{
		CookieName: cfg.Session.CookieName,
		MaxAge:     int(cfg.Session.TTL.Seconds()),
		Secure:     cfg.Session.CookieSecure,
		OnCreate:   func(*session.Session) { m.ActiveSessions.Inc() },
	})

	var classes ml.ClassNames
	if named, ok := detector.(interface{ Classes() ml.ClassNames }); ok {
		classes = named.Classes()
	}

	rt := &routes{
		detect: handlers.NewDetectHandler(frameProcessor, handlers.DetectConfig{
			UploadDir:    cfg.Video.UploadDir,
			VideoTimeout: cfg.Video.Timeout,
			JPEGQuality:  cfg.Video.JPEGQuality,
		}, logger),
		report:      handlers.NewReportHandler(logger),
		settings:    handlers.NewSettingsHandler(logger),
		ws:          handlers.NewWebSocketHandler(m, cfg.Security.AllowedOrigins, logger),
		stats:       handlers.NewStatsHandler(pool, sessions, rateLimiter, classes),
		sessions:    sessionMiddleware,
		rateLimiter: rateLimiter,
		metrics:     m,
	}
	rt.setup(router, cfg)

	return &Server{
		router:      router,
		logger:      logger,
		detector:    closer,
		pool:        pool,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		config:      cfg,
	}, nil
}

// newDetector builds the configured backend. The returned closer releases
// the model session or stops the remote health checker.
func newDetector(cfg config.DetectorConfig, logger *zap.Logger) (ml.Detector, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		remote := ml.NewRemoteDetector(cfg.RemoteURL, &ml.RemoteConfig{
			Timeout:             cfg.Timeout,
			HealthCheckInterval: cfg.HealthCheckInterval,
			JPEGQuality:         90,
		}, logger)
		return remote, remote, nil
	default:
		onnx, err := ml.NewONNXDetector(ml.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			ClassesPath: cfg.ClassesPath,
			InputWidth:  cfg.InputWidth,
			InputHeight: cfg.InputHeight,
			Threads:     cfg.Threads,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load model %s: %w", cfg.ModelPath, err)
		}
		return onnx, onnx, nil
	}
}

type routes struct {
	detect      *handlers.DetectHandler
	report      *handlers.ReportHandler
	settings    *handlers.SettingsHandler
	ws          *handlers.WebSocketHandler
	stats       *handlers.StatsHandler
	sessions    gin.HandlerFunc
	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Metrics
}

func (r *routes) setup(router *gin.Engine, cfg *config.Config) {
	router.GET("/health", middleware.HealthCheck())
	router.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	router.GET("/ws", r.rateLimiter.RateLimit(), r.sessions, r.ws.HandleWebSocket)

	api := router.Group("/api/v1")
	api.Use(r.rateLimiter.RateLimit(), r.sessions)
	{
		api.GET("/health", middleware.HealthCheck())

		small := api.Group("")
		small.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))
		small.Use(middleware.TimeoutHandler(cfg.Security.RequestTimeout))
		{
			small.GET("/stats", r.stats.GetStats)
			small.GET("/settings", r.settings.GetSettings)
			small.PUT("/settings", r.settings.UpdateSettings)
			small.POST("/detect/image", r.detect.DetectImage)
			small.GET("/report", r.report.GetReport)
			small.DELETE("/report", r.report.ClearReport)
			small.GET("/report/export", r.report.ExportReport)
		}

		// videos are large and processed synchronously; the handler
		// bounds its own run time
		video := api.Group("")
		video.Use(middleware.RequestSizeLimit(cfg.Security.MaxUploadSize))
		{
			video.POST("/detect/video", r.detect.DetectVideo)
		}
	}

	router.Static("/static", cfg.Server.StaticDir)
	router.StaticFile("/", filepath.Join(cfg.Server.StaticDir, "index.html"))
}

// Close releases everything NewServer created, in reverse order.
func (s *Server) Close() error {
	var err error
	if s.rateLimiter != nil {
		s.rateLimiter.Shutdown()
	}
	err = multierr.Append(err, s.sessions.Close())
	err = multierr.Append(err, s.pool.Shutdown(10*time.Second))
	if s.detector != nil {
		err = multierr.Append(err, s.detector.Close())
	}
	return err
}
