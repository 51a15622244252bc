// Package server assembles the gateway: risk engine, dispatcher, metrics,
// request log, realtime stream and the HTTP surface around them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mbd888/riskgate/internal/circuitbreaker"
	"github.com/mbd888/riskgate/internal/config"
	"github.com/mbd888/riskgate/internal/gateway"
	"github.com/mbd888/riskgate/internal/health"
	"github.com/mbd888/riskgate/internal/logging"
	"github.com/mbd888/riskgate/internal/metrics"
	"github.com/mbd888/riskgate/internal/pagination"
	"github.com/mbd888/riskgate/internal/ratelimit"
	"github.com/mbd888/riskgate/internal/realtime"
	"github.com/mbd888/riskgate/internal/requestlog"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/mbd888/riskgate/internal/security"
	"github.com/mbd888/riskgate/internal/validation"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "api-gateway"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	engine      *risk.Engine
	sweeper     *risk.Sweeper
	recorder    *metrics.Recorder
	requestLog  *requestlog.Log
	breaker     *circuitbreaker.Breaker
	dispatcher  *gateway.Dispatcher
	realtimeHub *realtime.Hub
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	now         func() time.Time
	drainDelay  time.Duration

	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	background   chan struct{}      // closed when background goroutines have exited

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock replaces the wall clock used for scoring and metrics (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithDrainDelay sets how long Shutdown waits after marking the server not
// ready before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		now:        time.Now,
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	s.engine = risk.NewEngine().WithClock(s.now).WithActivityTTL(cfg.ActivityTTL)
	s.sweeper = risk.NewSweeper(s.engine, cfg.SweepSchedule, s.logger)
	s.recorder = metrics.NewRecorder().WithClock(s.now)
	s.requestLog = requestlog.New(requestlog.DefaultCapacity)

	s.breaker = circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerOpenDuration)
	s.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		s.logger.Warn("circuit state changed", "service", key, "from", from.String(), "to", to.String())
	})

	table := gateway.NewTable(gateway.ServiceURLs{
		Payment:      cfg.PaymentServiceURL,
		Account:      cfg.AccountServiceURL,
		Verification: cfg.VerificationServiceURL,
	})
	s.dispatcher = gateway.NewDispatcher(
		s.engine,
		table,
		gateway.NewForwarder(cfg.DownstreamTimeout),
		s.breaker,
		s.recorder,
		s.requestLog,
		s.logger,
	).WithClock(s.now)

	s.realtimeHub = realtime.NewHub(s.logger)
	s.requestLog.OnAppend(s.realtimeHub.BroadcastEntry)

	s.health = health.NewRegistry()
	s.health.Register("downstream", health.CircuitChecker(s.breaker))
	s.health.Register("sweeper", health.RunningChecker("sweeper", s.sweeper.Running))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.AdminRateLimitRPM,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	if err := s.router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	s.logger.Info("gateway configured",
		"payment_service", cfg.PaymentServiceURL,
		"account_service", cfg.AccountServiceURL,
		"verification_service", cfg.VerificationServiceURL,
		"downstream_timeout", cfg.DownstreamTimeout.String(),
		"sweep_schedule", cfg.SweepSchedule,
	)
	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(s.correlationMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSAllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
}

// correlationMiddleware reuses a well-formed inbound X-Correlation-ID or
// assigns a new one, and makes it available to handlers and loggers.
func (s *Server) correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(gateway.HeaderCorrelationID)
		if !validation.IsValidCorrelationID(id) {
			id = uuid.NewString()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), id)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header(gateway.HeaderCorrelationID, id)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		if score := c.Writer.Header().Get(gateway.HeaderRiskScore); score != "" {
			attrs = append(attrs, "risk_score", score)
		}

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)

	s.router.GET("/metrics", s.metricsHandler)
	s.router.GET("/metrics/prometheus", metrics.Handler())
	s.router.GET("/logs", s.logsHandler)
	s.router.GET("/api/fraud-patterns", s.fraudPatternsHandler)
	s.router.GET("/api/activity", s.activityHandler)
	s.router.GET("/ws", gin.WrapF(s.realtimeHub.HandleWebSocket))

	admin := s.router.Group("/api")
	admin.Use(s.rateLimiter.Middleware())
	admin.POST("/clear-logs", s.clearLogsHandler)
	admin.POST("/reset-metrics", s.resetMetricsHandler)

	h := gateway.NewHandler(s.dispatcher)
	h.RegisterTestRoute(s.router)
	h.RegisterRoutes(s.router)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
			"path":  c.Request.URL.Path,
		})
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	var port any = s.cfg.Port
	if n, err := strconv.Atoi(s.cfg.Port); err == nil {
		port = n
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"port":      port,
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	healthy, checks := s.health.CheckAll(ctx)
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"checks":   checks,
		"realtime": s.realtimeHub.Stats(),
	})
}

func (s *Server) metricsHandler(c *gin.Context) {
	snap := s.recorder.Snapshot()
	stats := s.engine.Stats()
	snap.Engine = &stats
	c.JSON(http.StatusOK, snap)
}

func (s *Server) logsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = requestlog.DefaultListLimit
	}
	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	page := s.requestLog.Page(limit, risk.Level(c.Query("riskLevel")), after)
	resp := gin.H{
		"logs":       page.Entries,
		"totalCount": page.Total,
	}
	if page.NextCursor != "" {
		resp["nextCursor"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) clearLogsHandler(c *gin.Context) {
	s.requestLog.Clear()
	s.realtimeHub.BroadcastReset("logs")
	logging.L(c.Request.Context()).Info("request log cleared")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logs cleared successfully",
	})
}

func (s *Server) resetMetricsHandler(c *gin.Context) {
	s.recorder.Reset()
	s.engine.Reset()
	s.realtimeHub.BroadcastReset("metrics")
	logging.L(c.Request.Context()).Info("metrics and risk state reset")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Metrics reset successfully",
	})
}

func (s *Server) fraudPatternsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.recorder.Patterns())
}

func (s *Server) activityHandler(c *gin.Context) {
	ip := c.Query("ip")
	userID := c.Query("userId")
	if errs := validation.Validate(
		validation.AtLeastOne("ip", ip),
		validation.MaxLength("ip", ip, 64),
		validation.MaxLength("userId", userID, 256),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	activity := s.engine.Activity(ip, userID)
	if userID == "" {
		userID = "anonymous"
	}
	c.JSON(http.StatusOK, gin.H{
		"ip":       ip,
		"userId":   userID,
		"activity": activity,
		"count":    len(activity),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and background workers, and blocks until ctx
// is cancelled, a termination signal arrives or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Must exceed the downstream timeout so relayed replies are not cut off.
		WriteTimeout: s.cfg.DownstreamTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.background = make(chan struct{})
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.realtimeHub.Run(runCtx)
	}()
	go func() {
		defer close(s.background)
		if err := s.sweeper.Start(runCtx); err != nil {
			s.logger.Error("risk sweeper failed", "error", err)
		}
		<-hubDone
	}()

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	// In-flight requests are done; stop the hub and sweeper.
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	s.sweeper.Stop()
	if s.background != nil {
		select {
		case <-s.background:
			s.logger.Info("background workers stopped")
		case <-ctx.Done():
			s.logger.Warn("background workers did not stop in time")
		}
	}

	s.rateLimiter.Stop()

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

