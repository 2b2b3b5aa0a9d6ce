// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/walletscope/walletscope/internal/auth"
	"github.com/walletscope/walletscope/internal/blacklist"
	"github.com/walletscope/walletscope/internal/cache"
	"github.com/walletscope/walletscope/internal/config"
	"github.com/walletscope/walletscope/internal/explorer"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/health"
	"github.com/walletscope/walletscope/internal/ingest"
	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/lookup"
	"github.com/walletscope/walletscope/internal/metrics"
	"github.com/walletscope/walletscope/internal/profile"
	"github.com/walletscope/walletscope/internal/ratelimit"
	"github.com/walletscope/walletscope/internal/reputation"
	"github.com/walletscope/walletscope/internal/risk"
	"github.com/walletscope/walletscope/internal/security"
	"github.com/walletscope/walletscope/internal/socialcredit"
	"github.com/walletscope/walletscope/internal/validation"
	"github.com/walletscope/walletscope/internal/wallet"
)

// Version is reported by the health endpoint. Set by cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	flags      flags.Store
	aggregates blacklist.AggregateStore
	riskStore  risk.AggregateStore
	signals    risk.SignalStore
	profiles   profile.Store

	gate     *blacklist.Gate
	risk     *risk.Service
	wallets  *wallet.Service
	lookups  *lookup.Service
	importer *ingest.Importer

	cacheBackend cache.Backend
	memCache     *cache.MemoryBackend // nil when Redis is used
	provider     explorer.Provider
	verifier     *auth.Verifier
	rateLimiter  *ratelimit.Limiter
	flagQuota    *ratelimit.DailyQuota
	checks       *health.Registry

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// WithExplorer sets the chain data provider (for testing)
func WithExplorer(p explorer.Provider) Option {
	return func(s *Server) {
		s.provider = p
	}
}

// WithCacheBackend sets the cache backend (for testing)
func WithCacheBackend(b cache.Backend) Option {
	return func(s *Server) {
		s.cacheBackend = b
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set logger/provider/cache)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	if err := s.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err := s.setupCache(ctx); err != nil {
		s.closeStorage()
		return nil, err
	}
	if err := s.setupExplorer(ctx); err != nil {
		s.closeStorage()
		return nil, err
	}

	if cfg.SessionSecret != "" {
		v, err := auth.NewVerifier(cfg.SessionSecret, cfg.SessionIssuer)
		if err != nil {
			s.closeStorage()
			return nil, fmt.Errorf("failed to create session verifier: %w", err)
		}
		s.verifier = v
		s.logger.Info("session authentication enabled")
	} else {
		s.logger.Warn("SESSION_SECRET not set, flag submission is disabled")
	}
	if cfg.AdminSecret == "" {
		s.logger.Warn("ADMIN_SECRET not set, any signed-in wallet can moderate")
	}

	// Domain services
	s.gate = blacklist.NewGate(s.flags, s.aggregates, cfg.FlagThreshold)
	s.risk = risk.NewService(s.flags, s.signals, s.riskStore)
	s.wallets = wallet.NewService(s.risk, s.gate, s.profiles, s.cacheBackend,
		reputation.NewSigner(cfg.ReputationHMACSecret),
		cache.WithComputeTimeout(cfg.OriginTimeout))
	s.lookups = lookup.NewService(s.provider, s.cacheBackend, cache.WithComputeTimeout(cfg.OriginTimeout))
	s.importer = ingest.NewImporter(s.gate)
	s.flagQuota = ratelimit.NewDailyQuota(cfg.FlagsPerDay)

	s.logger.Info("blacklist gate configured", "threshold", s.gate.Threshold(), "flags_per_day", cfg.FlagsPerDay)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func (s *Server) setupStorage(ctx context.Context) error {
	if s.cfg.DatabaseURL == "" {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.flags = flags.NewMemoryStore()
		s.aggregates = blacklist.NewMemoryStore()
		s.riskStore = risk.NewMemoryStore()
		s.signals = risk.NewMemorySignalStore()
		s.profiles = profile.NewMemoryStore()
		s.checks.Register("storage", health.Static("in-memory"))
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))

	flagStore := flags.NewPostgresStore(db)
	aggStore := blacklist.NewPostgresStore(db)
	riskStore := risk.NewPostgresStore(db)
	profileStore := profile.NewPostgresStore(db)

	for name, m := range map[string]interface {
		Migrate(context.Context) error
	}{
		"flags":     flagStore,
		"blacklist": aggStore,
		"risk":      riskStore,
		"profiles":  profileStore,
	} {
		if err := m.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate store", "store", name, "error", err)
		}
	}

	s.flags = flagStore
	s.aggregates = aggStore
	s.riskStore = riskStore
	s.signals = riskStore.Signals()
	s.profiles = profileStore
	s.checks.Register("postgres", health.DBCheck(db))
	return nil
}

func (s *Server) setupCache(ctx context.Context) error {
	switch {
	case s.cacheBackend != nil:
	case s.cfg.RedisURL != "":
		rdb, err := cache.DialRedis(ctx, s.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rb := cache.NewRedisBackend(rdb)
		s.cacheBackend = rb
		s.checks.Register("redis", health.PingCheck(rb))
		s.logger.Info("using Redis cache")
	default:
		s.memCache = cache.NewMemoryBackend(time.Minute)
		s.cacheBackend = s.memCache
		s.checks.Register("cache", health.Static("in-memory"))
		s.logger.Info("using in-memory cache")
	}
	return nil
}

func (s *Server) setupExplorer(ctx context.Context) error {
	if s.provider != nil {
		return nil
	}
	if s.cfg.ExplorerURL == "" {
		s.logger.Warn("EXPLORER_URL not set, using empty static explorer data")
		s.provider = explorer.NewStatic()
		return nil
	}
	if s.cfg.IsProduction() {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := security.ValidateOriginURL(vctx, s.cfg.ExplorerURL, nil)
		cancel()
		if err != nil {
			return fmt.Errorf("EXPLORER_URL rejected: %w", err)
		}
	}
	c, err := explorer.NewClient(explorer.ClientConfig{
		BaseURL: s.cfg.ExplorerURL,
		APIKey:  s.cfg.ExplorerAPIKey,
		Timeout: s.cfg.OriginTimeout,
	})
	if err != nil {
		return err
	}
	s.provider = c
	s.logger.Info("explorer provider configured", "url", s.cfg.ExplorerURL)
	return nil
}

func (s *Server) closeStorage() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(corsOrigins(s.cfg.CORSOrigins)))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rl := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware(ratelimit.ClientKey))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())

	// Session (optional; handlers that need a wallet add RequireAuth)
	s.router.Use(auth.Middleware(s.verifier))
}

func corsOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

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

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")

	flagHandler := blacklist.NewHandler(s.gate, s.flags, s.profiles)
	riskHandler := risk.NewHandler(s.risk, s.wallets)
	walletHandler := wallet.NewHandler(s.wallets)
	lookupHandler := lookup.NewHandler(s.lookups)
	profileHandler := profile.NewHandler(s.profiles)
	creditHandler := socialcredit.NewHandler(s.profiles)
	importHandler := ingest.NewHandler(s.importer)

	// Public reads
	flagHandler.RegisterRoutes(v1)
	riskHandler.RegisterRoutes(v1.Group("", validation.WalletParamsMiddleware()))
	walletHandler.RegisterRoutes(v1)
	lookupHandler.RegisterRoutes(v1)
	profileHandler.RegisterRoutes(v1)
	creditHandler.RegisterRoutes(v1)

	// Signed-in wallet, one quota per flagger per UTC day
	protected := v1.Group("", auth.RequireAuth(), s.flagQuota.Middleware(blacklist.FlaggerKey))
	flagHandler.RegisterProtectedRoutes(protected)

	// Moderation
	admin := v1.Group("/admin", auth.RequireAdmin(s.cfg.AdminSecret))
	flagHandler.RegisterAdminRoutes(admin)
	importHandler.RegisterAdminRoutes(admin)
	riskHandler.RegisterAdminRoutes(admin.Group("", validation.WalletParamsMiddleware()))
	profileHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Threshold int             `json:"flagThreshold"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    statuses,
		Threshold: s.gate.Threshold(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
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
	if healthy, statuses := s.checks.CheckAll(c.Request.Context()); !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": statuses})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Database pool gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
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

	// Cancel the context for background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Stop cache janitor
	if s.memCache != nil {
		s.memCache.Close()
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
