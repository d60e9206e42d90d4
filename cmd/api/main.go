package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/config"
	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/handlers"
	"github.com/BradenHooton/turnstile/internal/kvstore"
	"github.com/BradenHooton/turnstile/internal/metrics"
	middlewareCustom "github.com/BradenHooton/turnstile/internal/middleware"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/repositories"
	"github.com/BradenHooton/turnstile/internal/routes"
	"github.com/BradenHooton/turnstile/internal/services"
	pkgauth "github.com/BradenHooton/turnstile/pkg/auth"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Shared store for the rate limiter and the existence cache
	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Redis.Addrs,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisClient.Close()

	kv := kvstore.NewRedisStore(redisClient)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := kv.Ping(ctx); err != nil {
			// Not fatal: the pipeline fails closed and recovers once the store is back
			logger.Error("redis unreachable at startup", slog.Any("error", err))
		}
		cancel()
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	// Ops alerts
	alerter, sesAlerter, err := newAlerter(cfg.Alert, logger)
	if err != nil {
		logger.Error("failed to initialize alerting", slog.Any("error", err))
		os.Exit(1)
	}

	// Crypto primitives
	hasher := pkgauth.NewHasher(cfg.Login.PasswordHashCost)
	guard, err := auth.NewTimingGuard(cfg.Login.MinDelay, cfg.Login.MaxDelay, hasher)
	if err != nil {
		logger.Error("failed to initialize timing guard", slog.Any("error", err))
		os.Exit(1)
	}
	issuer := auth.NewSessionIssuer(cfg.Session.Secret, cfg.Session.TokenTTL, cfg.Session.Issuer)

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	cache := services.NewExistenceCache(kv, accountRepo, cfg.Login.ExistenceCacheTTL(), cfg.Login.AuthorizeTimeout, recorder, logger)
	limiter := services.NewLoginRateLimiter(kv, cfg.Login.RateLimitMax, cfg.Login.RateLimitWindow)

	authService := services.NewAuthService(
		services.NewCredentialValidator(),
		limiter,
		cache,
		accountRepo,
		hasher,
		guard,
		issuer,
		alerter,
		recorder,
		cfg.Login.AuthorizeTimeout,
		logger,
		auditLogger,
	)
	accountService := services.NewAccountService(accountRepo, cache, hasher, logger, auditLogger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, accountService, cfg.Admin, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, ipConfig, logger)
	adminHandler := handlers.NewAdminHandler(accountService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": db.HealthCheck,
		"redis":    kv.Ping,
	}, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.CORSAllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	// Register routes
	routes.RegisterRoutes(
		router,
		authHandler,
		adminHandler,
		healthHandler,
		auth.NewSessionValidator(issuer, accountRepo),
		middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Server.LoginRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		metrics.Handler(registry),
		logger,
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let in-flight alert emails finish
	if sesAlerter != nil {
		sesAlerter.Wait()
	}

	logger.Info("server stopped gracefully")
}

// newAlerter delivers ops alerts by email through SES when configured, and to the log otherwise
func newAlerter(cfg config.AlertConfig, logger *slog.Logger) (services.Alerter, *services.SESAlerter, error) {
	if !cfg.Enabled() {
		logger.Info("ALERT_EMAIL_FROM or ALERT_EMAIL_TO not set, alerts go to the log only")
		return services.NewLogAlerter(logger), nil, nil
	}

	ses, err := services.NewSESAlerter(cfg.AWSRegion, cfg.FromAddress, cfg.ToAddress, cfg.MinInterval, logger)
	if err != nil {
		return nil, nil, err
	}
	return ses, ses, nil
}

// ensureAdminUser creates the first admin account if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, accounts *services.AccountService, cfg config.AdminConfig, logger *slog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := accounts.Create(ctx, services.NewAccount{
		Email:         cfg.Email,
		Password:      cfg.Password,
		DisplayName:   "Admin",
		Roles:         []string{models.RoleAdmin},
		EmailVerified: true,
	})
	switch {
	case err == nil:
		logger.Info("admin user created successfully")
		return nil
	case errors.Is(err, models.ErrConflict):
		logger.Info("admin user already exists")
		return nil
	default:
		return fmt.Errorf("failed to create admin user: %w", err)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
