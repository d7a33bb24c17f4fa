package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/fintrack/fintrack-api/docs"
	"github.com/fintrack/fintrack-api/internal/api"
	"github.com/fintrack/fintrack-api/internal/api/metrics"
	"github.com/fintrack/fintrack-api/internal/core/ports"
	"github.com/fintrack/fintrack-api/internal/core/service"
	"github.com/fintrack/fintrack-api/internal/infrastructure/db/mongo"
	"github.com/fintrack/fintrack-api/internal/infrastructure/db/redis"
	"github.com/fintrack/fintrack-api/internal/infrastructure/queue"
	"github.com/fintrack/fintrack-api/internal/pkg/config"
	"github.com/fintrack/fintrack-api/pkg/logger"
)

const auditWorkers = 4

// @title                      FinTrack Identity & Finance API
// @version                    1.0
// @description                Authentication, session and tenant-scoped finance endpoints.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "fintrack-api",
	})

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Backing stores ---
	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb unavailable")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	principals := mongo.NewPrincipalRepository(db)
	sessions := mongo.NewSessionRepository(db)
	if err := principals.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("principal indexes")
	}
	if err := sessions.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("session indexes")
	}

	// Redis only backs the login throttle; start degraded without it.
	redisClient, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, login throttling disabled")
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
	}
	var limiter *redis.LoginLimiter
	if redisClient != nil {
		limiter = redis.NewLoginLimiter(redisClient, cfg.LoginRateLimit, cfg.LoginRateWindow)
	}

	// --- Tenant storage strategy ---
	var tenants ports.TenantStore
	switch cfg.TenantMode {
	case "shared":
		tenants = mongo.NewSharedTenantStore(db, principals)
	case "pooled":
		tenants = mongo.NewPooledTenantStore(mongoClient, principals, log)
	default:
		log.Fatal().Str("tenant_mode", cfg.TenantMode).Msg("TENANT_MODE must be pooled or shared")
	}

	// --- Audit pipeline ---
	audit := queue.NewAuditDispatcher(auditWorkers, mongo.NewAuditRepository(db), log)
	audit.Start(ctx)

	// --- Core services ---
	codec := service.NewTokenCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL, cfg.RefreshTTL, cfg.BcryptCost)
	ledger := service.NewSessionLedger(sessions, log)
	authService := service.NewAuthService(principals, ledger, tenants, codec, audit, log, cfg.LockoutThreshold, cfg.LockoutDuration)
	financeService := service.NewFinanceService(tenants, log)

	go sweepSessions(ctx, ledger, cfg.SessionSweepInterval, log)

	e := api.NewRouter(api.Deps{
		AuthService:    authService,
		FinanceService: financeService,
		Codec:          codec,
		Principals:     principals,
		LoginLimiter:   limiter,
		MongoClient:    mongoClient,
		RedisClient:    redisClient,
		SecureCookies:  cfg.Env != "development",
		Logger:         log,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// sweepSessions deletes expired ledger rows on a fixed interval. A failed
// sweep is logged and retried on the next tick.
func sweepSessions(ctx context.Context, ledger *service.SessionLedger, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				metrics.SessionsSweptTotal.Add(float64(n))
			}
		}
	}
}
