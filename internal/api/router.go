package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	gomongo "go.mongodb.org/mongo-driver/mongo"

	"github.com/fintrack/fintrack-api/internal/api/handler"
	"github.com/fintrack/fintrack-api/internal/api/middleware"
	"github.com/fintrack/fintrack-api/internal/core/ports"
	"github.com/fintrack/fintrack-api/internal/core/service"
	"github.com/fintrack/fintrack-api/internal/infrastructure/db/redis"
)

// Deps carries everything the router needs, already constructed.
type Deps struct {
	AuthService    ports.AuthService
	FinanceService ports.FinanceService
	Codec          *service.TokenCodec
	Principals     ports.CredentialStore
	LoginLimiter   *redis.LoginLimiter

	MongoClient *gomongo.Client
	RedisClient *goredis.Client

	// SecureCookies marks the remember-me cookie Secure; enable outside
	// development.
	SecureCookies bool

	Logger zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("fintrack"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.AuthService, d.SecureCookies)
	financeHandler := handler.NewFinanceHandler(d.FinanceService)
	healthHandler := handler.NewHealthHandler(d.MongoClient, d.RedisClient)

	gate := middleware.Auth(d.Codec, d.Principals)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login, middleware.LoginRateLimit(d.LoginLimiter, d.Logger))
	auth.POST("/external", authHandler.ExternalLogin, middleware.LoginRateLimit(d.LoginLimiter, d.Logger))
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout, gate)
	auth.GET("/me", authHandler.Me, gate)
	auth.PUT("/password", authHandler.ChangePassword, gate)
	auth.POST("/link", authHandler.LinkExternal, gate)
	auth.DELETE("/account", authHandler.DeleteAccount, gate)

	// --- Tenant-scoped finance routes ---
	e.GET("/categories", financeHandler.ListCategories, gate)
	e.POST("/categories", financeHandler.CreateCategory, gate)
	e.DELETE("/categories/:id", financeHandler.DeleteCategory, gate)
	e.GET("/transactions", financeHandler.ListTransactions, gate)
	e.POST("/transactions", financeHandler.CreateTransaction, gate)

	// --- Operational surfaces ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Health probes (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?

	return e
}
