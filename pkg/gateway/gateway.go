package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/modelrelay/modelrelay/internal/api"
	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/services/apikey"
	"github.com/modelrelay/modelrelay/internal/services/cache"
	"github.com/modelrelay/modelrelay/internal/services/chat"
	"github.com/modelrelay/modelrelay/internal/services/conversations"
	"github.com/modelrelay/modelrelay/internal/services/database"
	"github.com/modelrelay/modelrelay/internal/services/middleware"
	"github.com/modelrelay/modelrelay/internal/services/providers"
	"github.com/modelrelay/modelrelay/internal/services/ratelimit"
	"github.com/modelrelay/modelrelay/internal/services/usage"
)

const shutdownTimeout = 30 * time.Second

// Gateway is a fully wired server instance. Build one with New, then
// either Run (blocking, signal-aware) or Start/Shutdown for manual
// lifecycle control.
type Gateway struct {
	cfg      *config.Config
	app      *fiber.App
	db       *database.DB
	limiter  *ratelimit.Limiter
	registry *providers.Registry
}

// New validates cfg and assembles the full middleware and route stack.
func New(cfg *config.Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(cfg)

	g := &Gateway{cfg: cfg}

	if cfg.Database != nil {
		db, err := database.New(*cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		fiberlog.Infof("database (%s) initialized", db.DriverName())
		g.db = db
	} else {
		fiberlog.Info("database not configured - persistence and API key auth disabled")
	}

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limiter initialization failed: %w", err)
	}
	g.limiter = limiter

	g.registry = providers.NewRegistry(cfg)
	g.app = newFiberApp(cfg)
	g.setupMiddleware()
	g.setupRoutes()

	return g, nil
}

// Start begins serving and blocks until the listener stops.
func (g *Gateway) Start() error {
	port := g.cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	g.limiter.Start()

	fiberlog.Infof("modelrelay starting on :%s (env=%s, go=%s)",
		port, g.cfg.Server.Environment, runtime.Version())
	return g.app.Listen(":" + port)
}

// Shutdown drains in-flight requests and releases resources. Safe to call
// once after Start.
func (g *Gateway) Shutdown(ctx context.Context) error {
	deadline := shutdownTimeout
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}

	err := g.app.ShutdownWithTimeout(deadline)

	g.limiter.Stop()
	if g.db != nil {
		if cerr := g.db.Close(); cerr != nil {
			fiberlog.Errorf("failed to close database: %v", cerr)
		}
	}
	return err
}

// Run starts the server and shuts it down gracefully on SIGINT or SIGTERM.
func (g *Gateway) Run() error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- g.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		fiberlog.Infof("received %v, shutting down", sig)
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("shutdown complete")
	return nil
}

// App exposes the underlying fiber app, mainly for tests.
func (g *Gateway) App() *fiber.App {
	return g.app
}

func newFiberApp(cfg *config.Config) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:           "ModelRelay v1.0",
		EnablePrintRoutes: !cfg.IsProduction(),
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		CaseSensitive:     true,
		ServerHeader:      "ModelRelay",
		ErrorHandler:      api.ErrorHandler,
	})
}

func (g *Gateway) setupMiddleware() {
	isProd := g.cfg.IsProduction()

	g.app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	g.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		g.app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		g.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	origins := g.cfg.Server.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	g.app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID",
		AllowMethods:  "GET, POST, PATCH, DELETE, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID, X-Cache, X-RateLimit-Limit-Minute, X-RateLimit-Remaining-Minute, X-RateLimit-Limit-Hour, X-RateLimit-Remaining-Hour",
	}))

	if !isProd {
		g.app.Use(pprof.New())
	}
}

func (g *Gateway) setupRoutes() {
	var keySvc *apikey.Service
	var usageSvc *usage.Service
	var convSvc *conversations.Service
	if g.db != nil {
		keySvc = apikey.NewService(g.db)
		usageSvc = usage.NewService(g.db)
		convSvc = conversations.NewService(g.db)
	}

	respCache := cache.New(g.cfg.Cache)
	chatSvc := chat.NewService(g.registry, respCache, convSvc, usageSvc)

	identity := middleware.NewIdentity(g.cfg.Auth, keySvc).SkipPaths("/v1/admin")
	rateLimit := middleware.NewRateLimit(g.limiter)
	admin := middleware.NewAdmin(g.cfg.Auth.JWTSecret)

	completionHandler := api.NewCompletionHandler(chatSvc)
	modelsHandler := api.NewModelsHandler(g.registry)
	planHandler := api.NewPlanHandler(g.registry, usageSvc)
	convHandler := api.NewConversationHandler(convSvc)
	adminHandler := api.NewAdminHandler(keySvc, usageSvc)
	healthHandler := api.NewHealthHandler(g.registry, g.db, g.limiter)

	g.app.Get("/", welcomeHandler)
	g.app.Get("/health", healthHandler.HealthCheck)

	v1 := g.app.Group("/v1", identity.Resolve(), rateLimit.Limit())
	v1.Post("/chat/completions", completionHandler.ChatCompletion)
	v1.Get("/models", modelsHandler.ListModels)
	v1.Post("/plan", planHandler.CreatePlan)

	convGroup := v1.Group("/conversations")
	if convSvc.Enabled() {
		convGroup.Use(identity.RequireAuthenticated())
	}
	convGroup.Post("/", convHandler.Create)
	convGroup.Get("/", convHandler.List)
	convGroup.Get("/:id", convHandler.Get)
	convGroup.Patch("/:id", convHandler.UpdateTitle)
	convGroup.Delete("/:id", convHandler.Delete)

	adminGroup := g.app.Group("/v1/admin", admin.RequireAdmin())
	adminGroup.Post("/users", adminHandler.CreateUser)
	adminGroup.Get("/users", adminHandler.ListUsers)
	adminGroup.Get("/users/:id", adminHandler.GetUser)
	adminGroup.Get("/users/:id/api-keys", adminHandler.ListKeys)
	adminGroup.Get("/users/:id/usage", adminHandler.UserStats)
	adminGroup.Get("/users/:id/request-logs", adminHandler.UserLogs)
	adminGroup.Post("/api-keys", adminHandler.CreateKey)
	adminGroup.Delete("/api-keys/:id", adminHandler.RevokeKey)
	adminGroup.Post("/api-keys/:id/activate", adminHandler.ActivateKey)
}

func welcomeHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":    "ModelRelay LLM gateway",
		"version":    "1.0.0",
		"go_version": runtime.Version(),
		"status":     "running",
		"endpoints": fiber.Map{
			"chat":          "/v1/chat/completions",
			"models":        "/v1/models",
			"plan":          "/v1/plan",
			"conversations": "/v1/conversations",
			"health":        "/health",
		},
	})
}

func setupLogLevel(cfg *config.Config) {
	level := cfg.GetNormalizedLogLevel()

	switch level {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("unknown log level %q, defaulting to info", level)
	}
}
