package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swapstation/api/routes"
	"swapstation/internal/notifications"
	"swapstation/internal/repository"
	"swapstation/internal/repository/memory"
	"swapstation/internal/repository/postgres"
	"swapstation/internal/reservations"
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/database"
	"swapstation/pkg/cache"
	"swapstation/pkg/logger"
	"swapstation/pkg/metrics"
	"swapstation/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	var store repository.Store
	if cfg.UsesMemoryStore() {
		store = memory.NewStore()
		appLogger.Warn("Using in-memory store; state is lost on restart")
	} else {
		store = postgres.NewStore(db.PostgreSQL)
	}

	recorder, err := metrics.NewRecorder(nil)
	if err != nil {
		appLogger.Error("Failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	deps := routes.Dependencies{
		Store:     store,
		DB:        db,
		Metrics:   recorder,
		Publisher: newPublisher(cfg, appLogger),
	}
	defer deps.Publisher.Close()
	if db.Redis != nil {
		deps.Cache = cache.NewService(db.Redis)
	}

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.Redis, cfg.RateLimit)
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("swap_requests", cfg.RateLimit.SwapRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	appRouter := routes.NewRouter(cfg, deps)
	engine := setupEngine(appRouter, rateLimiter)

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := reservations.NewSweeper(appRouter.Reservations(), cfg.Swap.SweepInterval)
	sweeper.Start(sweeperCtx)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.String("storage", cfg.StorageDriver),
			slog.Bool("redis_cache", db.Redis != nil),
			slog.Bool("kafka", cfg.Kafka.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	sweeper.Stop()
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

// newPublisher connects to Kafka when enabled. A broker that cannot be
// reached at startup downgrades to dropping events.
func newPublisher(cfg *config.Config, appLogger *logger.Logger) notifications.Publisher {
	if !cfg.Kafka.Enabled {
		return notifications.NopPublisher{}
	}
	publisher, err := notifications.NewKafkaPublisher(notifications.KafkaProducerConfigFrom(cfg.Kafka))
	if err != nil {
		appLogger.Error("Failed to initialize Kafka publisher, swap events will be dropped", slog.Any("error", err))
		return notifications.NopPublisher{}
	}
	appLogger.Info("Kafka publisher initialized", slog.String("topic", cfg.Kafka.Topic))
	return publisher
}

func setupEngine(appRouter *routes.Router, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter.SetupRoutes(engine)
	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
	}
}
