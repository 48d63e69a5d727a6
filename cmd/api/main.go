package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/api/handlers"
	"github.com/moodlens/backend/internal/cache/redis"
	"github.com/moodlens/backend/internal/insights"
	"github.com/moodlens/backend/internal/metrics"
	"github.com/moodlens/backend/internal/middleware/ratelimit"
	"github.com/moodlens/backend/internal/middleware/security"
	"github.com/moodlens/backend/internal/middleware/validation"
	"github.com/moodlens/backend/internal/storage/sqlite"
	"github.com/moodlens/backend/pkg/config"
	appLogger "github.com/moodlens/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting MoodLens Insights API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var answerCache insights.AnswerCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without answer cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			answerCache = redisClient
		}
	}

	engine := insights.New(sqliteClient, answerCache, cfg, appLogger.GetLogger())

	// A credential in config enables augmented answering at startup; a
	// bad one just leaves the engine in rule-based mode.
	if cfg.LLM.APIKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := engine.ConfigureAugmentation(ctx, cfg.LLM.APIKey); err != nil {
			appLogger.Warn("LLM credential rejected, answering stays rule-based", zap.Error(err))
		}
		cancel()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	insightsHandler := handlers.NewInsightsHandler(engine)
	adminHandler := handlers.NewAdminHandler(engine)
	recordsHandler := handlers.NewRecordsHandler(sqliteClient, engine)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/insights/query", insightsHandler.HandleQuery)
	api.Get("/insights/statistics", insightsHandler.GetStatistics)
	api.Get("/insights/suggestions", insightsHandler.GetSuggestions)
	api.Get("/insights/report", insightsHandler.GetReport)

	api.Post("/insights/configure", adminHandler.HandleConfigure)
	api.Post("/insights/rebuild", adminHandler.HandleRebuild)
	api.Get("/insights/status", adminHandler.GetStatus)

	api.Post("/records", recordsHandler.CreateRecord)
	api.Get("/records", recordsHandler.ListRecords)
	api.Post("/subjects", recordsHandler.CreateSubject)
	api.Get("/subjects", recordsHandler.ListSubjects)

	app.Get("/ws/insights", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ready",
			"augmented": engine.Augmented(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
