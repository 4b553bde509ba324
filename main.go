package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaps-tracker/config"
	"leaps-tracker/handlers"
	"leaps-tracker/logger"
	"leaps-tracker/middleware"
	"leaps-tracker/models"
	"leaps-tracker/rdb"
	"leaps-tracker/services"
	"leaps-tracker/tracking"
	"leaps-tracker/utils"
	"leaps-tracker/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const codeVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	std := logger.NewStd(log.New(os.Stdout, "", log.LstdFlags), !cfg.IsProd())
	var appLog logger.Logger = std
	if cfg.RollbarToken != "" {
		rb := logger.NewRollbar(std, cfg.RollbarToken, cfg.Env, codeVersion)
		defer rb.Close()
		appLog = rb
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Activity{},
		&models.Submission{},
		&models.SubmissionAttachment{},
		&models.PointsLedgerEntry{},
		&models.Badge{},
		&models.EarnedBadge{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	catalog := services.NewCatalogService(db)
	if err := catalog.Seed(ctx); err != nil {
		log.Fatal("failed to seed activity catalog: ", err)
	}

	// Redis is optional; without it the report cache is off and rate limits are per process.
	var (
		cache   services.ReportCache = services.NopCache{}
		limiter middleware.SharedLimiter
	)
	if cfg.RedisURL != "" {
		redisClient, err := rdb.New(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis: ", err)
		}
		defer redisClient.Close()
		cache, limiter = redisClient, redisClient
	}

	tracker := tracking.New(cfg.PostHogAPIKey, cfg.Env, appLog)
	defer tracker.Close()

	views := services.NewMaterializedViews(db, appLog, cache)
	if err := views.Ensure(ctx); err != nil {
		log.Fatal("failed to create materialized views: ", err)
	}

	var store services.AttachmentStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		store = r2
	} else {
		appLog.Warn("⚠️  R2 not configured, attachment uploads disabled")
	}

	analytics := services.NewAnalyticsService(services.NewGormQuerier(db), appLog, services.AnalyticsOptions{
		Source:         cfg.AnalyticsSource,
		Snapshot:       cfg.AnalyticsSnapshot,
		SectionTimeout: cfg.AnalyticsSectionTimeout,
		Cache:          cache,
		CacheTTL:       cfg.ReportCacheTTL,
	})
	badges := services.NewBadgeService(db, appLog, tracker)
	ledger := services.NewLedgerService(db, badges, tracker, appLog)
	submissions := services.NewSubmissionService(db, badges, store, tracker, appLog)
	users := services.NewUserService(db)

	scheduler, err := services.NewScheduler(appLog)
	if err != nil {
		log.Fatal("failed to create scheduler: ", err)
	}
	if err := views.StartViewRefresh(ctx, scheduler, cfg.ViewRefreshInterval); err != nil {
		log.Fatal("failed to schedule view refresh: ", err)
	}
	if cfg.ProfileSyncURL != "" {
		syncWorker := workers.NewProfileSyncWorker(users, cfg.ProfileSyncURL, "/api/v1/public/profiles", cfg.ServiceToken, appLog)
		if err := scheduler.Every(ctx, "profile-sync", cfg.ProfileSyncInterval, syncWorker.SyncOnce); err != nil {
			log.Fatal("failed to schedule profile sync: ", err)
		}
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		BodyLimit:    services.MaxAttachmentSize + 5*1024*1024,
		ErrorHandler: handlers.ErrorHandler(appLog),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐❗ GLOBAL: Only Gateway requests allowed, except the health check
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, appLog, "/health"))
	app.Use(middleware.RateLimit(limiter, cfg.RateLimitMax, cfg.RateLimitWindow))

	handlers.Register(app, handlers.Deps{
		Catalog:     catalog,
		Analytics:   analytics,
		Views:       views,
		Submissions: submissions,
		Ledger:      ledger,
		Badges:      badges,
		Users:       users,
		Tracker:     tracker,
		Log:         appLog,
		UserContext: middleware.UserContextMiddleware(users, appLog),
		ServiceAuth: middleware.ServiceTokenMiddleware(cfg.ServiceToken, appLog),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			appLog.Error("server error", err)
		}
	}()

	appLog.Info("✅ Server running", "port", cfg.Port, "env", cfg.Env)
	appLog.Info("✅ Analytics configured", "source", cfg.AnalyticsSource, "snapshot", cfg.AnalyticsSnapshot, "refresh", cfg.ViewRefreshInterval)
	appLog.Info("✅ CORS configured", "origins", cfg.AllowedOrigins)

	<-ctx.Done()
	appLog.Info("Shutting down server...")
	if err := scheduler.Shutdown(); err != nil {
		appLog.Warn("scheduler shutdown failed", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLog.Warn("server shutdown failed", err)
	}
}
