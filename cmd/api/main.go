package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/competition-hub-api/internal/config"
	"github.com/noah-isme/competition-hub-api/internal/database"
	"github.com/noah-isme/competition-hub-api/internal/handler"
	"github.com/noah-isme/competition-hub-api/internal/middleware"
	"github.com/noah-isme/competition-hub-api/internal/models"
	"github.com/noah-isme/competition-hub-api/internal/observability"
	"github.com/noah-isme/competition-hub-api/internal/repository"
	"github.com/noah-isme/competition-hub-api/internal/router"
	"github.com/noah-isme/competition-hub-api/internal/service"
	cloud "github.com/noah-isme/competition-hub-api/pkg/cloudinary"
	"github.com/noah-isme/competition-hub-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	shutdownTracing, err := observability.SetupTracing(rootCtx, cfg.AppName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Competition{}, &models.Round{}, &models.Application{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		logger.Info().Msg("redis not configured; notification cache and redis fan-out disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return nats.ErrConnectionClosed
				}
				return nil
			},
		})
	}

	fileStorage, err := buildStorage(cfg, logger)
	if err != nil {
		log.Fatalf("failed to configure file storage: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	competitionRepo := repository.NewCompetitionRepository(db)
	roundRepo := repository.NewRoundRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	eventBus := service.NewEventBus(redisClient, cfg.EventChannel, natsConn, logger)
	eventBus.Start(rootCtx)

	notificationService := service.NewNotificationService(notificationRepo, competitionRepo, redisClient, cfg.NotificationCacheTTL, logger)
	eventBus.OnPublish(notificationService.InvalidateForEvent)

	competitionService := service.NewCompetitionService(competitionRepo, eventBus, validate, logger)
	roundAdvancer := service.NewRoundAdvancer(roundRepo, applicationRepo, eventBus, logger)
	reviewRecorder := service.NewReviewRecorder(applicationRepo, competitionRepo, eventBus, logger)
	applicationService := service.NewApplicationService(applicationRepo, competitionRepo, fileStorage, eventBus, validate, service.ApplicationOptions{
		MaxUploadBytes:   cfg.MaxUploadBytes,
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaxUploadBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		CompetitionHandler:  handler.NewCompetitionHandler(competitionService, roundAdvancer, logger),
		ApplicationHandler:  handler.NewApplicationHandler(applicationService, reviewRecorder, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		EventsHandler:       handler.NewEventsHandler(eventBus, logger, 25*time.Second),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		SubmissionLimiter:   middleware.RateLimit("submission", cfg.SubmissionRateLimit, cfg.SubmissionRateWindow),
		HealthProbes:        probes,
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("http server listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)

	cancelRoot()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush traces")
	}
}

func buildStorage(cfg config.Config, logger zerolog.Logger) (service.FileStorage, error) {
	if cfg.UsesCloudinary() {
		return cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	}
	return storage.NewLocal(cfg.StorageDir, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
