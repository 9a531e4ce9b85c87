package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-reading-api/internal/config"
	"github.com/noah-isme/gema-reading-api/internal/database"
	"github.com/noah-isme/gema-reading-api/internal/handler"
	"github.com/noah-isme/gema-reading-api/internal/middleware"
	"github.com/noah-isme/gema-reading-api/internal/repository"
	"github.com/noah-isme/gema-reading-api/internal/router"
	"github.com/noah-isme/gema-reading-api/internal/service"
	"github.com/noah-isme/gema-reading-api/pkg/ai"
	cloud "github.com/noah-isme/gema-reading-api/pkg/cloudinary"
	"github.com/noah-isme/gema-reading-api/pkg/extract"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	logger = logger.With().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("exercise cache disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NatsURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("event publishing disabled")
		natsConn = nil
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	var storage service.FileStorage
	if cfg.CloudinaryEnabled() {
		archive, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		storage = archive
	}

	var generator ai.Generator
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create openai generator")
		}
		generator = openAI
	} else {
		logger.Warn().Msg("GEMA_OPENAI_API_KEY not set, question generation disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	events := service.NewEventPublisher(natsConn, cfg.EventSubjectPrefix, logger)

	exerciseRepo := repository.NewExerciseRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	exerciseService := service.NewExerciseService(exerciseRepo, extract.New(), generator, storage, redisClient, events, validate, service.ExerciseServiceConfig{
		MaxUploadMB:          cfg.UploadMaxMB,
		CacheTTL:             cfg.ExerciseCacheTTL,
		DefaultQuestionCount: cfg.DefaultQuestionCount,
	}, logger)
	submissionService := service.NewSubmissionService(submissionRepo, exerciseRepo, events, validate, logger)
	reviewService := service.NewReviewService(reviewRepo, submissionRepo, events, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		ExerciseHandler:   handler.NewExerciseHandler(exerciseService, submissionService, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, validate, logger),
		ReviewHandler:     handler.NewReviewHandler(reviewService, validate, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		IngestLimiter:     middleware.RateLimit("exercise-ingest", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
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
