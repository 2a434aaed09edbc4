package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dvloznov/pillguide/internal/ai"
	"github.com/dvloznov/pillguide/internal/analysis"
	"github.com/dvloznov/pillguide/internal/api/handlers"
	"github.com/dvloznov/pillguide/internal/api/middleware"
	"github.com/dvloznov/pillguide/internal/config"
	infraBQ "github.com/dvloznov/pillguide/internal/infra/bigquery"
	"github.com/dvloznov/pillguide/internal/infra/gcs"
	"github.com/dvloznov/pillguide/internal/jobs/inmemory"
	"github.com/dvloznov/pillguide/internal/logger"
	"github.com/dvloznov/pillguide/internal/store"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithOptions(logger.Options{
		Service:     "pillguide-api",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to initialise Sentry")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	// Storage
	mongoClient, err := store.Connect(ctx, cfg.MongoURL, 10*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
		}
	}()

	db := store.NewMongoStore(mongoClient.Database(cfg.DBName), log)
	if err := db.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
	}

	// Model client
	aiClient, err := ai.NewGeminiClient(ctx, ai.Config{
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		Timeout:       cfg.AI.Timeout,
		RetryAttempts: cfg.AI.RetryAttempts,
		RetryDelay:    cfg.AI.RetryDelay,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}

	// Optional integrations. Nil interfaces, not typed nil pointers, mean
	// "disabled".
	var (
		imageStore analysis.ImageStore
		imageFetch handlers.ImageFetcher
		recorder   analysis.OutputRecorder
	)

	if cfg.GCSBucket != "" {
		images, err := gcs.NewImageStore(ctx, cfg.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS image store")
		}
		defer images.Close()
		imageStore, imageFetch = images, images
		log.Info().Str("bucket", cfg.GCSBucket).Msg("Storing prescription images in GCS")
	} else {
		log.Warn().Msg("No GCS bucket configured - prescription images will not be stored")
	}

	if cfg.BigQueryEnabled() {
		outputs, err := infraBQ.NewModelOutputRecorder(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery recorder")
		}
		defer outputs.Close()
		recorder = outputs
		log.Info().Str("project", cfg.BigQueryProject).Str("dataset", cfg.BigQueryDataset).Msg("Recording model outputs in BigQuery")
	}

	service := analysis.NewService(aiClient, imageStore, recorder, log)

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, log)

	prescriptionsHandler := handlers.NewPrescriptionsHandler(service, db, jobQueue, imageFetch, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, prescriptionsHandler.ProcessJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	mux := handlers.Routes{
		Prescriptions:     prescriptionsHandler,
		Medications:       handlers.NewMedicationsHandler(service, db, log),
		Contraindications: handlers.NewContraindicationsHandler(service, log),
		Jobs:              handlers.NewJobsHandler(jobStore, log),
		DB:                db,
	}.Mux()

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.LimitBody(middleware.MaxBodyBytes),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Auth,
	)

	// Model calls can take a while; the write timeout covers the whole
	// synchronous analysis.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("model", cfg.AI.Model).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight analyses finish before cancelling them.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
