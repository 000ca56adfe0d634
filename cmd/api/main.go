package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/timmy/rollcall/internal/api"
	"github.com/timmy/rollcall/internal/cache"
	"github.com/timmy/rollcall/internal/config"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/metrics"
	"github.com/timmy/rollcall/internal/repository"
	"github.com/timmy/rollcall/internal/service"
	"github.com/timmy/rollcall/internal/storage"
	"github.com/timmy/rollcall/internal/validator"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "rollcall-api",
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx := appLogger.WithContext(context.Background())

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	failureRepo := repository.NewFailureRepository(db)

	jobCache, err := cache.New(&cfg.Cache)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize job cache")
	}
	defer jobCache.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Pipeline: job state -> processor -> executor -> gateway
	jobs := service.NewJobService(jobRepo, jobCache, m)
	processor := service.NewBatchProcessor(
		jobs,
		recordRepo,
		failureRepo,
		validator.NewStudentValidator(nil),
		service.NewSimulatedDownstream(cfg.Ingest.ExternalDelay),
		cfg.Ingest.ChunkSize,
		m,
	)
	executor := service.NewJobExecutor(processor, jobs, &service.ExecutorConfig{
		Workers:     cfg.Ingest.Workers,
		QueueSize:   cfg.Ingest.QueueSize,
		MaxAttempts: cfg.Ingest.MaxAttempts,
		RetryDelay:  cfg.Ingest.RetryDelay,
	}, m)
	executor.Start(ctx)

	ingestService := service.NewIngestService(jobs, executor, cfg.Ingest.MaxBatch, m)

	// Report export is optional; without storage the export endpoints answer 501
	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled {
		objectStorage, err = storage.New(ctx, &cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		appLogger.WithField("backend", cfg.Storage.Backend).Info("Report export enabled")
	}
	reportService := service.NewReportService(jobs, recordRepo, failureRepo, objectStorage, cfg.Storage.Prefix)

	var sweeper *service.RetentionSweeper
	if cfg.Retention.Enabled {
		sweeper = service.NewRetentionSweeper(jobRepo, jobs, cfg.Retention.Days, cfg.Retention.Schedule, m)
		if err := sweeper.Start(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to start retention sweep")
		}
	}

	router := api.SetupRouter(api.Services{
		Ingest:  ingestService,
		Reports: reportService,
	}, &cfg.Server, prometheus.DefaultGatherer, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if err := executor.Stop(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Executor stopped before in-flight jobs finished")
	}

	appLogger.Info("Server exited")
}
