package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/rollcall/internal/client"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/source"
	"github.com/timmy/rollcall/internal/source/manifest"
	"github.com/timmy/rollcall/internal/source/synthetic"
	"github.com/timmy/rollcall/internal/validator"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "rollcall-ingestctl",
	})
	logger.SetDefaultLogger(appLogger)

	baseURL := flag.String("url", "http://localhost:8000", "Base URL of the rollcall API")
	sourceType := flag.String("source", synthetic.SourceID, "Record source: synthetic or manifest")
	file := flag.String("file", "", "JSON Lines file for the manifest source")
	count := flag.Int("records", 1000, "Number of records for the synthetic source")
	invalidEvery := flag.Int("invalid-every", 0, "Make every Nth synthetic record invalid (0 disables)")
	batchSize := flag.Int("batch", validator.DefaultMaxBatch, "Records per submitted job")
	interval := flag.Duration("interval", 2*time.Second, "Status poll interval")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up waiting after this long")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	var src source.Source
	switch *sourceType {
	case synthetic.SourceID:
		src = synthetic.NewAdapter(*count, *invalidEvery)
	case "manifest":
		if *file == "" {
			appLogger.Fatal("-file is required for the manifest source")
		}
		src = manifest.NewAdapter(*file)
	default:
		appLogger.WithField("source", *sourceType).Fatal("Unknown source type")
	}

	c := client.New(*baseURL, 30*time.Second)

	health, err := c.Health(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Health check failed")
	}
	appLogger.WithFields(logger.Fields{
		"service": health.Service,
		"version": health.Version,
	}).Info("API is " + health.Status)

	// Submit every page as its own job, then wait for all of them
	var taskIDs []string
	cursor := ""
	for {
		records, next, err := src.FetchBatch(ctx, cursor, *batchSize)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to read records")
		}
		if len(records) > 0 {
			sub, err := c.Submit(ctx, records)
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to submit records")
			}
			appLogger.WithFields(logger.Fields{
				logger.FieldJobID: sub.TaskID,
				logger.FieldCount: sub.TotalRecords,
			}).Info("Job submitted")
			taskIDs = append(taskIDs, sub.TaskID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(taskIDs) == 0 {
		appLogger.WithField("source", src.GetSourceID()).Fatal("Source produced no records")
	}

	ok := true
	for _, id := range taskIDs {
		jobLog := appLogger.WithField(logger.FieldJobID, id)
		final, err := c.Wait(ctx, id, *interval, func(s *client.JobStatus) {
			jobLog.WithFields(logger.Fields{
				"processed": s.ProcessedRecords,
				"failed":    s.FailedRecords,
				"progress":  s.ProgressPercentage,
			}).Info(s.StatusMessage)
		})
		if err != nil {
			jobLog.WithError(err).Error("Stopped waiting for job")
			ok = false
			continue
		}

		fields := logger.Fields{
			"status":    final.Status,
			"total":     final.TotalRecords,
			"processed": final.ProcessedRecords,
			"failed":    final.FailedRecords,
			"attempts":  final.Attempts,
		}
		if final.Duration != nil {
			fields["duration_s"] = *final.Duration
			if *final.Duration > 0 {
				fields["records_per_s"] = float64(final.ProcessedRecords) / *final.Duration
			}
		}
		if final.ErrorMessage != nil {
			fields["error"] = *final.ErrorMessage
		}
		jobLog.WithFields(fields).Info("Job finished")
		if final.Status != "COMPLETED" {
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
}
