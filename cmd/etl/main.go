package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/town-data-etl/internal/adapter/dynmap"
	httpadapter "github.com/couchcryptid/town-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/town-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/town-data-etl/internal/adapter/s3archive"
	"github.com/couchcryptid/town-data-etl/internal/adapter/store"
	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/couchcryptid/town-data-etl/internal/observability"
	"github.com/couchcryptid/town-data-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := store.Open(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to open town store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	opts := pipeline.Options{
		Interval:      cfg.PollInterval,
		Workers:       cfg.Workers,
		FailurePolicy: cfg.FailurePolicy,
	}

	// Snapshot publishing (feature-flagged via KAFKA_BROKERS).
	var writer *kafkaadapter.Writer
	if cfg.PublishEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts.Publisher = writer
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	// Raw feed archive (feature-flagged via ARCHIVE_S3_BUCKET).
	if cfg.ArchiveEnabled() {
		archiver, err := s3archive.New(ctx, s3archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			PathStyle: cfg.ArchivePathStyle,
		}, logger)
		if err != nil {
			logger.Error("failed to configure feed archive", "error", err)
			os.Exit(1)
		}
		opts.Archiver = archiver
		logger.Info("feed archive enabled", "bucket", cfg.ArchiveBucket)
	}

	fetcher := dynmap.NewClient(cfg.FeedURL, cfg.FeedMarkerSet, cfg.FeedTimeout, logger)
	transformer := pipeline.NewTransformer(cfg.ReferenceTown, logger)
	scheduler := pipeline.New(fetcher, transformer, repo, logger, metrics, opts)

	srv := httpadapter.NewServer(cfg.HTTPAddr, scheduler, repo, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start poll scheduler.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := closeRepo(); err != nil {
		logger.Error("town store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
