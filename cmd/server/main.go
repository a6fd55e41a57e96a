package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/um-label-server/internal/client"
	"github.com/ryabkov82/um-label-server/internal/config"
	"github.com/ryabkov82/um-label-server/internal/httpapi"
	"github.com/ryabkov82/um-label-server/internal/ingest"
	"github.com/ryabkov82/um-label-server/internal/job"
	"github.com/ryabkov82/um-label-server/internal/logging"
	"github.com/ryabkov82/um-label-server/internal/objectstore"
	"github.com/ryabkov82/um-label-server/internal/version"
)

func main() {
	cfg, err := config.LoadServer(os.Getenv(config.EnvConfigPath), os.Getenv)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("init logging")
	}
	log := logger.WithField("service", version.Name)
	log.WithField("version", version.String()).Info("starting")

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.WithError(err).Fatal("create output dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uploader archiveUploader
	if cfg.S3.Enabled() {
		s3, err := objectstore.NewMinioStore(ctx, cfg.S3)
		if err != nil {
			log.WithError(err).Fatal("init object storage")
		}
		uploader = s3
		log.WithField("bucket", cfg.S3.Bucket).Info("archive upload enabled")
	}

	store := job.NewStore()

	dispatcher := client.NewDispatcher(cfg.QueueSize, log,
		store.MarkReportSent,
		func(jobID string, err error) { store.UpdateError(jobID, err) },
	)
	// Deliveries outlive the worker context so queued reports drain on shutdown
	dispatcher.Start(context.Background(), cfg.DeliveryWorkers)

	w := &worker{
		store: store,
		opts: ingest.ProcessorOptions{
			AllowedBaseDir: cfg.AllowedBaseDir,
			OutputDir:      cfg.OutputDir,
			Workers:        cfg.Workers,
		},
		uploader:   uploader,
		dispatcher: dispatcher,
		callback:   cfg.Callback,
		log:        log,
	}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.run(ctx)
	}()

	handler, err := httpapi.NewHandler(store, cfg.AllowedBaseDir, uploader != nil, log)
	if err != nil {
		log.WithError(err).Fatal("init handler")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.SetupRouter(handler, cfg.APIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-sigChan
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}

	cancel()
	<-workerDone
	dispatcher.CloseAndWait()

	log.Info("server stopped")
}
