package main

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/um-label-server/internal/client"
	"github.com/ryabkov82/um-label-server/internal/config"
	"github.com/ryabkov82/um-label-server/internal/ingest"
	"github.com/ryabkov82/um-label-server/internal/job"
)

// archiveUploader stores a finished archive and returns its object key
type archiveUploader interface {
	UploadArchive(ctx context.Context, packageID, jobID, localPath string) (string, error)
}

// worker takes jobs off the store queue and runs them one at a time
type worker struct {
	store      *job.Store
	opts       ingest.ProcessorOptions
	uploader   archiveUploader // nil when object storage is not configured
	dispatcher *client.Dispatcher
	callback   config.Callback
	log        logrus.FieldLogger
}

func (w *worker) run(ctx context.Context) {
	for {
		j, err := w.store.NextJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("next job")
			time.Sleep(time.Second)
			continue
		}
		w.processJob(ctx, j)
	}
}

func (w *worker) processJob(ctx context.Context, j *job.Job) {
	jobCtx, jobCancel := context.WithCancel(ctx)
	defer jobCancel()

	log := w.log.WithFields(logrus.Fields{"job": j.ID, "package": j.PackageID})

	if err := w.store.SetCancel(j.ID, jobCancel); err != nil {
		log.WithError(err).Warn("failed to register cancel")
	}
	defer w.store.ClearCancel(j.ID)

	timings := ingest.NewTimings()
	opts := w.opts
	opts.Logger = log
	opts.Timings = timings

	start := time.Now()
	out, err := ingest.NewProcessor(j, w.store, opts).Process(jobCtx)

	if out != nil {
		w.store.UpdateArtifacts(j.ID, out.ArchivePath, out.ArchiveSize, out.ReportPath)
	}

	if err == nil && j.Upload && w.uploader != nil && out.ArchivePath != "" {
		key, uerr := w.uploader.UploadArchive(jobCtx, j.PackageID, j.ID, out.ArchivePath)
		if uerr != nil {
			err = uerr
		} else {
			w.store.UpdateArchiveKey(j.ID, key)
			log.WithField("key", key).Info("archive uploaded")
		}
	}

	switch {
	case jobCtx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
		w.store.UpdateStatus(j.ID, job.StatusCanceled)
		log.Info("job canceled")
	case err != nil:
		w.store.UpdateError(j.ID, err)
		w.store.UpdateStatus(j.ID, job.StatusFailed)
		log.WithError(err).Error("job failed")
	default:
		w.store.UpdateStatus(j.ID, job.StatusSucceeded)
	}

	if snap, gerr := w.store.Get(j.ID); gerr == nil {
		log.WithFields(logrus.Fields{
			"status":   snap.Status,
			"rows":     snap.RowsRead,
			"rendered": snap.RowsRendered,
			"failed":   snap.RowsFailed,
			"archive":  humanize.Bytes(uint64(snap.ArchiveSize)),
			"elapsed":  time.Since(start).Round(time.Millisecond),
		}).Info("job finished")
	}
	log.WithField("timings", timings.String()).Debug("stage timings")

	if out != nil && out.Report != nil {
		w.deliver(ctx, j, out.Report, timings)
	}
}

// deliver queues the report for the job's callback endpoint, if it has one
func (w *worker) deliver(ctx context.Context, j *job.Job, report *ingest.Report, timings *ingest.Timings) {
	if j.Delivery.Endpoint == "" || w.dispatcher == nil {
		return
	}
	sender := client.NewSender(j.Delivery, w.callback.BasicUser, w.callback.BasicPass, timings)
	if err := w.dispatcher.Enqueue(ctx, client.Delivery{JobID: j.ID, Sender: sender, Report: report}); err != nil {
		w.log.WithField("job", j.ID).WithError(err).Warn("report not queued for delivery")
		w.store.UpdateError(j.ID, err)
	}
}
