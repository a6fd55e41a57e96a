package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/um-label-server/internal/job"
)

// ProcessorOptions configures a Processor
type ProcessorOptions struct {
	AllowedBaseDir string
	OutputDir      string
	Workers        int
	Logger         logrus.FieldLogger
	Timings        *Timings
}

// Processor runs one render job: read the table, render the rows, write the
// archive and the report
type Processor struct {
	job   *job.Job
	store *job.Store
	opts  ProcessorOptions
	log   logrus.FieldLogger
	now   func() time.Time
}

// Output lists the artifacts of a processed job. Report is always set once
// the input table has been read.
type Output struct {
	ArchivePath string
	ArchiveSize int64
	ReportPath  string
	Report      *Report
}

// NewProcessor creates a new processor
func NewProcessor(j *job.Job, store *job.Store, opts ProcessorOptions) *Processor {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Processor{
		job:   j,
		store: store,
		opts:  opts,
		log:   log.WithFields(logrus.Fields{"job": j.ID, "package": j.PackageID}),
		now:   time.Now,
	}
}

// Process runs the job. Status transitions to succeeded/failed/canceled are
// left to the caller; Process only marks the job running and keeps counters
// current. On a batch-level failure the returned Output still carries the
// report when one could be written.
func (p *Processor) Process(ctx context.Context) (*Output, error) {
	if err := p.store.UpdateStatus(p.job.ID, job.StatusRunning); err != nil {
		return nil, err
	}

	resolved, err := ValidatePath(p.job.InputPath, p.opts.AllowedBaseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if err := ValidatePathExists(resolved); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	start := time.Now()
	table, err := ReadTable(ctx, resolved, p.job.Table)
	p.opts.Timings.Since(TimingRead, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	rowsRead := int64(len(table.Rows))
	p.store.UpdateProgress(p.job.ID, rowsRead, 0, 0)
	p.log.WithField("rows", rowsRead).Info("table read")

	base := archiveBaseName(p.job.InputPath)
	outDir := filepath.Join(p.opts.OutputDir, p.job.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	out := &Output{ReportPath: filepath.Join(outDir, base+".report.json")}

	fail := func(err error) (*Output, error) {
		out.Report = NewBatchErrorReport(p.job.ID, p.job.PackageID, len(table.Rows), err, p.now())
		if werr := out.Report.WriteFile(out.ReportPath); werr != nil {
			p.log.WithError(werr).Error("failed to write report")
			out.ReportPath = ""
		}
		return out, err
	}

	mapping, required, err := MappingFromConfig(p.job.Mapping)
	if err != nil {
		return fail(err)
	}
	spec, err := SpecFromConfig(p.job.Label)
	if err != nil {
		return fail(err)
	}

	runner := &Runner{
		Workers:  p.opts.Workers,
		Required: required,
		Logger:   p.log,
		Timings:  p.opts.Timings,
		Progress: func(_, rendered, failed int64) {
			p.store.UpdateProgress(p.job.ID, rowsRead, rendered, failed)
		},
	}
	res, err := runner.Run(ctx, table, mapping, spec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fail(err)
	}

	rendered, failed := res.Counts()
	p.store.UpdateProgress(p.job.ID, rowsRead, int64(rendered), int64(failed))

	archiveName := base + ".zip"
	archivePath := filepath.Join(outDir, archiveName)
	size, archiveErr := p.writeArchive(archivePath, res.Labels())
	if archiveErr == nil {
		out.ArchivePath = archivePath
		out.ArchiveSize = size
	} else {
		archiveName = ""
	}

	out.Report = NewReport(p.job.ID, p.job.PackageID, archiveName, res, p.now())
	if archiveErr != nil {
		out.Report.Errors = append(out.Report.Errors, ErrorItem{
			Stage:   "archive",
			Code:    string(KindOf(archiveErr)),
			Message: archiveErr.Error(),
			TS:      p.now().UTC().Format(time.RFC3339),
		})
	}
	if err := out.Report.WriteFile(out.ReportPath); err != nil {
		p.log.WithError(err).Error("failed to write report")
		out.ReportPath = ""
	}

	return out, archiveErr
}

// writeArchive streams labels into path through a temporary file
func (p *Processor) writeArchive(path string, labels []RenderedLabel) (int64, error) {
	start := time.Now()
	defer p.opts.Timings.Since(TimingArchive, start)

	if len(labels) == 0 {
		return 0, ErrEmptyBatch
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	if err := WriteArchive(f, labels); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename archive: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), nil
}
