package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ryabkov82/um-label-server/internal/barcode"
	"github.com/ryabkov82/um-label-server/internal/render"
)

const labelExt = ".png"

// RenderedLabel is one encoded label ready for the archive
type RenderedLabel struct {
	Filename string
	Digits   string
	Width    int
	Height   int
	DPI      int
	PNG      []byte
}

// Failure describes why a row produced no label
type Failure struct {
	RowIndex int
	RowNo    int64
	Stage    Stage
	Kind     Kind
	Field    Field
	Value    string
	Message  string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("row %d: %s: %s", f.RowNo, f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// RowOutcome is the result of one row: exactly one of Label and Failure is set
type RowOutcome struct {
	RowIndex int
	RowNo    int64
	Label    *RenderedLabel
	Failure  *Failure

	// stem is the sanitised identifier; Run turns it into Label.Filename after all rows finish
	stem string
}

// OK reports whether the row was rendered
func (o RowOutcome) OK() bool {
	return o.Label != nil
}

// Result holds the outcomes of a batch in input order
type Result struct {
	Outcomes []RowOutcome
}

// Labels returns the rendered labels in input order
func (r *Result) Labels() []RenderedLabel {
	out := make([]RenderedLabel, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Label != nil {
			out = append(out, *o.Label)
		}
	}
	return out
}

// Failures returns the failed rows in input order
func (r *Result) Failures() []Failure {
	var out []Failure
	for _, o := range r.Outcomes {
		if o.Failure != nil {
			out = append(out, *o.Failure)
		}
	}
	return out
}

// Counts returns the number of rendered and failed rows
func (r *Result) Counts() (rendered, failed int) {
	for _, o := range r.Outcomes {
		if o.Label != nil {
			rendered++
		} else {
			failed++
		}
	}
	return rendered, failed
}

// ProgressFunc is called after every finished row. It may be called from
// several goroutines at once.
type ProgressFunc func(done, rendered, failed int64)

// Runner renders a table of rows into labels on a bounded worker pool.
// The zero value is usable.
type Runner struct {
	// Workers bounds concurrent rows; zero means GOMAXPROCS
	Workers int
	// Required lists fields that must be non-empty in addition to identifier and barcode_value
	Required []Field
	Logger   logrus.FieldLogger
	Timings  *Timings
	Progress ProgressFunc

	compose func(render.Content, barcode.Symbol, render.Spec) (*render.Label, error)
}

// Run validates spec and mapping, then renders every row. A failing row never
// stops the batch. When ctx is canceled no new rows are started, rows in
// flight finish, and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, table *Table, mapping FieldMapping, spec render.Spec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	mapping = mapping.withBarcodeDefault()
	required := RequiredFields(r.Required...)
	if err := ValidateMapping(mapping, required, table.Columns); err != nil {
		return nil, err
	}

	log := r.logger()
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]RowOutcome, len(table.Rows))
	var done, rendered, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := range table.Rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			row := table.Rows[i]
			if ctx.Err() != nil {
				return nil
			}
			out := r.renderRow(i, row, mapping, required, spec)
			outcomes[i] = out

			d := done.Add(1)
			if out.Failure != nil {
				failed.Add(1)
				log.WithFields(logrus.Fields{
					"row":   row.RowNo,
					"stage": out.Failure.Stage,
					"kind":  out.Failure.Kind,
					"field": out.Failure.Field,
				}).Warn(out.Failure.Message)
			} else {
				rendered.Add(1)
			}
			if r.Progress != nil {
				r.Progress(d, rendered.Load(), failed.Load())
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.WithField("done", done.Load()).Info("batch canceled")
		return nil, err
	}

	names := newNameAllocator()
	for i := range outcomes {
		if outcomes[i].Label != nil {
			outcomes[i].Label.Filename = names.allocate(outcomes[i].stem, labelExt)
		}
	}

	log.WithFields(logrus.Fields{
		"rows":     len(outcomes),
		"rendered": rendered.Load(),
		"failed":   failed.Load(),
	}).Info("batch rendered")
	return &Result{Outcomes: outcomes}, nil
}

// renderRow runs one row through map, encode, compose and png. Panics are
// turned into RenderFailed outcomes.
func (r *Runner) renderRow(index int, row RowRecord, mapping FieldMapping, required []Field, spec render.Spec) (out RowOutcome) {
	out = RowOutcome{RowIndex: index, RowNo: row.RowNo}
	stage := StageMap

	defer func() {
		if p := recover(); p != nil {
			r.logger().WithField("row", row.RowNo).Errorf("panic while rendering: %v\n%s", p, debug.Stack())
			err := fmt.Errorf("%w: panic: %v", ErrRenderFailed, p)
			out.Label = nil
			out.Failure = newFailure(index, row.RowNo, stage, err)
		}
	}()

	start := time.Now()
	fields, err := Resolve(row, mapping, required)
	r.Timings.Since(TimingMap, start)
	if err != nil {
		out.Failure = newFailure(index, row.RowNo, stage, err)
		return out
	}

	stage = StageEncode
	start = time.Now()
	sym, err := barcode.Encode(fields[FieldBarcode])
	r.Timings.Since(TimingEncode, start)
	if err != nil {
		err = &FieldError{Field: FieldBarcode, Value: fields[FieldBarcode], Err: err}
		out.Failure = newFailure(index, row.RowNo, stage, err)
		return out
	}

	stage = StageCompose
	start = time.Now()
	compose := r.compose
	if compose == nil {
		compose = render.Compose
	}
	label, err := compose(ContentFromFields(fields), sym, spec)
	r.Timings.Since(TimingCompose, start)
	if err != nil {
		out.Failure = newFailure(index, row.RowNo, stage, err)
		return out
	}

	stage = StagePNG
	start = time.Now()
	data, err := label.PNG()
	r.Timings.Since(TimingPNG, start)
	if err != nil {
		out.Failure = newFailure(index, row.RowNo, stage, fmt.Errorf("%w: %v", ErrRenderFailed, err))
		return out
	}

	w, h := label.Size()
	out.stem = SanitizeFilename(fields[FieldIdentifier], index)
	out.Label = &RenderedLabel{
		Digits: sym.Digits,
		Width:  w,
		Height: h,
		DPI:    label.DPI,
		PNG:    data,
	}
	return out
}

func newFailure(index int, rowNo int64, stage Stage, err error) *Failure {
	f := &Failure{
		RowIndex: index,
		RowNo:    rowNo,
		Stage:    stage,
		Kind:     KindOf(err),
		Message:  err.Error(),
		Err:      err,
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		f.Field = fe.Field
		f.Value = fe.Value
	}
	return f
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger != nil {
		return r.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
