package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Report summarizes a render job for the caller
type Report struct {
	JobID        string      `json:"jobId,omitempty"`
	PackageID    string      `json:"packageId,omitempty"`
	RowsTotal    int         `json:"rowsTotal"`
	RowsRendered int         `json:"rowsRendered"`
	RowsFailed   int         `json:"rowsFailed"`
	Archive      string      `json:"archive,omitempty"`
	Errors       []ErrorItem `json:"errors"`
}

// ErrorItem represents a single error. RowNo is zero for batch-level errors.
type ErrorItem struct {
	RowNo   int64  `json:"rowNo"`
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	TS      string `json:"ts"`
}

// NewReport builds a report from a batch result
func NewReport(jobID, packageID, archive string, res *Result, now time.Time) *Report {
	rendered, failed := res.Counts()
	r := &Report{
		JobID:        jobID,
		PackageID:    packageID,
		RowsTotal:    len(res.Outcomes),
		RowsRendered: rendered,
		RowsFailed:   failed,
		Archive:      archive,
		Errors:       make([]ErrorItem, 0, failed),
	}
	ts := now.UTC().Format(time.RFC3339)
	for _, f := range res.Failures() {
		r.Errors = append(r.Errors, ErrorItem{
			RowNo:   f.RowNo,
			Stage:   string(f.Stage),
			Code:    string(f.Kind),
			Field:   string(f.Field),
			Value:   f.Value,
			Message: f.Message,
			TS:      ts,
		})
	}
	return r
}

// NewBatchErrorReport builds a report for a batch that failed as a whole
func NewBatchErrorReport(jobID, packageID string, rowsTotal int, err error, now time.Time) *Report {
	return &Report{
		JobID:     jobID,
		PackageID: packageID,
		RowsTotal: rowsTotal,
		Errors: []ErrorItem{{
			Stage:   "batch",
			Code:    string(KindOf(err)),
			Message: err.Error(),
			TS:      now.UTC().Format(time.RFC3339),
		}},
	}
}

// WriteFile writes the report as indented JSON
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
