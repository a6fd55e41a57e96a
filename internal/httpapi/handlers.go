package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/um-label-server/internal/ingest"
	"github.com/ryabkov82/um-label-server/internal/job"
	"github.com/ryabkov82/um-label-server/internal/version"
)

// Handler handles HTTP requests
type Handler struct {
	store          *job.Store
	allowedBaseDir string
	uploadEnabled  bool
	log            logrus.FieldLogger
}

// NewHandler creates a new handler. uploadEnabled tells whether jobs may ask
// for archive upload to object storage.
func NewHandler(store *job.Store, allowedBaseDir string, uploadEnabled bool, log logrus.FieldLogger) (*Handler, error) {
	absDir, err := filepath.Abs(allowedBaseDir)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed base dir: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		store:          store,
		allowedBaseDir: absDir,
		uploadEnabled:  uploadEnabled,
		log:            log,
	}, nil
}

// CreateJobRequest is the body of POST /jobs
type CreateJobRequest struct {
	PackageID string             `json:"packageId"`
	InputPath string             `json:"inputPath"`
	Table     job.TableConfig    `json:"table"`
	Mapping   job.MappingConfig  `json:"mapping"`
	Label     job.LabelConfig    `json:"label"`
	Delivery  job.DeliveryConfig `json:"delivery"`
	Upload    bool               `json:"upload"`
}

// JobStatusResponse is the body of GET /jobs/{jobId}
type JobStatusResponse struct {
	JobID        string        `json:"jobId"`
	PackageID    string        `json:"packageId,omitempty"`
	Status       job.JobStatus `json:"status"`
	InputPath    string        `json:"inputPath"`
	FileType     string        `json:"fileType,omitempty"`
	RowsRead     int64         `json:"rowsRead"`
	RowsRendered int64         `json:"rowsRendered"`
	RowsFailed   int64         `json:"rowsFailed"`
	ArchiveSize  int64         `json:"archiveSize,omitempty"`
	ArchiveKey   string        `json:"archiveKey,omitempty"`
	HasArchive   bool          `json:"hasArchive"`
	HasReport    bool          `json:"hasReport"`
	ReportSent   bool          `json:"reportSent"`
	StartedAt    string        `json:"startedAt,omitempty"`
	FinishedAt   string        `json:"finishedAt,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// validate checks a request and normalises defaults in place
func (h *Handler) validate(req *CreateJobRequest) error {
	if strings.TrimSpace(req.InputPath) == "" {
		return errors.New("inputPath is required")
	}

	switch req.Table.Delimiter {
	case "":
		req.Table.Delimiter = ","
	case ";", ",":
	default:
		return errors.New("table.delimiter must be ';' or ','")
	}
	switch strings.ToLower(req.Table.Encoding) {
	case "":
		req.Table.Encoding = ingest.EncodingUTF8
	case ingest.EncodingUTF8, ingest.EncodingWindows1251:
	default:
		return errors.New("table.encoding must be 'utf-8' or 'windows-1251' (or empty for utf-8)")
	}
	format, err := ingest.DetectFormat(req.InputPath, req.Table.Format)
	if err != nil {
		return err
	}
	req.Table.Format = format

	m, required, err := ingest.MappingFromConfig(req.Mapping)
	if err != nil {
		return err
	}
	if err := ingest.ValidateMapping(m, required, nil); err != nil {
		return err
	}
	if _, err := ingest.SpecFromConfig(req.Label); err != nil {
		return err
	}

	if req.Upload && !h.uploadEnabled {
		return errors.New("upload requested but object storage is not configured")
	}
	if _, err := ingest.ValidatePath(req.InputPath, h.allowedBaseDir); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	return nil
}

// CreateJob handles POST /jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := h.validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j := &job.Job{
		PackageID: req.PackageID,
		InputPath: req.InputPath,
		Table:     req.Table,
		Mapping:   req.Mapping,
		Label:     req.Label,
		Delivery:  req.Delivery,
		Upload:    req.Upload,
		FileType:  req.Table.Format,
	}

	jobID, err := h.store.Create(j)
	switch {
	case errors.Is(err, job.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "queue is full, please try again later")
		return
	case errors.Is(err, job.ErrJobAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "job already running for package",
			"jobId": jobID,
		})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		return
	}

	h.log.WithFields(logrus.Fields{
		"job":     jobID,
		"package": req.PackageID,
		"input":   req.InputPath,
	}).Info("job created")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"jobId":  jobID,
		"status": job.StatusQueued,
	})
}

func statusResponse(j *job.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:        j.ID,
		PackageID:    j.PackageID,
		Status:       j.Status,
		InputPath:    j.InputPath,
		FileType:     j.FileType,
		RowsRead:     j.RowsRead,
		RowsRendered: j.RowsRendered,
		RowsFailed:   j.RowsFailed,
		ArchiveSize:  j.ArchiveSize,
		ArchiveKey:   j.ArchiveKey,
		HasArchive:   j.ArchivePath != "",
		HasReport:    j.ReportPath != "",
		ReportSent:   j.ReportSent,
		LastError:    j.LastError,
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	j, err := h.store.Get(r.PathValue("jobId"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return j, true
}

// GetJobStatus handles GET /jobs/{jobId}
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(j))
}

// GetJobReport handles GET /jobs/{jobId}/report
func (h *Handler) GetJobReport(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if j.ReportPath == "" {
		writeError(w, http.StatusNotFound, "report is not available")
		return
	}
	data, err := os.ReadFile(j.ReportPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "report is not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// GetJobArchive handles GET /jobs/{jobId}/archive
func (h *Handler) GetJobArchive(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if j.ArchivePath == "" {
		writeError(w, http.StatusNotFound, "archive is not available")
		return
	}
	f, err := os.Open(j.ArchivePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "archive is not available")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := filepath.Base(j.ArchivePath)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// CancelJob handles POST /jobs/{jobId}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if err := h.store.Cancel(jobID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, job.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	h.log.WithField("job", jobID).Info("job canceled")
	writeJSON(w, http.StatusOK, map[string]string{"jobId": jobID, "status": string(job.StatusCanceled)})
}

// GetJobByPackage handles GET /packages/{packageId}/job
func (h *Handler) GetJobByPackage(w http.ResponseWriter, r *http.Request) {
	j, err := h.store.GetByPackage(r.PathValue("packageId"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(j))
}

// CancelJobByPackage handles POST /packages/{packageId}/cancel
func (h *Handler) CancelJobByPackage(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("packageId")
	jobID, err := h.store.CancelByPackage(packageID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, job.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	h.log.WithFields(logrus.Fields{"job": jobID, "package": packageID}).Info("job canceled by package")
	writeJSON(w, http.StatusOK, map[string]string{"jobId": jobID, "status": string(job.StatusCanceled)})
}

// GetVersion handles GET /version
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}
