package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryabkov82/um-label-server/internal/job"
)

type apiFixture struct {
	store   *job.Store
	baseDir string
	input   string
	server  http.Handler
}

func newAPIFixture(t *testing.T, apiKey string, queueSize int) *apiFixture {
	t.Helper()
	baseDir := t.TempDir()
	input := filepath.Join(baseDir, "products.csv")
	require.NoError(t, os.WriteFile(input, []byte("sku,ean\nA-1,400638133393\n"), 0o644))

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := job.NewStoreWithQueue(queueSize)
	h, err := NewHandler(store, baseDir, false, log)
	require.NoError(t, err)

	return &apiFixture{store: store, baseDir: baseDir, input: input, server: SetupRouter(h, apiKey)}
}

func (f *apiFixture) do(method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		r.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

func (f *apiFixture) request(packageID string) CreateJobRequest {
	return CreateJobRequest{
		PackageID: packageID,
		InputPath: f.input,
		Mapping:   job.MappingConfig{IdentifierField: "sku", BarcodeField: "ean"},
		Label:     job.LabelConfig{WidthMM: 58, HeightMM: 40, DPI: 203},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&m))
	return m
}

func TestCreateJobAndGetStatus(t *testing.T) {
	f := newAPIFixture(t, "", 10)

	w := f.do(http.MethodPost, "/jobs", f.request("pkg-1"), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	jobID, _ := created["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", created["status"])

	stored, err := f.store.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, ",", stored.Table.Delimiter)
	assert.Equal(t, "utf-8", stored.Table.Encoding)
	assert.Equal(t, "csv", stored.FileType)

	w = f.do(http.MethodGet, "/jobs/"+jobID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status JobStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, jobID, status.JobID)
	assert.Equal(t, job.StatusQueued, status.Status)
	assert.False(t, status.HasArchive)

	w = f.do(http.MethodGet, "/packages/pkg-1/job", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jobID, decode(t, w)["jobId"])
}

func TestCreateJobValidation(t *testing.T) {
	f := newAPIFixture(t, "", 10)

	tests := []struct {
		name   string
		mutate func(*CreateJobRequest)
	}{
		{"missing input", func(r *CreateJobRequest) { r.InputPath = "" }},
		{"bad delimiter", func(r *CreateJobRequest) { r.Table.Delimiter = "|" }},
		{"bad encoding", func(r *CreateJobRequest) { r.Table.Encoding = "latin1" }},
		{"unknown format", func(r *CreateJobRequest) { r.Table.Format = "xlsx" }},
		{"identifier not mapped", func(r *CreateJobRequest) { r.Mapping.IdentifierField = "" }},
		{"unknown required field", func(r *CreateJobRequest) { r.Mapping.Required = []string{"colour"} }},
		{"missing dpi", func(r *CreateJobRequest) { r.Label.DPI = 0 }},
		{"path outside base", func(r *CreateJobRequest) { r.InputPath = "/etc/passwd" }},
		{"upload without storage", func(r *CreateJobRequest) { r.Upload = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("pkg")
			tt.mutate(&req)
			w := f.do(http.MethodPost, "/jobs", req, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"inputPath": `))
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateJobConflictAndQueueFull(t *testing.T) {
	f := newAPIFixture(t, "", 1)

	w := f.do(http.MethodPost, "/jobs", f.request("pkg"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	firstID := decode(t, w)["jobId"]

	w = f.do(http.MethodPost, "/jobs", f.request("pkg"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, firstID, decode(t, w)["jobId"])

	w = f.do(http.MethodPost, "/jobs", f.request("other"), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCancelEndpoints(t *testing.T) {
	f := newAPIFixture(t, "", 10)

	w := f.do(http.MethodPost, "/jobs", f.request("a"), "")
	jobA := decode(t, w)["jobId"].(string)
	f.do(http.MethodPost, "/jobs", f.request("b"), "")

	w = f.do(http.MethodPost, "/jobs/"+jobA+"/cancel", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	j, _ := f.store.Get(jobA)
	assert.Equal(t, job.StatusCanceled, j.Status)

	w = f.do(http.MethodPost, "/jobs/"+jobA+"/cancel", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "already finished")

	w = f.do(http.MethodPost, "/jobs/nope/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/packages/b/cancel", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/packages/b/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "no active job left")

	w = f.do(http.MethodGet, "/jobs/"+jobA+"/cancel", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestReportAndArchiveDownloads(t *testing.T) {
	f := newAPIFixture(t, "", 10)

	w := f.do(http.MethodPost, "/jobs", f.request("pkg"), "")
	jobID := decode(t, w)["jobId"].(string)

	w = f.do(http.MethodGet, "/jobs/"+jobID+"/archive", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodGet, "/jobs/"+jobID+"/report", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	archive := filepath.Join(f.baseDir, "products.zip")
	report := filepath.Join(f.baseDir, "products.report.json")
	require.NoError(t, os.WriteFile(archive, []byte("PK\x05\x06"+string(make([]byte, 18))), 0o644))
	require.NoError(t, os.WriteFile(report, []byte(`{"rowsTotal":1,"errors":[]}`), 0o644))
	f.store.UpdateArtifacts(jobID, archive, 22, report)

	w = f.do(http.MethodGet, "/jobs/"+jobID+"/archive", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="products.zip"`)
	assert.Equal(t, 22, w.Body.Len())

	w = f.do(http.MethodGet, "/jobs/"+jobID+"/report", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rowsTotal":1,"errors":[]}`, w.Body.String())
}

func TestAuth(t *testing.T) {
	f := newAPIFixture(t, "secret", 10)

	w := f.do(http.MethodPost, "/jobs", f.request("pkg"), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/jobs", f.request("pkg"), "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/jobs", f.request("pkg"), "secret")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/version", nil, "")
	assert.Equal(t, http.StatusOK, w.Code, "version is public")
}

func TestGetVersion(t *testing.T) {
	f := newAPIFixture(t, "", 10)

	w := f.do(http.MethodGet, "/version", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	for _, field := range []string{"name", "version", "gitCommit", "buildTime", "goVersion"} {
		assert.Contains(t, body, field)
	}
	assert.Equal(t, "um-label-server", body["name"])
}
