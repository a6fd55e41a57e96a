package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ryabkov82/um-label-server/internal/ingest"
	"github.com/ryabkov82/um-label-server/internal/job"
)

const (
	defaultTimeoutSeconds = 30
	defaultBackoffMs      = 500
	defaultBackoffMaxMs   = 10000
)

// Sender posts job reports to a callback endpoint with retry and backoff
type Sender struct {
	client       *http.Client
	endpoint     string
	gzip         bool
	maxRetries   int
	backoffMs    int
	backoffMaxMs int
	authHeader   string          // "Basic base64(user:pass)" or empty
	timings      *ingest.Timings // Optional timings for metrics
}

// NewSender creates a sender for cfg. Basic auth is used when both user and
// pass are set. If timings is nil, metrics collection is disabled.
func NewSender(cfg job.DeliveryConfig, user, pass string, timings *ingest.Timings) *Sender {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	backoff := cfg.BackoffMs
	if backoff <= 0 {
		backoff = defaultBackoffMs
	}
	backoffMax := cfg.BackoffMaxMs
	if backoffMax <= 0 {
		backoffMax = defaultBackoffMaxMs
	}

	authHeader := ""
	if user != "" && pass != "" {
		authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}

	return &Sender{
		client:       &http.Client{Timeout: time.Duration(timeout) * time.Second},
		endpoint:     cfg.Endpoint,
		gzip:         cfg.Gzip,
		maxRetries:   cfg.MaxRetries,
		backoffMs:    backoff,
		backoffMaxMs: backoffMax,
		authHeader:   authHeader,
		timings:      timings,
	}
}

// SendReport posts report, retrying network errors, 429 and 5xx responses
func (s *Sender) SendReport(ctx context.Context, report *ingest.Report) error {
	if report == nil {
		return errors.New("nil report")
	}

	start := time.Now()
	defer s.timings.Since(ingest.TimingDelivery, start)

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if s.gzip {
		if body, err = gzipBytes(body); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, attempt, lastErr); err != nil {
				return err
			}
		}

		err := s.sendOnce(ctx, report, body)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// wait sleeps for the backoff of attempt, preferring a server Retry-After
func (s *Sender) wait(ctx context.Context, attempt int, lastErr error) error {
	backoff := time.Duration(s.backoffMs) * time.Duration(1<<uint(attempt-1)) * time.Millisecond
	if limit := time.Duration(s.backoffMaxMs) * time.Millisecond; backoff > limit {
		backoff = limit
	}
	if httpErr, ok := GetHTTPError(lastErr); ok && httpErr.RetryAfter > 0 {
		backoff = httpErr.RetryAfter
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Sender) sendOnce(ctx context.Context, report *ingest.Report, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if s.authHeader != "" {
		req.Header.Set("Authorization", s.authHeader)
	}
	if report.PackageID != "" {
		req.Header.Set("X-UM-PackageId", report.PackageID)
	}
	if report.JobID != "" {
		req.Header.Set("X-UM-JobId", report.JobID)
	}
	req.Header.Set("X-UM-RowsCount", strconv.Itoa(report.RowsTotal))
	req.Header.Set("X-UM-ErrorsCount", strconv.Itoa(len(report.Errors)))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the report was already accepted
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent, http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("gzip error: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}
	return buf.Bytes(), nil
}

// isRetryable reports whether err may succeed on a later attempt.
// Network errors, 429 and 5xx are retryable; other 4xx are not.
func isRetryable(err error) bool {
	httpErr, ok := GetHTTPError(err)
	if !ok {
		return !errors.Is(err, context.Canceled)
	}
	return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
}

// parseRetryAfter parses a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// HTTPError represents an HTTP error
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// GetHTTPError extracts HTTPError from error if possible
func GetHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
