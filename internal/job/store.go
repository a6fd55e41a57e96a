package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the job queue is full
var ErrQueueFull = errors.New("queue is full")

// ErrJobAlreadyRunning is returned when a package already has an unfinished job
var ErrJobAlreadyRunning = errors.New("job already running for package")

// ErrNotFound is returned for unknown job or package ids
var ErrNotFound = errors.New("job not found")

const defaultQueueSize = 1000

// Store manages jobs in memory
type Store struct {
	mu                 sync.RWMutex
	jobs               map[string]*Job
	activeJobByPackage map[string]string
	lastJobByPackage   map[string]string
	queue              chan *Job
	cancels            map[string]context.CancelFunc
}

// NewStore creates a new job store
func NewStore() *Store {
	return NewStoreWithQueue(defaultQueueSize)
}

// NewStoreWithQueue creates a job store with the given queue capacity
func NewStoreWithQueue(size int) *Store {
	if size < 1 {
		size = 1
	}
	return &Store{
		jobs:               make(map[string]*Job),
		activeJobByPackage: make(map[string]string),
		lastJobByPackage:   make(map[string]string),
		queue:              make(chan *Job, size),
		cancels:            make(map[string]context.CancelFunc),
	}
}

// Create registers a new job and queues it, returning its ID.
// Returns ErrQueueFull if the queue is full (job is not created) and
// ErrJobAlreadyRunning if the package has an unfinished job.
func (s *Store) Create(j *Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.PackageID != "" {
		if activeID, ok := s.activeJobByPackage[j.PackageID]; ok {
			return activeID, ErrJobAlreadyRunning
		}
	}

	j.ID = uuid.New().String()
	j.Status = StatusQueued

	// Register before queueing so the worker never sees an unknown job
	s.jobs[j.ID] = j
	select {
	case s.queue <- j:
	default:
		delete(s.jobs, j.ID)
		return "", ErrQueueFull
	}

	if j.PackageID != "" {
		s.activeJobByPackage[j.PackageID] = j.ID
		s.lastJobByPackage[j.PackageID] = j.ID
	}
	return j.ID, nil
}

// Get returns a snapshot of a job by ID
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *j
	return &cp, nil
}

// GetByPackage returns a snapshot of the latest job for a package
func (s *Store) GetByPackage(packageID string) (*Job, error) {
	s.mu.RLock()
	id, ok := s.lastJobByPackage[packageID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no job for package %s", ErrNotFound, packageID)
	}
	return s.Get(id)
}

// UpdateStatus updates job status and related fields
func (s *Store) UpdateStatus(id string, status JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// A canceled job stays canceled even if the worker finishes afterwards
	if j.Status == StatusCanceled && status != StatusCanceled {
		return nil
	}

	j.Status = status
	now := time.Now()

	switch status {
	case StatusRunning:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case StatusSucceeded, StatusFailed, StatusCanceled:
		if j.FinishedAt == nil {
			j.FinishedAt = &now
		}
		s.releasePackage(j)
	}

	return nil
}

// UpdateProgress updates row counters
func (s *Store) UpdateProgress(id string, rowsRead, rowsRendered, rowsFailed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return
	}

	j.RowsRead = rowsRead
	j.RowsRendered = rowsRendered
	j.RowsFailed = rowsFailed
}

// UpdateArtifacts records where the archive and report were written
func (s *Store) UpdateArtifacts(id, archivePath string, archiveSize int64, reportPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return
	}

	j.ArchivePath = archivePath
	j.ArchiveSize = archiveSize
	j.ReportPath = reportPath
}

// UpdateArchiveKey records the object storage key of an uploaded archive
func (s *Store) UpdateArchiveKey(id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.ArchiveKey = key
	}
}

// MarkReportSent records a successful report delivery
func (s *Store) MarkReportSent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.ReportSent = true
	}
}

// UpdateError updates job error message
func (s *Store) UpdateError(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return
	}

	if err != nil {
		j.LastError = err.Error()
	} else {
		j.LastError = ""
	}
}

// SetCancel registers a cancel function for a job
func (s *Store) SetCancel(jobID string, cf context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	s.cancels[jobID] = cf
	return nil
}

// ClearCancel removes cancel function for a job
func (s *Store) ClearCancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cancels, jobID)
}

// Cancel cancels a job
func (s *Store) Cancel(id string) error {
	var cf context.CancelFunc

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if j.Status.IsFinished() {
		s.mu.Unlock()
		return fmt.Errorf("job already finished: %s", j.Status)
	}

	// Get cancel function (if exists) and update status under lock
	if cancelFunc, exists := s.cancels[id]; exists {
		cf = cancelFunc
	}

	j.Status = StatusCanceled
	now := time.Now()
	j.FinishedAt = &now
	s.releasePackage(j)
	s.mu.Unlock()

	// Call cancel function outside of lock
	if cf != nil {
		cf()
	}

	return nil
}

// CancelByPackage cancels the active job of a package
func (s *Store) CancelByPackage(packageID string) (string, error) {
	s.mu.RLock()
	id, ok := s.activeJobByPackage[packageID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: no active job for package %s", ErrNotFound, packageID)
	}
	return id, s.Cancel(id)
}

// NextJob returns the next job from the queue (blocking).
// Jobs canceled while queued are skipped.
func (s *Store) NextJob(ctx context.Context) (*Job, error) {
	for {
		select {
		case j := <-s.queue:
			s.mu.RLock()
			canceled := j.Status == StatusCanceled
			s.mu.RUnlock()
			if canceled {
				continue
			}
			return j, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// releasePackage must be called with s.mu held
func (s *Store) releasePackage(j *Job) {
	if j.PackageID == "" {
		return
	}
	if s.activeJobByPackage[j.PackageID] == j.ID {
		delete(s.activeJobByPackage, j.PackageID)
	}
}
