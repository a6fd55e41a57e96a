package ingest

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimingStage names a timed step of a render job
type TimingStage string

const (
	TimingRead     TimingStage = "read"
	TimingMap      TimingStage = "map"
	TimingEncode   TimingStage = "encode"
	TimingCompose  TimingStage = "compose"
	TimingPNG      TimingStage = "png"
	TimingArchive  TimingStage = "archive"
	TimingDelivery TimingStage = "delivery"
)

var timingOrder = []TimingStage{
	TimingRead, TimingMap, TimingEncode, TimingCompose, TimingPNG, TimingArchive, TimingDelivery,
}

type timing struct {
	total time.Duration
	count int64
}

// Timings tracks timing metrics for the stages of a render job.
// A nil *Timings ignores observations.
type Timings struct {
	mu     sync.Mutex
	stages map[TimingStage]timing
}

// NewTimings creates a new Timings instance
func NewTimings() *Timings {
	return &Timings{stages: make(map[TimingStage]timing)}
}

// Observe records one operation of stage
func (t *Timings) Observe(stage TimingStage, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stages[stage]
	s.total += d
	s.count++
	t.stages[stage] = s
}

// Since records the time elapsed from start for stage
func (t *Timings) Since(stage TimingStage, start time.Time) {
	t.Observe(stage, time.Since(start))
}

// Total returns the accumulated duration and count of stage
func (t *Timings) Total(stage TimingStage) (time.Duration, int64) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stages[stage]
	return s.total, s.count
}

// String returns a formatted summary of all timings
func (t *Timings) String() string {
	if t == nil {
		return "No timings recorded"
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := make([]string, 0, len(timingOrder))
	for _, stage := range timingOrder {
		s, ok := t.stages[stage]
		if !ok || s.count == 0 {
			continue
		}
		avg := s.total / time.Duration(s.count)
		parts = append(parts, fmt.Sprintf("%s: total=%v count=%d avg=%v", stage, s.total, s.count, avg))
	}
	if len(parts) == 0 {
		return "No timings recorded"
	}
	return strings.Join(parts, "; ")
}
