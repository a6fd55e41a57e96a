package client

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/um-label-server/internal/ingest"
)

// ErrDispatcherClosed is returned by Enqueue after Close
var ErrDispatcherClosed = errors.New("delivery dispatcher is closed")

// ReportSender delivers one report
type ReportSender interface {
	SendReport(ctx context.Context, report *ingest.Report) error
}

// Delivery is one queued report
type Delivery struct {
	JobID  string
	Sender ReportSender
	Report *ingest.Report
}

// OnDelivered is called after a report was accepted by the endpoint
type OnDelivered func(jobID string)

// OnDeliveryFailed is called when a report could not be delivered
type OnDeliveryFailed func(jobID string, err error)

// Dispatcher delivers reports in the background on a bounded queue so the
// render worker never waits on a slow callback endpoint
type Dispatcher struct {
	q           chan Delivery
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	log         logrus.FieldLogger
	onDelivered OnDelivered
	onFailed    OnDeliveryFailed
}

// NewDispatcher creates a dispatcher. Callbacks are optional.
func NewDispatcher(queueSize int, log logrus.FieldLogger, onDelivered OnDelivered, onFailed OnDeliveryFailed) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		q:           make(chan Delivery, queueSize),
		log:         log,
		onDelivered: onDelivered,
		onFailed:    onFailed,
	}
}

// Start starts worker goroutines. Workers stop when the queue is closed or
// ctx is done.
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-d.q:
			if !ok {
				return
			}
			d.deliver(ctx, item)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, item Delivery) {
	log := d.log.WithField("job", item.JobID)

	err := item.Sender.SendReport(ctx, item.Report)
	if err != nil {
		fields := logrus.Fields{}
		if httpErr, ok := GetHTTPError(err); ok {
			body := httpErr.Body
			if len(body) > 2048 {
				body = body[:2048] + "..."
			}
			fields["statusCode"] = httpErr.StatusCode
			fields["body"] = body
		}
		log.WithFields(fields).WithError(err).Error("report delivery failed")
		if d.onFailed != nil {
			d.onFailed(item.JobID, err)
		}
		return
	}

	log.Info("report delivered")
	if d.onDelivered != nil {
		d.onDelivered(item.JobID)
	}
}

// Enqueue queues a report. It blocks while the queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, item Delivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.q <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAndWait stops accepting reports and waits for queued ones to be sent
func (d *Dispatcher) CloseAndWait() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
