package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// Dispatcher defaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	DefaultTimeout   = 30 * time.Second
)

// Job is one queued delivery.
type Job struct {
	ID           string
	Alerter      Alerter
	Incident     types.Incident
	Subscription types.Subscription
}

// Dispatcher runs deliveries on a fixed pool of workers fed by a bounded
// queue. Submit never blocks.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	jobs    chan Job
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts workers goroutines. Non-positive arguments fall back to
// the defaults.
func NewDispatcher(workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{
		jobs:    make(chan Job, queueSize),
		timeout: timeout,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Submit enqueues a delivery. It returns false when the queue is full or the
// dispatcher is closed; the delivery is then dropped.
func (d *Dispatcher) Submit(a Alerter, inc types.Incident, sub types.Subscription) bool {
	job := Job{ID: uuid.NewString(), Alerter: a, Incident: inc, Subscription: sub}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		slog.Warn("alerts: dispatcher closed, dropping delivery",
			"alerter", a.AlerterType(),
			"check", inc.CheckID,
		)
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		d.dropped.Add(1)
		slog.Warn("alerts: dispatch queue full, dropping delivery",
			"alerter", a.AlerterType(),
			"check", inc.CheckID,
			"subscription", sub.ID,
		)
		return false
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

// Stats reports delivery counters since start.
func (d *Dispatcher) Stats() (delivered, failed, dropped uint64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		if err := d.run(job); err != nil {
			d.failed.Add(1)
			slog.Error("alerts: delivery failed",
				"job", job.ID,
				"alerter", job.Alerter.AlerterType(),
				"check", job.Incident.CheckID,
				"subscription", job.Subscription.ID,
				"err", err,
			)
			continue
		}
		d.delivered.Add(1)
		slog.Debug("alerts: delivered",
			"job", job.ID,
			"alerter", job.Alerter.AlerterType(),
			"check", job.Incident.CheckID,
			"status", job.Incident.NewStatus,
		)
	}
}

// run delivers one job, converting a panic into an error.
func (d *Dispatcher) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alerter panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return job.Alerter.Alert(ctx, job.Incident, job.Subscription)
}
