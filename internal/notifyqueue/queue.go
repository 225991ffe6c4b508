package notifyqueue

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cshealth/internal/domain"
)

// ErrClosed indicates queue no longer accepts jobs.
var ErrClosed = errors.New("notify queue closed")

// ErrFull indicates queue buffer is exhausted.
var ErrFull = errors.New("notify queue full")

// Job is one outbound notification task in async delivery queue.
// Params: notification payload and enqueue time.
// Returns: queue unit consumed by delivery workers.
type Job struct {
	ID           string              `json:"id"`
	Notification domain.Notification `json:"notification"`
	CreatedAt    time.Time           `json:"created_at"`
}

// BuildJobID creates deterministic id for one notification.
// Params: notification payload.
// Returns: stable SHA1-based id of alert identity, severity, and first-seen time.
func BuildJobID(notification domain.Notification) string {
	alert := notification.Alert
	raw := fmt.Sprintf("%s|%s|%d", alert.ID, alert.Severity, alert.CreatedAt.UnixNano())
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Handler delivers one job.
type Handler func(ctx context.Context, job Job) error

// Queue is bounded in-process notification queue served by worker goroutines.
// Params: buffer size, worker count, handler, and logger.
// Returns: async delivery pipeline.
type Queue struct {
	jobs    chan Job
	handler Handler
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	pending map[string]struct{}
	wg      sync.WaitGroup
}

// Options controls queue sizing.
type Options struct {
	Buffer     int
	Workers    int
	JobTimeout time.Duration
}

// New starts queue workers.
// Params: options, delivery handler, and logger.
// Returns: running queue.
func New(opts Options, handler Handler, logger *slog.Logger) *Queue {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		jobs:    make(chan Job, opts.Buffer),
		handler: handler,
		logger:  logger,
		timeout: opts.JobTimeout,
		pending: make(map[string]struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue adds job without blocking.
// Params: job; empty ID is derived from notification.
// Returns: ErrFull, ErrClosed, or nil; duplicate pending jobs are dropped silently.
func (q *Queue) Enqueue(job Job) error {
	if job.ID == "" {
		job.ID = BuildJobID(job.Notification)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, dup := q.pending[job.ID]; dup {
		return nil
	}
	select {
	case q.jobs <- job:
		q.pending[job.ID] = struct{}{}
		return nil
	default:
		return ErrFull
	}
}

// Close stops accepting jobs and waits for queued jobs to finish.
// Params: context bounding the drain.
// Returns: context error when drain does not finish in time.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.handler(ctx, job); err != nil {
			q.logger.Error("notify delivery failed", "job_id", job.ID, "alert_id", job.Notification.Alert.ID, "error", err.Error())
		}
		cancel()
		q.mu.Lock()
		delete(q.pending, job.ID)
		q.mu.Unlock()
	}
}
