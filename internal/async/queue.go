package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/repository"
	"github.com/joseph-ayodele/responder-tracker/internal/services/interpret"
)

// ErrShuttingDown is returned by Enqueue after Shutdown started.
var ErrShuttingDown = errors.New("queue is shutting down")

// Job is one message waiting to be interpreted.
type Job struct {
	Message     interpret.Message
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// MessageHandler processes one message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg interpret.Message) (*repository.Record, error)
}

// Observer is notified of depth changes and job results (metrics hook).
type Observer interface {
	QueueDepthChanged(depth int)
	JobFinished(result string)
}

// MessageQueue runs a fixed pool of workers over a bounded channel.
// Per-sender ordering holds with one worker; with more, the roster
// timestamps keep context lookups consistent.
type MessageQueue struct {
	handler  MessageHandler
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	observer Observer

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*MessageQueue)

func WithWorkers(n int) Option {
	return func(q *MessageQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *MessageQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *MessageQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}
func WithObserver(o Observer) Option {
	return func(q *MessageQueue) { q.observer = o }
}

func NewMessageQueue(handler MessageHandler, logger *slog.Logger, opts ...Option) *MessageQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &MessageQueue{
		handler: handler,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *MessageQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.depthChanged()
					q.process(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *MessageQueue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}

	rec, err := q.handler.HandleMessage(ctx, job.Message)
	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "message_id", job.Message.MessageID, "trace_id", job.TraceID, "error", err)
		q.finished("error")
		return
	}
	q.logger.Info("processed message successfully",
		"worker_id", workerID,
		"message_id", job.Message.MessageID,
		"status", rec.Result.Status,
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
	)
	q.finished("ok")
}

// Enqueue adds a job. When the buffer is full it waits for room until ctx is
// done, then reports common.ErrQueueFull.
func (q *MessageQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "message_id", job.Message.MessageID)
		return ErrShuttingDown
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", "message_id", job.Message.MessageID)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			q.finished("rejected")
			return common.NewAppError("QUEUE_FULL", "ingest queue is full", common.ErrQueueFull)
		}
	}
	q.logger.Debug("queued message for processing", "message_id", job.Message.MessageID)
	q.depthChanged()
	return nil
}

// Depth is the number of queued jobs.
func (q *MessageQueue) Depth() int {
	return len(q.ch)
}

func (q *MessageQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

func (q *MessageQueue) depthChanged() {
	if q.observer != nil {
		q.observer.QueueDepthChanged(len(q.ch))
	}
}

func (q *MessageQueue) finished(result string) {
	if q.observer != nil {
		q.observer.JobFinished(result)
	}
}
