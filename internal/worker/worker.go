package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultInterval = time.Second

// Scanner runs one matchmaking pass over every queue and reports how many
// sessions it created.
type Scanner interface {
	TickAll(ctx context.Context) int
}

// Worker drives the matchmaker on a fixed interval.
type Worker struct {
	id       string
	scanner  Scanner
	interval time.Duration
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// New creates a new worker instance
func New(scanner Scanner, interval time.Duration, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		id:       workerID,
		scanner:  scanner,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// Start scans the queues until Stop is called. It blocks.
func (w *Worker) Start() error {
	defer close(w.done)
	w.log.Info("Worker starting", "worker_id", w.id, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *Worker) scan() {
	ctx, cancel := context.WithTimeout(w.ctx, w.interval*5)
	defer cancel()

	start := time.Now()
	if n := w.scanner.TickAll(ctx); n > 0 {
		w.log.Info("Sessions created",
			"worker_id", w.id,
			"count", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Stop gracefully shuts down the worker and waits for the current scan to
// finish.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.log.Info("Worker stop requested", "worker_id", w.id)
		w.cancel()
	})
}

// Done is closed once Start has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
