// Package persist drains normalized ticks from a bounded queue and writes
// them to durable storage in time- or size-triggered batches.
package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/market"
	"pairstream/internal/metrics"
)

// Store is the durable sink the worker flushes batches into.
type Store interface {
	InsertTicks(ctx context.Context, ticks []market.Tick) (int, error)
}

// Config controls queueing and flush behavior.
type Config struct {
	QueueSize      int
	BatchSize      int
	FlushInterval  time.Duration
	EnqueueTimeout time.Duration
	FlushTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize < 1 {
		c.QueueSize = 5000
	}
	if c.BatchSize < 1 {
		c.BatchSize = 200
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 250 * time.Millisecond
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 5 * time.Second
	}
}

// Worker is the single consumer of the persistence queue. A failed flush is
// logged and its batch discarded; the loop always continues.
type Worker struct {
	store Store
	log   *zap.Logger
	cfg   Config

	queue chan market.Tick
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc

	mu      sync.Mutex
	flushes int
}

func NewWorker(store Store, cfg Config, log *zap.Logger) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store: store,
		log:   log,
		cfg:   cfg,
		queue: make(chan market.Tick, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the worker loop. Calling Start twice is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		go w.run(runCtx)
		w.log.Info("tick persistence worker started",
			zap.Int("queue_size", w.cfg.QueueSize),
			zap.Int("batch_size", w.cfg.BatchSize),
			zap.Duration("flush_interval", w.cfg.FlushInterval))
	})
}

// Stop cancels the loop, waits for the final forced flush, and returns.
// Stopping an already-stopped worker is a no-op.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel == nil {
			close(w.done)
			return
		}
		w.cancel()
		<-w.done
		w.log.Info("tick persistence worker stopped")
	})
}

// Enqueue offers a tick to the queue, blocking up to the configured timeout
// when the queue is full. It reports whether the tick was accepted; a false
// return means the tick was dropped under backpressure.
func (w *Worker) Enqueue(tick market.Tick) bool {
	select {
	case w.queue <- tick:
		return true
	default:
	}

	timer := time.NewTimer(w.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case w.queue <- tick:
		return true
	case <-timer.C:
		metrics.TicksDropped.WithLabelValues(tick.Symbol, metrics.ReasonQueueFull).Inc()
		return false
	}
}

// Flushes reports how many flush attempts have run. Used by tests and the
// health surface.
func (w *Worker) Flushes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushes
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	batch := make([]market.Tick, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is still queued, then force a final flush.
			for {
				select {
				case tick := <-w.queue:
					batch = append(batch, tick)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return

		case tick := <-w.queue:
			batch = append(batch, tick)
			if len(batch) >= w.cfg.BatchSize {
				w.flush(batch)
				batch = batch[:0]
				ticker.Reset(w.cfg.FlushInterval)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Worker) flush(batch []market.Tick) {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()

	cp := make([]market.Tick, len(batch))
	copy(cp, batch)

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	written, err := w.store.InsertTicks(ctx, cp)
	if err != nil {
		metrics.PersistFlushErrors.Inc()
		w.log.Warn("failed to flush tick batch, discarding",
			zap.Int("batch_size", len(cp)),
			zap.Error(err))
		return
	}

	metrics.PersistFlushes.Inc()
	w.log.Debug("flushed tick batch", zap.Int("written", written))
}
