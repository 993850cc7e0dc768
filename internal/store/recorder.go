package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// maxBatch bounds the uses written in one transaction.
const maxBatch = 64

// Recorder writes uses to a Store on its own goroutine. Record never
// blocks: when the queue is full the use is dropped and counted.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	queue  chan Use
	stop   chan struct{}
	done   chan struct{}

	// mu orders queue sends against Close so every use sent before
	// closed is set is drained by the loop.
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder starts a Recorder with room for queueSize pending uses.
func NewRecorder(s *Store, queueSize int, logger *slog.Logger) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  s,
		logger: logger,
		queue:  make(chan Use, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues u. It is safe to call from the capture path.
func (r *Recorder) Record(u Use) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- u:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of uses discarded because the queue was full
// or the recorder was closed.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of uses stored.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Failed returns the number of uses lost to write errors.
func (r *Recorder) Failed() uint64 { return r.failed.Load() }

// Close writes pending uses and stops the goroutine. It does not close the
// Store.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.stop)
	})
	<-r.done
	return nil
}

func (r *Recorder) loop() {
	defer close(r.done)

	batch := make([]Use, 0, maxBatch)
	for {
		select {
		case u := <-r.queue:
			batch = append(batch[:0], u)
			batch = r.drain(batch)
			r.write(batch)
		case <-r.stop:
			for {
				batch = r.drain(batch[:0])
				if len(batch) == 0 {
					return
				}
				r.write(batch)
			}
		}
	}
}

// drain appends queued uses without waiting.
func (r *Recorder) drain(batch []Use) []Use {
	for len(batch) < maxBatch {
		select {
		case u := <-r.queue:
			batch = append(batch, u)
		default:
			return batch
		}
	}
	return batch
}

func (r *Recorder) write(batch []Use) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Record(ctx, batch...); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.logger.Warn("usage statistics not written", "uses", len(batch), "error", err)
		return
	}
	r.written.Add(uint64(len(batch)))
}
