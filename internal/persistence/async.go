package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/observability"
)

type asyncItem struct {
	job     constructedJob
	barrier chan struct{}
}

// asyncWriter drains heavy constructed writes on a single goroutine so
// callers never wait on large serializations.
type asyncWriter struct {
	queue chan asyncItem
	write func(context.Context, constructedJob) bool
	log   *logger.Logger

	// pending counts jobs accepted but not yet written.
	pending atomic.Int64

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}

	shutdownComplete chan struct{}
}

func newAsyncWriter(size int, write func(context.Context, constructedJob) bool, log *logger.Logger) *asyncWriter {
	return &asyncWriter{
		queue:            make(chan asyncItem, size),
		write:            write,
		log:              logger.OrNop(log),
		stop:             make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}
}

// Start runs the worker loop until Close. It should be called in a goroutine.
func (w *asyncWriter) Start(ctx context.Context) {
	defer close(w.shutdownComplete)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case item := <-w.queue:
			observability.SetAsyncQueueDepth(len(w.queue))
			if item.barrier != nil {
				close(item.barrier)
				continue
			}
			w.run(ctx, item.job)
		}
	}
}

func (w *asyncWriter) run(ctx context.Context, job constructedJob) {
	start := time.Now()
	ok := false
	defer func() {
		w.pending.Add(-1)
		if rec := recover(); rec != nil {
			w.log.Error("persistence: background write panicked", "activity_id", job.id, "panic", rec)
		}
		observability.RecordAsyncWrite(ok, time.Since(start))
	}()
	ok = w.write(ctx, job)
	if !ok {
		w.log.Error("persistence: background constructed write failed", "activity_id", job.id, "type", job.activityType)
	}
}

// Enqueue hands job to the worker. It reports false when the queue is full or
// the writer is closed, in which case the caller writes synchronously.
func (w *asyncWriter) Enqueue(job constructedJob) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.pending.Add(1)
	select {
	case w.queue <- asyncItem{job: job}:
		observability.SetAsyncQueueDepth(len(w.queue))
		return true
	default:
		w.pending.Add(-1)
		return false
	}
}

// Pending reports how many accepted jobs have not finished writing.
func (w *asyncWriter) Pending() int64 {
	return w.pending.Load()
}

// Flush waits until every job queued before the call has been written.
func (w *asyncWriter) Flush() {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return
	}
	barrier := make(chan struct{})
	select {
	case w.queue <- asyncItem{barrier: barrier}:
	case <-w.shutdownComplete:
		w.mu.RUnlock()
		return
	}
	w.mu.RUnlock()

	select {
	case <-barrier:
	case <-w.shutdownComplete:
	}
}

// Close flushes pending jobs and stops the worker.
func (w *asyncWriter) Close() {
	w.Flush()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()
	w.Wait()
}

// Wait blocks until the worker loop has exited.
func (w *asyncWriter) Wait() {
	<-w.shutdownComplete
}
