package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AsyncWriter applies writes through a single ordered background worker so
// the event dispatcher never waits on the database. Failures are logged and
// dropped; the in-memory state is the authoritative real-time source.
type AsyncWriter struct {
	store   Store
	log     *slog.Logger
	jobs    chan job
	wg      sync.WaitGroup
	timeout time.Duration

	closeOnce sync.Once
}

type job struct {
	label string
	fn    func(ctx context.Context) error
}

// NewAsyncWriter starts the worker. queueSize bounds the backlog; once full,
// further writes are dropped with a log line rather than blocking.
func NewAsyncWriter(s Store, log *slog.Logger, queueSize int) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	w := &AsyncWriter{
		store:   s,
		log:     log,
		jobs:    make(chan job, queueSize),
		timeout: 10 * time.Second,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for j := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := j.fn(ctx); err != nil {
			w.log.Error("persistence write failed", "op", j.label, "error", err)
		}
		cancel()
	}
}

func (w *AsyncWriter) submit(label string, fn func(ctx context.Context) error) {
	select {
	case w.jobs <- job{label: label, fn: fn}:
	default:
		w.log.Error("persistence queue full, dropping write", "op", label)
	}
}

// Close drains the queue and stops the worker.
func (w *AsyncWriter) Close() {
	w.closeOnce.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

func (w *AsyncWriter) UpsertCall(u CallUpdate) {
	w.submit("upsert_call", func(ctx context.Context) error {
		return w.store.UpsertCall(ctx, u)
	})
}

func (w *AsyncWriter) InsertShift(s ShiftSession) {
	w.submit("insert_shift", func(ctx context.Context) error {
		return w.store.InsertShift(ctx, s)
	})
}

func (w *AsyncWriter) SetPendingEnd(id string, deadline time.Time, reason string) {
	w.submit("set_pending_end", func(ctx context.Context) error {
		return w.store.SetPendingEnd(ctx, id, deadline, reason)
	})
}

func (w *AsyncWriter) ClearPendingEnd(id string) {
	w.submit("clear_pending_end", func(ctx context.Context) error {
		return w.store.ClearPendingEnd(ctx, id)
	})
}

func (w *AsyncWriter) CloseShift(id string, end time.Time, durationSec int, reason string) {
	w.submit("close_shift", func(ctx context.Context) error {
		return w.store.CloseShift(ctx, id, end, durationSec, reason)
	})
}
