package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/asterisk-callcenter/internal/publisher"
)

// SnapshotSink receives the latest JSON snapshot per event name, for
// pull-style seeding of late subscribers.
type SnapshotSink interface {
	Set(ctx context.Context, name string, payload []byte) error
}

// Broadcaster fans engine notifications out to the broadcast transport and
// an optional snapshot sink on its own goroutine, so a slow broker never
// blocks the dispatcher. Delivery is at-most-once: when the outbox is full
// the notification is dropped with a log line.
type Broadcaster struct {
	pub    publisher.Publisher
	sink   SnapshotSink
	prefix string
	log    *slog.Logger

	ch        chan notification
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type notification struct {
	event   string
	payload any
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithSnapshotSink mirrors every notification's payload into sink.
func WithSnapshotSink(sink SnapshotSink) BroadcasterOption {
	return func(b *Broadcaster) { b.sink = sink }
}

// NewBroadcaster starts the delivery goroutine. Topic is prefix + "/" +
// event name.
func NewBroadcaster(pub publisher.Publisher, prefix string, log *slog.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		pub:    pub,
		prefix: prefix,
		log:    log,
		ch:     make(chan notification, 128),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Notify queues a notification without blocking.
func (b *Broadcaster) Notify(event string, payload any) {
	select {
	case b.ch <- notification{event: event, payload: payload}:
	default:
		b.log.Warn("broadcast outbox full, dropping notification", "event", event)
	}
}

func (b *Broadcaster) run() {
	defer b.wg.Done()
	for n := range b.ch {
		data, err := json.Marshal(n.payload)
		if err != nil {
			b.log.Error("marshaling notification", "event", n.event, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.pub.Publish(ctx, b.prefix+"/"+n.event, data); err != nil {
			b.log.Warn("broadcast publish failed", "event", n.event, "error", err)
		}
		if b.sink != nil {
			if err := b.sink.Set(ctx, n.event, data); err != nil {
				b.log.Warn("snapshot write failed", "event", n.event, "error", err)
			}
		}
		cancel()
	}
}

// Close drains queued notifications and stops the goroutine.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
	b.wg.Wait()
}
