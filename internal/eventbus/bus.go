// Package eventbus implements the C4 fan-out channel: non-blocking
// publish, bounded per-subscriber queues with drop-oldest-on-overflow,
// and a capped, persisted history (§4.4).
package eventbus

import (
	"context"
	"sync"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// DefaultQueueDepth is the recommended minimum per-subscriber queue
	// size from §4.4 ("recommended >= 256").
	DefaultQueueDepth = 256

	// HistoryLimit is the cap on persisted event history (§6, key
	// sre-sentinel-events-history).
	HistoryLimit = 1000
)

// Store persists a capped, newest-first event history and optionally
// fans events out across processes. C9 provides in-memory and
// Redis-backed implementations sharing this interface.
type Store interface {
	// Append records event in the capped history, evicting the oldest
	// entry if at capacity.
	Append(ctx context.Context, event domain.Event) error
	// History returns the persisted history, newest first.
	History(ctx context.Context) ([]domain.Event, error)
}

// Subscription is a single subscriber's live event stream.
type Subscription struct {
	ch     chan domain.Event
	bus    *Bus
	id     uint64
	closed bool
	mu     sync.Mutex
}

// Events returns the channel to range over. It is closed when the
// subscription is closed.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Close terminates the subscription. Further receives on Events drain
// cleanly to channel-closed rather than raising (§4.4 "Close").
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus is the in-process pub/sub fan-out described by C4. It is safe for
// concurrent use.
type Bus struct {
	store Store
	log   zerolog.Logger

	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]*Subscription
	depth    int
}

// New constructs a Bus backed by store, using queueDepth as the
// per-subscriber bound (DefaultQueueDepth if <= 0).
func New(store Store, queueDepth int, log zerolog.Logger) *Bus {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Bus{
		store: store,
		log:   log,
		subs:  make(map[uint64]*Subscription),
		depth: queueDepth,
	}
}

// Publish delivers event to every currently-attached subscriber and
// appends it to history. It never blocks on a subscriber: a full
// subscriber queue has its oldest entry dropped to make room (§4.4
// "Subscribe").
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if err := b.store.Append(ctx, event); err != nil {
		b.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("failed to persist event to history store")
	}

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		deliverNonBlocking(sub, event)
	}
}

// deliverNonBlocking sends event to sub's queue, dropping the oldest
// queued event on overflow rather than blocking the publisher.
func deliverNonBlocking(sub *Subscription, event domain.Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	select {
	case sub.ch <- event:
		return
	default:
	}

	// Queue full: drop the oldest entry, then enqueue the new one.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- event:
	default:
	}
}

// Subscribe returns a handle yielding the live event stream from this
// point forward (not history; see History). FIFO per subscriber is
// preserved by the buffered channel's ordering.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{ch: make(chan domain.Event, b.depth), bus: b, id: b.nextID}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, id)
	b.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// History returns the persisted event history, newest first, capped at
// HistoryLimit entries.
func (b *Bus) History(ctx context.Context) ([]domain.Event, error) {
	return b.store.History(ctx)
}

// SubscriberCount reports the number of currently-attached subscribers,
// exposed for C10 queue-depth metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
