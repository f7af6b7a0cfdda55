// Package broadcast implements the in-process pub/sub fan-out of accepted
// pixel events and canvas resizes to live SSE subscribers, with bounded
// per-subscriber memory and a never-blocks-the-publisher delivery contract.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the suggested per-subscriber buffer depth (spec §4.7).
const DefaultBufferSize = 256

// MessageKind discriminates the two message shapes the broadcaster carries.
type MessageKind int

const (
	KindPixel MessageKind = iota
	KindResize
)

// Message is either a PixelAccepted or a CanvasResized event.
type Message struct {
	Kind MessageKind

	// Pixel fields, valid when Kind == KindPixel.
	X, Y, Color int
	UserPK      string
	PlacedAt    int64

	// Resize fields, valid when Kind == KindResize.
	OldSize, NewSize int
}

// subscriber holds one live SSE client's delivery channel. lag is set when
// the oldest-drop policy below has discarded a message for this subscriber;
// the HTTP layer reads it to decide whether to send a reconnect event. Every
// field below is guarded by mu, including ch's open/closed state: deliver and
// Unsubscribe/Shutdown must never race on a send-to-closed-channel, so the
// close itself happens under the same lock deliver takes before sending.
type subscriber struct {
	mu     sync.Mutex
	ch     chan Message
	lag    bool
	closed bool
}

// Broadcaster is the process-wide fan-out hub. The zero value is not usable;
// construct with New.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber
	bufferSize  int
	closed      bool
}

// New creates a Broadcaster with the given per-subscriber buffer depth.
func New(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]*subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber and returns its handle and delivery
// channel. Returns ok=false if the broadcaster has stopped accepting new
// subscribers (shutdown in progress).
func (b *Broadcaster) Subscribe() (handle uuid.UUID, ch <-chan Message, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return uuid.UUID{}, nil, false
	}

	id := uuid.New()
	sub := &subscriber{
		ch: make(chan Message, b.bufferSize),
	}
	b.subscribers[id] = sub
	return id, sub.ch, true
}

// Unsubscribe removes a subscriber and closes its channel. The close happens
// under sub.mu so a concurrent deliver (called from Publish after it has
// already released b.mu) can never send on the channel after this closes it.
func (b *Broadcaster) Unsubscribe(handle uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subscribers[handle]
	if ok {
		delete(b.subscribers, handle)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	sub.mu.Lock()
	sub.closed = true
	close(sub.ch)
	sub.mu.Unlock()
}

// Lagged reports whether handle's subscriber has dropped messages since the
// last check, clearing the flag as a side effect.
func (b *Broadcaster) Lagged(handle uuid.UUID) bool {
	b.mu.RLock()
	sub, ok := b.subscribers[handle]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	lagged := sub.lag
	sub.lag = false
	return lagged
}

// Publish delivers msg to every live subscriber. It never blocks: a full
// subscriber buffer has its oldest message dropped to make room, and the
// subscriber is flagged as lagged so the SSE layer can force a reconnect.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, msg)
	}
}

// deliver sends msg to sub, holding sub.mu for the whole attempt so a
// concurrent Unsubscribe/Shutdown can never close sub.ch out from under a
// send in progress here.
func deliver(sub *subscriber, msg Message) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}

	select {
	case sub.ch <- msg:
		return
	default:
	}

	// Buffer full: drop the oldest message to make room, flag lag.
	select {
	case <-sub.ch:
	default:
	}
	sub.lag = true

	select {
	case sub.ch <- msg:
	default:
		// Buffer refilled since the drain above; drop this message too
		// rather than block.
	}
}

// Shutdown stops accepting new subscribers and closes all existing
// subscriber channels.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[uuid.UUID]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	}
}

// SubscriberCount returns the number of currently live subscribers, used for
// metrics/diagnostics.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
