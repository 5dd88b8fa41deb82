// Package bus is the many-reader fan-out channel that the acquisition
// engine publishes scans onto. It is a single-producer, multi-consumer
// ring buffer: publishing never blocks and never fails, and a subscriber
// that falls more than Capacity messages behind loses the oldest
// undelivered messages rather than stalling the producer. Go's standard
// library and the retrieval pack have no ready-made broadcast channel with
// this head-drop-per-subscriber behavior (the closest analogue is Rust's
// tokio::sync::broadcast, which is what the original service used), so it
// is hand-rolled here per spec §9's explicit guidance to emulate it with a
// bounded ring buffer.
package bus

import (
	"context"
	"sync"

	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// DefaultCapacity is the minimum ring size spec §4.2 requires.
const DefaultCapacity = 100_000

// Bus is safe for concurrent use by one publisher and many subscribers.
type Bus struct {
	mu          sync.Mutex
	buf         []spectrum.Scan
	capacity    uint64
	nextWrite   uint64
	closed      bool
	subscribers map[uint64]*Subscriber
	nextSubID   uint64
}

// New creates a Bus. A non-positive capacity is replaced with DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		buf:         make([]spectrum.Scan, capacity),
		capacity:    uint64(capacity),
		subscribers: make(map[uint64]*Subscriber),
	}
}

// Publish appends a scan to the ring and wakes every subscriber. It never
// blocks and never fails: a send with no subscribers attached is simply a
// ring write nobody reads.
func (b *Bus) Publish(scan spectrum.Scan) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.nextWrite%b.capacity] = scan
	b.nextWrite++

	for _, sub := range b.subscribers {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// Subscribe attaches a new subscriber that will see every scan published
// from this point forward.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &Subscriber{
		bus:    b,
		id:     b.nextSubID,
		cursor: b.nextWrite,
		notify: make(chan struct{}, 1),
	}
	b.subscribers[sub.id] = sub
	return sub
}

// SubscriberCount reports how many subscribers are currently attached.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close marks the bus closed; waiting subscribers see end-of-stream.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Subscriber is a single reader's position in the bus's ring buffer.
type Subscriber struct {
	bus    *Bus
	id     uint64
	cursor uint64
	notify chan struct{}
}

// Close detaches the subscriber. It does not affect other subscribers or
// the bus itself.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s.id)
}

// Recv blocks until a scan is available, the bus is closed, or ctx is
// done. lag reports that the ring overtook this subscriber since its last
// receive; dropped is how many messages were skipped. The scan returned
// alongside lag is the first one still available — it is delivered
// normally, not suppressed, per spec §4.2/§4.4 ("lag events are dropped and
// logged", not the scans themselves).
func (s *Subscriber) Recv(ctx context.Context) (scan spectrum.Scan, lag bool, dropped uint64, ok bool) {
	b := s.bus
	for {
		b.mu.Lock()
		if s.cursor != b.nextWrite || b.closed {
			scan, lag, dropped, ok = s.consumeLocked()
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return spectrum.Scan{}, false, 0, false
		case <-s.notify:
		}
	}
}

// consumeLocked must be called with b.mu held.
func (s *Subscriber) consumeLocked() (scan spectrum.Scan, lag bool, dropped uint64, ok bool) {
	b := s.bus
	if s.cursor == b.nextWrite {
		// Only reachable when closed with nothing left to deliver.
		return spectrum.Scan{}, false, 0, false
	}

	var oldest uint64
	if b.nextWrite > b.capacity {
		oldest = b.nextWrite - b.capacity
	}
	if s.cursor < oldest {
		dropped = oldest - s.cursor
		s.cursor = oldest
		lag = true
	}

	scan = b.buf[s.cursor%b.capacity]
	s.cursor++
	ok = true
	return
}
