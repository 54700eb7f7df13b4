// Package relay connects UI processes to the playback host. It carries
// commands to a lazily created host, fans state broadcasts out to every
// attached UI, and correlates request/response pairs with timeouts.
package relay

import (
	"sync"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
)

// Compile-time interface check.
var _ domain.Broadcaster = (*Bus)(nil)

// Bus fans messages out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full loses its oldest queued message.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan protocol.Message
	nextID int
	log    *logger.Logger
}

// NewBus creates an empty bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan protocol.Message),
		log:  log.Named("bus"),
	}
}

// Subscribe registers a subscriber with the given buffer size. The
// returned function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan protocol.Message, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan protocol.Message, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers m to every subscriber.
func (b *Bus) Publish(m protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- m:
			continue
		default:
		}
		// Full: drop the oldest and retry once.
		select {
		case <-ch:
			b.log.Debug("subscriber %d lagging, dropped oldest message", id)
		default:
		}
		select {
		case ch <- m:
		default:
		}
	}
}

// Broadcast publishes an UPDATE_UI snapshot.
func (b *Bus) Broadcast(s domain.Snapshot) {
	b.Publish(protocol.UpdateUI{State: s})
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
