package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/readaloud/internal/domain"
)

// Default request timeout: a short grace for the peer to start up plus a
// ceiling for the answer itself.
const (
	DefaultStartupGrace = 500 * time.Millisecond
	DefaultCeiling      = 5 * time.Second
)

// Pending correlates requests with their responses. Every request gets a
// fresh id and a one-shot slot; the slot is removed when the response
// arrives, the timeout fires or the caller gives up, so abandoned
// requests never accumulate.
type Pending[T any] struct {
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan T
}

// NewPending creates a correlation table with the given timeout. A
// non-positive timeout means DefaultStartupGrace + DefaultCeiling.
func NewPending[T any](timeout time.Duration) *Pending[T] {
	if timeout <= 0 {
		timeout = DefaultStartupGrace + DefaultCeiling
	}
	return &Pending[T]{
		timeout: timeout,
		waiters: make(map[string]chan T),
	}
}

// Await registers a new id, hands it to send, and waits for Resolve to be
// called with that id. It returns domain.ErrTimeout if nothing arrives in
// time.
func (p *Pending[T]) Await(ctx context.Context, send func(id string) error) (T, error) {
	var zero T
	id := uuid.NewString()
	ch := make(chan T, 1)

	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()
	defer p.remove(id)

	if err := send(id); err != nil {
		return zero, fmt.Errorf("sending request %s: %w", id, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return zero, fmt.Errorf("request %s: %w", id, domain.ErrTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Resolve delivers v to the request with the given id. It reports false
// when no such request is waiting (already answered, timed out or unknown).
func (p *Pending[T]) Resolve(id string, v T) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- v
	return true
}

// Len returns the number of requests still waiting.
func (p *Pending[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

func (p *Pending[T]) remove(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}
