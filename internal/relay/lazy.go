package relay

import (
	"context"
	"sync"
)

// Lazy is a singleton created on first Acquire and shared by every caller
// after that. Concurrent Acquires during creation wait for the one
// in-flight create rather than starting their own. References are counted;
// when the last one is released and a destroy function was given, the
// value is destroyed and the next Acquire creates a fresh one.
type Lazy[T any] struct {
	create  func(context.Context) (T, error)
	destroy func(T)

	mu       sync.Mutex
	val      T
	ok       bool
	refs     int
	creating chan struct{} // closed when the in-flight create finishes
}

// NewLazy wraps create. destroy may be nil, in which case the value lives
// until the process exits.
func NewLazy[T any](create func(context.Context) (T, error), destroy func(T)) *Lazy[T] {
	return &Lazy[T]{create: create, destroy: destroy}
}

// Acquire returns the singleton, creating it if needed, plus a release
// function that must be called exactly once.
func (l *Lazy[T]) Acquire(ctx context.Context) (T, func(), error) {
	var zero T
	for {
		l.mu.Lock()
		if l.ok {
			l.refs++
			v := l.val
			l.mu.Unlock()
			return v, l.releaser(), nil
		}

		if wait := l.creating; wait != nil {
			l.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return zero, nil, ctx.Err()
			}
		}

		l.creating = make(chan struct{})
		l.mu.Unlock()

		v, err := l.build(ctx)
		if err != nil {
			return zero, nil, err
		}
		return v, l.releaser(), nil
	}
}

// build runs create and publishes the result. Waiters are woken on every
// exit path, a panicking create included, so the next Acquire can retry.
func (l *Lazy[T]) build(ctx context.Context) (v T, err error) {
	defer func() {
		l.mu.Lock()
		close(l.creating)
		l.creating = nil
		l.mu.Unlock()
	}()

	v, err = l.create(ctx)
	if err != nil {
		return v, err
	}
	l.mu.Lock()
	l.val, l.ok = v, true
	l.refs++
	l.mu.Unlock()
	return v, nil
}

func (l *Lazy[T]) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(l.release)
	}
}

func (l *Lazy[T]) release() {
	l.mu.Lock()
	l.refs--
	if l.refs > 0 || l.destroy == nil || !l.ok {
		l.mu.Unlock()
		return
	}
	v := l.val
	var zero T
	l.val, l.ok = zero, false
	l.mu.Unlock()

	l.destroy(v)
}

// Peek returns the singleton if it currently exists, without creating it
// or taking a reference.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.ok
}

// Refs returns the number of outstanding references.
func (l *Lazy[T]) Refs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}
