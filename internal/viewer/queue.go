// Package viewer talks to a paginated document viewer (for example a PDF
// renderer) that runs out of process. Requests carry a generated id and
// are answered asynchronously; the viewer may also send unsolicited
// method calls such as viewerReady.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/relay"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Message is both a request and a response. Requests set Method; responses
// echo the request ID and carry Value or Error.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Index   int             `json:"index,omitempty"`
	Quietly bool            `json:"quietly,omitempty"`
	Buffer  []byte          `json:"buffer,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Transport moves messages to and from the viewer.
type Transport interface {
	Post(ctx context.Context, m Message) error
	Messages() <-chan Message
}

// Handler receives an unsolicited method call.
type Handler func(Message)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.pending = relay.NewPending[Message](d) }
}

// Queue correlates requests with responses over a Transport.
type Queue struct {
	t        Transport
	log      *logger.Logger
	pending  *relay.Pending[Message]
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewQueue creates a queue. Call Run to start dispatching incoming messages.
func NewQueue(t Transport, log *logger.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		t:        t,
		log:      log.Named("viewer"),
		pending:  relay.NewPending[Message](DefaultTimeout),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Handle registers h for unsolicited calls of method.
func (q *Queue) Handle(method string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[method] = h
}

// Run dispatches incoming messages until ctx ends or the transport closes.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q.t.Messages():
			if !ok {
				q.log.Debug("transport closed")
				return
			}
			q.dispatch(m)
		}
	}
}

func (q *Queue) dispatch(m Message) {
	q.mu.RLock()
	h, ok := q.handlers[m.Method]
	q.mu.RUnlock()

	switch {
	case m.Method != "" && ok:
		h(m)
	case m.ID != "":
		if !q.pending.Resolve(m.ID, m) {
			q.log.Debug("late or unknown response %s", m.ID)
		}
	default:
		q.log.Debug("ignoring message %q", m.Method)
	}
}

// Send posts m with a fresh id and waits for the matching response. A
// response carrying an error is returned as an error.
func (q *Queue) Send(ctx context.Context, m Message) (Message, error) {
	res, err := q.pending.Await(ctx, func(id string) error {
		m.ID = id
		return q.t.Post(ctx, m)
	})
	if err != nil {
		return Message{}, fmt.Errorf("viewer %s: %w", m.Method, err)
	}
	if res.Error != "" {
		return res, fmt.Errorf("viewer %s: %s", m.Method, res.Error)
	}
	return res, nil
}
