package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/hammamikhairi/readaloud/internal/logger"
)

// Compile-time interface check.
var _ Transport = (*WSTransport)(nil)

// WSTransport exchanges JSON messages with a viewer over a websocket.
type WSTransport struct {
	ws  *websocket.Conn
	log *logger.Logger
	mu  sync.Mutex
	in  chan Message
}

// DialWS connects to a viewer at url.
func DialWS(ctx context.Context, url, origin string, log *logger.Logger) (*WSTransport, error) {
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, fmt.Errorf("viewer websocket config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewer dial: %w", err)
	}
	return NewWSTransport(ws, log), nil
}

// NewWSTransport wraps an open connection and starts reading from it.
func NewWSTransport(ws *websocket.Conn, log *logger.Logger) *WSTransport {
	t := &WSTransport{ws: ws, log: log.Named("viewer-ws"), in: make(chan Message, 16)}
	go t.readLoop()
	return t
}

// Post sends one message.
func (t *WSTransport) Post(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return websocket.JSON.Send(t.ws, m)
}

// Messages delivers incoming messages; closed when the connection ends.
func (t *WSTransport) Messages() <-chan Message { return t.in }

// Close ends the connection.
func (t *WSTransport) Close() error { return t.ws.Close() }

func (t *WSTransport) readLoop() {
	defer close(t.in)
	for {
		var m Message
		if err := websocket.JSON.Receive(t.ws, &m); err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Debug("read: %v", err)
			}
			return
		}
		t.in <- m
	}
}
