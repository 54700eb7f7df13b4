package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
)

// DefaultOrigin is sent in the websocket handshake.
const DefaultOrigin = "http://localhost/"

// Client is the UI side of the connection to the host.
type Client struct {
	c       *conn
	log     *logger.Logger
	pending *Pending[protocol.DetectLangResult]
	updates chan domain.Snapshot

	closeOnce sync.Once
	done      chan struct{}
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithRequestTimeout sets the DETECT_LANG round-trip timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pending = NewPending[protocol.DetectLangResult](d)
	}
}

// Dial connects to the host endpoint at url (ws://host:port/ws).
func Dial(ctx context.Context, url string, log *logger.Logger, opts ...ClientOption) (*Client, error) {
	cfg, err := websocket.NewConfig(url, DefaultOrigin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHostUnavailable, err)
	}

	c := &Client{
		c:       &conn{ws: ws},
		log:     log.Named("client"),
		pending: NewPending[protocol.DetectLangResult](0),
		updates: make(chan domain.Snapshot, 16),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Send fires a command at the host without waiting for any effect.
func (c *Client) Send(cmd protocol.Command) error {
	return c.c.send(cmd)
}

// Updates delivers UPDATE_UI snapshots. The channel is closed when the
// connection ends. If the reader falls behind, older snapshots are dropped.
func (c *Client) Updates() <-chan domain.Snapshot {
	return c.updates
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// DetectLang asks the host for the language of text.
func (c *Client) DetectLang(ctx context.Context, text string) (string, error) {
	res, err := c.pending.Await(ctx, func(id string) error {
		return c.Send(protocol.DetectLang{ID: id, Text: text})
	})
	if err != nil {
		return "", err
	}
	if res.Error != "" {
		return "", errors.New(res.Error)
	}
	return res.Lang, nil
}

// Close ends the connection.
func (c *Client) Close() error {
	return c.c.ws.Close()
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() {
		close(c.updates)
		close(c.done)
	})

	for {
		var raw string
		if err := websocket.Message.Receive(c.c.ws, &raw); err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("read: %v", err)
			}
			return
		}

		msg, err := protocol.Decode([]byte(raw))
		if err != nil {
			c.log.Warn("bad message from host: %v", err)
			continue
		}

		switch m := msg.(type) {
		case protocol.UpdateUI:
			c.push(m.State)
		case protocol.DetectLangResult:
			if !c.pending.Resolve(m.ID, m) {
				c.log.Debug("late language reply %s", m.ID)
			}
		default:
			c.log.Debug("ignoring %s", msg.Type())
		}
	}
}

func (c *Client) push(s domain.Snapshot) {
	select {
	case c.updates <- s:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- s:
	default:
	}
}
