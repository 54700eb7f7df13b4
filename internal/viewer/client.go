package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// Method names understood by the viewer.
const (
	MethodReady        = "viewerReady"
	MethodLoadDocument = "loadDocument"
	MethodGetTexts     = "getTexts"
	MethodCurrentIndex = "getCurrentIndex"
)

// Client is the typed API over a viewer Queue. Every call fails with
// domain.ErrNotReady until the viewer has announced itself.
type Client struct {
	q     *Queue
	ready chan struct{}
	once  sync.Once
}

// NewClient wires a client to t and starts dispatching. The dispatcher
// stops when ctx ends.
func NewClient(ctx context.Context, t Transport, log *logger.Logger, opts ...QueueOption) *Client {
	c := &Client{
		q:     NewQueue(t, log, opts...),
		ready: make(chan struct{}),
	}
	c.q.Handle(MethodReady, func(Message) {
		c.once.Do(func() { close(c.ready) })
	})
	go c.q.Run(ctx)
	return c
}

// Ready is closed once the viewer has signalled viewerReady.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// WaitReady blocks until the viewer is ready or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrNotReady, ctx.Err())
	}
}

// LoadDocument hands the raw document bytes to the viewer.
func (c *Client) LoadDocument(ctx context.Context, data []byte) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	_, err := c.q.Send(ctx, Message{Method: MethodLoadDocument, Buffer: data})
	return err
}

// Texts returns the text lines of the given page.
func (c *Client) Texts(ctx context.Context, page int) ([]string, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}
	res, err := c.q.Send(ctx, Message{Method: MethodGetTexts, Index: page, Quietly: true})
	if err != nil {
		return nil, err
	}
	var texts []string
	if len(res.Value) > 0 {
		if err := json.Unmarshal(res.Value, &texts); err != nil {
			return nil, fmt.Errorf("viewer texts: %w", err)
		}
	}
	return texts, nil
}

// CurrentIndex returns the page the viewer is showing.
func (c *Client) CurrentIndex(ctx context.Context) (int, error) {
	if err := c.checkReady(); err != nil {
		return 0, err
	}
	res, err := c.q.Send(ctx, Message{Method: MethodCurrentIndex})
	if err != nil {
		return 0, err
	}
	var idx int
	if err := json.Unmarshal(res.Value, &idx); err != nil {
		return 0, fmt.Errorf("viewer index: %w", err)
	}
	return idx, nil
}

func (c *Client) checkReady() error {
	select {
	case <-c.ready:
		return nil
	default:
		return domain.ErrNotReady
	}
}
