package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// fakeViewer answers requests in-process. Pages maps page index to lines.
type fakeViewer struct {
	mu     sync.Mutex
	in     chan Message
	posted []Message
	pages  map[int][]string
	page   int
	silent bool // never answer
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		in:    make(chan Message, 16),
		pages: map[int][]string{0: {"Page one."}, 1: {"Second page.", "More text."}},
		page:  1,
	}
}

func (f *fakeViewer) Messages() <-chan Message { return f.in }

func (f *fakeViewer) Post(ctx context.Context, m Message) error {
	f.mu.Lock()
	f.posted = append(f.posted, m)
	silent := f.silent
	f.mu.Unlock()
	if silent {
		return nil
	}

	res := Message{ID: m.ID}
	switch m.Method {
	case MethodGetTexts:
		lines, ok := f.pages[m.Index]
		if !ok {
			res.Error = "no such page"
			break
		}
		res.Value, _ = json.Marshal(lines)
	case MethodCurrentIndex:
		res.Value, _ = json.Marshal(f.page)
	case MethodLoadDocument:
	default:
		res.Error = "unknown method"
	}
	go func() { f.in <- res }()
	return nil
}

func (f *fakeViewer) ready() { f.in <- Message{Method: MethodReady} }

func readyClient(t *testing.T, f *fakeViewer, opts ...QueueOption) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := NewClient(ctx, f, quietLog(), opts...)
	f.ready()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	return c
}

func TestNotReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewClient(ctx, newFakeViewer(), quietLog())

	if _, err := c.Texts(ctx, 0); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := c.CurrentIndex(ctx); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	defer stop()
	if err := c.WaitReady(short); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady from WaitReady, got %v", err)
	}
}

func TestTextsAndIndex(t *testing.T) {
	f := newFakeViewer()
	c := readyClient(t, f)
	ctx := context.Background()

	idx, err := c.CurrentIndex(ctx)
	if err != nil || idx != 1 {
		t.Fatalf("CurrentIndex = %d, %v", idx, err)
	}
	texts, err := c.Texts(ctx, idx)
	if err != nil {
		t.Fatalf("Texts: %v", err)
	}
	if strings.Join(texts, "|") != "Second page.|More text." {
		t.Fatalf("unexpected texts %v", texts)
	}
	if _, err := c.Texts(ctx, 9); err == nil || !strings.Contains(err.Error(), "no such page") {
		t.Fatalf("expected viewer error, got %v", err)
	}
	if err := c.LoadDocument(ctx, []byte("%PDF")); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	for _, m := range f.posted {
		if m.ID == "" || seen[m.ID] {
			t.Fatalf("request ids must be unique and set: %+v", f.posted)
		}
		seen[m.ID] = true
		if m.Method == MethodGetTexts && !m.Quietly {
			t.Fatal("getTexts must be sent quietly")
		}
	}
}

func TestRequestTimesOut(t *testing.T) {
	f := newFakeViewer()
	c := readyClient(t, f, WithTimeout(20*time.Millisecond))
	f.mu.Lock()
	f.silent = true
	f.mu.Unlock()

	if _, err := c.CurrentIndex(context.Background()); !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if n := c.q.pending.Len(); n != 0 {
		t.Fatalf("expected pending table drained, got %d", n)
	}
}

func TestUnsolicitedHandler(t *testing.T) {
	f := newFakeViewer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(f, quietLog())
	got := make(chan Message, 1)
	q.Handle("pageChanged", func(m Message) { got <- m })
	go q.Run(ctx)

	f.in <- Message{Method: "pageChanged", Index: 3}
	f.in <- Message{ID: "unknown"} // no waiter: dropped

	select {
	case m := <-got:
		if m.Index != 3 {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestWebsocketTransport(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		websocket.JSON.Send(ws, Message{Method: MethodReady})
		for {
			var m Message
			if err := websocket.JSON.Receive(ws, &m); err != nil {
				return
			}
			websocket.JSON.Send(ws, Message{ID: m.ID, Value: json.RawMessage(`4`)})
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr, err := DialWS(ctx, url, "http://localhost/", quietLog())
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	defer tr.Close()

	c := NewClient(ctx, tr, quietLog())
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	idx, err := c.CurrentIndex(ctx)
	if err != nil || idx != 4 {
		t.Fatalf("CurrentIndex = %d, %v", idx, err)
	}
}
