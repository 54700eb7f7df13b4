package relay

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
	"github.com/hammamikhairi/readaloud/internal/settings"
)

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// ── Fakes ────────────────────────────────────────────────────────

type mockHost struct {
	mu   sync.Mutex
	cmds []protocol.Command
	snap domain.Snapshot
}

func (h *mockHost) Submit(_ context.Context, cmd protocol.Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd)
	return nil
}

func (h *mockHost) Snapshot() domain.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *mockHost) received() []protocol.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Command(nil), h.cmds...)
}

type mockDetector struct {
	lang  string
	err   error
	delay time.Duration
}

func (d mockDetector) Detect(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return d.lang, d.err
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (r *recordingBroadcaster) Broadcast(s domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func lazyHost(h *mockHost, created *int32) *Lazy[Host] {
	return NewLazy(func(context.Context) (Host, error) {
		atomic.AddInt32(created, 1)
		return h, nil
	}, nil)
}

// ── Bus ──────────────────────────────────────────────────────────

func TestBusFanOut(t *testing.T) {
	bus := NewBus(quietLog())
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubA()
	defer unsubB()

	bus.Broadcast(domain.Snapshot{CurrentIndex: 3})

	for _, ch := range []<-chan protocol.Message{a, b} {
		select {
		case m := <-ch:
			assert.Equal(t, protocol.UpdateUI{State: domain.Snapshot{CurrentIndex: 3}}, m)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed broadcast")
		}
	}
}

func TestBusDropsOldestWhenFull(t *testing.T) {
	bus := NewBus(quietLog())
	ch, unsub := bus.Subscribe(2)
	defer unsub()

	for i := 0; i < 5; i++ {
		bus.Broadcast(domain.Snapshot{CurrentIndex: i})
	}

	got := []int{(<-ch).(protocol.UpdateUI).State.CurrentIndex, (<-ch).(protocol.UpdateUI).State.CurrentIndex}
	assert.Equal(t, []int{3, 4}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(quietLog())
	ch, unsub := bus.Subscribe(1)
	require.Equal(t, 1, bus.Subscribers())

	unsub()
	unsub()
	assert.Equal(t, 0, bus.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	bus.Broadcast(domain.Snapshot{})
}

// ── Lazy ─────────────────────────────────────────────────────────

func TestLazyConcurrentAcquireCreatesOnce(t *testing.T) {
	var created int32
	l := NewLazy(func(context.Context) (*int32, error) {
		atomic.AddInt32(&created, 1)
		time.Sleep(20 * time.Millisecond)
		return new(int32), nil
	}, nil)

	const n = 20
	results := make([]*int32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, release, err := l.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&created))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 0, l.Refs())
}

func TestLazyDestroyOnLastRelease(t *testing.T) {
	var created, destroyed int32
	l := NewLazy(func(context.Context) (int, error) {
		return int(atomic.AddInt32(&created, 1)), nil
	}, func(int) {
		atomic.AddInt32(&destroyed, 1)
	})
	ctx := context.Background()

	v1, rel1, err := l.Acquire(ctx)
	require.NoError(t, err)
	_, rel2, err := l.Acquire(ctx)
	require.NoError(t, err)

	rel1()
	rel1()
	assert.EqualValues(t, 0, atomic.LoadInt32(&destroyed))
	rel2()
	assert.EqualValues(t, 1, atomic.LoadInt32(&destroyed))

	_, ok := l.Peek()
	assert.False(t, ok)

	v2, rel3, err := l.Acquire(ctx)
	require.NoError(t, err)
	defer rel3()
	assert.NotEqual(t, v1, v2)
}

func TestLazyCreateErrorIsRetried(t *testing.T) {
	calls := 0
	l := NewLazy(func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("audio device busy")
		}
		return "host", nil
	}, nil)

	_, _, err := l.Acquire(context.Background())
	require.Error(t, err)

	v, release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()
	assert.Equal(t, "host", v)
}

func TestLazyCreatePanicIsRetried(t *testing.T) {
	calls := 0
	l := NewLazy(func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			panic("driver crashed")
		}
		return "host", nil
	}, nil)

	require.Panics(t, func() { l.Acquire(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, release, err := l.Acquire(ctx)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, "host", v)
	assert.Equal(t, 2, calls)
}

// ── Pending ──────────────────────────────────────────────────────

func TestPendingResolve(t *testing.T) {
	p := NewPending[string](time.Second)

	got, err := p.Await(context.Background(), func(id string) error {
		go p.Resolve(id, "fr")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fr", got)
	assert.Equal(t, 0, p.Len())
}

func TestPendingTimeoutRemovesEntry(t *testing.T) {
	p := NewPending[string](30 * time.Millisecond)

	var sent string
	_, err := p.Await(context.Background(), func(id string) error {
		sent = id
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 0, p.Len())
	assert.False(t, p.Resolve(sent, "late"))
}

func TestPendingSendFailure(t *testing.T) {
	p := NewPending[string](time.Second)
	_, err := p.Await(context.Background(), func(string) error { return errors.New("closed") })
	assert.Error(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestPendingIDsUnique(t *testing.T) {
	p := NewPending[int](time.Second)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Await(ctx, func(id string) error {
			assert.False(t, seen[id])
			seen[id] = true
			return nil
		})
	}
	assert.Equal(t, 0, p.Len())
}

// ── Router ───────────────────────────────────────────────────────

func TestRouterCreatesHostOnDemand(t *testing.T) {
	host := &mockHost{}
	var created int32
	out := &recordingBroadcaster{}
	r := NewRouter(lazyHost(host, &created), out, quietLog())
	ctx := context.Background()

	// Nothing running yet: steering commands are dropped, state is idle.
	_, err := r.Route(ctx, protocol.Stop{})
	require.NoError(t, err)
	_, err = r.Route(ctx, protocol.GetState{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&created))
	assert.Equal(t, 1, out.count())

	_, err = r.Route(ctx, protocol.Init{Text: "Hi.", Index: 0})
	require.NoError(t, err)
	_, err = r.Route(ctx, protocol.Next{})
	require.NoError(t, err)
	_, err = r.Route(ctx, protocol.Play{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&created))
	assert.Equal(t, []protocol.Command{protocol.Init{Text: "Hi."}, protocol.Next{}, protocol.Play{}}, host.received())
}

func TestRouterPersistsSettingsWithoutHost(t *testing.T) {
	host := &mockHost{}
	var created int32
	store := settings.NewMemoryStore(quietLog())
	r := NewRouter(lazyHost(host, &created), &recordingBroadcaster{}, quietLog(), WithSettingsStore(store))
	ctx := context.Background()

	rate := 1.5
	_, err := r.Route(ctx, protocol.UpdateSettings{Settings: domain.SettingsPatch{Rate: &rate}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&created))
	assert.Empty(t, host.received())

	saved, err := settings.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1.5, saved.Rate)
	assert.Equal(t, 1.0, saved.Pitch)

	// Once a host exists the change goes to it instead.
	_, err = r.Route(ctx, protocol.Init{Text: "Hi."})
	require.NoError(t, err)
	slower := 0.8
	patch := domain.SettingsPatch{Rate: &slower}
	_, err = r.Route(ctx, protocol.UpdateSettings{Settings: patch})
	require.NoError(t, err)
	assert.Equal(t, []protocol.Command{protocol.Init{Text: "Hi."}, protocol.UpdateSettings{Settings: patch}}, host.received())
}

func TestRouterDetectLang(t *testing.T) {
	var created int32
	tests := []struct {
		name      string
		detector  domain.LanguageDetector
		wantLang  string
		wantError string
	}{
		{"ok", mockDetector{lang: " EN "}, "en", ""},
		{"error", mockDetector{err: errors.New("quota exceeded")}, "", "quota exceeded"},
		{"timeout", mockDetector{lang: "de", delay: time.Second}, "", domain.ErrTimeout.Error()},
		{"unconfigured", nil, "", "language detection is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []RouterOption{WithDetectTimeout(30 * time.Millisecond)}
			if tt.detector != nil {
				opts = append(opts, WithDetector(tt.detector))
			}
			r := NewRouter(lazyHost(&mockHost{}, &created), &recordingBroadcaster{}, quietLog(), opts...)

			reply, err := r.Route(context.Background(), protocol.DetectLang{ID: "req-1", Text: "hello"})
			require.NoError(t, err)
			res, ok := reply.(protocol.DetectLangResult)
			require.True(t, ok)
			assert.Equal(t, "req-1", res.ID)
			assert.Equal(t, tt.wantLang, res.Lang)
			assert.Equal(t, tt.wantError, res.Error)
		})
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&created))
}

// ── Websocket end to end ─────────────────────────────────────────

func startServer(t *testing.T, host *mockHost, opts ...RouterOption) (*Bus, string) {
	t.Helper()
	var created int32
	bus := NewBus(quietLog())
	router := NewRouter(lazyHost(host, &created), bus, quietLog(), opts...)
	srv := httptest.NewServer(NewServer(router, bus, quietLog()).Handler())
	t.Cleanup(srv.Close)
	return bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientServerRoundTrip(t *testing.T) {
	host := &mockHost{}
	bus, url := startServer(t, host, WithDetector(mockDetector{lang: "fr"}))

	client, err := Dial(context.Background(), url, quietLog())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(protocol.Init{Text: "Bonjour.", Index: 0}))
	require.Eventually(t, func() bool { return len(host.received()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.Init{Text: "Bonjour."}, host.received()[0])

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	bus.Broadcast(domain.Snapshot{IsPlaying: true, CurrentIndex: 4, TotalSentences: 9})
	select {
	case s := <-client.Updates():
		assert.Equal(t, domain.Snapshot{IsPlaying: true, CurrentIndex: 4, TotalSentences: 9}, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	lang, err := client.DetectLang(context.Background(), "Bonjour tout le monde")
	require.NoError(t, err)
	assert.Equal(t, "fr", lang)
}

func TestClientDetectLangError(t *testing.T) {
	_, url := startServer(t, &mockHost{})

	client, err := Dial(context.Background(), url, quietLog())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.DetectLang(context.Background(), "hola")
	assert.EqualError(t, err, "language detection is not configured")
}

func TestClientClosesUpdatesOnDisconnect(t *testing.T) {
	_, url := startServer(t, &mockHost{})

	client, err := Dial(context.Background(), url, quietLog())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice disconnect")
	}
}

func TestDialUnavailable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", quietLog())
	assert.ErrorIs(t, err, domain.ErrHostUnavailable)
}
