package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
	"github.com/hammamikhairi/readaloud/internal/settings"
)

// Host is the long-lived side that owns playback.
type Host interface {
	Submit(ctx context.Context, cmd protocol.Command) error
	Snapshot() domain.Snapshot
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithDetector answers DETECT_LANG through d.
func WithDetector(d domain.LanguageDetector) RouterOption {
	return func(r *Router) {
		r.detector = d
	}
}

// WithDetectTimeout bounds each language detection call.
func WithDetectTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.detectTimeout = d
	}
}

// WithSettingsStore persists settings changes that arrive while no host
// is running, so the host picks them up when it starts.
func WithSettingsStore(kv domain.KeyValueStore) RouterOption {
	return func(r *Router) {
		r.store = kv
	}
}

// Router is the background role: it brings the host up on demand, passes
// commands to it and answers language detection requests itself.
type Router struct {
	host          *Lazy[Host]
	out           domain.Broadcaster
	detector      domain.LanguageDetector
	detectTimeout time.Duration
	store         domain.KeyValueStore
	log           *logger.Logger
}

// NewRouter creates a router. out receives the idle snapshot when a UI
// asks for state before any host exists.
func NewRouter(host *Lazy[Host], out domain.Broadcaster, log *logger.Logger, opts ...RouterOption) *Router {
	r := &Router{
		host:          host,
		out:           out,
		detectTimeout: DefaultStartupGrace + DefaultCeiling,
		log:           log.Named("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route handles one command. A reply is returned only for DETECT_LANG.
// Commands that do not need a host are dropped while none is running.
func (r *Router) Route(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	if dl, ok := cmd.(protocol.DetectLang); ok {
		return r.detect(ctx, dl), nil
	}

	if protocol.NeedsHost(cmd) {
		h, release, err := r.host.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrHostUnavailable, err)
		}
		defer release()
		return nil, h.Submit(ctx, cmd)
	}

	h, ok := r.host.Peek()
	if !ok {
		switch c := cmd.(type) {
		case protocol.GetState:
			r.out.Broadcast(domain.Snapshot{})
			return nil, nil
		case protocol.UpdateSettings:
			return nil, r.saveSettings(ctx, c.Settings)
		}
		r.log.Debug("no host running, dropping %s", cmd.Type())
		return nil, nil
	}
	return nil, h.Submit(ctx, cmd)
}

// saveSettings merges a patch into the persisted settings without a host.
func (r *Router) saveSettings(ctx context.Context, patch domain.SettingsPatch) error {
	if r.store == nil {
		r.log.Debug("no host and no settings store, dropping settings change")
		return nil
	}
	current, err := settings.Load(ctx, r.store)
	if err != nil {
		r.log.Warn("loading settings: %v", err)
	}
	if err := settings.Save(ctx, r.store, current.Merge(patch)); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	r.log.Debug("settings saved with no host running")
	return nil
}

// detect never fails outright; problems are reported in the reply.
func (r *Router) detect(ctx context.Context, req protocol.DetectLang) protocol.DetectLangResult {
	res := protocol.DetectLangResult{ID: req.ID}
	if r.detector == nil {
		res.Error = "language detection is not configured"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.detectTimeout)
	defer cancel()

	lang, err := r.detector.Detect(ctx, req.Text)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		res.Error = domain.ErrTimeout.Error()
	case err != nil:
		res.Error = err.Error()
	default:
		res.Lang = strings.ToLower(strings.TrimSpace(lang))
	}
	if res.Error != "" {
		r.log.Warn("language detection %s failed: %s", req.ID, res.Error)
	}
	return res
}
