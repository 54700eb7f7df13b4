// Package playback implements the host-side playback state machine. The
// engine owns the document's sentences and drives the synthesizer one
// sentence at a time. Commands and synthesis events are applied by a single
// loop, so every handler runs to completion before the next one starts.
package playback

import (
	"context"
	"strings"
	"sync"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
	"github.com/hammamikhairi/readaloud/internal/segment"
	"github.com/hammamikhairi/readaloud/internal/settings"
)

// SamplePhrase is spoken by the TEST command.
const SamplePhrase = "This is how the selected voice sounds."

// State is the authoritative playback state. After every handler
// 0 <= CurrentIndex <= len(Sentences) and IsPlaying and IsPaused are never
// both set.
type State struct {
	Sentences    []domain.Sentence
	CurrentIndex int
	IsPlaying    bool
	IsPaused     bool
	Settings     domain.Settings
}

// Snapshot returns the broadcast view of the state.
func (s State) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		IsPlaying:      s.IsPlaying,
		IsPaused:       s.IsPaused,
		CurrentIndex:   s.CurrentIndex,
		TotalSentences: len(s.Sentences),
	}
}

// Option configures the engine.
type Option func(*Engine)

// WithSettings sets the initial voice settings.
func WithSettings(s domain.Settings) Option {
	return func(e *Engine) {
		e.state.Settings = s.Clamp()
	}
}

// WithSettingsStore persists settings changes to store.
func WithSettingsStore(store domain.KeyValueStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithSegmentMode selects how INIT text is split into paragraphs.
func WithSegmentMode(m segment.Mode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// WithQueueSize sets the capacity of the command queue.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// Engine is the playback state machine.
type Engine struct {
	synth     domain.Synthesizer
	out       domain.Broadcaster
	store     domain.KeyValueStore
	log       *logger.Logger
	mode      segment.Mode
	queueSize int

	mu    sync.Mutex
	state State

	// inflight is the id of the utterance we are waiting on, 0 for none.
	// Events for any other id are stale.
	inflight uint64
	lastID   uint64
	testing  bool // inflight is a TEST utterance

	cmds    chan protocol.Command
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a playback engine.
func New(synth domain.Synthesizer, out domain.Broadcaster, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		synth:     synth,
		out:       out,
		log:       log.Named("playback"),
		mode:      segment.ModeBlankLine,
		queueSize: 64,
		state:     State{Settings: domain.DefaultSettings()},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cmds = make(chan protocol.Command, e.queueSize)
	return e
}

// ── Loop ─────────────────────────────────────────────────────────

// Start begins the background loop. Non-blocking.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.log.Warn("engine already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.done = make(chan struct{})

	go e.loop(childCtx, e.done)
	e.log.Info("engine started")
}

// Stop shuts the loop down and silences any in-flight utterance.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.running = false
	done := e.done
	e.mu.Unlock()

	<-done

	e.mu.Lock()
	e.cancelSpeech()
	e.mu.Unlock()
	e.log.Info("engine stopped")
}

// Submit queues a command for the loop. It blocks only when the queue is
// full.
func (e *Engine) Submit(ctx context.Context, cmd protocol.Command) error {
	select {
	case e.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	events := e.synth.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.cmds:
			if err := e.Handle(ctx, cmd); err != nil {
				e.log.Warn("%s: %v", cmd.Type(), err)
			}
		case ev, ok := <-events:
			if !ok {
				e.log.Warn("synthesizer event stream closed")
				events = nil
				continue
			}
			e.HandleEvent(ev)
		}
	}
}

// Snapshot returns the current broadcast view of the state.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

// State returns a copy of the full state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.Sentences = append([]domain.Sentence(nil), e.state.Sentences...)
	return s
}

// ── Commands ─────────────────────────────────────────────────────

// Handle applies one command. Only commands the engine does not own
// (language detection) return an error.
func (e *Engine) Handle(ctx context.Context, cmd protocol.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log.Debug("command %s", cmd.Type())

	switch c := cmd.(type) {
	case protocol.Init:
		e.init(c.Text, c.Index)
	case protocol.Play:
		e.play()
	case protocol.TogglePlay:
		if e.state.IsPlaying {
			e.pause()
		} else {
			e.play()
		}
	case protocol.Pause:
		if e.state.IsPaused {
			e.play()
		} else {
			e.pause()
		}
	case protocol.Stop:
		e.stop()
	case protocol.Next:
		e.step(+1)
	case protocol.Prev:
		e.step(-1)
	case protocol.Jump:
		e.jump(c.Index)
	case protocol.UpdateSettings:
		e.updateSettings(ctx, c.Settings)
	case protocol.Test:
		e.test()
	case protocol.GetState:
		e.broadcast()
	default:
		return domain.ErrUnknownCommand
	}
	return nil
}

// init replaces the document, stops whatever was playing and starts at
// startIndex.
func (e *Engine) init(text string, startIndex int) {
	e.cancelSpeech()
	e.state.IsPlaying = false
	e.state.IsPaused = false
	e.state.Sentences = segment.Split(text, e.mode)
	e.state.CurrentIndex = clampIndex(startIndex, len(e.state.Sentences))
	e.log.Info("loaded %d sentences, starting at %d", len(e.state.Sentences), e.state.CurrentIndex)

	if len(e.state.Sentences) == 0 {
		e.broadcast()
		return
	}
	e.play()
}

func (e *Engine) play() {
	if len(e.state.Sentences) == 0 {
		return
	}

	e.state.IsPlaying = true
	e.state.IsPaused = false

	if e.synth.Paused() && e.inflight != 0 {
		e.synth.Resume()
		e.broadcast()
		return
	}
	e.speakCurrent()
}

// pause cancels speech rather than suspending it; PLAY restarts the
// sentence at CurrentIndex from the beginning.
func (e *Engine) pause() {
	if !e.state.IsPlaying {
		return
	}
	e.cancelSpeech()
	e.state.IsPlaying = false
	e.state.IsPaused = true
	e.broadcast()
}

func (e *Engine) stop() {
	e.cancelSpeech()
	e.state.CurrentIndex = 0
	e.state.IsPlaying = false
	e.state.IsPaused = false
	e.broadcast()
}

// step moves one sentence forward or back. It does nothing at either end.
func (e *Engine) step(delta int) {
	next := e.state.CurrentIndex + delta
	if next < 0 || next > len(e.state.Sentences)-1 {
		return
	}
	e.state.CurrentIndex = next
	if e.state.IsPlaying {
		e.speakCurrent()
		return
	}
	e.broadcast()
}

func (e *Engine) jump(index int) {
	e.cancelSpeech()
	if len(e.state.Sentences) == 0 {
		return
	}
	e.state.CurrentIndex = clampIndex(index, len(e.state.Sentences))
	e.state.IsPlaying = true
	e.state.IsPaused = false
	e.speakCurrent()
}

func (e *Engine) updateSettings(ctx context.Context, patch domain.SettingsPatch) {
	e.state.Settings = e.state.Settings.Merge(patch)

	if e.store != nil {
		if err := settings.Save(ctx, e.store, e.state.Settings); err != nil {
			e.log.Error("persisting settings: %v", err)
		}
	}

	if e.state.IsPlaying && !e.state.IsPaused {
		e.speakCurrent()
	}
}

// test speaks the sample phrase. Playback state is left alone; if a
// sentence was playing it is restarted once the sample finishes.
func (e *Engine) test() {
	e.cancelSpeech()
	e.testing = true
	e.speak(SamplePhrase)
}

// ── Events ───────────────────────────────────────────────────────

// HandleEvent applies one synthesis event. Events for anything but the
// in-flight utterance are ignored, which also swallows the callbacks our
// own cancels produce.
func (e *Engine) HandleEvent(ev domain.SynthEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.UtteranceID == 0 || ev.UtteranceID != e.inflight {
		e.log.Debug("ignoring stale %s for utterance %d", ev.Type, ev.UtteranceID)
		return
	}

	switch ev.Type {
	case domain.SynthStart, domain.SynthPause, domain.SynthResume:
		e.broadcast()

	case domain.SynthEnd:
		e.inflight = 0
		if e.finishTest() {
			return
		}
		if !e.state.IsPlaying || e.state.IsPaused {
			return
		}
		e.state.CurrentIndex++
		if e.state.CurrentIndex >= len(e.state.Sentences) {
			e.log.Info("reached end of document")
			e.stop()
			return
		}
		e.speakCurrent()

	case domain.SynthError:
		e.inflight = 0
		if ev.SelfInflicted() {
			e.log.Debug("utterance %d %s", ev.UtteranceID, ev.Err)
			e.testing = false
			return
		}
		e.log.Warn("synthesis failed at sentence %d: %s", e.state.CurrentIndex, ev.Err)
		if e.finishTest() {
			return
		}
		if !e.state.IsPlaying {
			return
		}
		e.state.CurrentIndex++
		e.speakCurrent()
	}
}

// finishTest handles the end of a TEST utterance, resuming the sentence
// it interrupted.
func (e *Engine) finishTest() bool {
	if !e.testing {
		return false
	}
	e.testing = false
	if e.state.IsPlaying && !e.state.IsPaused {
		e.speakCurrent()
	}
	return true
}

// ── Synthesis ────────────────────────────────────────────────────

// speakCurrent starts the sentence at CurrentIndex, skipping blank
// sentences. Running past the end stops playback.
func (e *Engine) speakCurrent() {
	e.cancelSpeech()

	for e.state.CurrentIndex < len(e.state.Sentences) &&
		strings.TrimSpace(e.state.Sentences[e.state.CurrentIndex].Text) == "" {
		e.state.CurrentIndex++
	}
	if e.state.CurrentIndex >= len(e.state.Sentences) {
		e.stop()
		return
	}

	e.speak(e.state.Sentences[e.state.CurrentIndex].Text)
	e.broadcast()

	if p, ok := e.synth.(prefetcher); ok {
		if next := e.state.CurrentIndex + 1; next < len(e.state.Sentences) {
			p.Prefetch(e.utterance(0, e.state.Sentences[next].Text))
		}
	}
}

// prefetcher is implemented by synthesizers that can render ahead.
type prefetcher interface {
	Prefetch(u domain.Utterance)
}

func (e *Engine) speak(text string) {
	e.lastID++
	e.inflight = e.lastID
	e.synth.Speak(e.utterance(e.inflight, text))
}

func (e *Engine) utterance(id uint64, text string) domain.Utterance {
	s := e.state.Settings
	return domain.Utterance{
		ID:     id,
		Text:   text,
		Voice:  ResolveVoice(e.synth.Voices(), s.VoiceName),
		Rate:   s.Rate,
		Pitch:  s.Pitch,
		Volume: s.Volume,
	}
}

// cancelSpeech is idempotent. Whatever the synthesizer reports for the
// cancelled utterance afterwards is stale.
func (e *Engine) cancelSpeech() {
	if e.inflight != 0 {
		e.log.Debug("cancelling utterance %d", e.inflight)
	}
	e.inflight = 0
	e.testing = false
	e.synth.Cancel()
}

func (e *Engine) broadcast() {
	e.out.Broadcast(e.state.Snapshot())
}

// ResolveVoice picks the voice to speak with: the named voice if it
// exists, else an en-US Google voice, else the default voice, else the
// first one. It returns "" when no voices are known.
func ResolveVoice(voices []domain.Voice, name string) string {
	if name != "" {
		for _, v := range voices {
			if v.Name == name {
				return v.Name
			}
		}
	}
	for _, v := range voices {
		if strings.Contains(v.Name, "Google") && (v.Lang == "en-US" || v.Lang == "en_US") {
			return v.Name
		}
	}
	for _, v := range voices {
		if v.Default {
			return v.Name
		}
	}
	if len(voices) > 0 {
		return voices[0].Name
	}
	return ""
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
