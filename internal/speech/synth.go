package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// Compile-time interface check.
var _ domain.Synthesizer = (*Synth)(nil)

// renderer turns an utterance into WAV bytes.
type renderer interface {
	Synthesize(ctx context.Context, u domain.Utterance) ([]byte, error)
}

// voiceLister reports the voices a renderer can use.
type voiceLister interface {
	Voices(ctx context.Context) ([]domain.Voice, error)
}

// sink plays WAV bytes. Play blocks and returns ErrInterrupted when ctx ends.
type sink interface {
	Play(ctx context.Context, wav []byte) error
	Pause()
	Resume()
	Reset()
}

// SynthOption configures the Synth.
type SynthOption func(*Synth)

// WithCacheDir sets the filesystem directory used for persistent audio
// caching. If empty, the disk layer is disabled (pure in-memory).
func WithCacheDir(dir string) SynthOption {
	return func(s *Synth) {
		s.cacheDir = dir
	}
}

// WithDiskWrite controls whether new cache entries are written to disk.
// Even when false, existing on-disk entries are still read.
func WithDiskWrite(enabled bool) SynthOption {
	return func(s *Synth) {
		s.diskWrite = enabled
	}
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) SynthOption {
	return func(s *Synth) {
		s.events = make(chan domain.SynthEvent, n)
	}
}

// Synth is the speech pipeline: queue -> synthesize -> play, one utterance
// at a time. Lifecycle events for each utterance are reported on Events.
//
// An internal AudioCache transparently avoids re-synthesizing identical
// utterances. Use Prefetch to pre-warm the cache for the next sentence.
type Synth struct {
	tts   renderer
	out   sink
	log   *logger.Logger
	cache *AudioCache

	cacheDir  string
	diskWrite bool

	events chan domain.SynthEvent
	notify chan struct{}

	mu      sync.Mutex
	queue   []domain.Utterance
	current uint64             // utterance being synthesized or played, 0 when idle
	stop    context.CancelFunc // cancels the current utterance
	paused  bool
	voices  []domain.Voice
	base    context.Context

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSynth creates a speech pipeline over the given TTS client and player.
func NewSynth(tts renderer, out sink, log *logger.Logger, opts ...SynthOption) *Synth {
	s := &Synth{
		tts:       tts,
		out:       out,
		log:       log.Named("synth"),
		events:    make(chan domain.SynthEvent, 64),
		notify:    make(chan struct{}, 1),
		diskWrite: true,
		base:      context.Background(),
		voices:    []domain.Voice{{Name: DefaultVoice, Lang: "en-US", Default: true}},
	}
	for _, opt := range opts {
		opt(s)
	}
	// Build the cache after options are applied so cacheDir and diskWrite
	// are settled.
	s.cache = NewAudioCache(s.cacheDir, s.diskWrite, s.log)
	return s
}

// LoadVoices refreshes the voice list from the TTS service. On failure the
// previous list (at least the default voice) is kept.
func (s *Synth) LoadVoices(ctx context.Context) error {
	lister, ok := s.tts.(voiceLister)
	if !ok {
		return nil
	}
	voices, err := lister.Voices(ctx)
	if err != nil {
		return err
	}
	if len(voices) == 0 {
		return errors.New("no voices reported")
	}
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	s.log.Info("%d voices loaded", len(voices))
	return nil
}

// Voices returns the known voices.
func (s *Synth) Voices() []domain.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

// Events delivers utterance lifecycle events.
func (s *Synth) Events() <-chan domain.SynthEvent {
	return s.events
}

// ── Lifecycle ────────────────────────────────────────────────────

// Start begins the processing goroutine. Non-blocking.
func (s *Synth) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.base = ctx
	s.running = true
	s.done = make(chan struct{})

	go s.processLoop(ctx)
	s.log.Info("synth started")
}

// Stop halts the processing goroutine and interrupts any speech.
func (s *Synth) Stop() {
	s.Cancel()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info("synth stopped")
}

// ── Control ──────────────────────────────────────────────────────

// Speak queues an utterance. Non-blocking.
func (s *Synth) Speak(u domain.Utterance) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	qLen := len(s.queue)
	s.mu.Unlock()

	s.log.Debug("queued #%d (queue_len=%d): %s", u.ID, qLen, truncate(u.Text, 60))

	select {
	case s.notify <- struct{}{}:
	default: // already signaled
	}
}

// Cancel drops queued utterances and interrupts the current one. Queued
// utterances report "canceled"; the current one reports "interrupted".
func (s *Synth) Cancel() {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	stop := s.stop
	s.paused = false
	s.mu.Unlock()

	for _, u := range dropped {
		s.emit(domain.SynthEvent{UtteranceID: u.ID, Type: domain.SynthError, Err: domain.SynthErrCanceled})
	}

	if stop != nil {
		stop()
	}
	s.out.Reset()
	if stop != nil || len(dropped) > 0 {
		s.log.Debug("canceled (dropped %d queued)", len(dropped))
	}
}

// Pause holds playback of the current utterance.
func (s *Synth) Pause() {
	s.mu.Lock()
	id := s.current
	if id == 0 || s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()

	s.out.Pause()
	s.emit(domain.SynthEvent{UtteranceID: id, Type: domain.SynthPause})
}

// Resume continues a paused utterance.
func (s *Synth) Resume() {
	s.mu.Lock()
	id := s.current
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	s.mu.Unlock()

	s.out.Resume()
	if id != 0 {
		s.emit(domain.SynthEvent{UtteranceID: id, Type: domain.SynthResume})
	}
}

// Paused reports whether playback is held.
func (s *Synth) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Prefetch pre-synthesizes an utterance in the background so it starts
// instantly when spoken. Already cached utterances are skipped.
func (s *Synth) Prefetch(u domain.Utterance) {
	if u.Text == "" || s.cache.Has(u) {
		return
	}
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()

	go func() {
		s.log.Debug("prefetch: synthesizing: %s", truncate(u.Text, 50))
		audio, err := s.tts.Synthesize(ctx, u)
		if err != nil {
			s.log.Debug("prefetch: synthesis failed: %v", err)
			return
		}
		s.cache.Put(u, audio)
	}()
}

// Cache returns the audio cache. Useful for stats/logging.
func (s *Synth) Cache() *AudioCache { return s.cache }

// ── Processing ───────────────────────────────────────────────────

// processLoop waits for queued items and processes them one at a time.
func (s *Synth) processLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
			s.drain(ctx)
		}
	}
}

// drain processes queued utterances in order.
func (s *Synth) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		u := s.queue[0]
		s.queue = s.queue[1:]
		uctx, stop := context.WithCancel(ctx)
		s.current = u.ID
		s.stop = stop
		s.mu.Unlock()

		s.process(ctx, uctx, u)
		stop()

		s.mu.Lock()
		s.current = 0
		s.stop = nil
		s.mu.Unlock()
	}
}

// process synthesizes and plays one utterance, reporting its outcome.
func (s *Synth) process(ctx, uctx context.Context, u domain.Utterance) {
	audio, err := s.synthesizeWithCache(uctx, u)
	if err != nil {
		s.finish(ctx, uctx, u.ID, err)
		return
	}

	s.send(ctx, domain.SynthEvent{UtteranceID: u.ID, Type: domain.SynthStart})
	s.log.Debug("speaking #%d: %s", u.ID, truncate(u.Text, 60))

	s.finish(ctx, uctx, u.ID, s.out.Play(uctx, audio))
}

func (s *Synth) finish(ctx, uctx context.Context, id uint64, err error) {
	switch {
	case err == nil:
		s.send(ctx, domain.SynthEvent{UtteranceID: id, Type: domain.SynthEnd})
	case uctx.Err() != nil || errors.Is(err, ErrInterrupted):
		s.send(ctx, domain.SynthEvent{UtteranceID: id, Type: domain.SynthError, Err: domain.SynthErrInterrupted})
	default:
		s.log.Error("utterance #%d failed: %v", id, err)
		s.send(ctx, domain.SynthEvent{UtteranceID: id, Type: domain.SynthError, Err: err.Error()})
	}
}

// synthesizeWithCache checks the cache first, otherwise calls the TTS
// service and stores the result.
func (s *Synth) synthesizeWithCache(ctx context.Context, u domain.Utterance) ([]byte, error) {
	if audio, ok := s.cache.Get(u); ok {
		return audio, nil
	}
	audio, err := s.tts.Synthesize(ctx, u)
	if err != nil {
		return nil, err
	}
	s.cache.Put(u, audio)
	return audio, nil
}

// send delivers an event from the worker, waiting for room.
func (s *Synth) send(ctx context.Context, ev domain.SynthEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// emit delivers an event from a caller goroutine without blocking.
func (s *Synth) emit(ev domain.SynthEvent) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event buffer full, dropped %s for #%d", ev.Type, ev.UtteranceID)
	}
}
