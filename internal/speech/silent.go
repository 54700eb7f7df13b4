// Package speech provides text-to-speech implementations of the
// synthesizer capability.
package speech

import (
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// Compile-time interface check.
var _ domain.Synthesizer = (*Silent)(nil)

// DefaultWordTime approximates how long a word takes at rate 1.0.
const DefaultWordTime = 400 * time.Millisecond

// Silent is a synthesizer that produces no audio. Each utterance "plays"
// for a duration derived from its word count and rate, so the rest of the
// system behaves as it would with real speech. Used when no TTS service is
// configured.
type Silent struct {
	log      *logger.Logger
	wordTime time.Duration
	events   chan domain.SynthEvent

	mu     sync.Mutex
	run    *silentRun
	paused bool
}

type silentRun struct {
	id   uint64
	stop chan struct{}
}

// NewSilent creates a silent synthesizer. A non-positive wordTime uses
// DefaultWordTime.
func NewSilent(wordTime time.Duration, log *logger.Logger) *Silent {
	if wordTime <= 0 {
		wordTime = DefaultWordTime
	}
	return &Silent{
		log:      log.Named("silent"),
		wordTime: wordTime,
		events:   make(chan domain.SynthEvent, 64),
	}
}

// Voices reports a single placeholder voice.
func (s *Silent) Voices() []domain.Voice {
	return []domain.Voice{{Name: "silent", Lang: "en-US", Default: true}}
}

// Events delivers utterance lifecycle events.
func (s *Silent) Events() <-chan domain.SynthEvent { return s.events }

// Speak starts an utterance, interrupting the previous one.
func (s *Silent) Speak(u domain.Utterance) {
	s.Cancel()

	run := &silentRun{id: u.ID, stop: make(chan struct{})}
	s.mu.Lock()
	s.run = run
	s.mu.Unlock()

	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(u.Text))
	d := time.Duration(float64(words) * float64(s.wordTime) / rate)

	s.log.Debug("would say #%d for %s: %s", u.ID, d, truncate(u.Text, 60))
	s.emit(domain.SynthEvent{UtteranceID: u.ID, Type: domain.SynthStart})
	go s.play(run, d)
}

// play counts down the remaining duration, holding while paused.
func (s *Silent) play(run *silentRun, remaining time.Duration) {
	const tick = 5 * time.Millisecond
	t := time.NewTicker(tick)
	defer t.Stop()

	for remaining > 0 {
		select {
		case <-run.stop:
			return
		case <-t.C:
		}
		s.mu.Lock()
		if !s.paused {
			remaining -= tick
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.mu.Unlock()
	s.emit(domain.SynthEvent{UtteranceID: run.id, Type: domain.SynthEnd})
}

// Cancel interrupts the current utterance, if any.
func (s *Silent) Cancel() {
	s.mu.Lock()
	run := s.run
	s.run = nil
	s.paused = false
	s.mu.Unlock()

	if run != nil {
		close(run.stop)
		s.emit(domain.SynthEvent{UtteranceID: run.id, Type: domain.SynthError, Err: domain.SynthErrInterrupted})
	}
}

// Pause holds the current utterance.
func (s *Silent) Pause() {
	s.mu.Lock()
	run := s.run
	if run == nil || s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()
	s.emit(domain.SynthEvent{UtteranceID: run.id, Type: domain.SynthPause})
}

// Resume continues a held utterance.
func (s *Silent) Resume() {
	s.mu.Lock()
	run := s.run
	if run == nil || !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	s.mu.Unlock()
	s.emit(domain.SynthEvent{UtteranceID: run.id, Type: domain.SynthResume})
}

// Paused reports whether the current utterance is held.
func (s *Silent) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Silent) emit(ev domain.SynthEvent) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event buffer full, dropped %s for #%d", ev.Type, ev.UtteranceID)
	}
}
