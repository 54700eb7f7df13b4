package domain

import "context"

// Synthesizer is the speech capability. Speak starts an utterance and
// returns immediately; progress is reported on Events. Cancel must be safe
// to call when nothing is speaking.
type Synthesizer interface {
	Voices() []Voice
	Speak(u Utterance)
	Cancel()
	Pause()
	Resume()
	Paused() bool
	Events() <-chan SynthEvent
}

// KeyValueStore persists string settings across sessions.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// LanguageDetector classifies text into a language code. It may be slow
// or never answer; callers apply their own timeout.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// Broadcaster delivers state snapshots to every listening UI.
type Broadcaster interface {
	Broadcast(s Snapshot)
}
