package domain

// Voice is a voice reported by the synthesis capability.
type Voice struct {
	Name    string
	Lang    string // BCP 47 tag, e.g. "en-US"
	Default bool
}

// Utterance is one request to speak a piece of text.
type Utterance struct {
	ID     uint64
	Text   string
	Voice  string
	Rate   float64
	Pitch  float64
	Volume float64
}

// SynthEventType classifies synthesis lifecycle events.
type SynthEventType int

const (
	SynthStart SynthEventType = iota
	SynthEnd
	SynthError
	SynthPause
	SynthResume
)

// String returns a human-readable event type.
func (t SynthEventType) String() string {
	switch t {
	case SynthStart:
		return "start"
	case SynthEnd:
		return "end"
	case SynthError:
		return "error"
	case SynthPause:
		return "pause"
	case SynthResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Error codes reported with SynthError events. Anything else is a genuine
// failure.
const (
	SynthErrInterrupted = "interrupted"
	SynthErrCanceled    = "canceled"
)

// SynthEvent is a lifecycle event for a single utterance.
type SynthEvent struct {
	UtteranceID uint64
	Type        SynthEventType
	Err         string // set for SynthError
}

// SelfInflicted reports whether an error event was caused by our own cancel.
func (e SynthEvent) SelfInflicted() bool {
	return e.Err == SynthErrInterrupted || e.Err == SynthErrCanceled
}
