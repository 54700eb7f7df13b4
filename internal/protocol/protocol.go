// Package protocol defines the messages exchanged between UI processes and
// the playback host: commands (UI to host), the UPDATE_UI broadcast (host
// to UIs) and the language detection reply. Every message is a concrete
// type; the set is closed and matched exhaustively by a type switch.
//
// On the wire a message is a flat JSON object tagged by "type":
//
//	{"type":"CMD_INIT","text":"...","index":3}
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hammamikhairi/readaloud/internal/domain"
)

// Type is the wire tag of a message.
type Type string

const (
	TypeInit           Type = "CMD_INIT"
	TypePlay           Type = "CMD_PLAY"
	TypeTogglePlay     Type = "CMD_TOGGLE_PLAY"
	TypePause          Type = "CMD_PAUSE"
	TypeStop           Type = "CMD_STOP"
	TypeNext           Type = "CMD_NEXT"
	TypePrev           Type = "CMD_PREV"
	TypeJump           Type = "CMD_JUMP"
	TypeUpdateSettings Type = "CMD_UPDATE_SETTINGS"
	TypeTest           Type = "CMD_TEST"
	TypeGetState       Type = "CMD_GET_STATE"
	TypeDetectLang     Type = "CMD_DETECT_LANG"

	TypeUpdateUI         Type = "UPDATE_UI"
	TypeDetectLangResult Type = "DETECT_LANG_RESULT"
)

// Message is anything that travels between processes.
type Message interface {
	Type() Type
}

// Command is a message sent from a UI to the host. The unexported method
// keeps the set of commands closed to this package.
type Command interface {
	Message
	command()
}

// ── Commands ─────────────────────────────────────────────────────

// Init loads a new document and starts playing it at Index.
type Init struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

type Play struct{}

// TogglePlay pauses when playing and plays otherwise.
type TogglePlay struct{}

// Pause suspends playback, or resumes it when already paused.
type Pause struct{}

type Stop struct{}

type Next struct{}

type Prev struct{}

// Jump starts playing from the sentence at Index.
type Jump struct {
	Index int `json:"index"`
}

// UpdateSettings merges a partial settings change.
type UpdateSettings struct {
	Settings domain.SettingsPatch `json:"settings"`
}

// Test speaks a sample phrase with the current settings.
type Test struct{}

// GetState asks the host to re-broadcast its state.
type GetState struct{}

// DetectLang asks for the language of Text. ID correlates the reply.
type DetectLang struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (Init) Type() Type           { return TypeInit }
func (Play) Type() Type           { return TypePlay }
func (TogglePlay) Type() Type     { return TypeTogglePlay }
func (Pause) Type() Type          { return TypePause }
func (Stop) Type() Type           { return TypeStop }
func (Next) Type() Type           { return TypeNext }
func (Prev) Type() Type           { return TypePrev }
func (Jump) Type() Type           { return TypeJump }
func (UpdateSettings) Type() Type { return TypeUpdateSettings }
func (Test) Type() Type           { return TypeTest }
func (GetState) Type() Type       { return TypeGetState }
func (DetectLang) Type() Type     { return TypeDetectLang }

func (Init) command()           {}
func (Play) command()           {}
func (TogglePlay) command()     {}
func (Pause) command()          {}
func (Stop) command()           {}
func (Next) command()           {}
func (Prev) command()           {}
func (Jump) command()           {}
func (UpdateSettings) command() {}
func (Test) command()           {}
func (GetState) command()       {}
func (DetectLang) command()     {}

// ── Host to UI ───────────────────────────────────────────────────

// UpdateUI carries the host's playback state.
type UpdateUI struct {
	State domain.Snapshot `json:"state"`
}

// DetectLangResult answers a DetectLang. Exactly one of Lang and Error is set.
type DetectLangResult struct {
	ID    string `json:"id"`
	Lang  string `json:"lang,omitempty"`
	Error string `json:"error,omitempty"`
}

func (UpdateUI) Type() Type         { return TypeUpdateUI }
func (DetectLangResult) Type() Type { return TypeDetectLangResult }

// NeedsHost reports whether a command should bring the playback host up
// when it is not running yet. Commands that only observe or steer existing
// playback are dropped instead.
func NeedsHost(c Command) bool {
	switch c.(type) {
	case Init, Play, TogglePlay, Jump, Test:
		return true
	default:
		return false
	}
}

// ── Wire codec ───────────────────────────────────────────────────

var factories = map[Type]func() Message{
	TypeInit:             func() Message { return &Init{} },
	TypePlay:             func() Message { return &Play{} },
	TypeTogglePlay:       func() Message { return &TogglePlay{} },
	TypePause:            func() Message { return &Pause{} },
	TypeStop:             func() Message { return &Stop{} },
	TypeNext:             func() Message { return &Next{} },
	TypePrev:             func() Message { return &Prev{} },
	TypeJump:             func() Message { return &Jump{} },
	TypeUpdateSettings:   func() Message { return &UpdateSettings{} },
	TypeTest:             func() Message { return &Test{} },
	TypeGetState:         func() Message { return &GetState{} },
	TypeDetectLang:       func() Message { return &DetectLang{} },
	TypeUpdateUI:         func() Message { return &UpdateUI{} },
	TypeDetectLangResult: func() Message { return &DetectLangResult{} },
}

// Encode renders m as a flat JSON object with a "type" field.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Type(), err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"type":%q`, m.Type())
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses any message. Unknown tags yield domain.ErrUnknownCommand.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}

	factory, ok := factories[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, head.Type)
	}
	ptr := factory()
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
	}
	return deref(ptr), nil
}

// DecodeCommand is Decode restricted to commands.
func DecodeCommand(data []byte) (Command, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	cmd, ok := m.(Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a command", domain.ErrUnknownCommand, m.Type())
	}
	return cmd, nil
}

// deref turns the decoding target back into the value type so callers can
// switch on Init rather than *Init.
func deref(m Message) Message {
	switch v := m.(type) {
	case *Init:
		return *v
	case *Play:
		return *v
	case *TogglePlay:
		return *v
	case *Pause:
		return *v
	case *Stop:
		return *v
	case *Next:
		return *v
	case *Prev:
		return *v
	case *Jump:
		return *v
	case *UpdateSettings:
		return *v
	case *Test:
		return *v
	case *GetState:
		return *v
	case *DetectLang:
		return *v
	case *UpdateUI:
		return *v
	case *DetectLangResult:
		return *v
	}
	return m
}

// ── Shortcuts ────────────────────────────────────────────────────

// Shortcut names of the global keyboard commands.
const (
	ShortcutPlayStop    = "play_stop"
	ShortcutPauseResume = "pause_resume"
	ShortcutForward     = "forward"
	ShortcutRewind      = "rewind"
)

// ForShortcut maps a global keyboard command to the command it sends.
func ForShortcut(name string) (Command, bool) {
	switch name {
	case ShortcutPlayStop:
		return TogglePlay{}, true
	case ShortcutPauseResume:
		return Pause{}, true
	case ShortcutForward:
		return Next{}, true
	case ShortcutRewind:
		return Prev{}, true
	}
	return nil, false
}
