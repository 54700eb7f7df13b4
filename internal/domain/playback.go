package domain

// Settings bounds.
const (
	MinRate   = 0.1
	MaxRate   = 10.0
	MinPitch  = 0.0
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0
)

// Settings controls how sentences are voiced. An empty VoiceName means the
// voice is picked automatically.
type Settings struct {
	VoiceName string  `json:"voiceName"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
	Volume    float64 `json:"volume"`
}

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{Rate: 1.0, Pitch: 1.0, Volume: 1.0}
}

// Clamp returns a copy with every numeric field inside its legal range.
func (s Settings) Clamp() Settings {
	s.Rate = clamp(s.Rate, MinRate, MaxRate)
	s.Pitch = clamp(s.Pitch, MinPitch, MaxPitch)
	s.Volume = clamp(s.Volume, MinVolume, MaxVolume)
	return s
}

// SettingsPatch is a partial settings update. Nil fields are left alone.
type SettingsPatch struct {
	VoiceName *string  `json:"voiceName,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`
	Pitch     *float64 `json:"pitch,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
}

// Merge applies the patch on top of s.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.VoiceName != nil {
		s.VoiceName = *p.VoiceName
	}
	if p.Rate != nil {
		s.Rate = *p.Rate
	}
	if p.Pitch != nil {
		s.Pitch = *p.Pitch
	}
	if p.Volume != nil {
		s.Volume = *p.Volume
	}
	return s.Clamp()
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.VoiceName == nil && p.Rate == nil && p.Pitch == nil && p.Volume == nil
}

// Snapshot is the observable playback state broadcast to UIs.
type Snapshot struct {
	IsPlaying      bool `json:"isPlaying"`
	IsPaused       bool `json:"isPaused"`
	CurrentIndex   int  `json:"currentIndex"`
	TotalSentences int  `json:"totalSentences"`
}

// Status returns a human-readable playback status.
func (s Snapshot) Status() string {
	switch {
	case s.IsPlaying:
		return "playing"
	case s.IsPaused:
		return "paused"
	case s.TotalSentences == 0:
		return "idle"
	default:
		return "stopped"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
