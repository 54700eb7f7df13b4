package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/readaloud/internal/logger"
)

// ErrInterrupted is returned by Play when the context ends mid-playback.
var ErrInterrupted = errors.New("playback interrupted")

// Player handles audio playback of WAV/PCM data via oto. One clip plays at
// a time; the paused state carries over to the next clip until Resume or
// Reset is called.
type Player struct {
	ctx    *oto.Context
	log    *logger.Logger
	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle
	paused bool
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{ctx: ctx, log: log}, nil
}

// Play plays WAV audio data synchronously. Blocks until playback finishes
// or ctx ends, in which case ErrInterrupted is returned.
func (p *Player) Play(ctx context.Context, wavData []byte) error {
	pcm, err := extractPCM(wavData)
	if err != nil {
		return err
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	p.mu.Lock()
	p.active = player
	if !p.paused {
		player.Play()
	}
	p.mu.Unlock()
	p.log.Debug("audio player: playing %d bytes of PCM", len(pcm))

	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			player.Pause()
			p.log.Debug("audio player: interrupted")
			return ErrInterrupted
		case <-ticker.C:
		}

		p.mu.Lock()
		done := !p.paused && !player.IsPlaying()
		p.mu.Unlock()
		if done {
			break
		}
	}

	// A cancel racing the natural end still counts as an interruption.
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// Pause holds the current clip and any clip started before Resume.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	if p.active != nil {
		p.active.Pause()
	}
}

// Resume continues a paused clip.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	if p.active != nil {
		p.active.Play()
	}
}

// Reset clears the paused state without restarting the current clip.
func (p *Player) Reset() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// extractPCM strips the WAV/RIFF header and returns raw PCM data.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}

	// Verify RIFF header.
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	// Walk chunks to find the "data" chunk.
	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	return nil, errors.New("data chunk not found in WAV")
}
