package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hammamikhairi/readaloud/internal/domain"
)

// Persisted keys.
const (
	KeyVoiceName = "voiceName"
	KeyRate      = "rate"
	KeyPitch     = "pitch"
	KeyVolume    = "volume"
)

// Load reads settings from store. Missing or unparsable values fall back
// to the defaults; only store failures are returned as errors.
func Load(ctx context.Context, store domain.KeyValueStore) (domain.Settings, error) {
	s := domain.DefaultSettings()

	voice, _, err := store.Get(ctx, KeyVoiceName)
	if err != nil {
		return s, fmt.Errorf("loading %s: %w", KeyVoiceName, err)
	}
	s.VoiceName = voice

	for _, f := range []struct {
		key string
		dst *float64
	}{
		{KeyRate, &s.Rate},
		{KeyPitch, &s.Pitch},
		{KeyVolume, &s.Volume},
	} {
		raw, ok, err := store.Get(ctx, f.key)
		if err != nil {
			return s, fmt.Errorf("loading %s: %w", f.key, err)
		}
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*f.dst = v
		}
	}
	return s.Clamp(), nil
}

// Save writes every field of s to store.
func Save(ctx context.Context, store domain.KeyValueStore, s domain.Settings) error {
	values := []struct{ key, val string }{
		{KeyVoiceName, s.VoiceName},
		{KeyRate, formatFloat(s.Rate)},
		{KeyPitch, formatFloat(s.Pitch)},
		{KeyVolume, formatFloat(s.Volume)},
	}
	for _, v := range values {
		if err := store.Set(ctx, v.key, v.val); err != nil {
			return fmt.Errorf("saving %s: %w", v.key, err)
		}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
