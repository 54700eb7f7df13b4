package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hammamikhairi/readaloud/internal/segment"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAzureSpeechKey, EnvAzureSpeechRegion, EnvOpenAIKey, EnvOpenAIBaseURL, EnvAddr, EnvLogLevel, EnvSettingsPath} {
		t.Setenv(k, "")
	}
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host.URL() != "ws://127.0.0.1:7311/ws" {
		t.Fatalf("unexpected url %s", cfg.Host.URL())
	}
	if cfg.Speech.Azure() || cfg.LangDetect.Enabled() {
		t.Fatal("no credentials expected by default")
	}
	if cfg.Viewer.Timeout != 10*time.Second {
		t.Fatalf("unexpected viewer timeout %s", cfg.Viewer.Timeout)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := write(t, "readaloud.yaml", `
host:
  addr: ":9000"
speech:
  word_time: 250ms
langdetect:
  model: tiny
  timeout: 2s
segment: line
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host.URL() != "ws://localhost:9000/ws" {
		t.Fatalf("unexpected url %s", cfg.Host.URL())
	}
	if cfg.Speech.WordTime != 250*time.Millisecond || cfg.LangDetect.Timeout != 2*time.Second {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Speech, cfg.LangDetect)
	}
	if !cfg.Speech.DiskCache {
		t.Fatal("unset fields must keep their defaults")
	}
	if mode, _ := cfg.SegmentMode(); mode != segment.ModeLine {
		t.Fatalf("expected line mode, got %v", mode)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := write(t, "readaloud.yaml", "speech:\n  azure_region: fileregion\n")
	env := write(t, ".env", "AZURE_SPEECH_KEY=fromdotenv\nAZURE_SPEECH_REGION=dotenvregion\n")
	t.Setenv(EnvAzureSpeechRegion, "westeurope")
	// godotenv only fills variables that are absent, not empty.
	os.Unsetenv(EnvAzureSpeechKey)

	cfg, err := Load(path, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Speech.AzureKey != "fromdotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.Speech.AzureKey)
	}
	if cfg.Speech.AzureRegion != "westeurope" {
		t.Fatalf("process env must win over .env and file, got %q", cfg.Speech.AzureRegion)
	}
}

func TestInvalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "host: [unclosed"},
		{"bad segment", "segment: words"},
		{"bad path", "host:\n  path: ws"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(write(t, "c.yaml", tt.content), filepath.Join(t.TempDir(), "none.env")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMissingFileIsFine(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
