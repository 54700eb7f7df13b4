// Package config loads settings for the host and UI binaries: built-in
// defaults, then an optional YAML file, then the environment (including a
// .env file). Flags in cmd/ are applied last by the binaries themselves.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/readaloud/internal/segment"
)

// Env var names.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvOpenAIBaseURL     = "OPENAI_BASE_URL"
	EnvAddr              = "READALOUD_ADDR"
	EnvLogLevel          = "READALOUD_LOG_LEVEL"
	EnvSettingsPath      = "READALOUD_SETTINGS"
)

// Config is the full configuration for both processes.
type Config struct {
	Host       Host       `yaml:"host"`
	Speech     Speech     `yaml:"speech"`
	LangDetect LangDetect `yaml:"langdetect"`
	Extract    Extract    `yaml:"extract"`
	Viewer     Viewer     `yaml:"viewer"`
	Log        Log        `yaml:"log"`

	// Segmenting: "blank" splits paragraphs on blank lines, "line" on
	// every line break.
	Segment string `yaml:"segment"`
	// SettingsPath is the persisted voice/rate/pitch/volume file.
	SettingsPath string `yaml:"settings_path"`
}

// Host is where the playback host listens and UIs connect.
type Host struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
	// Spawn lets a UI start the host when none is listening.
	Spawn       bool          `yaml:"spawn"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// URL is the websocket endpoint UIs dial.
func (h Host) URL() string {
	addr := h.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "ws://" + addr + h.Path
}

// Speech configures synthesis.
type Speech struct {
	Enabled     bool          `yaml:"enabled"`
	AzureKey    string        `yaml:"azure_key"`
	AzureRegion string        `yaml:"azure_region"`
	CacheDir    string        `yaml:"cache_dir"`
	DiskCache   bool          `yaml:"disk_cache"`
	WordTime    time.Duration `yaml:"word_time"` // silent fallback pacing
}

// Azure reports whether Azure credentials are present.
func (s Speech) Azure() bool { return s.AzureKey != "" && s.AzureRegion != "" }

// LangDetect configures the remote language classifier.
type LangDetect struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether a key is configured.
func (l LangDetect) Enabled() bool { return l.APIKey != "" }

// Extract tunes content extraction.
type Extract struct {
	Simple        bool     `yaml:"simple"`
	NoisePatterns []string `yaml:"noise_patterns"`
	SafePatterns  []string `yaml:"safe_patterns"`
}

// Viewer is the optional document viewer endpoint.
type Viewer struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"` // off, normal, verbose
	File  string `yaml:"file"`  // "stderr" logs to the console
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host: Host{
			Addr:        "127.0.0.1:7311",
			Path:        "/ws",
			Spawn:       true,
			DialTimeout: 3 * time.Second,
		},
		Speech: Speech{
			Enabled:   true,
			CacheDir:  ".readaloud-cache",
			DiskCache: true,
		},
		LangDetect: LangDetect{
			Timeout: 5500 * time.Millisecond,
		},
		Viewer: Viewer{
			Timeout: 10 * time.Second,
		},
		Log: Log{
			Level: "normal",
			File:  ".readaloud-logs/readaloud.log",
		},
		Segment: "blank",
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file layer. envFiles are passed to godotenv; with
// none, ./.env is tried.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load(envFiles...)
	applyEnv(&cfg)

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Speech.AzureKey, EnvAzureSpeechKey)
	set(&cfg.Speech.AzureRegion, EnvAzureSpeechRegion)
	set(&cfg.LangDetect.APIKey, EnvOpenAIKey)
	set(&cfg.LangDetect.BaseURL, EnvOpenAIBaseURL)
	set(&cfg.Host.Addr, EnvAddr)
	set(&cfg.Log.Level, EnvLogLevel)
	set(&cfg.SettingsPath, EnvSettingsPath)
}

// Validate rejects values the binaries cannot work with.
func (c Config) Validate() error {
	if c.Host.Addr == "" {
		return errors.New("config: host.addr is required")
	}
	if !strings.HasPrefix(c.Host.Path, "/") {
		return fmt.Errorf("config: host.path %q must start with /", c.Host.Path)
	}
	if _, err := c.SegmentMode(); err != nil {
		return err
	}
	return nil
}

// SegmentMode maps the Segment string to a segmenter mode.
func (c Config) SegmentMode() (segment.Mode, error) {
	switch c.Segment {
	case "", "blank":
		return segment.ModeBlankLine, nil
	case "line":
		return segment.ModeLine, nil
	default:
		return 0, fmt.Errorf("config: unknown segment mode %q", c.Segment)
	}
}
