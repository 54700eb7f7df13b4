package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hammamikhairi/readaloud/internal/config"
	"github.com/hammamikhairi/readaloud/internal/display"
	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/langdetect"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/playback"
	"github.com/hammamikhairi/readaloud/internal/relay"
	"github.com/hammamikhairi/readaloud/internal/settings"
	"github.com/hammamikhairi/readaloud/internal/speech"
)

func main() {
	configPath := flag.String("config", "readaloud.yaml", "YAML config file (missing file is fine)")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", "", "file to write logs to (use \"stderr\" to log to console); overrides config")
	addr := flag.String("addr", "", "listen address; overrides config")
	noSpeech := flag.Bool("no-speech", false, "use the silent synthesizer even if Azure keys are set")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Host.Addr = *addr
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *noSpeech {
		cfg.Speech.Enabled = false
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if *verbose {
		level = logger.LevelVerbose
	}
	if *quiet {
		level = logger.LevelOff
	}
	logOut, closeLog := openLog(cfg.Log.File)
	defer closeLog()
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(level, logOut)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println(display.RenderBanner())

	if err := run(ctx, cfg, log); err != nil {
		log.Error("host: %v", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	mode, err := cfg.SegmentMode()
	if err != nil {
		return err
	}

	// Settings persist across sessions; a broken file falls back to
	// memory rather than stopping the host.
	var kv domain.KeyValueStore
	if store, err := settings.NewFileStore(cfg.SettingsPath, log); err != nil {
		log.Warn("settings file unusable, keeping settings in memory: %v", err)
		kv = settings.NewMemoryStore(log)
	} else {
		kv = store
	}

	synth, stopSynth := buildSynth(ctx, cfg, log)
	defer stopSynth()

	bus := relay.NewBus(log)

	// The engine is created by the first command that needs it and then
	// lives as long as the process.
	var engine *playback.Engine
	host := relay.NewLazy(func(context.Context) (relay.Host, error) {
		// Read settings now rather than at startup: the router may have
		// saved changes while no engine existed.
		initial, err := settings.Load(ctx, kv)
		if err != nil {
			log.Warn("loading settings: %v", err)
		}
		engine = playback.New(synth, bus, log,
			playback.WithSettings(initial),
			playback.WithSettingsStore(kv),
			playback.WithSegmentMode(mode),
		)
		engine.Start(ctx)
		log.Info("playback engine started")
		return engine, nil
	}, nil)
	defer func() {
		if _, ok := host.Peek(); ok {
			engine.Stop()
		}
	}()

	routerOpts := []relay.RouterOption{relay.WithSettingsStore(kv)}
	if cfg.LangDetect.Enabled() {
		var opts []langdetect.Option
		if cfg.LangDetect.BaseURL != "" {
			opts = append(opts, langdetect.WithBaseURL(cfg.LangDetect.BaseURL))
		}
		if cfg.LangDetect.Model != "" {
			opts = append(opts, langdetect.WithModel(cfg.LangDetect.Model))
		}
		routerOpts = append(routerOpts,
			relay.WithDetector(langdetect.New(cfg.LangDetect.APIKey, log, opts...)),
			relay.WithDetectTimeout(cfg.LangDetect.Timeout),
		)
		log.Info("language detection enabled")
	} else {
		log.Info("language detection disabled: set %s to enable", config.EnvOpenAIKey)
	}

	router := relay.NewRouter(host, bus, log, routerOpts...)
	server := relay.NewServer(router, bus, log)

	mux := http.NewServeMux()
	mux.Handle(cfg.Host.Path, server.Handler())
	srv := &http.Server{Addr: cfg.Host.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s%s", cfg.Host.Addr, cfg.Host.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildSynth returns Azure speech when configured and the audio device is
// available, otherwise the silent synthesizer.
func buildSynth(ctx context.Context, cfg config.Config, log *logger.Logger) (domain.Synthesizer, func()) {
	silent := func() (domain.Synthesizer, func()) {
		return speech.NewSilent(cfg.Speech.WordTime, log), func() {}
	}

	if !cfg.Speech.Enabled {
		log.Info("speech disabled, using silent synthesizer")
		return silent()
	}
	if !cfg.Speech.Azure() {
		log.Info("TTS disabled: set %s and %s env vars to enable", config.EnvAzureSpeechKey, config.EnvAzureSpeechRegion)
		return silent()
	}

	player, err := speech.NewPlayer(log)
	if err != nil {
		log.Error("audio player init failed, speech disabled: %v", err)
		return silent()
	}

	client := speech.NewAzureClient(cfg.Speech.AzureKey, cfg.Speech.AzureRegion, log)
	synth := speech.NewSynth(client, player, log,
		speech.WithCacheDir(cfg.Speech.CacheDir),
		speech.WithDiskWrite(cfg.Speech.DiskCache),
	)

	voicesCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := synth.LoadVoices(voicesCtx); err != nil {
		log.Warn("voice list unavailable, using %s: %v", speech.DefaultVoice, err)
	}

	synth.Start(ctx)
	log.Info("TTS enabled (region=%s)", cfg.Speech.AzureRegion)
	return synth, synth.Stop
}

// openLog directs logs to a file so the terminal stays clean. "stderr"
// or an empty path logs to the console.
func openLog(path string) (io.Writer, func()) {
	if path == "" || path == "stderr" {
		return os.Stderr, func() {}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return os.Stderr, func() {}
	}
	return f, func() { f.Close() }
}
