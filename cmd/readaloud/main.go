package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hammamikhairi/readaloud/internal/config"
	"github.com/hammamikhairi/readaloud/internal/display"
	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/protocol"
	"github.com/hammamikhairi/readaloud/internal/segment"
	"github.com/hammamikhairi/readaloud/internal/settings"
)

func main() {
	configPath := flag.String("config", "readaloud.yaml", "YAML config file (missing file is fine)")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", "", "file to write logs to (use \"stderr\" to log to console); overrides config")
	pageURL := flag.String("url", "", "page to read")
	htmlFile := flag.String("file", "", "local HTML file to read")
	pdfURL := flag.String("pdf", "", "PDF to read through the document viewer")
	useClipboard := flag.Bool("clipboard", false, "read the clipboard selection even when a page is given")
	index := flag.Int("index", 0, "sentence to start from")
	autoplay := flag.Bool("autoplay", true, "start reading as soon as the text is loaded")
	shortcut := flag.String("shortcut", "", "send a global shortcut command (play_stop, pause_resume, forward, rewind) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
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
	log := logger.New(level, logOut).Named("ui")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *shortcut != "" {
		if err := sendShortcut(ctx, cfg, log, *shortcut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	src := source{
		url:       *pageURL,
		file:      *htmlFile,
		pdf:       *pdfURL,
		clipboard: *useClipboard,
	}
	if err := run(ctx, cfg, log, src, *index, *autoplay); err != nil {
		log.Error("%v", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger, src source, index int, autoplay bool) error {
	mode, err := cfg.SegmentMode()
	if err != nil {
		return err
	}

	doc, err := src.load(ctx, cfg, log)
	var opts []display.Option
	switch {
	case errors.Is(err, domain.ErrRestrictedPage):
		opts = append(opts, display.WithMessage(restrictedMessage))
	case errors.Is(err, domain.ErrNoReadableText):
	case err != nil:
		return err
	}
	if doc.title != "" {
		opts = append(opts, display.WithTitle(doc.title))
	}

	sentences := segment.Split(doc.text, mode)

	client, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	// Show the rate the host will use. The host owns the file; this is a
	// read-only peek.
	if store, err := settings.NewFileStore(cfg.SettingsPath, log); err == nil {
		if s, err := settings.Load(ctx, store); err == nil {
			opts = append(opts, display.WithSettings(s))
		}
	}

	if len(sentences) > 0 {
		opts = append(opts,
			display.WithDocument(doc.text, index, autoplay),
			display.WithLanguageDetector(func() (string, error) {
				return client.DetectLang(ctx, doc.text)
			}),
		)
	}
	// The first broadcast tells the popup whether the host already reads
	// this document; the model sends INIT only when it does not.
	if err := client.Send(protocol.GetState{}); err != nil {
		return err
	}

	model := display.New(domain.Texts(sentences), client, client.Updates(), opts...)
	return display.Run(ctx, model)
}

func sendShortcut(ctx context.Context, cfg config.Config, log *logger.Logger, name string) error {
	cmd, ok := protocol.ForShortcut(name)
	if !ok {
		return fmt.Errorf("unknown shortcut %q", name)
	}
	client, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Send(cmd)
}

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
