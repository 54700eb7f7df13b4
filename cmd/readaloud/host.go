package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hammamikhairi/readaloud/internal/config"
	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/relay"
)

const hostBinary = "readaloud-host"

// connect dials the host, starting it first when none is listening and
// spawning is allowed.
func connect(ctx context.Context, cfg config.Config, log *logger.Logger) (*relay.Client, error) {
	url := cfg.Host.URL()
	opts := []relay.ClientOption{relay.WithRequestTimeout(requestTimeout(cfg))}

	c, err := relay.Dial(ctx, url, log, opts...)
	if err == nil || !cfg.Host.Spawn || !errors.Is(err, domain.ErrHostUnavailable) {
		return c, err
	}

	if err := spawnHost(log); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHostUnavailable, err)
	}

	deadline := time.Now().Add(cfg.Host.DialTimeout)
	for {
		c, err = relay.Dial(ctx, url, log, opts...)
		if err == nil || time.Now().After(deadline) {
			return c, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// requestTimeout leaves the host room to answer DETECT_LANG with its own
// timeout error before the client gives up on the request.
func requestTimeout(cfg config.Config) time.Duration {
	return cfg.LangDetect.Timeout + relay.DefaultStartupGrace + relay.DefaultCeiling
}

// spawnHost starts the host next to this binary (or from PATH), detached
// from the popup so it keeps reading after the popup closes.
func spawnHost(log *logger.Logger) error {
	bin, err := exec.LookPath(hostBinary)
	if self, serr := os.Executable(); serr == nil {
		if sibling := filepath.Join(filepath.Dir(self), hostBinary); fileExists(sibling) {
			bin, err = sibling, nil
		}
	}
	if err != nil {
		return fmt.Errorf("locating %s: %w", hostBinary, err)
	}

	cmd := exec.Command(bin, "-quiet")
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", bin, err)
	}
	log.Info("spawned host %s (pid %d)", bin, cmd.Process.Pid)
	return cmd.Process.Release()
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
