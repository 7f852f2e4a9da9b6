package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/neboloop/clawreach/internal/defaults"
)

// Editors may write a file several times in a row.
const debounceDelay = 100 * time.Millisecond

// Watch calls fn with the reloaded config every time the config file or
// the token file changes, until ctx is done. Files that fail to parse are
// logged and skipped.
func (s *Store) Watch(ctx context.Context, fn func(*Config)) error {
	return s.watch(ctx, false, func() bool {
		cfg, err := s.Load()
		if err != nil {
			s.logger.Warn("ignoring config change", "error", err)
			return false
		}
		fn(cfg)
		return false
	})
}

// WaitForURL returns the config as soon as it carries a server URL. It
// blocks until the file is provisioned or ctx is done.
func (s *Store) WaitForURL(ctx context.Context) (*Config, error) {
	var found *Config
	err := s.watch(ctx, true, func() bool {
		cfg, err := s.Load()
		if err != nil {
			s.logger.Warn("ignoring config change", "error", err)
			return false
		}
		if cfg.ApplyEnv(); cfg.ServerURL == "" {
			return false
		}
		found = cfg
		return true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// watch runs check after every debounced change to the watched files, and
// once up front when initial is set. It returns nil once check reports true.
func (s *Store) watch(ctx context.Context, initial bool, check func() bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so renames and re-creations are seen.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	if initial && check() {
		return nil
	}

	name := filepath.Base(s.path)
	var (
		timer    *time.Timer
		debounce <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if base != name && base != defaults.TokenFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
			} else {
				timer.Reset(debounceDelay)
			}
			debounce = timer.C

		case <-debounce:
			debounce = nil
			if check() {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}
