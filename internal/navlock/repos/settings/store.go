// Package settings reads the persisted navlock settings file and reports
// changes to it. The file is never written.
package settings

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/domain"
)

// Store is a file-backed settings source.
type Store struct {
	path   string
	source *file.File
	logger log.Logger
}

// New returns a Store reading the settings file at path.
func New(path string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Store{
		path:   path,
		source: file.Provider(path),
		logger: logger.With(map[string]any{"settings_file": path}),
	}
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// Load reads and decodes the settings file. A missing debug key reads as false;
// a missing allowedList reads as empty. Files ending in .list or .txt are plain
// allow-lists with debug off.
func (s *Store) Load() (domain.Settings, error) {
	data, err := s.source.ReadBytes()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var settings domain.Settings
	if isPlainList(s.path) {
		settings.AllowedList, err = parsePlainList(bytes.NewReader(data), s.logger)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("parse settings: %w", err)
		}
	} else if settings, err = decode(data, s.logger); err != nil {
		return domain.Settings{}, err
	}
	s.logger.Debug(map[string]any{
		"entries": len(settings.AllowedList),
		"debug":   settings.Debug,
	}, "settings_loaded")
	return settings, nil
}

// Watch calls onChange after every change to the settings file until ctx is
// done. Watch errors are logged; they do not stop the daemon. When the file is
// removed the watch is re-armed once it exists again, and onChange is called
// for the file that reappeared.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if err := s.watch(ctx, onChange); err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	return nil
}

// The file provider's watch ends after reporting any error.
func (s *Store) watch(ctx context.Context, onChange func()) error {
	return s.source.Watch(func(_ any, err error) {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn(map[string]any{"error": err.Error()}, "settings_watch_error")
			go s.rewatch(ctx, onChange)
			return
		}
		s.logger.Debug(nil, "settings_changed")
		onChange()
	})
}

const (
	rewatchMinDelay = 50 * time.Millisecond
	rewatchMaxDelay = 2 * time.Second
)

func (s *Store) rewatch(ctx context.Context, onChange func()) {
	delay := rewatchMinDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.watch(ctx, onChange); err == nil {
			s.logger.Info(map[string]any{"attempts": attempt}, "settings_watch_restored")
			onChange()
			return
		}
		if delay *= 2; delay > rewatchMaxDelay {
			delay = rewatchMaxDelay
		}
	}
}
