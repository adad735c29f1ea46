package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Tracker loads and commits IndexState at a fixed path. Load never fails the
// run: a missing or corrupt file degrades to a zero state, which means
// "process everything". Commit is atomic: the new state is written to a
// temporary file in the same directory and renamed into place, so a crash
// mid-write leaves the previous file intact.
type Tracker struct {
	path   string
	logger *zap.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets a logger for state warnings (corrupt file, etc.).
func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker for the state file at path.
func NewTracker(path string, opts ...TrackerOption) *Tracker {
	t := &Tracker{path: path}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads the state file. A missing file returns a zero state (first run);
// an unreadable or invalid file is logged and also returns a zero state so
// the pipeline falls back to full reprocessing instead of failing.
func (t *Tracker) Load() *IndexState {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) && t.logger != nil {
			t.logger.Warn("state file unreadable, reprocessing everything",
				zap.String("path", t.path), zap.Error(err))
		}
		return &IndexState{}
	}
	var st IndexState
	if err := json.Unmarshal(data, &st); err != nil {
		if t.logger != nil {
			t.logger.Warn("state file corrupt, reprocessing everything",
				zap.String("path", t.path), zap.Error(err))
		}
		return &IndexState{}
	}
	return &st
}

// Commit atomically replaces the state file with st. The parent directory is
// created if needed.
func (t *Tracker) Commit(st *IndexState) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Path returns the state file location.
func (t *Tracker) Path() string {
	return t.path
}
