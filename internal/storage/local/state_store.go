// Package local implements a State Store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/threadwatch/internal/state"
)

// Config captures the parameters for the filesystem state store.
type Config struct {
	// Path is the JSON record file, e.g. state.json.
	Path string `mapstructure:"path" yaml:"path"`
}

// StateStore keeps the watermark in a single JSON file.
type StateStore struct {
	path string
}

// New creates a filesystem-backed state store. The parent directory is
// created when missing; the record itself is created on first Save.
func New(cfg Config) (*StateStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("state path is required")
	}

	dir := filepath.Dir(cfg.Path)
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat state directory: %w", err)
		}
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("state directory path is not a directory")
	}
	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("state path %s is a directory", cfg.Path)
	}

	return &StateStore{path: cfg.Path}, nil
}

// Path returns the record location.
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the watermark. A missing file is not an error.
func (s *StateStore) Load(_ context.Context) (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read state file: %w", err)
	}
	last, err := state.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return last, nil
}

// Save replaces the record atomically: the new content is written to a temp
// file in the same directory and renamed over the old one.
func (s *StateStore) Save(_ context.Context, last int) error {
	data, err := state.Encode(last)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
