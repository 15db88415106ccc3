// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/prism-media/prism/internal/logging"
)

// Store holds the live configuration and serializes runtime mutations
// from the admin API. Readers get an immutable snapshot; writers clone,
// mutate, validate, persist, then swap.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewStore wraps a loaded configuration. path is where mutations are
// persisted.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// Snapshot returns the current configuration. The returned value must be
// treated as read-only; every mutation goes through Update.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Path returns the file mutations are persisted to.
func (s *Store) Path() string {
	return s.path
}

// Update applies mutate to a deep copy of the current configuration,
// validates the result, persists it, and swaps it in. The old snapshot
// stays valid for in-flight readers.
func (s *Store) Update(mutate func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := clone(s.cfg)
	if err != nil {
		return fmt.Errorf("clone config: %w", err)
	}
	if err := mutate(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := save(next, s.path); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}

	s.cfg = next
	logging.Info().Str("path", s.path).Msg("Configuration updated")
	return nil
}

// clone deep-copies a config through its YAML representation.
func clone(cfg *Config) (*Config, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	out := &Config{}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// save writes the config atomically: tmp file in the same directory, then
// rename.
func save(cfg *Config, path string) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".prism-config-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
