package wallet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FlagStore persists the "was connected" flag so a later start can
// reconnect without prompting.
type FlagStore interface {
	WasConnected() (bool, error)
	SetConnected(connected bool) error
}

// sessionState is the on-disk form of the flag.
type sessionState struct {
	WasConnected bool      `yaml:"was_connected"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// FileFlagStore keeps the flag in a small YAML file.
type FileFlagStore struct {
	path string
	mu   sync.Mutex
}

// NewFileFlagStore creates a store backed by path. The file is created on
// the first write.
func NewFileFlagStore(path string) *FileFlagStore {
	return &FileFlagStore{path: path}
}

// WasConnected reads the flag. A missing file means false.
func (s *FileFlagStore) WasConnected() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session state: %w", err)
	}

	var st sessionState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("failed to parse session state: %w", err)
	}
	return st.WasConnected, nil
}

// SetConnected writes the flag atomically.
func (s *FileFlagStore) SetConnected(connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(sessionState{WasConnected: connected, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

// MemoryFlagStore is a process-local FlagStore.
type MemoryFlagStore struct {
	mu        sync.Mutex
	connected bool
}

func (s *MemoryFlagStore) WasConnected() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, nil
}

func (s *MemoryFlagStore) SetConnected(connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	return nil
}
