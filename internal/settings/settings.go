// Package settings persists named configuration profiles to a JSON file.
// The core pipeline never does its own settings I/O; this package is the
// collaborator that hands validated config.Settings to it across the
// configure boundary.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"ergomonitor/internal/config"
)

// Profile is one named, persisted machine configuration. Each profile is
// tagged with a UUID so it survives being renamed or reordered in the
// store.
type Profile struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Settings config.Settings `json:"settings"`
}

// Store is a JSON-file-backed collection of Profiles, guarded by a mutex
// so it can be read from one goroutine (e.g. a dashboard handler) while
// being written from another (e.g. a settings-import command).
type Store struct {
	mu       sync.RWMutex
	path     string
	profiles map[uuid.UUID]Profile
}

// Open loads a Store from path. A missing file is not an error: it is
// treated as an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, profiles: make(map[uuid.UUID]Profile)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	var list []Profile
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", path, err)
	}
	for _, p := range list {
		s.profiles[p.ID] = p
	}
	return s, nil
}

// Save validates cfg, assigns it a new UUID, stores it under name and
// persists the whole store to disk.
func (s *Store) Save(name string, cfg config.Settings) (Profile, error) {
	if err := cfg.Validate(); err != nil {
		return Profile{}, fmt.Errorf("settings: invalid profile %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Profile{ID: uuid.New(), Name: name, Settings: cfg}
	s.profiles[p.ID] = p
	return p, s.flushLocked()
}

// Replace overwrites an existing profile's settings in place, keeping its
// ID, and persists the store.
func (s *Store) Replace(id uuid.UUID, cfg config.Settings) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("settings: invalid profile update: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("settings: no profile %s", id)
	}
	p.Settings = cfg
	s.profiles[id] = p
	return s.flushLocked()
}

// Get returns the profile with the given ID.
func (s *Store) Get(id uuid.UUID) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

// List returns every stored profile in no particular order.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// Delete removes a profile and persists the store.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	list := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		list = append(list, p)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
