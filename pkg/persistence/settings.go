package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// SettingsVersion is the current version of the settings file format.
const SettingsVersion = 1

// ErrUnsupportedVersion is returned for files written by a newer format.
var ErrUnsupportedVersion = errors.New("unsupported settings version")

// Settings is one snapshot of the stored settings.
type Settings struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Schema is the version of the schema the values belong to.
	Schema string `json:"schema,omitempty"`

	// Values maps element paths to display values.
	Values map[string]string `json:"values,omitempty"`

	// Instances maps variable collection paths to their instances.
	Instances map[string]Instances `json:"instances,omitempty"`
}

// Instances records a variable collection.
type Instances struct {
	Count int      `json:"count,omitempty"`
	Keys  []string `json:"keys,omitempty"`
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Values = maps.Clone(s.Values)
	c.Instances = make(map[string]Instances, len(s.Instances))
	for k, v := range s.Instances {
		c.Instances[k] = Instances{Count: v.Count, Keys: slices.Clone(v.Keys)}
	}
	return &c
}

// Store holds one settings snapshot.
type Store interface {
	Save(settings *Settings) error
	Load() (*Settings, error)
	Clear() error
	Path() string
}

// SettingsStore saves settings snapshots to a JSON file.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

// NewSettingsStore returns a store for the file at path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string { return s.path }

// Save writes the snapshot, replacing the previous file atomically.
func (s *SettingsStore) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	settings.Version = SettingsVersion
	settings.SavedAt = time.Now()
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the snapshot. It returns nil, nil when no file exists.
func (s *SettingsStore) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if settings.Version > SettingsVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, settings.Version)
	}
	return settings, nil
}

// Clear removes the settings file.
func (s *SettingsStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
