package persistence

import (
	"errors"
	"path/filepath"
	"testing"
)

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*SettingsStore)(nil)

func newSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	t.Run("LoadEmpty", func(t *testing.T) {
		got, err := newSQLite(t, ":memory:").Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil", got)
		}
	})

	t.Run("SaveAndReopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.db")
		store := newSQLite(t, path)
		in := &Settings{
			Schema: "1.0",
			Values: map[string]string{
				"setting/serial[1]/baud":        "115200",
				"setting/users[alice]/fullname": "Alice",
			},
			Instances: map[string]Instances{
				"setting/users":             {Keys: []string{"alice", "bob"}},
				"setting/network[1]/routes": {Count: 2},
			},
		}
		if err := store.Save(in); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		got, err := newSQLite(t, path).Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != SettingsVersion || got.SavedAt.IsZero() {
			t.Errorf("Load() version/time = %d %v", got.Version, got.SavedAt)
		}
		if got.Schema != "1.0" || len(got.Values) != 2 {
			t.Errorf("Load() = %+v", got)
		}
		if got.Values["setting/serial[1]/baud"] != "115200" {
			t.Errorf("baud = %q", got.Values["setting/serial[1]/baud"])
		}
		if keys := got.Instances["setting/users"].Keys; len(keys) != 2 || keys[1] != "bob" {
			t.Errorf("users keys = %v", keys)
		}
		if in := got.Instances["setting/network[1]/routes"]; in.Count != 2 || in.Keys != nil {
			t.Errorf("routes = %+v", in)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		store := newSQLite(t, ":memory:")
		if err := store.Save(&Settings{Values: map[string]string{"a": "1", "b": "1"}}); err != nil {
			t.Fatal(err)
		}
		if err := store.Save(&Settings{Values: map[string]string{"a": "2"}}); err != nil {
			t.Fatal(err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Values) != 1 || got.Values["a"] != "2" {
			t.Errorf("Values = %v, want only a=2", got.Values)
		}
	})

	t.Run("NewerVersionRejected", func(t *testing.T) {
		store := newSQLite(t, ":memory:")
		if _, err := store.db.Exec(`INSERT INTO snapshot (id, version, saved_at) VALUES (1, 99, CURRENT_TIMESTAMP)`); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Load(); !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Load() error = %v, want ErrUnsupportedVersion", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := newSQLite(t, ":memory:")
		if err := store.Save(&Settings{Values: map[string]string{"a": "1"}}); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if got, _ := store.Load(); got != nil {
			t.Errorf("Load() after Clear = %+v", got)
		}
	})
}
