package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore saves settings snapshots to an SQLite database. Each Save
// replaces the stored snapshot in one transaction.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshot (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		version  INTEGER NOT NULL,
		saved_at DATETIME NOT NULL,
		schema   TEXT
	);

	CREATE TABLE IF NOT EXISTS setting_values (
		path  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS setting_instances (
		path  TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		keys  TEXT
	);
	`)
	return err
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot.
func (s *SQLiteStore) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.Version = SettingsVersion
	settings.SavedAt = time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM snapshot`,
		`DELETE FROM setting_values`,
		`DELETE FROM setting_instances`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`INSERT INTO snapshot (id, version, saved_at, schema) VALUES (1, ?, ?, ?)`,
		settings.Version, settings.SavedAt.UTC(), settings.Schema); err != nil {
		return err
	}
	for path, value := range settings.Values {
		if _, err := tx.Exec(`INSERT INTO setting_values (path, value) VALUES (?, ?)`, path, value); err != nil {
			return err
		}
	}
	for path, inst := range settings.Instances {
		var keys sql.NullString
		if len(inst.Keys) > 0 {
			data, err := json.Marshal(inst.Keys)
			if err != nil {
				return err
			}
			keys = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := tx.Exec(`INSERT INTO setting_instances (path, count, keys) VALUES (?, ?, ?)`,
			path, inst.Count, keys); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load reads the snapshot. It returns nil, nil when nothing was saved.
func (s *SQLiteStore) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := &Settings{}
	var schema sql.NullString
	err := s.db.QueryRow(`SELECT version, saved_at, schema FROM snapshot WHERE id = 1`).
		Scan(&settings.Version, &settings.SavedAt, &schema)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if settings.Version > SettingsVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, settings.Version)
	}
	settings.Schema = schema.String

	rows, err := s.db.Query(`SELECT path, value FROM setting_values`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var path, value string
		if err := rows.Scan(&path, &value); err != nil {
			return nil, err
		}
		if settings.Values == nil {
			settings.Values = make(map[string]string)
		}
		settings.Values[path] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	inst, err := s.db.Query(`SELECT path, count, keys FROM setting_instances`)
	if err != nil {
		return nil, err
	}
	defer inst.Close()
	for inst.Next() {
		var path string
		var in Instances
		var keys sql.NullString
		if err := inst.Scan(&path, &in.Count, &keys); err != nil {
			return nil, err
		}
		if keys.Valid {
			if err := json.Unmarshal([]byte(keys.String), &in.Keys); err != nil {
				return nil, fmt.Errorf("decode keys of %s: %w", path, err)
			}
		}
		if settings.Instances == nil {
			settings.Instances = make(map[string]Instances)
		}
		settings.Instances[path] = in
	}
	return settings, inst.Err()
}

// Clear removes the stored snapshot.
func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		DELETE FROM snapshot;
		DELETE FROM setting_values;
		DELETE FROM setting_instances;
	`)
	return err
}
