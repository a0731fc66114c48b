// Package persistence keeps the stored settings of an RCI device so they
// survive restarts.
//
// A snapshot holds element values in their display form, keyed by element
// path, and the instances of every variable collection. SettingsStore
// writes it to a JSON file through a temporary file that replaces the
// previous one. SQLiteStore keeps it in an SQLite database.
package persistence
