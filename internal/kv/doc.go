// Package kv provides the persistent client storage used by the weather
// service: a small string-keyed store with namespaced keys and a JSON
// envelope that records when each value was written. FileStore keeps one
// file per key on a billy filesystem (on disk or in memory); SQLiteStore keeps
// rows in a single-table SQLite database.
package kv
