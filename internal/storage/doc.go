// Package storage persists monitored targets, their subscriber sets, and the
// chat users known to the bot.
//
// The primary backend is SQLite (modernc.org/sqlite, pure Go). An in-memory
// implementation with identical semantics backs tests.
//
// Only last-known status is stored per target; probe history is not retained.
package storage
