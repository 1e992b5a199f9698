package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a target or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateURL is returned by CreateTarget when the URL is already monitored.
	ErrDuplicateURL = errors.New("url already monitored")
)

// Status is the last-known availability of a target.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Down reports whether the status belongs to the "down" class for
// transition purposes (offline, or never successfully probed).
func (s Status) Down() bool { return s != StatusOnline }

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Target is one monitored endpoint plus its subscriber set.
//
// URL is globally unique: a given URL is monitored at most once and shared
// across subscribers. A target whose subscriber set empties is deleted.
type Target struct {
	ID     int64
	URL    string
	Name   string
	Status Status

	// LastCheckedAt / LastResponseMS are nil until the first probe completes.
	LastCheckedAt  *time.Time
	LastResponseMS *int64

	Subscribers []int64
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a chat user known to the bot, registered on first contact.
type User struct {
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	Role         string // "user" or "admin"
	Active       bool
	LastActivity time.Time
	TargetCount  int
}

// Stats is an aggregate snapshot for the admin /stats command.
type Stats struct {
	Targets     int
	Online      int
	Offline     int
	Unknown     int
	Users       int
	ActiveUsers int
}
