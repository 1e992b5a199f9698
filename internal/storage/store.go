package storage

import (
	"context"
	"time"
)

// Store is the persistence API consumed by the monitor engine and the bot.
//
// Implementations must make each operation atomic; the monitor additionally
// serializes probe result writes per target (see internal/monitor).
type Store interface {
	// Targets.
	CreateTarget(ctx context.Context, url, name string, subscriber int64) (*Target, error)
	TargetByID(ctx context.Context, id int64) (*Target, error)
	TargetByURL(ctx context.Context, url string) (*Target, error)
	TargetsBySubscriber(ctx context.Context, chatID int64) ([]*Target, error)
	AllTargets(ctx context.Context) ([]*Target, error)

	// UpdateStatus folds a completed probe into the target's last-known fields.
	UpdateStatus(ctx context.Context, id int64, st Status, checkedAt time.Time, responseMS int64) error
	UpdateName(ctx context.Context, id int64, name string) error
	UpdateURL(ctx context.Context, id int64, url string) error

	// Subscribers. AddSubscriber is a no-op (false) when already subscribed.
	// DeleteIfNoSubscribers reports whether the target was deleted.
	AddSubscriber(ctx context.Context, id int64, chatID int64) (bool, error)
	RemoveSubscriber(ctx context.Context, id int64, chatID int64) error
	DeleteIfNoSubscribers(ctx context.Context, id int64) (bool, error)

	// Users.
	UpsertUser(ctx context.Context, u User) error
	Users(ctx context.Context) ([]*User, error)
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
