package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sitewatch/pkg/logx"
)

// Both implementations must satisfy the same semantics; every subtest runs
// against the in-memory store and a fresh SQLite file.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestCreateTarget(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		target, err := s.CreateTarget(ctx, "https://example.com", "Example", 100)
		if err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}
		if target.ID == 0 {
			t.Fatalf("expected assigned id")
		}
		if target.Status != StatusUnknown {
			t.Fatalf("new target status = %q, want unknown", target.Status)
		}
		if len(target.Subscribers) != 1 || target.Subscribers[0] != 100 {
			t.Fatalf("creator not subscribed: %v", target.Subscribers)
		}
		if target.LastCheckedAt != nil || target.LastResponseMS != nil {
			t.Fatalf("new target must have no probe history")
		}

		if _, err := s.CreateTarget(ctx, "https://example.com", "Other", 200); !errors.Is(err, ErrDuplicateURL) {
			t.Fatalf("duplicate url err = %v, want ErrDuplicateURL", err)
		}
	})
}

func TestTargetLookups(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.CreateTarget(ctx, "https://a.example", "A", 100)
		if err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}

		byID, err := s.TargetByID(ctx, created.ID)
		if err != nil || byID.URL != "https://a.example" {
			t.Fatalf("TargetByID = %+v, %v", byID, err)
		}
		byURL, err := s.TargetByURL(ctx, "https://a.example")
		if err != nil || byURL.ID != created.ID {
			t.Fatalf("TargetByURL = %+v, %v", byURL, err)
		}

		if _, err := s.TargetByID(ctx, 9999); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing id err = %v, want ErrNotFound", err)
		}
		if _, err := s.TargetByURL(ctx, "https://nope.example"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing url err = %v, want ErrNotFound", err)
		}
	})
}

func TestTargetsBySubscriber(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a, _ := s.CreateTarget(ctx, "https://a.example", "A", 100)
		if _, err := s.CreateTarget(ctx, "https://b.example", "B", 200); err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}
		if _, err := s.AddSubscriber(ctx, a.ID, 200); err != nil {
			t.Fatalf("AddSubscriber: %v", err)
		}

		mine, err := s.TargetsBySubscriber(ctx, 100)
		if err != nil || len(mine) != 1 || mine[0].ID != a.ID {
			t.Fatalf("subscriber 100 targets = %+v, %v", mine, err)
		}
		theirs, err := s.TargetsBySubscriber(ctx, 200)
		if err != nil || len(theirs) != 2 {
			t.Fatalf("subscriber 200 targets = %+v, %v", theirs, err)
		}
		none, err := s.TargetsBySubscriber(ctx, 300)
		if err != nil || len(none) != 0 {
			t.Fatalf("subscriber 300 targets = %+v, %v", none, err)
		}
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		target, _ := s.CreateTarget(ctx, "https://a.example", "A", 100)
		at := time.Now().Truncate(time.Millisecond)

		if err := s.UpdateStatus(ctx, target.ID, StatusOnline, at, 87); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		got, _ := s.TargetByID(ctx, target.ID)
		if got.Status != StatusOnline {
			t.Fatalf("status = %q, want online", got.Status)
		}
		if got.LastResponseMS == nil || *got.LastResponseMS != 87 {
			t.Fatalf("response ms = %v, want 87", got.LastResponseMS)
		}
		if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(at) {
			t.Fatalf("checked at = %v, want %v", got.LastCheckedAt, at)
		}

		if err := s.UpdateStatus(ctx, 9999, StatusOnline, at, 1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing id err = %v, want ErrNotFound", err)
		}
	})
}

func TestUpdateNameAndURL(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a, _ := s.CreateTarget(ctx, "https://a.example", "A", 100)
		if _, err := s.CreateTarget(ctx, "https://b.example", "B", 100); err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}

		if err := s.UpdateName(ctx, a.ID, "Renamed"); err != nil {
			t.Fatalf("UpdateName: %v", err)
		}
		if err := s.UpdateURL(ctx, a.ID, "https://a2.example"); err != nil {
			t.Fatalf("UpdateURL: %v", err)
		}
		got, _ := s.TargetByID(ctx, a.ID)
		if got.Name != "Renamed" || got.URL != "https://a2.example" {
			t.Fatalf("after update: %+v", got)
		}

		if err := s.UpdateURL(ctx, a.ID, "https://b.example"); !errors.Is(err, ErrDuplicateURL) {
			t.Fatalf("url collision err = %v, want ErrDuplicateURL", err)
		}
		if err := s.UpdateName(ctx, 9999, "X"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing id err = %v, want ErrNotFound", err)
		}
	})
}

func TestSubscriberLifecycle(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		target, _ := s.CreateTarget(ctx, "https://a.example", "A", 100)

		added, err := s.AddSubscriber(ctx, target.ID, 200)
		if err != nil || !added {
			t.Fatalf("AddSubscriber(200) = %v, %v", added, err)
		}
		added, err = s.AddSubscriber(ctx, target.ID, 200)
		if err != nil || added {
			t.Fatalf("repeat AddSubscriber(200) = %v, %v, want false", added, err)
		}

		// Still has a subscriber, must not delete.
		if err := s.RemoveSubscriber(ctx, target.ID, 100); err != nil {
			t.Fatalf("RemoveSubscriber(100): %v", err)
		}
		deleted, err := s.DeleteIfNoSubscribers(ctx, target.ID)
		if err != nil || deleted {
			t.Fatalf("DeleteIfNoSubscribers with remaining sub = %v, %v", deleted, err)
		}

		if err := s.RemoveSubscriber(ctx, target.ID, 200); err != nil {
			t.Fatalf("RemoveSubscriber(200): %v", err)
		}
		deleted, err = s.DeleteIfNoSubscribers(ctx, target.ID)
		if err != nil || !deleted {
			t.Fatalf("DeleteIfNoSubscribers empty = %v, %v, want true", deleted, err)
		}
		if _, err := s.TargetByID(ctx, target.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("deleted target still readable: %v", err)
		}
	})
}

func TestUsersAndStats(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().Truncate(time.Second)

		for _, u := range []User{
			{ChatID: 100, Username: "alice", FirstName: "Alice", Role: RoleAdmin, Active: true, LastActivity: now},
			{ChatID: 200, Username: "bob", FirstName: "Bob", Role: RoleUser, Active: false, LastActivity: now},
		} {
			if err := s.UpsertUser(ctx, u); err != nil {
				t.Fatalf("UpsertUser(%d): %v", u.ChatID, err)
			}
		}
		// Upsert refreshes, never duplicates.
		if err := s.UpsertUser(ctx, User{ChatID: 100, Username: "alice2", FirstName: "Alice", Role: RoleAdmin, Active: true, LastActivity: now}); err != nil {
			t.Fatalf("UpsertUser repeat: %v", err)
		}

		a, _ := s.CreateTarget(ctx, "https://a.example", "A", 100)
		b, _ := s.CreateTarget(ctx, "https://b.example", "B", 100)
		if err := s.UpdateStatus(ctx, a.ID, StatusOnline, now, 10); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if err := s.UpdateStatus(ctx, b.ID, StatusOffline, now, 20); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if _, err := s.CreateTarget(ctx, "https://c.example", "C", 200); err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}

		users, err := s.Users(ctx)
		if err != nil {
			t.Fatalf("Users: %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("users = %d, want 2", len(users))
		}
		byChat := map[int64]*User{}
		for _, u := range users {
			byChat[u.ChatID] = u
		}
		if byChat[100] == nil || byChat[100].Username != "alice2" || byChat[100].TargetCount != 2 {
			t.Fatalf("user 100 = %+v", byChat[100])
		}
		if byChat[200] == nil || byChat[200].TargetCount != 1 {
			t.Fatalf("user 200 = %+v", byChat[200])
		}

		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		want := Stats{Targets: 3, Online: 1, Offline: 1, Unknown: 1, Users: 2, ActiveUsers: 1}
		if st != want {
			t.Fatalf("stats = %+v, want %+v", st, want)
		}
	})
}
