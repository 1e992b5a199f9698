package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore is an in-memory Store used by tests and as a scratch backend.
// It mirrors the SQLite semantics, including delete-on-empty and URL
// uniqueness.
type memoryStore struct {
	mu      sync.Mutex
	nextID  int64
	targets map[int64]*Target
	users   map[int64]*User
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		nextID:  1,
		targets: map[int64]*Target{},
		users:   map[int64]*User{},
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) CreateTarget(_ context.Context, url, name string, subscriber int64) (*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.targets {
		if t.URL == url {
			return nil, ErrDuplicateURL
		}
	}
	t := &Target{
		ID:          m.nextID,
		URL:         url,
		Name:        name,
		Status:      StatusUnknown,
		Subscribers: []int64{subscriber},
	}
	m.nextID++
	m.targets[t.ID] = t
	return copyTarget(t), nil
}

func (m *memoryStore) TargetByID(_ context.Context, id int64) (*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTarget(t), nil
}

func (m *memoryStore) TargetByURL(_ context.Context, url string) (*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.targets {
		if t.URL == url {
			return copyTarget(t), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryStore) TargetsBySubscriber(_ context.Context, chatID int64) ([]*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Target
	for _, t := range m.targets {
		for _, s := range t.Subscribers {
			if s == chatID {
				out = append(out, copyTarget(t))
				break
			}
		}
	}
	sortTargets(out)
	return out, nil
}

func (m *memoryStore) AllTargets(_ context.Context) ([]*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, copyTarget(t))
	}
	sortTargets(out)
	return out, nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id int64, st Status, checkedAt time.Time, responseMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return ErrNotFound
	}
	at := checkedAt
	ms := responseMS
	t.Status = st
	t.LastCheckedAt = &at
	t.LastResponseMS = &ms
	return nil
}

func (m *memoryStore) UpdateName(_ context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return ErrNotFound
	}
	t.Name = name
	return nil
}

func (m *memoryStore) UpdateURL(_ context.Context, id int64, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.targets {
		if t.URL == url && t.ID != id {
			return ErrDuplicateURL
		}
	}
	t, ok := m.targets[id]
	if !ok {
		return ErrNotFound
	}
	t.URL = url
	return nil
}

func (m *memoryStore) AddSubscriber(_ context.Context, id int64, chatID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, s := range t.Subscribers {
		if s == chatID {
			return false, nil
		}
	}
	t.Subscribers = append(t.Subscribers, chatID)
	return true, nil
}

func (m *memoryStore) RemoveSubscriber(_ context.Context, id int64, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil
	}
	subs := t.Subscribers[:0]
	for _, s := range t.Subscribers {
		if s != chatID {
			subs = append(subs, s)
		}
	}
	t.Subscribers = subs
	return nil
}

func (m *memoryStore) DeleteIfNoSubscribers(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return false, nil
	}
	if len(t.Subscribers) > 0 {
		return false, nil
	}
	delete(m.targets, id)
	return true, nil
}

func (m *memoryStore) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Role == "" {
		u.Role = "user"
	}
	if u.LastActivity.IsZero() {
		u.LastActivity = time.Now()
	}
	// Role sticks once assigned, same as the SQLite upsert.
	if prev, ok := m.users[u.ChatID]; ok {
		u.Role = prev.Role
	}
	cp := u
	m.users[u.ChatID] = &cp
	return nil
}

func (m *memoryStore) Users(_ context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		cp.TargetCount = m.targetCountLocked(u.ChatID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (m *memoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Targets: len(m.targets), Users: len(m.users)}
	for _, t := range m.targets {
		switch t.Status {
		case StatusOnline:
			st.Online++
		case StatusOffline:
			st.Offline++
		default:
			st.Unknown++
		}
	}
	for _, u := range m.users {
		if u.Active {
			st.ActiveUsers++
		}
	}
	return st, nil
}

func (m *memoryStore) targetCountLocked(chatID int64) int {
	n := 0
	for _, t := range m.targets {
		for _, s := range t.Subscribers {
			if s == chatID {
				n++
				break
			}
		}
	}
	return n
}

func copyTarget(t *Target) *Target {
	cp := *t
	cp.Subscribers = append([]int64(nil), t.Subscribers...)
	if t.LastCheckedAt != nil {
		at := *t.LastCheckedAt
		cp.LastCheckedAt = &at
	}
	if t.LastResponseMS != nil {
		ms := *t.LastResponseMS
		cp.LastResponseMS = &ms
	}
	return &cp
}

func sortTargets(ts []*Target) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
