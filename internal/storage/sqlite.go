package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sitewatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite-backed store, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Targets ----

func (s *sqliteStore) CreateTarget(ctx context.Context, url, name string, subscriber int64) (*Target, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO targets(url, name, status, created_at) VALUES(?,?,?,?)`,
		url, name, string(StatusUnknown), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateURL
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions(target_id, chat_id, created_at) VALUES(?,?,?)`,
		id, subscriber, now.Format(time.RFC3339Nano),
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Target{ID: id, URL: url, Name: name, Status: StatusUnknown, Subscribers: []int64{subscriber}}, nil
}

const targetCols = `id, url, name, status, last_checked_at, last_response_ms`

func (s *sqliteStore) TargetByID(ctx context.Context, id int64) (*Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE id = ?`, id)
	return s.scanTarget(ctx, row)
}

func (s *sqliteStore) TargetByURL(ctx context.Context, url string) (*Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE url = ?`, url)
	return s.scanTarget(ctx, row)
}

func (s *sqliteStore) TargetsBySubscriber(ctx context.Context, chatID int64) ([]*Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+qualify(targetCols, "t")+` FROM targets t
		 JOIN subscriptions sub ON sub.target_id = t.id
		 WHERE sub.chat_id = ? ORDER BY t.id`, chatID)
	if err != nil {
		return nil, err
	}
	return s.collectTargets(ctx, rows)
}

func (s *sqliteStore) AllTargets(ctx context.Context) ([]*Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetCols+` FROM targets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return s.collectTargets(ctx, rows)
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, id int64, st Status, checkedAt time.Time, responseMS int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET status = ?, last_checked_at = ?, last_response_ms = ? WHERE id = ?`,
		string(st), checkedAt.UTC().Format(time.RFC3339Nano), responseMS, id,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *sqliteStore) UpdateName(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE targets SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *sqliteStore) UpdateURL(ctx context.Context, id int64, url string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE targets SET url = ? WHERE id = ?`, url, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return err
	}
	return mustAffect(res)
}

// ---- Subscribers ----

func (s *sqliteStore) AddSubscriber(ctx context.Context, id int64, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(target_id, chat_id, created_at) VALUES(?,?,?)
		 ON CONFLICT(target_id, chat_id) DO NOTHING`,
		id, chatID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) RemoveSubscriber(ctx context.Context, id int64, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE target_id = ? AND chat_id = ?`, id, chatID)
	return err
}

func (s *sqliteStore) DeleteIfNoSubscribers(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM targets WHERE id = ?
		 AND NOT EXISTS (SELECT 1 FROM subscriptions WHERE target_id = ?)`, id, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- Users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	if u.Role == "" {
		u.Role = "user"
	}
	if u.LastActivity.IsZero() {
		u.LastActivity = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(chat_id, username, first_name, last_name, role, active, last_activity, created_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   active = excluded.active,
		   last_activity = excluded.last_activity`,
		u.ChatID, u.Username, u.FirstName, u.LastName, u.Role, boolInt(u.Active),
		u.LastActivity.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Users(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.chat_id, u.username, u.first_name, u.last_name, u.role, u.active, u.last_activity,
		        (SELECT COUNT(*) FROM subscriptions WHERE chat_id = u.chat_id)
		 FROM users u ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var (
			u      User
			active int
			lastAt sql.NullString
		)
		if err := rows.Scan(&u.ChatID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &active, &lastAt, &u.TargetCount); err != nil {
			return nil, err
		}
		u.Active = active != 0
		if lastAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastAt.String); err == nil {
				u.LastActivity = t
			}
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(status = 'online'), 0),
		        COALESCE(SUM(status = 'offline'), 0),
		        COALESCE(SUM(status = 'unknown'), 0)
		 FROM targets`).Scan(&st.Targets, &st.Online, &st.Offline, &st.Unknown)
	if err != nil {
		return Stats{}, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(active), 0) FROM users`).Scan(&st.Users, &st.ActiveUsers)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteStore) scanTarget(ctx context.Context, row rowScanner) (*Target, error) {
	var (
		t       Target
		status  string
		checked sql.NullString
		respMS  sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.URL, &t.Name, &status, &checked, &respMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if checked.Valid {
		if at, perr := time.Parse(time.RFC3339Nano, checked.String); perr == nil {
			t.LastCheckedAt = &at
		}
	}
	if respMS.Valid {
		ms := respMS.Int64
		t.LastResponseMS = &ms
	}
	if err := s.loadSubscribers(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *sqliteStore) collectTargets(ctx context.Context, rows *sql.Rows) ([]*Target, error) {
	defer rows.Close()
	var out []*Target
	for rows.Next() {
		var (
			t       Target
			status  string
			checked sql.NullString
			respMS  sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.URL, &t.Name, &status, &checked, &respMS); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		if checked.Valid {
			if at, perr := time.Parse(time.RFC3339Nano, checked.String); perr == nil {
				t.LastCheckedAt = &at
			}
		}
		if respMS.Valid {
			ms := respMS.Int64
			t.LastResponseMS = &ms
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range out {
		if err := s.loadSubscribers(ctx, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqliteStore) loadSubscribers(ctx context.Context, t *Target) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM subscriptions WHERE target_id = ? ORDER BY created_at`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return err
		}
		t.Subscribers = append(t.Subscribers, chatID)
	}
	return rows.Err()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func qualify(cols, alias string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
