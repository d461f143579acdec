package identity

import (
	"context"
	"database/sql"
	"time"

	"socialkpi-backend/lib/kpi"

	_ "modernc.org/sqlite"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	platform   TEXT NOT NULL,
	profile    TEXT NOT NULL,
	cookies    BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (platform, profile)
);
`

// SessionStore persists session cookies keyed by (platform, profile) so
// a later extraction of the same profile can skip login/challenge
// friction. Best effort only: callers treat every failure as a miss.
type SessionStore struct {
	db *sql.DB
}

// OpenSessionStore opens (or creates) the sqlite-backed store at path.
// Use ":memory:" for process-lifetime sessions.
func OpenSessionStore(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SessionStore{db: db}, nil
}

func (s *SessionStore) Close() error { return s.db.Close() }

func (s *SessionStore) Load(ctx context.Context, platform kpi.Platform, profile string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cookies FROM sessions WHERE platform = ? AND profile = ?`,
		string(platform), profile)
	var cookies []byte
	if err := row.Scan(&cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func (s *SessionStore) Save(ctx context.Context, platform kpi.Platform, profile string, cookies []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (platform, profile, cookies, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (platform, profile) DO UPDATE SET
		   cookies = excluded.cookies,
		   updated_at = excluded.updated_at`,
		string(platform), profile, cookies, time.Now().Unix())
	return err
}
