// Package telemetry records chat request outcomes locally. Nothing is
// reported externally, and identities are stored only as hashes.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"

	"github.com/Aman-CERP/codechat/internal/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_requests (
	request_id    TEXT PRIMARY KEY,
	identity_hash TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	code          TEXT NOT NULL DEFAULT '',
	from_cache    INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL,
	sources       INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_requests_created ON chat_requests(created_at);
`

// Store persists chat events in SQLite. It implements chat.Recorder.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
	now  func() time.Time
}

var _ chat.Recorder = (*Store)(nil)

// Open opens or creates the database at path. The schema is migrated while
// holding <path>.lock so concurrent serve and mcp processes agree on it.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path, lock: flock.New(path + ".lock"), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock telemetry db: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// HashIdentity is the stored form of an identity.
func HashIdentity(identity string) string {
	sum := xxh3.HashString128(identity).Bytes()
	return hex.EncodeToString(sum[:])
}

// Record implements chat.Recorder.
func (s *Store) Record(ctx context.Context, e chat.Event) error {
	at := e.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chat_requests
			(request_id, identity_hash, outcome, code, from_cache, duration_ms, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, HashIdentity(e.Identity), e.Outcome, e.Code,
		boolToInt(e.FromCache), e.Duration.Milliseconds(), e.Sources, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert chat request: %w", err)
	}
	return nil
}

// Prune deletes events older than before. Only one process prunes at a
// time; if another holds the lock Prune returns 0 without waiting.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	ok, err := s.lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("lock telemetry db: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer func() { _ = s.lock.Unlock() }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_requests WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune chat requests: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
