// Package cache persists successful computed-style results in SQLite.
//
// Computed styles are deterministic given the document, the selector and
// the engine, so repeated queries can skip the subprocess entirely. Keys
// hash the full query content (mode included - simulated and real results
// never mix); only successful results are stored.
//
// The caller must blank-import an SQLite driver before Open:
//
//	import _ "modernc.org/sqlite"
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/styleq/query"
)

const schema = `
CREATE TABLE IF NOT EXISTS computed_styles (
	key         TEXT PRIMARY KEY,
	result_json TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// Store is a computed-style result cache.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache at path with the production pragmas:
// WAL journaling, busy timeout, NORMAL synchronous.
func Open(path string) (*Store, error) {
	return open(path, 0)
}

func open(path string, maxConns int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory cache for tests. The pool is pinned to a
// single connection so every query sees the same in-memory database; the
// store closes with the test.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := open(":memory:", 1)
	if err != nil {
		t.Fatalf("cache.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Key derives the cache key for a query under the given mode. The query ID
// is deliberately excluded: two queries for the same content share a key.
func Key(mode string, q query.StyleQuery) string {
	h := sha256.New()
	for _, part := range []string{mode, q.HTML, q.CombinedCSS(), q.Selector, q.Property, q.PseudoElement} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks a result up. The boolean reports whether the key was present.
func (s *Store) Get(ctx context.Context, key string) (query.StyleResult, bool, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM computed_styles WHERE key = ?`, key).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return query.StyleResult{}, false, nil
	}
	if err != nil {
		return query.StyleResult{}, false, fmt.Errorf("cache: get: %w", err)
	}
	var r query.StyleResult
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return query.StyleResult{}, false, fmt.Errorf("cache: decode cached result: %w", err)
	}
	return r, true, nil
}

// Put stores a result under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, r query.StyleResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("cache: encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO computed_styles (key, result_json, created_at)
		VALUES (?, ?, ?)`, key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Prune removes entries older than maxAge and returns how many went.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM computed_styles WHERE created_at < ?`,
		time.Now().Add(-maxAge).Unix())
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
