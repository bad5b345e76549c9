package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS caches (
	name       TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	cache      TEXT NOT NULL REFERENCES caches(name) ON DELETE CASCADE,
	key        TEXT NOT NULL,
	search_key TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     INTEGER NOT NULL,
	header     TEXT NOT NULL,
	body       BLOB,
	opaque     INTEGER NOT NULL DEFAULT 0,
	stored_at  TIMESTAMP NOT NULL,
	UNIQUE (cache, key)
);
CREATE INDEX IF NOT EXISTS idx_entries_search ON entries (cache, search_key);
`

// SQLiteStorage keeps caches in a SQLite database so they survive restarts.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the cache database at path. Use ":memory:"
// for a throwaway database.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	dsn := path + "?_foreign_keys=on"
	if strings.Contains(path, "?") {
		dsn = path + "&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Open(ctx context.Context, name string) (Cache, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)",
		name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &sqliteCache{db: s.db, name: name}, nil
}

func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM caches WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM caches ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE cache = ?", name); err != nil {
		return false, fmt.Errorf("delete cache %s entries: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM caches WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

type sqliteCache struct {
	db   *sql.DB
	name string
}

func (c *sqliteCache) Match(ctx context.Context, u *url.URL, opts MatchOptions) (*Response, error) {
	query := "SELECT key, url, status, header, body, opaque, stored_at FROM entries WHERE cache = ? AND key = ? ORDER BY id LIMIT 1"
	arg := cacheKey(u)
	if opts.IgnoreSearch {
		query = "SELECT key, url, status, header, body, opaque, stored_at FROM entries WHERE cache = ? AND search_key = ? ORDER BY id LIMIT 1"
		arg = searchless(arg)
	}

	var (
		e      entry
		header string
	)
	err := c.db.QueryRowContext(ctx, query, c.name, arg).
		Scan(&e.key, &e.url, &e.status, &header, &e.body, &e.opaque, &e.stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("match %s in %s: %w", arg, c.name, err)
	}
	if err := json.Unmarshal([]byte(header), &e.header); err != nil {
		return nil, fmt.Errorf("decode cached header: %w", err)
	}
	return e.response(), nil
}

func (c *sqliteCache) Put(ctx context.Context, u *url.URL, resp *Response) error {
	e, err := newEntry(u, resp)
	if err != nil {
		return err
	}
	if e.header == nil {
		e.header = http.Header{}
	}
	header, err := json.Marshal(e.header)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE cache = ? AND key = ?", c.name, e.key); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (cache, key, search_key, url, status, header, body, opaque, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.name, e.key, searchless(e.key), e.url, e.status, string(header), e.body, e.opaque, e.stored)
	if err != nil {
		return fmt.Errorf("put %s in %s: %w", e.key, c.name, err)
	}
	return tx.Commit()
}

func (c *sqliteCache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT key FROM entries WHERE cache = ? ORDER BY id", c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
