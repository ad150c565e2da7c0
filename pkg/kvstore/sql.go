package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder syntax and column types for SQLStore
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const defaultTable = "kv_store"

// SQLStore keeps records in a single key/value table. It is the durable
// backend for deployments that already run Postgres, and the file-backed
// backend for single-node installs on SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, table: defaultTable}
}

// OpenSQLStore opens the database, verifies connectivity and creates the
// table if it does not exist
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, maxConns int) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}

	switch {
	case dialect == DialectSQLite:
		// One long-lived connection: avoids "database is locked" and keeps
		// :memory: databases alive between queries
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case maxConns > 0:
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	s := NewSQLStore(db, dialect)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the key/value table
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	blob := "BYTEA"
	if s.dialect == DialectSQLite {
		blob = "BLOB"
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		kv_key TEXT PRIMARY KEY,
		kv_value %s NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`, s.table, blob)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := s.rebind(fmt.Sprintf("SELECT kv_value FROM %s WHERE kv_key = ?", s.table))

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("sql get failed: %w", err)
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (kv_key, kv_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (kv_key) DO UPDATE SET kv_value = excluded.kv_value, updated_at = excluded.updated_at`, s.table))

	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("sql set failed: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE kv_key = ?", s.table))

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("sql delete failed: %w", err)
	}
	return nil
}

func (s *SQLStore) ScanPrefix(ctx context.Context, prefix string) ([]Item, error) {
	query := s.rebind(fmt.Sprintf(`SELECT kv_key, kv_value FROM %s WHERE kv_key LIKE ? ESCAPE '\'`, s.table))

	rows, err := s.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("sql scan failed: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql scan failed: %w", err)
	}

	// SQLite LIKE ignores ASCII case
	return filterPrefix(items, prefix), nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
