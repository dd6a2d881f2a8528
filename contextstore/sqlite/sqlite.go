// Package sqlite implements the contextstore.Backend contract on a local
// SQLite database. One row per (skill_id, key); values travel as CBOR
// blobs. WAL mode with synchronous=FULL gives the durability the store
// contract requires: a successful Write has reached disk before it
// returns.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/skilldock/skilldock/contextstore"
	"github.com/skilldock/skilldock/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS context_entries (
	skill_id   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	expires_at INTEGER,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (skill_id, key)
);
`

// Options configures the SQLite backend.
type Options struct {
	// PoolSize is the number of pooled connections. Defaults to 4.
	// SQLite serializes writes regardless, so extra connections only
	// help concurrent LoadAll calls.
	PoolSize int

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Backend is a contextstore.Backend persisting to a SQLite file.
type Backend struct {
	pool   *sqlitex.Pool
	logger logging.Logger
	path   string
}

// Compile-time interface assertion.
var _ contextstore.Backend = (*Backend)(nil)

// Open creates the backend, creating the database file and schema if
// needed. Use ":memory:" with PoolSize 1 for tests.
func Open(path string, optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{PoolSize: 4, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    opts.PoolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: opening %s: %w", path, err)
	}
	b := &Backend{pool: pool, logger: opts.Logger, path: path}

	// Force schema creation eagerly so Open fails fast on a bad path.
	conn, err := pool.Take(context.Background())
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("sqlite backend: init: %w", err)
	}
	pool.Put(conn)

	return b, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite backend: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite backend: schema: %w", err)
	}
	return nil
}

// LoadAll returns every record stored for the skill.
func (b *Backend) LoadAll(ctx context.Context, skillID string) ([]contextstore.Record, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: take: %w", err)
	}
	defer b.pool.Put(conn)

	var records []contextstore.Record
	err = sqlitex.Execute(conn,
		`SELECT key, value, expires_at, updated_at FROM context_entries WHERE skill_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{skillID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, blob)
				value, decErr := decodeValue(blob)
				if decErr != nil {
					return fmt.Errorf("record (%s, %s): %w", skillID, stmt.ColumnText(0), decErr)
				}
				rec := contextstore.Record{
					SkillID:   skillID,
					Key:       stmt.ColumnText(0),
					Value:     value,
					UpdatedAt: time.Unix(stmt.ColumnInt64(3), 0).UTC(),
				}
				if !stmt.ColumnIsNull(2) {
					rec.ExpiresAt = time.Unix(stmt.ColumnInt64(2), 0).UTC()
				}
				records = append(records, rec)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: load %s: %w", skillID, err)
	}
	return records, nil
}

// Write upserts the record for (record.SkillID, record.Key).
func (b *Backend) Write(ctx context.Context, record contextstore.Record) error {
	blob, err := encodeValue(record.Value)
	if err != nil {
		return fmt.Errorf("sqlite backend: encode (%s, %s): %w", record.SkillID, record.Key, err)
	}

	var expiresAt any
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.Unix()
	}

	conn, err := b.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite backend: take: %w", err)
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO context_entries (skill_id, key, value, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (skill_id, key) DO UPDATE SET
		   value = excluded.value,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{record.SkillID, record.Key, blob, expiresAt, record.UpdatedAt.Unix()},
		})
	if err != nil {
		return fmt.Errorf("sqlite backend: write (%s, %s): %w", record.SkillID, record.Key, err)
	}
	return nil
}

// Delete removes the record for (skillID, key). Absent records are a no-op.
func (b *Backend) Delete(ctx context.Context, skillID, key string) error {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite backend: take: %w", err)
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM context_entries WHERE skill_id = ? AND key = ?`,
		&sqlitex.ExecOptions{Args: []any{skillID, key}})
	if err != nil {
		return fmt.Errorf("sqlite backend: delete (%s, %s): %w", skillID, key, err)
	}
	return nil
}

// Close closes the connection pool. Blocks until borrowed connections are
// returned.
func (b *Backend) Close() error {
	if err := b.pool.Close(); err != nil {
		return fmt.Errorf("sqlite backend: closing %s: %w", b.path, err)
	}
	return nil
}
