package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore keeps entities as JSON documents in one SQLite table keyed by
// (type, id).
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens (creating if needed) the database at path. table names
// the entity table, "entities" when empty. path may be ":memory:".
func OpenSQLite(ctx context.Context, path, table string) (*SQLiteStore, error) {
	if table == "" {
		table = "entities"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("entity sqlite store: invalid table name %q", table)
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serializes writers, and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(ctx, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context, path string) error {
	if path != ":memory:" {
		if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			return fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout=5000`); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		doc TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (type, id)
	)`)
	if err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// DB returns the underlying *sql.DB connection.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Get(ctx context.Context, typ, id string) (Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM `+s.table+` WHERE type = ? AND id = ?`, typ, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(typ, id)
	}
	if err != nil {
		return nil, fmt.Errorf("entity sqlite store: get %s %q: %w", typ, id, err)
	}
	return decode([]byte(data))
}

func (s *SQLiteStore) Update(ctx context.Context, typ, id string, fn UpdateFunc) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("entity sqlite store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current Document
	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM `+s.table+` WHERE type = ? AND id = ?`, typ, id).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("entity sqlite store: get %s %q: %w", typ, id, err)
	default:
		if current, err = decode([]byte(data)); err != nil {
			return nil, err
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	out, encoded, err := normalize(next)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+s.table+` (type, id, doc) VALUES (?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`,
		typ, id, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("entity sqlite store: write %s %q: %w", typ, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("entity sqlite store: commit: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, typ, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE type = ? AND id = ?`, typ, id)
	if err != nil {
		return fmt.Errorf("entity sqlite store: delete %s %q: %w", typ, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("entity sqlite store: delete %s %q: %w", typ, id, err)
	}
	if n == 0 {
		return notFound(typ, id)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, typ string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM `+s.table+` WHERE type = ? ORDER BY id`, typ)
	if err != nil {
		return nil, fmt.Errorf("entity sqlite store: list %s: %w", typ, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("entity sqlite store: list %s: %w", typ, err)
		}
		doc, err := decode([]byte(data))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }
