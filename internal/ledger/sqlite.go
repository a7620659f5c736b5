package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"casebank/internal/ledger/migrations"

	_ "modernc.org/sqlite"
)

// SQLite is the embedded single-file backend.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLiteMigrations(context.Background(), sqlDB, migrations.SQLite, "sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *SQLite) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *SQLite) run(ctx context.Context, readOnly bool, fn func(Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return errStoreClosed
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{ctx: ctx, tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type sqliteTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) Get(table, key string) ([]byte, error) {
	if err := validateKey(table, key); err != nil {
		return nil, err
	}
	var body []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT body FROM records WHERE tbl = ? AND key = ?`, table, key).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, key, err)
	}
	return body, nil
}

func (t *sqliteTx) Put(table, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := validateKey(table, key); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `
INSERT INTO records (tbl, key, body, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (tbl, key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
`, table, key, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *sqliteTx) Delete(table, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := validateKey(table, key); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE tbl = ? AND key = ?`, table, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *sqliteTx) Keys(table string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT key FROM records WHERE tbl = ? ORDER BY key`, table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
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
