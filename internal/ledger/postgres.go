package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"casebank/internal/ledger/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConflict is returned when a serializable update keeps losing races.
var ErrConflict = errors.New("transaction conflict, retry")

// Postgres stores records in casebank.records. Updates run at SERIALIZABLE
// and are retried on serialization failures, so update closures must be
// safe to run more than once.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres applies the embedded schema and wraps pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	files, err := migrationFiles(migrations.Postgres, "postgres")
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		upSQL, err := readUpMigration(migrations.Postgres, "postgres/"+name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(upSQL) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, upSQL); err != nil {
			return nil, fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	return fn(&pgTx{ctx: ctx, tx: tx, readOnly: true})
}

func (p *Postgres) Update(ctx context.Context, fn func(Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrConflict
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Get(table, key string) ([]byte, error) {
	if err := validateKey(table, key); err != nil {
		return nil, err
	}
	var body []byte
	err := t.tx.QueryRow(t.ctx, `
		SELECT body::text FROM casebank.records WHERE tbl = $1 AND key = $2
	`, table, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (t *pgTx) Put(table, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := validateKey(table, key); err != nil {
		return err
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO casebank.records (tbl, key, body, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (tbl, key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, table, key, string(value))
	return err
}

func (t *pgTx) Delete(table, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := validateKey(table, key); err != nil {
		return err
	}
	_, err := t.tx.Exec(t.ctx, `DELETE FROM casebank.records WHERE tbl = $1 AND key = $2`, table, key)
	return err
}

func (t *pgTx) Keys(table string) ([]string, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT key FROM casebank.records WHERE tbl = $1 ORDER BY key COLLATE "C"
	`, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
