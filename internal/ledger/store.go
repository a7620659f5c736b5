// Package ledger is the durable record store behind the economy engine.
//
// Records are opaque byte values grouped in tables and addressed by a natural
// key. A Store only promises that every write made inside one Update call is
// committed together or not at all; entity-level locking is the caller's job.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"casebank/internal/db"
)

const (
	TableAccounts    = "accounts"
	TableCases       = "cases"
	TableWithdrawals = "withdrawals"
	TablePromos      = "promos"
	TableStocks      = "stocks"
	TableSettings    = "settings"
	TableOutbox      = "outbox"
)

var (
	ErrNotFound = errors.New("record not found")

	errReadOnly    = errors.New("write in read-only transaction")
	errStoreClosed = errors.New("store is closed")
)

// Tx is a view of the store inside one View or Update call.
type Tx interface {
	Get(table, key string) ([]byte, error)
	Put(table, key string, value []byte) error
	Delete(table, key string) error
	// Keys returns every key in table in ascending order.
	Keys(table string) ([]string, error)
}

type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Open picks a backend from dsn: "memory:", "sqlite:<path>" or a postgres URL.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory:":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := db.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store dsn %q", dsn)
	}
}

func validateKey(table, key string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("table is required")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}
