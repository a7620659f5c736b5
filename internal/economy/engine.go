// Package economy implements the game's transactional economy: accounts,
// cases, withdrawals, deposits, the stock market and promo codes.
//
// Every mutating operation takes the per-entity locks it needs in a fixed
// order and then runs as a single ledger.Store Update, so validation and
// writes are atomic. Operations never call one another; shared account
// mutations go through Accounts.
package economy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"casebank/internal/ledger"
	"casebank/internal/random"
)

// Rand is the randomness the engine draws from.
type Rand interface {
	Float64() float64
}

type Options struct {
	Logger       *slog.Logger
	Clock        func() time.Time
	Rand         Rand
	RarityValues RarityValues
	// VolatilityScale multiplies each stock's volatility band on price ticks.
	VolatilityScale float64
}

type core struct {
	store      ledger.Store
	locks      *lockTable
	log        *slog.Logger
	clock      func() time.Time
	rand       Rand
	rarity     RarityValues
	volatility float64
}

func (c *core) now() time.Time {
	return c.clock().UTC()
}

// update runs fn in one store transaction while holding keys.
func (c *core) update(ctx context.Context, keys []lockKey, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := c.locks.acquire(keys...)
	defer release()
	return c.store.Update(ctx, fn)
}

func (c *core) view(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return c.store.View(ctx, fn)
}

type Engine struct {
	Accounts    *Accounts
	Cases       *Cases
	Withdrawals *Withdrawals
	Deposits    *Deposits
	Market      *Market
	Promos      *Promos
	Settings    *SettingsService

	core *core
}

func New(store ledger.Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		src, err := random.NewSeededSource()
		if err != nil {
			return nil, err
		}
		opts.Rand = src
	}
	if opts.RarityValues == nil {
		opts.RarityValues = DefaultRarityValues()
	}
	if opts.VolatilityScale <= 0 {
		opts.VolatilityScale = 1
	}

	c := &core{
		store:      store,
		locks:      newLockTable(),
		log:        opts.Logger,
		clock:      opts.Clock,
		rand:       opts.Rand,
		rarity:     opts.RarityValues,
		volatility: opts.VolatilityScale,
	}
	accounts := &Accounts{core: c}
	return &Engine{
		Accounts:    accounts,
		Cases:       &Cases{core: c, accounts: accounts},
		Withdrawals: &Withdrawals{core: c, accounts: accounts},
		Deposits:    &Deposits{core: c, accounts: accounts},
		Market:      &Market{core: c, accounts: accounts},
		Promos:      &Promos{core: c, accounts: accounts},
		Settings:    &SettingsService{core: c},
		core:        c,
	}, nil
}

func (e *Engine) Logger() *slog.Logger { return e.core.log }

// Admin is the capability required by privileged operations. The zero value
// grants nothing; obtain one from AdminSet.Authorize.
type Admin struct {
	id    int64
	valid bool
}

func (a Admin) ID() int64 { return a.id }

func (a Admin) check() error {
	if !a.valid {
		return ErrUnauthorized
	}
	return nil
}

// AdminSet is the externally configured list of administrator ids.
type AdminSet struct {
	ids map[int64]bool
}

func NewAdminSet(ids ...int64) AdminSet {
	set := AdminSet{ids: make(map[int64]bool, len(ids))}
	for _, id := range ids {
		set.ids[id] = true
	}
	return set
}

func (s AdminSet) Authorize(id int64) (Admin, error) {
	if !s.ids[id] {
		return Admin{}, fmt.Errorf("%w: %d is not an administrator", ErrUnauthorized, id)
	}
	return Admin{id: id, valid: true}, nil
}

// IDs lists the configured administrators.
func (s AdminSet) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
