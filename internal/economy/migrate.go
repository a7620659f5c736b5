package economy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"casebank/internal/ledger"

	"github.com/google/uuid"
)

type MigrationReport struct {
	Accounts int `json:"accounts"`
	Promos   int `json:"promos"`
	Cases    int `json:"cases"`
}

// Prepare is the startup step shared by every process that opens a store:
// records are migrated first, then empty catalogs are seeded when seed is set.
func (e *Engine) Prepare(ctx context.Context, seed bool) (MigrationReport, error) {
	report, err := e.Migrate(ctx)
	if err != nil {
		return report, fmt.Errorf("migrate records: %w", err)
	}
	if seed {
		if err := e.SeedDefaults(ctx); err != nil {
			return report, fmt.Errorf("seed defaults: %w", err)
		}
	}
	return report, nil
}

// Migrate upgrades stored records to the current schema. It runs once at
// startup before the engine serves requests and is safe to rerun.
//
// Pending withdrawals decide which items are locked, and promo usedBy lists
// decide which codes an account has used.
func (e *Engine) Migrate(ctx context.Context) (MigrationReport, error) {
	c := e.core
	var report MigrationReport

	var promoKeys, caseKeys, accountKeys []string
	var withdrawals []WithdrawalRequest
	err := c.view(ctx, func(tx ledger.Tx) error {
		var err error
		if promoKeys, err = tx.Keys(ledger.TablePromos); err != nil {
			return err
		}
		if caseKeys, err = tx.Keys(ledger.TableCases); err != nil {
			return err
		}
		if accountKeys, err = tx.Keys(ledger.TableAccounts); err != nil {
			return err
		}
		withdrawals, err = listJSON[WithdrawalRequest](tx, ledger.TableWithdrawals)
		return err
	})
	if err != nil {
		return report, err
	}

	usedBy := make(map[int64][]string)
	knownCodes := make(map[string]bool, len(promoKeys))
	for _, key := range promoKeys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var changed bool
		var promo PromoCode
		err := c.update(ctx, []lockKey{promoLock(key)}, func(tx ledger.Tx) error {
			var err error
			promo, err = loadPromo(tx, key)
			if err != nil {
				return err
			}
			before := promo
			before.UsedBy = append(promo.UsedBy[:0:0], promo.UsedBy...)
			migratePromo(&promo, key)
			if changed = !sameJSON(before, promo); changed {
				return savePromo(tx, promo)
			}
			return nil
		})
		if err != nil {
			return report, err
		}
		if changed {
			report.Promos++
		}
		knownCodes[promo.Code] = true
		for _, id := range promo.UsedBy {
			usedBy[id] = append(usedBy[id], promo.Code)
		}
	}

	for _, key := range caseKeys {
		var changed bool
		err := c.update(ctx, []lockKey{caseLock(key)}, func(tx ledger.Tx) error {
			cs, err := loadCase(tx, key)
			if err != nil {
				return err
			}
			before := cs
			if cs.IsLimited {
				if cs.OpensLeft < 0 {
					cs.OpensLeft = 0
				}
				if cs.MaxOpens < cs.OpensLeft {
					cs.MaxOpens = cs.OpensLeft
				}
			}
			for i := range cs.Rewards {
				if !cs.Rewards[i].Rarity.Valid() {
					cs.Rewards[i].Rarity = RarityCommon
				}
			}
			if changed = !sameJSON(before, cs); changed {
				return saveCase(tx, cs)
			}
			return nil
		})
		if err != nil {
			return report, err
		}
		if changed {
			report.Cases++
		}
	}

	pendingItems := make(map[int64]map[string]bool)
	for _, w := range withdrawals {
		if w.Status != WithdrawalPending {
			continue
		}
		if pendingItems[w.UserID] == nil {
			pendingItems[w.UserID] = make(map[string]bool)
		}
		pendingItems[w.UserID][w.ItemID] = true
	}

	for _, key := range accountKeys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			c.log.Warn("skipping malformed account key", "key", key)
			continue
		}
		var changed bool
		err = c.update(ctx, []lockKey{accountLock(id)}, func(tx ledger.Tx) error {
			body, err := tx.Get(ledger.TableAccounts, key)
			if err != nil {
				return err
			}
			var before, acct Account
			if err := json.Unmarshal(body, &before); err != nil {
				return err
			}
			if err := json.Unmarshal(body, &acct); err != nil {
				return err
			}
			migrateAccount(&acct, id, c.now(), pendingItems[id], usedBy[id], knownCodes)
			if changed = !sameJSON(before, acct); changed {
				return saveAccount(tx, acct)
			}
			return nil
		})
		if err != nil {
			return report, err
		}
		if changed {
			report.Accounts++
		}
	}

	if report.Accounts+report.Promos+report.Cases > 0 {
		c.log.Info("records migrated", "accounts", report.Accounts, "promos", report.Promos, "cases", report.Cases)
	}
	return report, nil
}

func migratePromo(p *PromoCode, key string) {
	p.Code = key
	if p.UsedBy == nil {
		p.UsedBy = []int64{}
	}
	seen := make(map[int64]bool, len(p.UsedBy))
	ids := p.UsedBy[:0]
	for _, id := range p.UsedBy {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	p.UsedBy = ids
	sortIDs(p.UsedBy)
	if p.UsedCount < int64(len(p.UsedBy)) {
		p.UsedCount = int64(len(p.UsedBy))
	}
}

func migrateAccount(acct *Account, id int64, now time.Time, locked map[string]bool, codes []string, knownCodes map[string]bool) {
	acct.ID = id
	normalizeAccountMaps(acct)
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	if acct.Inventory == nil {
		acct.Inventory = []Item{}
	}

	seen := make(map[string]bool, len(acct.Inventory))
	var onWithdrawal []string
	for i := range acct.Inventory {
		item := &acct.Inventory[i]
		if item.ItemID == "" || seen[item.ItemID] {
			item.ItemID = uuid.NewString()
		}
		seen[item.ItemID] = true
		if item.Name == "" {
			item.Name = item.SourceItemID
		}
		if item.Name == "" {
			item.Name = "Unknown item"
		}
		if !item.Rarity.Valid() {
			item.Rarity = RarityCommon
		}
		if item.AcquiredAt.IsZero() {
			item.AcquiredAt = acct.CreatedAt
		}
		item.OnWithdrawal = locked[item.ItemID]
		if item.OnWithdrawal {
			onWithdrawal = addString(onWithdrawal, item.ItemID)
		}
	}
	if onWithdrawal == nil {
		onWithdrawal = []string{}
	}
	acct.ItemsOnWithdrawal = onWithdrawal

	used := []string{}
	for _, code := range acct.UsedPromoCodes {
		code = NormalizeCode(code)
		if code != "" && !knownCodes[code] {
			used = addString(used, code)
		}
	}
	for _, code := range codes {
		used = addString(used, code)
	}
	acct.UsedPromoCodes = used
	acct.SchemaVersion = SchemaVersion
}

func sameJSON(a, b any) bool {
	x, err1 := json.Marshal(a)
	y, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(x, y)
}
