package economy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"casebank/internal/ledger"

	"github.com/shopspring/decimal"
)

// Accounts owns every Account mutation. The transactional helpers take the
// caller's ledger.Tx and assume the caller holds the account lock.
type Accounts struct {
	*core
}

func (a *Accounts) mutate(tx ledger.Tx, id int64, fn func(*Account) error) (Account, error) {
	acct, err := loadAccount(tx, id)
	if err != nil {
		return acct, err
	}
	if err := fn(&acct); err != nil {
		return acct, err
	}
	if acct.Balance.IsNegative() || acct.DepositBalance.IsNegative() {
		a.log.Error("account went negative", "user_id", id, "balance", acct.Balance.String(), "deposit", acct.DepositBalance.String())
		return acct, fmt.Errorf("%w: account %d would go negative", ErrConsistency, id)
	}
	return acct, saveAccount(tx, acct)
}

func (a *Accounts) AdjustBalance(tx ledger.Tx, id int64, delta decimal.Decimal) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		next := Round2(acct.Balance.Add(delta))
		if next.IsNegative() {
			return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, acct.Balance.StringFixed(2), delta.Neg().StringFixed(2))
		}
		acct.Balance = next
		return nil
	})
}

// AdjustDeposit moves the deposit balance and tracks lifetime totals.
func (a *Accounts) AdjustDeposit(tx ledger.Tx, id int64, delta decimal.Decimal) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		next := Round2(acct.DepositBalance.Add(delta))
		if next.IsNegative() {
			return fmt.Errorf("%w: deposit %s, need %s", ErrInsufficientDeposit, acct.DepositBalance.StringFixed(2), delta.Neg().StringFixed(2))
		}
		acct.DepositBalance = next
		switch {
		case delta.IsPositive():
			acct.TotalDeposited = Round2(acct.TotalDeposited.Add(delta))
		case delta.IsNegative():
			acct.TotalWithdrawnFromDeposit = Round2(acct.TotalWithdrawnFromDeposit.Sub(delta))
		}
		return nil
	})
}

func (a *Accounts) RecordDepositEntry(tx ledger.Tx, id int64, amount decimal.Decimal, kind DepositKind, period string) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		acct.DepositHistory = append(acct.DepositHistory, DepositEntry{
			Amount:         Round2(amount),
			Kind:           kind,
			At:             a.now(),
			DepositBalance: acct.DepositBalance,
			Period:         period,
		})
		return nil
	})
}

// CreditProfit compounds interest into the deposit and stamps the period.
func (a *Accounts) CreditProfit(tx ledger.Tx, id int64, profit decimal.Decimal, period string) (Account, error) {
	if _, err := a.mutate(tx, id, func(acct *Account) error {
		acct.DepositBalance = Round2(acct.DepositBalance.Add(profit))
		acct.DepositProfit = Round2(acct.DepositProfit.Add(profit))
		acct.LastAccrualPeriod = period
		return nil
	}); err != nil {
		return Account{}, err
	}
	return a.RecordDepositEntry(tx, id, profit, DepositKindProfit, period)
}

func (a *Accounts) AddItem(tx ledger.Tx, id int64, item Item) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		if item.ItemID == "" || acct.FindItem(item.ItemID) >= 0 {
			return fmt.Errorf("%w: duplicate item id %q", ErrConsistency, item.ItemID)
		}
		item.OnWithdrawal = false
		acct.Inventory = append(acct.Inventory, item)
		return nil
	})
}

// RemoveItem drops an unlocked item and returns it.
func (a *Accounts) RemoveItem(tx ledger.Tx, id int64, itemID string) (Item, error) {
	var removed Item
	_, err := a.mutate(tx, id, func(acct *Account) error {
		idx := acct.FindItem(itemID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		if acct.Inventory[idx].OnWithdrawal || containsString(acct.ItemsOnWithdrawal, itemID) {
			return fmt.Errorf("%w: %s", ErrItemLocked, itemID)
		}
		removed = acct.Inventory[idx]
		acct.Inventory = append(acct.Inventory[:idx], acct.Inventory[idx+1:]...)
		return nil
	})
	return removed, err
}

// LockItem marks an item as on withdrawal. Locking a locked item is a no-op.
func (a *Accounts) LockItem(tx ledger.Tx, id int64, itemID string) (Account, error) {
	return a.setItemLock(tx, id, itemID, true)
}

func (a *Accounts) UnlockItem(tx ledger.Tx, id int64, itemID string) (Account, error) {
	return a.setItemLock(tx, id, itemID, false)
}

func (a *Accounts) setItemLock(tx ledger.Tx, id int64, itemID string, locked bool) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		idx := acct.FindItem(itemID)
		if idx < 0 {
			if !locked {
				acct.ItemsOnWithdrawal = removeString(acct.ItemsOnWithdrawal, itemID)
				return nil
			}
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		acct.Inventory[idx].OnWithdrawal = locked
		if locked {
			acct.ItemsOnWithdrawal = addString(acct.ItemsOnWithdrawal, itemID)
		} else {
			acct.ItemsOnWithdrawal = removeString(acct.ItemsOnWithdrawal, itemID)
		}
		return nil
	})
}

func (a *Accounts) MarkPromoUsed(tx ledger.Tx, id int64, code string) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		acct.UsedPromoCodes = addString(acct.UsedPromoCodes, code)
		return nil
	})
}

func (a *Accounts) RecordCaseOpen(tx ledger.Tx, id int64, caseID string) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		acct.CasesOpened++
		acct.OpenedCases[caseID]++
		return nil
	})
}

func (a *Accounts) RecordWithdrawalRequest(tx ledger.Tx, id int64) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		acct.WithdrawalsCount++
		return nil
	})
}

func (a *Accounts) AddTotalWithdrawn(tx ledger.Tx, id int64, value decimal.Decimal) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		acct.TotalWithdrawn = Round2(acct.TotalWithdrawn.Add(value))
		return nil
	})
}

// AdjustHolding changes a stock position; a position that reaches zero is removed.
func (a *Accounts) AdjustHolding(tx ledger.Tx, id int64, symbol string, delta int64) (Account, error) {
	return a.mutate(tx, id, func(acct *Account) error {
		next := acct.StockHoldings[symbol] + delta
		if next < 0 {
			return fmt.Errorf("%w: holding %d %s, need %d", ErrInsufficientHolding, acct.StockHoldings[symbol], symbol, -delta)
		}
		if next == 0 {
			delete(acct.StockHoldings, symbol)
			return nil
		}
		acct.StockHoldings[symbol] = next
		return nil
	})
}

// Ensure creates the account on first contact and keeps the username current.
func (a *Accounts) Ensure(ctx context.Context, id int64, username string) (Account, error) {
	if id <= 0 {
		return Account{}, invalidf("user id must be > 0")
	}
	username = strings.TrimSpace(username)
	var out Account
	err := a.update(ctx, []lockKey{accountLock(id)}, func(tx ledger.Tx) error {
		acct, err := loadAccount(tx, id)
		if err == nil {
			if username == "" || username == acct.Username {
				out = acct
				return nil
			}
			acct.Username = username
			out = acct
			return saveAccount(tx, acct)
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		out = newAccount(id, username, a.now())
		a.log.Info("account created", "user_id", id, "username", username)
		return saveAccount(tx, out)
	})
	return out, err
}

func newAccount(id int64, username string, now time.Time) Account {
	return Account{
		ID:                id,
		Username:          username,
		Inventory:         []Item{},
		ItemsOnWithdrawal: []string{},
		UsedPromoCodes:    []string{},
		OpenedCases:       map[string]int64{},
		StockHoldings:     map[string]int64{},
		CreatedAt:         now,
		SchemaVersion:     SchemaVersion,
	}
}

func (a *Accounts) Get(ctx context.Context, id int64) (Account, error) {
	var out Account
	err := a.view(ctx, func(tx ledger.Tx) error {
		acct, err := loadAccount(tx, id)
		out = acct
		return err
	})
	return out, err
}

// Credit is an admin balance adjustment. Debits fail rather than go below zero.
func (a *Accounts) Credit(ctx context.Context, admin Admin, id int64, amount decimal.Decimal) (Account, error) {
	if err := admin.check(); err != nil {
		return Account{}, err
	}
	amount = Round2(amount)
	if amount.IsZero() {
		return Account{}, invalidf("amount must not be zero")
	}
	var out Account
	err := a.update(ctx, []lockKey{accountLock(id)}, func(tx ledger.Tx) error {
		acct, err := a.AdjustBalance(tx, id, amount)
		out = acct
		return err
	})
	if err == nil {
		a.log.Info("balance credited by admin", "admin_id", admin.ID(), "user_id", id, "amount", amount.String())
	}
	return out, err
}

// DeleteItem removes an unlocked item at the user's request.
func (a *Accounts) DeleteItem(ctx context.Context, id int64, itemID string) (Item, error) {
	var out Item
	err := a.update(ctx, []lockKey{accountLock(id)}, func(tx ledger.Tx) error {
		item, err := a.RemoveItem(tx, id, itemID)
		out = item
		return err
	})
	return out, err
}

// DepositHistory returns up to limit entries, newest first.
func (a *Accounts) DepositHistory(ctx context.Context, id int64, limit int) ([]DepositEntry, error) {
	acct, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n := len(acct.DepositHistory)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]DepositEntry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, acct.DepositHistory[i])
	}
	return out, nil
}

func containsString(set []string, v string) bool {
	i := sort.SearchStrings(set, v)
	return i < len(set) && set[i] == v
}

func addString(set []string, v string) []string {
	i := sort.SearchStrings(set, v)
	if i < len(set) && set[i] == v {
		return set
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = v
	return set
}

func removeString(set []string, v string) []string {
	i := sort.SearchStrings(set, v)
	if i < len(set) && set[i] == v {
		return append(set[:i], set[i+1:]...)
	}
	return set
}
