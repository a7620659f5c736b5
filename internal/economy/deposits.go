package economy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"casebank/internal/ledger"

	"github.com/shopspring/decimal"
)

const periodLayout = "2006-01"

var hundred = decimal.NewFromInt(100)

type Deposits struct {
	*core
	accounts *Accounts
}

func monthlyProfit(amount, percent decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(percent).Div(hundred))
}

// Deposit moves amount from the balance to the deposit. The returned
// MonthlyProfit is a projection only.
func (d *Deposits) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (DepositResult, error) {
	amount = Round2(amount)
	if !amount.IsPositive() {
		return DepositResult{}, invalidf("amount must be > 0")
	}
	var out DepositResult
	err := d.update(ctx, []lockKey{accountLock(userID)}, func(tx ledger.Tx) error {
		settings, err := loadSettings(tx)
		if err != nil {
			return err
		}
		if !settings.DepositEnabled {
			return ErrDepositsDisabled
		}
		if amount.LessThan(settings.MinDepositAmount) {
			return fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, settings.MinDepositAmount.StringFixed(2))
		}
		if _, err := d.accounts.AdjustBalance(tx, userID, amount.Neg()); err != nil {
			return err
		}
		if _, err := d.accounts.AdjustDeposit(tx, userID, amount); err != nil {
			return err
		}
		acct, err := d.accounts.RecordDepositEntry(tx, userID, amount, DepositKindDeposit, "")
		if err != nil {
			return err
		}
		out = DepositResult{
			Amount:         amount,
			Balance:        acct.Balance,
			DepositBalance: acct.DepositBalance,
			MonthlyProfit:  monthlyProfit(amount, settings.DepositPercent),
			Percent:        settings.DepositPercent,
		}
		return nil
	})
	return out, err
}

func (d *Deposits) WithdrawFromDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (DepositResult, error) {
	amount = Round2(amount)
	if !amount.IsPositive() {
		return DepositResult{}, invalidf("amount must be > 0")
	}
	var out DepositResult
	err := d.update(ctx, []lockKey{accountLock(userID)}, func(tx ledger.Tx) error {
		settings, err := loadSettings(tx)
		if err != nil {
			return err
		}
		if _, err := d.accounts.AdjustDeposit(tx, userID, amount.Neg()); err != nil {
			return err
		}
		if _, err := d.accounts.AdjustBalance(tx, userID, amount); err != nil {
			return err
		}
		acct, err := d.accounts.RecordDepositEntry(tx, userID, amount, DepositKindWithdraw, "")
		if err != nil {
			return err
		}
		out = DepositResult{
			Amount:         amount,
			Balance:        acct.Balance,
			DepositBalance: acct.DepositBalance,
			MonthlyProfit:  monthlyProfit(acct.DepositBalance, settings.DepositPercent),
			Percent:        settings.DepositPercent,
		}
		return nil
	})
	return out, err
}

// CurrentPeriod is the accrual period id for the engine clock.
func (d *Deposits) CurrentPeriod() string {
	return d.now().Format(periodLayout)
}

// ValidatePeriod reports whether period is a YYYY-MM accrual period id.
func ValidatePeriod(period string) error {
	t, err := time.Parse(periodLayout, period)
	if err != nil || t.Format(periodLayout) != period {
		return invalidf("period %q must be YYYY-MM", period)
	}
	return nil
}

// AccrueAll credits one period of compound interest to every account with a
// deposit. Each account is locked and committed on its own. An account whose
// last accrual is at or after period is skipped, so an interrupted run can be
// repeated safely even after later periods have run. Cancellation is checked
// between accounts.
func (d *Deposits) AccrueAll(ctx context.Context, period string) (AccrualResult, error) {
	if period == "" {
		period = d.CurrentPeriod()
	}
	if err := ValidatePeriod(period); err != nil {
		return AccrualResult{Period: period, TotalProfit: decimal.Zero}, err
	}
	out := AccrualResult{Period: period, TotalProfit: decimal.Zero}

	var keys []string
	var settings Settings
	err := d.view(ctx, func(tx ledger.Tx) error {
		var err error
		if settings, err = loadSettings(tx); err != nil {
			return err
		}
		keys, err = tx.Keys(ledger.TableAccounts)
		return err
	})
	if err != nil {
		return out, err
	}
	if !settings.DepositPercent.IsPositive() {
		d.log.Warn("accrual skipped, deposit percent is not positive", "period", period)
		return out, nil
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			d.log.Warn("skipping malformed account key", "key", key)
			continue
		}
		var profit decimal.Decimal
		err = d.update(ctx, []lockKey{accountLock(userID)}, func(tx ledger.Tx) error {
			profit = decimal.Zero
			acct, err := loadAccount(tx, userID)
			if err != nil {
				return err
			}
			// Period ids are fixed-width YYYY-MM, so string order is time order.
			if !acct.DepositBalance.IsPositive() || period <= acct.LastAccrualPeriod {
				return nil
			}
			p := monthlyProfit(acct.DepositBalance, settings.DepositPercent)
			if !p.IsPositive() {
				return nil
			}
			acct, err = d.accounts.CreditProfit(tx, userID, p, period)
			if err != nil {
				return err
			}
			profit = p
			return appendOutbox(tx, d.now(), AudienceUser, userID, fmt.Sprintf(
				"Deposit interest for %s: +%s atm at %s%%. Deposit balance: %s atm.",
				period, p.StringFixed(2), settings.DepositPercent.String(), acct.DepositBalance.StringFixed(2),
			))
		})
		if err != nil {
			d.log.Error("accrual failed", "user_id", userID, "period", period, "err", err)
			return out, err
		}
		if profit.IsPositive() {
			out.Accounts++
			out.TotalProfit = out.TotalProfit.Add(profit)
		} else {
			out.Skipped++
		}
	}
	d.log.Info("interest accrued", "period", period, "accounts", out.Accounts, "total_profit", out.TotalProfit.String())
	return out, nil
}

func (d *Deposits) Info(ctx context.Context, userID int64) (DepositInfo, error) {
	var out DepositInfo
	err := d.view(ctx, func(tx ledger.Tx) error {
		settings, err := loadSettings(tx)
		if err != nil {
			return err
		}
		acct, err := loadAccount(tx, userID)
		if err != nil {
			return err
		}
		out = DepositInfo{
			DepositBalance:  acct.DepositBalance,
			MonthlyProfit:   monthlyProfit(acct.DepositBalance, settings.DepositPercent),
			TotalDeposited:  acct.TotalDeposited,
			TotalWithdrawn:  acct.TotalWithdrawnFromDeposit,
			DepositProfit:   acct.DepositProfit,
			Percent:         settings.DepositPercent,
			MinAmount:       settings.MinDepositAmount,
			Enabled:         settings.DepositEnabled,
			LastAccrualTerm: acct.LastAccrualPeriod,
		}
		return nil
	})
	return out, err
}
