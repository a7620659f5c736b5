package economy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDepositRoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	fundedAccount(t, e, 1, "500")

	res, err := e.Deposits.Deposit(ctx, 1, dec("200"))
	require.NoError(t, err)
	requireDec(t, "300", res.Balance)
	requireDec(t, "200", res.DepositBalance)
	requireDec(t, "10", res.MonthlyProfit)

	res, err = e.Deposits.WithdrawFromDeposit(ctx, 1, dec("200"))
	require.NoError(t, err)
	requireDec(t, "500", res.Balance)
	requireDec(t, "0", res.DepositBalance)

	acct, _ := e.Accounts.Get(ctx, 1)
	require.Len(t, acct.DepositHistory, 2)
	require.Equal(t, DepositKindDeposit, acct.DepositHistory[0].Kind)
	require.Equal(t, DepositKindWithdraw, acct.DepositHistory[1].Kind)
	requireDec(t, "200", acct.TotalDeposited)
	requireDec(t, "200", acct.TotalWithdrawnFromDeposit)

	history, err := e.Accounts.DepositHistory(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, DepositKindWithdraw, history[0].Kind)
}

func TestDepositRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newTestEngine(t, nil)
		ctx := context.Background()
		cents := rapid.Int64Range(5_000, 1_000_000).Draw(rt, "balanceCents")
		balance := decimal.New(cents, -2)
		fundedAccount(t, e, 1, balance.String())
		amount := decimal.New(rapid.Int64Range(5_000, cents).Draw(rt, "amountCents"), -2)

		if _, err := e.Deposits.Deposit(ctx, 1, amount); err != nil {
			rt.Fatalf("deposit %s: %v", amount, err)
		}
		res, err := e.Deposits.WithdrawFromDeposit(ctx, 1, amount)
		if err != nil {
			rt.Fatalf("withdraw %s: %v", amount, err)
		}
		if !res.Balance.Equal(balance) || !res.DepositBalance.IsZero() {
			rt.Fatalf("round trip changed balances: %s / %s", res.Balance, res.DepositBalance)
		}
	})
}

func TestDepositPreconditions(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	fundedAccount(t, e, 1, "100")

	_, err := e.Deposits.Deposit(ctx, 1, dec("49.99"))
	require.ErrorIs(t, err, ErrBelowMinimum)
	_, err = e.Deposits.Deposit(ctx, 1, dec("150"))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = e.Deposits.Deposit(ctx, 1, dec("-5"))
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Deposits.WithdrawFromDeposit(ctx, 1, dec("1"))
	require.ErrorIs(t, err, ErrInsufficientDeposit)

	disabled := false
	_, err = e.Settings.Update(ctx, testAdmin(t), SettingsPatch{DepositEnabled: &disabled})
	require.NoError(t, err)
	_, err = e.Deposits.Deposit(ctx, 1, dec("60"))
	require.ErrorIs(t, err, ErrDepositsDisabled)

	acct, _ := e.Accounts.Get(ctx, 1)
	requireDec(t, "100", acct.Balance)
	require.Empty(t, acct.DepositHistory)
}

func TestAccrueAllCompoundsOncePerPeriod(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	fundedAccount(t, e, 1, "1000")
	fundedAccount(t, e, 2, "10")
	_, err := e.Deposits.Deposit(ctx, 1, dec("1000"))
	require.NoError(t, err)

	res, err := e.Deposits.AccrueAll(ctx, "2026-03")
	require.NoError(t, err)
	require.Equal(t, 1, res.Accounts)
	require.Equal(t, 1, res.Skipped)
	requireDec(t, "50", res.TotalProfit)

	acct, _ := e.Accounts.Get(ctx, 1)
	requireDec(t, "1050", acct.DepositBalance)
	requireDec(t, "50", acct.DepositProfit)
	requireDec(t, "1000", acct.TotalDeposited)
	require.Equal(t, "2026-03", acct.LastAccrualPeriod)
	last := acct.DepositHistory[len(acct.DepositHistory)-1]
	require.Equal(t, DepositKindProfit, last.Kind)
	require.Equal(t, "2026-03", last.Period)

	rerun, err := e.Deposits.AccrueAll(ctx, "2026-03")
	require.NoError(t, err)
	require.Zero(t, rerun.Accounts)
	acct, _ = e.Accounts.Get(ctx, 1)
	requireDec(t, "1050", acct.DepositBalance)

	_, err = e.Deposits.AccrueAll(ctx, "2026-04")
	require.NoError(t, err)
	acct, _ = e.Accounts.Get(ctx, 1)
	requireDec(t, "1102.5", acct.DepositBalance)
	requireDec(t, "102.5", acct.DepositProfit)

	var profitMsgs int
	for _, m := range outboxMessages(t, e) {
		if m.UserID == 1 {
			profitMsgs++
		}
	}
	require.Equal(t, 2, profitMsgs)
}

func TestAccrueAllNeverRevisitsEarlierPeriods(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	fundedAccount(t, e, 1, "1000")
	_, err := e.Deposits.Deposit(ctx, 1, dec("1000"))
	require.NoError(t, err)

	steps := []struct {
		period   string
		credited int
		balance  string
	}{
		{"2026-03", 1, "1050"},
		{"2026-04", 1, "1102.5"},
		{"2026-03", 0, "1102.5"},
		{"2026-04", 0, "1102.5"},
		{"2025-12", 0, "1102.5"},
	}
	for _, step := range steps {
		res, err := e.Deposits.AccrueAll(ctx, step.period)
		require.NoError(t, err, step.period)
		require.Equal(t, step.credited, res.Accounts, step.period)
		acct, _ := e.Accounts.Get(ctx, 1)
		requireDec(t, step.balance, acct.DepositBalance)
	}

	for _, bad := range []string{"bogus", "2026-4", "2026-13", "2026-04-01", " 2026-05"} {
		_, err := e.Deposits.AccrueAll(ctx, bad)
		require.ErrorIs(t, err, ErrValidation, bad)
	}
	acct, _ := e.Accounts.Get(ctx, 1)
	requireDec(t, "1102.5", acct.DepositBalance)
	require.Equal(t, "2026-04", acct.LastAccrualPeriod)
}

func TestAccrueAllDefaultsToCurrentPeriod(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	fundedAccount(t, e, 1, "100")
	_, err := e.Deposits.Deposit(ctx, 1, dec("100"))
	require.NoError(t, err)

	res, err := e.Deposits.AccrueAll(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "2026-03", res.Period)
}

func TestAccrueAllStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, nil)
	fundedAccount(t, e, 1, "100")
	_, err := e.Deposits.Deposit(context.Background(), 1, dec("100"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Deposits.AccrueAll(ctx, "2026-03")
	require.ErrorIs(t, err, context.Canceled)

	acct, _ := e.Accounts.Get(context.Background(), 1)
	requireDec(t, "100", acct.DepositBalance)
}

func TestDepositInfo(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	fundedAccount(t, e, 1, "300")
	_, err := e.Deposits.Deposit(ctx, 1, dec("300"))
	require.NoError(t, err)

	info, err := e.Deposits.Info(ctx, 1)
	require.NoError(t, err)
	requireDec(t, "300", info.DepositBalance)
	requireDec(t, "15", info.MonthlyProfit)
	requireDec(t, "5", info.Percent)
	requireDec(t, "50", info.MinAmount)
	require.True(t, info.Enabled)
}

func TestSettingsUpdate(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	s, err := e.Settings.Get(ctx)
	require.NoError(t, err)
	requireDec(t, "5", s.DepositPercent)

	pct := dec("7.5")
	s, err = e.Settings.Update(ctx, testAdmin(t), SettingsPatch{DepositPercent: &pct})
	require.NoError(t, err)
	requireDec(t, "7.5", s.DepositPercent)
	requireDec(t, "50", s.MinDepositAmount)
	require.Equal(t, testAdminID, s.UpdatedBy)

	bad := dec("101")
	_, err = e.Settings.Update(ctx, testAdmin(t), SettingsPatch{DepositPercent: &bad})
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Settings.Update(ctx, Admin{}, SettingsPatch{DepositPercent: &pct})
	require.ErrorIs(t, err, ErrUnauthorized)
}
