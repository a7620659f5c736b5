package economy

import (
	"context"
	"sort"

	"casebank/internal/ledger"

	"github.com/shopspring/decimal"
)

// Leaderboard ranks accounts by capital: balance, deposit and stock value.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := e.core.view(ctx, func(tx ledger.Tx) error {
		accounts, err := listJSON[Account](tx, ledger.TableAccounts)
		if err != nil {
			return err
		}
		out = make([]LeaderboardEntry, 0, len(accounts))
		for _, acct := range accounts {
			_, stockValue, err := valueHoldings(tx, acct.StockHoldings)
			if err != nil {
				return err
			}
			out = append(out, LeaderboardEntry{
				UserID:      acct.ID,
				Username:    acct.Username,
				Capital:     Round2(acct.Balance.Add(acct.DepositBalance).Add(stockValue)),
				CasesOpened: acct.CasesOpened,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Capital.Equal(out[j].Capital) {
			return out[i].Capital.GreaterThan(out[j].Capital)
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	out := Stats{
		TotalBalance:  decimal.Zero,
		TotalDeposits: decimal.Zero,
		Withdrawals:   map[WithdrawalStatus]int{},
		CaseOpens:     map[string]int64{},
	}
	err := e.core.view(ctx, func(tx ledger.Tx) error {
		accounts, err := listJSON[Account](tx, ledger.TableAccounts)
		if err != nil {
			return err
		}
		out.Users = len(accounts)
		for _, acct := range accounts {
			out.TotalBalance = out.TotalBalance.Add(acct.Balance)
			out.TotalDeposits = out.TotalDeposits.Add(acct.DepositBalance)
			out.CasesOpened += acct.CasesOpened
		}
		withdrawals, err := listJSON[WithdrawalRequest](tx, ledger.TableWithdrawals)
		if err != nil {
			return err
		}
		for _, w := range withdrawals {
			out.Withdrawals[w.Status]++
		}
		promos, err := listJSON[PromoCode](tx, ledger.TablePromos)
		if err != nil {
			return err
		}
		out.PromoCodes = len(promos)
		for _, p := range promos {
			if p.IsActive && p.UsedCount < p.MaxUses {
				out.ActivePromoCodes++
			}
		}
		cases, err := listJSON[Case](tx, ledger.TableCases)
		if err != nil {
			return err
		}
		for _, c := range cases {
			out.CaseOpens[c.ID] = c.TotalOpens
		}
		return nil
	})
	return out, err
}
