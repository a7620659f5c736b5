package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"casebank/internal/economy"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptDefault(label, defaultValue string) (string, error) {
	fmt.Printf("%s [%s]: ", label, defaultValue)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return defaultValue, nil
	}
	return text, nil
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err == nil && v >= min {
			return v, nil
		}
		printWarn(fmt.Sprintf("%s must be an integer >= %d.", label, min))
	}
}

func renderWithdrawals(rows []economy.WithdrawalRequest) {
	accent.Println("\n== PENDING WITHDRAWALS ==")
	if len(rows) == 0 {
		printInfo("Nothing waiting for review.")
		return
	}
	fmt.Printf("%-22s %-12s %-22s %-10s %10s  %s\n", "ID", "USER", "ITEM", "RARITY", "VALUE", "CONTACT")
	for _, w := range rows {
		fmt.Printf("%-22s %-12d %-22s %-10s %10s  %s\n",
			w.ID,
			w.UserID,
			truncate(w.ItemSnapshot.Name, 22),
			w.ItemSnapshot.Rarity,
			formatAmount(w.Value),
			truncate(w.ContactInfo, 32),
		)
	}
	fmt.Println()
}

func renderWithdrawal(w economy.WithdrawalRequest) {
	status := string(w.Status)
	switch w.Status {
	case economy.WithdrawalApproved:
		status = success.Sprint(status)
	case economy.WithdrawalRejected:
		status = danger.Sprint(status)
	}
	fmt.Printf("Request %s for user %d: %s\n", w.ID, w.UserID, status)
	fmt.Printf("Item: %s (%s)\n", w.ItemSnapshot.Name, w.ItemSnapshot.Rarity)
	if w.Value.IsPositive() {
		fmt.Printf("Credited value: %s atm\n", formatAmount(w.Value))
	}
	if w.Notes != "" {
		fmt.Printf("Notes: %s\n", w.Notes)
	}
}

func renderPromos(rows []economy.PromoCode) {
	accent.Println("\n== PROMO CODES ==")
	if len(rows) == 0 {
		printInfo("No promo codes.")
		return
	}
	fmt.Printf("%-16s %10s %10s %-8s\n", "CODE", "AMOUNT", "USES", "ACTIVE")
	for _, p := range rows {
		active := success.Sprint("yes")
		if !p.IsActive {
			active = danger.Sprint("no")
		}
		fmt.Printf("%-16s %10s %10s %-8s\n", p.Code, formatAmount(p.Amount), fmt.Sprintf("%d/%d", p.UsedCount, p.MaxUses), active)
	}
	fmt.Println()
}

func renderSettings(s economy.Settings) {
	accent.Println("\n== DEPOSIT SETTINGS ==")
	fmt.Printf("Monthly percent: %s%%\n", s.DepositPercent.String())
	fmt.Printf("Minimum deposit: %s atm\n", formatAmount(s.MinDepositAmount))
	fmt.Printf("Deposits enabled: %t\n", s.DepositEnabled)
	if !s.UpdatedAt.IsZero() {
		fmt.Printf("Updated: %s by %d\n", s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.UpdatedBy)
	}
	fmt.Println()
}

func renderStocks(rows []economy.Stock) {
	accent.Println("\n== STOCK MARKET ==")
	if len(rows) == 0 {
		printInfo("No stocks found.")
		return
	}
	fmt.Printf("%-8s %-24s %12s %10s %10s\n", "SYMBOL", "NAME", "PRICE", "CHANGE", "FREE")
	for _, s := range rows {
		fmt.Printf("%-8s %-24s %12s %10s %10s\n",
			s.Symbol,
			truncate(s.Name, 24),
			formatAmount(s.Price),
			colorizePercent(s.LastChangePercent),
			comma(s.SharesAvailable),
		)
	}
	fmt.Println()
}

func renderCases(rows []economy.Case) {
	accent.Println("\n== CASES ==")
	if len(rows) == 0 {
		printInfo("No cases.")
		return
	}
	fmt.Printf("%-22s %-24s %8s %10s %8s\n", "ID", "NAME", "PRICE", "LEFT", "OPENED")
	for _, c := range rows {
		left := "∞"
		if c.IsLimited {
			left = fmt.Sprintf("%d/%d", c.OpensLeft, c.MaxOpens)
			if c.OpensLeft == 0 {
				left = danger.Sprint(left)
			}
		}
		fmt.Printf("%-22s %-24s %8s %10s %8d\n", c.ID, truncate(c.Name, 24), formatAmount(c.Price), left, c.TotalOpens)
	}
	fmt.Println()
}

func renderStats(s economy.Stats) {
	accent.Println("\n== ECONOMY STATS ==")
	fmt.Printf("Users:          %d\n", s.Users)
	fmt.Printf("Total balance:  %s atm\n", formatAmount(s.TotalBalance))
	fmt.Printf("Total deposits: %s atm\n", formatAmount(s.TotalDeposits))
	fmt.Printf("Cases opened:   %d\n", s.CasesOpened)
	fmt.Printf("Promo codes:    %d (%d active)\n", s.PromoCodes, s.ActivePromoCodes)

	statuses := make([]string, 0, len(s.Withdrawals))
	for status := range s.Withdrawals {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("Withdrawals %-9s %d\n", status+":", s.Withdrawals[economy.WithdrawalStatus(status)])
	}

	if len(s.CaseOpens) > 0 {
		fmt.Println()
		accent.Println("Opens per case")
		ids := make([]string, 0, len(s.CaseOpens))
		for id := range s.CaseOpens {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-22s %d\n", id, s.CaseOpens[id])
		}
	}
	fmt.Println()
}

func renderLeaderboard(rows []economy.LeaderboardEntry) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s %8s\n", "RANK", "PLAYER", "CAPITAL", "CASES")
	for i, row := range rows {
		name := row.Username
		if name == "" {
			name = strconv.FormatInt(row.UserID, 10)
		}
		fmt.Printf("%-6d %-18s %14s %8d\n", i+1, truncate(name, 18), formatAmount(row.Capital), row.CasesOpened)
	}
	fmt.Println()
}

func colorizePercent(v decimal.Decimal) string {
	text := v.StringFixed(2) + "%"
	switch v.Sign() {
	case 1:
		return success.Sprint("+" + text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

// formatAmount renders a currency amount with thousands separators.
func formatAmount(v decimal.Decimal) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	fixed := v.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + fixed
	}
	return sign + comma(n) + "." + frac
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
