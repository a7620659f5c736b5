package economy

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID                        int64            `json:"id"`
	Username                  string           `json:"username"`
	Balance                   decimal.Decimal  `json:"balance"`
	DepositBalance            decimal.Decimal  `json:"deposit_balance"`
	TotalDeposited            decimal.Decimal  `json:"total_deposited"`
	TotalWithdrawnFromDeposit decimal.Decimal  `json:"total_withdrawn_from_deposit"`
	DepositProfit             decimal.Decimal  `json:"deposit_profit"`
	Inventory                 []Item           `json:"inventory"`
	ItemsOnWithdrawal         []string         `json:"items_on_withdrawal"`
	UsedPromoCodes            []string         `json:"used_promo_codes"`
	CasesOpened               int64            `json:"cases_opened"`
	OpenedCases               map[string]int64 `json:"opened_cases"`
	WithdrawalsCount          int64            `json:"withdrawals_count"`
	TotalWithdrawn            decimal.Decimal  `json:"total_withdrawn"`
	StockHoldings             map[string]int64 `json:"stock_holdings"`
	DepositHistory            []DepositEntry   `json:"deposit_history"`
	LastAccrualPeriod         string           `json:"last_accrual_period,omitempty"`
	CreatedAt                 time.Time        `json:"created_at"`
	SchemaVersion             int              `json:"schema_version"`
}

// FindItem returns the index of itemID in the inventory, or -1.
func (a *Account) FindItem(itemID string) int {
	for i := range a.Inventory {
		if a.Inventory[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

type Item struct {
	ItemID       string    `json:"item_id"`
	SourceItemID string    `json:"source_item_id"`
	CaseID       string    `json:"case_id,omitempty"`
	Name         string    `json:"name"`
	Rarity       Rarity    `json:"rarity"`
	DropChance   float64   `json:"drop_chance"`
	OnWithdrawal bool      `json:"on_withdrawal"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

type DepositKind string

const (
	DepositKindDeposit  DepositKind = "deposit"
	DepositKindWithdraw DepositKind = "withdraw"
	DepositKindProfit   DepositKind = "profit"
)

type DepositEntry struct {
	Amount         decimal.Decimal `json:"amount"`
	Kind           DepositKind     `json:"kind"`
	At             time.Time       `json:"at"`
	DepositBalance decimal.Decimal `json:"deposit_balance"`
	Period         string          `json:"period,omitempty"`
}

type Reward struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rarity Rarity  `json:"rarity"`
	Chance float64 `json:"chance"`
}

type Case struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Rewards     []Reward        `json:"rewards"`
	IsLimited   bool            `json:"is_limited"`
	MaxOpens    int64           `json:"max_opens,omitempty"`
	OpensLeft   int64           `json:"opens_left,omitempty"`
	TotalOpens  int64           `json:"total_opens"`
}

type CanOpenResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalApproved || s == WithdrawalRejected
}

type WithdrawalRequest struct {
	ID           string           `json:"id"`
	UserID       int64            `json:"user_id"`
	ItemSnapshot Item             `json:"item_snapshot"`
	ItemID       string           `json:"item_id"`
	ContactInfo  string           `json:"contact_info"`
	Status       WithdrawalStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
	AdminID      *int64           `json:"admin_id,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Value        decimal.Decimal  `json:"value"`
}

type PromoCode struct {
	Code       string          `json:"code"`
	Amount     decimal.Decimal `json:"amount"`
	MaxUses    int64           `json:"max_uses"`
	UsedCount  int64           `json:"used_count"`
	UsedBy     []int64         `json:"used_by"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	CreatorID  int64           `json:"creator_id"`
	LastUsedAt *time.Time      `json:"last_used_at,omitempty"`
}

type Stock struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	LastChangePercent decimal.Decimal `json:"last_change_percent"`
	SharesAvailable   int64           `json:"shares_available"`
	Sector            string          `json:"sector"`
	Volatility        float64         `json:"volatility"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Settings struct {
	DepositPercent   decimal.Decimal `json:"deposit_percent"`
	MinDepositAmount decimal.Decimal `json:"min_deposit_amount"`
	DepositEnabled   bool            `json:"deposit_enabled"`
	UpdatedAt        time.Time       `json:"updated_at,omitempty"`
	UpdatedBy        int64           `json:"updated_by,omitempty"`
}

// SettingsPatch carries the fields an admin wants to change; nil means keep.
type SettingsPatch struct {
	DepositPercent   *decimal.Decimal `json:"deposit_percent,omitempty"`
	MinDepositAmount *decimal.Decimal `json:"min_deposit_amount,omitempty"`
	DepositEnabled   *bool            `json:"deposit_enabled,omitempty"`
}

type DepositResult struct {
	Amount         decimal.Decimal `json:"amount"`
	Balance        decimal.Decimal `json:"balance"`
	DepositBalance decimal.Decimal `json:"deposit_balance"`
	MonthlyProfit  decimal.Decimal `json:"monthly_profit"`
	Percent        decimal.Decimal `json:"percent"`
}

type DepositInfo struct {
	DepositBalance  decimal.Decimal `json:"deposit_balance"`
	MonthlyProfit   decimal.Decimal `json:"monthly_profit"`
	TotalDeposited  decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn  decimal.Decimal `json:"total_withdrawn"`
	DepositProfit   decimal.Decimal `json:"deposit_profit"`
	Percent         decimal.Decimal `json:"percent"`
	MinAmount       decimal.Decimal `json:"min_amount"`
	Enabled         bool            `json:"enabled"`
	LastAccrualTerm string          `json:"last_accrual_period,omitempty"`
}

type AccrualResult struct {
	Period      string          `json:"period"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	Accounts    int             `json:"accounts"`
	Skipped     int             `json:"skipped"`
}

type TradeResult struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
	Balance  decimal.Decimal `json:"balance"`
	Holding  int64           `json:"holding"`
	NewPrice decimal.Decimal `json:"new_price"`
}

type PortfolioLine struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

type Portfolio struct {
	Lines []PortfolioLine `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type RedeemResult struct {
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type LeaderboardEntry struct {
	UserID      int64           `json:"user_id"`
	Username    string          `json:"username"`
	Capital     decimal.Decimal `json:"capital"`
	CasesOpened int64           `json:"cases_opened"`
}

type Stats struct {
	Users            int                      `json:"users"`
	TotalBalance     decimal.Decimal          `json:"total_balance"`
	TotalDeposits    decimal.Decimal          `json:"total_deposits"`
	CasesOpened      int64                    `json:"cases_opened"`
	Withdrawals      map[WithdrawalStatus]int `json:"withdrawals"`
	PromoCodes       int                      `json:"promo_codes"`
	ActivePromoCodes int                      `json:"active_promo_codes"`
	CaseOpens        map[string]int64         `json:"case_opens"`
}

// Audience selects who an outbox message is delivered to.
type Audience string

const (
	AudienceUser   Audience = "user"
	AudienceAdmins Audience = "admins"
)

type OutboxMessage struct {
	ID        string    `json:"id"`
	Audience  Audience  `json:"audience"`
	UserID    int64     `json:"user_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}
