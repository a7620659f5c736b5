package economy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"casebank/internal/ledger"

	"github.com/shopspring/decimal"
)

var (
	minPrice   = decimal.New(1, -2)
	buyImpact  = decimal.RequireFromString("1.001")
	sellImpact = decimal.RequireFromString("0.999")
)

const defaultFloat = 10_000

// VolatilityScale maps a market mode to the multiplier applied to each
// stock's volatility band.
func VolatilityScale(mode string) float64 {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "calm":
		return 0.5
	case "wild":
		return 2
	default:
		return 1
	}
}

type Market struct {
	*core
	accounts *Accounts
}

func floorPrice(p decimal.Decimal) decimal.Decimal {
	p = Round2(p)
	if p.LessThan(minPrice) {
		return minPrice
	}
	return p
}

// UpdatePrices applies one random-walk step to every stock: a change drawn
// uniformly from [-volatility, +volatility] percent.
func (m *Market) UpdatePrices(ctx context.Context) ([]Stock, error) {
	var symbols []string
	if err := m.view(ctx, func(tx ledger.Tx) error {
		var err error
		symbols, err = tx.Keys(ledger.TableStocks)
		return err
	}); err != nil {
		return nil, err
	}
	keys := make([]lockKey, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, stockLock(s))
	}

	var out []Stock
	err := m.update(ctx, keys, func(tx ledger.Tx) error {
		out = out[:0]
		for _, sym := range symbols {
			st, err := loadStock(tx, sym)
			if errors.Is(err, ErrStockNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			band := st.Volatility * m.volatility
			change := (m.rand.Float64()*2 - 1) * band
			pct := decimal.NewFromFloat(change)
			st.Price = floorPrice(st.Price.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred))))
			st.LastChangePercent = Round2(pct)
			st.UpdatedAt = m.now()
			if err := saveStock(tx, st); err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("stock prices updated", "stocks", len(out))
	return out, nil
}

func (m *Market) Buy(ctx context.Context, userID int64, symbol string, qty int64) (TradeResult, error) {
	return m.trade(ctx, userID, symbol, qty, "buy")
}

func (m *Market) Sell(ctx context.Context, userID int64, symbol string, qty int64) (TradeResult, error) {
	return m.trade(ctx, userID, symbol, qty, "sell")
}

// trade executes at the pre-trade price, then nudges the price by ±0.1%.
func (m *Market) trade(ctx context.Context, userID int64, symbol string, qty int64, side string) (TradeResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if qty <= 0 {
		return TradeResult{}, invalidf("quantity must be > 0")
	}
	if err := ValidateSymbol(symbol); err != nil {
		return TradeResult{}, err
	}

	var out TradeResult
	err := m.update(ctx, []lockKey{accountLock(userID), stockLock(symbol)}, func(tx ledger.Tx) error {
		st, err := loadStock(tx, symbol)
		if err != nil {
			return err
		}
		total := Round2(st.Price.Mul(decimal.NewFromInt(qty)))
		var acct Account
		switch side {
		case "buy":
			if st.SharesAvailable < qty {
				return fmt.Errorf("%w: %d %s available", ErrInsufficientShares, st.SharesAvailable, symbol)
			}
			if acct, err = m.accounts.AdjustBalance(tx, userID, total.Neg()); err != nil {
				return err
			}
			if acct, err = m.accounts.AdjustHolding(tx, userID, symbol, qty); err != nil {
				return err
			}
			st.SharesAvailable -= qty
			out.Price = st.Price
			st.Price = floorPrice(st.Price.Mul(buyImpact))
		case "sell":
			if acct, err = m.accounts.AdjustHolding(tx, userID, symbol, -qty); err != nil {
				return err
			}
			if acct, err = m.accounts.AdjustBalance(tx, userID, total); err != nil {
				return err
			}
			st.SharesAvailable += qty
			out.Price = st.Price
			st.Price = floorPrice(st.Price.Mul(sellImpact))
		}
		st.UpdatedAt = m.now()
		if err := saveStock(tx, st); err != nil {
			return err
		}
		out.Symbol = symbol
		out.Side = side
		out.Quantity = qty
		out.Total = total
		out.Balance = acct.Balance
		out.Holding = acct.StockHoldings[symbol]
		out.NewPrice = st.Price
		return nil
	})
	if err != nil {
		return TradeResult{}, err
	}
	m.log.Info("stock trade", "user_id", userID, "side", side, "symbol", symbol, "qty", qty, "price", out.Price.String())
	return out, nil
}

// Portfolio values every holding at the current price.
func (m *Market) Portfolio(ctx context.Context, userID int64) (Portfolio, error) {
	out := Portfolio{Lines: []PortfolioLine{}, Total: decimal.Zero}
	err := m.view(ctx, func(tx ledger.Tx) error {
		acct, err := loadAccount(tx, userID)
		if err != nil {
			return err
		}
		lines, total, err := valueHoldings(tx, acct.StockHoldings)
		out.Lines, out.Total = lines, total
		return err
	})
	return out, err
}

func (m *Market) PortfolioValue(ctx context.Context, userID int64) (decimal.Decimal, error) {
	p, err := m.Portfolio(ctx, userID)
	return p.Total, err
}

func valueHoldings(tx ledger.Tx, holdings map[string]int64) ([]PortfolioLine, decimal.Decimal, error) {
	symbols := make([]string, 0, len(holdings))
	for s := range holdings {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	lines := make([]PortfolioLine, 0, len(symbols))
	total := decimal.Zero
	for _, sym := range symbols {
		shares := holdings[sym]
		if shares <= 0 {
			continue
		}
		st, err := loadStock(tx, sym)
		if errors.Is(err, ErrStockNotFound) {
			continue
		}
		if err != nil {
			return nil, total, err
		}
		value := Round2(st.Price.Mul(decimal.NewFromInt(shares)))
		lines = append(lines, PortfolioLine{Symbol: sym, Name: st.Name, Shares: shares, Price: st.Price, Value: value})
		total = total.Add(value)
	}
	return lines, Round2(total), nil
}

func (m *Market) Get(ctx context.Context, symbol string) (Stock, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var out Stock
	err := m.view(ctx, func(tx ledger.Tx) error {
		st, err := loadStock(tx, symbol)
		out = st
		return err
	})
	return out, err
}

func (m *Market) List(ctx context.Context) ([]Stock, error) {
	var out []Stock
	err := m.view(ctx, func(tx ledger.Tx) error {
		stocks, err := listJSON[Stock](tx, ledger.TableStocks)
		out = stocks
		return err
	})
	return out, err
}

// CreateStock lists a new stock. A zero volatility is drawn from [1, 3] and
// a zero float defaults to 10000 shares.
func (m *Market) CreateStock(ctx context.Context, admin Admin, in Stock) (Stock, error) {
	if err := admin.check(); err != nil {
		return Stock{}, err
	}
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateSymbol(in.Symbol); err != nil {
		return Stock{}, err
	}
	if in.Name == "" {
		return Stock{}, invalidf("stock name is required")
	}
	in.Price = Round2(in.Price)
	if !in.Price.IsPositive() {
		return Stock{}, invalidf("price must be > 0")
	}
	if in.SharesAvailable < 0 {
		return Stock{}, invalidf("shares must be >= 0")
	}
	if in.SharesAvailable == 0 {
		in.SharesAvailable = defaultFloat
	}
	if in.Volatility < 0 {
		return Stock{}, invalidf("volatility must be >= 0")
	}
	if in.Volatility == 0 {
		in.Volatility = Round2(decimal.NewFromFloat(1 + m.rand.Float64()*2)).InexactFloat64()
	}
	if in.Sector == "" {
		in.Sector = "Other"
	}
	in.LastChangePercent = decimal.Zero
	in.UpdatedAt = m.now()

	err := m.update(ctx, []lockKey{stockLock(in.Symbol)}, func(tx ledger.Tx) error {
		taken, err := exists(tx, ledger.TableStocks, in.Symbol)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", ErrStockExists, in.Symbol)
		}
		return saveStock(tx, in)
	})
	if err != nil {
		return Stock{}, err
	}
	m.log.Info("stock listed", "admin_id", admin.ID(), "symbol", in.Symbol)
	return in, nil
}

// SetPrice overrides a stock price and records the change percent.
func (m *Market) SetPrice(ctx context.Context, admin Admin, symbol string, price decimal.Decimal) (Stock, error) {
	if err := admin.check(); err != nil {
		return Stock{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	price = Round2(price)
	if !price.IsPositive() {
		return Stock{}, invalidf("price must be > 0")
	}
	var out Stock
	err := m.update(ctx, []lockKey{stockLock(symbol)}, func(tx ledger.Tx) error {
		st, err := loadStock(tx, symbol)
		if err != nil {
			return err
		}
		if st.Price.IsPositive() {
			st.LastChangePercent = Round2(price.Sub(st.Price).Div(st.Price).Mul(hundred))
		}
		st.Price = price
		st.UpdatedAt = m.now()
		out = st
		return saveStock(tx, st)
	})
	return out, err
}
