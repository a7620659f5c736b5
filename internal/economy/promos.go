package economy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"casebank/internal/ledger"
	"casebank/internal/random"

	"github.com/shopspring/decimal"
)

const generatedCodeLength = 8

var promoCodeRE = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

type Promos struct {
	*core
	accounts *Accounts
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem credits a promo code once per user. The code's usedBy list is the
// source of truth; the account's usedPromoCodes is kept in step with it.
func (p *Promos) Redeem(ctx context.Context, userID int64, code string) (RedeemResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return RedeemResult{}, invalidf("promo code is required")
	}
	var out RedeemResult
	err := p.update(ctx, []lockKey{accountLock(userID), promoLock(code)}, func(tx ledger.Tx) error {
		promo, err := loadPromo(tx, code)
		if err != nil {
			return err
		}
		if !promo.IsActive {
			return fmt.Errorf("%w: %s", ErrPromoInactive, code)
		}
		if promo.UsedCount >= promo.MaxUses {
			return fmt.Errorf("%w: %s", ErrPromoExhausted, code)
		}
		acct, err := loadAccount(tx, userID)
		if err != nil {
			return err
		}
		if containsID(promo.UsedBy, userID) || containsString(acct.UsedPromoCodes, code) {
			return fmt.Errorf("%w: %s", ErrPromoUsed, code)
		}

		if _, err := p.accounts.AdjustBalance(tx, userID, promo.Amount); err != nil {
			return err
		}
		acct, err = p.accounts.MarkPromoUsed(tx, userID, code)
		if err != nil {
			return err
		}
		now := p.now()
		promo.UsedCount++
		promo.UsedBy = append(promo.UsedBy, userID)
		promo.LastUsedAt = &now
		if err := savePromo(tx, promo); err != nil {
			return err
		}
		out = RedeemResult{Code: code, Amount: promo.Amount, Balance: acct.Balance}
		return nil
	})
	if err != nil {
		return RedeemResult{}, err
	}
	p.log.Info("promo redeemed", "user_id", userID, "code", code, "amount", out.Amount.String())
	return out, nil
}

// Create adds a promo code. An empty code is replaced by a random one.
func (p *Promos) Create(ctx context.Context, admin Admin, code string, amount decimal.Decimal, maxUses int64) (PromoCode, error) {
	if err := admin.check(); err != nil {
		return PromoCode{}, err
	}
	amount = Round2(amount)
	if !amount.IsPositive() {
		return PromoCode{}, invalidf("amount must be > 0")
	}
	if maxUses <= 0 {
		return PromoCode{}, invalidf("max uses must be > 0")
	}
	code = NormalizeCode(code)
	generated := code == ""
	if !generated && !promoCodeRE.MatchString(code) {
		return PromoCode{}, invalidf("promo code must be 3-32 letters, digits, '-' or '_'")
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := code
		if generated {
			var err error
			if candidate, err = random.Code(generatedCodeLength); err != nil {
				return PromoCode{}, err
			}
		}
		promo := PromoCode{
			Code:      candidate,
			Amount:    amount,
			MaxUses:   maxUses,
			UsedBy:    []int64{},
			IsActive:  true,
			CreatedAt: p.now(),
			CreatorID: admin.ID(),
		}
		err := p.update(ctx, []lockKey{promoLock(candidate)}, func(tx ledger.Tx) error {
			taken, err := exists(tx, ledger.TablePromos, candidate)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s", ErrPromoExists, candidate)
			}
			return savePromo(tx, promo)
		})
		if errors.Is(err, ErrPromoExists) && generated {
			continue
		}
		if err != nil {
			return PromoCode{}, err
		}
		p.log.Info("promo created", "admin_id", admin.ID(), "code", candidate, "amount", amount.String(), "max_uses", maxUses)
		return promo, nil
	}
	return PromoCode{}, fmt.Errorf("%w: could not allocate a promo code", ErrConsistency)
}

func (p *Promos) Deactivate(ctx context.Context, admin Admin, code string) (PromoCode, error) {
	if err := admin.check(); err != nil {
		return PromoCode{}, err
	}
	code = NormalizeCode(code)
	var out PromoCode
	err := p.update(ctx, []lockKey{promoLock(code)}, func(tx ledger.Tx) error {
		promo, err := loadPromo(tx, code)
		if err != nil {
			return err
		}
		promo.IsActive = false
		out = promo
		return savePromo(tx, promo)
	})
	return out, err
}

// Delete removes a code. Accounts keep it in usedPromoCodes as history.
func (p *Promos) Delete(ctx context.Context, admin Admin, code string) error {
	if err := admin.check(); err != nil {
		return err
	}
	code = NormalizeCode(code)
	return p.update(ctx, []lockKey{promoLock(code)}, func(tx ledger.Tx) error {
		if _, err := loadPromo(tx, code); err != nil {
			return err
		}
		return tx.Delete(ledger.TablePromos, code)
	})
}

func (p *Promos) Get(ctx context.Context, code string) (PromoCode, error) {
	code = NormalizeCode(code)
	var out PromoCode
	err := p.view(ctx, func(tx ledger.Tx) error {
		promo, err := loadPromo(tx, code)
		out = promo
		return err
	})
	return out, err
}

func (p *Promos) List(ctx context.Context, activeOnly bool) ([]PromoCode, error) {
	var out []PromoCode
	err := p.view(ctx, func(tx ledger.Tx) error {
		all, err := listJSON[PromoCode](tx, ledger.TablePromos)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, promo := range all {
			if activeOnly && (!promo.IsActive || promo.UsedCount >= promo.MaxUses) {
				continue
			}
			out = append(out, promo)
		}
		return nil
	})
	return out, err
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
