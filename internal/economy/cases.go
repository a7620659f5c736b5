package economy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"casebank/internal/ledger"

	"github.com/google/uuid"
)

type Cases struct {
	*core
	accounts *Accounts
}

func canOpen(c Case) CanOpenResult {
	if c.IsLimited && c.OpensLeft <= 0 {
		return CanOpenResult{Allowed: false, Reason: ErrSoldOut.Reason}
	}
	return CanOpenResult{Allowed: true}
}

// CanOpen fails closed for unknown and sold-out cases.
func (c *Cases) CanOpen(ctx context.Context, caseID string) (CanOpenResult, error) {
	cs, err := c.Get(ctx, caseID)
	if errors.Is(err, ErrCaseNotFound) {
		return CanOpenResult{Allowed: false, Reason: ErrCaseNotFound.Reason}, nil
	}
	if err != nil {
		return CanOpenResult{}, err
	}
	return canOpen(cs), nil
}

// Open debits the case price, draws a reward and adds it to the inventory.
// Supply is rechecked under the case lock in the same transaction as the
// decrement, so the last unit of a limited case is sold at most once.
func (c *Cases) Open(ctx context.Context, caseID string, userID int64) (Item, error) {
	var won Item
	err := c.update(ctx, []lockKey{accountLock(userID), caseLock(caseID)}, func(tx ledger.Tx) error {
		cs, err := loadCase(tx, caseID)
		if err != nil {
			return err
		}
		if res := canOpen(cs); !res.Allowed {
			return fmt.Errorf("%w: %s", ErrSoldOut, cs.ID)
		}
		acct, err := loadAccount(tx, userID)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(cs.Price) {
			return fmt.Errorf("%w: balance %s, price %s", ErrInsufficientFunds, acct.Balance.StringFixed(2), cs.Price.StringFixed(2))
		}
		if _, err := c.accounts.AdjustBalance(tx, userID, cs.Price.Neg()); err != nil {
			return err
		}

		total := TotalChance(cs.Rewards)
		roll := c.rand.Float64() * total
		if total > 0 && roll >= total {
			roll = math.Nextafter(total, 0)
		}
		reward, ok := SelectReward(cs.Rewards, roll)
		if !ok || total <= 0 {
			c.log.Error("case draw produced no item", "case_id", cs.ID, "roll", roll, "total", total)
			return fmt.Errorf("%w: case %s roll %.4f total %.4f", ErrDrawFailed, cs.ID, roll, total)
		}

		item := Item{
			ItemID:       uuid.NewString(),
			SourceItemID: reward.ID,
			CaseID:       cs.ID,
			Name:         reward.Name,
			Rarity:       reward.Rarity,
			DropChance:   reward.Chance,
			AcquiredAt:   c.now(),
		}
		if _, err := c.accounts.AddItem(tx, userID, item); err != nil {
			return err
		}
		if _, err := c.accounts.RecordCaseOpen(tx, userID, cs.ID); err != nil {
			return err
		}

		cs.TotalOpens++
		if cs.IsLimited {
			cs.OpensLeft--
			if cs.OpensLeft < 0 {
				cs.OpensLeft = 0
			}
		}
		if err := saveCase(tx, cs); err != nil {
			return err
		}
		won = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	c.log.Info("case opened", "user_id", userID, "case_id", caseID, "item", won.SourceItemID, "rarity", won.Rarity)
	return won, nil
}

func (c *Cases) Get(ctx context.Context, caseID string) (Case, error) {
	var out Case
	err := c.view(ctx, func(tx ledger.Tx) error {
		cs, err := loadCase(tx, caseID)
		out = cs
		return err
	})
	return out, err
}

func (c *Cases) List(ctx context.Context) ([]Case, error) {
	var out []Case
	err := c.view(ctx, func(tx ledger.Tx) error {
		cases, err := listJSON[Case](tx, ledger.TableCases)
		out = cases
		return err
	})
	return out, err
}

// Upsert creates or replaces a catalog entry. Lifetime counters survive a
// replace; opensLeft resets to maxOpens only for a new limited case or when
// the limit itself changes.
func (c *Cases) Upsert(ctx context.Context, admin Admin, in Case) (Case, error) {
	if err := admin.check(); err != nil {
		return Case{}, err
	}
	if err := validateCase(&in); err != nil {
		return Case{}, err
	}
	var out Case
	err := c.update(ctx, []lockKey{caseLock(in.ID)}, func(tx ledger.Tx) error {
		prev, err := loadCase(tx, in.ID)
		switch {
		case err == nil:
			in.TotalOpens = prev.TotalOpens
			if in.IsLimited && prev.IsLimited && prev.MaxOpens == in.MaxOpens {
				in.OpensLeft = prev.OpensLeft
			} else if in.IsLimited {
				in.OpensLeft = in.MaxOpens
			}
		case errors.Is(err, ErrCaseNotFound):
			in.TotalOpens = 0
			if in.IsLimited {
				in.OpensLeft = in.MaxOpens
			}
		default:
			return err
		}
		if !in.IsLimited {
			in.MaxOpens, in.OpensLeft = 0, 0
		}
		out = in
		return saveCase(tx, in)
	})
	if err == nil {
		c.log.Info("case saved", "admin_id", admin.ID(), "case_id", out.ID)
	}
	return out, err
}

// Restock adds opens to a limited case, raising maxOpens when needed.
func (c *Cases) Restock(ctx context.Context, admin Admin, caseID string, opens int64) (Case, error) {
	if err := admin.check(); err != nil {
		return Case{}, err
	}
	if opens <= 0 {
		return Case{}, invalidf("opens must be > 0")
	}
	var out Case
	err := c.update(ctx, []lockKey{caseLock(caseID)}, func(tx ledger.Tx) error {
		cs, err := loadCase(tx, caseID)
		if err != nil {
			return err
		}
		if !cs.IsLimited {
			return fmt.Errorf("%w: case %s is not limited", ErrValidation, caseID)
		}
		cs.OpensLeft += opens
		if cs.OpensLeft > cs.MaxOpens {
			cs.MaxOpens = cs.OpensLeft
		}
		out = cs
		return saveCase(tx, cs)
	})
	return out, err
}

func validateCase(c *Case) error {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	if err := ValidateCaseID(c.ID); err != nil {
		return err
	}
	if c.Name == "" {
		return invalidf("case name is required")
	}
	c.Price = Round2(c.Price)
	if !c.Price.IsPositive() {
		return invalidf("case price must be > 0")
	}
	if len(c.Rewards) == 0 {
		return invalidf("case needs at least one reward")
	}
	seen := make(map[string]bool, len(c.Rewards))
	for i := range c.Rewards {
		r := &c.Rewards[i]
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" || seen[r.ID] {
			return invalidf("reward %d needs a unique id", i)
		}
		seen[r.ID] = true
		if strings.TrimSpace(r.Name) == "" {
			r.Name = r.ID
		}
		rarity, err := ParseRarity(string(r.Rarity))
		if err != nil {
			return err
		}
		r.Rarity = rarity
		if r.Chance <= 0 {
			return invalidf("reward %s chance must be > 0", r.ID)
		}
	}
	if c.IsLimited && c.MaxOpens <= 0 {
		return invalidf("limited case needs max_opens > 0")
	}
	return nil
}
