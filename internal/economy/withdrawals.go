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

var errWithdrawalIDTaken = errors.New("withdrawal id taken")

type Withdrawals struct {
	*core
	accounts *Accounts
}

func (w *Withdrawals) newID() string {
	suffix := int(w.rand.Float64() * 1000)
	if suffix > 999 {
		suffix = 999
	}
	return fmt.Sprintf("wd%d%03d", w.now().UnixMilli(), suffix)
}

// Create opens a pending request for an inventory item and locks it.
// created is false, with no error, when the item is already on withdrawal.
func (w *Withdrawals) Create(ctx context.Context, userID int64, itemID, contact string) (id string, created bool, err error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return "", false, invalidf("contact info is required")
	}
	if strings.TrimSpace(itemID) == "" {
		return "", false, invalidf("item id is required")
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := w.newID()
		created = false
		err = w.update(ctx, []lockKey{accountLock(userID), withdrawalLock(candidate)}, func(tx ledger.Tx) error {
			acct, err := loadAccount(tx, userID)
			if err != nil {
				return err
			}
			idx := acct.FindItem(itemID)
			if idx < 0 {
				return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
			}
			item := acct.Inventory[idx]
			if item.OnWithdrawal || containsString(acct.ItemsOnWithdrawal, itemID) {
				return nil
			}
			taken, err := exists(tx, ledger.TableWithdrawals, candidate)
			if err != nil {
				return err
			}
			if taken {
				return errWithdrawalIDTaken
			}

			req := WithdrawalRequest{
				ID:           candidate,
				UserID:       userID,
				ItemSnapshot: item,
				ItemID:       itemID,
				ContactInfo:  contact,
				Status:       WithdrawalPending,
				CreatedAt:    w.now(),
				Value:        w.rarity.Value(item.Rarity),
			}
			if _, err := w.accounts.LockItem(tx, userID, itemID); err != nil {
				return err
			}
			if _, err := w.accounts.RecordWithdrawalRequest(tx, userID); err != nil {
				return err
			}
			if err := saveWithdrawal(tx, req); err != nil {
				return err
			}
			created = true
			return appendOutbox(tx, w.now(), AudienceAdmins, 0, fmt.Sprintf(
				"New withdrawal request %s from user %d: %s (%s). Contact: %s",
				req.ID, userID, item.Name, item.Rarity, contact,
			))
		})
		if errors.Is(err, errWithdrawalIDTaken) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if !created {
			return "", false, nil
		}
		w.log.Info("withdrawal requested", "withdrawal_id", candidate, "user_id", userID, "item_id", itemID)
		return candidate, true, nil
	}
	return "", false, fmt.Errorf("%w: could not allocate withdrawal id", ErrConsistency)
}

// Resolve moves a pending request to approved or rejected. Resolving a
// terminal request returns it unchanged.
//
// Approval removes the item from the inventory and adds the rarity value to
// totalWithdrawn. Rejection unlocks the item and leaves it in the inventory.
func (w *Withdrawals) Resolve(ctx context.Context, admin Admin, id string, status WithdrawalStatus, notes string) (WithdrawalRequest, error) {
	if err := admin.check(); err != nil {
		return WithdrawalRequest{}, err
	}
	if !status.Terminal() {
		return WithdrawalRequest{}, invalidf("status must be approved or rejected")
	}
	current, err := w.Get(ctx, id)
	if err != nil {
		return WithdrawalRequest{}, err
	}
	if current.Status.Terminal() {
		return current, nil
	}

	var out WithdrawalRequest
	transitioned := false
	err = w.update(ctx, []lockKey{accountLock(current.UserID), withdrawalLock(id)}, func(tx ledger.Tx) error {
		transitioned = false
		req, err := loadWithdrawal(tx, id)
		if err != nil {
			return err
		}
		out = req
		if req.Status.Terminal() {
			return nil
		}

		now := w.now()
		adminID := admin.ID()
		req.Status = status
		req.ProcessedAt = &now
		req.AdminID = &adminID
		req.Notes = strings.TrimSpace(notes)

		if _, err := w.accounts.UnlockItem(tx, req.UserID, req.ItemID); err != nil {
			return err
		}
		var text string
		if status == WithdrawalApproved {
			if _, err := w.accounts.RemoveItem(tx, req.UserID, req.ItemID); err != nil && !errors.Is(err, ErrItemNotFound) {
				return err
			}
			if req.Value.IsZero() {
				req.Value = w.rarity.Value(req.ItemSnapshot.Rarity)
			}
			if _, err := w.accounts.AddTotalWithdrawn(tx, req.UserID, req.Value); err != nil {
				return err
			}
			text = fmt.Sprintf("Your withdrawal %s for %s was approved.", req.ID, req.ItemSnapshot.Name)
		} else {
			req.Value = decimal.Zero
			text = fmt.Sprintf("Your withdrawal %s for %s was rejected. The item is back in your inventory.", req.ID, req.ItemSnapshot.Name)
		}
		if req.Notes != "" {
			text += " Notes: " + req.Notes
		}
		if err := saveWithdrawal(tx, req); err != nil {
			return err
		}
		out = req
		transitioned = true
		return appendOutbox(tx, now, AudienceUser, req.UserID, text)
	})
	if err != nil {
		return WithdrawalRequest{}, err
	}
	if transitioned {
		w.log.Info("withdrawal resolved", "withdrawal_id", id, "status", status, "admin_id", admin.ID())
	}
	return out, nil
}

func (w *Withdrawals) Get(ctx context.Context, id string) (WithdrawalRequest, error) {
	var out WithdrawalRequest
	err := w.view(ctx, func(tx ledger.Tx) error {
		req, err := loadWithdrawal(tx, id)
		out = req
		return err
	})
	return out, err
}

func (w *Withdrawals) ListPending(ctx context.Context) ([]WithdrawalRequest, error) {
	return w.list(ctx, func(r WithdrawalRequest) bool { return r.Status == WithdrawalPending })
}

func (w *Withdrawals) ListForUser(ctx context.Context, userID int64) ([]WithdrawalRequest, error) {
	return w.list(ctx, func(r WithdrawalRequest) bool { return r.UserID == userID })
}

func (w *Withdrawals) list(ctx context.Context, keep func(WithdrawalRequest) bool) ([]WithdrawalRequest, error) {
	var out []WithdrawalRequest
	err := w.view(ctx, func(tx ledger.Tx) error {
		all, err := listJSON[WithdrawalRequest](tx, ledger.TableWithdrawals)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, r := range all {
			if keep(r) {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}
