package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casebank/internal/ledger"

	"github.com/google/uuid"
)

// maxDeliveryAttempts bounds retries before a message is dropped.
const maxDeliveryAttempts = 10

// Notifier delivers a text message to one chat user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// appendOutbox queues a notification in the caller's transaction. Keys sort
// by creation time.
func appendOutbox(tx ledger.Tx, now time.Time, audience Audience, userID int64, text string) error {
	msg := OutboxMessage{
		ID:        fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.NewString()),
		Audience:  audience,
		UserID:    userID,
		Text:      text,
		CreatedAt: now,
	}
	return putJSON(tx, ledger.TableOutbox, msg.ID, msg)
}

type DispatchResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// DispatchOutbox delivers up to limit queued messages. Delivery failures are
// logged and the message stays queued; they are never returned as errors.
func (e *Engine) DispatchOutbox(ctx context.Context, n Notifier, admins []int64, limit int) (DispatchResult, error) {
	var res DispatchResult
	if n == nil {
		return res, errors.New("notifier is required")
	}
	var keys []string
	if err := e.core.view(ctx, func(tx ledger.Tx) error {
		var err error
		keys, err = tx.Keys(ledger.TableOutbox)
		return err
	}); err != nil {
		return res, err
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var msg OutboxMessage
		if err := e.core.view(ctx, func(tx ledger.Tx) error {
			var err error
			msg, err = getJSON[OutboxMessage](tx, ledger.TableOutbox, key, ErrNotFound)
			return err
		}); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return res, err
		}

		sendErr := e.deliver(ctx, n, admins, msg)
		err := e.core.update(ctx, []lockKey{outboxLock(key)}, func(tx ledger.Tx) error {
			if sendErr == nil {
				return tx.Delete(ledger.TableOutbox, key)
			}
			msg.Attempts++
			msg.LastError = sendErr.Error()
			if msg.Attempts >= maxDeliveryAttempts {
				return tx.Delete(ledger.TableOutbox, key)
			}
			return putJSON(tx, ledger.TableOutbox, key, msg)
		})
		if err != nil {
			return res, err
		}
		switch {
		case sendErr == nil:
			res.Sent++
		case msg.Attempts >= maxDeliveryAttempts:
			res.Dropped++
			e.core.log.Error("notification dropped", "outbox_id", key, "user_id", msg.UserID, "attempts", msg.Attempts, "err", sendErr)
		default:
			res.Failed++
			e.core.log.Warn("notification failed", "outbox_id", key, "user_id", msg.UserID, "attempts", msg.Attempts, "err", sendErr)
		}
	}
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, n Notifier, admins []int64, msg OutboxMessage) error {
	if msg.Audience != AudienceAdmins {
		return n.Notify(ctx, msg.UserID, msg.Text)
	}
	var errs []error
	for _, id := range admins {
		if err := n.Notify(ctx, id, msg.Text); err != nil {
			errs = append(errs, fmt.Errorf("admin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// PendingNotifications counts queued outbox messages.
func (e *Engine) PendingNotifications(ctx context.Context) (int, error) {
	var n int
	err := e.core.view(ctx, func(tx ledger.Tx) error {
		keys, err := tx.Keys(ledger.TableOutbox)
		n = len(keys)
		return err
	})
	return n, err
}
