package economy

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"casebank/internal/ledger"
	"casebank/internal/random"

	"github.com/stretchr/testify/require"
)

// wonItem opens the demo case once; a 0.8 roll always yields reward B (rare).
func wonItem(t *testing.T) (*Engine, Item) {
	t.Helper()
	return wonItemOn(t, ledger.NewMemory())
}

func wonItemOn(t *testing.T, store ledger.Store) (*Engine, Item) {
	t.Helper()
	e := newEngineOn(t, store, random.NewSequence(0.8))
	putCase(t, e, testCase("demo", false, 0))
	fundedAccount(t, e, 1, "100")
	item, err := e.Cases.Open(context.Background(), "demo", 1)
	require.NoError(t, err)
	return e, item
}

func TestCreateWithdrawalLocksItem(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()

	id, created, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)
	require.True(t, created)
	require.Regexp(t, regexp.MustCompile(`^wd\d+\d{3}$`), id)

	req, err := e.Withdrawals.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, WithdrawalPending, req.Status)
	require.Equal(t, item.ItemID, req.ItemSnapshot.ItemID)
	require.Nil(t, req.ProcessedAt)

	acct, _ := e.Accounts.Get(ctx, 1)
	require.True(t, acct.Inventory[0].OnWithdrawal)
	require.Equal(t, []string{item.ItemID}, acct.ItemsOnWithdrawal)
	require.EqualValues(t, 1, acct.WithdrawalsCount)

	again, created, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)
	require.False(t, created)
	require.Empty(t, again)

	_, err = e.Accounts.DeleteItem(ctx, 1, item.ItemID)
	require.ErrorIs(t, err, ErrItemLocked)

	msgs := outboxMessages(t, e)
	require.Len(t, msgs, 1)
	require.Equal(t, AudienceAdmins, msgs[0].Audience)
}

func TestCreateWithdrawalValidation(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()

	_, _, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "  ")
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = e.Withdrawals.Create(ctx, 1, "missing", "@alice")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestConcurrentWithdrawalCreates(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			e, item := wonItemOn(t, open(t))
			ctx := context.Background()

			const workers = 12
			var wg sync.WaitGroup
			var mu sync.Mutex
			createdCount := 0
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, created, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
					if err != nil {
						t.Errorf("create: %v", err)
						return
					}
					if created {
						mu.Lock()
						createdCount++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, createdCount)

			pending, err := e.Withdrawals.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)

			acct, err := e.Accounts.Get(ctx, 1)
			require.NoError(t, err)
			require.EqualValues(t, 1, acct.WithdrawalsCount)
		})
	}
}

func TestApproveRemovesItemAndCreditsValue(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()
	admin := testAdmin(t)

	id, _, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)

	req, err := e.Withdrawals.Resolve(ctx, admin, id, WithdrawalApproved, " shipped ")
	require.NoError(t, err)
	require.Equal(t, WithdrawalApproved, req.Status)
	require.NotNil(t, req.ProcessedAt)
	require.Equal(t, testAdminID, *req.AdminID)
	require.Equal(t, "shipped", req.Notes)
	requireDec(t, "25", req.Value)

	acct, _ := e.Accounts.Get(ctx, 1)
	require.Empty(t, acct.Inventory)
	require.Empty(t, acct.ItemsOnWithdrawal)
	requireDec(t, "25", acct.TotalWithdrawn)

	pending, _ := e.Withdrawals.ListPending(ctx)
	require.Empty(t, pending)

	msgs := outboxMessages(t, e)
	require.Len(t, msgs, 2)
	var userMsgs int
	for _, m := range msgs {
		if m.Audience == AudienceUser && m.UserID == 1 {
			userMsgs++
		}
	}
	require.Equal(t, 1, userMsgs)
}

func TestRejectRetainsItemUnlocked(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()

	id, _, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)
	req, err := e.Withdrawals.Resolve(ctx, testAdmin(t), id, WithdrawalRejected, "")
	require.NoError(t, err)
	require.Equal(t, WithdrawalRejected, req.Status)
	require.True(t, req.Value.IsZero())

	acct, _ := e.Accounts.Get(ctx, 1)
	require.Len(t, acct.Inventory, 1)
	require.False(t, acct.Inventory[0].OnWithdrawal)
	require.Empty(t, acct.ItemsOnWithdrawal)
	require.True(t, acct.TotalWithdrawn.IsZero())

	// The item can be requested again once released.
	_, created, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)
	require.True(t, created)
}

func TestResolveTerminalIsNoop(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()
	admin := testAdmin(t)

	id, _, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)
	first, err := e.Withdrawals.Resolve(ctx, admin, id, WithdrawalApproved, "ok")
	require.NoError(t, err)
	outboxBefore := len(outboxMessages(t, e))

	second, err := e.Withdrawals.Resolve(ctx, admin, id, WithdrawalRejected, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, WithdrawalApproved, second.Status)
	require.True(t, first.ProcessedAt.Equal(*second.ProcessedAt))
	require.Equal(t, "ok", second.Notes)

	acct, _ := e.Accounts.Get(ctx, 1)
	requireDec(t, "25", acct.TotalWithdrawn)
	require.Len(t, outboxMessages(t, e), outboxBefore)
}

func TestResolveValidation(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()
	id, _, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)

	_, err = e.Withdrawals.Resolve(ctx, testAdmin(t), id, WithdrawalPending, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Withdrawals.Resolve(ctx, Admin{}, id, WithdrawalApproved, "")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.Withdrawals.Resolve(ctx, testAdmin(t), "wd0", WithdrawalApproved, "")
	require.ErrorIs(t, err, ErrWithdrawalNotFound)
}

func TestListForUser(t *testing.T) {
	e, item := wonItem(t)
	ctx := context.Background()
	_, _, err := e.Withdrawals.Create(ctx, 1, item.ItemID, "@alice")
	require.NoError(t, err)

	mine, err := e.Withdrawals.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	other, err := e.Withdrawals.ListForUser(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, other)
}
