package economy

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedeemOncePerUser(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	_, err := e.Promos.Create(ctx, testAdmin(t), "Welcome", dec("25"), 10)
	require.NoError(t, err)
	fundedAccount(t, e, 1, "0")

	res, err := e.Promos.Redeem(ctx, 1, " welcome ")
	require.NoError(t, err)
	require.Equal(t, "WELCOME", res.Code)
	requireDec(t, "25", res.Balance)

	_, err = e.Promos.Redeem(ctx, 1, "WELCOME")
	require.ErrorIs(t, err, ErrPromoUsed)

	promo, err := e.Promos.Get(ctx, "welcome")
	require.NoError(t, err)
	require.EqualValues(t, 1, promo.UsedCount)
	require.Equal(t, []int64{1}, promo.UsedBy)
	require.NotNil(t, promo.LastUsedAt)

	acct, _ := e.Accounts.Get(ctx, 1)
	require.Equal(t, []string{"WELCOME"}, acct.UsedPromoCodes)
	requireDec(t, "25", acct.Balance)
}

func TestRedeemRespectsCapUnderConcurrency(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	_, err := e.Promos.Create(ctx, testAdmin(t), "CAP3", dec("5"), 3)
	require.NoError(t, err)

	const users = 10
	for id := int64(1); id <= users; id++ {
		fundedAccount(t, e, id, "0")
	}

	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Promos.Redeem(ctx, int64(i+1), "cap3")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, ErrPromoExhausted) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 3, ok)

	promo, _ := e.Promos.Get(ctx, "CAP3")
	require.EqualValues(t, 3, promo.UsedCount)
	require.Len(t, promo.UsedBy, 3)
}

func TestRedeemFailures(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	admin := testAdmin(t)
	fundedAccount(t, e, 1, "0")

	_, err := e.Promos.Redeem(ctx, 1, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Promos.Redeem(ctx, 1, "MISSING")
	require.ErrorIs(t, err, ErrPromoNotFound)

	_, err = e.Promos.Create(ctx, admin, "OFF", dec("5"), 1)
	require.NoError(t, err)
	_, err = e.Promos.Deactivate(ctx, admin, "off")
	require.NoError(t, err)
	_, err = e.Promos.Redeem(ctx, 1, "OFF")
	require.ErrorIs(t, err, ErrPromoInactive)

	acct, _ := e.Accounts.Get(ctx, 1)
	require.True(t, acct.Balance.IsZero())
}

func TestCreatePromo(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	admin := testAdmin(t)

	generated, err := e.Promos.Create(ctx, admin, "", dec("10"), 5)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{8}$`), generated.Code)
	require.Equal(t, testAdminID, generated.CreatorID)
	require.True(t, generated.IsActive)

	_, err = e.Promos.Create(ctx, admin, generated.Code, dec("10"), 5)
	require.ErrorIs(t, err, ErrPromoExists)
	_, err = e.Promos.Create(ctx, admin, "X", dec("10"), 5)
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Promos.Create(ctx, admin, "ZERO", dec("0"), 5)
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Promos.Create(ctx, Admin{}, "NOPE", dec("1"), 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	active, err := e.Promos.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, e.Promos.Delete(ctx, admin, generated.Code))
	_, err = e.Promos.Get(ctx, generated.Code)
	require.ErrorIs(t, err, ErrPromoNotFound)
	require.ErrorIs(t, e.Promos.Delete(ctx, admin, generated.Code), ErrNotFound)
}
