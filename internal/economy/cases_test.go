package economy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"casebank/internal/random"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testCase(id string, limited bool, opens int64) Case {
	return Case{
		ID:        id,
		Name:      "Test " + id,
		Price:     dec("30"),
		Rewards:   twoRewards,
		IsLimited: limited,
		MaxOpens:  opens,
		OpensLeft: opens,
	}
}

func TestOpenSelectsByRoll(t *testing.T) {
	tests := []struct {
		rand float64
		want string
	}{
		{rand: 0.5, want: "A"},
		{rand: 0.8, want: "B"},
	}
	for _, tc := range tests {
		e := newTestEngine(t, random.NewSequence(tc.rand))
		putCase(t, e, testCase("demo", false, 0))
		fundedAccount(t, e, 1, "100")

		item, err := e.Cases.Open(context.Background(), "demo", 1)
		require.NoError(t, err)
		require.Equal(t, tc.want, item.SourceItemID)
		require.NotEmpty(t, item.ItemID)

		acct, err := e.Accounts.Get(context.Background(), 1)
		require.NoError(t, err)
		requireDec(t, "70", acct.Balance)
		require.Len(t, acct.Inventory, 1)
		require.Equal(t, item.ItemID, acct.Inventory[0].ItemID)
		require.EqualValues(t, 1, acct.CasesOpened)
		require.EqualValues(t, 1, acct.OpenedCases["demo"])
	}
}

func TestOpenLimitedDecrementsSupply(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	putCase(t, e, testCase("lim", true, 2))
	fundedAccount(t, e, 1, "100")

	for i := 0; i < 2; i++ {
		_, err := e.Cases.Open(ctx, "lim", 1)
		require.NoError(t, err)
	}
	_, err := e.Cases.Open(ctx, "lim", 1)
	require.ErrorIs(t, err, ErrSoldOut)

	cs, err := e.Cases.Get(ctx, "lim")
	require.NoError(t, err)
	require.EqualValues(t, 0, cs.OpensLeft)
	require.EqualValues(t, 2, cs.TotalOpens)

	res, err := e.Cases.CanOpen(ctx, "lim")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, ErrSoldOut.Reason, res.Reason)

	acct, err := e.Accounts.Get(ctx, 1)
	require.NoError(t, err)
	requireDec(t, "40", acct.Balance)
}

func TestCanOpenUnknownCase(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Cases.CanOpen(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, res.Allowed)
}

func TestOpenInsufficientFundsLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	putCase(t, e, testCase("lim", true, 1))
	fundedAccount(t, e, 1, "29.99")

	_, err := e.Cases.Open(ctx, "lim", 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	acct, _ := e.Accounts.Get(ctx, 1)
	requireDec(t, "29.99", acct.Balance)
	require.Empty(t, acct.Inventory)
	cs, _ := e.Cases.Get(ctx, "lim")
	require.EqualValues(t, 1, cs.OpensLeft)
}

func TestOpenDrawFailureRollsBackDebit(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	broken := testCase("broken", false, 0)
	broken.Rewards = []Reward{{ID: "ghost", Rarity: RarityCommon, Chance: 0}}
	putCase(t, e, broken)
	fundedAccount(t, e, 1, "100")

	_, err := e.Cases.Open(ctx, "broken", 1)
	require.ErrorIs(t, err, ErrDrawFailed)
	require.Equal(t, KindConsistency, KindOf(err))

	acct, _ := e.Accounts.Get(ctx, 1)
	requireDec(t, "100", acct.Balance)
	require.Empty(t, acct.Inventory)
	require.Zero(t, acct.CasesOpened)
}

func TestConcurrentOpensOfLastUnit(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			e := newEngineOn(t, open(t), nil)
			ctx := context.Background()
			putCase(t, e, testCase("last", true, 1))

			const buyers = 6
			for i := 1; i <= buyers; i++ {
				fundedAccount(t, e, int64(i), "100")
			}
			var wg sync.WaitGroup
			errs := make([]error, buyers)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = e.Cases.Open(ctx, "last", int64(i+1))
				}(i)
			}
			wg.Wait()

			var ok, soldOut int
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrSoldOut):
					soldOut++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			require.Equal(t, 1, ok)
			require.Equal(t, buyers-1, soldOut)

			cs, err := e.Cases.Get(ctx, "last")
			require.NoError(t, err)
			require.EqualValues(t, 0, cs.OpensLeft)
			require.EqualValues(t, 1, cs.TotalOpens)
		})
	}
}

func TestLimitedCaseBoundsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newTestEngine(t, nil)
		ctx := context.Background()
		maxOpens := rapid.Int64Range(1, 5).Draw(rt, "maxOpens")
		putCase(t, e, testCase("prop", true, maxOpens))
		fundedAccount(t, e, 1, rapid.SampledFrom([]string{"0", "45", "100", "500"}).Draw(rt, "balance"))

		attempts := rapid.IntRange(0, 10).Draw(rt, "attempts")
		var lastTotal int64
		for i := 0; i < attempts; i++ {
			_, err := e.Cases.Open(ctx, "prop", 1)
			if err != nil && !errors.Is(err, ErrPreconditionFailed) {
				rt.Fatalf("unexpected error: %v", err)
			}
			cs, err := e.Cases.Get(ctx, "prop")
			if err != nil {
				rt.Fatalf("get case: %v", err)
			}
			if cs.OpensLeft < 0 || cs.OpensLeft > cs.MaxOpens {
				rt.Fatalf("opensLeft %d outside [0,%d]", cs.OpensLeft, cs.MaxOpens)
			}
			if cs.TotalOpens < lastTotal {
				rt.Fatalf("totalOpens went backwards: %d < %d", cs.TotalOpens, lastTotal)
			}
			lastTotal = cs.TotalOpens
			acct, _ := e.Accounts.Get(ctx, 1)
			if acct.Balance.IsNegative() {
				rt.Fatalf("negative balance %s", acct.Balance)
			}
		}
	})
}

func TestUpsertAndRestock(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	admin := testAdmin(t)

	in := Case{
		ID:        "new_case",
		Name:      "New",
		Price:     dec("12.345"),
		IsLimited: true,
		MaxOpens:  3,
		Rewards:   []Reward{{ID: "x", Rarity: "RARE", Chance: 100}},
	}
	saved, err := e.Cases.Upsert(ctx, admin, in)
	require.NoError(t, err)
	requireDec(t, "12.35", saved.Price)
	require.EqualValues(t, 3, saved.OpensLeft)
	require.Equal(t, RarityRare, saved.Rewards[0].Rarity)
	require.Equal(t, "x", saved.Rewards[0].Name)

	restocked, err := e.Cases.Restock(ctx, admin, "new_case", 5)
	require.NoError(t, err)
	require.EqualValues(t, 8, restocked.OpensLeft)
	require.EqualValues(t, 8, restocked.MaxOpens)

	_, err = e.Cases.Upsert(ctx, admin, Case{ID: "Bad ID", Name: "x", Price: dec("1"), Rewards: twoRewards})
	require.ErrorIs(t, err, ErrValidation)
	_, err = e.Cases.Upsert(ctx, Admin{}, in)
	require.ErrorIs(t, err, ErrUnauthorized)

	list, err := e.Cases.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
