package economy

import (
	"context"

	"casebank/internal/ledger"

	"github.com/shopspring/decimal"
)

func defaultCases() []Case {
	return []Case{
		{
			ID:          "adobe_animate_case",
			Name:        "Adobe Animate Case",
			Description: "A shot at the Adobe Animate NFT.",
			Price:       decimal.NewFromInt(10),
			IsLimited:   true,
			MaxOpens:    25,
			Rewards: []Reward{
				{ID: "5_atm", Name: "5 ATM", Rarity: RarityCommon, Chance: 45},
				{ID: "8_atm", Name: "8 ATM", Rarity: RarityCommon, Chance: 30},
				{ID: "12_atm", Name: "12 ATM", Rarity: RarityUncommon, Chance: 13},
				{ID: "18_atm", Name: "18 ATM", Rarity: RarityRare, Chance: 7},
				{ID: "adobe_animate_nft", Name: "Adobe Animate NFT", Rarity: RarityLegendary, Chance: 5},
			},
		},
		{
			ID:          "cpp_new_case",
			Name:        "C++ New",
			Description: "A chance at the legendary C++ NFT.",
			Price:       decimal.NewFromInt(30),
			IsLimited:   true,
			MaxOpens:    10,
			Rewards: []Reward{
				{ID: "10_atm", Name: "10 ATM", Rarity: RarityCommon, Chance: 35},
				{ID: "20_atm", Name: "20 ATM", Rarity: RarityCommon, Chance: 30},
				{ID: "30_atm", Name: "30 ATM", Rarity: RarityUncommon, Chance: 15},
				{ID: "50_atm", Name: "50 ATM", Rarity: RarityRare, Chance: 10},
				{ID: "80_atm", Name: "80 ATM", Rarity: RarityEpic, Chance: 7},
				{ID: "cpp_nft", Name: "C++ NFT", Rarity: RarityLegendary, Chance: 3},
			},
		},
		{
			ID:          "shiba_old_case",
			Name:        "Shiba Inu",
			Description: "Good old NFTs from the early collections.",
			Price:       decimal.NewFromInt(7),
			IsLimited:   true,
			MaxOpens:    50,
			Rewards: []Reward{
				{ID: "3_atm", Name: "3 ATM", Rarity: RarityCommon, Chance: 40},
				{ID: "5_atm", Name: "5 ATM", Rarity: RarityCommon, Chance: 25},
				{ID: "7_atm", Name: "7 ATM", Rarity: RarityUncommon, Chance: 15},
				{ID: "pixel_shiba_nft", Name: "Pixel Shiba NFT", Rarity: RarityRare, Chance: 10},
				{ID: "atom64_nft", Name: "Atom64 NFT", Rarity: RarityRare, Chance: 7},
				{ID: "atomglide_belarus_nft", Name: "AtomGlide Belarus NFT", Rarity: RarityLegendary, Chance: 3},
			},
		},
		{
			ID:          "durov_case",
			Name:        "Pavel Durov Case",
			Description: "A chance at the legendary Durov NFTs.",
			Price:       decimal.NewFromInt(60),
			IsLimited:   true,
			MaxOpens:    20,
			Rewards: []Reward{
				{ID: "20_atm", Name: "20 ATM", Rarity: RarityCommon, Chance: 35},
				{ID: "40_atm", Name: "40 ATM", Rarity: RarityCommon, Chance: 25},
				{ID: "60_atm", Name: "60 ATM", Rarity: RarityUncommon, Chance: 15},
				{ID: "80_atm", Name: "80 ATM", Rarity: RarityRare, Chance: 10},
				{ID: "100_atm", Name: "100 ATM", Rarity: RarityEpic, Chance: 5},
				{ID: "pixel_durov_nft", Name: "Pixel Durov NFT", Rarity: RarityLegendary, Chance: 6},
				{ID: "pavel_durov_nft", Name: "Pavel Durov NFT", Rarity: RarityMythical, Chance: 4},
			},
		},
	}
}

func defaultStocks() []Stock {
	return []Stock{
		{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.RequireFromString("150.50"), LastChangePercent: decimal.RequireFromString("1.2"), SharesAvailable: 10000, Sector: "Technology", Volatility: 2},
		{Symbol: "TSLA", Name: "Tesla Inc.", Price: decimal.RequireFromString("250.30"), LastChangePercent: decimal.RequireFromString("-0.8"), SharesAvailable: 8000, Sector: "Automotive", Volatility: 3},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Price: decimal.RequireFromString("135.75"), LastChangePercent: decimal.RequireFromString("0.5"), SharesAvailable: 12000, Sector: "Technology", Volatility: 1.5},
	}
}

// SeedDefaults fills empty catalogs with the default cases, stocks and
// settings. Tables that already hold records are left alone.
func (e *Engine) SeedDefaults(ctx context.Context) error {
	c := e.core
	var seeded []string
	err := c.update(ctx, []lockKey{settingsLock()}, func(tx ledger.Tx) error {
		seeded = seeded[:0]
		cases, err := tx.Keys(ledger.TableCases)
		if err != nil {
			return err
		}
		if len(cases) == 0 {
			for _, cs := range defaultCases() {
				cs.OpensLeft = cs.MaxOpens
				if err := saveCase(tx, cs); err != nil {
					return err
				}
			}
			seeded = append(seeded, ledger.TableCases)
		}
		stocks, err := tx.Keys(ledger.TableStocks)
		if err != nil {
			return err
		}
		if len(stocks) == 0 {
			for _, st := range defaultStocks() {
				st.UpdatedAt = c.now()
				if err := saveStock(tx, st); err != nil {
					return err
				}
			}
			seeded = append(seeded, ledger.TableStocks)
		}
		ok, err := exists(tx, ledger.TableSettings, settingsKey)
		if err != nil {
			return err
		}
		if !ok {
			settings := DefaultSettings()
			settings.UpdatedAt = c.now()
			if err := saveSettings(tx, settings); err != nil {
				return err
			}
			seeded = append(seeded, ledger.TableSettings)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(seeded) > 0 {
		c.log.Info("seeded defaults", "tables", seeded)
	}
	return nil
}
