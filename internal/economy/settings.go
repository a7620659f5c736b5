package economy

import (
	"context"

	"casebank/internal/ledger"

	"github.com/shopspring/decimal"
)

func DefaultSettings() Settings {
	return Settings{
		DepositPercent:   decimal.NewFromInt(5),
		MinDepositAmount: decimal.NewFromInt(50),
		DepositEnabled:   true,
	}
}

type SettingsService struct {
	*core
}

func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.view(ctx, func(tx ledger.Tx) error {
		settings, err := loadSettings(tx)
		out = settings
		return err
	})
	return out, err
}

func (s *SettingsService) Update(ctx context.Context, admin Admin, patch SettingsPatch) (Settings, error) {
	if err := admin.check(); err != nil {
		return Settings{}, err
	}
	if patch.DepositPercent != nil && (patch.DepositPercent.IsNegative() || patch.DepositPercent.GreaterThan(hundred)) {
		return Settings{}, invalidf("deposit percent must be between 0 and 100")
	}
	if patch.MinDepositAmount != nil && patch.MinDepositAmount.IsNegative() {
		return Settings{}, invalidf("minimum deposit must be >= 0")
	}
	var out Settings
	err := s.update(ctx, []lockKey{settingsLock()}, func(tx ledger.Tx) error {
		settings, err := loadSettings(tx)
		if err != nil {
			return err
		}
		if patch.DepositPercent != nil {
			settings.DepositPercent = Round2(*patch.DepositPercent)
		}
		if patch.MinDepositAmount != nil {
			settings.MinDepositAmount = Round2(*patch.MinDepositAmount)
		}
		if patch.DepositEnabled != nil {
			settings.DepositEnabled = *patch.DepositEnabled
		}
		settings.UpdatedAt = s.now()
		settings.UpdatedBy = admin.ID()
		out = settings
		return saveSettings(tx, settings)
	})
	if err == nil {
		s.log.Info("settings updated", "admin_id", admin.ID(), "deposit_percent", out.DepositPercent.String(), "deposit_enabled", out.DepositEnabled)
	}
	return out, err
}
