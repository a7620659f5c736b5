package economy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"casebank/internal/ledger"
)

const settingsKey = "global"

func accountKey(id int64) string { return strconv.FormatInt(id, 10) }

func getJSON[T any](tx ledger.Tx, table, key string, notFound error) (T, error) {
	var out T
	body, err := tx.Get(table, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return out, fmt.Errorf("%w: %s", notFound, key)
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", table, key, err)
	}
	return out, nil
}

func putJSON(tx ledger.Tx, table, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", table, key, err)
	}
	return tx.Put(table, key, body)
}

func exists(tx ledger.Tx, table, key string) (bool, error) {
	_, err := tx.Get(table, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func listJSON[T any](tx ledger.Tx, table string) ([]T, error) {
	keys, err := tx.Keys(table)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v, err := getJSON[T](tx, table, k, ErrNotFound)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func loadAccount(tx ledger.Tx, id int64) (Account, error) {
	acct, err := getJSON[Account](tx, ledger.TableAccounts, accountKey(id), ErrAccountNotFound)
	if err != nil {
		return acct, err
	}
	normalizeAccountMaps(&acct)
	return acct, nil
}

func saveAccount(tx ledger.Tx, acct Account) error {
	return putJSON(tx, ledger.TableAccounts, accountKey(acct.ID), acct)
}

func loadCase(tx ledger.Tx, id string) (Case, error) {
	return getJSON[Case](tx, ledger.TableCases, id, ErrCaseNotFound)
}

func saveCase(tx ledger.Tx, c Case) error {
	return putJSON(tx, ledger.TableCases, c.ID, c)
}

func loadWithdrawal(tx ledger.Tx, id string) (WithdrawalRequest, error) {
	return getJSON[WithdrawalRequest](tx, ledger.TableWithdrawals, id, ErrWithdrawalNotFound)
}

func saveWithdrawal(tx ledger.Tx, w WithdrawalRequest) error {
	return putJSON(tx, ledger.TableWithdrawals, w.ID, w)
}

func loadPromo(tx ledger.Tx, code string) (PromoCode, error) {
	return getJSON[PromoCode](tx, ledger.TablePromos, code, ErrPromoNotFound)
}

func savePromo(tx ledger.Tx, p PromoCode) error {
	return putJSON(tx, ledger.TablePromos, p.Code, p)
}

func loadStock(tx ledger.Tx, symbol string) (Stock, error) {
	return getJSON[Stock](tx, ledger.TableStocks, symbol, ErrStockNotFound)
}

func saveStock(tx ledger.Tx, s Stock) error {
	return putJSON(tx, ledger.TableStocks, s.Symbol, s)
}

// loadSettings falls back to the defaults until an admin saves settings.
func loadSettings(tx ledger.Tx) (Settings, error) {
	s, err := getJSON[Settings](tx, ledger.TableSettings, settingsKey, ErrNotFound)
	if errors.Is(err, ErrNotFound) {
		return DefaultSettings(), nil
	}
	return s, err
}

func saveSettings(tx ledger.Tx, s Settings) error {
	return putJSON(tx, ledger.TableSettings, settingsKey, s)
}

func normalizeAccountMaps(acct *Account) {
	if acct.OpenedCases == nil {
		acct.OpenedCases = make(map[string]int64)
	}
	if acct.StockHoldings == nil {
		acct.StockHoldings = make(map[string]int64)
	}
}
