package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"casebank/internal/economy"

	"github.com/shopspring/decimal"
)

// Client talks to the casebank admin API on behalf of one administrator.
type Client struct {
	BaseURL string
	Token   string
	AdminID int64
	HTTP    *http.Client
}

func NewClient(baseURL, token string, adminID int64) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		AdminID: adminID,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) Cases(ctx context.Context) ([]economy.Case, error) {
	var out struct {
		Cases []economy.Case `json:"cases"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/cases", nil, &out)
	return out.Cases, err
}

func (c *Client) Stocks(ctx context.Context) ([]economy.Stock, error) {
	var out struct {
		Stocks []economy.Stock `json:"stocks"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/stocks", nil, &out)
	return out.Stocks, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]economy.LeaderboardEntry, error) {
	var out struct {
		Leaders []economy.LeaderboardEntry `json:"leaders"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard?limit="+strconv.Itoa(limit), nil, &out)
	return out.Leaders, err
}

func (c *Client) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (economy.Account, error) {
	var out economy.Account
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/admin/accounts/%d/credit", userID), map[string]any{
		"amount": amount,
	}, &out)
	return out, err
}

func (c *Client) PendingWithdrawals(ctx context.Context) ([]economy.WithdrawalRequest, error) {
	var out struct {
		Withdrawals []economy.WithdrawalRequest `json:"withdrawals"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/withdrawals", nil, &out)
	return out.Withdrawals, err
}

func (c *Client) Withdrawal(ctx context.Context, id string) (economy.WithdrawalRequest, error) {
	var out economy.WithdrawalRequest
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/withdrawals/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ResolveWithdrawal(ctx context.Context, id string, status economy.WithdrawalStatus, notes string) (economy.WithdrawalRequest, error) {
	var out economy.WithdrawalRequest
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/withdrawals/"+url.PathEscape(id)+"/resolve", map[string]any{
		"status": status,
		"notes":  notes,
	}, &out)
	return out, err
}

func (c *Client) Promos(ctx context.Context, activeOnly bool) ([]economy.PromoCode, error) {
	path := "/v1/admin/promos"
	if activeOnly {
		path += "?active=1"
	}
	var out struct {
		Promos []economy.PromoCode `json:"promos"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Promos, err
}

func (c *Client) CreatePromo(ctx context.Context, code string, amount decimal.Decimal, maxUses int64) (economy.PromoCode, error) {
	var out economy.PromoCode
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/promos", map[string]any{
		"code":     code,
		"amount":   amount,
		"max_uses": maxUses,
	}, &out)
	return out, err
}

func (c *Client) DeactivatePromo(ctx context.Context, code string) (economy.PromoCode, error) {
	var out economy.PromoCode
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/promos/"+url.PathEscape(code)+"/deactivate", nil, &out)
	return out, err
}

func (c *Client) DeletePromo(ctx context.Context, code string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/admin/promos/"+url.PathEscape(code), nil, nil)
}

func (c *Client) Settings(ctx context.Context) (economy.Settings, error) {
	var out economy.Settings
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, patch economy.SettingsPatch) (economy.Settings, error) {
	var out economy.Settings
	err := c.jsonRequest(ctx, http.MethodPatch, "/v1/admin/settings", patch, &out)
	return out, err
}

func (c *Client) CreateStock(ctx context.Context, in economy.Stock) (economy.Stock, error) {
	var out economy.Stock
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/stocks", in, &out)
	return out, err
}

func (c *Client) SetStockPrice(ctx context.Context, symbol string, price decimal.Decimal) (economy.Stock, error) {
	var out economy.Stock
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/stocks/"+url.PathEscape(symbol)+"/price", map[string]any{
		"price": price,
	}, &out)
	return out, err
}

func (c *Client) UpdatePrices(ctx context.Context) ([]economy.Stock, error) {
	var out struct {
		Stocks []economy.Stock `json:"stocks"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/prices/update", nil, &out)
	return out.Stocks, err
}

func (c *Client) UpsertCase(ctx context.Context, in economy.Case) (economy.Case, error) {
	var out economy.Case
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/admin/cases/"+url.PathEscape(in.ID), in, &out)
	return out, err
}

func (c *Client) RestockCase(ctx context.Context, caseID string, opens int64) (economy.Case, error) {
	var out economy.Case
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/cases/"+url.PathEscape(caseID)+"/restock", map[string]any{
		"opens": opens,
	}, &out)
	return out, err
}

// RunAccrual credits interest for period, or the current month when empty.
func (c *Client) RunAccrual(ctx context.Context, period string) (economy.AccrualResult, error) {
	path := "/v1/admin/accrual"
	if period != "" {
		path += "?period=" + url.QueryEscape(period)
	}
	var out economy.AccrualResult
	err := c.jsonRequest(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (economy.Stats, error) {
	var out economy.Stats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/stats", nil, &out)
	return out, err
}

func (c *Client) PendingNotifications(ctx context.Context) (int, error) {
	var out struct {
		Pending int `json:"pending"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/outbox", nil, &out)
	return out.Pending, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.AdminID != 0 {
		req.Header.Set("X-Admin-ID", strconv.FormatInt(c.AdminID, 10))
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
