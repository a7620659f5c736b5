package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"casebank/internal/config"
	"casebank/internal/economy"
	"casebank/internal/ledger"
	"casebank/internal/random"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testToken   = "gateway-secret"
	testAdminID = int64(77)
	testUserID  = int64(1001)
)

type testServer struct {
	t   *testing.T
	eng *economy.Engine
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	eng, err := economy.New(ledger.NewMemory(), economy.Options{
		Clock: func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) },
		Rand:  random.NewSequence(0),
	})
	require.NoError(t, err)
	require.NoError(t, eng.SeedDefaults(context.Background()))

	cfg := config.APIConfig{APIToken: testToken, RequestTimeout: 5 * time.Second}
	s := New(cfg, nil, eng, economy.NewAdminSet(testAdminID))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{t: t, eng: eng, srv: srv}
}

type call struct {
	method  string
	path    string
	body    any
	userID  int64
	adminID int64
	token   string
}

func (ts *testServer) do(c call, out any) int {
	ts.t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(ts.t, json.NewEncoder(&body).Encode(c.body))
	}
	req, err := http.NewRequest(c.method, ts.srv.URL+c.path, &body)
	require.NoError(ts.t, err)
	token := c.token
	if token == "" {
		token = testToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))
		req.Header.Set("X-Username", "tester")
	}
	if c.adminID != 0 {
		req.Header.Set("X-Admin-ID", strconv.FormatInt(c.adminID, 10))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) credit(userID int64, amount string) {
	ts.t.Helper()
	ts.do(call{method: http.MethodGet, path: "/v1/me", userID: userID}, nil)
	status := ts.do(call{
		method:  http.MethodPost,
		path:    "/v1/admin/accounts/" + strconv.FormatInt(userID, 10) + "/credit",
		body:    map[string]any{"amount": amount},
		adminID: testAdminID,
	}, nil)
	if status != http.StatusOK {
		ts.t.Fatalf("credit status = %d", status)
	}
}

func TestHealthzNeedsNoToken(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestGatewayTokenRequired(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/v1/cases", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}

	if status := ts.do(call{method: http.MethodGet, path: "/v1/cases", token: "wrong"}, nil); status != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", status)
	}
}

func TestUserRoutesRequireUserHeader(t *testing.T) {
	ts := newTestServer(t)
	if status := ts.do(call{method: http.MethodGet, path: "/v1/me"}, nil); status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	ts := newTestServer(t)
	if status := ts.do(call{method: http.MethodGet, path: "/v1/admin/stats", adminID: testUserID}, nil); status != http.StatusForbidden {
		t.Fatalf("status = %d", status)
	}
	if status := ts.do(call{method: http.MethodGet, path: "/v1/admin/stats", adminID: testAdminID}, nil); status != http.StatusOK {
		t.Fatalf("admin status = %d", status)
	}
}

func TestOpenCaseAndWithdrawFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.credit(testUserID, "100")

	var item economy.Item
	status := ts.do(call{method: http.MethodPost, path: "/v1/cases/adobe_animate_case/open", userID: testUserID}, &item)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "5_atm", item.SourceItemID)

	var acct economy.Account
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/me", userID: testUserID}, &acct))
	require.True(t, acct.Balance.Equal(decimal.NewFromInt(90)), "balance %s", acct.Balance)
	require.Len(t, acct.Inventory, 1)

	var created struct {
		Created bool   `json:"created"`
		ID      string `json:"id"`
	}
	status = ts.do(call{
		method: http.MethodPost,
		path:   "/v1/withdrawals",
		body:   map[string]any{"item_id": item.ItemID, "contact_info": "@tester"},
		userID: testUserID,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, created.Created)

	status = ts.do(call{
		method: http.MethodPost,
		path:   "/v1/withdrawals",
		body:   map[string]any{"item_id": item.ItemID, "contact_info": "@tester"},
		userID: testUserID,
	}, nil)
	require.Equal(t, http.StatusConflict, status)

	var pending struct {
		Withdrawals []economy.WithdrawalRequest `json:"withdrawals"`
	}
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/admin/withdrawals", adminID: testAdminID}, &pending))
	require.Len(t, pending.Withdrawals, 1)
	require.Equal(t, created.ID, pending.Withdrawals[0].ID)

	var got economy.WithdrawalRequest
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/admin/withdrawals/" + created.ID, adminID: testAdminID}, &got))
	require.Equal(t, economy.WithdrawalPending, got.Status)
	require.Equal(t, item.ItemID, got.ItemSnapshot.ItemID)
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/withdrawals/" + created.ID, userID: testUserID}, &got))
	require.Equal(t, testUserID, got.UserID)
	require.Equal(t, http.StatusNotFound, ts.do(call{method: http.MethodGet, path: "/v1/withdrawals/" + created.ID, userID: testUserID + 1}, nil))
	require.Equal(t, http.StatusNotFound, ts.do(call{method: http.MethodGet, path: "/v1/admin/withdrawals/wd-missing", adminID: testAdminID}, nil))

	var resolved economy.WithdrawalRequest
	status = ts.do(call{
		method:  http.MethodPost,
		path:    "/v1/admin/withdrawals/" + created.ID + "/resolve",
		body:    map[string]any{"status": "approved", "notes": "sent"},
		adminID: testAdminID,
	}, &resolved)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, economy.WithdrawalApproved, resolved.Status)

	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/me", userID: testUserID}, &acct))
	require.Empty(t, acct.Inventory)
	require.Empty(t, acct.ItemsOnWithdrawal)
}

func TestDomainErrorStatusCodes(t *testing.T) {
	ts := newTestServer(t)

	status := ts.do(call{method: http.MethodPost, path: "/v1/cases/durov_case/open", userID: testUserID}, nil)
	if status != http.StatusConflict {
		t.Fatalf("insufficient funds status = %d", status)
	}

	status = ts.do(call{method: http.MethodPost, path: "/v1/cases/no_such_case/open", userID: testUserID}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown case status = %d", status)
	}

	status = ts.do(call{method: http.MethodPost, path: "/v1/deposit", body: map[string]any{"amount": "-5"}, userID: testUserID}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("negative deposit status = %d", status)
	}

	status = ts.do(call{method: http.MethodPost, path: "/v1/deposit", body: map[string]any{"bogus": 1}, userID: testUserID}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", status)
	}
}

func TestPromoLifecycle(t *testing.T) {
	ts := newTestServer(t)

	var promo economy.PromoCode
	status := ts.do(call{
		method:  http.MethodPost,
		path:    "/v1/admin/promos",
		body:    map[string]any{"code": "spring", "amount": "15", "max_uses": 1},
		adminID: testAdminID,
	}, &promo)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "SPRING", promo.Code)

	var redeemed economy.RedeemResult
	status = ts.do(call{method: http.MethodPost, path: "/v1/promos/redeem", body: map[string]any{"code": "spring"}, userID: testUserID}, &redeemed)
	require.Equal(t, http.StatusOK, status)
	require.True(t, redeemed.Balance.Equal(decimal.NewFromInt(15)))

	status = ts.do(call{method: http.MethodPost, path: "/v1/promos/redeem", body: map[string]any{"code": "SPRING"}, userID: testUserID + 1}, nil)
	require.Equal(t, http.StatusConflict, status)

	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodDelete, path: "/v1/admin/promos/SPRING", adminID: testAdminID}, nil))
	status = ts.do(call{method: http.MethodPost, path: "/v1/promos/redeem", body: map[string]any{"code": "SPRING"}, userID: testUserID + 2}, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestDepositAndAccrual(t *testing.T) {
	ts := newTestServer(t)
	ts.credit(testUserID, "200")

	var res economy.DepositResult
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodPost, path: "/v1/deposit", body: map[string]any{"amount": "100"}, userID: testUserID}, &res))
	require.True(t, res.DepositBalance.Equal(decimal.NewFromInt(100)))

	var accrual economy.AccrualResult
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodPost, path: "/v1/admin/accrual?period=2026-03", adminID: testAdminID}, &accrual))
	require.Equal(t, 1, accrual.Accounts)
	require.True(t, accrual.TotalProfit.Equal(decimal.NewFromInt(5)))

	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodPost, path: "/v1/admin/accrual?period=2026-03", adminID: testAdminID}, &accrual))
	require.Equal(t, 0, accrual.Accounts)

	require.Equal(t, http.StatusBadRequest, ts.do(call{method: http.MethodPost, path: "/v1/admin/accrual?period=bogus", adminID: testAdminID}, nil))
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodPost, path: "/v1/admin/accrual?period=2026-02", adminID: testAdminID}, &accrual))
	require.Equal(t, 0, accrual.Accounts)

	var info economy.DepositInfo
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/deposit", userID: testUserID}, &info))
	require.True(t, info.DepositBalance.Equal(decimal.NewFromInt(105)))
}

func TestMarketTrade(t *testing.T) {
	ts := newTestServer(t)
	ts.credit(testUserID, "10000")

	var trade economy.TradeResult
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodPost, path: "/v1/stocks/AAPL/buy", body: map[string]any{"quantity": 2}, userID: testUserID}, &trade))
	require.Equal(t, int64(2), trade.Holding)

	var portfolio economy.Portfolio
	require.Equal(t, http.StatusOK, ts.do(call{method: http.MethodGet, path: "/v1/portfolio", userID: testUserID}, &portfolio))
	require.Len(t, portfolio.Lines, 1)

	status := ts.do(call{method: http.MethodPost, path: "/v1/stocks/AAPL/sell", body: map[string]any{"quantity": 5}, userID: testUserID}, nil)
	require.Equal(t, http.StatusConflict, status)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic abc":      "",
		"Bearerabc":      "",
		"  Bearer xyz  ": "xyz",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q want %q", header, got, want)
		}
	}
}
