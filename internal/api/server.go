package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"casebank/internal/config"
	"casebank/internal/economy"
	"casebank/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	adminContextKey contextKey = "admin"
)

const defaultLeaderboardLimit = 10

// UserContext identifies the player the chat gateway is acting for.
type UserContext struct {
	UserID   int64
	Username string
}

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	eng    *economy.Engine
	admins economy.AdminSet
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, eng *economy.Engine, admins economy.AdminSet) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		eng:    eng,
		admins: admins,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.gatewayMiddleware)

		r.Get("/cases", s.handleCasesList)
		r.Get("/cases/{id}", s.handleCaseGet)
		r.Get("/cases/{id}/can-open", s.handleCaseCanOpen)
		r.Get("/stocks", s.handleStocksList)
		r.Get("/stocks/{symbol}", s.handleStockGet)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.userMiddleware)
			r.Get("/me", s.handleMe)
			r.Post("/cases/{id}/open", s.handleCaseOpen)
			r.Delete("/inventory/{item_id}", s.handleInventoryDelete)
			r.Post("/withdrawals", s.handleWithdrawalCreate)
			r.Get("/withdrawals", s.handleWithdrawalsMine)
			r.Get("/withdrawals/{id}", s.handleWithdrawalMine)
			r.Get("/deposit", s.handleDepositInfo)
			r.Get("/deposit/history", s.handleDepositHistory)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/deposit/withdraw", s.handleDepositWithdraw)
			r.Post("/stocks/{symbol}/buy", s.handleStockBuy)
			r.Post("/stocks/{symbol}/sell", s.handleStockSell)
			r.Get("/portfolio", s.handlePortfolio)
			r.Post("/promos/redeem", s.handlePromoRedeem)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/accounts/{id}/credit", s.handleAdminCredit)
			r.Get("/withdrawals", s.handleAdminPendingWithdrawals)
			r.Get("/withdrawals/{id}", s.handleAdminWithdrawalGet)
			r.Post("/withdrawals/{id}/resolve", s.handleAdminResolveWithdrawal)
			r.Get("/promos", s.handleAdminPromosList)
			r.Post("/promos", s.handleAdminPromoCreate)
			r.Post("/promos/{code}/deactivate", s.handleAdminPromoDeactivate)
			r.Delete("/promos/{code}", s.handleAdminPromoDelete)
			r.Get("/settings", s.handleAdminSettingsGet)
			r.Patch("/settings", s.handleAdminSettingsUpdate)
			r.Post("/stocks", s.handleAdminStockCreate)
			r.Post("/stocks/{symbol}/price", s.handleAdminStockPrice)
			r.Post("/prices/update", s.handleAdminPricesUpdate)
			r.Put("/cases/{id}", s.handleAdminCaseUpsert)
			r.Post("/cases/{id}/restock", s.handleAdminCaseRestock)
			r.Post("/accrual", s.handleAdminAccrual)
			r.Get("/stats", s.handleAdminStats)
			r.Get("/outbox", s.handleAdminOutbox)
		})
	})
}

func (s *Server) gatewayMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userMiddleware resolves X-User-ID and registers the account on first sight.
func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := headerID(r, "X-User-ID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		username := strings.TrimSpace(r.Header.Get("X-Username"))
		if _, err := s.eng.Accounts.Ensure(r.Context(), id, username); err != nil {
			s.writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{UserID: id, Username: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := headerID(r, "X-Admin-ID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		admin, err := s.admins.Authorize(id)
		if err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), adminContextKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	user, ok := ctx.Value(userContextKey).(UserContext)
	if !ok || user.UserID == 0 {
		return UserContext{}, errors.New("missing user context")
	}
	return user, nil
}

func adminFromContext(ctx context.Context) economy.Admin {
	admin, _ := ctx.Value(adminContextKey).(economy.Admin)
	return admin
}

func headerID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing %s header", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s header", name)
	}
	return id, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	acct, err := s.eng.Accounts.Get(r.Context(), user.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleCasesList(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Cases.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": out})
}

func (s *Server) handleCaseGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Cases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCaseCanOpen(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Cases.CanOpen(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCaseOpen(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	item, err := s.eng.Cases.Open(r.Context(), chi.URLParam(r, "id"), user.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleInventoryDelete(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	item, err := s.eng.Accounts.DeleteItem(r.Context(), user.UserID, chi.URLParam(r, "item_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleWithdrawalCreate(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ItemID      string `json:"item_id"`
		ContactInfo string `json:"contact_info"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, created, err := s.eng.Withdrawals.Create(r.Context(), user.UserID, in.ItemID, in.ContactInfo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusConflict, map[string]any{"created": false, "error": "item is already on withdrawal"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": true, "id": id})
}

func (s *Server) handleWithdrawalsMine(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.eng.Withdrawals.ListForUser(r.Context(), user.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": out})
}

// handleWithdrawalMine hides other users' requests behind a not-found.
func (s *Server) handleWithdrawalMine(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.eng.Withdrawals.Get(r.Context(), chi.URLParam(r, "id"))
	if err == nil && out.UserID != user.UserID {
		err = economy.ErrWithdrawalNotFound
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDepositInfo(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.eng.Deposits.Info(r.Context(), user.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDepositHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Accounts.DepositHistory(r.Context(), user.UserID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

type amountInput struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleDepositMove(w, r, s.eng.Deposits.Deposit)
}

func (s *Server) handleDepositWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleDepositMove(w, r, s.eng.Deposits.WithdrawFromDeposit)
}

func (s *Server) handleDepositMove(w http.ResponseWriter, r *http.Request, move func(context.Context, int64, decimal.Decimal) (economy.DepositResult, error)) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := move(r.Context(), user.UserID, in.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStocksList(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Market.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stocks": out})
}

func (s *Server) handleStockGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Market.Get(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStockBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.eng.Market.Buy)
}

func (s *Server) handleStockSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.eng.Market.Sell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, trade func(context.Context, int64, string, int64) (economy.TradeResult, error)) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := trade(r.Context(), user.UserID, chi.URLParam(r, "symbol"), in.Quantity)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.eng.Market.Portfolio(r.Context(), user.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePromoRedeem(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Promos.Redeem(r.Context(), user.UserID, in.Code)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLeaderboardLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaders": out})
}

func (s *Server) handleAdminCredit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Accounts.Credit(r.Context(), adminFromContext(r.Context()), id, in.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Withdrawals.ListPending(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": out})
}

func (s *Server) handleAdminWithdrawalGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Withdrawals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := economy.WithdrawalStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	out, err := s.eng.Withdrawals.Resolve(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "id"), status, in.Notes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminPromosList(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Promos.List(r.Context(), r.URL.Query().Get("active") == "1")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promos": out})
}

func (s *Server) handleAdminPromoCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code    string          `json:"code"`
		Amount  decimal.Decimal `json:"amount"`
		MaxUses int64           `json:"max_uses"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Promos.Create(r.Context(), adminFromContext(r.Context()), in.Code, in.Amount, in.MaxUses)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAdminPromoDeactivate(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Promos.Deactivate(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminPromoDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Promos.Delete(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "code")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleAdminSettingsGet(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Settings.Get(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var in economy.SettingsPatch
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Settings.Update(r.Context(), adminFromContext(r.Context()), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminStockCreate(w http.ResponseWriter, r *http.Request) {
	var in economy.Stock
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Market.CreateStock(r.Context(), adminFromContext(r.Context()), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAdminStockPrice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Market.SetPrice(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "symbol"), in.Price)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminPricesUpdate(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Market.UpdatePrices(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.log.Info("prices updated by admin", "admin_id", adminFromContext(r.Context()).ID(), "stocks", len(out))
	writeJSON(w, http.StatusOK, map[string]any{"stocks": out})
}

func (s *Server) handleAdminCaseUpsert(w http.ResponseWriter, r *http.Request) {
	var in economy.Case
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.ID == "" {
		in.ID = chi.URLParam(r, "id")
	}
	if in.ID != chi.URLParam(r, "id") {
		writeError(w, http.StatusBadRequest, "case id does not match path")
		return
	}
	out, err := s.eng.Cases.Upsert(r.Context(), adminFromContext(r.Context()), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminCaseRestock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Opens int64 `json:"opens"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eng.Cases.Restock(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "id"), in.Opens)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminAccrual(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		period = s.eng.Deposits.CurrentPeriod()
	}
	out, err := s.eng.Deposits.AccrueAll(r.Context(), period)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.log.Info("accrual run by admin", "admin_id", adminFromContext(r.Context()).ID(), "period", out.Period, "accounts", out.Accounts)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.eng.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	pending, err := s.eng.PendingNotifications(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrConflict) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	switch economy.KindOf(err) {
	case economy.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case economy.KindPrecondition:
		writeError(w, http.StatusConflict, err.Error())
	case economy.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case economy.KindUnauthorized:
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
