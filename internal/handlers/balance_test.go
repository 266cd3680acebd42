package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/services"
)

func newBalanceRouter(ledger services.LedgerService) chi.Router {
	router := chi.NewRouter()
	router.Route("/balance", NewBalanceHandlers(ledger).Routes)
	return router
}

func TestBalanceHandlersCurrentBalance(t *testing.T) {
	ledger := &stubLedgerService{
		currentBalanceFunc: func(ctx context.Context, userID string) (int64, error) {
			if userID != "user-2" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return 4100, nil
		},
	}

	router := newBalanceRouter(ledger)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/balance", "user-2", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp balanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Balance != 4100 || resp.UserID != "user-2" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestBalanceHandlersHistoryFoldsEvents(t *testing.T) {
	created := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	ledger := &stubLedgerService{
		historyFunc: func(ctx context.Context, userID string) ([]services.BalanceEvent, error) {
			return []services.BalanceEvent{
				{ID: "bev_1", UserID: userID, Amount: 5000, Kind: domain.BalanceDeposit, CreatedAt: created},
				{ID: "bev_2", UserID: userID, Amount: 1200, Kind: domain.BalancePayment, Reference: "ord_1", CreatedAt: created.Add(time.Hour)},
			}, nil
		},
	}

	router := newBalanceRouter(ledger)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/balance/history", "user-2", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp balanceHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Balance != 3800 {
		t.Fatalf("expected folded balance 3800, got %d", resp.Balance)
	}
	if len(resp.Events) != 2 || resp.Events[1].Reference != "ord_1" {
		t.Fatalf("unexpected events %#v", resp.Events)
	}
}

func TestBalanceHandlersDeposit(t *testing.T) {
	var captured services.BalanceCommand
	ledger := &stubLedgerService{
		depositFunc: func(ctx context.Context, cmd services.BalanceCommand) (services.BalanceEvent, error) {
			captured = cmd
			return services.BalanceEvent{ID: "bev_1", UserID: cmd.UserID, Amount: cmd.Amount, Kind: domain.BalanceDeposit}, nil
		},
	}

	router := newBalanceRouter(ledger)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/balance/deposits", "user-2", `{"amount":5000,"reference":"topup"}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-2" || captured.Amount != 5000 || captured.Reference != "topup" {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp balanceEventPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Kind != string(domain.BalanceDeposit) || resp.Amount != 5000 {
		t.Fatalf("unexpected event %#v", resp)
	}
}

func TestBalanceHandlersWithdrawInsufficient(t *testing.T) {
	ledger := &stubLedgerService{
		withdrawFunc: func(ctx context.Context, cmd services.BalanceCommand) (services.BalanceEvent, error) {
			return services.BalanceEvent{}, services.NewError(services.CodeInsufficientBalance, "balance is insufficient").
				WithDetails(map[string]any{"available": int64(300), "required": int64(500)})
		},
	}

	router := newBalanceRouter(ledger)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/balance/withdrawals", "user-2", `{"amount":500}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "insufficient_balance" || body["available"] != float64(300) {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestBalanceHandlersRejectInvalidJSON(t *testing.T) {
	router := newBalanceRouter(&stubLedgerService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/balance/deposits", "user-2", `{"amount":`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}
