package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/services"
)

const maxBalanceRequestBody = 4 * 1024

// BalanceHandlers exposes the append-only balance ledger for the
// authenticated user.
type BalanceHandlers struct {
	ledger services.LedgerService
}

// NewBalanceHandlers constructs balance handlers backed by the ledger service.
func NewBalanceHandlers(ledger services.LedgerService) *BalanceHandlers {
	return &BalanceHandlers{ledger: ledger}
}

// Routes registers balance endpoints under the provided router.
func (h *BalanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r.With(RequireUser())
	group.Get("/", h.currentBalance)
	group.Get("/history", h.history)
	group.Post("/deposits", h.deposit)
	group.Post("/withdrawals", h.withdraw)
}

type balanceResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

type balanceEventPayload struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Reference string `json:"reference,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type balanceHistoryResponse struct {
	UserID  string                `json:"userId"`
	Balance int64                 `json:"balance"`
	Events  []balanceEventPayload `json:"events"`
}

type balanceMoveRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

func (h *BalanceHandlers) currentBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(ctx)

	balance, err := h.ledger.CurrentBalance(ctx, userID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}

func (h *BalanceHandlers) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(ctx)

	events, err := h.ledger.History(ctx, userID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	resp := balanceHistoryResponse{
		UserID: userID,
		Events: make([]balanceEventPayload, 0, len(events)),
	}
	for _, event := range events {
		resp.Balance += event.Signed()
		resp.Events = append(resp.Events, balanceEventPayload{
			ID:        event.ID,
			Amount:    event.Amount,
			Kind:      string(event.Kind),
			Reference: event.Reference,
			CreatedAt: formatTime(event.CreatedAt),
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *BalanceHandlers) deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Deposit)
}

func (h *BalanceHandlers) withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Withdraw)
}

func (h *BalanceHandlers) move(w http.ResponseWriter, r *http.Request, apply func(context.Context, services.BalanceCommand) (services.BalanceEvent, error)) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxBalanceRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req balanceMoveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	event, err := apply(ctx, services.BalanceCommand{
		UserID:    currentUserID(ctx),
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, balanceEventPayload{
		ID:        event.ID,
		Amount:    event.Amount,
		Kind:      string(event.Kind),
		Reference: event.Reference,
		CreatedAt: formatTime(event.CreatedAt),
	})
}
