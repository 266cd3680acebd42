package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/services"
)

const maxCartRequestBody = 16 * 1024

// CartHandlers exposes the mutable cart for the authenticated buyer.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs cart handlers backed by the given cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes registers cart endpoints under the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r.With(RequireUser())
	group.Get("/", h.getCart)
	group.Get("/items", h.getCart)
	group.Post("/items", h.addItem)
	group.Delete("/items", h.clearCart)
	group.Patch("/items/{productID}", h.updateItem)
	group.Delete("/items/{productID}", h.removeItem)
}

type cartItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartPayload struct {
	UserID    string            `json:"userId"`
	Items     []cartItemPayload `json:"items"`
	CreatedAt string            `json:"createdAt,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return cartPayload{
		UserID:    cart.UserID,
		Items:     items,
		CreatedAt: formatTime(cart.CreatedAt),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cart, err := h.carts.GetCart(ctx, currentUserID(ctx))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeItemRequest(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.AddItem(ctx, services.CartItemCommand{
		UserID:    currentUserID(ctx),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeItemRequest(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.UpdateItem(ctx, services.CartItemCommand{
		UserID:    currentUserID(ctx),
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cart, err := h.carts.RemoveItem(ctx, currentUserID(ctx), chi.URLParam(r, "productID"))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.carts.ClearCart(ctx, currentUserID(ctx)); err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) decodeItemRequest(w http.ResponseWriter, r *http.Request) (cartItemRequest, bool) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxCartRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return cartItemRequest{}, false
	}

	var req cartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return cartItemRequest{}, false
	}
	return req, true
}
