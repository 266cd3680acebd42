package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/services"
)

const maxCheckoutRequestBody = 16 * 1024

// CheckoutHandlers turns carts into orders, optionally settling them in the
// same request.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	payments services.PaymentService
}

// NewCheckoutHandlers constructs checkout handlers backed by the given services.
func NewCheckoutHandlers(checkout services.CheckoutService, payments services.PaymentService) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout: checkout,
		payments: payments,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r.With(RequireUser())
	group.Post("/", h.checkoutCart)
}

type checkoutAddressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type checkoutRequest struct {
	PaymentMethod   string                 `json:"paymentMethod"`
	ShippingAddress checkoutAddressRequest `json:"shippingAddress"`
	SelectedItemIDs []string               `json:"selectedItemIds"`
	PromoCode       string                 `json:"promoCode"`
	PayImmediately  bool                   `json:"payImmediately"`
}

type checkoutResponse struct {
	Orders  []orderPayload  `json:"orders"`
	Payment *payAllResponse `json:"payment,omitempty"`
}

func (h *CheckoutHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	method := domain.PaymentMethod(strings.TrimSpace(strings.ToLower(req.PaymentMethod)))
	if req.PayImmediately && method != domain.PaymentBalance {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payImmediately requires the balance payment method", http.StatusBadRequest))
		return
	}

	userID := currentUserID(ctx)
	promoCode := strings.TrimSpace(req.PromoCode)

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:        userID,
		PaymentMethod: method,
		ShippingAddress: services.Address{
			Recipient:  strings.TrimSpace(req.ShippingAddress.Recipient),
			Line1:      strings.TrimSpace(req.ShippingAddress.Line1),
			Line2:      strings.TrimSpace(req.ShippingAddress.Line2),
			City:       strings.TrimSpace(req.ShippingAddress.City),
			PostalCode: strings.TrimSpace(req.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(req.ShippingAddress.Country),
		},
		SelectedItemIDs: req.SelectedItemIDs,
		PromoCode:       promoCode,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	resp := checkoutResponse{Orders: make([]orderPayload, 0, len(result.Orders))}
	for _, order := range result.Orders {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}

	// Immediate settlement runs after the checkout commit. The orders exist
	// regardless of the payment outcome; per-order failures come back in the
	// payment section rather than failing the whole request.
	if req.PayImmediately && len(result.Orders) > 0 {
		orderIDs := make([]string, 0, len(result.Orders))
		for _, order := range result.Orders {
			orderIDs = append(orderIDs, order.ID)
		}
		payResult, err := h.payments.PayAll(ctx, services.PayAllCommand{
			UserID:    userID,
			OrderIDs:  orderIDs,
			PromoCode: promoCode,
		})
		if err != nil {
			writeEngineError(ctx, w, err)
			return
		}
		payment := buildPayAllResponse(payResult)
		resp.Payment = &payment

		// Reflect settled statuses in the order list.
		paid := make(map[string]orderPayload, len(payment.Paid))
		for _, order := range payment.Paid {
			paid[order.ID] = order
		}
		for i, order := range resp.Orders {
			if settled, ok := paid[order.ID]; ok {
				resp.Orders[i] = settled
			}
		}
	}

	writeJSONResponse(w, http.StatusCreated, resp)
}
