package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/services"
)

const maxOrderRequestBody = 8 * 1024

// OrderHandlers exposes order reads, payment and lifecycle transitions for the
// authenticated buyer.
type OrderHandlers struct {
	orders   services.OrderService
	payments services.PaymentService
}

// NewOrderHandlers constructs order handlers backed by the given services.
func NewOrderHandlers(orders services.OrderService, payments services.PaymentService) *OrderHandlers {
	return &OrderHandlers{
		orders:   orders,
		payments: payments,
	}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r.With(RequireUser())
	group.Get("/", h.listOrders)
	group.Post("/pay", h.payAll)
	group.Get("/{orderID}", h.getOrder)
	group.Get("/{orderID}/allowed-events", h.allowedEvents)
	group.Post("/{orderID}/pay", h.payOrder)
	group.Post("/{orderID}/transition", h.transitionOrder)
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderStatusPayload struct {
	Kind         string `json:"kind"`
	PaidAt       string `json:"paidAt,omitempty"`
	ShippedAt    string `json:"shippedAt,omitempty"`
	Tracking     string `json:"tracking,omitempty"`
	DeliveredAt  string `json:"deliveredAt,omitempty"`
	CancelReason string `json:"cancelReason,omitempty"`
	RefundedAt   string `json:"refundedAt,omitempty"`
	RefundReason string `json:"refundReason,omitempty"`
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	UserID          string             `json:"userId"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        int64              `json:"subtotal"`
	Shipping        int64              `json:"shipping"`
	Discount        int64              `json:"discount"`
	Total           int64              `json:"total"`
	PromoCode       string             `json:"promoCode,omitempty"`
	Status          orderStatusPayload `json:"status"`
	PaymentMethod   string             `json:"paymentMethod"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	CreatedAt       string             `json:"createdAt,omitempty"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type payFailurePayload struct {
	OrderID string         `json:"orderId"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type payAllResponse struct {
	Paid     []orderPayload      `json:"paid"`
	Failures []payFailurePayload `json:"failures"`
}

type transitionRequest struct {
	Event    string `json:"event"`
	Tracking string `json:"tracking"`
	Reason   string `json:"reason"`
}

type payRequest struct {
	PromoCode string `json:"promoCode"`
}

type payAllRequest struct {
	OrderIDs  []string `json:"orderIds"`
	PromoCode string   `json:"promoCode"`
}

type allowedEventsResponse struct {
	Events []string `json:"events"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	payload := orderPayload{
		ID:       order.ID,
		UserID:   order.UserID,
		Items:    items,
		Subtotal: order.Subtotal,
		Shipping: order.Shipping,
		Discount: order.Discount,
		Total:    order.Total,
		Status: orderStatusPayload{
			Kind:         string(order.Status.Kind),
			PaidAt:       formatTimePtr(order.Status.PaidAt),
			ShippedAt:    formatTimePtr(order.Status.ShippedAt),
			Tracking:     order.Status.Tracking,
			DeliveredAt:  formatTimePtr(order.Status.DeliveredAt),
			CancelReason: order.Status.CancelReason,
			RefundedAt:   formatTimePtr(order.Status.RefundedAt),
			RefundReason: order.Status.RefundReason,
		},
		PaymentMethod: string(order.PaymentMethod),
		ShippingAddress: addressPayload{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if order.PromoCode != nil {
		payload.PromoCode = *order.PromoCode
	}
	return payload
}

func buildPayFailurePayload(failure services.PayFailure) payFailurePayload {
	payload := payFailurePayload{
		OrderID: failure.OrderID,
		Code:    "internal_error",
		Message: "failed to settle order",
	}
	var engineErr *services.Error
	if errors.As(failure.Err, &engineErr) {
		payload.Code = strings.ToLower(string(engineErr.Code))
		payload.Message = engineErr.Message
		payload.Details = engineErr.Details
	} else if failure.Err != nil {
		payload.Message = failure.Err.Error()
	}
	return payload
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.OrderListFilter{
		UserID: currentUserID(ctx),
		Pagination: services.Pagination{
			PageToken: strings.TrimSpace(query.Get("pageToken")),
		},
	}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Pagination.PageSize = size
	}
	for _, status := range query["status"] {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			filter.Status = append(filter.Status, trimmed)
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.orders.GetOrder(ctx, currentUserID(ctx), chi.URLParam(r, "orderID"))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) allowedEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.orders.AllowedEvents(ctx, currentUserID(ctx), chi.URLParam(r, "orderID"))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	resp := allowedEventsResponse{Events: make([]string, 0, len(events))}
	for _, event := range events {
		resp.Events = append(resp.Events, string(event))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req payRequest
	if r.ContentLength != 0 {
		body, err := readLimitedBody(r, maxOrderRequestBody)
		if err != nil {
			writeBodyError(ctx, w, err)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.payments.Pay(ctx, services.PayCommand{
		UserID:    currentUserID(ctx),
		OrderID:   chi.URLParam(r, "orderID"),
		PromoCode: strings.TrimSpace(req.PromoCode),
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) payAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req payAllRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.payments.PayAll(ctx, services.PayAllCommand{
		UserID:    currentUserID(ctx),
		OrderIDs:  req.OrderIDs,
		PromoCode: strings.TrimSpace(req.PromoCode),
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPayAllResponse(result))
}

func buildPayAllResponse(result services.PayAllResult) payAllResponse {
	resp := payAllResponse{
		Paid:     make([]orderPayload, 0, len(result.Paid)),
		Failures: make([]payFailurePayload, 0, len(result.Failures)),
	}
	for _, order := range result.Paid {
		resp.Paid = append(resp.Paid, buildOrderPayload(order))
	}
	for _, failure := range result.Failures {
		resp.Failures = append(resp.Failures, buildPayFailurePayload(failure))
	}
	return resp
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req transitionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	event, err := parseLifecycleEvent(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.Transition(ctx, services.TransitionCommand{
		UserID:  currentUserID(ctx),
		OrderID: chi.URLParam(r, "orderID"),
		Event:   event,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// parseLifecycleEvent maps the wire event name onto the domain event type.
// Timestamps are left zero; the engine stamps them with its own clock.
// confirm_payment parses fine and is rejected downstream so the caller gets
// the stable INVALID_EVENT code instead of a generic parse failure.
func parseLifecycleEvent(req transitionRequest) (domain.OrderLifecycleEvent, error) {
	switch domain.EventKind(strings.TrimSpace(strings.ToLower(req.Event))) {
	case domain.EventShip:
		return domain.Ship{Tracking: strings.TrimSpace(req.Tracking)}, nil
	case domain.EventDeliver:
		return domain.Deliver{}, nil
	case domain.EventCancel:
		return domain.Cancel{Reason: strings.TrimSpace(req.Reason)}, nil
	case domain.EventRefund:
		return domain.Refund{Reason: strings.TrimSpace(req.Reason)}, nil
	case domain.EventConfirmPayment:
		return domain.ConfirmPayment{}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", strings.TrimSpace(req.Event))
	}
}
