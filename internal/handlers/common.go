package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/platform/requestctx"
	"github.com/orderforge/engine/internal/services"
)

// UserIDHeader names the header the identity shim reads. Upstream gateways are
// expected to strip and re-set it after authenticating the caller.
const UserIDHeader = "X-User-ID"

var (
	errEmptyBody    = errors.New("request body must not be empty")
	errBodyTooLarge = errors.New("request body exceeds the allowed size")
)

// RequireUser extracts the caller identity from the X-User-ID header and
// stores it on the request context. Requests without an identity are rejected.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			ctx := requestctx.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func currentUserID(ctx context.Context) string {
	return strings.TrimSpace(requestctx.UserID(ctx))
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// statusForCode maps stable engine error codes to HTTP status classes. Input
// problems are 400, missing resources 404, state conflicts 409 and business
// rule rejections 422.
func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.CodeInvalidInput, services.CodeInvalidQuantity, services.CodeInvalidEvent:
		return http.StatusBadRequest
	case services.CodeCartNotFound, services.CodeProductNotFound,
		services.CodeOrderNotFound, services.CodePromoCodeNotFound:
		return http.StatusNotFound
	case services.CodeInsufficientStock, services.CodeInsufficientBalance,
		services.CodeInvalidOrderStatus, services.CodeIllegalTransition:
		return http.StatusConflict
	case services.CodeCartEmpty, services.CodeCartTooLarge,
		services.CodePromoCodeInactive, services.CodePromoCodeExpired,
		services.CodePromoCodeExhausted, services.CodePromoMinPurchaseNotMet,
		services.CodePromoCategoryMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type violationPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeEngineError translates engine errors into the canonical JSON envelope.
// Cart validation failures carry every violation so clients can surface all
// problems at once.
func writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validation *services.CartValidationError
	if errors.As(err, &validation) {
		violations := make([]violationPayload, 0, len(validation.Violations))
		for _, v := range validation.Violations {
			violations = append(violations, violationPayload{
				Code:    string(v.Code),
				Message: v.Message,
				Details: v.Details,
			})
		}
		httpx.WriteError(ctx, w, httpx.
			NewError("cart_validation_failed", "cart validation failed", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"violations": violations}))
		return
	}

	var engineErr *services.Error
	if errors.As(err, &engineErr) {
		httpx.WriteError(ctx, w, httpx.
			NewError(strings.ToLower(string(engineErr.Code)), engineErr.Message, statusForCode(engineErr.Code)).
			WithDetails(engineErr.Details))
		return
	}

	switch {
	case errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrLedgerInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}
