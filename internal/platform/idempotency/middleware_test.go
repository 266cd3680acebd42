package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedTime = time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

func newCheckoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewareMissingHeader(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	handlerCalled := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		handlerCalled = true
	})

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, newCheckoutRequest("", `{"paymentMethod":"balance"}`))

	if handlerCalled {
		t.Fatal("handler should not be invoked when header is missing")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orders":[{"id":"ord_1"}]}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newCheckoutRequest("abc-123", `{"paymentMethod":"balance"}`))

	if calls != 1 {
		t.Fatalf("expected handler to be called once, got %d", calls)
	}
	if rr1.Code != http.StatusCreated {
		t.Fatalf("unexpected first response status: %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newCheckoutRequest("abc-123", `{"paymentMethod":"balance"}`))

	if calls != 1 {
		t.Fatalf("expected handler not to be called again, got %d calls", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatal("expected replay header to be present")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type json, got %s", got)
	}
	if body := rr2.Body.String(); body != rr1.Body.String() {
		t.Fatalf("expected response body %s, got %s", rr1.Body.String(), body)
	}
}

func TestMiddlewareConflictingFingerprint(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newCheckoutRequest("same-key", `{"paymentMethod":"balance"}`))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request success, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newCheckoutRequest("same-key", `{"paymentMethod":"cash_on_delivery"}`))

	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", rr2.Code)
	}
	assertErrorResponse(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewarePendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))
	handler := middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked when reservation pending")
	}))

	req := newCheckoutRequest("pending-key", `{"paymentMethod":"balance"}`)

	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	identity := extractRequester(req.Context())
	fingerprint := requestFingerprint(req, body, identity)
	scoped := scopedKey("pending-key", identity)
	if _, err := store.Reserve(req.Context(), scoped, fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareSaveFailureRollsBackReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, newCheckoutRequest("fail-key", `{"paymentMethod":"balance"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 response, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatal("expected reservation to be released on failure")
	}
}

func TestMemoryStoreExpiredRecordReservesFresh(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "key-1", "fp-1", fixedTime, time.Minute); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	later := fixedTime.Add(2 * time.Minute)
	res, err := store.Reserve(ctx, "key-1", "fp-2", later, time.Minute)
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected fresh reservation after expiry, got state %d", res.State)
	}

	removed, err := store.CleanupExpired(ctx, later.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 record removed, got %d", removed)
	}
}

type stubStore struct {
	failSave bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew, Record: Record{}}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorResponse(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
