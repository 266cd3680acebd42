package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
)

func newLedgerServiceForTest(t *testing.T, ledger *memoryLedger, tx *passthroughTx, now time.Time) LedgerService {
	t.Helper()
	service, err := NewLedgerService(LedgerServiceDeps{
		Ledger: ledger,
		Tx:     tx,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}
	return service
}

func TestLedgerServiceBalanceIsFoldOverEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{events: []domain.BalanceEvent{
		{ID: "bev_1", UserID: "user-1", Amount: 5000, Kind: domain.BalanceDeposit},
		{ID: "bev_2", UserID: "user-1", Amount: 1200, Kind: domain.BalancePayment},
		{ID: "bev_3", UserID: "user-1", Amount: 300, Kind: domain.BalanceRefund},
		{ID: "bev_4", UserID: "user-2", Amount: 9999, Kind: domain.BalanceDeposit},
	}}
	service := newLedgerServiceForTest(t, ledger, &passthroughTx{}, now)

	balance, err := service.CurrentBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 4100 {
		t.Fatalf("expected balance 4100, got %d", balance)
	}

	again, err := service.CurrentBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != balance {
		t.Fatalf("balance should be stable without new events, got %d then %d", balance, again)
	}
}

func TestLedgerServiceDepositAppendsEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{}
	service := newLedgerServiceForTest(t, ledger, &passthroughTx{}, now)

	event, err := service.Deposit(ctx, BalanceCommand{UserID: "user-1", Amount: 2500, Reference: "topup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.BalanceDeposit || event.Amount != 2500 {
		t.Fatalf("unexpected event %#v", event)
	}
	if event.ID == "" {
		t.Fatal("expected a generated event id")
	}
	if !event.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, event.CreatedAt)
	}

	balance, err := service.CurrentBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 2500 {
		t.Fatalf("expected balance 2500, got %d", balance)
	}
}

func TestLedgerServiceWithdrawChecksBalanceInTx(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{events: []domain.BalanceEvent{
		{ID: "bev_1", UserID: "user-1", Amount: 1000, Kind: domain.BalanceDeposit},
	}}
	tx := &passthroughTx{}
	service := newLedgerServiceForTest(t, ledger, tx, now)

	event, err := service.Withdraw(ctx, BalanceCommand{UserID: "user-1", Amount: 600})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.BalanceWithdrawn {
		t.Fatalf("expected withdrawn event, got %s", event.Kind)
	}
	if tx.runs != 1 {
		t.Fatalf("expected one transaction, got %d", tx.runs)
	}

	balance, err := service.CurrentBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 400 {
		t.Fatalf("expected balance 400, got %d", balance)
	}
}

func TestLedgerServiceWithdrawInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	ledger := &memoryLedger{events: []domain.BalanceEvent{
		{ID: "bev_1", UserID: "user-1", Amount: 300, Kind: domain.BalanceDeposit},
	}}
	service := newLedgerServiceForTest(t, ledger, &passthroughTx{}, now)

	_, err := service.Withdraw(ctx, BalanceCommand{UserID: "user-1", Amount: 500})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != CodeInsufficientBalance {
		t.Fatalf("expected %s, got %v", CodeInsufficientBalance, err)
	}
	if svcErr.Details["available"] != int64(300) || svcErr.Details["required"] != int64(500) {
		t.Fatalf("unexpected details %#v", svcErr.Details)
	}

	balance, err := service.CurrentBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 300 {
		t.Fatalf("failed withdrawal must not change the balance, got %d", balance)
	}
}

func TestLedgerServiceRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	service := newLedgerServiceForTest(t, &memoryLedger{}, &passthroughTx{}, now)

	if _, err := service.Deposit(ctx, BalanceCommand{UserID: "user-1", Amount: 0}); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := service.Withdraw(ctx, BalanceCommand{UserID: " ", Amount: 100}); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := service.CurrentBalance(ctx, ""); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNewLedgerServiceRequiresDependencies(t *testing.T) {
	if _, err := NewLedgerService(LedgerServiceDeps{Tx: &passthroughTx{}}); err == nil {
		t.Fatal("expected error without ledger repository")
	}
	if _, err := NewLedgerService(LedgerServiceDeps{Ledger: &memoryLedger{}}); err == nil {
		t.Fatal("expected error without unit of work")
	}
}
