package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/repositories"
)

const (
	eventLedgerDeposit  = "ledger.deposit"
	eventLedgerWithdraw = "ledger.withdraw"

	balanceEventIDPrefix = "bev_"
)

var (
	// ErrLedgerInvalidInput signals the caller provided invalid arguments.
	ErrLedgerInvalidInput = errors.New("ledger: invalid input")
)

// LedgerServiceDeps bundles the collaborators required to construct a ledger service.
type LedgerServiceDeps struct {
	Ledger      repositories.LedgerRepository
	Tx          repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type ledgerService struct {
	ledger repositories.LedgerRepository
	tx     repositories.UnitOfWork
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewLedgerService wires dependencies into a concrete LedgerService implementation.
func NewLedgerService(deps LedgerServiceDeps) (LedgerService, error) {
	if deps.Ledger == nil {
		return nil, errors.New("ledger service: ledger repository is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("ledger service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return balanceEventIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ledgerService{
		ledger: deps.Ledger,
		tx:     deps.Tx,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *ledgerService) CurrentBalance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrLedgerInvalidInput)
	}

	events, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return 0, translateLedgerError(err)
	}
	return domain.FoldBalance(events), nil
}

func (s *ledgerService) History(ctx context.Context, userID string) ([]BalanceEvent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrLedgerInvalidInput)
	}

	events, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, translateLedgerError(err)
	}
	return events, nil
}

func (s *ledgerService) Deposit(ctx context.Context, cmd BalanceCommand) (BalanceEvent, error) {
	if err := validateBalanceCommand(cmd); err != nil {
		return BalanceEvent{}, err
	}

	event := domain.BalanceEvent{
		ID:        s.newID(),
		UserID:    strings.TrimSpace(cmd.UserID),
		Amount:    cmd.Amount,
		Kind:      domain.BalanceDeposit,
		Reference: strings.TrimSpace(cmd.Reference),
		CreatedAt: s.clock(),
	}
	if err := s.ledger.Append(ctx, event); err != nil {
		return BalanceEvent{}, translateLedgerError(err)
	}

	s.logger(ctx, eventLedgerDeposit, map[string]any{
		"user_id": event.UserID,
		"amount":  event.Amount,
	})
	return event, nil
}

// Withdraw checks the folded balance and appends the debit inside one
// transaction, so two concurrent withdrawals cannot both pass the check.
func (s *ledgerService) Withdraw(ctx context.Context, cmd BalanceCommand) (BalanceEvent, error) {
	if err := validateBalanceCommand(cmd); err != nil {
		return BalanceEvent{}, err
	}

	userID := strings.TrimSpace(cmd.UserID)
	event := domain.BalanceEvent{
		ID:        s.newID(),
		UserID:    userID,
		Amount:    cmd.Amount,
		Kind:      domain.BalanceWithdrawn,
		Reference: strings.TrimSpace(cmd.Reference),
		CreatedAt: s.clock(),
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		events, err := s.ledger.ListByUser(txCtx, userID)
		if err != nil {
			return translateLedgerError(err)
		}
		available := domain.FoldBalance(events)
		if available < cmd.Amount {
			return NewError(CodeInsufficientBalance, fmt.Sprintf("balance %d is below the requested %d", available, cmd.Amount)).
				WithDetails(map[string]any{"available": available, "required": cmd.Amount})
		}
		if err := s.ledger.Append(txCtx, event); err != nil {
			return translateLedgerError(err)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, eventLedgerWithdraw+"_failed", map[string]any{
			"user_id": userID,
			"amount":  cmd.Amount,
			"error":   err.Error(),
		})
		return BalanceEvent{}, translateLedgerError(err)
	}

	s.logger(ctx, eventLedgerWithdraw, map[string]any{
		"user_id": userID,
		"amount":  cmd.Amount,
	})
	return event, nil
}

func validateBalanceCommand(cmd BalanceCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrLedgerInvalidInput)
	}
	if cmd.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrLedgerInvalidInput)
	}
	return nil
}

func translateLedgerError(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return NewError(CodeTransactionError, "ledger operation failed").WithCause(err)
}

var _ LedgerService = (*ledgerService)(nil)
