package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/orderforge/engine/internal/domain"
	pfirestore "github.com/orderforge/engine/internal/platform/firestore"
	"github.com/orderforge/engine/internal/repositories"
)

const ledgerCollection = "balance_events"

// LedgerRepository stores the append-only per-user balance event log. Events
// are written once and never updated or deleted; the balance is derived by
// folding the event stream.
type LedgerRepository struct {
	base     *pfirestore.BaseRepository[balanceEventDocument]
	provider *pfirestore.Provider
}

// NewLedgerRepository constructs a Firestore-backed ledger repository.
func NewLedgerRepository(provider *pfirestore.Provider) (*LedgerRepository, error) {
	if provider == nil {
		return nil, errors.New("ledger repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[balanceEventDocument](provider, ledgerCollection, nil, nil)
	return &LedgerRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Append writes a new ledger event. Existing events are never overwritten;
// event ids are ULIDs so insertion order matches id order.
func (r *LedgerRepository) Append(ctx context.Context, event domain.BalanceEvent) error {
	if r == nil || r.base == nil {
		return errors.New("ledger repository not initialised")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return errors.New("ledger repository: event id is required")
	}
	if strings.TrimSpace(event.UserID) == "" {
		return errors.New("ledger repository: user id is required")
	}
	if event.Amount < 0 {
		return errors.New("ledger repository: amount must be non-negative")
	}

	doc := balanceEventDocument{
		UserID:    strings.TrimSpace(event.UserID),
		Amount:    event.Amount,
		Kind:      string(event.Kind),
		Reference: strings.TrimSpace(event.Reference),
		CreatedAt: event.CreatedAt.UTC(),
	}

	_, err := r.base.Set(ctx, eventID, doc)
	return err
}

// ListByUser returns every ledger event for the user ordered by event id, which
// matches insertion order for ULID identifiers.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]domain.BalanceEvent, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("ledger repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.BalanceEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, domain.BalanceEvent{
			ID:        doc.ID,
			UserID:    doc.Data.UserID,
			Amount:    doc.Data.Amount,
			Kind:      domain.BalanceEventKind(doc.Data.Kind),
			Reference: doc.Data.Reference,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return events, nil
}

type balanceEventDocument struct {
	UserID    string    `firestore:"userId"`
	Amount    int64     `firestore:"amount"`
	Kind      string    `firestore:"kind"`
	Reference string    `firestore:"reference,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var _ repositories.LedgerRepository = (*LedgerRepository)(nil)
