package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
	pfirestore "github.com/orderforge/engine/internal/platform/firestore"
	"github.com/orderforge/engine/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists the single cart document kept per user, keyed by user id.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Get loads the user's cart. A missing document maps to an empty cart rather than an error.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{UserID: uid, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, err
	}

	return decodeCartDocument(doc.ID, doc.Data), nil
}

// Upsert persists the cart document using the user id as document identifier.
func (r *CartRepository) Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Items:     encodeCartItems(cart.Items),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}

	saved := decodeCartDocument(uid, doc)
	return saved, nil
}

// RemoveItems deletes the given product lines, keeping the rest of the cart intact.
func (r *CartRepository) RemoveItems(ctx context.Context, userID string, productIDs []string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	if len(productIDs) == 0 {
		return nil
	}

	cart, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if id = strings.TrimSpace(id); id != "" {
			drop[id] = struct{}{}
		}
	}

	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if _, ok := drop[item.ProductID]; !ok {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	if now.IsZero() {
		now = time.Now()
	}
	cart.UpdatedAt = now.UTC()

	_, err = r.Upsert(ctx, cart)
	return err
}

func encodeCartItems(items []domain.CartItem) []cartItemDocument {
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return out
}

func decodeCartDocument(userID string, doc cartDocument) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return domain.Cart{
		UserID:    userID,
		Items:     items,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
