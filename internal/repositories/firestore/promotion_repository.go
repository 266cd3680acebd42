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

const promotionCollection = "promotions"

// PromotionRepository persists promotion definitions keyed by their code.
type PromotionRepository struct {
	base     *pfirestore.BaseRepository[promotionDocument]
	provider *pfirestore.Provider
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection, nil, nil)
	return &PromotionRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Upsert persists the promotion document using the code as document identifier.
func (r *PromotionRepository) Upsert(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	code := strings.TrimSpace(promotion.Code)
	if code == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}

	now := time.Now().UTC()
	if !promotion.UpdatedAt.IsZero() {
		now = promotion.UpdatedAt.UTC()
	}
	createdAt := promotion.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := promotionDocument{
		DiscountKind:  string(promotion.Discount.Kind),
		DiscountValue: promotion.Discount.Value,
		MinPurchase:   promotion.Conditions.MinPurchase,
		Categories:    append([]string(nil), promotion.Conditions.Categories...),
		UsedCount:     promotion.UsedCount,
		Active:        promotion.Active,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	if promotion.ExpiresAt != nil {
		at := promotion.ExpiresAt.UTC()
		doc.ExpiresAt = &at
	}
	if promotion.UsageLimit != nil {
		limit := *promotion.UsageLimit
		doc.UsageLimit = &limit
	}

	if _, err := r.base.Set(ctx, code, doc); err != nil {
		return domain.Promotion{}, err
	}

	saved := promotion
	saved.Code = code
	saved.CreatedAt = createdAt
	saved.UpdatedAt = now
	return saved, nil
}

// FindByCode loads the promotion document for the given code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}

	doc, err := r.base.Get(ctx, code)
	if err != nil {
		return domain.Promotion{}, err
	}
	return decodePromotionDocument(doc.ID, doc.Data), nil
}

// AdjustUsage changes usedCount by delta. The write is a blind increment so it
// can be staged inside a transaction after the reads have completed.
func (r *PromotionRepository) AdjustUsage(ctx context.Context, code string, delta int, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("promotion repository: code is required")
	}
	if delta == 0 {
		return nil
	}
	if now.IsZero() {
		now = time.Now()
	}

	updates := []firestore.Update{
		{Path: "usedCount", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: now.UTC()},
	}
	_, err := r.base.Update(ctx, code, updates)
	return err
}

func decodePromotionDocument(code string, doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		Code: code,
		Discount: domain.Discount{
			Kind:  domain.DiscountKind(doc.DiscountKind),
			Value: doc.DiscountValue,
		},
		Conditions: domain.PromotionConditions{
			MinPurchase: doc.MinPurchase,
			Categories:  append([]string(nil), doc.Categories...),
		},
		ExpiresAt:  doc.ExpiresAt,
		UsageLimit: doc.UsageLimit,
		UsedCount:  doc.UsedCount,
		Active:     doc.Active,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

type promotionDocument struct {
	DiscountKind  string     `firestore:"discountKind"`
	DiscountValue int64      `firestore:"discountValue"`
	MinPurchase   int64      `firestore:"minPurchase"`
	Categories    []string   `firestore:"categories,omitempty"`
	ExpiresAt     *time.Time `firestore:"expiresAt,omitempty"`
	UsageLimit    *int       `firestore:"usageLimit,omitempty"`
	UsedCount     int        `firestore:"usedCount"`
	Active        bool       `firestore:"active"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
