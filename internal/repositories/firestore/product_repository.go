package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/orderforge/engine/internal/domain"
	pfirestore "github.com/orderforge/engine/internal/platform/firestore"
	"github.com/orderforge/engine/internal/platform/pagination"
	"github.com/orderforge/engine/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists the product catalog within Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Upsert persists the product document keyed by its id.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	now := time.Now().UTC()
	if !product.UpdatedAt.IsZero() {
		now = product.UpdatedAt.UTC()
	}
	createdAt := product.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := productDocument{
		SellerID:  strings.TrimSpace(product.SellerID),
		Name:      strings.TrimSpace(product.Name),
		Category:  strings.TrimSpace(product.Category),
		Price:     product.Price,
		Stock:     product.Stock,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if _, err := r.base.Set(ctx, productID, doc); err != nil {
		return domain.Product{}, err
	}

	saved := product
	saved.ID = productID
	saved.CreatedAt = createdAt
	saved.UpdatedAt = now
	return saved, nil
}

// FindByID loads a single product document.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

// FindByIDs resolves the requested products, omitting missing ids from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		out[id] = decodeProductDocument(doc.ID, doc.Data)
	}
	return out, nil
}

// DecrementStock reduces stock for every listed product. The reads are issued
// before any write so the whole batch is usable inside a transaction.
func (r *ProductRepository) DecrementStock(ctx context.Context, quantities map[string]int, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if len(quantities) == 0 {
		return nil
	}

	ids := make([]string, 0, len(quantities))
	for id, qty := range quantities {
		id = strings.TrimSpace(id)
		if id == "" || qty <= 0 {
			return repositories.NewStockError(repositories.StockErrorUnknown,
				fmt.Sprintf("invalid decrement for product %q", id), nil)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	remaining := make(map[string]int, len(ids))
	for _, id := range ids {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return repositories.NewStockError(repositories.StockErrorProductNotFound,
					fmt.Sprintf("product %s not found", id), err).ForProduct(id, quantities[id], 0)
			}
			return err
		}
		qty := quantities[id]
		if doc.Data.Stock < qty {
			return repositories.NewStockError(repositories.StockErrorInsufficient,
				fmt.Sprintf("product %s has %d units, %d requested", id, doc.Data.Stock, qty), nil).
				ForProduct(id, qty, doc.Data.Stock)
		}
		remaining[id] = doc.Data.Stock - qty
	}

	if now.IsZero() {
		now = time.Now()
	}
	for _, id := range ids {
		updates := []firestore.Update{
			{Path: "stock", Value: remaining[id]},
			{Path: "updatedAt", Value: now.UTC()},
		}
		if _, err := r.base.Update(ctx, id, updates); err != nil {
			return err
		}
	}
	return nil
}

// List returns a page of products ordered by creation time, newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	sellerID := strings.TrimSpace(filter.SellerID)
	category := strings.TrimSpace(filter.Category)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if sellerID != "" {
			q = q.Where("sellerId", "==", sellerID)
		}
		if category != "" {
			q = q.Where("category", "==", category)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Product, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Product]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func decodeProductDocument(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:        id,
		SellerID:  doc.SellerID,
		Name:      doc.Name,
		Category:  doc.Category,
		Price:     doc.Price,
		Stock:     doc.Stock,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

type productDocument struct {
	SellerID  string    `firestore:"sellerId"`
	Name      string    `firestore:"name"`
	Category  string    `firestore:"category"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeListToken(at time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{at.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	rawTime, timeOK := cursor.StartAfter[0].(string)
	docID, idOK := cursor.StartAfter[1].(string)
	if !timeOK || !idOK {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	at, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return at, docID, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
