package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/orderforge/engine/internal/domain"
	pfirestore "github.com/orderforge/engine/internal/platform/firestore"
	"github.com/orderforge/engine/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert persists a new order document and returns the stored order.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	return r.write(ctx, order)
}

// Update overwrites the stored order document and returns the stored order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	return r.write(ctx, order)
}

func (r *OrderRepository) write(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if _, err := r.base.Set(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// FindByID loads a single order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders ordered by creation time, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
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
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := normaliseStatuses(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if len(statuses) > 0 {
			q = q.Where("status.kind", "in", statuses)
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
		return domain.CursorPage[domain.Order]{}, err
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

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func normaliseStatuses(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	doc := orderDocument{
		UserID:        order.UserID,
		Items:         items,
		Subtotal:      order.Subtotal,
		Shipping:      order.Shipping,
		Discount:      order.Discount,
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		Status:        encodeOrderStatus(order.Status),
		ShippingAddress: addressDocument{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	if order.PromoCode != nil && strings.TrimSpace(*order.PromoCode) != "" {
		code := strings.TrimSpace(*order.PromoCode)
		doc.PromoCode = &code
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return domain.Order{
		ID:            id,
		UserID:        doc.UserID,
		Items:         items,
		Subtotal:      doc.Subtotal,
		Shipping:      doc.Shipping,
		Discount:      doc.Discount,
		Total:         doc.Total,
		PromoCode:     doc.PromoCode,
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Status:        decodeOrderStatus(doc.Status),
		ShippingAddress: domain.Address{
			Recipient:  doc.ShippingAddress.Recipient,
			Line1:      doc.ShippingAddress.Line1,
			Line2:      doc.ShippingAddress.Line2,
			City:       doc.ShippingAddress.City,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func encodeOrderStatus(status domain.OrderStatus) orderStatusDocument {
	doc := orderStatusDocument{Kind: string(status.Kind)}
	if status.PaidAt != nil {
		at := status.PaidAt.UTC()
		doc.PaidAt = &at
	}
	if status.ShippedAt != nil {
		at := status.ShippedAt.UTC()
		doc.ShippedAt = &at
	}
	if status.Tracking != "" {
		doc.Tracking = status.Tracking
	}
	if status.DeliveredAt != nil {
		at := status.DeliveredAt.UTC()
		doc.DeliveredAt = &at
	}
	if status.CancelReason != "" {
		doc.CancelReason = status.CancelReason
	}
	if status.RefundedAt != nil {
		at := status.RefundedAt.UTC()
		doc.RefundedAt = &at
	}
	if status.RefundReason != "" {
		doc.RefundReason = status.RefundReason
	}
	return doc
}

func decodeOrderStatus(doc orderStatusDocument) domain.OrderStatus {
	return domain.OrderStatus{
		Kind:         domain.OrderStatusKind(doc.Kind),
		PaidAt:       doc.PaidAt,
		ShippedAt:    doc.ShippedAt,
		Tracking:     doc.Tracking,
		DeliveredAt:  doc.DeliveredAt,
		CancelReason: doc.CancelReason,
		RefundedAt:   doc.RefundedAt,
		RefundReason: doc.RefundReason,
	}
}

type orderDocument struct {
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	Subtotal        int64               `firestore:"subtotal"`
	Shipping        int64               `firestore:"shipping"`
	Discount        int64               `firestore:"discount"`
	Total           int64               `firestore:"total"`
	PromoCode       *string             `firestore:"promoCode,omitempty"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	Status          orderStatusDocument `firestore:"status"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	SellerID  string `firestore:"sellerId"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

type orderStatusDocument struct {
	Kind         string     `firestore:"kind"`
	PaidAt       *time.Time `firestore:"paidAt,omitempty"`
	ShippedAt    *time.Time `firestore:"shippedAt,omitempty"`
	Tracking     string     `firestore:"tracking,omitempty"`
	DeliveredAt  *time.Time `firestore:"deliveredAt,omitempty"`
	CancelReason string     `firestore:"cancelReason,omitempty"`
	RefundedAt   *time.Time `firestore:"refundedAt,omitempty"`
	RefundReason string     `firestore:"refundReason,omitempty"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
