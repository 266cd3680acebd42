package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderforge/engine/internal/platform/httpx"
	"github.com/orderforge/engine/internal/services"
)

const maxProductRequestBody = 16 * 1024

// ProductHandlers exposes the product catalog. Reads are public; writes carry
// the caller identity as the seller.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs product handlers backed by the catalog service.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers product endpoints under the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
	r.With(RequireUser()).Post("/", h.upsertProduct)
	r.With(RequireUser()).Put("/{productID}", h.upsertProduct)
}

type productPayload struct {
	ID        string `json:"id"`
	SellerID  string `json:"sellerId"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type upsertProductRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:        product.ID,
		SellerID:  product.SellerID,
		Name:      product.Name,
		Category:  product.Category,
		Price:     product.Price,
		Stock:     product.Stock,
		CreatedAt: formatTime(product.CreatedAt),
		UpdatedAt: formatTime(product.UpdatedAt),
	}
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.ProductListFilter{
		SellerID: strings.TrimSpace(query.Get("sellerId")),
		Category: strings.TrimSpace(query.Get("category")),
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

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	resp := productListResponse{
		Products:      make([]productPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, product := range page.Items {
		resp.Products = append(resp.Products, buildProductPayload(product))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) upsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxProductRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req upsertProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		ID:       chi.URLParam(r, "productID"),
		SellerID: currentUserID(ctx),
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
		Price:    req.Price,
		Stock:    req.Stock,
	})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}
