package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/loomline/api/internal/platform/httpx"
	"github.com/loomline/api/internal/platform/pagination"
	"github.com/loomline/api/internal/services"
)

// CatalogHandlers exposes the public catalog read surface: product listings
// with taxonomy filters, product detail, and the taxonomy lists that drive
// storefront navigation.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs public catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the public catalog endpoints directly on the API root.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/genders", h.listGenders)
	r.Get("/product-types", h.listProductTypes)
}

type productListResponse struct {
	Items []productPayload `json:"items"`
	Count int              `json:"count"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.ProductListFilter{
		GenderID:      strings.TrimSpace(query.Get("gender")),
		ProductTypeID: strings.TrimSpace(query.Get("product_type")),
	}

	var ok bool
	if filter.InStock, ok = parseBoolParam(ctx, w, query.Get("in_stock"), "in_stock"); !ok {
		return
	}
	if filter.IsNew, ok = parseBoolParam(ctx, w, query.Get("is_new"), "is_new"); !ok {
		return
	}
	if filter.IsSale, ok = parseBoolParam(ctx, w, query.Get("is_sale"), "is_sale"); !ok {
		return
	}

	limit, err := pagination.ParseLimit(query, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
		return
	}
	filter.Limit = limit

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(products))
	for _, product := range products {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: items, Count: len(items)})
}

type productResponse struct {
	Product productPayload `json:"product"`
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type genderPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

func (h *CatalogHandlers) listGenders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	genders, err := h.catalog.ListGenders(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]genderPayload, 0, len(genders))
	for _, gender := range genders {
		items = append(items, genderPayload{ID: gender.ID, Name: gender.Name, Slug: gender.Slug})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type productTypePayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	GenderID string `json:"gender_id"`
}

func (h *CatalogHandlers) listProductTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	types, err := h.catalog.ListProductTypes(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productTypePayload, 0, len(types))
	for _, pt := range types {
		items = append(items, productTypePayload{ID: pt.ID, Name: pt.Name, Slug: pt.Slug, GenderID: pt.GenderID})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func parseBoolParam(ctx context.Context, w http.ResponseWriter, raw, name string) (*bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", name+" must be a boolean", http.StatusBadRequest))
		return nil, false
	}
	return &value, true
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "catalog entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
