package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/loomline/api/internal/platform/httpx"
	"github.com/loomline/api/internal/services"
)

const maxAdminCatalogBodySize = 16 * 1024

// AdminCatalogHandlers exposes the back-office catalog slice: the stock
// toggle, guarded taxonomy deletion, and signed product-image URLs.
type AdminCatalogHandlers struct {
	catalog services.CatalogService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{catalog: catalog}
}

// Routes registers the admin catalog endpoints under the /admin group.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Patch("/products/{productID}/stock", h.setStock)
	r.Post("/products/images/upload-url", h.signUploadURL)
	r.Get("/products/images/url", h.signImageURL)
	r.Delete("/genders/{genderID}", h.deleteGender)
	r.Delete("/product-types/{productTypeID}", h.deleteProductType)
}

type setStockRequest struct {
	InStock *bool `json:"in_stock"`
}

func (h *AdminCatalogHandlers) setStock(w http.ResponseWriter, r *http.Request) {
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

	body, err := readLimitedBody(r, maxAdminCatalogBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req setStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.InStock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "in_stock is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.SetProductStock(ctx, productID, *req.InStock)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type signUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type signedURLResponse struct {
	Object    string `json:"object"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

func (h *AdminCatalogHandlers) signUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminCatalogBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var req signUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	signed, err := h.catalog.ProductImageUploadURL(ctx, services.ImageUploadCommand{
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, signedURLResponse{
		Object:    signed.Object,
		URL:       signed.URL,
		ExpiresAt: formatTime(signed.ExpiresAt),
	})
}

func (h *AdminCatalogHandlers) signImageURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	object := strings.TrimSpace(r.URL.Query().Get("object"))
	signed, err := h.catalog.ProductImageURL(ctx, object)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, signedURLResponse{
		Object:    signed.Object,
		URL:       signed.URL,
		ExpiresAt: formatTime(signed.ExpiresAt),
	})
}

func (h *AdminCatalogHandlers) deleteGender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	genderID := strings.TrimSpace(chi.URLParam(r, "genderID"))
	if genderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gender id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteGender(ctx, genderID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) deleteProductType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productTypeID := strings.TrimSpace(chi.URLParam(r, "productTypeID"))
	if productTypeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product type id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProductType(ctx, productTypeID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
