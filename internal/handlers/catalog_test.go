package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/services"
)

func newCatalogRouter(catalog services.CatalogService) chi.Router {
	r := chi.NewRouter()
	NewCatalogHandlers(catalog).Routes(r)
	return r
}

func newAdminCatalogRouter(catalog services.CatalogService) chi.Router {
	r := chi.NewRouter()
	NewAdminCatalogHandlers(catalog).Routes(r)
	return r
}

func sampleProduct() domain.Product {
	original := domain.Money(5000)
	return domain.Product{
		ID:            "prd_jeans",
		Title:         "Slim Jeans",
		Price:         4000,
		OriginalPrice: &original,
		InStock:       true,
		IsSale:        true,
		SalesCount:    120,
		Sizes:         []string{"S", "M", "L"},
		Images:        []string{"products/jeans.jpg"},
		ProductTypeID: "pt_jeans",
		GenderID:      "gen_men",
	}
}

func TestListProductsForwardsFilters(t *testing.T) {
	var captured services.ProductListFilter
	catalog := &stubCatalogService{
		listProductsFn: func(ctx context.Context, filter services.ProductListFilter) ([]services.Product, error) {
			captured = filter
			return []services.Product{sampleProduct()}, nil
		},
	}
	router := newCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodGet, "/products?gender=gen_men&product_type=pt_jeans&in_stock=true&is_sale=true&limit=24", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "gen_men", captured.GenderID)
	assert.Equal(t, "pt_jeans", captured.ProductTypeID)
	require.NotNil(t, captured.InStock)
	assert.True(t, *captured.InStock)
	require.NotNil(t, captured.IsSale)
	assert.True(t, *captured.IsSale)
	assert.Nil(t, captured.IsNew)
	assert.Equal(t, 24, captured.Limit)

	var resp productListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "40.00", resp.Items[0].PriceDisplay)
	require.NotNil(t, resp.Items[0].OriginalPrice)
	assert.Equal(t, int64(5000), *resp.Items[0].OriginalPrice)
}

func TestListProductsRejectsBadBool(t *testing.T) {
	router := newCatalogRouter(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/products?in_stock=maybe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		getProductFn: func(ctx context.Context, productID string) (services.Product, error) {
			return services.Product{}, fmt.Errorf("%w: %s", services.ErrCatalogNotFound, productID)
		},
	}
	router := newCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, "catalog_not_found", envelope["error"])
}

func TestListGendersAndProductTypes(t *testing.T) {
	catalog := &stubCatalogService{
		listGendersFn: func(ctx context.Context) ([]services.Gender, error) {
			return []services.Gender{{ID: "gen_men", Name: "Men", Slug: "men"}}, nil
		},
		listTypesFn: func(ctx context.Context) ([]services.ProductType, error) {
			return []services.ProductType{{ID: "pt_jeans", Name: "Jeans", GenderID: "gen_men"}}, nil
		},
	}
	router := newCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodGet, "/genders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gen_men"`)

	req = httptest.NewRequest(http.MethodGet, "/product-types", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pt_jeans"`)
}

func TestAdminSetStockRequiresFlag(t *testing.T) {
	router := newAdminCatalogRouter(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodPatch, "/products/prd_jeans/stock", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSetStock(t *testing.T) {
	catalog := &stubCatalogService{
		setStockFn: func(ctx context.Context, productID string, inStock bool) (services.Product, error) {
			require.Equal(t, "prd_jeans", productID)
			require.False(t, inStock)
			product := sampleProduct()
			product.InStock = false
			return product, nil
		},
	}
	router := newAdminCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodPatch, "/products/prd_jeans/stock", bytes.NewBufferString(`{"in_stock":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Product.InStock)
}

func TestAdminDeleteGenderConflict(t *testing.T) {
	catalog := &stubCatalogService{
		deleteGenderFn: func(ctx context.Context, genderID string) error {
			return fmt.Errorf("%w: gender has 3 product types", services.ErrCatalogConflict)
		},
	}
	router := newAdminCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodDelete, "/genders/gen_men", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	envelope := decodeErrorEnvelope(t, rec)
	assert.Equal(t, "catalog_conflict", envelope["error"])
}

func TestAdminDeleteProductType(t *testing.T) {
	deleted := []string{}
	catalog := &stubCatalogService{
		deleteTypeFn: func(ctx context.Context, productTypeID string) error {
			deleted = append(deleted, productTypeID)
			return nil
		},
	}
	router := newAdminCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodDelete, "/product-types/pt_jeans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"pt_jeans"}, deleted)
}

func TestAdminSignUploadURL(t *testing.T) {
	catalog := &stubCatalogService{
		signUploadFn: func(ctx context.Context, cmd services.ImageUploadCommand) (services.SignedImageURL, error) {
			require.Equal(t, "image/jpeg", cmd.ContentType)
			return services.SignedImageURL{
				Object:    "products/01htest.jpg",
				URL:       "https://storage.example/upload/products/01htest.jpg",
				ExpiresAt: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newAdminCatalogRouter(catalog)

	body := `{"file_name":"Jeans Photo.JPG","content_type":"image/jpeg"}`
	req := httptest.NewRequest(http.MethodPost, "/products/images/upload-url", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp signedURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "products/01htest.jpg", resp.Object)
	assert.NotEmpty(t, resp.ExpiresAt)
}
