package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/repositories"
)

type stubImageSigner struct {
	downloadObjects []string
	uploadObjects   []string
	uploadTypes     []string
	err             error
}

func (s *stubImageSigner) SignedImageURL(ctx context.Context, object string) (string, time.Time, error) {
	s.downloadObjects = append(s.downloadObjects, object)
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "https://storage.example/" + object, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), nil
}

func (s *stubImageSigner) SignedUploadURL(ctx context.Context, object string, contentType string) (string, time.Time, error) {
	s.uploadObjects = append(s.uploadObjects, object)
	s.uploadTypes = append(s.uploadTypes, contentType)
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "https://storage.example/upload/" + object, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), nil
}

func newTestCatalogService(t *testing.T, products *stubProductRepository, taxonomy *stubTaxonomyRepository, signer ImageURLSigner) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Taxonomy:    taxonomy,
		Images:      signer,
		IDGenerator: func() string { return "01HTESTID000000000000000000" },
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc
}

func TestListProductsAppliesDefaultLimit(t *testing.T) {
	products := &stubProductRepository{}
	var captured repositories.ProductFilter
	products.listFn = func(ctx context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
		captured = filter
		return []domain.Product{{ID: "prd_jeans"}}, nil
	}
	svc := newTestCatalogService(t, products, &stubTaxonomyRepository{}, nil)

	inStock := true
	listed, err := svc.ListProducts(context.Background(), ProductListFilter{GenderID: " gen_men ", InStock: &inStock})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 product, got %d", len(listed))
	}
	if captured.Limit != defaultProductListLimit {
		t.Fatalf("expected default limit, got %d", captured.Limit)
	}
	if captured.GenderID != "gen_men" {
		t.Fatalf("expected trimmed gender filter, got %q", captured.GenderID)
	}
	if captured.InStock == nil || !*captured.InStock {
		t.Fatal("expected in-stock filter forwarded")
	}
}

func TestSetProductStockMapsNotFound(t *testing.T) {
	products := &stubProductRepository{}
	svc := newTestCatalogService(t, products, &stubTaxonomyRepository{}, nil)

	if _, err := svc.SetProductStock(context.Background(), "prd_ghost", true); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}

	products.setInStockFn = func(ctx context.Context, id string, inStock bool) (domain.Product, error) {
		return domain.Product{ID: id, InStock: inStock}, nil
	}
	product, err := svc.SetProductStock(context.Background(), "prd_jeans", false)
	if err != nil {
		t.Fatalf("set product stock: %v", err)
	}
	if product.InStock {
		t.Fatal("expected product flagged out of stock")
	}
}

func TestDeleteGenderGuardedByProductTypes(t *testing.T) {
	taxonomy := &stubTaxonomyRepository{
		genders: []domain.Gender{{ID: "gen_men", Name: "Men"}},
	}
	taxonomy.countProductTypesFn = func(ctx context.Context, genderID string) (int64, error) {
		return 3, nil
	}
	svc := newTestCatalogService(t, &stubProductRepository{}, taxonomy, nil)

	if err := svc.DeleteGender(context.Background(), "gen_men"); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected conflict while product types exist, got %v", err)
	}
	if len(taxonomy.deletedGenders) != 0 {
		t.Fatal("guarded gender must not be deleted")
	}

	taxonomy.countProductTypesFn = func(ctx context.Context, genderID string) (int64, error) {
		return 0, nil
	}
	if err := svc.DeleteGender(context.Background(), "gen_men"); err != nil {
		t.Fatalf("delete gender: %v", err)
	}
	if len(taxonomy.deletedGenders) != 1 {
		t.Fatalf("expected one deletion, got %v", taxonomy.deletedGenders)
	}
}

func TestDeleteGenderUnknown(t *testing.T) {
	svc := newTestCatalogService(t, &stubProductRepository{}, &stubTaxonomyRepository{}, nil)

	if err := svc.DeleteGender(context.Background(), "gen_ghost"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestDeleteProductTypeGuardedByProducts(t *testing.T) {
	taxonomy := &stubTaxonomyRepository{
		productTypes: []domain.ProductType{{ID: "pt_jeans", Name: "Jeans", GenderID: "gen_men"}},
	}
	products := &stubProductRepository{}
	products.countByTypeFn = func(ctx context.Context, productTypeID string) (int64, error) {
		return 12, nil
	}
	svc := newTestCatalogService(t, products, taxonomy, nil)

	if err := svc.DeleteProductType(context.Background(), "pt_jeans"); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected conflict while products exist, got %v", err)
	}

	products.countByTypeFn = func(ctx context.Context, productTypeID string) (int64, error) {
		return 0, nil
	}
	if err := svc.DeleteProductType(context.Background(), "pt_jeans"); err != nil {
		t.Fatalf("delete product type: %v", err)
	}
	if len(taxonomy.deletedTypes) != 1 {
		t.Fatalf("expected one deletion, got %v", taxonomy.deletedTypes)
	}
}

func TestProductImageUploadURL(t *testing.T) {
	signer := &stubImageSigner{}
	svc := newTestCatalogService(t, &stubProductRepository{}, &stubTaxonomyRepository{}, signer)

	signed, err := svc.ProductImageUploadURL(context.Background(), ImageUploadCommand{
		FileName:    "Jeans Photo.JPG",
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("sign upload: %v", err)
	}
	if !strings.HasPrefix(signed.Object, "products/") || !strings.HasSuffix(signed.Object, ".jpg") {
		t.Fatalf("unexpected object name %q", signed.Object)
	}
	if len(signer.uploadTypes) != 1 || signer.uploadTypes[0] != "image/jpeg" {
		t.Fatalf("expected content type forwarded, got %v", signer.uploadTypes)
	}
	if signed.URL == "" || signed.ExpiresAt.IsZero() {
		t.Fatalf("expected signed URL with expiry, got %+v", signed)
	}
}

func TestProductImageURLRejectsTraversal(t *testing.T) {
	signer := &stubImageSigner{}
	svc := newTestCatalogService(t, &stubProductRepository{}, &stubTaxonomyRepository{}, signer)

	if _, err := svc.ProductImageURL(context.Background(), "../secrets.txt"); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
	if len(signer.downloadObjects) != 0 {
		t.Fatal("signer must not be called for rejected objects")
	}
}

func TestImageOperationsRequireSigner(t *testing.T) {
	svc := newTestCatalogService(t, &stubProductRepository{}, &stubTaxonomyRepository{}, nil)

	if _, err := svc.ProductImageURL(context.Background(), "products/a.jpg"); err == nil {
		t.Fatal("expected error without configured signer")
	}
}
