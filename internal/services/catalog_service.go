package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/loomline/api/internal/repositories"
)

const (
	defaultProductListLimit = 60
	maxProductListLimit     = 200

	productImagePrefix = "products/"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the referenced catalog entity is absent.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a referential-integrity guard refused the operation.
	ErrCatalogConflict = errors.New("catalog: conflict")

	errImageSignerUnavailable = errors.New("catalog: image signer not configured")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Taxonomy    repositories.TaxonomyRepository
	Images      ImageURLSigner
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	taxonomy repositories.TaxonomyRepository
	images   ImageURLSigner
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Taxonomy == nil {
		return nil, errors.New("catalog service: taxonomy repository is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		taxonomy: deps.Taxonomy,
		images:   deps.Images,
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error) {
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative", ErrCatalogInvalidInput)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultProductListLimit
	}
	if filter.Limit > maxProductListLimit {
		filter.Limit = maxProductListLimit
	}

	products, err := s.products.List(ctx, repositories.ProductFilter{
		ProductTypeID: strings.TrimSpace(filter.ProductTypeID),
		GenderID:      strings.TrimSpace(filter.GenderID),
		InStock:       filter.InStock,
		IsNew:         filter.IsNew,
		IsSale:        filter.IsSale,
		Limit:         filter.Limit,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if strings.TrimSpace(productID) == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) SetProductStock(ctx context.Context, productID string, inStock bool) (Product, error) {
	if strings.TrimSpace(productID) == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.SetInStock(ctx, productID, inStock)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.stock.changed", map[string]any{
		"product": productID,
		"inStock": inStock,
	})
	return product, nil
}

func (s *catalogService) ListGenders(ctx context.Context) ([]Gender, error) {
	genders, err := s.taxonomy.ListGenders(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return genders, nil
}

// DeleteGender refuses to delete a gender that still has product types.
func (s *catalogService) DeleteGender(ctx context.Context, genderID string) error {
	if strings.TrimSpace(genderID) == "" {
		return fmt.Errorf("%w: gender id is required", ErrCatalogInvalidInput)
	}

	if _, err := s.taxonomy.FindGender(ctx, genderID); err != nil {
		return s.mapRepositoryError(err)
	}

	children, err := s.taxonomy.CountProductTypes(ctx, genderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if children > 0 {
		return fmt.Errorf("%w: gender has %d product types", ErrCatalogConflict, children)
	}

	if err := s.taxonomy.DeleteGender(ctx, genderID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) ListProductTypes(ctx context.Context) ([]ProductType, error) {
	types, err := s.taxonomy.ListProductTypes(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return types, nil
}

// DeleteProductType refuses to delete a product type that still has products.
func (s *catalogService) DeleteProductType(ctx context.Context, productTypeID string) error {
	if strings.TrimSpace(productTypeID) == "" {
		return fmt.Errorf("%w: product type id is required", ErrCatalogInvalidInput)
	}

	if _, err := s.taxonomy.FindProductType(ctx, productTypeID); err != nil {
		return s.mapRepositoryError(err)
	}

	children, err := s.products.CountByType(ctx, productTypeID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if children > 0 {
		return fmt.Errorf("%w: product type has %d products", ErrCatalogConflict, children)
	}

	if err := s.taxonomy.DeleteProductType(ctx, productTypeID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) ProductImageUploadURL(ctx context.Context, cmd ImageUploadCommand) (SignedImageURL, error) {
	if s.images == nil {
		return SignedImageURL{}, errImageSignerUnavailable
	}
	if strings.TrimSpace(cmd.ContentType) == "" {
		return SignedImageURL{}, fmt.Errorf("%w: content type is required", ErrCatalogInvalidInput)
	}

	ext := strings.ToLower(path.Ext(strings.TrimSpace(cmd.FileName)))
	object := productImagePrefix + strings.ToLower(s.newID()) + ext

	url, expiresAt, err := s.images.SignedUploadURL(ctx, object, cmd.ContentType)
	if err != nil {
		return SignedImageURL{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	s.logger(ctx, "catalog.image.upload.signed", map[string]any{"object": object})

	return SignedImageURL{Object: object, URL: url, ExpiresAt: expiresAt}, nil
}

func (s *catalogService) ProductImageURL(ctx context.Context, object string) (SignedImageURL, error) {
	if s.images == nil {
		return SignedImageURL{}, errImageSignerUnavailable
	}
	object = strings.TrimSpace(object)
	if object == "" || strings.Contains(object, "..") {
		return SignedImageURL{}, fmt.Errorf("%w: invalid object name", ErrCatalogInvalidInput)
	}

	url, expiresAt, err := s.images.SignedImageURL(ctx, object)
	if err != nil {
		return SignedImageURL{}, err
	}
	return SignedImageURL{Object: object, URL: url, ExpiresAt: expiresAt}, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}
