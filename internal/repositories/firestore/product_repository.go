package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loomline/api/internal/domain"
	pfirestore "github.com/loomline/api/internal/platform/firestore"
	"github.com/loomline/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Title              string    `firestore:"title"`
	Description        string    `firestore:"description"`
	PriceMinor         int64     `firestore:"priceMinor"`
	OriginalPriceMinor *int64    `firestore:"originalPriceMinor,omitempty"`
	InStock            bool      `firestore:"inStock"`
	IsNew              bool      `firestore:"isNew"`
	IsSale             bool      `firestore:"isSale"`
	SalesCount         int64     `firestore:"salesCount"`
	Sizes              []string  `firestore:"sizes"`
	Colors             []string  `firestore:"colors"`
	Images             []string  `firestore:"images"`
	ProductTypeID      string    `firestore:"productTypeId"`
	GenderID           string    `firestore:"genderId"`
	CreatedAt          time.Time `firestore:"createdAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	product := domain.Product{
		ID:            id,
		Title:         d.Title,
		Description:   d.Description,
		Price:         domain.Money(d.PriceMinor),
		InStock:       d.InStock,
		IsNew:         d.IsNew,
		IsSale:        d.IsSale,
		SalesCount:    d.SalesCount,
		Sizes:         d.Sizes,
		Colors:        d.Colors,
		Images:        d.Images,
		ProductTypeID: d.ProductTypeID,
		GenderID:      d.GenderID,
		CreatedAt:     d.CreatedAt,
	}
	if d.OriginalPriceMinor != nil {
		original := domain.Money(*d.OriginalPriceMinor)
		product.OriginalPrice = &original
	}
	return product
}

func productToDocument(product domain.Product) productDocument {
	doc := productDocument{
		Title:         product.Title,
		Description:   product.Description,
		PriceMinor:    int64(product.Price),
		InStock:       product.InStock,
		IsNew:         product.IsNew,
		IsSale:        product.IsSale,
		SalesCount:    product.SalesCount,
		Sizes:         product.Sizes,
		Colors:        product.Colors,
		Images:        product.Images,
		ProductTypeID: product.ProductTypeID,
		GenderID:      product.GenderID,
		CreatedAt:     product.CreatedAt,
	}
	if product.OriginalPrice != nil {
		original := int64(*product.OriginalPrice)
		doc.OriginalPriceMinor = &original
	}
	return doc
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewCollection[productDocument](provider, productsCollection)
	return &ProductRepository{
		provider: provider,
		products: base,
	}, nil
}

// Insert creates the product document, failing when the id already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	ref, err := r.products.Doc(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, productToDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	return r.products.Set(ctx, product.ID, productToDocument(product))
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	ref, err := r.products.Doc(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs resolves a batch of product ids in one round trip. Missing ids
// are absent from the returned map.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
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
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}

	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIds", err)
	}
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("products.findByIds", err)
		}
		out[snapshot.Ref.ID] = doc.toDomain(snapshot.Ref.ID)
	}
	return out, nil
}

// List returns products matching the filter, newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ProductTypeID != "" {
			q = q.Where("productTypeId", "==", filter.ProductTypeID)
		}
		if filter.GenderID != "" {
			q = q.Where("genderId", "==", filter.GenderID)
		}
		if filter.InStock != nil {
			q = q.Where("inStock", "==", *filter.InStock)
		}
		if filter.IsNew != nil {
			q = q.Where("isNew", "==", *filter.IsNew)
		}
		if filter.IsSale != nil {
			q = q.Where("isSale", "==", *filter.IsSale)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}

// SetInStock flips the stock flag and returns the updated product.
func (r *ProductRepository) SetInStock(ctx context.Context, productID string, inStock bool) (domain.Product, error) {
	err := r.products.Update(ctx, productID, []firestore.Update{
		{Path: "inStock", Value: inStock},
	})
	if err != nil {
		return domain.Product{}, err
	}
	return r.FindByID(ctx, productID)
}

// CountByType counts products assigned to a product type.
func (r *ProductRepository) CountByType(ctx context.Context, productTypeID string) (int64, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	iter := client.Collection(productsCollection).
		Where("productTypeId", "==", productTypeID).
		Select().
		Documents(ctx)
	defer iter.Stop()

	var count int64
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError("products.countByType", err)
		}
		count++
	}
	return count, nil
}

// Stats computes the product KPI counters in a single projection scan.
func (r *ProductRepository) Stats(ctx context.Context) (repositories.ProductStatCounts, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.ProductStatCounts{}, err
	}

	iter := client.Collection(productsCollection).
		Select("inStock", "isNew", "isSale").
		Documents(ctx)
	defer iter.Stop()

	var stats repositories.ProductStatCounts
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.ProductStatCounts{}, pfirestore.WrapError("products.stats", err)
		}

		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return repositories.ProductStatCounts{}, pfirestore.WrapError("products.stats", err)
		}

		stats.Total++
		if doc.InStock {
			stats.InStock++
		} else {
			stats.OutOfStock++
		}
		if doc.IsNew {
			stats.NewArrival++
		}
		if doc.IsSale {
			stats.OnSale++
		}
	}
	return stats, nil
}

// TopBySales returns the best selling products.
func (r *ProductRepository) TopBySales(ctx context.Context, limit int) ([]domain.Product, error) {
	return r.rankedBySales(ctx, limit, nil)
}

// OutOfStockBySales returns out-of-stock products ordered by historical sales.
func (r *ProductRepository) OutOfStockBySales(ctx context.Context, limit int) ([]domain.Product, error) {
	inStock := false
	return r.rankedBySales(ctx, limit, &inStock)
}

func (r *ProductRepository) rankedBySales(ctx context.Context, limit int, inStock *bool) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if inStock != nil {
			q = q.Where("inStock", "==", *inStock)
		}
		q = q.OrderBy("salesCount", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}

func notFoundError(op, message string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, message))
}
