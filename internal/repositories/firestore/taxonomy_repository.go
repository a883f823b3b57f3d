package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	"github.com/loomline/api/internal/domain"
	pfirestore "github.com/loomline/api/internal/platform/firestore"
)

const (
	gendersCollection      = "genders"
	productTypesCollection = "productTypes"
)

type genderDocument struct {
	Name string `firestore:"name"`
	Slug string `firestore:"slug"`
}

type productTypeDocument struct {
	Name     string `firestore:"name"`
	Slug     string `firestore:"slug"`
	GenderID string `firestore:"genderId"`
}

// TaxonomyRepository implements repositories.TaxonomyRepository backed by Firestore.
type TaxonomyRepository struct {
	provider     *pfirestore.Provider
	genders      *pfirestore.Collection[genderDocument]
	productTypes *pfirestore.Collection[productTypeDocument]
}

// NewTaxonomyRepository constructs a Firestore-backed taxonomy repository.
func NewTaxonomyRepository(provider *pfirestore.Provider) (*TaxonomyRepository, error) {
	if provider == nil {
		return nil, errors.New("taxonomy repository requires firestore provider")
	}
	return &TaxonomyRepository{
		provider:     provider,
		genders:      pfirestore.NewCollection[genderDocument](provider, gendersCollection),
		productTypes: pfirestore.NewCollection[productTypeDocument](provider, productTypesCollection),
	}, nil
}

// ListGenders returns all genders ordered by name.
func (r *TaxonomyRepository) ListGenders(ctx context.Context) ([]domain.Gender, error) {
	docs, err := r.genders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	genders := make([]domain.Gender, 0, len(docs))
	for _, doc := range docs {
		genders = append(genders, domain.Gender{
			ID:   doc.ID,
			Name: doc.Data.Name,
			Slug: doc.Data.Slug,
		})
	}
	return genders, nil
}

// FindGender fetches a single gender.
func (r *TaxonomyRepository) FindGender(ctx context.Context, genderID string) (domain.Gender, error) {
	doc, err := r.genders.Get(ctx, genderID)
	if err != nil {
		return domain.Gender{}, err
	}
	return domain.Gender{ID: doc.ID, Name: doc.Data.Name, Slug: doc.Data.Slug}, nil
}

// DeleteGender removes the gender document.
func (r *TaxonomyRepository) DeleteGender(ctx context.Context, genderID string) error {
	ref, err := r.genders.Doc(ctx, genderID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("genders.delete", err)
	}
	return nil
}

// ListProductTypes returns all product types ordered by name.
func (r *TaxonomyRepository) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	docs, err := r.productTypes.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	types := make([]domain.ProductType, 0, len(docs))
	for _, doc := range docs {
		types = append(types, domain.ProductType{
			ID:       doc.ID,
			Name:     doc.Data.Name,
			Slug:     doc.Data.Slug,
			GenderID: doc.Data.GenderID,
		})
	}
	return types, nil
}

// FindProductType fetches a single product type.
func (r *TaxonomyRepository) FindProductType(ctx context.Context, productTypeID string) (domain.ProductType, error) {
	doc, err := r.productTypes.Get(ctx, productTypeID)
	if err != nil {
		return domain.ProductType{}, err
	}
	return domain.ProductType{
		ID:       doc.ID,
		Name:     doc.Data.Name,
		Slug:     doc.Data.Slug,
		GenderID: doc.Data.GenderID,
	}, nil
}

// DeleteProductType removes the product type document.
func (r *TaxonomyRepository) DeleteProductType(ctx context.Context, productTypeID string) error {
	ref, err := r.productTypes.Doc(ctx, productTypeID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("productTypes.delete", err)
	}
	return nil
}

// CountProductTypes counts product types assigned to a gender.
func (r *TaxonomyRepository) CountProductTypes(ctx context.Context, genderID string) (int64, error) {
	docs, err := r.productTypes.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("genderId", "==", genderID).Select()
	})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}
