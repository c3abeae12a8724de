package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalogue products.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection)}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.base.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	ref, err := r.base.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	doc := newProductDocument(product)
	// Update rather than Set so editing a missing product reports not found.
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "sku", Value: doc.SKU},
		{Path: "name", Value: doc.Name},
		{Path: "descriptionMarkdown", Value: doc.DescriptionMarkdown},
		{Path: "descriptionHtml", Value: doc.DescriptionHTML},
		{Path: "price", Value: doc.Price},
		{Path: "currency", Value: doc.Currency},
		{Path: "stock", Value: doc.Stock},
		{Path: "imagePaths", Value: doc.ImagePaths},
		{Path: "promotionIds", Value: doc.PromotionIDs},
		{Path: "active", Value: doc.Active},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
	return pfirestore.WrapError("products.update", err)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	docs, next, err := r.base.Page(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q
	}, "createdAt", firestore.Desc, filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: next}, nil
}
