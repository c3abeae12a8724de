package firestore

import (
	"context"
	"errors"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const cartsCollection = "carts"

// CartRepository stores one cart document per customer, keyed by customer id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection)}, nil
}

func (r *CartRepository) Get(ctx context.Context, customerID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{CustomerID: customerID, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(customerID), nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	return r.base.Set(ctx, cart.CustomerID, newCartDocument(cart))
}

func (r *CartRepository) Delete(ctx context.Context, customerID string) error {
	return r.base.Delete(ctx, customerID)
}
