package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const addressCollectionPath = "customers/" + pfirestore.ParentPlaceholder + "/addresses"

// AddressRepository persists customer addresses in a subcollection of each customer.
type AddressRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[addressDocument]
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[addressDocument](provider, addressCollectionPath),
	}, nil
}

// List returns addresses with the default first, then most recently updated.
func (r *AddressRepository) List(ctx context.Context, customerID string) ([]domain.Address, error) {
	docs, err := r.base.Scoped(customerID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("isDefault", firestore.Desc).OrderBy("updatedAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(customerID, doc.ID))
	}
	return out, nil
}

func (r *AddressRepository) FindByID(ctx context.Context, customerID, addressID string) (domain.Address, error) {
	doc, err := r.base.Scoped(customerID).Get(ctx, addressID)
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(customerID, doc.ID), nil
}

// Save upserts the address and clears the default flag on siblings when this one is the default.
func (r *AddressRepository) Save(ctx context.Context, address domain.Address) error {
	repo := r.base.Scoped(address.CustomerID)
	coll, err := repo.CollectionRef(ctx)
	if err != nil {
		return err
	}
	if !address.IsDefault {
		return repo.Set(ctx, address.ID, newAddressDocument(address))
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		defaults, err := tx.Documents(coll.Where("isDefault", "==", true)).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range defaults {
			if snap.Ref.ID == address.ID {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
				return err
			}
		}
		return tx.Set(coll.Doc(address.ID), newAddressDocument(address))
	})
}

func (r *AddressRepository) Delete(ctx context.Context, customerID, addressID string) error {
	repo := r.base.Scoped(customerID)
	if _, err := repo.Get(ctx, addressID); err != nil {
		return err
	}
	return repo.Delete(ctx, addressID)
}
