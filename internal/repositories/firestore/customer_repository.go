package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const customersCollection = "customers"

// CustomerRepository persists storefront accounts in the customers collection.
type CustomerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[customerDocument](provider, customersCollection),
	}, nil
}

// Insert creates the customer. The email check and the write share a transaction so two
// registrations racing on one address cannot both succeed.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(customer.Email))
	customer.Email = email

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll.Where("email", "==", email).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return pfirestore.Conflict("customers.insert", fmt.Errorf("email %s already registered", email))
		}
		return tx.Create(coll.Doc(customer.ID), newCustomerDocument(customer))
	})
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if _, err := r.base.Get(ctx, customer.ID); err != nil {
		return err
	}
	return r.base.Set(ctx, customer.ID, newCustomerDocument(customer))
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, pfirestore.NotFound("customers.find_by_email", "customer")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}
