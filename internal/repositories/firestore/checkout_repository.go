package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const checkoutsCollection = "checkouts"

// CheckoutRepository stores one checkout session per order, keyed by order id.
type CheckoutRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[checkoutDocument]
}

func NewCheckoutRepository(provider *pfirestore.Provider) (*CheckoutRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout repository requires firestore provider")
	}
	return &CheckoutRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[checkoutDocument](provider, checkoutsCollection),
	}, nil
}

func (r *CheckoutRepository) Create(ctx context.Context, session domain.CheckoutSession) error {
	return r.base.Create(ctx, session.OrderID, newCheckoutDocument(session))
}

func (r *CheckoutRepository) FindByOrderID(ctx context.Context, orderID string) (domain.CheckoutSession, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CheckoutRepository) FindByGatewaySession(ctx context.Context, gatewaySessionID string) (domain.CheckoutSession, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("gatewaySessionId", "==", gatewaySessionID).Limit(1)
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if len(docs) == 0 {
		return domain.CheckoutSession{}, pfirestore.NotFound("checkouts.find_by_gateway_session", "checkout session")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// Mutate serialises webhook and client verification of the same checkout.
func (r *CheckoutRepository) Mutate(ctx context.Context, orderID string, fn func(*domain.CheckoutSession) error) (domain.CheckoutSession, error) {
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	var result domain.CheckoutSession
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.base.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		session := doc.Data.toDomain(doc.ID)
		if err := fn(&session); err != nil {
			return err
		}
		result = session
		return tx.Set(ref, newCheckoutDocument(session))
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return result, nil
}

func (r *CheckoutRepository) ListStale(ctx context.Context, status domain.CheckoutStatus, updatedBefore time.Time, limit int) ([]domain.CheckoutSession, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(status)).
			Where("updatedAt", "<", updatedBefore.UTC()).
			OrderBy("updatedAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CheckoutSession, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
