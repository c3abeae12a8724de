package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const refundsCollection = "refunds"

type RefundRepository struct {
	base *pfirestore.BaseRepository[refundDocument]
}

func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository requires firestore provider")
	}
	return &RefundRepository{base: pfirestore.NewBaseRepository[refundDocument](provider, refundsCollection)}, nil
}

func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	return r.base.Create(ctx, refund.ID, newRefundDocument(refund))
}

func (r *RefundRepository) Update(ctx context.Context, refund domain.Refund) error {
	return r.base.Set(ctx, refund.ID, newRefundDocument(refund))
}

func (r *RefundRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Refund, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
