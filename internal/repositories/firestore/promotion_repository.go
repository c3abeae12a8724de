package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const promotionsCollection = "promotions"

// PromotionRepository persists promotion rules.
type PromotionRepository struct {
	base *pfirestore.BaseRepository[promotionDocument]
}

func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{base: pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection)}, nil
}

func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	return r.base.Create(ctx, promotion.ID, newPromotionDocument(promotion))
}

func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	existing, err := r.base.Get(ctx, promotion.ID)
	if err != nil {
		return err
	}
	promotion.CreatedAt = existing.Data.CreatedAt
	return r.base.Set(ctx, promotion.ID, newPromotionDocument(promotion))
}

func (r *PromotionRepository) Delete(ctx context.Context, promotionID string) error {
	if _, err := r.base.Get(ctx, promotionID); err != nil {
		return err
	}
	return r.base.Delete(ctx, promotionID)
}

func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	doc, err := r.base.Get(ctx, promotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	docs, next, err := r.base.Page(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q
	}, "createdAt", firestore.Desc, filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, err
	}
	items := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Promotion]{Items: items, NextPageToken: next}, nil
}

// ListActive returns active promotions oldest first so the engine's first-match rule is stable.
func (r *PromotionRepository) ListActive(ctx context.Context) ([]domain.Promotion, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
