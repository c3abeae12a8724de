package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const maxPromotionNameLength = 80

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
	Products   repositories.ProductRepository
	Clock      func() time.Time
	IDGen      func() string
	Logger     EventLogger
}

type promotionService struct {
	repo     repositories.PromotionRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   EventLogger
}

// NewPromotionService wires a PromotionService backed by the provided repositories.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("promotion service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		repo:     deps.Promotions,
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *promotionService) ListPromotions(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[Promotion], error) {
	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Promotion]{}, s.translate(err)
	}
	return page, nil
}

func (s *promotionService) GetPromotion(ctx context.Context, promotionID string) (Promotion, error) {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return Promotion{}, ErrPromotionInvalidInput
	}
	promotion, err := s.repo.FindByID(ctx, promotionID)
	if err != nil {
		return Promotion{}, s.translate(err)
	}
	return promotion, nil
}

func (s *promotionService) CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promotion, err := s.buildPromotion(cmd)
	if err != nil {
		return Promotion{}, err
	}
	now := s.clock()
	if promotion.ID == "" {
		promotion.ID = s.newID()
	}
	promotion.CreatedAt = now
	promotion.UpdatedAt = now
	if err := s.repo.Insert(ctx, promotion); err != nil {
		return Promotion{}, s.translate(err)
	}
	s.logger(ctx, "promotion.created", map[string]any{"promotionID": promotion.ID, "type": string(promotion.PromotionType)})
	return promotion, nil
}

func (s *promotionService) UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	if strings.TrimSpace(cmd.PromotionID) == "" {
		return Promotion{}, ErrPromotionInvalidInput
	}
	promotion, err := s.buildPromotion(cmd)
	if err != nil {
		return Promotion{}, err
	}
	existing, err := s.repo.FindByID(ctx, promotion.ID)
	if err != nil {
		return Promotion{}, s.translate(err)
	}
	promotion.CreatedAt = existing.CreatedAt
	promotion.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, promotion); err != nil {
		return Promotion{}, s.translate(err)
	}
	s.logger(ctx, "promotion.updated", map[string]any{"promotionID": promotion.ID})
	return promotion, nil
}

func (s *promotionService) DeletePromotion(ctx context.Context, promotionID string) error {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return ErrPromotionInvalidInput
	}
	if err := s.repo.Delete(ctx, promotionID); err != nil {
		return s.translate(err)
	}
	s.logger(ctx, "promotion.deleted", map[string]any{"promotionID": promotionID})
	return nil
}

func (s *promotionService) ActiveFor(ctx context.Context, productID string) ([]Promotion, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, s.translate(err)
	}
	now := s.clock()
	var out []Promotion
	for _, promo := range promotionsForProduct(product, active) {
		if promo.InWindow(now) {
			out = append(out, promo)
		}
	}
	return out, nil
}

func (s *promotionService) Quote(ctx context.Context, productID string) (ProductQuote, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return ProductQuote{}, err
	}
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return ProductQuote{}, s.translate(err)
	}
	return ProductQuote{
		Product:  product,
		Discount: ApplyPromotions(product.Price, promotionsForProduct(product, active), s.clock()),
	}, nil
}

func (s *promotionService) loadProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrPromotionInvalidInput
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, ErrPromotionProductNotFound
		}
		return Product{}, s.translate(err)
	}
	if !product.Active {
		return Product{}, ErrPromotionProductNotFound
	}
	return product, nil
}

func (s *promotionService) buildPromotion(cmd UpsertPromotionCommand) (Promotion, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || len(name) > maxPromotionNameLength {
		return Promotion{}, fmt.Errorf("%w: name must be 1-%d characters", ErrPromotionInvalidInput, maxPromotionNameLength)
	}
	by := cmd.PromotionBy
	if by == "" {
		by = domain.PromotionByValue
	}
	if by != domain.PromotionByValue && by != domain.PromotionByQuantity {
		return Promotion{}, fmt.Errorf("%w: unknown promotionBy %q", ErrPromotionInvalidInput, by)
	}
	if math.IsNaN(cmd.Value) || math.IsInf(cmd.Value, 0) {
		return Promotion{}, fmt.Errorf("%w: value must be a number", ErrPromotionInvalidInput)
	}
	switch cmd.PromotionType {
	case domain.PromotionTypePercent:
		if cmd.Value <= 0 || cmd.Value > 100 {
			return Promotion{}, fmt.Errorf("%w: percent value must be in (0,100]", ErrPromotionInvalidInput)
		}
	case domain.PromotionTypeFlat:
		if cmd.Value <= 0 {
			return Promotion{}, fmt.Errorf("%w: flat value must be positive", ErrPromotionInvalidInput)
		}
	default:
		return Promotion{}, fmt.Errorf("%w: unknown promotionType %q", ErrPromotionInvalidInput, cmd.PromotionType)
	}
	if cmd.StartsAt != nil && cmd.EndsAt != nil && !cmd.EndsAt.After(*cmd.StartsAt) {
		return Promotion{}, fmt.Errorf("%w: endsAt must be after startsAt", ErrPromotionInvalidInput)
	}

	return Promotion{
		ID:            strings.TrimSpace(cmd.PromotionID),
		Name:          name,
		Description:   strings.TrimSpace(cmd.Description),
		PromotionBy:   by,
		PromotionType: cmd.PromotionType,
		Value:         cmd.Value,
		Active:        cmd.Active,
		StartsAt:      utcPtr(cmd.StartsAt),
		EndsAt:        utcPtr(cmd.EndsAt),
		ProductIDs:    cleanIDs(cmd.ProductIDs),
	}, nil
}

func (s *promotionService) translate(err error) error {
	switch {
	case isRepoNotFound(err):
		return ErrPromotionNotFound
	case isRepoConflict(err):
		return ErrPromotionConflict
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrPromotionUnavailable, err)
	}
	return err
}

// promotionsForProduct orders the candidate promotions for a product: the ones the product lists
// explicitly come first in the product's order, followed by the rest that target it or every product.
func promotionsForProduct(product Product, active []Promotion) []Promotion {
	byID := make(map[string]Promotion, len(active))
	for _, promo := range active {
		byID[promo.ID] = promo
	}
	out := make([]Promotion, 0, len(active))
	seen := make(map[string]struct{}, len(product.PromotionIDs))
	for _, id := range product.PromotionIDs {
		if promo, ok := byID[id]; ok {
			if _, dup := seen[id]; !dup {
				out = append(out, promo)
				seen[id] = struct{}{}
			}
		}
	}
	for _, promo := range active {
		if _, ok := seen[promo.ID]; ok {
			continue
		}
		if promo.AppliesTo(product.ID) {
			out = append(out, promo)
		}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

func cleanIDs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
