package services

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var (
	hundred    = decimal.NewFromInt(100)
	minorUnits = decimal.NewFromInt(100)
)

// ApplyPromotions prices a single unit against promotions. Only ByValue promotions that are active
// and scheduled at the given instant are considered, and the first of those wins. Amounts are minor
// units; flat promotion values are major units.
func ApplyPromotions(price int64, promotions []domain.Promotion, at time.Time) domain.DiscountResult {
	if price < 0 {
		price = 0
	}
	result := domain.DiscountResult{BasePrice: price, DiscountedPrice: price}

	for _, promo := range promotions {
		if !eligibleValuePromotion(promo, at) {
			continue
		}
		base := decimal.NewFromInt(price)
		var discount int64
		var percent decimal.Decimal

		switch promo.PromotionType {
		case domain.PromotionTypePercent:
			percent = decimal.NewFromFloat(clampPercent(promo.Value))
			discount = base.Mul(percent).Div(hundred).Round(0).IntPart()
		case domain.PromotionTypeFlat:
			discount = decimal.NewFromFloat(promo.Value).Mul(minorUnits).Round(0).IntPart()
			if discount > price {
				discount = price
			}
			if price > 0 {
				percent = decimal.NewFromInt(discount).Div(base).Mul(hundred).Round(2)
			}
		}

		header := promo.Header()
		result.Discount = discount
		result.DiscountedPrice = price - discount
		result.PercentOff = percent.InexactFloat64()
		result.Promotion = &header
		return result
	}
	return result
}

// clampPercent bounds a percentage promotion to [0,100]. eligibleValuePromotion
// also rejects non-positive values before they get here.
func clampPercent(value float64) float64 {
	return max(0, min(value, 100))
}

func eligibleValuePromotion(promo domain.Promotion, at time.Time) bool {
	if promo.PromotionBy != domain.PromotionByValue || !promo.Active {
		return false
	}
	if promo.PromotionType != domain.PromotionTypePercent && promo.PromotionType != domain.PromotionTypeFlat {
		return false
	}
	if math.IsNaN(promo.Value) || math.IsInf(promo.Value, 0) || promo.Value <= 0 {
		return false
	}
	return promo.InWindow(at)
}
