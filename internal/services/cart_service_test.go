package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func newTestCartService(t *testing.T, products *memProducts, promos *memPromotions) (CartService, *memCarts) {
	t.Helper()
	carts := newMemCarts()
	svc, err := NewCartService(CartServiceDeps{
		Carts:      carts,
		Products:   products,
		Promotions: promos,
		Clock:      fixedClock(time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc, carts
}

func TestCartService_AddItemPricesWithPromotions(t *testing.T) {
	products := newMemProducts(
		domain.Product{ID: "p1", SKU: "TEE", Name: "Tee", Price: 50000, Stock: 10, Active: true},
		domain.Product{ID: "p2", SKU: "CAP", Name: "Cap", Price: 30000, Stock: 10, Active: true, PromotionIDs: []string{"flat"}},
	)
	flat := valuePromo("flat", domain.PromotionTypeFlat, 50)
	flat.ProductIDs = []string{"p2"}
	svc, carts := newTestCartService(t, products, newMemPromotions(flat))
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("AddItem p1: %v", err)
	}
	cart, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "p2", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem p2: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected two lines, got %+v", cart.Items)
	}
	if cart.Subtotal != 130000 || cart.Total != 125000 || cart.Discount != 5000 {
		t.Fatalf("unexpected totals %+v", cart)
	}
	if cart.Items[1].PromotionID != "flat" || cart.Items[1].DiscountedPrice != 25000 {
		t.Fatalf("unexpected discounted line %+v", cart.Items[1])
	}

	cart, err = svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("AddItem again: %v", err)
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("expected quantities to accumulate, got %d", cart.Items[0].Quantity)
	}
	if stored := carts.items["c1"]; stored.Total != cart.Total || stored.UpdatedAt.IsZero() {
		t.Fatalf("expected cart persisted, got %+v", stored)
	}
}

func TestCartService_RejectsInvalidQuantities(t *testing.T) {
	products := newMemProducts(
		domain.Product{ID: "p1", Price: 100, Stock: 3, Active: true},
		domain.Product{ID: "hidden", Price: 100, Stock: 3},
	)
	svc, _ := newTestCartService(t, products, newMemPromotions())
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "p1", Quantity: 0}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if _, err := svc.SetQuantity(ctx, CartItemCommand{CustomerID: "c1", ProductID: "p1", Quantity: 4}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected stock check, got %v", err)
	}
	if _, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "hidden", Quantity: 1}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected hidden product rejected, got %v", err)
	}
	if _, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "nope", Quantity: 1}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected unknown product rejected, got %v", err)
	}
}

func TestCartService_GetDropsWithdrawnProducts(t *testing.T) {
	products := newMemProducts(
		domain.Product{ID: "p1", Price: 1000, Stock: 5, Active: true},
		domain.Product{ID: "p2", Price: 2000, Stock: 5, Active: true},
	)
	svc, _ := newTestCartService(t, products, newMemPromotions())
	ctx := context.Background()
	for _, id := range []string{"p1", "p2"} {
		if _, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: id, Quantity: 1}); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}
	p2 := products.items["p2"]
	p2.Active = false
	products.items["p2"] = p2

	cart, err := svc.GetCart(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Total != 1000 {
		t.Fatalf("expected withdrawn product dropped, got %+v", cart)
	}
}

func TestCartService_RemoveAndClear(t *testing.T) {
	products := newMemProducts(domain.Product{ID: "p1", Price: 1000, Stock: 5, Active: true})
	svc, carts := newTestCartService(t, products, newMemPromotions())
	ctx := context.Background()

	if _, err := svc.RemoveItem(ctx, "c1", "p1"); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	if _, err := svc.AddItem(ctx, CartItemCommand{CustomerID: "c1", ProductID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cart, err := svc.RemoveItem(ctx, "c1", "p1")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Items) != 0 || cart.Total != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
	if err := svc.ClearCart(ctx, "c1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if len(carts.deleted) != 1 {
		t.Fatalf("expected cart deleted")
	}
}
