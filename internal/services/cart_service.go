package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hanko-field/storefront/internal/repositories"
)

const maxCartLineQuantity = 99

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartItemNotFound indicates the product is not in the cart.
	ErrCartItemNotFound = errors.New("cart service: item not found")
	// ErrCartProductUnavailable indicates the product is unknown, hidden or out of stock.
	ErrCartProductUnavailable = errors.New("cart service: product unavailable")
)

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Products   repositories.ProductRepository
	Promotions repositories.PromotionRepository
	Currency   string
	Clock      func() time.Time
	Logger     EventLogger
}

type cartService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	promotions repositories.PromotionRepository
	currency   string
	now        func() time.Time
	logger     EventLogger
}

// NewCartService constructs a CartService.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil || deps.Promotions == nil {
		return nil, errors.New("cart service: product and promotion repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &cartService{
		carts:      deps.Carts,
		products:   deps.Products,
		promotions: deps.Promotions,
		currency:   currency,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// GetCart returns the cart repriced against current products and promotions. Lines whose product
// was withdrawn are dropped.
func (s *cartService) GetCart(ctx context.Context, customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.load(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}
	return s.price(ctx, cart, nil)
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	return s.mutate(ctx, cmd, func(current int) int { return current + cmd.Quantity })
}

func (s *cartService) SetQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	return s.mutate(ctx, cmd, func(int) int { return cmd.Quantity })
}

func (s *cartService) mutate(ctx context.Context, cmd CartItemCommand, quantity func(current int) int) (Cart, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if customerID == "" || productID == "" || cmd.Quantity < 1 {
		return Cart{}, ErrCartInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartProductUnavailable
		}
		return Cart{}, s.translate(err)
	}
	if !product.Active {
		return Cart{}, ErrCartProductUnavailable
	}

	cart, err := s.load(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}
	idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ProductID == productID })
	current := 0
	if idx >= 0 {
		current = cart.Items[idx].Quantity
	}
	next := quantity(current)
	if next > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be at most %d", ErrCartInvalidInput, maxCartLineQuantity)
	}
	if next > product.Stock {
		return Cart{}, fmt.Errorf("%w: only %d in stock", ErrCartProductUnavailable, product.Stock)
	}
	if idx >= 0 {
		cart.Items[idx].Quantity = next
	} else {
		cart.Items = append(cart.Items, CartItem{ProductID: productID, Quantity: next})
	}

	priced, err := s.price(ctx, cart, map[string]Product{productID: product})
	if err != nil {
		return Cart{}, err
	}
	if err := s.save(ctx, priced); err != nil {
		return Cart{}, err
	}
	return priced, nil
}

func (s *cartService) RemoveItem(ctx context.Context, customerID, productID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	productID = strings.TrimSpace(productID)
	if customerID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.load(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}
	idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ProductID == productID })
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items = slices.Delete(cart.Items, idx, idx+1)

	priced, err := s.price(ctx, cart, nil)
	if err != nil {
		return Cart{}, err
	}
	if err := s.save(ctx, priced); err != nil {
		return Cart{}, err
	}
	return priced, nil
}

func (s *cartService) ClearCart(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.Delete(ctx, customerID); err != nil && !isRepoNotFound(err) {
		return s.translate(err)
	}
	return nil
}

func (s *cartService) load(ctx context.Context, customerID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return Cart{}, s.translate(err)
	}
	cart.CustomerID = customerID
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart Cart) error {
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, cart); err != nil {
		return s.translate(err)
	}
	return nil
}

// price refreshes names, unit prices and discounts from the catalogue. known holds products the
// caller already loaded.
func (s *cartService) price(ctx context.Context, cart Cart, known map[string]Product) (Cart, error) {
	cart.Currency = s.currency
	if len(cart.Items) == 0 {
		cart.Items = nil
		cart.Subtotal, cart.Discount, cart.Total = 0, 0, 0
		return cart, nil
	}
	active, err := s.promotions.ListActive(ctx)
	if err != nil {
		return Cart{}, s.translate(err)
	}
	now := s.now()

	items := make([]CartItem, 0, len(cart.Items))
	var subtotal, total int64
	for _, item := range cart.Items {
		product, found, err := s.lookupProduct(ctx, item.ProductID, known)
		if err != nil {
			return Cart{}, err
		}
		if !found || !product.Active {
			s.logger(ctx, "cart.item_dropped", map[string]any{"customerID": cart.CustomerID, "productID": item.ProductID})
			continue
		}
		result := ApplyPromotions(product.Price, promotionsForProduct(product, active), now)
		priced := CartItem{
			ProductID:       product.ID,
			SKU:             product.SKU,
			Name:            product.Name,
			Quantity:        item.Quantity,
			UnitPrice:       product.Price,
			DiscountedPrice: result.DiscountedPrice,
			PercentOff:      result.PercentOff,
		}
		if result.Promotion != nil {
			priced.PromotionID = result.Promotion.ID
		}
		subtotal += priced.UnitPrice * int64(priced.Quantity)
		total += priced.LineTotal()
		items = append(items, priced)
	}
	cart.Items = items
	cart.Subtotal = subtotal
	cart.Total = total
	cart.Discount = subtotal - total
	return cart, nil
}

func (s *cartService) lookupProduct(ctx context.Context, productID string, known map[string]Product) (Product, bool, error) {
	if product, ok := known[productID]; ok {
		return product, true, nil
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, false, nil
		}
		return Product{}, false, s.translate(err)
	}
	return product, true, nil
}

func (s *cartService) translate(err error) error {
	if isRepoUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return err
}
