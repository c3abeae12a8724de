package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const ordersCollection = "orders"

// ErrInsufficientStock is wrapped in the conflict returned by Place when a product cannot cover
// the requested quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

// OrderRepository persists orders and keeps product stock consistent with them.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// placeOrderAttempts is higher than the default because popular products see
// concurrent reservations during sales.
const placeOrderAttempts = 8

// Place reserves stock for every line and creates the order atomically.
func (r *OrderRepository) Place(ctx context.Context, order domain.OrderSummary) error {
	orderRef, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	wanted := aggregateQuantities(order.Lines)
	productIDs := sortedKeys(wanted)

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		stock := make(map[string]int, len(productIDs))
		refs := make(map[string]*firestore.DocumentRef, len(productIDs))
		for _, id := range productIDs {
			doc, err := r.products.GetTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if !doc.Data.Active {
				return pfirestore.Conflict("orders.place", fmt.Errorf("product %s is not available", id))
			}
			if doc.Data.Stock < wanted[id] {
				return pfirestore.Conflict("orders.place", fmt.Errorf("%w for product %s: have %d, want %d", ErrInsufficientStock, id, doc.Data.Stock, wanted[id]))
			}
			ref, err := r.products.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			stock[id] = doc.Data.Stock
			refs[id] = ref
		}

		for _, id := range productIDs {
			if err := tx.Update(refs[id], []firestore.Update{
				{Path: "stock", Value: stock[id] - wanted[id]},
				{Path: "updatedAt", Value: order.CreatedAt.UTC()},
			}); err != nil {
				return err
			}
		}
		return tx.Create(orderRef, newOrderDocument(order))
	}, pfirestore.WithTxAttempts(placeOrderAttempts))
}

// ReleaseStock returns reserved quantities. Products deleted since the order was placed are skipped.
func (r *OrderRepository) ReleaseStock(ctx context.Context, order domain.OrderSummary) error {
	wanted := aggregateQuantities(order.Lines)
	productIDs := sortedKeys(wanted)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make(map[string]*firestore.DocumentRef, len(productIDs))
		for _, id := range productIDs {
			if _, err := r.products.GetTx(ctx, tx, id); err != nil {
				var repoErr *pfirestore.Error
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					continue
				}
				return err
			}
			ref, err := r.products.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			refs[id] = ref
		}
		for _, id := range productIDs {
			ref, ok := refs[id]
			if !ok {
				continue
			}
			if err := tx.Update(ref, []firestore.Update{{Path: "stock", Value: firestore.Increment(wanted[id])}}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(*domain.OrderSummary) error) (domain.OrderSummary, error) {
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	var result domain.OrderSummary
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order := doc.Data.toDomain(doc.ID)
		if err := fn(&order); err != nil {
			return err
		}
		result = order
		return tx.Set(ref, newOrderDocument(order))
	})
	if err != nil {
		return domain.OrderSummary{}, err
	}
	return result, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.OrderSummary, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.OrderSummary], error) {
	docs, next, err := r.orders.Page(ctx, func(q firestore.Query) firestore.Query {
		if filter.CustomerID != "" {
			q = q.Where("customerId", "==", filter.CustomerID)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		return q
	}, "createdAt", firestore.Desc, filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.OrderSummary]{}, err
	}
	items := make([]domain.OrderSummary, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.OrderSummary]{Items: items, NextPageToken: next}, nil
}

func aggregateQuantities(lines []domain.OrderLine) map[string]int {
	out := make(map[string]int, len(lines))
	for _, line := range lines {
		out[line.ProductID] += line.Quantity
	}
	return out
}

// sortedKeys gives transactions a stable read order across retries.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
