//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

func newTestProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("storefront-repo-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func TestOrderRepositoryPlaceReservesStock(t *testing.T) {
	provider := newTestProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	products, _ := NewProductRepository(provider)
	orders, _ := NewOrderRepository(provider)

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := products.Insert(ctx, domain.Product{ID: "prod_1", SKU: "MUG", Name: "Mug", Price: 49900, Currency: "INR", Stock: 3, Active: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	order := domain.OrderSummary{
		ID:         "ord_1",
		CustomerID: "cust_1",
		Status:     domain.OrderStatusPlaced,
		Lines: []domain.OrderLine{
			{LineID: "l1", ProductID: "prod_1", Quantity: 1, UnitPrice: 49900, DiscountedPrice: 49900, Status: domain.OrderStatusPlaced},
			{LineID: "l2", ProductID: "prod_1", Quantity: 1, UnitPrice: 49900, DiscountedPrice: 49900, Status: domain.OrderStatusPlaced},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := orders.Place(ctx, order); err != nil {
		t.Fatalf("place: %v", err)
	}
	got, err := products.FindByID(ctx, "prod_1")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if got.Stock != 1 {
		t.Fatalf("expected aggregated decrement to leave 1, got %d", got.Stock)
	}

	second := order
	second.ID = "ord_2"
	if err := orders.Place(ctx, second); !isConflict(err) {
		t.Fatalf("expected conflict for insufficient stock, got %v", err)
	}
	if _, err := orders.FindByID(ctx, "ord_2"); err == nil {
		t.Fatalf("rejected order must not be written")
	}

	if err := orders.ReleaseStock(ctx, order); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ = products.FindByID(ctx, "prod_1")
	if got.Stock != 3 {
		t.Fatalf("expected stock restored to 3, got %d", got.Stock)
	}

	updated, err := orders.Mutate(ctx, "ord_1", func(o *domain.OrderSummary) error {
		o.Status = domain.OrderStatusConfirmed
		return nil
	})
	if err != nil || updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("mutate: %+v %v", updated, err)
	}

	sentinel := errors.New("stop")
	if _, err := orders.Mutate(ctx, "ord_1", func(*domain.OrderSummary) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to surface, got %v", err)
	}
}

func TestCheckoutRepositoryConcurrentMutate(t *testing.T) {
	provider := newTestProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	repo, _ := NewCheckoutRepository(provider)
	past := time.Now().Add(-time.Hour).UTC()
	if err := repo.Create(ctx, domain.CheckoutSession{OrderID: "ord_c", CustomerID: "cust_1", Status: domain.CheckoutStatusPending, GatewaySessionID: "cs_123", CreatedAt: past, UpdatedAt: past}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "ord_c", func(s *domain.CheckoutSession) error {
				if s.Status.Terminal() {
					return nil
				}
				s.Status = domain.CheckoutStatusCompleted
				mu.Lock()
				completed++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()
	if completed < 1 {
		t.Fatalf("expected at least one completion")
	}

	found, err := repo.FindByGatewaySession(ctx, "cs_123")
	if err != nil || found.Status != domain.CheckoutStatusCompleted {
		t.Fatalf("find by gateway session: %+v %v", found, err)
	}

	stale, err := repo.ListStale(ctx, domain.CheckoutStatusPending, time.Now(), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("completed checkout must not be stale, got %d", len(stale))
	}
}

func TestCustomerRepositoryRejectsDuplicateEmail(t *testing.T) {
	provider := newTestProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, _ := NewCustomerRepository(provider)
	if err := repo.Insert(ctx, domain.Customer{ID: "c1", Name: "Asha", Email: "Asha@Example.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, domain.Customer{ID: "c2", Name: "Other", Email: "asha@example.com"}); !isConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := repo.FindByEmail(ctx, "ASHA@example.com")
	if err != nil || got.ID != "c1" {
		t.Fatalf("find by email: %+v %v", got, err)
	}
}

func TestAddressRepositoryDefaultIsExclusive(t *testing.T) {
	provider := newTestProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, _ := NewAddressRepository(provider)
	now := time.Now().UTC()
	for _, id := range []string{"a1", "a2"} {
		if err := repo.Save(ctx, domain.Address{ID: id, CustomerID: "c1", Name: id, IsDefault: true, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	list, err := repo.List(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
			if a.ID != "a2" {
				t.Fatalf("expected latest save to be default, got %s", a.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default, got %d", defaults)
	}
}
