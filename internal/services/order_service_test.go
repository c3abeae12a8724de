package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func newTestOrderService(t *testing.T, orders ...domain.OrderSummary) (OrderService, *memOrders, *memProducts) {
	t.Helper()
	products := newMemProducts(
		domain.Product{ID: "p1", Price: 50000, Stock: 3, Active: true},
		domain.Product{ID: "p2", Price: 30000, Stock: 1, Active: true},
	)
	repo := newMemOrders(products, orders...)
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Clock:  fixedClock(time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc, repo, products
}

func confirmedOrder(id, customerID string) domain.OrderSummary {
	return domain.OrderSummary{
		ID:          id,
		CustomerID:  customerID,
		Status:      domain.OrderStatusConfirmed,
		PaymentType: domain.PaymentTypePrepaid,
		Lines: []domain.OrderLine{
			{LineID: "L01", ProductID: "p1", Quantity: 2, Status: domain.OrderStatusConfirmed},
			{LineID: "L02", ProductID: "p2", Quantity: 1, Status: domain.OrderStatusConfirmed},
		},
	}
}

func TestOrderServiceGetOrderChecksOwnership(t *testing.T) {
	svc, _, _ := newTestOrderService(t, confirmedOrder("ord-1", "c1"))

	order, err := svc.GetOrder(context.Background(), "c1", "ord-1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected lines, got %+v", order)
	}
	if _, err := svc.GetOrder(context.Background(), "c2", "ord-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
	if _, err := svc.AdminGetOrder(context.Background(), "ord-1"); err != nil {
		t.Fatalf("AdminGetOrder: %v", err)
	}
	if _, err := svc.AdminGetOrder(context.Background(), "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceListOrdersFiltersByCustomer(t *testing.T) {
	svc, _, _ := newTestOrderService(t, confirmedOrder("ord-1", "c1"), confirmedOrder("ord-2", "c2"))

	page, err := svc.ListOrders(context.Background(), repositories.OrderListFilter{CustomerID: "c1"})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ord-1" {
		t.Fatalf("unexpected page %+v", page.Items)
	}

	all, err := svc.ListOrders(context.Background(), repositories.OrderListFilter{})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected admin listing of every order, got %d", len(all.Items))
	}

	if _, err := svc.ListOrders(context.Background(), repositories.OrderListFilter{Status: "Lost"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceUpdateStatusWholeOrder(t *testing.T) {
	svc, repo, _ := newTestOrderService(t, confirmedOrder("ord-1", "c1"))

	order, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{
		OrderID:  "ord-1",
		Status:   domain.OrderStatusDispatched,
		Shipment: "shp_9",
		ActorID:  "staff-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDispatched || order.ShipmentID != "shp_9" {
		t.Fatalf("unexpected order %+v", order)
	}
	for _, line := range repo.get("ord-1").Lines {
		if line.Status != domain.OrderStatusDispatched || line.ShipmentID != "shp_9" {
			t.Fatalf("line not dispatched: %+v", line)
		}
	}

	if _, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord-1", Status: domain.OrderStatusConfirmed}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState moving backwards, got %v", err)
	}
}

func TestOrderServiceUpdateStatusPerLine(t *testing.T) {
	svc, repo, products := newTestOrderService(t, confirmedOrder("ord-1", "c1"))

	order, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{
		OrderID: "ord-1",
		LineIDs: []string{"L02"},
		Status:  domain.OrderStatusCancelled,
		Reason:  "out of stock at warehouse",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("header must follow the remaining open line, got %s", order.Status)
	}
	if products.stock("p2") != 2 {
		t.Fatalf("expected cancelled line stock released, got %d", products.stock("p2"))
	}
	if len(repo.released) != 1 {
		t.Fatalf("expected one release, got %v", repo.released)
	}

	order, err = svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord-1", LineIDs: []string{"L01"}, Status: domain.OrderStatusDispatched})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDispatched {
		t.Fatalf("expected header to settle on Dispatched, got %s", order.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord-1", LineIDs: []string{"L07"}, Status: domain.OrderStatusDelivered}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for unknown line, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord-1", Status: domain.OrderStatusPlaced}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for Placed, got %v", err)
	}
}
