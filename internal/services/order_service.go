package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var knownOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPlaced,
	domain.OrderStatusConfirmed,
	domain.OrderStatusDispatched,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
	domain.OrderStatusReturned,
	domain.OrderStatusFailed,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger EventLogger
}

type orderService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	logger EventLogger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ListOrders lists orders newest first. An empty CustomerID lists every customer and is reserved
// for admin callers.
func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	if filter.Status != "" && !slices.Contains(knownOrderStatuses, filter.Status) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, filter.Status)
	}
	switch size := filter.Pagination.PageSize; {
	case size <= 0:
		filter.Pagination.PageSize = defaultOrderPageSize
	case size > maxOrderPageSize:
		filter.Pagination.PageSize = maxOrderPageSize
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// GetOrder returns the order when it belongs to the customer. Orders of other customers are
// reported as not found.
func (s *orderService) GetOrder(ctx context.Context, customerID, orderID string) (Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	order, err := s.AdminGetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.CustomerID != customerID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) AdminGetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// UpdateStatus moves order lines along the status table. With no LineIDs every open line moves
// together with the order header; otherwise the header follows once all open lines agree.
// Cancelled lines give their stock back.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.Status
	if !slices.Contains(knownOrderStatuses, target) || target == domain.OrderStatusPlaced {
		return Order{}, fmt.Errorf("%w: unsupported status %q", ErrOrderInvalidInput, target)
	}
	lineIDs := cleanIDs(cmd.LineIDs)
	shipment := strings.TrimSpace(cmd.Shipment)
	if shipment != "" && target != domain.OrderStatusDispatched {
		return Order{}, fmt.Errorf("%w: shipment can only be attached when dispatching", ErrOrderInvalidInput)
	}

	var (
		previous  domain.OrderStatus
		cancelled []OrderLine
	)
	order, err := s.orders.Mutate(ctx, orderID, func(o *Order) error {
		previous, cancelled = o.Status, nil
		now := s.clock()

		selected := lineIDs
		if len(selected) == 0 {
			if o.Status != target && !o.Status.CanTransition(target) {
				return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, o.Status, target)
			}
			for _, line := range o.Lines {
				if line.Status.CanTransition(target) {
					selected = append(selected, line.LineID)
				}
			}
		}

		for _, id := range selected {
			idx := slices.IndexFunc(o.Lines, func(l OrderLine) bool { return l.LineID == id })
			if idx < 0 {
				return fmt.Errorf("%w: unknown line %s", ErrOrderInvalidInput, id)
			}
			line := &o.Lines[idx]
			if line.Status == target {
				continue
			}
			if !line.Status.CanTransition(target) {
				return fmt.Errorf("%w: line %s %s -> %s", ErrOrderInvalidState, id, line.Status, target)
			}
			line.Status = target
			if shipment != "" {
				line.ShipmentID = shipment
			}
			if target == domain.OrderStatusCancelled {
				cancelled = append(cancelled, *line)
			}
		}

		if header, ok := settledStatus(o.Lines); ok && header != o.Status && o.Status.CanTransition(header) {
			o.Status = header
		}
		if shipment != "" && o.ShipmentID == "" {
			o.ShipmentID = shipment
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidInput) || errors.Is(err, ErrOrderInvalidState) {
			return Order{}, err
		}
		return Order{}, s.mapRepositoryError(err)
	}

	if len(cancelled) > 0 {
		release := order
		release.Lines = cancelled
		if err := s.orders.ReleaseStock(ctx, release); err != nil {
			s.logger(ctx, "order.release_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		}
	}

	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderID":  order.ID,
		"previous": string(previous),
		"current":  string(order.Status),
		"target":   string(target),
		"lines":    lineIDs,
		"actorID":  strings.TrimSpace(cmd.ActorID),
		"reason":   strings.TrimSpace(cmd.Reason),
	})
	return order, nil
}

// settledStatus returns the status shared by every line still in play. Cancelled lines are
// ignored unless all lines are cancelled.
func settledStatus(lines []OrderLine) (domain.OrderStatus, bool) {
	var status domain.OrderStatus
	for _, line := range lines {
		if line.Status == domain.OrderStatusCancelled {
			continue
		}
		if status == "" {
			status = line.Status
			continue
		}
		if line.Status != status {
			return "", false
		}
	}
	if status == "" && len(lines) > 0 {
		return domain.OrderStatusCancelled, true
	}
	return status, status != ""
}

func (s *orderService) mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	return err
}
