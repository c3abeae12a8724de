package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/notifications"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/shipping"
)

const (
	refundMeterName          = "github.com/hanko-field/storefront/internal/services/refund"
	defaultRefundConcurrency = 4
	refundReasonDefault      = "requested by customer"
	orderWriteBackAttempts   = 3
)

var (
	// ErrRefundInvalidInput indicates the refund request is malformed.
	ErrRefundInvalidInput = errors.New("refund: invalid input")
	// ErrRefundNotFound indicates the order does not exist or is not owned by the caller.
	ErrRefundNotFound = errors.New("refund: order not found")
	// ErrRefundNotEligible indicates the order cannot be refunded in its current state.
	ErrRefundNotEligible = errors.New("refund: order not eligible")
	// ErrRefundUnavailable indicates the order store is unavailable.
	ErrRefundUnavailable = errors.New("refund: unavailable")
	// ErrRefundUnauthorized indicates the carrier or gateway rejected our credentials.
	ErrRefundUnauthorized = errors.New("refund: unauthorized")
	// ErrRefundFailed indicates no requested line could be refunded.
	ErrRefundFailed = errors.New("refund: failed")

	// ErrRefundLineNotFound marks a requested line that is not part of the order.
	ErrRefundLineNotFound = errors.New("refund: line not found")
	// ErrRefundLineIneligible marks a line already refunded, cancelled or not yet paid for.
	ErrRefundLineIneligible = errors.New("refund: line not eligible")
	// ErrRefundShipmentFailed marks a line whose reverse pickup or shipment cancellation failed.
	ErrRefundShipmentFailed = errors.New("refund: shipment step failed")
	// ErrRefundGatewayFailed marks a line the payment gateway refused to refund.
	ErrRefundGatewayFailed = errors.New("refund: gateway refund failed")
)

// RefundServiceDeps wires the dependencies required by the refund service.
type RefundServiceDeps struct {
	Orders        repositories.OrderRepository
	Refunds       repositories.RefundRepository
	Customers     repositories.CustomerRepository
	Payments      PaymentGateway
	Shipping      ShippingCarrier
	Notifications NotificationPublisher
	// Concurrency bounds the number of lines refunded in parallel.
	Concurrency int
	Clock       func() time.Time
	IDGen       func() string
	Logger      EventLogger
	Meter       metric.Meter
}

type refundService struct {
	orders        repositories.OrderRepository
	refunds       repositories.RefundRepository
	customers     repositories.CustomerRepository
	payments      PaymentGateway
	shipping      ShippingCarrier
	notifications NotificationPublisher
	concurrency   int
	now           func() time.Time
	newID         func() string
	logger        EventLogger
	outcomes      metric.Int64Counter
}

// NewRefundService constructs a RefundService. The carrier and publisher are optional; without a
// carrier no pickup or cancellation is booked.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	switch {
	case deps.Orders == nil || deps.Refunds == nil:
		return nil, errors.New("refund service: order and refund repositories are required")
	case deps.Payments == nil:
		return nil, errors.New("refund service: payment gateway is required")
	case deps.Notifications != nil && deps.Customers == nil:
		return nil, errors.New("refund service: customer repository is required for notifications")
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
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultRefundConcurrency
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(refundMeterName)
	}
	counter, err := meter.Int64Counter("refund.lines",
		metric.WithDescription("Refunded order lines by outcome and speed"))
	if err != nil {
		return nil, fmt.Errorf("refund service: create counter: %w", err)
	}

	return &refundService{
		orders:        deps.Orders,
		refunds:       deps.Refunds,
		customers:     deps.Customers,
		payments:      deps.Payments,
		shipping:      deps.Shipping,
		notifications: deps.Notifications,
		concurrency:   concurrency,
		now:           func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
		outcomes:      counter,
	}, nil
}

func (s *refundService) RequestRefund(ctx context.Context, cmd RefundCommand) (RefundResult, error) {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return RefundResult{}, ErrRefundInvalidInput
	}
	return s.refund(ctx, cmd, false)
}

// AdminRefund refunds lines on behalf of staff; ownership is not checked.
func (s *refundService) AdminRefund(ctx context.Context, cmd RefundCommand) (RefundResult, error) {
	return s.refund(ctx, cmd, true)
}

// refundLine is the work item for one claimed line.
type refundLine struct {
	line     OrderLine
	cancel   string
	refund   Refund
	next     OrderLine
	err      error
	finished bool
}

func (s *refundService) refund(ctx context.Context, cmd RefundCommand, admin bool) (RefundResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return RefundResult{}, ErrRefundInvalidInput
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = refundReasonDefault
	}
	if len(reason) > 500 {
		return RefundResult{}, fmt.Errorf("%w: reason too long", ErrRefundInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return RefundResult{}, s.translateRepoError(err)
	}
	if !admin && order.CustomerID != strings.TrimSpace(cmd.CustomerID) {
		return RefundResult{}, ErrRefundNotFound
	}
	if err := orderRefundable(order); err != nil {
		return RefundResult{}, err
	}

	requested := cleanIDs(cmd.LineIDs)
	wholeOrder := len(requested) == 0
	if wholeOrder {
		for _, line := range order.Lines {
			requested = append(requested, line.LineID)
		}
	}

	result := RefundResult{OrderID: order.ID}
	work, failures, err := s.claim(ctx, order.ID, requested, wholeOrder)
	if err != nil {
		return RefundResult{}, err
	}
	result.Failures = append(result.Failures, failures...)
	if len(work) == 0 {
		if wholeOrder {
			return result, fmt.Errorf("%w: no refundable lines", ErrRefundNotEligible)
		}
		return result, fmt.Errorf("%w: no eligible lines", ErrRefundFailed)
	}

	claimed, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		claimed = order
	}
	s.cancelForwardShipments(ctx, claimed, work, reason)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, item := range work {
		if item.err != nil {
			continue
		}
		g.Go(func() error {
			s.processLine(ctx, claimed, item, reason, cmd.ActorID)
			return nil
		})
	}
	_ = g.Wait()

	writeErr := s.writeBack(ctx, order.ID, work)

	unauthorized := false
	for _, item := range work {
		if item.err != nil {
			result.Failures = append(result.Failures, RefundLineFailure{LineID: item.line.LineID, Err: item.err})
			unauthorized = unauthorized || errors.Is(item.err, ErrRefundUnauthorized)
			continue
		}
		result.Refunds = append(result.Refunds, item.refund)
	}
	slices.SortFunc(result.Failures, func(a, b RefundLineFailure) int { return strings.Compare(a.LineID, b.LineID) })

	if len(result.Refunds) > 0 {
		s.notify(ctx, order, result.Refunds)
	}
	s.logger(ctx, "refund.completed", map[string]any{
		"orderID":  order.ID,
		"refunded": len(result.Refunds),
		"failed":   len(result.Failures),
		"admin":    admin,
		"actorID":  cmd.ActorID,
	})

	if writeErr != nil {
		ids := issuedRefundIDs(result.Refunds)
		s.logger(ctx, "refund.order_update_failed", map[string]any{
			"orderID":   order.ID,
			"refundIDs": ids,
			"error":     writeErr.Error(),
		})
		if len(ids) > 0 {
			return result, fmt.Errorf("%w: refunds %s issued but order %s not updated: %v",
				ErrRefundUnavailable, strings.Join(ids, ","), order.ID, writeErr)
		}
	}

	switch {
	case unauthorized:
		return result, ErrRefundUnauthorized
	case len(result.Refunds) == 0:
		return result, fmt.Errorf("%w: %v", ErrRefundFailed, result.Failures[0].Err)
	}
	return result, nil
}

func orderRefundable(order Order) error {
	switch order.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusFailed:
		return fmt.Errorf("%w: order is %s", ErrRefundNotEligible, strings.ToLower(string(order.Status)))
	case domain.OrderStatusPlaced:
		return fmt.Errorf("%w: order is not confirmed", ErrRefundNotEligible)
	}
	if order.PaymentType == domain.PaymentTypePrepaid && strings.TrimSpace(order.PaymentIntentID) == "" {
		return fmt.Errorf("%w: order has no captured payment", ErrRefundNotEligible)
	}
	return nil
}

// lineRefundable reports whether a single line may be refunded. COD lines only carry money once
// delivered; earlier they are simply cancelled by staff.
func lineRefundable(order Order, line OrderLine) bool {
	switch line.RefundStatus {
	case domain.RefundStatusNone, domain.RefundStatusFailed:
	default:
		return false
	}
	switch line.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusFailed, domain.OrderStatusReturned, domain.OrderStatusPlaced:
		return false
	}
	if order.PaymentType == domain.PaymentTypeCashOnDelivery {
		return line.Status == domain.OrderStatusDelivered
	}
	return true
}

// claim marks the eligible lines as requested in one transaction so concurrent requests cannot
// refund the same line twice. With skipIneligible set, ineligible lines are left out silently.
func (s *refundService) claim(ctx context.Context, orderID string, lineIDs []string, skipIneligible bool) ([]*refundLine, []RefundLineFailure, error) {
	var (
		work     []*refundLine
		failures []RefundLineFailure
	)
	_, err := s.orders.Mutate(ctx, orderID, func(o *Order) error {
		work, failures = nil, nil
		if err := orderRefundable(*o); err != nil {
			return err
		}
		for _, id := range lineIDs {
			idx := slices.IndexFunc(o.Lines, func(l OrderLine) bool { return l.LineID == id })
			if idx < 0 {
				failures = append(failures, RefundLineFailure{LineID: id, Err: ErrRefundLineNotFound})
				continue
			}
			if !lineRefundable(*o, o.Lines[idx]) {
				if skipIneligible {
					continue
				}
				failures = append(failures, RefundLineFailure{LineID: id, Err: ErrRefundLineIneligible})
				continue
			}
			o.Lines[idx].RefundStatus = domain.RefundStatusRequested
			work = append(work, &refundLine{line: o.Lines[idx]})
		}
		if len(work) > 0 {
			o.UpdatedAt = s.now()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRefundNotEligible) {
			return nil, nil, err
		}
		return nil, nil, s.translateRepoError(err)
	}
	return work, failures, nil
}

// cancelForwardShipments cancels forward shipments that have not left the warehouse once every
// live line on them is being refunded. Shipments that still carry other lines keep moving.
func (s *refundService) cancelForwardShipments(ctx context.Context, order Order, work []*refundLine, reason string) {
	if s.shipping == nil {
		return
	}
	refunding := map[string]bool{}
	for _, item := range work {
		if !item.line.Status.Shipped() {
			refunding[item.line.LineID] = true
		}
	}
	type outcome struct {
		cancelled bool
		err       error
	}
	outcomes := map[string]outcome{}
	for _, item := range work {
		shipmentID := item.line.ShipmentID
		if item.line.Status.Shipped() || shipmentID == "" {
			continue
		}
		out, seen := outcomes[shipmentID]
		if !seen {
			if shipmentCovered(order, shipmentID, refunding) {
				out.err = s.shipping.CancelShipment(ctx, shipmentID, reason)
				out.cancelled = out.err == nil
			}
			outcomes[shipmentID] = out
		}
		if out.err != nil {
			s.failLine(ctx, item, s.shipmentError(out.err))
			continue
		}
		if out.cancelled {
			item.cancel = shipmentID
		}
	}
}

func shipmentCovered(order Order, shipmentID string, refunding map[string]bool) bool {
	for _, line := range order.Lines {
		if line.ShipmentID != shipmentID || refunding[line.LineID] {
			continue
		}
		if line.Status == domain.OrderStatusCancelled || line.RefundStatus == domain.RefundStatusProcessed || line.RefundStatus == domain.RefundStatusPending {
			continue
		}
		return false
	}
	return true
}

// processLine books the reverse pickup for shipped lines and issues the gateway refund.
func (s *refundService) processLine(ctx context.Context, order Order, item *refundLine, reason, actorID string) {
	line := item.line
	now := s.now()
	refund := Refund{
		ID:         s.newID(),
		OrderID:    order.ID,
		LineID:     line.LineID,
		CustomerID: order.CustomerID,
		Amount:     line.Total(),
		Currency:   order.Currency,
		Speed:      domain.RefundSpeedInstant,
		Status:     domain.RefundStatusRequested,
		ShipmentID: item.cancel,
		Reason:     reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	next := line
	next.Status = domain.OrderStatusCancelled

	if line.Status.Shipped() {
		refund.Speed = domain.RefundSpeedNormal
		next.Status = domain.OrderStatusReturned
		if s.shipping != nil {
			shipment, err := s.shipping.CreateShipment(ctx, shipping.ShipmentRequest{
				OrderID:        order.ID,
				LineIDs:        []string{line.LineID},
				Kind:           domain.ShipmentKindReverse,
				Address:        order.Address,
				Items:          []shipping.Item{{SKU: line.SKU, Name: line.Name, Quantity: line.Quantity, Value: line.Total()}},
				Currency:       order.Currency,
				IdempotencyKey: "return:" + order.ID + ":" + line.LineID,
			})
			if err != nil {
				s.failLine(ctx, item, s.shipmentError(err))
				return
			}
			refund.ShipmentID = shipment.ID
		}
	}

	if order.PaymentType == domain.PaymentTypeCashOnDelivery {
		refund.Status = domain.RefundStatusPending
	} else {
		issued, err := s.payments.Refund(ctx, payments.PaymentContext{Currency: order.Currency}, payments.RefundRequest{
			IntentID:       order.PaymentIntentID,
			Amount:         refund.Amount,
			Speed:          payments.RefundSpeed(refund.Speed),
			Reason:         reason,
			IdempotencyKey: "refund:" + refund.ID,
			Metadata: map[string]string{
				"order_id":  order.ID,
				"line_id":   line.LineID,
				"refund_id": refund.ID,
				"actor_id":  actorID,
			},
		})
		if err == nil && issued.Status == payments.StatusFailed {
			err = errors.New("gateway reported the refund as failed")
		}
		if err != nil {
			refund.Status = domain.RefundStatusFailed
			if insertErr := s.refunds.Insert(ctx, refund); insertErr != nil {
				s.logger(ctx, "refund.record_failed", map[string]any{"orderID": order.ID, "lineID": line.LineID, "error": insertErr.Error()})
			}
			s.failLine(ctx, item, fmt.Errorf("%w: %v", ErrRefundGatewayFailed, err))
			return
		}
		refund.GatewayRefundID = issued.ID
		refund.Status = domain.RefundStatusProcessed
	}

	if err := s.refunds.Insert(ctx, refund); err != nil {
		s.logger(ctx, "refund.record_failed", map[string]any{"orderID": order.ID, "lineID": line.LineID, "error": err.Error()})
	}
	next.RefundStatus = refund.Status
	item.refund = refund
	item.next = next
	item.finished = true
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(refund.Status)),
		attribute.String("speed", string(refund.Speed)),
	))
}

func (s *refundService) failLine(ctx context.Context, item *refundLine, err error) {
	item.err = err
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	s.logger(ctx, "refund.line_failed", map[string]any{"lineID": item.line.LineID, "error": err.Error()})
}

// applyOutcome writes per-line results back onto the order and settles the order status once
// every line has been cancelled or returned.
// writeBack records the line outcomes on the order. Gateway refunds have already
// been issued at this point, so the write is retried before giving up.
func (s *refundService) writeBack(ctx context.Context, orderID string, work []*refundLine) error {
	var err error
	for attempt := 0; attempt < orderWriteBackAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err = s.orders.Mutate(ctx, orderID, func(o *Order) error {
			s.applyOutcome(o, work)
			return nil
		})
		if err == nil {
			return nil
		}
	}
	return err
}

func issuedRefundIDs(refunds []Refund) []string {
	ids := make([]string, 0, len(refunds))
	for _, r := range refunds {
		id := r.GatewayRefundID
		if id == "" {
			id = r.ID
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *refundService) applyOutcome(o *Order, work []*refundLine) {
	for _, item := range work {
		idx := slices.IndexFunc(o.Lines, func(l OrderLine) bool { return l.LineID == item.line.LineID })
		if idx < 0 {
			continue
		}
		if !item.finished {
			o.Lines[idx].RefundStatus = domain.RefundStatusFailed
			continue
		}
		o.Lines[idx].RefundStatus = item.next.RefundStatus
		if o.Lines[idx].Status.CanTransition(item.next.Status) {
			o.Lines[idx].Status = item.next.Status
		}
	}

	returned := false
	for _, line := range o.Lines {
		switch line.Status {
		case domain.OrderStatusReturned:
			returned = true
		case domain.OrderStatusCancelled:
		default:
			o.UpdatedAt = s.now()
			return
		}
	}
	target := domain.OrderStatusCancelled
	if returned {
		target = domain.OrderStatusReturned
	}
	if o.Status.CanTransition(target) {
		o.Status = target
	}
	o.UpdatedAt = s.now()
}

func (s *refundService) notify(ctx context.Context, order Order, refunds []Refund) {
	if s.notifications == nil {
		return
	}
	customer, err := s.customers.FindByID(ctx, order.CustomerID)
	if err != nil {
		s.logger(ctx, "refund.notify_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		return
	}
	var (
		ids   []string
		total int64
	)
	speed := string(refunds[0].Speed)
	for _, r := range refunds {
		ids = append(ids, r.ID)
		total += r.Amount
		if string(r.Speed) != speed {
			speed = "mixed"
		}
	}
	if _, err := s.notifications.PublishRefundIssued(ctx, notifications.RefundIssuedJob{
		OrderID:       order.ID,
		CustomerID:    customer.ID,
		Email:         customer.Email,
		RefundIDs:     ids,
		Amount:        total,
		Currency:      order.Currency,
		AmountDisplay: notifications.FormatAmount(total, order.Currency, customer.Locale),
		Speed:         speed,
		QueuedAt:      s.now(),
	}); err != nil {
		s.logger(ctx, "refund.notify_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
	}
}

func (s *refundService) shipmentError(err error) error {
	if shipping.IsUnauthorized(err) {
		return fmt.Errorf("%w: %v", ErrRefundUnauthorized, err)
	}
	return fmt.Errorf("%w: %v", ErrRefundShipmentFailed, err)
}

func (s *refundService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrRefundNotFound
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrRefundUnavailable, err)
	}
	return err
}
