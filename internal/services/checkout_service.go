package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/notifications"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/shipping"
	"github.com/hanko-field/storefront/internal/storefront"
)

const (
	checkoutMeterName          = "github.com/hanko-field/storefront/internal/services/checkout"
	defaultCheckoutPendingTTL  = 30 * time.Minute
	defaultExpireBatchSize     = 100
	checkoutReasonExpired      = "payment window expired"
	checkoutReasonDeclined     = "payment declined"
	checkoutReasonGateway      = "payment session could not be created"
	checkoutReasonShipment     = "shipment could not be created"
	checkoutReasonNotification = "confirmation could not be queued"
	checkoutReasonCart         = "cart could not be cleared"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartEmpty indicates there is nothing to order.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutInsufficientStock indicates stock could not be reserved for the cart items.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutPaymentTypeUnsupported indicates the storefront template does not offer the payment type.
	ErrCheckoutPaymentTypeUnsupported = errors.New("checkout: payment type not offered")
	// ErrCheckoutNotFound indicates no checkout exists for the order, or it belongs to someone else.
	ErrCheckoutNotFound = errors.New("checkout: not found")
	// ErrCheckoutConflict indicates the checkout is not in a state that allows the operation.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutPaymentFailed indicates the gateway refused or failed the payment.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutUnauthorized indicates a downstream service rejected our credentials for the
	// customer, which the HTTP layer turns into a forced logout.
	ErrCheckoutUnauthorized = errors.New("checkout: unauthorized")
	// ErrCheckoutFinalizeFailed indicates a step after order confirmation failed.
	ErrCheckoutFinalizeFailed = errors.New("checkout: finalize failed")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Cart          CartService
	Customers     repositories.CustomerRepository
	Addresses     repositories.AddressRepository
	Orders        repositories.OrderRepository
	Checkouts     repositories.CheckoutRepository
	Payments      PaymentGateway
	Shipping      ShippingCarrier
	Notifications NotificationPublisher
	Templates     TemplateCatalog
	PendingTTL    time.Duration
	Clock         func() time.Time
	IDGen         func() string
	Logger        EventLogger
	Meter         metric.Meter
}

type checkoutService struct {
	cart          CartService
	customers     repositories.CustomerRepository
	addresses     repositories.AddressRepository
	orders        repositories.OrderRepository
	checkouts     repositories.CheckoutRepository
	payments      PaymentGateway
	shipping      ShippingCarrier
	notifications NotificationPublisher
	templates     TemplateCatalog
	pendingTTL    time.Duration
	now           func() time.Time
	newID         func() string
	logger        EventLogger
	transitions   metric.Int64Counter
}

// NewCheckoutService constructs a CheckoutService validating required dependencies. Shipping and
// Notifications are optional; templates that ask for them are served without when absent.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Cart == nil:
		return nil, errors.New("checkout service: cart service is required")
	case deps.Customers == nil || deps.Addresses == nil:
		return nil, errors.New("checkout service: customer and address repositories are required")
	case deps.Orders == nil || deps.Checkouts == nil:
		return nil, errors.New("checkout service: order and checkout repositories are required")
	case deps.Payments == nil:
		return nil, errors.New("checkout service: payment gateway is required")
	case deps.Templates == nil:
		return nil, errors.New("checkout service: template catalog is required")
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
	ttl := deps.PendingTTL
	if ttl <= 0 {
		ttl = defaultCheckoutPendingTTL
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(checkoutMeterName)
	}
	counter, err := meter.Int64Counter("checkout.transitions",
		metric.WithDescription("Checkout state transitions by target status and payment type"))
	if err != nil {
		return nil, fmt.Errorf("checkout service: create counter: %w", err)
	}

	return &checkoutService{
		cart:          deps.Cart,
		customers:     deps.Customers,
		addresses:     deps.Addresses,
		orders:        deps.Orders,
		checkouts:     deps.Checkouts,
		payments:      deps.Payments,
		shipping:      deps.Shipping,
		notifications: deps.Notifications,
		templates:     deps.Templates,
		pendingTTL:    ttl,
		now:           func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
		transitions:   counter,
	}, nil
}

// Start places the order and either hands the customer to the payment gateway (PREPAID) or
// completes the checkout straight away (CASH_ON_DELIVERY).
func (s *checkoutService) Start(ctx context.Context, cmd StartCheckoutCommand) (CheckoutResult, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if customerID == "" || addressID == "" || !cmd.PaymentType.Valid() {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}
	template, err := s.templates.Get(cmd.TemplateID)
	if err != nil {
		if errors.Is(err, storefront.ErrTemplateNotFound) {
			return CheckoutResult{}, fmt.Errorf("%w: unknown template", ErrCheckoutInvalidInput)
		}
		return CheckoutResult{}, err
	}
	if cmd.PaymentType == domain.PaymentTypeCashOnDelivery && !template.Features.CODEnabled {
		return CheckoutResult{}, ErrCheckoutPaymentTypeUnsupported
	}
	successURL := strings.TrimSpace(cmd.SuccessURL)
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if cmd.PaymentType == domain.PaymentTypePrepaid && (successURL == "" || cancelURL == "") {
		return CheckoutResult{}, fmt.Errorf("%w: success and cancel urls are required", ErrCheckoutInvalidInput)
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}
	address, err := s.addresses.FindByID(ctx, customerID, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, fmt.Errorf("%w: unknown address", ErrCheckoutInvalidInput)
		}
		return CheckoutResult{}, s.translateRepoError(err)
	}
	cart, err := s.cart.GetCart(ctx, customerID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrCheckoutCartEmpty
	}

	order, err := s.preprocessOrder(ctx, customer, address, cart, template, cmd.PaymentType)
	if err != nil {
		return CheckoutResult{}, err
	}

	session := CheckoutSession{
		OrderID:     order.ID,
		CustomerID:  customerID,
		TemplateID:  template.ID,
		Status:      domain.CheckoutStatusNotStarted,
		PaymentType: cmd.PaymentType,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.CreatedAt,
	}
	if err := s.checkouts.Create(ctx, session); err != nil {
		s.abandonOrder(ctx, order, "checkout could not be recorded")
		return CheckoutResult{}, s.translateRepoError(err)
	}
	s.logger(ctx, "checkout.started", map[string]any{
		"orderID":     order.ID,
		"customerID":  customerID,
		"paymentType": string(cmd.PaymentType),
		"templateID":  template.ID,
	})

	if cmd.PaymentType == domain.PaymentTypeCashOnDelivery {
		return s.finalize(ctx, session, template)
	}
	return s.startPayment(ctx, session, order, customer, successURL, cancelURL, cmd.IdempotencyKey)
}

// preprocessOrder snapshots the cart and address into an order and reserves stock for it.
func (s *checkoutService) preprocessOrder(ctx context.Context, customer Customer, address Address, cart Cart, template storefront.Template, paymentType domain.PaymentType) (Order, error) {
	now := s.now()
	lines := make([]OrderLine, 0, len(cart.Items))
	for i, item := range cart.Items {
		lines = append(lines, OrderLine{
			LineID:          fmt.Sprintf("L%02d", i+1),
			ProductID:       item.ProductID,
			SKU:             item.SKU,
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountedPrice: item.DiscountedPrice,
			Status:          domain.OrderStatusPlaced,
		})
	}
	currency := cart.Currency
	if currency == "" {
		currency = template.Currency
	}
	order := Order{
		ID:             s.newID(),
		CustomerID:     customer.ID,
		TemplateID:     template.ID,
		Status:         domain.OrderStatusPlaced,
		PaymentType:    paymentType,
		AddressID:      address.ID,
		Address:        address,
		Lines:          lines,
		Currency:       currency,
		Totals:         domain.OrderTotals{Subtotal: cart.Subtotal, Discount: cart.Discount, Total: cart.Total},
		CheckoutStatus: domain.CheckoutStatusNotStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
		PlacedAt:       &now,
	}
	if err := s.orders.Place(ctx, order); err != nil {
		if isRepoConflict(err) {
			return Order{}, ErrCheckoutInsufficientStock
		}
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *checkoutService) startPayment(ctx context.Context, session CheckoutSession, order Order, customer Customer, successURL, cancelURL, idempotencyKey string) (CheckoutResult, error) {
	items := make([]payments.CheckoutLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			SKU:      line.SKU,
			Quantity: int64(line.Quantity),
			Amount:   line.DiscountedPrice,
			Currency: order.Currency,
		})
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = "checkout:" + order.ID
	}
	gateway, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: order.Currency}, payments.CheckoutSessionRequest{
		OrderID:       order.ID,
		Amount:        order.Totals.Total,
		Currency:      order.Currency,
		CustomerEmail: customer.Email,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Locale:        customer.Locale,
		Metadata:       gatewayMetadata(session),
		IdempotencyKey: idempotencyKey,
		Items:          items,
		ExpiresAt:      s.now().Add(s.pendingTTL),
	})
	if err != nil {
		s.logger(ctx, "checkout.gateway_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		s.fail(ctx, session.OrderID, checkoutReasonGateway, true)
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	updated, err := s.transition(ctx, session.OrderID, domain.CheckoutStatusPending, func(cs *CheckoutSession) {
		cs.GatewayProvider = gateway.Provider
		cs.GatewaySessionID = gateway.ID
		cs.PaymentIntentID = gateway.IntentID
		cs.RedirectURL = gateway.RedirectURL
		cs.ClientSecret = gateway.ClientSecret
	})
	if err != nil {
		s.fail(ctx, session.OrderID, "checkout could not be updated", true)
		return CheckoutResult{}, err
	}
	placed, err := s.orders.Mutate(ctx, order.ID, func(o *Order) error {
		o.PaymentIntentID = gateway.IntentID
		o.CheckoutStatus = domain.CheckoutStatusPending
		o.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		placed = order
	}
	return CheckoutResult{
		Session:      updated,
		Order:        placed,
		RedirectURL:  updated.RedirectURL,
		ClientSecret: updated.ClientSecret,
	}, nil
}

// VerifyPayment asks the gateway for the payment outcome and advances the checkout accordingly.
// Terminal checkouts are returned unchanged.
func (s *checkoutService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (CheckoutResult, error) {
	session, err := s.ownedSession(ctx, cmd.CustomerID, cmd.OrderID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if session.Status != domain.CheckoutStatusPending {
		return s.result(ctx, session)
	}

	order, err := s.orders.FindByID(ctx, session.OrderID)
	if err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}
	details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{Provider: session.GatewayProvider, Currency: order.Currency}, payments.LookupRequest{
		IntentID:  session.PaymentIntentID,
		SessionID: session.GatewaySessionID,
	})
	if err != nil {
		s.logger(ctx, "checkout.lookup_failed", map[string]any{"orderID": session.OrderID, "error": err.Error()})
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return s.applyPaymentStatus(ctx, session, details.Status, details.IntentID)
}

func (s *checkoutService) applyPaymentStatus(ctx context.Context, session CheckoutSession, status payments.Status, intentID string) (CheckoutResult, error) {
	switch status {
	case payments.StatusSucceeded:
		if intentID != "" && session.PaymentIntentID == "" {
			session.PaymentIntentID = intentID
			if _, err := s.checkouts.Mutate(ctx, session.OrderID, func(cs *CheckoutSession) error {
				cs.PaymentIntentID = intentID
				return nil
			}); err != nil {
				return CheckoutResult{}, s.translateRepoError(err)
			}
		}
		template, err := s.templates.Get(session.TemplateID)
		if errors.Is(err, storefront.ErrTemplateNotFound) {
			s.logger(ctx, "checkout.template_missing", map[string]any{"orderID": session.OrderID, "templateID": session.TemplateID})
			template, err = s.templates.Get("")
		}
		if err != nil {
			return CheckoutResult{}, err
		}
		return s.finalize(ctx, session, template)
	case payments.StatusFailed:
		failed := s.fail(ctx, session.OrderID, checkoutReasonDeclined, true)
		result, err := s.result(ctx, failed)
		if err != nil {
			return CheckoutResult{}, err
		}
		return result, ErrCheckoutPaymentFailed
	default:
		return s.result(ctx, session)
	}
}

// HandlePaymentEvent applies a verified gateway webhook.
func (s *checkoutService) HandlePaymentEvent(ctx context.Context, event payments.WebhookEvent) error {
	if event.Kind == payments.WebhookIgnored {
		return nil
	}
	var (
		session CheckoutSession
		err     error
	)
	switch {
	case event.OrderID != "":
		session, err = s.checkouts.FindByOrderID(ctx, event.OrderID)
	case event.SessionID != "":
		session, err = s.checkouts.FindByGatewaySession(ctx, event.SessionID)
	default:
		s.logger(ctx, "checkout.webhook_unmatched", map[string]any{"eventID": event.ID, "type": event.Type})
		return nil
	}
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "checkout.webhook_unknown_order", map[string]any{"eventID": event.ID, "orderID": event.OrderID})
			return nil
		}
		return s.translateRepoError(err)
	}
	if session.Status.Terminal() {
		return nil
	}

	status := payments.StatusFailed
	if event.Kind == payments.WebhookPaymentSucceeded {
		status = payments.StatusSucceeded
	}
	s.logger(ctx, "checkout.webhook_applied", map[string]any{"eventID": event.ID, "orderID": session.OrderID, "kind": string(event.Kind)})
	_, err = s.applyPaymentStatus(ctx, session, status, event.IntentID)
	if errors.Is(err, ErrCheckoutPaymentFailed) {
		return nil
	}
	return err
}

func (s *checkoutService) Status(ctx context.Context, customerID, orderID string) (CheckoutResult, error) {
	session, err := s.ownedSession(ctx, customerID, orderID)
	if err != nil {
		return CheckoutResult{}, err
	}
	return s.result(ctx, session)
}

// ExpireStale settles PENDING checkouts older than the pending TTL. A payment that succeeded but
// whose webhook never arrived is finalized; everything else fails and releases its stock.
func (s *checkoutService) ExpireStale(ctx context.Context, limit int) (ExpireResult, error) {
	if limit <= 0 {
		limit = defaultExpireBatchSize
	}
	stale, err := s.checkouts.ListStale(ctx, domain.CheckoutStatusPending, s.now().Add(-s.pendingTTL), limit)
	if err != nil {
		return ExpireResult{}, s.translateRepoError(err)
	}
	result := ExpireResult{Examined: len(stale)}
	for _, session := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{Provider: session.GatewayProvider}, payments.LookupRequest{
			IntentID:  session.PaymentIntentID,
			SessionID: session.GatewaySessionID,
		})
		if err == nil && details.Status == payments.StatusSucceeded {
			if _, err := s.applyPaymentStatus(ctx, session, payments.StatusSucceeded, details.IntentID); err != nil {
				result.Failed = append(result.Failed, session.OrderID)
			}
			continue
		}
		switch failed := s.fail(ctx, session.OrderID, checkoutReasonExpired, true); failed.Status {
		case domain.CheckoutStatusFailed:
			result.Expired++
		case domain.CheckoutStatusCompleted:
		default:
			result.Failed = append(result.Failed, session.OrderID)
		}
	}
	s.logger(ctx, "checkout.expire_sweep", map[string]any{"examined": result.Examined, "expired": result.Expired, "failed": len(result.Failed)})
	return result, nil
}

// finalize confirms the order and runs the post-payment steps. The Placed -> Confirmed order
// transition is the claim: a concurrent finalizer that loses it returns the current state.
func (s *checkoutService) finalize(ctx context.Context, session CheckoutSession, template storefront.Template) (CheckoutResult, error) {
	claimed := false
	order, err := s.orders.Mutate(ctx, session.OrderID, func(o *Order) error {
		if o.Status != domain.OrderStatusPlaced {
			return nil
		}
		claimed = true
		now := s.now()
		o.Status = domain.OrderStatusConfirmed
		for i := range o.Lines {
			o.Lines[i].Status = domain.OrderStatusConfirmed
		}
		o.PaymentIntentID = session.PaymentIntentID
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.fail(ctx, session.OrderID, "order could not be confirmed", session.PaymentType == domain.PaymentTypeCashOnDelivery)
		return CheckoutResult{}, s.translateRepoError(err)
	}
	if !claimed {
		current, err := s.checkouts.FindByOrderID(ctx, session.OrderID)
		if err != nil {
			return CheckoutResult{}, s.translateRepoError(err)
		}
		return s.result(ctx, current)
	}

	if template.Features.AutoShipment && s.shipping != nil {
		shipment, err := s.createForwardShipment(ctx, order)
		if err != nil {
			s.failAfterConfirm(ctx, session, order, checkoutReasonShipment, err)
			if shipping.IsUnauthorized(err) {
				return CheckoutResult{}, ErrCheckoutUnauthorized
			}
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutFinalizeFailed, err)
		}
		order, err = s.orders.Mutate(ctx, order.ID, func(o *Order) error {
			o.ShipmentID = shipment.ID
			for i := range o.Lines {
				o.Lines[i].ShipmentID = shipment.ID
			}
			o.UpdatedAt = s.now()
			return nil
		})
		if err != nil {
			s.logger(ctx, "checkout.shipment_link_failed", map[string]any{"orderID": session.OrderID, "shipmentID": shipment.ID, "error": err.Error()})
		}
	}

	if template.Features.ConfirmationEmail && s.notifications != nil {
		if err := s.queueConfirmation(ctx, order); err != nil {
			s.failAfterConfirm(ctx, session, order, checkoutReasonNotification, err)
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutFinalizeFailed, err)
		}
	}

	if err := s.cart.ClearCart(ctx, session.CustomerID); err != nil {
		s.failAfterConfirm(ctx, session, order, checkoutReasonCart, err)
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutFinalizeFailed, err)
	}

	completed, err := s.transition(ctx, session.OrderID, domain.CheckoutStatusCompleted, nil)
	if err != nil {
		return CheckoutResult{}, err
	}
	if _, err := s.orders.Mutate(ctx, session.OrderID, func(o *Order) error {
		o.CheckoutStatus = domain.CheckoutStatusCompleted
		o.UpdatedAt = s.now()
		return nil
	}); err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{"orderID": session.OrderID, "error": err.Error()})
	}
	s.logger(ctx, "checkout.completed", map[string]any{"orderID": session.OrderID, "paymentType": string(session.PaymentType)})
	return s.result(ctx, completed)
}

func (s *checkoutService) createForwardShipment(ctx context.Context, order Order) (Shipment, error) {
	items := make([]shipping.Item, 0, len(order.Lines))
	lineIDs := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, shipping.Item{SKU: line.SKU, Name: line.Name, Quantity: line.Quantity, Value: line.Total()})
		lineIDs = append(lineIDs, line.LineID)
	}
	req := shipping.ShipmentRequest{
		OrderID:        order.ID,
		LineIDs:        lineIDs,
		Kind:           domain.ShipmentKindForward,
		Address:        order.Address,
		Items:          items,
		Currency:       order.Currency,
		IdempotencyKey: "shipment:" + order.ID,
	}
	if order.PaymentType == domain.PaymentTypeCashOnDelivery {
		req.CODAmount = order.Totals.Total
	}
	return s.shipping.CreateShipment(ctx, req)
}

func (s *checkoutService) queueConfirmation(ctx context.Context, order Order) error {
	customer, err := s.customers.FindByID(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	_, err = s.notifications.PublishOrderConfirmation(ctx, notifications.NewOrderConfirmationJob(order, customer, s.now()))
	return err
}

// failAfterConfirm fails a checkout whose order was already confirmed. Prepaid orders keep their
// stock and Confirmed status so the captured payment can be settled by staff; COD orders are
// cancelled and release their stock.
func (s *checkoutService) failAfterConfirm(ctx context.Context, session CheckoutSession, order Order, reason string, cause error) {
	s.logger(ctx, "checkout.finalize_failed", map[string]any{
		"orderID":     order.ID,
		"reason":      reason,
		"paymentType": string(order.PaymentType),
		"error":       cause.Error(),
	})
	cod := session.PaymentType == domain.PaymentTypeCashOnDelivery
	s.fail(ctx, session.OrderID, reason, false)
	if !cod {
		return
	}
	if _, err := s.orders.Mutate(ctx, order.ID, func(o *Order) error {
		if !o.Status.CanTransition(domain.OrderStatusCancelled) {
			return nil
		}
		o.Status = domain.OrderStatusCancelled
		for i := range o.Lines {
			o.Lines[i].Status = domain.OrderStatusCancelled
		}
		o.UpdatedAt = s.now()
		return nil
	}); err != nil {
		s.logger(ctx, "checkout.cancel_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		return
	}
	if err := s.orders.ReleaseStock(ctx, order); err != nil {
		s.logger(ctx, "checkout.release_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
	}
}

// fail moves the checkout to FAILED. With release set the order is marked Failed and its stock
// returned. The returned session reflects the stored state, which is unchanged when the checkout
// was already terminal.
func (s *checkoutService) fail(ctx context.Context, orderID, reason string, release bool) CheckoutSession {
	session, err := s.transition(ctx, orderID, domain.CheckoutStatusFailed, func(cs *CheckoutSession) {
		cs.FailureReason = reason
	})
	if err != nil {
		s.logger(ctx, "checkout.fail_transition_failed", map[string]any{"orderID": orderID, "reason": reason, "error": err.Error()})
		current, findErr := s.checkouts.FindByOrderID(ctx, orderID)
		if findErr != nil {
			return CheckoutSession{OrderID: orderID}
		}
		return current
	}

	order, err := s.orders.Mutate(ctx, orderID, func(o *Order) error {
		o.CheckoutStatus = domain.CheckoutStatusFailed
		if release && o.Status.CanTransition(domain.OrderStatusFailed) {
			o.Status = domain.OrderStatusFailed
			for i := range o.Lines {
				o.Lines[i].Status = domain.OrderStatusFailed
			}
		}
		o.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{"orderID": orderID, "error": err.Error()})
		return session
	}
	if release && order.Status == domain.OrderStatusFailed {
		if err := s.orders.ReleaseStock(ctx, order); err != nil {
			s.logger(ctx, "checkout.release_failed", map[string]any{"orderID": orderID, "error": err.Error()})
		}
	}
	s.logger(ctx, "checkout.failed", map[string]any{"orderID": orderID, "reason": reason})
	return session
}

func (s *checkoutService) abandonOrder(ctx context.Context, order Order, reason string) {
	if _, err := s.orders.Mutate(ctx, order.ID, func(o *Order) error {
		o.Status = domain.OrderStatusFailed
		o.CheckoutStatus = domain.CheckoutStatusFailed
		o.UpdatedAt = s.now()
		return nil
	}); err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
	}
	if err := s.orders.ReleaseStock(ctx, order); err != nil {
		s.logger(ctx, "checkout.release_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
	}
	s.logger(ctx, "checkout.abandoned", map[string]any{"orderID": order.ID, "reason": reason})
}

// transition applies the checkout state table inside a transaction.
func (s *checkoutService) transition(ctx context.Context, orderID string, next domain.CheckoutStatus, mutate func(*CheckoutSession)) (CheckoutSession, error) {
	var paymentType domain.PaymentType
	session, err := s.checkouts.Mutate(ctx, orderID, func(cs *CheckoutSession) error {
		if !cs.Status.CanTransition(next) {
			return fmt.Errorf("%w: cannot move from %s to %s", ErrCheckoutConflict, cs.Status, next)
		}
		cs.Status = next
		cs.UpdatedAt = s.now()
		if mutate != nil {
			mutate(cs)
		}
		paymentType = cs.PaymentType
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCheckoutConflict) {
			return CheckoutSession{}, err
		}
		return CheckoutSession{}, s.translateRepoError(err)
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(next)),
		attribute.String("payment_type", string(paymentType)),
	))
	return session, nil
}

func (s *checkoutService) ownedSession(ctx context.Context, customerID, orderID string) (CheckoutSession, error) {
	customerID = strings.TrimSpace(customerID)
	orderID = strings.TrimSpace(orderID)
	if customerID == "" || orderID == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}
	session, err := s.checkouts.FindByOrderID(ctx, orderID)
	if err != nil {
		return CheckoutSession{}, s.translateRepoError(err)
	}
	if session.CustomerID != customerID {
		return CheckoutSession{}, ErrCheckoutNotFound
	}
	return session, nil
}

func (s *checkoutService) result(ctx context.Context, session CheckoutSession) (CheckoutResult, error) {
	order, err := s.orders.FindByID(ctx, session.OrderID)
	if err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}
	result := CheckoutResult{Session: session, Order: order}
	if session.Status == domain.CheckoutStatusPending {
		result.RedirectURL = session.RedirectURL
		result.ClientSecret = session.ClientSecret
	}
	return result, nil
}

func (s *checkoutService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrCheckoutNotFound
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return err
}

// gatewayMetadata is attached to the gateway session so webhook payloads can be
// traced back to a customer without an order lookup. Blank values are omitted.
func gatewayMetadata(session CheckoutSession) map[string]string {
	meta := map[string]string{}
	for key, value := range map[string]string{
		"order_id":    session.OrderID,
		"customer_id": session.CustomerID,
		"template_id": session.TemplateID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			meta[key] = value
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
