package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/notifications"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/shipping"
	"github.com/hanko-field/storefront/internal/storefront"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	case e.unavailable:
		return "unavailable"
	}
	return "repository error"
}

func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound = &stubRepoError{notFound: true}
	errStubConflict = &stubRepoError{conflict: true}
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func sequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// --- promotions ---------------------------------------------------------------

type memPromotions struct {
	items map[string]domain.Promotion
	err   error
}

func newMemPromotions(promos ...domain.Promotion) *memPromotions {
	m := &memPromotions{items: map[string]domain.Promotion{}}
	for _, p := range promos {
		m.items[p.ID] = p
	}
	return m
}

func (m *memPromotions) Insert(_ context.Context, p domain.Promotion) error {
	if _, ok := m.items[p.ID]; ok {
		return errStubConflict
	}
	m.items[p.ID] = p
	return nil
}

func (m *memPromotions) Update(_ context.Context, p domain.Promotion) error {
	m.items[p.ID] = p
	return nil
}

func (m *memPromotions) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return errStubNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memPromotions) FindByID(_ context.Context, id string) (domain.Promotion, error) {
	p, ok := m.items[id]
	if !ok {
		return domain.Promotion{}, errStubNotFound
	}
	return p, nil
}

func (m *memPromotions) List(_ context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	var out []domain.Promotion
	for _, p := range m.sorted() {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return domain.CursorPage[domain.Promotion]{Items: out}, nil
}

func (m *memPromotions) ListActive(context.Context) ([]domain.Promotion, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Promotion
	for _, p := range m.sorted() {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPromotions) sorted() []domain.Promotion {
	out := make([]domain.Promotion, 0, len(m.items))
	for _, p := range m.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// --- products -----------------------------------------------------------------

type memProducts struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

func newMemProducts(products ...domain.Product) *memProducts {
	m := &memProducts{items: map[string]domain.Product{}}
	for _, p := range products {
		m.items[p.ID] = p
	}
	return m
}

func (m *memProducts) Insert(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; ok {
		return errStubConflict
	}
	m.items[p.ID] = p
	return nil
}

func (m *memProducts) Update(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; !ok {
		return errStubNotFound
	}
	m.items[p.ID] = p
	return nil
}

func (m *memProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return domain.Product{}, errStubNotFound
	}
	return p, nil
}

func (m *memProducts) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.items {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.Product]{Items: out}, nil
}

func (m *memProducts) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Stock
}

// --- carts --------------------------------------------------------------------

type memCarts struct {
	items   map[string]domain.Cart
	deleted []string
}

func newMemCarts() *memCarts { return &memCarts{items: map[string]domain.Cart{}} }

func (m *memCarts) Get(_ context.Context, customerID string) (domain.Cart, error) {
	cart, ok := m.items[customerID]
	if !ok {
		return domain.Cart{CustomerID: customerID}, nil
	}
	cart.Items = slices.Clone(cart.Items)
	return cart, nil
}

func (m *memCarts) Save(_ context.Context, cart domain.Cart) error {
	cart.Items = slices.Clone(cart.Items)
	m.items[cart.CustomerID] = cart
	return nil
}

func (m *memCarts) Delete(_ context.Context, customerID string) error {
	delete(m.items, customerID)
	m.deleted = append(m.deleted, customerID)
	return nil
}

// --- customers & addresses ----------------------------------------------------

type memCustomers struct {
	items map[string]domain.Customer
}

func newMemCustomers(customers ...domain.Customer) *memCustomers {
	m := &memCustomers{items: map[string]domain.Customer{}}
	for _, c := range customers {
		m.items[c.ID] = c
	}
	return m
}

func (m *memCustomers) Insert(_ context.Context, c domain.Customer) error {
	for _, existing := range m.items {
		if existing.Email == c.Email {
			return errStubConflict
		}
	}
	m.items[c.ID] = c
	return nil
}

func (m *memCustomers) Update(_ context.Context, c domain.Customer) error {
	if _, ok := m.items[c.ID]; !ok {
		return errStubNotFound
	}
	m.items[c.ID] = c
	return nil
}

func (m *memCustomers) FindByID(_ context.Context, id string) (domain.Customer, error) {
	c, ok := m.items[id]
	if !ok {
		return domain.Customer{}, errStubNotFound
	}
	return c, nil
}

func (m *memCustomers) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	for _, c := range m.items {
		if c.Email == strings.ToLower(email) {
			return c, nil
		}
	}
	return domain.Customer{}, errStubNotFound
}

type memAddresses struct {
	items map[string]domain.Address
}

func newMemAddresses(addresses ...domain.Address) *memAddresses {
	m := &memAddresses{items: map[string]domain.Address{}}
	for _, a := range addresses {
		m.items[a.CustomerID+"/"+a.ID] = a
	}
	return m
}

func (m *memAddresses) List(_ context.Context, customerID string) ([]domain.Address, error) {
	var out []domain.Address
	for _, a := range m.items {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAddresses) FindByID(_ context.Context, customerID, addressID string) (domain.Address, error) {
	a, ok := m.items[customerID+"/"+addressID]
	if !ok {
		return domain.Address{}, errStubNotFound
	}
	return a, nil
}

func (m *memAddresses) Save(_ context.Context, a domain.Address) error {
	if a.IsDefault {
		for key, other := range m.items {
			if other.CustomerID == a.CustomerID && other.ID != a.ID {
				other.IsDefault = false
				m.items[key] = other
			}
		}
	}
	m.items[a.CustomerID+"/"+a.ID] = a
	return nil
}

func (m *memAddresses) Delete(_ context.Context, customerID, addressID string) error {
	key := customerID + "/" + addressID
	if _, ok := m.items[key]; !ok {
		return errStubNotFound
	}
	delete(m.items, key)
	return nil
}

// --- orders -------------------------------------------------------------------

type memOrders struct {
	mu       sync.Mutex
	items    map[string]domain.OrderSummary
	products *memProducts
	released []string
}

func newMemOrders(products *memProducts, orders ...domain.OrderSummary) *memOrders {
	m := &memOrders{items: map[string]domain.OrderSummary{}, products: products}
	for _, o := range orders {
		m.items[o.ID] = o
	}
	return m
}

func (m *memOrders) Place(_ context.Context, order domain.OrderSummary) error {
	m.products.mu.Lock()
	defer m.products.mu.Unlock()
	for _, line := range order.Lines {
		p, ok := m.products.items[line.ProductID]
		if !ok || !p.Active || p.Stock < line.Quantity {
			return errStubConflict
		}
	}
	for _, line := range order.Lines {
		p := m.products.items[line.ProductID]
		p.Stock -= line.Quantity
		m.products.items[line.ProductID] = p
	}
	m.mu.Lock()
	m.items[order.ID] = cloneOrder(order)
	m.mu.Unlock()
	return nil
}

func (m *memOrders) ReleaseStock(_ context.Context, order domain.OrderSummary) error {
	m.products.mu.Lock()
	for _, line := range order.Lines {
		if p, ok := m.products.items[line.ProductID]; ok {
			p.Stock += line.Quantity
			m.products.items[line.ProductID] = p
		}
	}
	m.products.mu.Unlock()
	m.mu.Lock()
	m.released = append(m.released, order.ID)
	m.mu.Unlock()
	return nil
}

func (m *memOrders) Mutate(_ context.Context, orderID string, fn func(*domain.OrderSummary) error) (domain.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.items[orderID]
	if !ok {
		return domain.OrderSummary{}, errStubNotFound
	}
	order = cloneOrder(order)
	if err := fn(&order); err != nil {
		return domain.OrderSummary{}, err
	}
	m.items[orderID] = cloneOrder(order)
	return order, nil
}

func (m *memOrders) FindByID(_ context.Context, orderID string) (domain.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.items[orderID]
	if !ok {
		return domain.OrderSummary{}, errStubNotFound
	}
	return cloneOrder(order), nil
}

func (m *memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.OrderSummary], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderSummary
	for _, o := range m.items {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.OrderSummary]{Items: out}, nil
}

func (m *memOrders) get(id string) domain.OrderSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.items[id])
}

func cloneOrder(o domain.OrderSummary) domain.OrderSummary {
	o.Lines = slices.Clone(o.Lines)
	return o
}

// --- checkouts ----------------------------------------------------------------

type memCheckouts struct {
	mu    sync.Mutex
	items map[string]domain.CheckoutSession
}

func newMemCheckouts(sessions ...domain.CheckoutSession) *memCheckouts {
	m := &memCheckouts{items: map[string]domain.CheckoutSession{}}
	for _, s := range sessions {
		m.items[s.OrderID] = s
	}
	return m
}

func (m *memCheckouts) Create(_ context.Context, s domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.OrderID]; ok {
		return errStubConflict
	}
	m.items[s.OrderID] = s
	return nil
}

func (m *memCheckouts) FindByOrderID(_ context.Context, orderID string) (domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[orderID]
	if !ok {
		return domain.CheckoutSession{}, errStubNotFound
	}
	return s, nil
}

func (m *memCheckouts) FindByGatewaySession(_ context.Context, id string) (domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.GatewaySessionID == id {
			return s, nil
		}
	}
	return domain.CheckoutSession{}, errStubNotFound
}

func (m *memCheckouts) Mutate(_ context.Context, orderID string, fn func(*domain.CheckoutSession) error) (domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[orderID]
	if !ok {
		return domain.CheckoutSession{}, errStubNotFound
	}
	if err := fn(&s); err != nil {
		return domain.CheckoutSession{}, err
	}
	m.items[orderID] = s
	return s, nil
}

func (m *memCheckouts) ListStale(_ context.Context, status domain.CheckoutStatus, before time.Time, limit int) ([]domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CheckoutSession
	for _, s := range m.items {
		if s.Status == status && s.UpdatedAt.Before(before) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memCheckouts) get(orderID string) domain.CheckoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[orderID]
}

// --- refunds ------------------------------------------------------------------

type memRefunds struct {
	mu    sync.Mutex
	items map[string]domain.Refund
}

func newMemRefunds() *memRefunds { return &memRefunds{items: map[string]domain.Refund{}} }

func (m *memRefunds) Insert(_ context.Context, r domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[r.ID] = r
	return nil
}

func (m *memRefunds) Update(_ context.Context, r domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[r.ID] = r
	return nil
}

func (m *memRefunds) ListByOrder(_ context.Context, orderID string) ([]domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Refund
	for _, r := range m.items {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineID < out[j].LineID })
	return out, nil
}

// --- integrations -------------------------------------------------------------

type stubGateway struct {
	mu          sync.Mutex
	session     payments.CheckoutSession
	sessionErr  error
	details     payments.PaymentDetails
	lookupErr   error
	refundErr   map[string]error
	sessionReqs []payments.CheckoutSessionRequest
	refundReqs  []payments.RefundRequest
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, _ payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionReqs = append(g.sessionReqs, req)
	if g.sessionErr != nil {
		return payments.CheckoutSession{}, g.sessionErr
	}
	return g.session, nil
}

func (g *stubGateway) LookupPayment(context.Context, payments.PaymentContext, payments.LookupRequest) (payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.details, g.lookupErr
}

func (g *stubGateway) Refund(_ context.Context, _ payments.PaymentContext, req payments.RefundRequest) (payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundReqs = append(g.refundReqs, req)
	if err := g.refundErr[req.Metadata["line_id"]]; err != nil {
		return payments.RefundResult{}, err
	}
	return payments.RefundResult{ID: "re_" + req.Metadata["line_id"], Status: payments.StatusSucceeded, Amount: req.Amount}, nil
}

type stubCarrier struct {
	mu        sync.Mutex
	createErr error
	cancelErr error
	created   []shipping.ShipmentRequest
	cancelled []string
}

func (c *stubCarrier) CreateShipment(_ context.Context, req shipping.ShipmentRequest) (domain.Shipment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, req)
	if c.createErr != nil {
		return domain.Shipment{}, c.createErr
	}
	return domain.Shipment{
		ID:      "shp_" + itoa(len(c.created)),
		OrderID: req.OrderID,
		LineIDs: req.LineIDs,
		Kind:    req.Kind,
		Status:  "created",
	}, nil
}

func (c *stubCarrier) CancelShipment(_ context.Context, id, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, id)
	return c.cancelErr
}

type stubPublisher struct {
	mu            sync.Mutex
	confirmations []notifications.OrderConfirmationJob
	refunds       []notifications.RefundIssuedJob
	err           error
}

func (p *stubPublisher) PublishOrderConfirmation(_ context.Context, job notifications.OrderConfirmationJob) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmations = append(p.confirmations, job)
	return "msg-1", p.err
}

func (p *stubPublisher) PublishRefundIssued(_ context.Context, job notifications.RefundIssuedJob) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, job)
	return "msg-2", p.err
}

func testTemplates() TemplateCatalog {
	catalog, err := storefront.Parse([]byte(`
templates:
  - id: classic
    name: Classic
    currency: INR
    features: {codEnabled: true, autoShipment: true, confirmationEmail: true}
  - id: express
    name: Express
    currency: INR
    features: {codEnabled: false, autoShipment: false, confirmationEmail: true}
`), "classic")
	if err != nil {
		panic(err)
	}
	return catalog
}
