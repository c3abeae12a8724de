package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

// asCustomer attaches a customer principal the way SessionManager.RequireCustomer does.
func asCustomer(req *http.Request, customerID string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{Subject: customerID, Kind: auth.PrincipalCustomer}))
}

func asAdmin(req *http.Request, subject string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{Subject: subject, Kind: auth.PrincipalAdmin, Roles: []string{auth.RoleAdmin}}))
}

func newJSONRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(t *testing.T, routes RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	routes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

type stubCustomerService struct {
	registerFn      func(context.Context, services.RegisterCommand) (services.AuthResult, error)
	loginFn         func(context.Context, services.LoginCommand) (services.AuthResult, error)
	getProfileFn    func(context.Context, string) (services.Customer, error)
	updateProfileFn func(context.Context, services.UpdateProfileCommand) (services.Customer, error)
	listAddressesFn func(context.Context, string) ([]services.Address, error)
	upsertAddressFn func(context.Context, services.UpsertAddressCommand) (services.Address, error)
	deleteAddressFn func(context.Context, string, string) error
}

func (s *stubCustomerService) Register(ctx context.Context, cmd services.RegisterCommand) (services.AuthResult, error) {
	return s.registerFn(ctx, cmd)
}

func (s *stubCustomerService) Login(ctx context.Context, cmd services.LoginCommand) (services.AuthResult, error) {
	return s.loginFn(ctx, cmd)
}

func (s *stubCustomerService) GetProfile(ctx context.Context, id string) (services.Customer, error) {
	return s.getProfileFn(ctx, id)
}

func (s *stubCustomerService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (services.Customer, error) {
	return s.updateProfileFn(ctx, cmd)
}

func (s *stubCustomerService) ListAddresses(ctx context.Context, id string) ([]services.Address, error) {
	return s.listAddressesFn(ctx, id)
}

func (s *stubCustomerService) UpsertAddress(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
	return s.upsertAddressFn(ctx, cmd)
}

func (s *stubCustomerService) DeleteAddress(ctx context.Context, customerID, addressID string) error {
	return s.deleteAddressFn(ctx, customerID, addressID)
}

type stubCartService struct {
	getFn    func(context.Context, string) (services.Cart, error)
	addFn    func(context.Context, services.CartItemCommand) (services.Cart, error)
	setFn    func(context.Context, services.CartItemCommand) (services.Cart, error)
	removeFn func(context.Context, string, string) (services.Cart, error)
	clearFn  func(context.Context, string) error
}

func (s *stubCartService) GetCart(ctx context.Context, id string) (services.Cart, error) {
	return s.getFn(ctx, id)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error) {
	return s.addFn(ctx, cmd)
}

func (s *stubCartService) SetQuantity(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error) {
	return s.setFn(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, customerID, productID string) (services.Cart, error) {
	return s.removeFn(ctx, customerID, productID)
}

func (s *stubCartService) ClearCart(ctx context.Context, id string) error {
	return s.clearFn(ctx, id)
}

type stubCheckoutService struct {
	startFn  func(context.Context, services.StartCheckoutCommand) (services.CheckoutResult, error)
	verifyFn func(context.Context, services.VerifyPaymentCommand) (services.CheckoutResult, error)
	eventFn  func(context.Context, payments.WebhookEvent) error
	statusFn func(context.Context, string, string) (services.CheckoutResult, error)
	expireFn func(context.Context, int) (services.ExpireResult, error)
}

func (s *stubCheckoutService) Start(ctx context.Context, cmd services.StartCheckoutCommand) (services.CheckoutResult, error) {
	return s.startFn(ctx, cmd)
}

func (s *stubCheckoutService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.CheckoutResult, error) {
	return s.verifyFn(ctx, cmd)
}

func (s *stubCheckoutService) HandlePaymentEvent(ctx context.Context, event payments.WebhookEvent) error {
	return s.eventFn(ctx, event)
}

func (s *stubCheckoutService) Status(ctx context.Context, customerID, orderID string) (services.CheckoutResult, error) {
	return s.statusFn(ctx, customerID, orderID)
}

func (s *stubCheckoutService) ExpireStale(ctx context.Context, limit int) (services.ExpireResult, error) {
	return s.expireFn(ctx, limit)
}

type stubOrderService struct {
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFn    func(context.Context, string, string) (services.Order, error)
	adminFn  func(context.Context, string) (services.Order, error)
	updateFn func(context.Context, services.OrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[services.Order], error) {
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) GetOrder(ctx context.Context, customerID, orderID string) (services.Order, error) {
	return s.getFn(ctx, customerID, orderID)
}

func (s *stubOrderService) AdminGetOrder(ctx context.Context, orderID string) (services.Order, error) {
	return s.adminFn(ctx, orderID)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	return s.updateFn(ctx, cmd)
}

type stubRefundService struct {
	requestFn func(context.Context, services.RefundCommand) (services.RefundResult, error)
	adminFn   func(context.Context, services.RefundCommand) (services.RefundResult, error)
}

func (s *stubRefundService) RequestRefund(ctx context.Context, cmd services.RefundCommand) (services.RefundResult, error) {
	return s.requestFn(ctx, cmd)
}

func (s *stubRefundService) AdminRefund(ctx context.Context, cmd services.RefundCommand) (services.RefundResult, error) {
	return s.adminFn(ctx, cmd)
}

type stubProductService struct {
	listFn        func(context.Context, services.Pagination) (domain.CursorPage[services.ProductQuote], error)
	getFn         func(context.Context, string) (services.ProductQuote, error)
	adminListFn   func(context.Context, services.Pagination) (domain.CursorPage[services.Product], error)
	adminGetFn    func(context.Context, string) (services.Product, error)
	createFn      func(context.Context, services.UpsertProductCommand) (services.Product, error)
	updateFn      func(context.Context, services.UpsertProductCommand) (services.Product, error)
	deleteFn      func(context.Context, string) error
	imageUploadFn func(context.Context, string, string) (storage.SignedURL, error)
}

func (s *stubProductService) ListProducts(ctx context.Context, page services.Pagination) (domain.CursorPage[services.ProductQuote], error) {
	return s.listFn(ctx, page)
}

func (s *stubProductService) GetProduct(ctx context.Context, id string) (services.ProductQuote, error) {
	return s.getFn(ctx, id)
}

func (s *stubProductService) AdminListProducts(ctx context.Context, page services.Pagination) (domain.CursorPage[services.Product], error) {
	return s.adminListFn(ctx, page)
}

func (s *stubProductService) AdminGetProduct(ctx context.Context, id string) (services.Product, error) {
	return s.adminGetFn(ctx, id)
}

func (s *stubProductService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubProductService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubProductService) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubProductService) ImageUploadURL(ctx context.Context, productID, contentType string) (storage.SignedURL, error) {
	return s.imageUploadFn(ctx, productID, contentType)
}

type stubPromotionService struct {
	listFn   func(context.Context, repositories.PromotionListFilter) (domain.CursorPage[services.Promotion], error)
	getFn    func(context.Context, string) (services.Promotion, error)
	createFn func(context.Context, services.UpsertPromotionCommand) (services.Promotion, error)
	updateFn func(context.Context, services.UpsertPromotionCommand) (services.Promotion, error)
	deleteFn func(context.Context, string) error
	quoteFn  func(context.Context, string) (services.ProductQuote, error)
}

func (s *stubPromotionService) ListPromotions(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[services.Promotion], error) {
	return s.listFn(ctx, filter)
}

func (s *stubPromotionService) GetPromotion(ctx context.Context, id string) (services.Promotion, error) {
	return s.getFn(ctx, id)
}

func (s *stubPromotionService) CreatePromotion(ctx context.Context, cmd services.UpsertPromotionCommand) (services.Promotion, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubPromotionService) UpdatePromotion(ctx context.Context, cmd services.UpsertPromotionCommand) (services.Promotion, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubPromotionService) DeletePromotion(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubPromotionService) ActiveFor(context.Context, string) ([]services.Promotion, error) {
	return nil, nil
}

func (s *stubPromotionService) Quote(ctx context.Context, productID string) (services.ProductQuote, error) {
	return s.quoteFn(ctx, productID)
}

var (
	_ services.CustomerService  = (*stubCustomerService)(nil)
	_ services.CartService      = (*stubCartService)(nil)
	_ services.CheckoutService  = (*stubCheckoutService)(nil)
	_ services.OrderService     = (*stubOrderService)(nil)
	_ services.RefundService    = (*stubRefundService)(nil)
	_ services.ProductService   = (*stubProductService)(nil)
	_ services.PromotionService = (*stubPromotionService)(nil)
)
