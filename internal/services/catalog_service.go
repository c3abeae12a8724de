package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	maxProductNameLength        = 120
	maxProductDescriptionLength = 20000
	maxProductImages            = 10
)

var (
	// ErrProductInvalidInput indicates malformed product data.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product does not exist or is hidden from shoppers.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductConflict indicates the product id or sku is already taken.
	ErrProductConflict = errors.New("product: conflict")
	// ErrProductUnavailable indicates the datastore or image bucket is unreachable.
	ErrProductUnavailable = errors.New("product: unavailable")
	// ErrProductImagesDisabled is returned when no image bucket is configured.
	ErrProductImagesDisabled = errors.New("product: image storage not configured")
)

// ProductServiceDeps wires the catalogue service.
type ProductServiceDeps struct {
	Products   repositories.ProductRepository
	Promotions repositories.PromotionRepository
	Images     ImageStore
	Currency   string
	Clock      func() time.Time
	IDGen      func() string
	Logger     EventLogger
}

type productService struct {
	products   repositories.ProductRepository
	promotions repositories.PromotionRepository
	images     ImageStore
	currency   string
	markdown   goldmark.Markdown
	policy     *bluemonday.Policy
	now        func() time.Time
	newID      func() string
	logger     EventLogger
}

// NewProductService constructs the catalogue service. Images is optional; without it products are
// served without image URLs and upload URLs are refused.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("product service: product repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("product service: promotion repository is required")
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
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &productService{
		products:   deps.Products,
		promotions: deps.Promotions,
		images:     deps.Images,
		currency:   currency,
		markdown:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:     newDescriptionPolicy(),
		now:        func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "code")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

func (s *productService) ListProducts(ctx context.Context, page Pagination) (domain.CursorPage[ProductQuote], error) {
	result, err := s.products.List(ctx, repositories.ProductListFilter{ActiveOnly: true, Pagination: page})
	if err != nil {
		return domain.CursorPage[ProductQuote]{}, translateProductError(err)
	}
	active, err := s.promotions.ListActive(ctx)
	if err != nil {
		return domain.CursorPage[ProductQuote]{}, translateProductError(err)
	}
	now := s.now()
	quotes := make([]ProductQuote, 0, len(result.Items))
	for _, product := range result.Items {
		quotes = append(quotes, s.quote(ctx, product, active, now))
	}
	return domain.CursorPage[ProductQuote]{Items: quotes, NextPageToken: result.NextPageToken}, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (ProductQuote, error) {
	product, err := s.AdminGetProduct(ctx, productID)
	if err != nil {
		return ProductQuote{}, err
	}
	if !product.Active {
		return ProductQuote{}, ErrProductNotFound
	}
	active, err := s.promotions.ListActive(ctx)
	if err != nil {
		return ProductQuote{}, translateProductError(err)
	}
	return s.quote(ctx, product, active, s.now()), nil
}

func (s *productService) quote(ctx context.Context, product Product, active []Promotion, now time.Time) ProductQuote {
	q := ProductQuote{
		Product:  product,
		Discount: ApplyPromotions(product.Price, promotionsForProduct(product, active), now),
	}
	if s.images == nil {
		return q
	}
	for _, object := range product.ImagePaths {
		signed, err := s.images.ViewURL(ctx, object)
		if err != nil {
			s.logger(ctx, "product.image_sign_failed", map[string]any{"productID": product.ID, "object": object, "error": err.Error()})
			continue
		}
		q.ImageURLs = append(q.ImageURLs, signed.URL)
	}
	return q
}

func (s *productService) AdminListProducts(ctx context.Context, page Pagination) (domain.CursorPage[Product], error) {
	result, err := s.products.List(ctx, repositories.ProductListFilter{Pagination: page})
	if err != nil {
		return domain.CursorPage[Product]{}, translateProductError(err)
	}
	return result, nil
}

func (s *productService) AdminGetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrProductInvalidInput
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, translateProductError(err)
	}
	return product, nil
}

func (s *productService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.buildProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	if product.ID == "" {
		product.ID = s.newID()
	}
	if err := s.checkImageOwnership(product); err != nil {
		return Product{}, err
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, translateProductError(err)
	}
	s.logger(ctx, "product.created", map[string]any{"productID": product.ID, "sku": product.SKU})
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return Product{}, ErrProductInvalidInput
	}
	product, err := s.buildProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	if err := s.checkImageOwnership(product); err != nil {
		return Product{}, err
	}
	existing, err := s.AdminGetProduct(ctx, product.ID)
	if err != nil {
		return Product{}, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, translateProductError(err)
	}

	if s.images != nil {
		for _, object := range existing.ImagePaths {
			if slices.Contains(product.ImagePaths, object) {
				continue
			}
			if err := s.images.Remove(ctx, product.ID, object); err != nil {
				s.logger(ctx, "product.image_remove_failed", map[string]any{"productID": product.ID, "object": object, "error": err.Error()})
			}
		}
	}
	s.logger(ctx, "product.updated", map[string]any{"productID": product.ID})
	return product, nil
}

// DeleteProduct hides the product. Orders keep referencing it, so the document stays.
func (s *productService) DeleteProduct(ctx context.Context, productID string) error {
	product, err := s.AdminGetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return nil
	}
	product.Active = false
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return translateProductError(err)
	}
	s.logger(ctx, "product.deactivated", map[string]any{"productID": product.ID})
	return nil
}

func (s *productService) ImageUploadURL(ctx context.Context, productID, contentType string) (storage.SignedURL, error) {
	if s.images == nil {
		return storage.SignedURL{}, ErrProductImagesDisabled
	}
	if _, err := s.AdminGetProduct(ctx, productID); err != nil {
		return storage.SignedURL{}, err
	}
	signed, err := s.images.UploadURL(ctx, strings.TrimSpace(productID), contentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImageType) {
			return storage.SignedURL{}, fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
		}
		return storage.SignedURL{}, fmt.Errorf("%w: %v", ErrProductUnavailable, err)
	}
	return signed, nil
}

func (s *productService) buildProduct(cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	sku := strings.ToUpper(strings.TrimSpace(cmd.SKU))
	switch {
	case name == "" || len(name) > maxProductNameLength:
		return Product{}, fmt.Errorf("%w: name must be 1-%d characters", ErrProductInvalidInput, maxProductNameLength)
	case sku == "":
		return Product{}, fmt.Errorf("%w: sku is required", ErrProductInvalidInput)
	case cmd.Price < 0:
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrProductInvalidInput)
	case cmd.Stock < 0:
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrProductInvalidInput)
	case len(cmd.DescriptionMarkdown) > maxProductDescriptionLength:
		return Product{}, fmt.Errorf("%w: description too long", ErrProductInvalidInput)
	case len(cmd.ImagePaths) > maxProductImages:
		return Product{}, fmt.Errorf("%w: at most %d images", ErrProductInvalidInput, maxProductImages)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency != s.currency {
		return Product{}, fmt.Errorf("%w: currency must be %s", ErrProductInvalidInput, s.currency)
	}

	html, err := s.renderDescription(cmd.DescriptionMarkdown)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
	}
	return Product{
		ID:                  strings.TrimSpace(cmd.ProductID),
		SKU:                 sku,
		Name:                name,
		DescriptionMarkdown: strings.TrimSpace(cmd.DescriptionMarkdown),
		DescriptionHTML:     html,
		Price:               cmd.Price,
		Currency:            currency,
		Stock:               cmd.Stock,
		ImagePaths:          cleanIDs(cmd.ImagePaths),
		PromotionIDs:        cleanIDs(cmd.PromotionIDs),
		Active:              cmd.Active,
	}, nil
}

func (s *productService) checkImageOwnership(product Product) error {
	for _, object := range product.ImagePaths {
		if !storage.OwnedBy(product.ID, object) {
			return fmt.Errorf("%w: image %q does not belong to product", ErrProductInvalidInput, object)
		}
	}
	return nil
}

// renderDescription converts Markdown to sanitized HTML.
func (s *productService) renderDescription(markdown string) (string, error) {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(s.policy.Sanitize(buf.String())), nil
}

func translateProductError(err error) error {
	switch {
	case isRepoNotFound(err):
		return ErrProductNotFound
	case isRepoConflict(err):
		return ErrProductConflict
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
	}
	return err
}
