package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

const (
	defaultViewTTL   = 15 * time.Minute
	uploadTTL        = 10 * time.Minute
	maxImageBytes    = 5 << 20
	productImageRoot = "products"
)

var (
	ErrUnsupportedImageType = errors.New("storage: unsupported image content type")
	ErrInvalidImagePath     = errors.New("storage: image path does not belong to product")
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ObjectRemover deletes bucket objects. Satisfied by *gcs.Client through GCSRemover.
type ObjectRemover interface {
	Remove(ctx context.Context, bucket, object string) error
}

// GCSRemover adapts a Cloud Storage client to ObjectRemover.
type GCSRemover struct {
	Client *gcs.Client
}

func (r GCSRemover) Remove(ctx context.Context, bucket, object string) error {
	err := r.Client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// SignedURL is a time limited URL plus the headers the client must send with it.
type SignedURL struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// ProductImages signs upload and view URLs for product images stored under products/{id}/.
type ProductImages struct {
	bucket  string
	signer  Signer
	remover ObjectRemover
	viewTTL time.Duration
	now     func() time.Time
}

// ImagesOption customises ProductImages.
type ImagesOption func(*ProductImages)

// WithViewTTL sets how long view URLs stay valid.
func WithViewTTL(ttl time.Duration) ImagesOption {
	return func(p *ProductImages) {
		if ttl > 0 {
			p.viewTTL = ttl
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) ImagesOption {
	return func(p *ProductImages) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProductImages builds a signer bound to the product images bucket.
func NewProductImages(bucket string, signer Signer, remover ObjectRemover, opts ...ImagesOption) (*ProductImages, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	if signer == nil || signer.Email() == "" {
		return nil, errors.New("storage: signer is required")
	}
	p := &ProductImages{bucket: bucket, signer: signer, remover: remover, viewTTL: defaultViewTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// UploadURL signs a PUT for a new object under the product prefix. The returned Path is what the
// admin stores on the product once the upload succeeds.
func (p *ProductImages) UploadURL(ctx context.Context, productID, contentType string) (SignedURL, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return SignedURL{}, ErrUnsupportedImageType
	}
	object := path.Join(productImageRoot, productID, "images", strings.ToLower(ulid.Make().String())+"."+ext)
	expires := p.now().Add(uploadTTL)
	sizeRange := fmt.Sprintf("0,%d", maxImageBytes)

	signed, err := gcs.SignedURL(p.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: p.signer.Email(),
		Method:         "PUT",
		Expires:        expires,
		ContentType:    contentType,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		Scheme:         gcs.SigningSchemeV4,
		SignBytes:      func(b []byte) ([]byte, error) { return p.signer.SignBytes(ctx, b) },
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURL{
		URL:       signed,
		Method:    "PUT",
		Path:      object,
		Headers:   map[string]string{"Content-Type": contentType, "x-goog-content-length-range": sizeRange},
		ExpiresAt: expires,
	}, nil
}

// ViewURL signs a GET for an existing object path.
func (p *ProductImages) ViewURL(ctx context.Context, object string) (SignedURL, error) {
	object = strings.TrimPrefix(strings.TrimSpace(object), "/")
	if !strings.HasPrefix(object, productImageRoot+"/") {
		return SignedURL{}, ErrInvalidImagePath
	}
	expires := p.now().Add(p.viewTTL)
	signed, err := gcs.SignedURL(p.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: p.signer.Email(),
		Method:         "GET",
		Expires:        expires,
		Scheme:         gcs.SigningSchemeV4,
		SignBytes:      func(b []byte) ([]byte, error) { return p.signer.SignBytes(ctx, b) },
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign view url: %w", err)
	}
	return SignedURL{URL: signed, Method: "GET", Path: object, ExpiresAt: expires}, nil
}

// Remove deletes an image of the given product.
func (p *ProductImages) Remove(ctx context.Context, productID, object string) error {
	if !OwnedBy(productID, object) {
		return ErrInvalidImagePath
	}
	if p.remover == nil {
		return errors.New("storage: object remover not configured")
	}
	return p.remover.Remove(ctx, p.bucket, object)
}

// OwnedBy reports whether object lives under the product's image prefix.
func OwnedBy(productID, object string) bool {
	prefix := path.Join(productImageRoot, productID, "images") + "/"
	return productID != "" && strings.HasPrefix(object, prefix) && !strings.Contains(object, "..")
}
