// Package shipping talks to the carrier's REST API to book forward deliveries, reverse pickups
// and cancellations.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const (
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 1 << 16
)

// ErrNotConfigured is returned by a Client built without a base URL.
var ErrNotConfigured = errors.New("shipping: carrier is not configured")

// APIError describes a non-2xx carrier response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("shipping: carrier error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("shipping: carrier error %d: %s", e.Status, e.Message)
}

// Unauthorized reports whether the carrier rejected our credentials or the forwarded session.
func (e *APIError) Unauthorized() bool {
	return e != nil && e.Status == http.StatusUnauthorized
}

// IsUnauthorized unwraps err looking for a carrier 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Item is a parcel content line.
type Item struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Value    int64  `json:"value"`
}

// ShipmentRequest books a consignment. Reverse shipments pick up from the customer's address.
type ShipmentRequest struct {
	OrderID        string
	LineIDs        []string
	Kind           domain.ShipmentKind
	Address        domain.Address
	Items          []Item
	CODAmount      int64
	Currency       string
	IdempotencyKey string
}

type addressPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

type shipmentPayload struct {
	Reference string         `json:"reference"`
	Type      string         `json:"type"`
	Address   addressPayload `json:"address"`
	Items     []Item         `json:"items"`
	CODAmount int64          `json:"codAmount,omitempty"`
	Currency  string         `json:"currency,omitempty"`
}

type shipmentResponse struct {
	ID             string    `json:"id"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"trackingNumber"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Client is the carrier REST client.
type Client struct {
	base   *url.URL
	apiKey string
	http   HTTPClient
	clock  func() time.Time
}

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(c HTTPClient) Option {
	return func(client *Client) {
		if c != nil {
			client.http = c
		}
	}
}

// WithClock overrides the clock used when the carrier omits timestamps.
func WithClock(clock func() time.Time) Option {
	return func(client *Client) {
		if clock != nil {
			client.clock = clock
		}
	}
}

// NewClient constructs a carrier client. A zero timeout uses the default.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNotConfigured
	}
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("shipping: parse base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		base:   parsed,
		apiKey: strings.TrimSpace(apiKey),
		http:   &http.Client{Timeout: timeout},
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// CreateShipment books a forward delivery or reverse pickup.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (domain.Shipment, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Shipment{}, errors.New("shipping: order id is required")
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.ShipmentKindForward
	}
	body := shipmentPayload{
		Reference: req.OrderID,
		Type:      string(kind),
		Address: addressPayload{
			Name:    req.Address.Name,
			Phone:   req.Address.Mobile,
			Line1:   req.Address.Line1,
			Line2:   req.Address.Line2,
			City:    req.Address.City,
			State:   req.Address.State,
			Pincode: req.Address.Pincode,
			Country: req.Address.Country,
		},
		Items:    req.Items,
		Currency: req.Currency,
	}
	if kind == domain.ShipmentKindForward {
		body.CODAmount = req.CODAmount
	}

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "v1/shipments", body, req.IdempotencyKey)
	if err != nil {
		return domain.Shipment{}, err
	}
	var payload shipmentResponse
	if err := c.do(httpReq, &payload); err != nil {
		return domain.Shipment{}, err
	}

	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.clock()
	}
	return domain.Shipment{
		ID:             payload.ID,
		OrderID:        req.OrderID,
		LineIDs:        append([]string(nil), req.LineIDs...),
		Carrier:        payload.Carrier,
		TrackingNumber: payload.TrackingNumber,
		Kind:           kind,
		Status:         payload.Status,
		CreatedAt:      createdAt.UTC(),
	}, nil
}

// CancelShipment cancels a consignment that has not left the warehouse. Cancelling an already
// cancelled shipment is not an error.
func (c *Client) CancelShipment(ctx context.Context, shipmentID, reason string) error {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return errors.New("shipping: shipment id is required")
	}
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "v1/shipments/"+url.PathEscape(shipmentID)+"/cancel",
		map[string]string{"reason": reason}, "cancel-"+shipmentID)
	if err != nil {
		return err
	}
	err = c.do(httpReq, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Code == "already_cancelled" {
		return nil
	}
	return err
}

func (c *Client) newJSONRequest(ctx context.Context, method, endpoint string, payload any, idempotencyKey string) (*http.Request, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("shipping: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(&url.URL{Path: endpoint}).String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("shipping: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}
	req.Header.Set(idempotencyHeader, idempotencyKey)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shipping: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("shipping: decode response: %w", err)
	}
	return nil
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		apiErr.Code = strings.TrimSpace(payload.Code)
		apiErr.Message = strings.TrimSpace(payload.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(payload.Error)
		}
	}
	if apiErr.Message == "" && len(body) > 0 {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
