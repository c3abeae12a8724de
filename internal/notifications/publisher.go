// Package notifications enqueues customer email jobs on Pub/Sub. A mail worker outside this
// service renders and sends them.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Job kinds carried in the "kind" attribute.
const (
	KindOrderConfirmation = "order_confirmation"
	KindRefundIssued      = "refund_issued"
)

// LineSummary is a display row in notification emails.
type LineSummary struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amount   string `json:"amount"`
}

// OrderConfirmationJob asks the mail worker to send an order confirmation.
type OrderConfirmationJob struct {
	Kind         string        `json:"kind"`
	OrderID      string        `json:"orderId"`
	CustomerID   string        `json:"customerId"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	TemplateID   string        `json:"templateId"`
	PaymentType  string        `json:"paymentType"`
	Total        int64         `json:"total"`
	Currency     string        `json:"currency"`
	TotalDisplay string        `json:"totalDisplay"`
	Lines        []LineSummary `json:"lines"`
	QueuedAt     time.Time     `json:"queuedAt"`
}

// RefundIssuedJob tells the customer that refunds were started for some lines.
type RefundIssuedJob struct {
	Kind          string    `json:"kind"`
	OrderID       string    `json:"orderId"`
	CustomerID    string    `json:"customerId"`
	Email         string    `json:"email"`
	RefundIDs     []string  `json:"refundIds"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	AmountDisplay string    `json:"amountDisplay"`
	Speed         string    `json:"speed"`
	QueuedAt      time.Time `json:"queuedAt"`
}

// Publisher enqueues notification jobs.
type Publisher interface {
	PublishOrderConfirmation(ctx context.Context, job OrderConfirmationJob) (string, error)
	PublishRefundIssued(ctx context.Context, job RefundIssuedJob) (string, error)
}

// PubSubPublisher publishes jobs to a single topic, distinguished by the kind attribute.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("notifications: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

func (p *PubSubPublisher) PublishOrderConfirmation(ctx context.Context, job OrderConfirmationJob) (string, error) {
	job.Kind = KindOrderConfirmation
	attrs := map[string]string{"kind": job.Kind}
	setAttr(attrs, "orderId", job.OrderID)
	setAttr(attrs, "customerId", job.CustomerID)
	setAttr(attrs, "templateId", job.TemplateID)
	// One confirmation per order; the worker dedupes on this key.
	setAttr(attrs, "idempotencyKey", job.Kind+":"+job.OrderID)
	return p.publish(ctx, job, attrs)
}

func (p *PubSubPublisher) PublishRefundIssued(ctx context.Context, job RefundIssuedJob) (string, error) {
	job.Kind = KindRefundIssued
	attrs := map[string]string{"kind": job.Kind}
	setAttr(attrs, "orderId", job.OrderID)
	setAttr(attrs, "customerId", job.CustomerID)
	setAttr(attrs, "idempotencyKey", job.Kind+":"+strings.Join(job.RefundIDs, ","))
	return p.publish(ctx, job, attrs)
}

func (p *PubSubPublisher) publish(ctx context.Context, payload any, attrs map[string]string) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("notifications: publisher not initialised")
	}
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("notifications: marshal %s job: %w", attrs["kind"], err)
	}
	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("notifications: publish %s job: %w", attrs["kind"], err)
	}
	return id, nil
}

// LogPublisher writes jobs to the logger instead of Pub/Sub, for local runs without a topic.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) PublishOrderConfirmation(_ context.Context, job OrderConfirmationJob) (string, error) {
	p.logger().Info("notification skipped: no topic configured",
		zap.String("kind", KindOrderConfirmation), zap.String("orderId", job.OrderID), zap.String("total", job.TotalDisplay))
	return "", nil
}

func (p LogPublisher) PublishRefundIssued(_ context.Context, job RefundIssuedJob) (string, error) {
	p.logger().Info("notification skipped: no topic configured",
		zap.String("kind", KindRefundIssued), zap.String("orderId", job.OrderID), zap.Strings("refundIds", job.RefundIDs))
	return "", nil
}

func (p LogPublisher) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// NewOrderConfirmationJob builds the job payload from a finalized order.
func NewOrderConfirmationJob(order domain.OrderSummary, customer domain.Customer, now time.Time) OrderConfirmationJob {
	lines := make([]LineSummary, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LineSummary{
			Name:     line.Name,
			Quantity: line.Quantity,
			Amount:   FormatAmount(line.Total(), order.Currency, customer.Locale),
		})
	}
	return OrderConfirmationJob{
		Kind:         KindOrderConfirmation,
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		Email:        customer.Email,
		Name:         customer.Name,
		TemplateID:   order.TemplateID,
		PaymentType:  string(order.PaymentType),
		Total:        order.Totals.Total,
		Currency:     order.Currency,
		TotalDisplay: FormatAmount(order.Totals.Total, order.Currency, customer.Locale),
		Lines:        lines,
		QueuedAt:     now.UTC(),
	}
}

// FormatAmount renders minor units as a localized currency string such as "₹ 1,499.00".
// Unknown currencies fall back to "<code> <amount>".
func FormatAmount(minor int64, code, locale string) string {
	tag := language.Make(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if tag == language.Und {
		tag = language.MustParse("en-IN")
	}
	printer := message.NewPrinter(tag)
	major := float64(minor) / 100

	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return printer.Sprintf("%s %.2f", strings.ToUpper(code), major)
	}
	return printer.Sprint(currency.Symbol(unit.Amount(major)))
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
