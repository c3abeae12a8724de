package notifications

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPublishOrderConfirmation(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	order := domain.OrderSummary{
		ID:          "ord_1",
		CustomerID:  "cust_1",
		TemplateID:  "classic",
		PaymentType: domain.PaymentTypeCashOnDelivery,
		Currency:    "INR",
		Lines:       []domain.OrderLine{{Name: "Mug", Quantity: 2, DiscountedPrice: 45000}},
		Totals:      domain.OrderTotals{Total: 90000},
	}
	customer := domain.Customer{Email: "asha@example.com", Name: "Asha", Locale: "en-IN"}
	job := NewOrderConfirmationJob(order, customer, time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC))

	if _, err := publisher.PublishOrderConfirmation(context.Background(), job); err != nil {
		t.Fatalf("PublishOrderConfirmation: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload OrderConfirmationJob
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "ord_1" || payload.Email != "asha@example.com" || payload.Total != 90000 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !strings.Contains(payload.TotalDisplay, "900.00") {
		t.Fatalf("expected formatted total, got %q", payload.TotalDisplay)
	}
	attrs := messages[0].Attributes
	if attrs["kind"] != KindOrderConfirmation || attrs["idempotencyKey"] != "order_confirmation:ord_1" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestPublishRefundIssued(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, _ := NewPubSubPublisher(topic)

	_, err := publisher.PublishRefundIssued(context.Background(), RefundIssuedJob{
		OrderID:   "ord_2",
		RefundIDs: []string{"rf_1", "rf_2"},
		Amount:    1500,
		Currency:  "INR",
	})
	if err != nil {
		t.Fatalf("PublishRefundIssued: %v", err)
	}
	messages := srv.Messages()
	if len(messages) != 1 || messages[0].Attributes["kind"] != KindRefundIssued {
		t.Fatalf("unexpected messages %+v", messages)
	}
	if _, ok := messages[0].Attributes["customerId"]; ok {
		t.Fatalf("empty attributes must be omitted")
	}
}

func TestFormatAmountUnknownCurrency(t *testing.T) {
	if got := FormatAmount(1234, "xyz", ""); !strings.Contains(got, "12.34") || !strings.Contains(got, "XYZ") {
		t.Fatalf("unexpected fallback format %q", got)
	}
}
