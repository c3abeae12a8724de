package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hanko-field/storefront/internal/platform/config"
)

const promotionsYAML = `
promotions:
  - id: promo-expired
    name: Summer
    promotionType: "%"
    value: 40
    endsAt: 2025-09-01T00:00:00Z
  - id: promo-quantity
    name: Buy two
    promotionBy: ByQuantity
    value: 2
  - id: promo-1
    name: Diwali
    promotionBy: ByValue
    promotionType: "%"
    value: 15
    startsAt: 2025-10-20T00:00:00Z
    endsAt: 2025-10-25T00:00:00Z
`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestQuoteAppliesFirstEligiblePromotion(t *testing.T) {
	out, _, err := execute(t, promotionsYAML,
		"promotions", "quote", "--price", "100000", "--promotions", "-", "--at", "2025-10-21T10:00:00Z")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(out, "promotion:  Diwali (promo-1)") {
		t.Fatalf("expected Diwali to win, got:\n%s", out)
	}
	if !strings.Contains(out, "15.00% off") {
		t.Fatalf("expected percent off, got:\n%s", out)
	}
}

func TestQuoteOutsideWindow(t *testing.T) {
	out, _, err := execute(t, promotionsYAML,
		"promotions", "quote", "--price", "100000", "--promotions", "-", "--at", "2025-11-01T00:00:00Z")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(out, "none applicable") {
		t.Fatalf("expected no promotion, got:\n%s", out)
	}
}

func TestQuoteReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promos.yaml")
	body := "promotions:\n  - id: flat\n    name: Flat 100\n    promotionType: INR\n    value: 100\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, _, err := execute(t, "", "promotions", "quote", "--price", "50000", "--promotions", path)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(out, "Flat 100 (flat)") || !strings.Contains(out, "20.00% off") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestQuoteRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"negative price": {"promotions", "quote", "--price", "-1", "--promotions", "-"},
		"bad time":       {"promotions", "quote", "--price", "100", "--promotions", "-", "--at", "tomorrow"},
		"missing file":   {"promotions", "quote", "--price", "100", "--promotions", filepath.Join(t.TempDir(), "absent.yaml")},
		"missing flag":   {"promotions", "quote", "--price", "100"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := execute(t, "", args...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, _, err := execute(t, "promotions: [", "promotions", "quote", "--price", "100", "--promotions", "-"); err == nil {
		t.Fatalf("expected YAML error")
	}
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, kv := range os.Environ() {
		if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, envPrefix) {
			t.Setenv(key, "")
		}
	}
	dir := t.TempDir()
	t.Setenv(envPrefix+"SECRETS_FALLBACK_FILE", filepath.Join(dir, "secrets.yaml"))
	return dir
}

func TestConfigValidateReportsMissingFields(t *testing.T) {
	dir := isolateEnv(t)
	envPath := filepath.Join(dir, "storefront.env")
	if err := os.WriteFile(envPath, []byte("STOREFRONT_SESSION_SECRET=too-short\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	_, errOut, err := execute(t, "", "config", "validate", "--env-file", envPath)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, field := range []string{"Firebase.ProjectID", "Session.Secret"} {
		if !strings.Contains(errOut, field) {
			t.Fatalf("expected %s in report, got:\n%s", field, errOut)
		}
	}
}

func TestConfigValidateReportsUnresolvedSecret(t *testing.T) {
	isolateEnv(t)
	t.Setenv(envPrefix+"STRIPE_API_KEY", "secret://stripe-api-key")

	_, errOut, err := execute(t, "", "config", "validate", "--env-file", "")
	if err == nil {
		t.Fatalf("expected secret error")
	}
	if !strings.Contains(errOut, "Stripe.APIKey") || !strings.Contains(errOut, "could not be resolved") {
		t.Fatalf("unexpected report:\n%s", errOut)
	}
}

func TestPrintConfigSummary(t *testing.T) {
	var buf bytes.Buffer
	printConfigSummary(&buf, config.Config{
		Environment: "prod",
		Server:      config.ServerConfig{Port: "8080"},
		Stripe:      config.StripeConfig{APIKey: "sk_live"},
		Checkout:    config.CheckoutConfig{Currency: "INR"},
	})
	out := buf.String()
	if !strings.Contains(out, "payments:    enabled") || !strings.Contains(out, "shipping:    disabled") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}
