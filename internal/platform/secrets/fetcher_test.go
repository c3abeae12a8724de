package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubAccessor struct {
	calls  []string
	values map[string]string
	err    error
}

func (s *stubAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls = append(s.calls, req.GetName())
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value + "\n")},
	}, nil
}

func (s *stubAccessor) Close() error { return nil }

func TestResolveSecretUsesRemoteAndCaches(t *testing.T) {
	client := &stubAccessor{values: map[string]string{
		"projects/sf-prod/secrets/stripe-api-key/versions/latest": "sk_live_1",
		"projects/other/secrets/session/versions/3":               "session-v3",
	}}
	f := NewFetcher(context.Background(), "sf-prod", nil, WithClient(client))

	for i := 0; i < 2; i++ {
		got, err := f.ResolveSecret(context.Background(), "secret://stripe-api-key")
		if err != nil {
			t.Fatalf("ResolveSecret: %v", err)
		}
		if got != "sk_live_1" {
			t.Fatalf("expected trimmed value, got %q", got)
		}
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected cached second lookup, got calls %v", client.calls)
	}

	got, err := f.ResolveSecret(context.Background(), "sm://projects/other/secrets/session?version=3")
	if err != nil {
		t.Fatalf("ResolveSecret explicit project: %v", err)
	}
	if got != "session-v3" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestResolveSecretFallsBackToLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("stripe-webhook: whsec_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := &stubAccessor{err: status.Error(codes.PermissionDenied, "denied")}
	f := NewFetcher(context.Background(), "sf-dev", nil, WithClient(client), WithFallbackFile(path))

	got, err := f.ResolveSecret(context.Background(), "secret://stripe-webhook")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "whsec_local" {
		t.Fatalf("expected fallback value, got %q", got)
	}

	if _, err := f.ResolveSecret(context.Background(), "secret://absent"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestResolveSecretPropagatesHardErrors(t *testing.T) {
	client := &stubAccessor{err: status.Error(codes.InvalidArgument, "bad name")}
	f := NewFetcher(context.Background(), "sf-dev", nil, WithClient(client))
	if _, err := f.ResolveSecret(context.Background(), "secret://x"); err == nil || errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref     string
		project string
		name    string
		version string
		wantErr bool
	}{
		{ref: "secret://a", project: "def", name: "a", version: "latest"},
		{ref: "secret://a?version=7", project: "def", name: "a", version: "7"},
		{ref: "secret://projects/p1/secrets/b", project: "p1", name: "b", version: "latest"},
		{ref: "plain", wantErr: true},
		{ref: "secret://a/b", wantErr: true},
	}
	for _, tc := range tests {
		project, name, version, err := parseReference(tc.ref, "def")
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tc.ref)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.ref, err)
			continue
		}
		if project != tc.project || name != tc.name || version != tc.version {
			t.Errorf("%s: got %s/%s@%s", tc.ref, project, name, version)
		}
	}
}
