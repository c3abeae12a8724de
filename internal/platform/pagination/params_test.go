package pagination

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hanko-field/storefront/internal/domain"
)

func TestFromRequestDefaults(t *testing.T) {
	page, err := FromRequest(httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if page.PageSize != DefaultPageSize || page.PageToken != "" {
		t.Fatalf("unexpected defaults %+v", page)
	}
}

func TestFromRequestClampsPageSize(t *testing.T) {
	page, err := FromRequest(httptest.NewRequest(http.MethodGet, "/?pageSize=400", nil))
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if page.PageSize != MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", MaxPageSize, page.PageSize)
	}
}

func TestFromRequestRejectsBadInput(t *testing.T) {
	tests := []struct {
		query string
		want  error
	}{
		{"pageSize=abc", ErrInvalidPageSize},
		{"pageSize=0", ErrInvalidPageSize},
		{"pageToken=%25%25%25", ErrInvalidPageToken},
		{"pageToken=e30", ErrInvalidPageToken},
		{"pageToken=p1.e30", ErrInvalidPageToken},
		{"pageToken=p1." + strings.Repeat("A", maxTokenLength), ErrInvalidPageToken},
	}
	for _, tc := range tests {
		_, err := FromRequest(httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v got %v", tc.query, tc.want, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{Value: "2024-05-01T00:00:00Z", ID: "ord_1"})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !strings.HasPrefix(token, tokenVersion) {
		t.Fatalf("expected versioned token, got %q", token)
	}
	if cursor.ID != "ord_1" || cursor.Value != "2024-05-01T00:00:00Z" {
		t.Fatalf("unexpected cursor %+v", cursor)
	}

	empty, err := EncodeToken(Cursor{})
	if err != nil || empty != "" {
		t.Fatalf("expected empty token for zero cursor, got %q %v", empty, err)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(domain.Pagination{}); got.PageSize != DefaultPageSize {
		t.Fatalf("expected default, got %d", got.PageSize)
	}
	if got := Normalize(domain.Pagination{PageSize: 1000, PageToken: " t "}); got.PageSize != MaxPageSize || got.PageToken != "t" {
		t.Fatalf("unexpected normalize result %+v", got)
	}
}
