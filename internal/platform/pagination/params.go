package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hanko-field/storefront/internal/domain"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// MaxPageSize caps pageSize to keep list queries bounded.
	MaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest reads pageSize and pageToken from the query string. The token is validated here so
// handlers can reject garbage before touching the repository.
func FromRequest(r *http.Request) (domain.Pagination, error) {
	query := r.URL.Query()
	page := domain.Pagination{PageSize: DefaultPageSize}

	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return domain.Pagination{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		page.PageSize = min(size, MaxPageSize)
	}

	page.PageToken = strings.TrimSpace(query.Get("pageToken"))
	if _, err := DecodeToken(page.PageToken); err != nil {
		return domain.Pagination{}, err
	}
	return page, nil
}

// Normalize clamps a page size supplied by non-HTTP callers.
func Normalize(p domain.Pagination) domain.Pagination {
	switch {
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	p.PageToken = strings.TrimSpace(p.PageToken)
	return p
}
