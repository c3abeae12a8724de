package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// tokenVersion prefixes every page token so the cursor layout can change
// without old tokens decoding into the wrong fields.
const tokenVersion = "p1."

// maxTokenLength rejects oversized tokens before any decoding work.
const maxTokenLength = 512

// Cursor is the position after the last document of a page: the value of the
// ordering field and the document id that breaks ties.
type Cursor struct {
	Value any    `json:"v,omitempty"`
	ID    string `json:"id"`
}

// EncodeToken turns a cursor into an opaque page token. A cursor without an id
// means there is no next page and encodes to "".
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.ID == "" {
		return "", nil
	}
	raw, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return tokenVersion + base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken reverses EncodeToken. A blank token is the first page.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return Cursor{}, nil
	case len(token) > maxTokenLength:
		return Cursor{}, fmt.Errorf("%w: too long", ErrInvalidPageToken)
	case !strings.HasPrefix(token, tokenVersion):
		return Cursor{}, fmt.Errorf("%w: unknown format", ErrInvalidPageToken)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, tokenVersion))
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.ID == "" {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidPageToken)
	}
	return cursor, nil
}
