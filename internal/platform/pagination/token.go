package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken marks page tokens that cannot be decoded back into a cursor.
var ErrInvalidPageToken = errors.New("pagination: invalid pageToken")

// Cursor represents the Firestore pagination cursor payload.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

func (c Cursor) empty() bool {
	return len(c.StartAfter) == 0 && len(c.StartAt) == 0
}

// EncodeToken serialises the provided cursor into a base64 URL-safe page token.
// An empty cursor yields an empty token, which list responses omit.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.empty() {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses the page token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
