package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"example.com/activitysync/internal/domain"
)

// EncodeCursor serialises the cursor to a string token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.UpdatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses the encoded cursor token.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, err
	}
	return &domain.Cursor{UpdatedAt: ts, ID: parts[1]}, nil
}

// After reports whether a record sorted by (updatedAt desc, id asc) falls after the cursor.
func After(c *domain.Cursor, updatedAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if updatedAt.Before(c.UpdatedAt) {
		return true
	}
	return updatedAt.Equal(c.UpdatedAt) && id > c.ID
}
