package paging

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor is the resumable position of a session, for stateless callers.
type Cursor struct {
	Session Session `json:"s"`
	Page    int     `json:"p"`
}

// EncodeCursor encodes c as URL-safe base64 JSON.
func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(s string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("failed to decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}
	if c.Page < 1 {
		return Cursor{}, fmt.Errorf("failed to decode cursor: page %d out of range", c.Page)
	}
	return c, nil
}
