package repository

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parley-chat/internal/domain/message"
	parley_errors "parley-chat/pkg/errors"
)

// historyCursor points at the last message of a page. The next page holds
// everything strictly older, so inserts after the cursor never shift it.
type historyCursor struct {
	CreatedAt time.Time
	ID        string
}

func encodeCursor(m message.Message) string {
	raw := strconv.FormatInt(m.CreatedAt.UnixMilli(), 10) + ":" + m.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(value string) (*historyCursor, error) {
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", parley_errors.ErrValidation)
	}
	millis, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", parley_errors.ErrValidation)
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", parley_errors.ErrValidation)
	}
	return &historyCursor{CreatedAt: time.UnixMilli(ms).UTC(), ID: id}, nil
}

// after reports whether m sorts strictly older than the cursor.
func (c *historyCursor) after(m message.Message) bool {
	if c == nil {
		return true
	}
	if m.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return m.CreatedAt.Equal(c.CreatedAt) && m.ID < c.ID
}
