package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// EventCursor encodes a timestamp + ULID for stable event ordering.
type EventCursor struct {
	Timestamp time.Time
	ULID      string
}

// EncodeEventCursor encodes the cursor as base64(ts_unix_nano:ULID).
func EncodeEventCursor(timestamp time.Time, ulid string) string {
	value := fmt.Sprintf("%d:%s", timestamp.UTC().UnixNano(), strings.ToUpper(strings.TrimSpace(ulid)))
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeEventCursor decodes base64(ts_unix_nano:ULID) into an EventCursor.
func DecodeEventCursor(cursor string) (EventCursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return EventCursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return EventCursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return EventCursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return EventCursor{}, ErrInvalidCursor
	}
	if strings.TrimSpace(parts[1]) == "" {
		return EventCursor{}, ErrInvalidCursor
	}
	return EventCursor{Timestamp: time.Unix(0, unixNano).UTC(), ULID: strings.ToUpper(strings.TrimSpace(parts[1]))}, nil
}

// KeyCursor encodes a timestamp + opaque key (such as a user id) whose case
// must be preserved.
type KeyCursor struct {
	Timestamp time.Time
	Key       string
}

// EncodeKeyCursor encodes the cursor as base64(ts_unix_nano:key).
func EncodeKeyCursor(timestamp time.Time, key string) string {
	value := fmt.Sprintf("%d:%s", timestamp.UTC().UnixNano(), key)
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeKeyCursor decodes base64(ts_unix_nano:key) into a KeyCursor.
func DecodeKeyCursor(cursor string) (KeyCursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return KeyCursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return KeyCursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return KeyCursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return KeyCursor{}, ErrInvalidCursor
	}
	return KeyCursor{Timestamp: time.Unix(0, unixNano).UTC(), Key: parts[1]}, nil
}
