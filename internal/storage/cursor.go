package storage

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCursor is returned for pagination tokens this store did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

const cursorLen = 8 + 16

// Cursor is the keyset position after the last row of a page: rows are
// ordered by (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode packs the cursor into an opaque URL-safe token.
func (c Cursor) Encode() string {
	var buf [cursorLen]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(c.CreatedAt.UnixMicro()))
	copy(buf[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if len(data) != cursorLen {
		return Cursor{}, fmt.Errorf("%w: %d bytes", ErrInvalidCursor, len(data))
	}
	var c Cursor
	c.CreatedAt = time.UnixMicro(int64(binary.BigEndian.Uint64(data[:8]))).UTC()
	copy(c.ID[:], data[8:])
	return c, nil
}
