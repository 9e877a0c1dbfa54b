// Package pagination implements keyset paging over (created_at, id), newest
// first, with opaque URL-safe cursors.
package pagination

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params carries the page request as read from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], substituting DefaultLimit
// for non-positive values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks for one extra row so Trim can tell whether another
// page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders c as "<unix nanos>.<uuid>" in unpadded URL base64.
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixNano(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a value produced by EncodeCursor. A blank value means
// the first page and yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, invalidCursor()
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, invalidCursor()
	}
	ns, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, invalidCursor()
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, invalidCursor()
	}
	return &Cursor{CreatedAt: time.Unix(0, ns).UTC(), ID: parsedID}, nil
}

func invalidCursor() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").
		WithDetails(map[string]any{"field": "cursor"})
}

// Keyset narrows query to rows after the cursor in params and applies the
// newest-first ordering plus the look-ahead limit.
func Keyset(query *gorm.DB, params Params) (*gorm.DB, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	return query.Order("created_at DESC").Order("id DESC").Limit(LimitWithBuffer(params.Limit)), nil
}

// Trim drops the look-ahead row fetched with LimitWithBuffer and returns the
// cursor for the next page, or "" when rows is the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(cursorOf(page[len(page)-1]))
}
