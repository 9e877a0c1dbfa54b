package dbtypes

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray maps a Postgres uuid[] column. On sqlite it round-trips through the
// same array literal stored as text.
type UUIDArray []uuid.UUID

func (UUIDArray) GormDataType() string {
	return "uuid[]"
}

func (a *UUIDArray) Scan(src any) error {
	if src == nil {
		*a = UUIDArray{}
		return nil
	}

	var raw pq.StringArray
	switch v := src.(type) {
	case string:
		if err := raw.Scan([]byte(v)); err != nil {
			return fmt.Errorf("UUIDArray: %w", err)
		}
	case []byte:
		if err := raw.Scan(v); err != nil {
			return fmt.Errorf("UUIDArray: %w", err)
		}
	default:
		return fmt.Errorf("UUIDArray: unsupported Scan type %T", src)
	}

	out := make(UUIDArray, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return fmt.Errorf("UUIDArray: parse %q: %w", r, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	parts := make(pq.StringArray, 0, len(a))
	for _, id := range a {
		parts = append(parts, id.String())
	}
	return parts.Value()
}

// Contains reports set membership.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, candidate := range a {
		if candidate == id {
			return true
		}
	}
	return false
}

// Dedupe drops nil and repeated ids while keeping first-seen order.
func (a UUIDArray) Dedupe() UUIDArray {
	seen := make(map[uuid.UUID]struct{}, len(a))
	out := make(UUIDArray, 0, len(a))
	for _, id := range a {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
