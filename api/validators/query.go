package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads an optional integer bounded by [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, "query parameter must be numeric", nil)
	}
	if value < min || value > max {
		return 0, fieldError(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool reads an optional boolean; absent means false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fieldError(key, "query parameter must be a boolean", nil)
	}
	return value, nil
}

// ParseUUIDQuery reads a required UUID query parameter.
func ParseUUIDQuery(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(queryValue(r, key))
	if err != nil {
		return uuid.Nil, fieldError(key, "invalid "+key, nil)
	}
	return id, nil
}
