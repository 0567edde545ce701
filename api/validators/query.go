package validators

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
)

var errNegative = errors.New("must be non-negative")

// queryValue parses the named query parameter with parse, returning fallback
// when it is absent. problem becomes the message of the validation error.
func queryValue[T any](r *http.Request, key string, fallback T, problem string, parse func(string) (T, error)) (T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := parse(raw)
	if err != nil {
		var zero T
		return zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter "+problem).
			WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// ParseQueryInt64 reads a non-negative int64 such as an event cursor.
func ParseQueryInt64(r *http.Request, key string, fallback int64) (int64, error) {
	return queryValue(r, key, fallback, "must be a non-negative integer", func(raw string) (int64, error) {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && v < 0 {
			err = errNegative
		}
		return v, err
	})
}

// ParseQueryTime reads an RFC3339 instant.
func ParseQueryTime(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	return queryValue(r, key, fallback, "must be an RFC3339 timestamp", func(raw string) (time.Time, error) {
		return time.Parse(time.RFC3339, raw)
	})
}
