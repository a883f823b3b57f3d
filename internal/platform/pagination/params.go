package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits a limit.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported limit to prevent unbounded queries.
	DefaultMaxPageSize = 200
)

// ErrInvalidLimit reports a limit value that is not a non-negative integer.
var ErrInvalidLimit = errors.New("pagination: invalid limit")

// Options adjust limit parsing per endpoint.
type Options struct {
	// Key is the query parameter name, "limit" when empty.
	Key string
	// Default applies when the parameter is absent or zero.
	Default int
	// Max clamps oversized values; zero disables clamping.
	Max int
}

// ParseLimit extracts a list window size from the query string. Missing or
// zero values fall back to the configured default, values above Max are
// clamped, negative or non-numeric values are rejected.
func ParseLimit(values url.Values, opts Options) (int, error) {
	key := opts.Key
	if key == "" {
		key = "limit"
	}

	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return opts.Default, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, raw)
	}
	if limit == 0 {
		return opts.Default, nil
	}
	if opts.Max > 0 && limit > opts.Max {
		return opts.Max, nil
	}
	return limit, nil
}
