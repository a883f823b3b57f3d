package observability

// Request-derived strings are logged verbatim, so control characters are
// stripped and lengths capped before they reach a log field.

func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		switch {
		case r == '\n', r == '\r', r == '\t':
			cleaned = append(cleaned, r)
		case r < 0x20 || r == 0x7f:
			continue
		default:
			cleaned = append(cleaned, r)
		}
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

// SanitizeRoute cleans a route pattern for logging. Empty routes log as "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID caps identifiers logged alongside requests.
func SanitizeUserID(id string) string {
	return sanitizeString(id, 64)
}
