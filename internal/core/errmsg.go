package core

// errmsg.go maps raw persistence errors onto messages a catalog manager can
// act on. Patterns are matched against the error text because the failure
// may arrive already flattened through the pool.

import "strings"

// insertErrorPattern pairs an error-text substring with a friendly message.
type insertErrorPattern struct {
	substring string
	message   string
}

var insertErrorPatterns = []insertErrorPattern{
	{"duplicate key", "a product with this SKU already exists"},
	{"violates unique", "a product with this SKU already exists"},
	{"violates foreign key", "referenced category or brand does not exist"},
	{"connection refused", "database is unreachable, try again shortly"},
	{"connection reset", "database connection was interrupted, try again"},
	{"deadlock", "database was busy, try again"},
	{"context deadline exceeded", "insert timed out, try a smaller file"},
	{"timeout", "insert timed out, try a smaller file"},
}

// friendlyInsertError returns a user-facing message for a batch insert
// failure, falling back to the raw error text.
func friendlyInsertError(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	lower := strings.ToLower(text)
	for _, p := range insertErrorPatterns {
		if strings.Contains(lower, p.substring) {
			return p.message
		}
	}
	return text
}
