// Package utils provides small helpers with no domain knowledge, shared by
// the HTTP handlers.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// valid integer. Query parameters such as page and page_size go through
// this so malformed input degrades to the default instead of erroring.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
