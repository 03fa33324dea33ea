// Package strings holds small string-slice helpers shared by boundary
// parsers.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops blanks and repeats, keeping the
// first occurrence order. Nil and empty inputs are returned as given.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SplitList splits a comma-separated flag or header value with DedupeAndTrim
// semantics. An empty input yields an empty, non-nil slice.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	return DedupeAndTrim(strings.Split(value, ","))
}
