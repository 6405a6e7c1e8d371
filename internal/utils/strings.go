package utils

import "strings"

// ParseList splits a comma-separated string into trimmed non-empty values.
// Returns nil for empty or whitespace-only input.
func ParseList(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
