package utils

import "strings"

// MaskSecret keeps the first four characters of s and stars the rest.
// Empty values stay empty so "unset" is still visible.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + strings.Repeat("*", 5)
}
