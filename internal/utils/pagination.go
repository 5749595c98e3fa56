// Package utils provides small parsing helpers shared by the HTTP handlers.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
//
//	utils.AtoiDefault("42", 0) // 42
//	utils.AtoiDefault("x", 5)  // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseID parses a positive numeric row id (path params such as :id or
// :otherUserId). Zero, negatives and non-numbers report false.
func ParseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 || n > uint64(^uint(0)) {
		return 0, false
	}
	return uint(n), true
}

// Clamp bounds v to [lo, hi], substituting def when v < lo.
func Clamp(v, def, lo, hi int) int {
	if v < lo {
		return def
	}
	if v > hi {
		return hi
	}
	return v
}
