//go:build !cgo

package store

import "strings"

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// The typed mattn check is unavailable without cgo, so cgo-free builds
// rely on the string fallback alone.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
