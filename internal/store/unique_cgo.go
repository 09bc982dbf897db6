//go:build cgo

package store

import (
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// The typed check covers the mattn driver used on the serve path; the
// string fallback covers the cgo-free driver used by tests.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
