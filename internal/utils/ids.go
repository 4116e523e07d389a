package utils

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxIDLength keeps "<id>.<uuid>.part" within common filename limits
const maxIDLength = 200

// CanonicalID trims an upstream poster id and puts it in Unicode NFC form so
// that visually identical ids map to the same file stem.
func CanonicalID(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// ValidID reports whether id can be used as a file stem inside the cache
// directory without escaping it or being mistaken for a hidden file.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	if strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00:*?\"<>|")
}
