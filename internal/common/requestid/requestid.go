// Package requestid generates request identifiers for the internal API,
// honoring caller-supplied IDs after sanitization.
package requestid

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxLength caps request IDs at UUID length
const MaxLength = 36

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// FromHeader returns a request ID derived from a caller-supplied value, or a
// fresh UUID when the value is empty or sanitizes away. Sanitized IDs keep
// only [a-zA-Z0-9-] and are truncated to MaxLength.
func FromHeader(supplied string) string {
	sanitized := strings.ReplaceAll(supplied, " ", "-")
	sanitized = invalidChars.ReplaceAllString(sanitized, "")
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		return uuid.New().String()
	}
	if len(sanitized) > MaxLength {
		sanitized = sanitized[:MaxLength]
	}
	return sanitized
}
