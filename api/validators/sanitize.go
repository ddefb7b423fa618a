package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims surrounding space and cuts the result to at most maxLen bytes without
// splitting a UTF-8 sequence. A non-positive maxLen only trims.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
