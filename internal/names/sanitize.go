// SPDX-License-Identifier: MIT

package names

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// MaxNameLength is the length the input is truncated to before it is
	// sanitized; the "id_" prefix can make the result 3 characters longer.
	MaxNameLength = 64

	// MaxRawInputLength is the maximum raw input length processed.
	// Inputs longer than this are immediately rejected to prevent
	// memory exhaustion from malicious inputs.
	MaxRawInputLength = 1024
)

// Sanitize turns an arbitrary channel, source, or stream-path segment into
// a string safe for use as a filename component, a config lookup key, or a
// path segment in an HLS/recording directory tree.
//
// Sanitization rules:
//  1. Reject suspicious patterns (path traversal, flag/separator injection): return timestamped fallback
//  2. Truncate to 64 characters maximum
//  3. Replace non-alphanumeric characters with underscore
//  4. Collapse consecutive underscores
//  5. Strip leading and trailing underscores
//  6. Prefix "id_" if starts with digit
//  7. Return timestamped fallback if empty after sanitization
//
// Examples:
//
//	"Morning Show" → "Morning_Show"
//	"channel-1 (news)" → "channel_1_news"
//	"5fm" → "id_5fm"
//	"../etc/passwd" → "unknown_1234567890"
//	"" → "unknown_1234567890"
func Sanitize(name string) string {
	if name == "" {
		return timestampFallback()
	}

	// Reject excessively long input to prevent memory exhaustion.
	if len(name) > MaxRawInputLength {
		return timestampFallback()
	}

	if containsControlChars(name) {
		return timestampFallback()
	}

	// Reject path traversal, path separators, and leading-dash (flag injection
	// when a sanitized name is later interpolated into an ffmpeg arg list).
	if strings.Contains(name, "..") ||
		strings.ContainsAny(name, "/$") ||
		strings.HasPrefix(name, "-") {
		return timestampFallback()
	}

	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}

	sanitized := replaceNonAlphanumeric(name)
	sanitized = collapseUnderscores(sanitized)
	sanitized = strings.Trim(sanitized, "_")

	if len(sanitized) > 0 && isDigit(sanitized[0]) {
		sanitized = "id_" + sanitized
	}

	if sanitized == "" {
		return timestampFallback()
	}

	return sanitized
}

// replaceNonAlphanumeric replaces any character that is not a-z, A-Z, or 0-9 with underscore.
func replaceNonAlphanumeric(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlphanumeric(c) {
			result.WriteByte(c)
		} else {
			result.WriteByte('_')
		}
	}

	return result.String()
}

// collapseUnderscores replaces consecutive underscores with a single underscore.
func collapseUnderscores(s string) string {
	re := regexp.MustCompile(`_+`)
	return re.ReplaceAllString(s, "_")
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// timestampFallback returns "unknown_" followed by the current Unix timestamp.
func timestampFallback() string {
	return fmt.Sprintf("unknown_%d", time.Now().Unix())
}

// containsControlChars reports whether s contains a control character
// (0x00-0x1F or 0x7F) other than tab, newline, or carriage return.
func containsControlChars(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 && c != 0x09 && c != 0x0A && c != 0x0D {
			return true
		}
		if c == 0x7F {
			return true
		}
	}
	return false
}
