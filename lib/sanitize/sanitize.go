// Package sanitize filters externally supplied strings before they are used
// in privileged lookups and mount operations.
package sanitize

import "strings"

// String returns input reduced to the bytes [A-Za-z0-9_:.+-], preserving
// relative order and dropping everything else. The filter is byte-wise, so
// multi-byte sequences are dropped rather than interpreted, and it never
// fails regardless of input.
func String(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		if permitted(input[i]) {
			b.WriteByte(input[i])
		}
	}
	return b.String()
}

func permitted(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == ':' || c == '.' || c == '+' || c == '-':
		return true
	}
	return false
}
