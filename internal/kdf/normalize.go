package kdf

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, trims it, collapses whitespace runs to a single
// space and collapses runs of hyphens to one. It is idempotent.
func Normalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))

	var prevSpace, prevHyphen bool
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace, prevHyphen = true, false
		case r == '-':
			if !prevHyphen {
				b.WriteByte('-')
			}
			prevSpace, prevHyphen = false, true
		default:
			b.WriteRune(r)
			prevSpace, prevHyphen = false, false
		}
	}
	return b.String()
}
