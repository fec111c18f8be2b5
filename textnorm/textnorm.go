// Package textnorm canonicalizes the mixed full-width/half-width text found
// on the auction site so that downstream regular expressions only have to
// deal with ASCII digits, letters and punctuation.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies Unicode NFKC (full-width digits, letters and punctuation
// become their half-width forms) and trims surrounding whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// CollapseSpace replaces every run of whitespace with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Key returns the comparison form of s: normalized, lower-cased and with
// inner whitespace collapsed. Two strings that differ only in width, case or
// spacing produce the same key.
func Key(s string) string {
	return strings.ToLower(CollapseSpace(Normalize(s)))
}
