package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// FoldKey returns a key suitable for case-insensitive ordering, unlike
// strings.ToLower it also handles special foldings like 'ß' -> 'ss'.
func FoldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// EqualFold reports whether two strings are equal after trimming and case folding.
func EqualFold(a, b string) bool {
	return FoldKey(a) == FoldKey(b)
}
