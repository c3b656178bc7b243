package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackSlug is used when a name contains nothing slug-worthy.
const fallbackSlug = "recipe"

// Slugify derives a lowercase, hyphen-separated, URL-safe slug from name.
// Diacritics are folded ("Crème brûlée" → "creme-brulee"); any run of
// characters outside [a-z0-9] collapses to a single hyphen.
//
// Example:
//
//	utils.Slugify("  Grandma's Apple Pie! ") // "grandma-s-apple-pie"
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}
