package search

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

// documentText returns the searchable fields of a recipe.
func documentText(r domain.Recipe) []string {
	out := make([]string, 0, 1+len(r.Keywords)+len(r.Ingredients))
	out = append(out, r.Name)
	out = append(out, r.Keywords...)
	out = append(out, r.IngredientNames()...)
	return out
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// fold lowercases with Unicode case folding and strips diacritics, so
// "Crème" and "CREME" produce the same token.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokenize(s string, cfg config) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < cfg.minTokenRunes {
			continue
		}
		if cfg.stopwords != nil {
			if _, skip := cfg.stopwords[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
