// Package search provides a simple, deterministic, concurrency-safe in-memory
// search index over recipes. Each recipe contributes one document whose tokens
// come from its name, keywords and ingredient names.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for tokenization limits and stop words
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// recipe's token set: score = |Q ∩ D| / |Q ∪ D|.
package search

import (
	"sort"
	"strings"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

// Result is a ranked recipe with its similarity score.
type Result struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Slug  string  `json:"slug"`
	Score float64 `json:"score"`
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minTokenRunes int
	stopwords     map[string]struct{}
	maxDocs       int
}

func defaultConfig() config {
	return config{
		minTokenRunes: 2,
		stopwords:     nil,
		maxDocs:       0,
	}
}

// WithMinTokenRunes drops tokens shorter than n runes. Negative values are
// ignored.
func WithMinTokenRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minTokenRunes = n
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	name   string
	slug   string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over recipes. Recipes that yield no tokens are
// skipped.
func NewIndex(recipes []domain.Recipe, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(recipes))
	for _, r := range recipes {
		toks := tokenize(strings.Join(documentText(r), " "), cfg)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{id: r.ID, name: r.Name, slug: r.Slug, tokens: toks})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// Len reports the number of indexed recipes.
func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching recipes by Jaccard similarity. Ties are
// broken by name, then id.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q, i.cfg)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	buf := make([]Result, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, Result{ID: d.id, Name: d.name, Slug: d.slug, Score: float64(over) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].Name != buf[b].Name {
			return buf[a].Name < buf[b].Name
		}
		return buf[a].ID < buf[b].ID
	})

	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
