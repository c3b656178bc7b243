// Package utils holds small helpers shared by the HTTP, service and storage
// layers: query-parameter parsing, page arithmetic and slug generation.
package utils

import (
	"math"
	"strconv"
)

// Page sizes used when a caller does not choose, and the largest allowed.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// IntInRange parses s with AtoiDefault and clamps the result to [lo, hi].
func IntInRange(s string, def, lo, hi int) int {
	return min(max(AtoiDefault(s, def), lo), hi)
}

// Page is a 1-based page of a listing.
type Page struct {
	Number int
	Size   int
}

// NewPage normalises a page request: numbers start at 1, a non-positive size
// means DefaultPageSize and sizes are capped at MaxPageSize.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return Page{Number: number, Size: min(size, MaxPageSize)}
}

// Offset is the number of rows before this page. It saturates instead of
// overflowing for absurd page numbers.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// TotalPages is the page count for total rows.
func (p Page) TotalPages(total int64) int {
	if total <= 0 || p.Size < 1 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether another page follows this one.
func (p Page) HasNext(total int64) bool {
	return p.Number < p.TotalPages(total)
}
