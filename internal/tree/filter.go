package tree

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter returns the items for which keep reports true, preserving input order.
// A nil keep returns items unchanged.
func Filter[T any](items []T, keep func(T) bool) []T {
	if keep == nil {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// RestrictTo keeps only the items whose id is in ids.
func RestrictTo[T Item](items []T, ids []int64) []T {
	allowed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return Filter(items, func(item T) bool {
		_, ok := allowed[item.NodeID()]
		return ok
	})
}

// Keyword matches a case-insensitive substring against any of several fields.
type Keyword struct {
	folded string
	caser  cases.Caser
}

// NewKeyword prepares a matcher. A blank keyword matches everything.
func NewKeyword(keyword string) Keyword {
	caser := cases.Fold()
	return Keyword{folded: caser.String(strings.TrimSpace(keyword)), caser: caser}
}

// Empty reports whether the keyword matches everything.
func (k Keyword) Empty() bool { return k.folded == "" }

// Match reports whether any field contains the keyword.
func (k Keyword) Match(fields ...string) bool {
	if k.Empty() {
		return true
	}
	for _, field := range fields {
		if field != "" && strings.Contains(k.caser.String(field), k.folded) {
			return true
		}
	}
	return false
}
