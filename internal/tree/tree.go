// Package tree assembles parent-linked records (permissions, menus) into an ordered forest.
//
// Nodes are kept in an arena slice and linked through a children index keyed by parent id,
// so the forest never holds pointer cycles. Traversals carry a visited set, which makes a
// corrupted parent chain terminate instead of looping.
package tree

import (
	"sort"
)

// Item is a record that can be placed in a forest.
type Item interface {
	NodeID() int64
	NodeParentID() *int64
	NodeSort() *int
}

// Forest is an ordered forest built from a flat list of items.
type Forest[T Item] struct {
	nodes    []T
	index    map[int64]int
	children map[int64][]int
	roots    []int
}

// Build sorts items by (sort ascending with nulls last, id ascending) and links every item to
// its parent when the parent is part of the input. Items whose parent is absent become roots.
// Duplicate ids keep their first occurrence after sorting.
func Build[T Item](items []T) *Forest[T] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	f := &Forest[T]{
		nodes:    make([]T, 0, len(sorted)),
		index:    make(map[int64]int, len(sorted)),
		children: make(map[int64][]int),
	}
	for _, item := range sorted {
		if _, dup := f.index[item.NodeID()]; dup {
			continue
		}
		f.index[item.NodeID()] = len(f.nodes)
		f.nodes = append(f.nodes, item)
	}

	for i, item := range f.nodes {
		parent := item.NodeParentID()
		if parent != nil && *parent != item.NodeID() {
			if _, ok := f.index[*parent]; ok {
				f.children[*parent] = append(f.children[*parent], i)
				continue
			}
		}
		f.roots = append(f.roots, i)
	}
	return f
}

func less(a, b Item) bool {
	as, bs := a.NodeSort(), b.NodeSort()
	switch {
	case as != nil && bs != nil && *as != *bs:
		return *as < *bs
	case as != nil && bs == nil:
		return true
	case as == nil && bs != nil:
		return false
	}
	return a.NodeID() < b.NodeID()
}

// Len returns the number of distinct nodes.
func (f *Forest[T]) Len() int { return len(f.nodes) }

// Roots returns the root items in order.
func (f *Forest[T]) Roots() []T {
	out := make([]T, 0, len(f.roots))
	for _, i := range f.roots {
		out = append(out, f.nodes[i])
	}
	return out
}

// Children returns the direct children of id in order.
func (f *Forest[T]) Children(id int64) []T {
	idx := f.children[id]
	out := make([]T, 0, len(idx))
	for _, i := range idx {
		out = append(out, f.nodes[i])
	}
	return out
}

// Walk visits every node exactly once, depth-first pre-order. Nodes only reachable through a
// parent cycle are visited last, each starting a traversal of its own.
func (f *Forest[T]) Walk(fn func(item T, depth int)) {
	visited := make([]bool, len(f.nodes))
	var visit func(i, depth int)
	visit = func(i, depth int) {
		if visited[i] {
			return
		}
		visited[i] = true
		fn(f.nodes[i], depth)
		for _, c := range f.children[f.nodes[i].NodeID()] {
			visit(c, depth+1)
		}
	}
	for _, r := range f.roots {
		visit(r, 0)
	}
	for i := range f.nodes {
		visit(i, 0)
	}
}

// Flatten returns every node in Walk order: parents precede their children.
func (f *Forest[T]) Flatten() []T {
	out := make([]T, 0, len(f.nodes))
	f.Walk(func(item T, _ int) { out = append(out, item) })
	return out
}

// Nest converts the forest into nested values. convert receives an item with its already
// converted children.
func Nest[T Item, N any](f *Forest[T], convert func(item T, children []N) N) []N {
	visited := make([]bool, len(f.nodes))
	var build func(i int) (N, bool)
	build = func(i int) (N, bool) {
		var zero N
		if visited[i] {
			return zero, false
		}
		visited[i] = true
		kids := make([]N, 0, len(f.children[f.nodes[i].NodeID()]))
		for _, c := range f.children[f.nodes[i].NodeID()] {
			if n, ok := build(c); ok {
				kids = append(kids, n)
			}
		}
		return convert(f.nodes[i], kids), true
	}

	out := make([]N, 0, len(f.roots))
	for _, r := range f.roots {
		if n, ok := build(r); ok {
			out = append(out, n)
		}
	}
	for i := range f.nodes {
		if n, ok := build(i); ok {
			out = append(out, n)
		}
	}
	return out
}
