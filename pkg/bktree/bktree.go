// Package bktree provides a generic Burkhard-Keller tree for bounded-distance
// lookups over a discrete metric space.
//
// This package contains the Builder and Tree types. A Builder is a single-writer
// construction handle: items are inserted one by one or bulk-loaded from a
// sequence, and Build seals the structure into a read-only Tree. A Tree answers
// range queries ("all items within distance D of a probe") using
// triangle-inequality pruning, and is safe for unbounded concurrent use with no
// locking because it is never mutated after Build.
package bktree

import (
	"fmt"
	"iter"
	"slices"
	"sort"
)

// DistanceFunc computes the distance between two items. It must be symmetric,
// return a non-negative value, be zero for identical items, and satisfy the
// triangle inequality. Metrics that are naturally real-valued must be quantized
// to integers by the caller; the quantization policy is the caller's, not the
// tree's. Violating the triangle inequality is not detected and silently yields
// incomplete query results.
type DistanceFunc[T any] func(a, b T) int

// Match is a single range-query hit: the item and its distance from the probe.
type Match[T any] struct {
	Distance int
	Item     T
}

// node is one arena slot. Children are keyed by the exact integer distance
// between their item and this node's item, so a child at bucket k roots the
// subtree of all descendants at distance k from this item.
type node[T any] struct {
	item     T
	children map[int]uint32
}

// Builder accumulates items for a Tree. It is not safe for concurrent use;
// construction is a single-writer phase that must finish before the Tree is
// shared with readers.
type Builder[T any] struct {
	distFn DistanceFunc[T]
	nodes  []node[T]
	sealed bool
}

// NewBuilder creates an empty builder bound to a distance function. The
// function is fixed for the lifetime of the tree it builds.
func NewBuilder[T any](distFn DistanceFunc[T]) (*Builder[T], error) {
	if distFn == nil {
		return nil, fmt.Errorf("bktree: distance function must not be nil")
	}
	return &Builder[T]{
		distFn: distFn,
		nodes:  make([]node[T], 0, 1024),
	}, nil
}

// Insert adds one item. The first item becomes the root; every later item
// descends from the root along exact-distance buckets until it finds a free
// slot. Positions are append-only: once placed, an item never moves. Insertion
// order shapes the tree (and pruning efficiency) but never query correctness.
func (b *Builder[T]) Insert(item T) {
	if b.sealed {
		panic("bktree: Insert called on a sealed builder")
	}
	id := uint32(len(b.nodes))
	b.nodes = append(b.nodes, node[T]{item: item})
	if id == 0 {
		return
	}
	cur := uint32(0)
	for {
		k := b.distFn(item, b.nodes[cur].item)
		child, ok := b.nodes[cur].children[k]
		if !ok {
			if b.nodes[cur].children == nil {
				b.nodes[cur].children = make(map[int]uint32, 4)
			}
			b.nodes[cur].children[k] = id
			return
		}
		cur = child
	}
}

// BulkLoad inserts every item produced by the sequence, in sequence order.
func (b *Builder[T]) BulkLoad(items iter.Seq[T]) {
	for item := range items {
		b.Insert(item)
	}
}

// InsertAll inserts every item of the slice in order.
func (b *Builder[T]) InsertAll(items []T) {
	b.BulkLoad(slices.Values(items))
}

// Build seals the builder and returns the finished read-only tree. The builder
// is unusable afterwards; further Insert or Build calls panic. This is the
// publish barrier: a Tree handed to other goroutines after Build needs no
// synchronization because no structural mutation is possible.
func (b *Builder[T]) Build() *Tree[T] {
	if b.sealed {
		panic("bktree: Build called twice")
	}
	b.sealed = true
	t := &Tree[T]{distFn: b.distFn, nodes: b.nodes}
	b.nodes = nil
	return t
}

// Tree is an immutable BK-tree. All methods are safe for concurrent use.
type Tree[T any] struct {
	distFn DistanceFunc[T]
	nodes  []node[T]
}

// Len returns the number of stored items.
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// ErrNegativeDistance is returned by RangeQuery for a negative maximum
// distance. A zero maximum is valid and matches only exact hits.
var ErrNegativeDistance = fmt.Errorf("bktree: maximum distance must not be negative")

// RangeQuery returns every stored item within maxDistance of the probe,
// sorted ascending by distance with ties broken by insertion order, so
// identical queries on the same tree always return the identical slice. The
// result is fully materialized before return; callers may slice it for
// pagination. An empty tree yields an empty result, never an error.
//
// At each visited node with probe distance dp, a child bucket k is descended
// only when |k-dp| <= maxDistance; the triangle inequality guarantees no match
// can hide in a pruned subtree. Worst case (a degenerate tree shape or a
// near-constant metric) visits every node; the expected case for a
// well-distributed metric is sub-linear.
func (t *Tree[T]) RangeQuery(probe T, maxDistance int) ([]Match[T], error) {
	if maxDistance < 0 {
		return nil, fmt.Errorf("range query with maxDistance %d: %w", maxDistance, ErrNegativeDistance)
	}
	if len(t.nodes) == 0 {
		return nil, nil
	}

	type hit struct {
		dist int
		id   uint32
	}
	var hits []hit

	stack := make([]uint32, 1, 64)
	stack[0] = 0
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]

		dp := t.distFn(probe, n.item)
		if dp <= maxDistance {
			hits = append(hits, hit{dist: dp, id: id})
		}
		for k, child := range n.children {
			if abs(k-dp) <= maxDistance {
				stack = append(stack, child)
			}
		}
	}

	// Child maps iterate in random order, so traversal order is not stable;
	// the sort below is what makes results reproducible.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].id < hits[j].id
	})

	matches := make([]Match[T], len(hits))
	for i, h := range hits {
		matches[i] = Match[T]{Distance: h.dist, Item: t.nodes[h.id].item}
	}
	return matches, nil
}

// Items returns the stored items in insertion order.
func (t *Tree[T]) Items() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := range t.nodes {
			if !yield(t.nodes[i].item) {
				return
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
