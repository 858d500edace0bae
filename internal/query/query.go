package query

import "github.com/runelang/rune/internal/item"

// RootCrate matches internal/assemble.RootCrate: both packages resolve
// top-level items against the same fixed crate-root component, since
// neither pass yet supports multi-crate programs (spec §3.1 narrowed to a
// single crate, same simplification recorded in internal/assemble's
// DESIGN.md entry).
const RootCrate = "root"

// Query is the item database an Indexer populates: every struct/enum/
// variant/function/const/import/module the walk found, keyed by its
// content hash (spec §4.3).
type Query struct {
	Pool  *ItemPool
	Queue *Queue
}

// NewQuery creates an empty Query with an item pool of the given LRU
// capacity (0 selects ItemPool's own default).
func NewQuery(lruSize int) *Query {
	return &Query{Pool: NewItemPool(lruSize), Queue: NewQueue()}
}

// Lookup resolves a hash to its Meta record, if indexed.
func (q *Query) Lookup(h item.Hash) (*Meta, bool) {
	return q.Pool.Get(h)
}
