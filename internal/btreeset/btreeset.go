// Package btreeset is a sorted string set backed by a btree, used anywhere
// this repo needs deterministic, lexicographic iteration order over a set of
// names instead of Go's randomized map order (directory basenames, group
// membership).
package btreeset

import "github.com/google/btree"

type item string

func (s item) Less(than btree.Item) bool { return s < than.(item) }

// Set is a sorted set of strings.
type Set struct {
	t *btree.BTree
}

// New returns an empty Set.
func New() *Set {
	return &Set{t: btree.New(16)}
}

// Has reports whether name is a member.
func (s *Set) Has(name string) bool {
	return s.t.Get(item(name)) != nil
}

// Add inserts name.
func (s *Set) Add(name string) {
	s.t.ReplaceOrInsert(item(name))
}

// Remove deletes name, if present.
func (s *Set) Remove(name string) {
	s.t.Delete(item(name))
}

// Len reports the number of members.
func (s *Set) Len() int {
	return s.t.Len()
}

// Each calls fn for every member in ascending lexicographic order.
func (s *Set) Each(fn func(name string)) {
	s.t.Ascend(func(i btree.Item) bool {
		fn(string(i.(item)))
		return true
	})
}

// Slice returns the members as a sorted slice.
func (s *Set) Slice() []string {
	out := make([]string, 0, s.t.Len())
	s.Each(func(name string) { out = append(out, name) })
	return out
}
