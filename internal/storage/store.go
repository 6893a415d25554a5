package storage

import (
	"sync"

	"github.com/google/btree"
)

const degree = 32

type item struct {
	key   string
	value string
}

func (a item) Less(b btree.Item) bool {
	return a.key < b.(item).key
}

// Store is an ordered in-memory key/value map plus the count of updates
// applied to it. Iteration is always ascending by key.
type Store struct {
	mu          sync.RWMutex
	tree        *btree.BTree
	updateCount uint64
}

func NewStore() *Store {
	return &Store{
		tree: btree.New(degree),
	}
}

// Tx mutates the tree inside Update or Restore. It must not escape the callback.
type Tx struct {
	tree *btree.BTree
}

func (tx *Tx) Set(key, value string) {
	tx.tree.ReplaceOrInsert(item{key: key, value: value})
}

func (tx *Tx) Delete(key string) {
	tx.tree.Delete(item{key: key})
}

func (tx *Tx) Clear() {
	tx.tree.Clear(false)
}

// Update runs fn under the write lock, then bumps the update counter and
// returns its new value. The counter moves even when fn changes nothing.
func (s *Store) Update(fn func(tx *Tx)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fn != nil {
		fn(&Tx{tree: s.tree})
	}
	s.updateCount++
	return s.updateCount
}

// Restore builds a fresh tree with fill and swaps it in together with count.
func (s *Store) Restore(count uint64, fill func(tx *Tx)) {
	tree := btree.New(degree)
	if fill != nil {
		fill(&Tx{tree: tree})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = tree
	s.updateCount = count
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it := s.tree.Get(item{key: key})
	if it == nil {
		return "", false
	}
	return it.(item).value, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *Store) UpdateCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateCount
}

// IsEmpty reports whether the store holds no entries and has never been updated.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len() == 0 && s.updateCount == 0
}

// View is a read-locked, consistent picture of the store.
type View struct {
	tree  *btree.BTree
	count uint64
}

func (v *View) UpdateCount() uint64 { return v.count }
func (v *View) Len() int            { return v.tree.Len() }

// Ascend visits entries in key order until fn returns false.
func (v *View) Ascend(fn func(key, value string) bool) {
	v.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		return fn(it.key, it.value)
	})
}

// View runs fn with the read lock held; no update can interleave.
func (s *Store) View(fn func(v *View)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&View{tree: s.tree, count: s.updateCount})
}

// Reset drops every entry and zeroes the counter.
func (s *Store) Reset() {
	s.Restore(0, nil)
}
