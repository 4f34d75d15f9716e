package index

import (
	"github.com/google/btree"
)

const degree = 32

func less(a, b Entry) bool {
	return a.Key < b.Key
}

func New() *Index {
	return &Index{tree: btree.NewG(degree, less)}
}

func (idx *Index) Get(key string) (CommandPos, bool) {
	idx.mu.RLock()
	e, ok := idx.tree.Get(Entry{Key: key})
	idx.mu.RUnlock()
	return e.Pos, ok
}

func (idx *Index) Contains(key string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Has(Entry{Key: key})
}

// Set installs pos for key and returns the position it replaced, if any.
func (idx *Index) Set(key string, pos CommandPos) (CommandPos, bool) {
	idx.mu.Lock()
	prev, replaced := idx.tree.ReplaceOrInsert(Entry{Key: key, Pos: pos})
	idx.mu.Unlock()
	return prev.Pos, replaced
}

// Delete removes key and returns the position it held, if any.
func (idx *Index) Delete(key string) (CommandPos, bool) {
	idx.mu.Lock()
	prev, ok := idx.tree.Delete(Entry{Key: key})
	idx.mu.Unlock()
	return prev.Pos, ok
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// Snapshot copies every entry in key order.
func (idx *Index) Snapshot() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := make([]Entry, 0, idx.tree.Len())
	idx.tree.Ascend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}
