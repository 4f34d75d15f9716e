package index

import (
	"sync"

	"github.com/google/btree"
)

// CommandPos locates one encoded command inside one generation file.
type CommandPos struct {
	Generation uint64 // Generation identifies the `<gen>.x` file holding the command.
	Offset     int64  // Offset is the byte position where the record starts.
	Length     int64  // Length covers the record header and payload.
}

// Entry pairs a key with the position of its latest Set.
type Entry struct {
	Key string
	Pos CommandPos
}

// Index is the in-memory ordered map from keys to the position of their
// latest live Set. Lookups may run concurrently with a single mutator.
type Index struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Entry]
}
