// Package engine defines the contract shared by the storage engines the server can run on.
package engine

import (
	"context"
	"slices"
)

// Names of the available engines. They are also the contents of the engine
// marker file in a data directory.
const (
	KVS   = "kvs"
	Rocks = "rocks"
)

// Names lists every engine name in the order they are documented.
var Names = []string{KVS, Rocks}

// Engine is a persistent string key-value store safe for concurrent use.
type Engine interface {
	// Get returns the value of key. A missing key is reported by found=false
	// with a nil error.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. It fails with an error matching errors.ErrKeyNotFound
	// when key is absent.
	Remove(ctx context.Context, key string) error

	// Close releases the resources held by the engine.
	Close() error
}

// Stats is a point-in-time view of an engine's bookkeeping.
type Stats struct {
	Keys             int    // Live keys in the index.
	UncompactedBytes uint64 // Stale bytes reclaimable by compaction.
	Generation       uint64 // Generation of the active file.
	SafePoint        uint64 // Lowest generation still referenced.
	Compactions      uint64 // Compactions completed since open.
}

// StatsProvider is implemented by engines that expose Stats.
type StatsProvider interface {
	Stats() Stats
}

// Valid reports whether name is a known engine.
func Valid(name string) bool {
	return slices.Contains(Names, name)
}
