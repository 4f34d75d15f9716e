// Package options provides data structures and functions for configuring the log store.
package options

import (
	"fmt"
	"math"
	"strings"
)

// Defines the configuration parameters for a log store.
type Options struct {
	// Specifies the directory holding the generation files and the engine marker.
	//
	// Default: "/var/lib/kvs"
	DataDir string `json:"dataDir"`

	// Number of stale bytes (superseded sets plus tombstones) that triggers a
	// compaction on the write path.
	//
	// Default: 1MB, Minimum: 1KB
	CompactionThreshold uint64 `json:"compactionThreshold"`

	// Upper bound on idle segment readers kept for reuse between Get calls.
	//
	// Default: 32
	MaxIdleReaders int `json:"maxIdleReaders"`

	// Forces an fsync after every appended command.
	//
	// Default: false
	SyncWrites bool `json:"syncWrites"`
}

type OptionFunc func(*Options)

// Sets the data directory of the store.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// Sets the stale byte count above which compaction runs.
func WithCompactionThreshold(threshold uint64) OptionFunc {
	return func(o *Options) {
		if threshold >= MinCompactionThreshold {
			o.CompactionThreshold = threshold
		}
	}
}

// Sets how many idle segment readers are retained.
func WithMaxIdleReaders(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxIdleReaders = n
		}
	}
}

// Enables fsync after each appended command.
func WithSyncWrites(enabled bool) OptionFunc {
	return func(o *Options) {
		o.SyncWrites = enabled
	}
}

// Apply returns the defaults with every opt applied in order.
func Apply(opts ...OptionFunc) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FormatBytes converts byte count to human-readable format for log and error messages.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	var units = []string{"B", "KB", "MB", "GB", "TB"}

	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	exp := 0
	value := float64(bytes)

	for value >= unit && exp < len(units)-1 {
		value /= unit
		exp++
	}

	if math.Abs(value-math.Round(value)) < 0.01 {
		return fmt.Sprintf("%.0f %s", math.Round(value), units[exp])
	}
	return fmt.Sprintf("%.2f %s", value, units[exp])
}
