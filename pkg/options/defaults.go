package options

const (
	DefaultDataDir string = "/var/lib/kvs"

	// Stale bytes tolerated in the log before a compaction is triggered.
	DefaultCompactionThreshold uint64 = 1024 * 1024
	MinCompactionThreshold     uint64 = 1024

	// Readers kept warm for reuse; extra readers are closed when released.
	DefaultMaxIdleReaders int = 32

	MaxKeySize   uint32 = 64 * 1024
	MaxValueSize uint32 = 100 * 1024 * 1024
)

var defaultOptions = Options{
	DataDir:             DefaultDataDir,
	CompactionThreshold: DefaultCompactionThreshold,
	MaxIdleReaders:      DefaultMaxIdleReaders,
	SyncWrites:          false,
}

func DefaultOptions() Options {
	return defaultOptions
}
