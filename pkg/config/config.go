// Package config loads the kvs-server configuration from YAML, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/engine/rocks"
	"github.com/iamBelugaa/kvs/internal/threadpool"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/logger"
	"github.com/iamBelugaa/kvs/pkg/options"
)

const DefaultAddr = "127.0.0.1:4000"

// Flag names shared by the config layer and the server command.
const (
	FlagAddr        = "addr"
	FlagEngine      = "engine"
	FlagDataDir     = "data-dir"
	FlagPool        = "pool"
	FlagWorkers     = "workers"
	FlagMetricsAddr = "metrics-addr"
	FlagLogLevel    = "log-level"
	FlagSyncWrites  = "sync-writes"
)

type PoolConfig struct {
	Kind    string `yaml:"kind"`
	Workers int    `yaml:"workers"`
}

type Config struct {
	Addr                string        `yaml:"addr"`
	Engine              string        `yaml:"engine"`
	DataDir             string        `yaml:"data_dir"`
	CompactionThreshold uint64        `yaml:"compaction_threshold"`
	SyncWrites          bool          `yaml:"sync_writes"`
	Pool                PoolConfig    `yaml:"pool"`
	MetricsAddr         string        `yaml:"metrics_addr"`
	Log                 logger.Config `yaml:"log"`
}

// Default serves the log store in the working directory on DefaultAddr.
func Default() *Config {
	dataDir, err := os.Getwd()
	if err != nil {
		dataDir = "."
	}

	return &Config{
		Addr:                DefaultAddr,
		Engine:              engine.KVS,
		DataDir:             dataDir,
		CompactionThreshold: options.DefaultCompactionThreshold,
		Pool:                PoolConfig{Kind: threadpool.KindShared, Workers: runtime.NumCPU()},
		Log:                 logger.Config{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Environment overrides are applied; the result is not yet validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.OverrideFromEnv()
	return cfg, nil
}

// OverrideFromEnv applies KVS_* environment variables.
func (c *Config) OverrideFromEnv() {
	if addr := os.Getenv("KVS_ADDR"); addr != "" {
		c.Addr = addr
	}
	if eng := os.Getenv("KVS_ENGINE"); eng != "" {
		c.Engine = eng
	}
	if dir := os.Getenv("KVS_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if level := os.Getenv("KVS_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if workers := os.Getenv("KVS_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			c.Pool.Workers = n
		}
	}
}

// RegisterFlags declares the server flags on fs with the defaults as values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagAddr, d.Addr, "Listening address, IP:PORT")
	fs.String(FlagEngine, d.Engine, "Storage engine: kvs or rocks")
	fs.String(FlagDataDir, d.DataDir, "Directory holding the data files")
	fs.String(FlagPool, d.Pool.Kind, "Worker pool: shared or naive")
	fs.Int(FlagWorkers, d.Pool.Workers, "Workers of the shared pool")
	fs.String(FlagMetricsAddr, "", "Serve Prometheus metrics on this address when set")
	fs.String(FlagLogLevel, d.Log.Level, "Log level: debug, info, warn or error")
	fs.Bool(FlagSyncWrites, false, "Fsync after every write")
}

// ApplyFlags copies every flag the user set explicitly into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagAddr:
			c.Addr, err = fs.GetString(f.Name)
		case FlagEngine:
			c.Engine, err = fs.GetString(f.Name)
		case FlagDataDir:
			c.DataDir, err = fs.GetString(f.Name)
		case FlagPool:
			c.Pool.Kind, err = fs.GetString(f.Name)
		case FlagWorkers:
			c.Pool.Workers, err = fs.GetInt(f.Name)
		case FlagMetricsAddr:
			c.MetricsAddr, err = fs.GetString(f.Name)
		case FlagLogLevel:
			c.Log.Level, err = fs.GetString(f.Name)
		case FlagSyncWrites:
			c.SyncWrites, err = fs.GetBool(f.Name)
		}
	})
	return err
}

func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.NewValidationError(err, errors.ErrValidationInvalidData, "addr must be IP:PORT").
			WithField("addr").
			WithProvided(c.Addr)
	}

	if !engine.Valid(c.Engine) {
		return errors.NewValidationError(nil, errors.ErrEngineUnknown, fmt.Sprintf("unknown engine %q", c.Engine)).
			WithField("engine").
			WithProvided(c.Engine).
			WithExpected(engine.Names)
	}
	if c.Engine == engine.Rocks && !rocks.Available {
		return errors.NewValidationError(nil, errors.ErrEngineUnknown, "rocks engine is not compiled in: rebuild with -tags rocksdb").
			WithField("engine").
			WithProvided(c.Engine)
	}

	if c.DataDir == "" {
		return errors.NewRequiredFieldError("data_dir")
	}

	switch c.Pool.Kind {
	case threadpool.KindShared:
		if c.Pool.Workers < 1 {
			return errors.NewFieldRangeError("pool.workers", c.Pool.Workers, 1, 4096)
		}
	case threadpool.KindNaive:
	default:
		return errors.NewValidationError(nil, errors.ErrValidationInvalidData, fmt.Sprintf("unknown pool %q", c.Pool.Kind)).
			WithField("pool.kind").
			WithProvided(c.Pool.Kind).
			WithExpected([]string{threadpool.KindShared, threadpool.KindNaive})
	}

	if c.CompactionThreshold != 0 && c.CompactionThreshold < options.MinCompactionThreshold {
		return errors.NewFieldRangeError(
			"compaction_threshold", c.CompactionThreshold, options.MinCompactionThreshold, uint64(1)<<40,
		)
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return errors.NewValidationError(err, errors.ErrValidationInvalidData, "metrics_addr must be IP:PORT").
				WithField("metrics_addr").
				WithProvided(c.MetricsAddr)
		}
	}

	return nil
}

// StoreOptions converts c into log store options.
func (c *Config) StoreOptions() []options.OptionFunc {
	return []options.OptionFunc{
		options.WithDataDir(c.DataDir),
		options.WithCompactionThreshold(c.CompactionThreshold),
		options.WithSyncWrites(c.SyncWrites),
	}
}
