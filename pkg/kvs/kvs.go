// Package kvs opens the storage engine for a data directory. The directory
// remembers which engine created it through a marker file, and opening it
// with another engine fails.
package kvs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/engine/logstore"
	"github.com/iamBelugaa/kvs/internal/engine/rocks"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/filesys"
	"github.com/iamBelugaa/kvs/pkg/options"
	"github.com/iamBelugaa/kvs/pkg/seginfo"
)

// MarkerFile names the file recording the engine of a data directory.
const MarkerFile = "engine"

// Open opens engine name over the configured data directory.
func Open(ctx context.Context, name string, log *zap.SugaredLogger, opts ...options.OptionFunc) (engine.Engine, error) {
	o := options.Apply(opts...)

	if !engine.Valid(name) {
		return nil, errors.NewValidationError(
			nil, errors.ErrEngineUnknown,
			fmt.Sprintf("unknown engine %q, expected one of %s", name, strings.Join(engine.Names, ", ")),
		).
			WithField("engine").
			WithProvided(name).
			WithExpected(engine.Names)
	}

	if err := filesys.CreateDir(o.DataDir, 0755); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, o.DataDir)
	}

	if err := checkMarker(o.DataDir, name); err != nil {
		log.Errorw("Data directory belongs to another engine", "dataDir", o.DataDir, "requested", name, "error", err)
		return nil, err
	}

	var (
		eng engine.Engine
		err error
	)
	switch name {
	case engine.KVS:
		eng, err = logstore.Open(ctx, log, &o)
	case engine.Rocks:
		eng, err = rocks.Open(ctx, log, &o)
	}
	if err != nil {
		return nil, err
	}

	if err := filesys.WriteFileAtomic(filepath.Join(o.DataDir, MarkerFile), []byte(name), 0644); err != nil {
		closeErr := eng.Close()
		return nil, errors.NewStorageError(err, errors.ErrIOWriteFailed, "Failed to write engine marker").
			WithPath(filepath.Join(o.DataDir, MarkerFile)).
			WithDetail("closeError", closeErr)
	}

	log.Infow("Engine opened", "engine", name, "dataDir", o.DataDir)
	return eng, nil
}

// Detect returns the engine that owns dir, or "" for a fresh directory.
// Directories without a marker are recognized by their contents.
func Detect(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	switch {
	case err == nil:
		return strings.TrimSpace(string(data)), nil
	case !os.IsNotExist(err):
		return "", errors.NewStorageError(err, errors.ErrIOReadFailed, "Failed to read engine marker").
			WithPath(filepath.Join(dir, MarkerFile))
	}

	gens, err := seginfo.ListGenerations(dir)
	if err != nil {
		return "", err
	}
	if len(gens) > 0 {
		return engine.KVS, nil
	}

	if _, err := os.Stat(filepath.Join(dir, "CURRENT")); err == nil {
		return engine.Rocks, nil
	}
	return "", nil
}

func checkMarker(dir, name string) error {
	owner, err := Detect(dir)
	if err != nil {
		return err
	}
	if owner == "" || owner == name {
		return nil
	}

	return errors.NewValidationError(
		errors.ErrEngineMismatch, errors.ErrEngineMarkerMismatch,
		fmt.Sprintf("data directory %s was created by engine %q, cannot open it with %q", dir, owner, name),
	).
		WithField("engine").
		WithProvided(name).
		WithExpected(owner)
}
