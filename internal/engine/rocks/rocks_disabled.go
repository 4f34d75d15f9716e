//go:build !rocksdb

package rocks

import (
	"context"

	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/pkg/errors"
	"github.com/iamBelugaa/kvs/pkg/options"
)

// Available reports whether this binary was built with RocksDB support.
const Available = false

// Open fails: the binary was built without the rocksdb tag.
func Open(ctx context.Context, log *zap.SugaredLogger, opts *options.Options) (engine.Engine, error) {
	log.Errorw("RocksDB engine requested but not compiled in", "dataDir", opts.DataDir)
	return nil, errors.NewValidationError(
		nil, errors.ErrEngineUnknown, "rocks engine is not available: rebuild with -tags rocksdb",
	).
		WithField("engine").
		WithProvided(engine.Rocks)
}
