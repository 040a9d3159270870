// Package destroyer implements tombstone fan-out to N storage nodes, per
// spec §4.8.
package destroyer

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/datawriter"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// SizeLookup resolves the most-recent local-index row size for
// (collectionID, key), so Destroy can report the byte count accounting
// should decrement. It returns 0, nil if no prior row exists.
type SizeLookup func(ctx context.Context, collectionID int64, key string) (int64, error)

// Destroyer fans out destroy_key to all N writers for one
// (collection_id, key, timestamp). A single Destroyer instance refuses a
// second concurrent Destroy call.
type Destroyer struct {
	writers      []*datawriter.DataWriter
	collectionID int64
	key          string
	timestamp    int64
	lookupSize   SizeLookup

	inProgress atomic.Bool
}

// New constructs a Destroyer over the full writer set for one destroy
// transaction.
func New(writers []*datawriter.DataWriter, collectionID int64, key string, timestamp int64, lookupSize SizeLookup) *Destroyer {
	return &Destroyer{
		writers:      writers,
		collectionID: collectionID,
		key:          key,
		timestamp:    timestamp,
		lookupSize:   lookupSize,
	}
}

// Destroy looks up the pre-delete size for accounting, then fans out
// destroy_key to all N writers in parallel. All N must succeed;
// otherwise ErrDestroyFailed. Returns the size the caller should
// decrement from accounting (0 if no prior row existed).
func (d *Destroyer) Destroy(ctx context.Context, timeout time.Duration) (removedBytes int64, err error) {
	if !d.inProgress.CompareAndSwap(false, true) {
		return 0, gwerrors.ErrAlreadyInProgress
	}
	defer d.inProgress.Store(false)

	removedBytes, err = d.lookupSize(ctx, d.collectionID, d.key)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range d.writers {
		i, w := i, w
		g.Go(func() error {
			if _, sendErr := w.DestroyKey(gctx, d.collectionID, d.key, d.timestamp); sendErr != nil {
				logger.Warn("destroy phase failed on writer", "writer_index", i, "collection_id", d.collectionID, "key", d.key, "error", sendErr)
				return sendErr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, gwerrors.ErrDestroyFailed
	}

	return removedBytes, nil
}
