// Package archiver implements fan-out write sequencing to N storage
// nodes, per spec §4.6. An Archiver instance is per-request and
// single-use: one object version, one pass over its slices.
package archiver

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/datawriter"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
)

// Archiver sequences archive_start/archive_next/archive_final calls
// across all N data writers for one (collection_id, key, timestamp).
// Every phase must complete on all N writers before the next phase is
// sent to any of them.
type Archiver struct {
	writers      []*datawriter.DataWriter
	collectionID int64
	key          string
	timestamp    int64

	sequence int
}

// New constructs an Archiver over the full writer set for one archive
// transaction. User metadata is passed to ArchiveFinal, not here.
func New(writers []*datawriter.DataWriter, collectionID int64, key string, timestamp int64) *Archiver {
	return &Archiver{
		writers:      writers,
		collectionID: collectionID,
		key:          key,
		timestamp:    timestamp,
	}
}

// ArchiveSlice sends one slice (N shards, one per writer) as archive_start
// on the first call and archive_next on every subsequent call. It
// returns once ALL N writers have acknowledged; if any fails or times
// out, ErrArchiveFailed is returned and in-flight siblings are cancelled.
func (a *Archiver) ArchiveSlice(ctx context.Context, timeout time.Duration, shards [][]byte, segmentSize int64) error {
	if len(shards) != len(a.writers) {
		return fmt.Errorf("archiver: %d shards for %d writers", len(shards), len(a.writers))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seq := a.sequence
	err := a.fanOut(ctx, len(a.writers), func(ctx context.Context, i int) error {
		w := a.writers[i]
		var sendErr error
		if seq == 0 {
			_, sendErr = w.ArchiveStart(ctx, a.collectionID, a.key, a.timestamp, segmentSize, shards[i])
		} else {
			_, sendErr = w.ArchiveNext(ctx, a.collectionID, a.key, a.timestamp, seq, shards[i])
		}
		return sendErr
	})
	if err != nil {
		return err
	}

	a.sequence++
	return nil
}

// ArchiveFinal sends the last slice to every writer carrying whole-file
// checksums and meta, and returns the N reply sizes the accounting
// service should credit back for the prior version.
func (a *Archiver) ArchiveFinal(ctx context.Context, timeout time.Duration, shards [][]byte, totalSize int64, fileAdler32 uint32, fileMD5 []byte, meta map[string]string) ([]int64, error) {
	if len(shards) != len(a.writers) {
		return nil, fmt.Errorf("archiver: %d shards for %d writers", len(shards), len(a.writers))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sizes := make([]int64, len(a.writers))
	seq := a.sequence

	err := a.fanOut(ctx, len(a.writers), func(ctx context.Context, i int) error {
		w := a.writers[i]
		reply, sendErr := w.ArchiveFinal(ctx, a.collectionID, a.key, a.timestamp, seq, totalSize, fileAdler32, fileMD5, meta, shards[i])
		if sendErr != nil {
			return sendErr
		}
		sizes[i] = reply.Control.TotalSize
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.sequence++
	return sizes, nil
}

// fanOut runs fn(ctx, i) for i in [0,n) concurrently and requires all to
// succeed. errgroup.WithContext cancels the shared context as soon as
// the first goroutine returns an error, so siblings stop waiting and
// their in-flight replies are discarded (RPCs may still complete on the
// wire, but nothing consumes the result).
func (a *Archiver) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := fn(gctx, i); err != nil {
				logger.Warn("archive phase failed on writer", "writer_index", i, "collection_id", a.collectionID, "key", a.key, "error", err)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return gwerrors.ErrArchiveFailed
	}
	return nil
}
