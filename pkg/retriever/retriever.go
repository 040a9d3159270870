// Package retriever implements fan-in read sequencing from at least K of
// N data readers, per spec §4.7.
package retriever

import (
	"context"
	"sync"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/datareader"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

// SliceResult maps 1-based segment number to the shard bytes for one
// slice; it has at least K entries.
type SliceResult map[int][]byte

// StartResult is the outcome of the retrieve_start fan-out: the first
// slice result plus the object-level metadata from the winning quorum.
type StartResult struct {
	Slice0 SliceResult
	Info   nodeclient.StartInfo
}

// Retriever drives the three retrieve phases against N readers, emitting
// one SliceResult per phase from exactly the K readers that succeeded on
// start.
type Retriever struct {
	readers      []*datareader.DataReader
	collectionID int64
	key          string
	k            int

	// quorum is the subset of readers (by index into readers) that
	// succeeded on start and are polled for every subsequent phase.
	quorum    []int
	timestamp int64
}

// New constructs a Retriever over the full reader set. k is the minimum
// number of readers that must succeed per phase.
func New(readers []*datareader.DataReader, collectionID int64, key string, k int) *Retriever {
	return &Retriever{readers: readers, collectionID: collectionID, key: key, k: k}
}

type startOutcome struct {
	idx      int
	reply    *nodeclient.Reply
	notFound bool
	err      error
}

// Start fires retrieve_start to all N readers in parallel, collects
// successes until K of them agree on one timestamp, and returns once that
// quorum is reached; outstanding sends are cancelled best-effort. It fails with ErrNotFound if more than
// N-K readers report the key absent or tombstoned, or ErrRetrieveFailed
// if fewer than K readers respond at all.
func (r *Retriever) Start(ctx context.Context, timeout time.Duration) (*StartResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n := len(r.readers)

	results := make(chan startOutcome, n)

	fanCtx, fanCancel := context.WithCancel(ctx)
	defer fanCancel()

	for i := range r.readers {
		i := i
		go func() {
			reply, err := r.readers[i].RetrieveStart(fanCtx, r.collectionID, r.key)
			if err != nil {
				results <- startOutcome{idx: i, err: err}
				return
			}
			if reply.NotFound() {
				results <- startOutcome{idx: i, notFound: true}
				return
			}
			results <- startOutcome{idx: i, reply: reply}
		}()
	}

	var succeeded []startOutcome
	notFoundCount := 0
	perTimestamp := make(map[int64]int)
	quorumReached := false

	for received := 0; received < n; received++ {
		o := <-results
		switch {
		case o.notFound:
			notFoundCount++
		case o.err != nil:
			// transport/timeout failure, counted only via `received`
		default:
			succeeded = append(succeeded, o)
			perTimestamp[o.reply.Control.Timestamp]++
			quorumReached = perTimestamp[o.reply.Control.Timestamp] >= r.k
		}

		if quorumReached {
			fanCancel()
			break
		}
		if notFoundCount > n-r.k {
			fanCancel()
			return nil, gwerrors.ErrNotFound
		}
		if n-received-1 < r.k-len(succeeded) {
			// Not enough outstanding readers left to ever reach quorum.
			fanCancel()
			return nil, gwerrors.ErrRetrieveFailed
		}
	}

	if len(succeeded) < r.k {
		return nil, gwerrors.ErrRetrieveFailed
	}

	info, slice0, quorum, err := reconcileTimestamps(succeeded, r.k)
	if err != nil {
		return nil, err
	}

	if info.IsTombstone {
		return nil, gwerrors.ErrNotFound
	}

	r.quorum = quorum
	r.timestamp = info.Timestamp

	return &StartResult{Slice0: slice0, Info: info}, nil
}

// reconcileTimestamps applies majority-timestamp version coherence:
// minority replies (stale versions under-replicated relative to the
// winning timestamp) are treated as if they had failed.
func reconcileTimestamps(succeeded []startOutcome, k int) (nodeclient.StartInfo, SliceResult, []int, error) {
	counts := make(map[int64]int)
	for _, o := range succeeded {
		counts[o.reply.Control.Timestamp]++
	}

	var winner int64
	best := -1
	for ts, count := range counts {
		if count > best || (count == best && ts > winner) {
			winner, best = ts, count
		}
	}

	var quorum []int
	slice0 := make(SliceResult, k)
	var info nodeclient.StartInfo
	haveInfo := false

	for _, o := range succeeded {
		if o.reply.Control.Timestamp != winner {
			continue
		}
		quorum = append(quorum, o.idx)
		slice0[o.reply.Control.SegmentNum] = o.reply.Body
		if !haveInfo {
			c := o.reply.Control
			info = nodeclient.StartInfo{
				Timestamp:    c.Timestamp,
				IsTombstone:  c.IsTombstone,
				SegmentCount: c.SegmentCount,
				SliceSize:    c.SegmentSize,
				TotalSize:    c.TotalSize,
				FileAdler32:  c.FileAdler32,
				FileMD5:      c.FileMD5,
				ShardAdler32: c.ShardAdler32,
				ShardMD5:     c.ShardMD5,
			}
			haveInfo = true
		}
	}

	if len(quorum) < k {
		return nodeclient.StartInfo{}, nil, nil, gwerrors.ErrRetrieveFailed
	}

	return info, slice0, quorum, nil
}

// Next pulls sequence k from exactly the quorum readers that succeeded
// on Start, using retrieve_next for intermediate phases and
// retrieve_final for the last. It fails with ErrRetrieveFailed if fewer
// than K of the quorum respond.
func (r *Retriever) Next(ctx context.Context, timeout time.Duration, sequence int, final bool) (SliceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		segmentNum int
		body       []byte
		err        error
	}

	var wg sync.WaitGroup
	results := make(chan outcome, len(r.quorum))
	wg.Add(len(r.quorum))

	for _, idx := range r.quorum {
		idx := idx
		go func() {
			defer wg.Done()
			reader := r.readers[idx]
			var reply *nodeclient.Reply
			var err error
			if final {
				reply, err = reader.RetrieveFinal(ctx, r.collectionID, r.key, r.timestamp, sequence)
			} else {
				reply, err = reader.RetrieveNext(ctx, r.collectionID, r.key, r.timestamp, sequence)
			}
			if err != nil {
				results <- outcome{err: err}
				return
			}
			results <- outcome{segmentNum: reply.Control.SegmentNum, body: reply.Body}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	slice := make(SliceResult, r.k)
	for o := range results {
		if o.err != nil {
			logger.Warn("retrieve phase reader failed", "collection_id", r.collectionID, "key", r.key, "sequence", sequence, "error", o.err)
			continue
		}
		slice[o.segmentNum] = o.body
	}

	if len(slice) < r.k {
		return nil, gwerrors.ErrRetrieveFailed
	}
	return slice, nil
}
