// Package segmenter implements K-of-N erasure coding of a single byte
// block, the unit the Archiver calls once per slice and the Retriever
// calls once per phase to reconstruct the original bytes from any K of
// the N shards.
package segmenter

import (
	"bytes"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Segmenter is pure: no I/O, no shared state. One instance is safe for
// concurrent use across slices since reedsolomon encoders are themselves
// stateless after construction.
type Segmenter struct {
	k, n int
	enc  reedsolomon.Encoder
}

// New builds a Segmenter for the given K (data shards) and N (total
// shards, data+parity). K must be >= 1 and N must be >= K.
func New(k, n int) (*Segmenter, error) {
	if k < 1 {
		return nil, fmt.Errorf("segmenter: k must be >= 1, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("segmenter: n (%d) must be >= k (%d)", n, k)
	}

	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, fmt.Errorf("segmenter: %w", err)
	}

	return &Segmenter{k: k, n: n, enc: enc}, nil
}

// K returns the minimum shard count needed to decode.
func (s *Segmenter) K() int { return s.k }

// N returns the total shard count produced per block.
func (s *Segmenter) N() int { return s.n }

// Encode splits b into K data shards (zero-padded to a common length),
// computes N-K parity shards, and returns all N in segment-number order
// (shard i is destined for the node at index i-1 in the node list).
// zfecPaddingSize is the number of zero-padding bytes appended after b
// to fill the K data shards (it can reach into more than one shard when
// b is shorter than K bytes), so the caller can report it out-of-band, per the node
// wire contract.
func (s *Segmenter) Encode(b []byte) (shards [][]byte, zfecPaddingSize int, err error) {
	shardSize := (len(b) + s.k - 1) / s.k
	if shardSize == 0 {
		// Empty input is legal: N empty-after-trim shards terminate a
		// streamed write whose body length is a multiple of the slice
		// size.
		shards = make([][]byte, s.n)
		for i := range shards {
			shards[i] = []byte{}
		}
		return shards, 0, nil
	}

	padded := make([]byte, shardSize*s.k)
	copy(padded, b)
	zfecPaddingSize = len(padded) - len(b)

	data := make([][]byte, s.n)
	for i := 0; i < s.k; i++ {
		data[i] = padded[i*shardSize : (i+1)*shardSize]
	}
	for i := s.k; i < s.n; i++ {
		data[i] = make([]byte, shardSize)
	}

	if err := s.enc.Encode(data); err != nil {
		return nil, 0, fmt.Errorf("segmenter: encode: %w", err)
	}

	return data, zfecPaddingSize, nil
}

// Decode reconstructs the original block from a subset of shards keyed by
// 1-based segment number. originalSize is the exact byte length to trim
// the reconstructed (shard-size-aligned) buffer down to; zfecPaddingSize
// is ignored here in favor of originalSize since the latter is always
// known by the caller (it is carried in the retrieve reply / archive
// final message).
func (s *Segmenter) Decode(shards map[int][]byte, originalSize int) ([]byte, error) {
	if len(shards) < s.k {
		return nil, fmt.Errorf("segmenter: need at least %d shards, have %d", s.k, len(shards))
	}

	if originalSize == 0 {
		return []byte{}, nil
	}

	var shardSize int
	for _, sh := range shards {
		shardSize = len(sh)
		break
	}

	data := make([][]byte, s.n)
	for segNum, sh := range shards {
		idx := segNum - 1
		if idx < 0 || idx >= s.n {
			return nil, fmt.Errorf("segmenter: segment number %d out of range [1,%d]", segNum, s.n)
		}
		data[idx] = sh
	}

	if err := s.enc.Reconstruct(data); err != nil {
		return nil, fmt.Errorf("segmenter: reconstruct: %w", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, shardSize*s.k))
	for i := 0; i < s.k; i++ {
		buf.Write(data[i])
	}

	out := buf.Bytes()
	if originalSize > len(out) {
		return nil, fmt.Errorf("segmenter: original size %d exceeds reconstructed length %d", originalSize, len(out))
	}

	return out[:originalSize], nil
}
