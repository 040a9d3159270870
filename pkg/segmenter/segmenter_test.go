package segmenter

import (
	"bytes"
	"math/rand"
	"testing"
)

// TestEncodeDecodeRoundTrip verifies the erasure round-trip invariant:
// decode(any K of encode(b)) == b, for a range of sizes and K/N pairs.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		k, n int
		size int
	}{
		{k: 1, n: 1, size: 0},
		{k: 8, n: 10, size: 0},
		{k: 8, n: 10, size: 1},
		{k: 8, n: 10, size: 1024},
		{k: 8, n: 10, size: 1 << 20},
		{k: 3, n: 5, size: 12345},
		{k: 16, n: 32, size: 777},
	}

	rng := rand.New(rand.NewSource(1))

	for _, tc := range cases {
		seg, err := New(tc.k, tc.n)
		if err != nil {
			t.Fatalf("New(%d,%d): %v", tc.k, tc.n, err)
		}

		b := make([]byte, tc.size)
		rng.Read(b)

		shards, _, err := seg.Encode(b)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(shards) != tc.n {
			t.Fatalf("expected %d shards, got %d", tc.n, len(shards))
		}

		// Decode from an arbitrary K-subset (drop the first N-K).
		subset := make(map[int][]byte, tc.k)
		for i := tc.n - tc.k; i < tc.n; i++ {
			subset[i+1] = shards[i]
		}

		got, err := seg.Decode(subset, tc.size)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !bytes.Equal(got, b) {
			t.Fatalf("round trip mismatch for k=%d n=%d size=%d", tc.k, tc.n, tc.size)
		}
	}
}

func TestDecodeInsufficientShards(t *testing.T) {
	seg, err := New(8, 10)
	if err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 4096)
	rand.New(rand.NewSource(2)).Read(b)

	shards, _, err := seg.Encode(b)
	if err != nil {
		t.Fatal(err)
	}

	subset := map[int][]byte{1: shards[0], 2: shards[1]}
	if _, err := seg.Decode(subset, len(b)); err == nil {
		t.Fatal("expected error decoding from fewer than K shards")
	}
}

func TestNewRejectsInvalidKN(t *testing.T) {
	if _, err := New(0, 10); err == nil {
		t.Fatal("expected error for k=0")
	}
	if _, err := New(10, 8); err == nil {
		t.Fatal("expected error for n<k")
	}
}
