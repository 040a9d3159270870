// Package slicer implements lazy, single-pass chunking of a request body
// into fixed-size slices, the unit the Archiver consumes one at a time.
package slicer

import (
	"errors"
	"io"
)

// ErrShortRead is surfaced when the underlying reader returns fewer bytes
// than the declared content length promised, without the Slicer buffering
// the entire body to detect it.
var ErrShortRead = errors.New("slicer: short read, body ended before declared content length")

// Slicer yields byte blocks of exactly Size bytes, except the last block
// which is ContentLength mod Size (possibly 0, meaning no final partial
// block). It is lazy: Next reads only what it needs from the underlying
// reader, never buffering ahead.
type Slicer struct {
	r             io.Reader
	size          int
	remaining     int64 // content length not yet consumed; -1 if unknown
	contentLength int64
	done          bool
}

// New builds a Slicer over r, yielding slices of sliceSize bytes. If
// contentLength is negative, the length is unknown and the Slicer reads
// until EOF, treating the final short block (if any) as the last slice.
func New(r io.Reader, sliceSize int, contentLength int64) *Slicer {
	return &Slicer{
		r:             r,
		size:          sliceSize,
		remaining:     contentLength,
		contentLength: contentLength,
	}
}

// Next returns the next slice, io.EOF when the stream is exhausted (after
// the final slice has already been returned), or ErrShortRead if the body
// ended before the declared content length was reached.
func (s *Slicer) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	want := s.size
	if s.contentLength >= 0 {
		if s.remaining <= 0 {
			s.done = true
			return nil, io.EOF
		}
		if s.remaining < int64(want) {
			want = int(s.remaining)
		}
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		if s.contentLength >= 0 {
			s.remaining -= int64(n)
			if s.remaining == 0 {
				s.done = true
			}
		}
		return buf[:n], nil

	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		if s.contentLength >= 0 {
			// The caller promised contentLength bytes and we got fewer.
			return nil, ErrShortRead
		}
		// Unknown length: a short/empty final read ends the stream.
		s.done = true
		if n == 0 {
			return nil, io.EOF
		}
		return buf[:n], nil

	default:
		return nil, err
	}
}

// IsLast reports whether the most recently returned slice was the final
// one (no more data follows). Valid to call only after Next has returned
// successfully at least once.
func (s *Slicer) IsLast() bool {
	return s.done
}
