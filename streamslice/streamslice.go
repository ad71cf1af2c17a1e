// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package streamslice presents a bounded window [start, start+size) of a
// seekable byte stream as an independently-cursored stream of length size.
package streamslice

import (
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// Inner is the byte-stream capability a Stream wraps: read, write, seek,
// and flush, exactly what bufstream.Stream (and any plain file) provides.
type Inner interface {
	io.Reader
	io.Writer
	io.Seeker
	Flush() error
}

// ErrWriteZero is returned when a non-empty write finds no room left in
// the slice (the cursor is at its bound), or when the wrapped stream
// reports writing zero bytes for a non-zero input — the inner stream
// violating io.Writer's contract.
var ErrWriteZero = errors.New("streamslice: write returned 0 for non-zero input")

// InvalidSeekError is returned by Seek when the computed offset is
// negative or exceeds the slice's size.
type InvalidSeekError struct {
	Offset int64
}

func (e *InvalidSeekError) Error() string {
	return fmt.Sprintf("streamslice: invalid seek to offset %d", e.Offset)
}

// Stream is a bounded view over Inner, in [start, start+size).
type Stream struct {
	inner  Inner
	start  uint64
	size   uint64
	cursor uint64
}

// New seeks inner to start and returns a Stream covering
// [start, end). end must be >= start.
func New(inner Inner, start, end uint64) (*Stream, error) {
	if end < start {
		return nil, fmt.Errorf("streamslice: end %d precedes start %d", end, start)
	}
	if _, err := inner.Seek(int64(start), io.SeekStart); err != nil {
		return nil, pkgerrors.Wrap(err, "streamslice: seek to start")
	}
	return &Stream{inner: inner, start: start, size: end - start}, nil
}

// IntoInner returns the wrapped stream. The Stream must not be used again
// afterward.
func (s *Stream) IntoInner() Inner {
	return s.inner
}

// Read implements io.Reader. It never reads past the slice's bound; a read
// with the cursor at the bound returns io.EOF.
func (s *Stream) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n := min(s.size-s.cursor, uint64(len(buf)))
	if n == 0 {
		return 0, io.EOF
	}
	read, err := s.inner.Read(buf[:n])
	s.cursor += uint64(read)
	if err != nil && err != io.EOF {
		return read, pkgerrors.Wrap(err, "streamslice: read")
	}
	return read, err
}

// Write implements io.Writer. Writes are silently truncated to the slice's
// remaining bound; truncation to zero length with non-empty input is a
// failure (ErrWriteZero), as is the inner stream reporting zero bytes
// written for a non-zero request.
func (s *Stream) Write(buf []byte) (int, error) {
	n := min(s.size-s.cursor, uint64(len(buf)))
	if n == 0 && len(buf) > 0 {
		return 0, ErrWriteZero
	}
	written, err := s.inner.Write(buf[:n])
	if err != nil {
		return written, pkgerrors.Wrap(err, "streamslice: write")
	}
	if written == 0 && n > 0 {
		return 0, ErrWriteZero
	}
	s.cursor += uint64(written)
	return written, nil
}

// Flush delegates to the inner stream.
func (s *Stream) Flush() error {
	if err := s.inner.Flush(); err != nil {
		return pkgerrors.Wrap(err, "streamslice: flush")
	}
	return nil
}

// Seek implements io.Seeker, bounding the result to [0, size].
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(s.cursor) + offset
	case io.SeekEnd:
		next = int64(s.size) + offset
	default:
		return 0, fmt.Errorf("streamslice: invalid whence %d", whence)
	}
	if next < 0 || uint64(next) > s.size {
		return 0, &InvalidSeekError{Offset: next}
	}
	if _, err := s.inner.Seek(int64(s.start)+next, io.SeekStart); err != nil {
		return 0, pkgerrors.Wrap(err, "streamslice: seek")
	}
	s.cursor = uint64(next)
	return next, nil
}

