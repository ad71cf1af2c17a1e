// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bufstream adapts a whole-block, alignment-strict block.Device
// into an arbitrary byte-granular io.Reader/io.Writer/io.Seeker, handling
// the read-modify-write cycle with a single-block write-back cache and a
// zero-copy fast path for callers whose buffers are already block-sized
// and aligned.
package bufstream

import (
	"errors"
	"fmt"
	"io"
	"math"

	pkgerrors "github.com/pkg/errors"

	"github.com/usbarmory/sdblock/block"
	"github.com/usbarmory/sdblock/internal/ilog"
)

// noBlockCached is the sentinel stored in Stream.cached when the
// internal buffer does not hold any device block.
const noBlockCached = math.MaxUint32

// ErrIO is the sentinel every error bubbling up from the wrapped
// block.Device is wrapped around, so callers can test with errors.Is
// regardless of the device-specific error value pkg/errors attached a
// stack trace to.
var ErrIO = errors.New("bufstream: io")

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(fmt.Errorf("%w: %v", ErrIO, err), "bufstream")
}

// Stream is a byte-granular stream backed by a block.Device, with a
// one-block write-back cache. The zero value is not usable; construct with
// New.
type Stream struct {
	inner  block.Device
	buffer []byte
	cached uint32
	cursor uint64
	dirty  bool
	log    ilog.Logger
	rec    recorder
}

// recorder is the subset of diag.Recorder bufstream needs, kept local so
// this package does not import diag (which would pull debugcharts into
// every build that merely imports bufstream).
type recorder interface {
	CacheHit()
	CacheMiss()
	CacheFlush()
}

// Option configures a Stream at construction time.
type Option func(*Stream)

// WithLogger installs a logger for trace/debug detail on the cache
// reload/flush path.
func WithLogger(l ilog.Logger) Option {
	return func(s *Stream) { s.log = ilog.Default(l) }
}

// WithRecorder installs a diagnostics recorder. See package diag.
func WithRecorder(r recorder) Option {
	return func(s *Stream) {
		if r != nil {
			s.rec = r
		}
	}
}

// New wraps inner in a Stream. The internal cache buffer is allocated
// through block.NewAlignedBuffer so it always satisfies inner's alignment
// requirement.
func New(inner block.Device, opts ...Option) *Stream {
	s := &Stream{
		inner:  inner,
		buffer: block.NewAlignedBuffer(inner.BlockSize(), inner.Align()),
		cached: noBlockCached,
		log:    ilog.Nop,
		rec:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntoInner returns the wrapped device. The Stream must not be used again
// afterward.
func (s *Stream) IntoInner() block.Device {
	return s.inner
}

func (s *Stream) blockSize() uint64 { return uint64(s.inner.BlockSize()) }

func (s *Stream) blockStart() uint32 {
	b := s.cursor / s.blockSize()
	if b > math.MaxUint32 {
		panic("bufstream: block address exceeds 32 bits")
	}
	return uint32(b)
}

func (s *Stream) blockStartAddr() uint64 {
	return uint64(s.blockStart()) * s.blockSize()
}

// directModeOK reports whether buf/cursor satisfy the three fast-path
// conditions: buf is a non-zero multiple of the block size, buf starts at
// an address aligned to the device's alignment, and the cursor already
// sits on a block boundary.
func (s *Stream) directModeOK(buf []byte) bool {
	size := s.inner.BlockSize()
	return len(buf) > 0 &&
		len(buf)%size == 0 &&
		block.CheckAligned(buf, s.inner.Align()) &&
		s.cursor%s.blockSize() == 0
}

// checkCache reloads the cache buffer if the cursor has moved to a
// different block than the one currently resident, flushing a dirty
// buffer first.
func (s *Stream) checkCache() error {
	block := s.blockStart()
	if block == s.cached {
		s.rec.CacheHit()
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.rec.CacheMiss()
	if err := s.inner.Read(block, s.buffer); err != nil {
		return wrapIO(err)
	}
	s.cached = block
	s.log.Trace("bufstream: cache reload", "block", block)
	return nil
}

// flushLocked writes the cache buffer back if dirty. Callers must already
// hold whatever external synchronization the Stream requires (none, today
// — Stream is not safe for concurrent use from multiple goroutines, the
// same single-writer assumption makes for the whole stack).
func (s *Stream) flushLocked() error {
	if !s.dirty {
		return nil
	}
	s.dirty = false
	if err := s.inner.Write(s.cached, s.buffer); err != nil {
		// The dirty flag is not rolled back on failure, so a
		// subsequent Flush can retry.
		s.dirty = true
		return wrapIO(err)
	}
	s.rec.CacheFlush()
	return nil
}

// Read implements io.Reader.
func (s *Stream) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	total := 0
	for total < len(buf) {
		remaining := buf[total:]

		if s.directModeOK(remaining) {
			block := s.blockStart()
			// If the cache currently holds unflushed writes to a
			// block this direct transfer is about to read, flush
			// first so the direct read observes them — bypassing
			// the cache must never return data staler than what
			// the cache itself would have returned.
			if s.overlapsCache(block, len(remaining)/s.inner.BlockSize()) {
				if err := s.flushLocked(); err != nil {
					return total, err
				}
			}
			if err := s.inner.Read(block, remaining); err != nil {
				return total, wrapIO(err)
			}
			s.cursor += uint64(len(remaining))
			total += len(remaining)
			continue
		}

		if err := s.checkCache(); err != nil {
			return total, err
		}

		blockStart := s.blockStartAddr()
		bufOffset := int(s.cursor - blockStart)
		end := bufOffset + len(remaining)
		if end > len(s.buffer) {
			end = len(s.buffer)
		}
		n := end - bufOffset
		if n <= 0 {
			// Not reached in practice: bufOffset always lies
			// inside the one-block buffer and remaining is
			// non-empty, so n is at least 1.
			break
		}
		copy(remaining[:n], s.buffer[bufOffset:end])
		s.cursor += uint64(n)
		total += n
	}

	return total, nil
}

// Write implements io.Writer.
func (s *Stream) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	total := 0
	for total < len(buf) {
		remaining := buf[total:]

		if s.directModeOK(remaining) {
			block := s.blockStart()
			if s.overlapsCache(block, len(remaining)/s.inner.BlockSize()) {
				s.invalidateCache()
			}
			if err := s.inner.Write(block, remaining); err != nil {
				return total, wrapIO(err)
			}
			s.cursor += uint64(len(remaining))
			total += len(remaining)
			continue
		}

		if err := s.checkCache(); err != nil {
			return total, err
		}

		blockStart := s.blockStartAddr()
		bufOffset := int(s.cursor - blockStart)
		blockSize := s.inner.BlockSize()
		end := bufOffset + len(remaining)
		if end > blockSize {
			end = blockSize
		}
		n := end - bufOffset
		if n <= 0 {
			break
		}
		copy(s.buffer[bufOffset:end], remaining[:n])
		s.dirty = true

		// Policy: as soon as a dirty block is fully populated, flush
		// it immediately, so a sequential-write
		// workload never needs an extra eviction when the cursor
		// moves off the block.
		if end == blockSize {
			s.log.Trace("bufstream: flushing full block", "block", s.cached)
			if err := s.flushLocked(); err != nil {
				return total, err
			}
		}

		s.cursor += uint64(n)
		total += n
	}

	return total, nil
}

// overlapsCache reports whether a direct-mode transfer of numBlocks blocks
// starting at blockAddr would cover the currently cached block.
func (s *Stream) overlapsCache(blockAddr uint32, numBlocks int) bool {
	if s.cached == noBlockCached {
		return false
	}
	lo := uint64(blockAddr)
	hi := lo + uint64(numBlocks)
	c := uint64(s.cached)
	return c >= lo && c < hi
}

// invalidateCache drops the cached block without writing it back. This is
// the resolution of the open question on direct-mode writes to the
// cached block: a direct-mode transfer has already superseded whatever the
// cache held, so there is nothing correct to flush — flushing here would
// silently clobber data the caller just wrote via the fast path.
func (s *Stream) invalidateCache() {
	s.cached = noBlockCached
	s.dirty = false
}

// Flush writes the cache buffer back if dirty. It does not invalidate the
// cache: the buffer continues to mirror the cached block's
// on-device contents afterward.
func (s *Stream) Flush() error {
	return s.flushLocked()
}

// Seek implements io.Seeker. It only updates the cursor; divergence
// between the cached block and cursor/BlockSize is detected lazily on the
// next Read/Write.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(s.cursor) + offset
	case io.SeekEnd:
		size, err := s.inner.Size()
		if err != nil {
			return 0, wrapIO(err)
		}
		next = int64(size) + offset
	default:
		return 0, fmt.Errorf("bufstream: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("bufstream: negative seek result %d", next)
	}
	s.cursor = uint64(next)
	return next, nil
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()   {}
func (nopRecorder) CacheMiss()  {}
func (nopRecorder) CacheFlush() {}
