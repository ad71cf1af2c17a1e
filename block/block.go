// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package block defines the whole-block, alignment-strict storage
// capability that bufstream.Stream wraps and that sdspi.Card implements.
//
// Block addresses are zero-based block indices: the byte offset B lives in
// block B/SIZE at intra-block offset B%SIZE, where SIZE is Device.BlockSize.
package block

import (
	"errors"
	"unsafe"
)

// Device is a fixed block-size, alignment-strict storage peripheral. Reads
// and writes always move a whole number of blocks, never partial blocks.
type Device interface {
	// BlockSize reports the number of bytes per block. Constant for the
	// lifetime of the device.
	BlockSize() int

	// Align reports the required start-address alignment, in bytes, of
	// buffers passed to Read and Write. Always a power of two and a
	// divisor of BlockSize, so that k consecutive blocks form a
	// contiguous region with no padding between them.
	Align() int

	// Read fills blocks, a buffer whose length must be a non-zero
	// multiple of BlockSize, with the contents of len(blocks)/BlockSize
	// blocks starting at the zero-based blockAddr.
	Read(blockAddr uint32, blocks []byte) error

	// Write persists blocks, a buffer whose length must be a non-zero
	// multiple of BlockSize, to len(blocks)/BlockSize blocks starting at
	// the zero-based blockAddr.
	Write(blockAddr uint32, blocks []byte) error

	// Size reports the total capacity of the device, in bytes.
	Size() (uint64, error)
}

// ErrMisalignedBuffer describes a buffer whose start address does not
// satisfy a device's required alignment. CheckAligned reports that
// condition as a bool; no function in this package returns this error.
var ErrMisalignedBuffer = errors.New("block: buffer is not aligned")

// ErrNotWholeBlocks is returned when a buffer's length is not a non-zero
// multiple of the device's block size.
var ErrNotWholeBlocks = errors.New("block: buffer is not a whole number of blocks")

// CheckAligned reports whether buf's first byte sits at an address that is
// a multiple of align. Go has no way to declare a buffer's alignment in its
// type, so the alignment contract is enforced here, at the boundary where a
// byte buffer is about to be reinterpreted as block-sized chunks.
//
// An empty buf is trivially aligned.
func CheckAligned(buf []byte, align int) bool {
	if len(buf) == 0 {
		return true
	}
	if align <= 1 {
		return true
	}
	return uintptr(unsafe.Pointer(&buf[0]))%uintptr(align) == 0
}

// NumBlocks validates that buf is a non-zero whole number of blockSize
// blocks and returns that count.
func NumBlocks(buf []byte, blockSize int) (int, error) {
	if blockSize <= 0 {
		return 0, ErrNotWholeBlocks
	}
	if len(buf) == 0 || len(buf)%blockSize != 0 {
		return 0, ErrNotWholeBlocks
	}
	return len(buf) / blockSize, nil
}

// NewAlignedBuffer allocates a buffer of exactly n bytes whose start
// address is guaranteed to satisfy the given alignment: over-allocate by
// align-1 bytes and slice forward to the first aligned offset.
func NewAlignedBuffer(n, align int) []byte {
	if align <= 1 {
		return make([]byte, n)
	}
	buf := make([]byte, n+align-1)
	off := (-uintptr(unsafe.Pointer(&buf[0]))) % uintptr(align)
	return buf[off : off+uintptr(n)]
}
