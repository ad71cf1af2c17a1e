package bufstream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/sdblock/block"
)

// memDevice is a byte-addressable, in-memory block.Device used as the
// reference oracle for cache behavior: a Stream operation sequence
// applied to a memDevice must match the same sequence applied to the
// byte slice directly.
type memDevice struct {
	data      []byte
	blockSize int
	align     int
	reads     int
	writes    int
}

func newMemDevice(data []byte, blockSize int) *memDevice {
	return &memDevice{data: data, blockSize: blockSize, align: 4}
}

func (m *memDevice) BlockSize() int { return m.blockSize }
func (m *memDevice) Align() int     { return m.align }

func (m *memDevice) Read(blockAddr uint32, blocks []byte) error {
	m.reads++
	start := uint64(blockAddr) * uint64(m.blockSize)
	if start+uint64(len(blocks)) > uint64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(blocks, m.data[start:start+uint64(len(blocks))])
	return nil
}

func (m *memDevice) Write(blockAddr uint32, blocks []byte) error {
	m.writes++
	start := uint64(blockAddr) * uint64(m.blockSize)
	if start+uint64(len(blocks)) > uint64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(m.data[start:start+uint64(len(blocks))], blocks)
	return nil
}

func (m *memDevice) Size() (uint64, error) {
	return uint64(len(m.data)), nil
}

func repeat(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestReadAcrossBlocks(t *testing.T) {
	data := append(repeat('A', 512), repeat('B', 512)...)
	dev := newMemDevice(data, 512)
	s := New(dev)

	buf := make([]byte, 128)
	_, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, repeat('A', 128), buf)

	buf = make([]byte, 128)
	_, err = s.Seek(512, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, repeat('B', 128), buf)

	buf = make([]byte, 128)
	_, err = s.Seek(448, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, append(repeat('A', 64), repeat('B', 64)...), buf)
}

func TestWriteSeekWrite(t *testing.T) {
	data := repeat('A', 2048)
	dev := newMemDevice(data, 512)
	s := New(dev)

	_, err := s.Seek(524, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write(repeat('B', 512))
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 256)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, repeat('A', 256), buf)

	_, err = s.Seek(1036, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write(repeat('C', 512))
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	want := append(append(append(repeat('A', 524), repeat('B', 512)...), repeat('C', 512)...), repeat('A', 500)...)
	assert.Equal(t, want, dev.data)
}

func TestWriteIntoZeroedDevice(t *testing.T) {
	dev := newMemDevice(make([]byte, 2048), 512)
	s := New(dev)

	_, err := s.Seek(256, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write(repeat('A', 512))
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	want := append(append(make([]byte, 256), repeat('A', 512)...), make([]byte, 1280)...)
	assert.Equal(t, want, dev.data)
}

// An aligned direct-mode write bypasses the cache
// entirely.
func TestDirectModeWrite(t *testing.T) {
	dev := newMemDevice(make([]byte, 2048), 512)
	s := New(dev)

	aligned := block.NewAlignedBuffer(512, dev.Align())
	copy(aligned, repeat('A', 512))

	_, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	n, err := s.Write(aligned)
	require.NoError(t, err)
	assert.Equal(t, 512, n)

	assert.Equal(t, make([]byte, 512), s.buffer, "cache buffer must remain untouched by direct mode")
	assert.Equal(t, repeat('A', 512), dev.data[:512])
}

// A misaligned cursor forces the cache even with an
// aligned, correctly sized buffer.
func TestMisalignedWriteUsesCache(t *testing.T) {
	dev := newMemDevice(make([]byte, 2048), 512)
	s := New(dev)

	aligned := block.NewAlignedBuffer(512, dev.Align())
	copy(aligned, repeat('A', 512))

	_, err := s.Seek(3, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write(aligned)
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	assert.NotEqual(t, make([]byte, 512), s.buffer)
	assert.Equal(t, repeat('A', 512), dev.data[3:515])
}

func TestFlushIdempotent(t *testing.T) {
	dev := newMemDevice(make([]byte, 1024), 512)
	s := New(dev)

	_, err := s.Write(repeat('Z', 10))
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	writesAfterFirst := dev.writes
	require.NoError(t, s.Flush())
	assert.Equal(t, writesAfterFirst, dev.writes, "second flush must not issue another device write")
}

func TestDirectModeInvalidatesDirtyCache(t *testing.T) {
	dev := newMemDevice(make([]byte, 1024), 512)
	s := New(dev)

	// Dirty the cache for block 0 without flushing it.
	_, err := s.Write(repeat('X', 10))
	require.NoError(t, err)
	require.True(t, s.dirty)

	// A direct-mode write over block 0 must win; the stale dirty cache
	// must not later clobber it.
	aligned := block.NewAlignedBuffer(512, dev.Align())
	copy(aligned, repeat('Y', 512))
	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write(aligned)
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	assert.Equal(t, repeat('Y', 512), dev.data[:512])
}

func TestDirectModeReadFlushesDirtyCache(t *testing.T) {
	dev := newMemDevice(make([]byte, 1024), 512)
	s := New(dev)

	_, err := s.Write(repeat('X', 10))
	require.NoError(t, err)
	require.True(t, s.dirty)

	aligned := block.NewAlignedBuffer(512, dev.Align())
	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Read(aligned)
	require.NoError(t, err)

	want := append(repeat('X', 10), make([]byte, 502)...)
	assert.Equal(t, want, aligned, "direct read must observe the unflushed cached write")
}

func TestRoundTrip(t *testing.T) {
	dev := newMemDevice(make([]byte, 4096), 512)
	s := New(dev)

	payload := []byte(strings.Repeat("hello world ", 20))[:200]
	_, err := s.Seek(777, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write(payload)
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	_, err = s.Seek(777, io.SeekStart)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
