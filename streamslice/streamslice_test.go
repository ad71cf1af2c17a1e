package streamslice

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seekableBuffer adapts a byte slice into the Inner capability
// (Read/Write/Seek/Flush) using an explicit cursor.
type seekableBuffer struct {
	data   []byte
	cursor int64
}

func (s *seekableBuffer) Read(p []byte) (int, error) {
	if s.cursor >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.cursor:])
	s.cursor += int64(n)
	return n, nil
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	end := s.cursor + int64(len(p))
	if end > int64(len(s.data)) {
		grown := make([]byte, end)
		copy(grown, s.data)
		s.data = grown
	}
	n := copy(s.data[s.cursor:end], p)
	s.cursor += int64(n)
	return n, nil
}

func (s *seekableBuffer) Flush() error { return nil }

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.cursor + offset
	case io.SeekEnd:
		next = int64(len(s.data)) + offset
	}
	if next < 0 {
		return 0, errors.New("seekableBuffer: negative seek")
	}
	s.cursor = next
	return next, nil
}

func readToString(t *testing.T, r io.Reader) string {
	t.Helper()
	var buf bytes.Buffer
	tmp := make([]byte, 256)
	for {
		n, err := r.Read(tmp)
		buf.Write(tmp[:n])
		if err == io.EOF || n == 0 {
			break
		}
		require.NoError(t, err)
	}
	return buf.String()
}

func TestStreamSliceWindow(t *testing.T) {
	inner := &seekableBuffer{data: []byte("BeforeTest dataAfter")}
	s, err := New(inner, 6, 6+9)
	require.NoError(t, err)

	assert.Equal(t, "Test data", readToString(t, s))

	_, err = s.Seek(5, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, "data", readToString(t, s))

	_, err = s.Seek(5, io.SeekStart)
	require.NoError(t, err)
	n, err := s.Write([]byte("Rust"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = s.Write([]byte("X"))
	assert.Error(t, err)
	var invalid *InvalidSeekError
	assert.False(t, errors.As(err, &invalid), "a truncated-to-zero write fails with ErrWriteZero, not InvalidSeekError")
	assert.ErrorIs(t, err, ErrWriteZero)

	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, "Test Rust", readToString(t, s))
}

func TestZeroLengthSlice(t *testing.T) {
	inner := &seekableBuffer{data: []byte("hello")}
	s, err := New(inner, 2, 2)
	require.NoError(t, err)

	n, err := s.Read(make([]byte, 10))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	n, err = s.Read(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Write(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrWriteZero)

	pos, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestInvalidSeek(t *testing.T) {
	inner := &seekableBuffer{data: []byte("0123456789")}
	s, err := New(inner, 2, 8)
	require.NoError(t, err)

	_, err = s.Seek(-1, io.SeekStart)
	var invalid *InvalidSeekError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, int64(-1), invalid.Offset)

	_, err = s.Seek(100, io.SeekEnd)
	require.ErrorAs(t, err, &invalid)
}

func TestSeekInvariant(t *testing.T) {
	inner := &seekableBuffer{data: []byte("0123456789abcdef")}
	s, err := New(inner, 4, 12)
	require.NoError(t, err)

	_, err = s.Seek(3, io.SeekStart)
	require.NoError(t, err)

	pos, err := inner.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4+3), pos)
}
