package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAligned(t *testing.T) {
	buf := NewAlignedBuffer(512, 4)
	assert.True(t, CheckAligned(buf, 4))
	assert.True(t, CheckAligned(nil, 4))
	assert.False(t, CheckAligned(buf[1:257], 4))
}

func TestNewAlignedBufferSize(t *testing.T) {
	buf := NewAlignedBuffer(512, 4)
	require.Len(t, buf, 512)
	assert.True(t, CheckAligned(buf, 4))
}

func TestNumBlocks(t *testing.T) {
	n, err := NumBlocks(make([]byte, 1536), 512)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = NumBlocks(make([]byte, 100), 512)
	assert.ErrorIs(t, err, ErrNotWholeBlocks)

	_, err = NumBlocks(nil, 512)
	assert.ErrorIs(t, err, ErrNotWholeBlocks)
}
