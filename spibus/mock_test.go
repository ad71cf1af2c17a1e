package spibus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransferScriptedReply(t *testing.T) {
	m := NewMock([]byte{0x01}, []byte{0xAA, 0xBB})

	buf := []byte{0xFF}
	require.NoError(t, m.Transfer(buf))
	assert.Equal(t, []byte{0x01}, buf)

	buf2 := make([]byte, 3)
	for i := range buf2 {
		buf2[i] = 0xFF
	}
	require.NoError(t, m.Transfer(buf2))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xFF}, buf2)
}

func TestMockTransferExhaustedScriptIdles(t *testing.T) {
	m := NewMock([]byte{0x00})

	buf := []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95}
	require.NoError(t, m.Transfer(buf))

	buf2 := []byte{0xAA}
	require.NoError(t, m.Transfer(buf2))
	assert.Equal(t, byte(0xFF), buf2[0])
}

func TestMockRecordsSentBuffers(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Transfer([]byte{0x01, 0x02}))
	require.NoError(t, m.Transfer([]byte{0x03}))

	sent := m.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []byte{0x01, 0x02}, sent[0])
	assert.Equal(t, []byte{0x03}, sent[1])
}

func TestMockChipSelectHistory(t *testing.T) {
	cs := &MockChipSelect{}
	require.NoError(t, cs.SetHigh())
	require.NoError(t, cs.SetLow())
	require.NoError(t, cs.SetHigh())
	assert.Equal(t, []bool{true, false, true}, cs.High)
}
