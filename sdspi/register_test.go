package sdspi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOCRBusy(t *testing.T) {
	busy, class := decodeOCR(0x00000000)
	assert.True(t, busy)
	assert.Equal(t, StandardCapacity, class)
}

func TestDecodeOCRReadyHighCapacity(t *testing.T) {
	busy, class := decodeOCR(0xC0FF8000)
	assert.False(t, busy)
	assert.Equal(t, HighCapacity, class)
}

func TestDecodeOCRReadyStandardCapacity(t *testing.T) {
	busy, class := decodeOCR(0x80FF8000)
	assert.False(t, busy)
	assert.Equal(t, StandardCapacity, class)
}

// A synthetic CSD v2.0 (high-capacity) register: structure bits [127:126]
// = 01, C_SIZE bits [69:48] chosen so capacity works out to an easily
// checked round number of blocks.
func syntheticCSDv2(cSize uint32) []byte {
	raw := make([]byte, 16)
	raw[0] = 0x40 // version bits in byte 0, bits [7:6] = 01
	// C_SIZE occupies bits [69:48]: byte 7 bits[5:0], byte 8 all, byte 9 all.
	raw[7] = byte((cSize >> 16) & 0x3F)
	raw[8] = byte((cSize >> 8) & 0xFF)
	raw[9] = byte(cSize & 0xFF)
	return raw
}

func TestDecodeCSDv2BlockCount(t *testing.T) {
	csd, err := DecodeCSD(syntheticCSDv2(0))
	require.NoError(t, err)
	assert.Equal(t, 1, csd.Version())
	// (0+1) * 512KiB / 512B = 1024 blocks.
	assert.Equal(t, uint64(1024), csd.BlockCount())
}

func TestDecodeCSDRejectsWrongLength(t *testing.T) {
	_, err := DecodeCSD(make([]byte, 15))
	assert.Error(t, err)
}

func TestDecodeCIDProductNameTrimsPadding(t *testing.T) {
	raw := make([]byte, 16)
	raw[0] = 0x03            // MID
	copy(raw[3:8], "SD16 ")  // PNM, space-padded to 5 chars
	raw[8] = 0x21            // PRV: major 2, minor 1
	cid, err := DecodeCID(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), cid.ManufacturerID())
	assert.Equal(t, "SD16", cid.ProductName())
	major, minor := cid.ProductRevision()
	assert.Equal(t, byte(2), major)
	assert.Equal(t, byte(1), minor)
}

func TestDecodeCIDManufacturingDate(t *testing.T) {
	raw := make([]byte, 16)
	// MDT is a 12-bit field at raw[13:15]: this driver reads it as a
	// big-endian uint16 and splits month = bits [3:0], year offset from
	// 2000 = bits [11:4].
	raw[13] = 0x01 // year-offset high nibble (1)
	raw[14] = 0x36 // year-offset low nibble (3) << 4 | month (6); offset 0x13 = 19
	cid, err := DecodeCID(raw)
	require.NoError(t, err)
	year, month := cid.ManufacturingDate()
	assert.Equal(t, 2019, year)
	assert.Equal(t, 6, month)
}
