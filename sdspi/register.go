// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import (
	"encoding/binary"
	"fmt"

	"github.com/usbarmory/sdblock/internal/bits"
)

// CapacityClass distinguishes standard-capacity cards (byte-addressed)
// from high-capacity SDHC/SDXC cards (block-addressed).
type CapacityClass int

const (
	// StandardCapacity cards take a byte offset as the command
	// argument; this driver multiplies the caller's block address by
	// BlockSize before issuing the command.
	StandardCapacity CapacityClass = iota
	// HighCapacity (SDHC/SDXC) cards take a block index directly.
	HighCapacity
)

func (c CapacityClass) String() string {
	if c == HighCapacity {
		return "high-capacity"
	}
	return "standard-capacity"
}

// ocrBusyBit is bit 31 of the OCR register: clear while the card is still
// powering up / negotiating, set once ready.
const ocrBusyBit = 31

// ocrCCSBit is bit 30 of the OCR register (only meaningful once the busy
// bit is set): Card Capacity Status, 1 for high-capacity cards.
const ocrCCSBit = 30

// decodeOCR reports whether the 32-bit OCR register indicates the card is
// still busy, and if not, its capacity class.
func decodeOCR(ocr uint32) (busy bool, class CapacityClass) {
	if !bits.GetBit(ocr, ocrBusyBit) {
		return true, StandardCapacity
	}
	if bits.GetBit(ocr, ocrCCSBit) {
		return false, HighCapacity
	}
	return false, StandardCapacity
}

// CSD is the 128-bit Card Specific Data register,
// shared layout prefix between CSD version 1.0 (standard-capacity) and
// version 2.0 (high-capacity) cards; BlockCount dispatches on Version.
type CSD struct {
	raw [16]byte
}

// DecodeCSD parses a 16-byte CSD register as read from CMD9.
func DecodeCSD(data []byte) (CSD, error) {
	if len(data) != 16 {
		return CSD{}, fmt.Errorf("sdspi: CSD must be 16 bytes, got %d", len(data))
	}
	var csd CSD
	copy(csd.raw[:], data)
	return csd, nil
}

// Version returns the CSD structure version: 0 for CSD v1.0
// (standard-capacity), 1 for CSD v2.0 (high-capacity).
func (c CSD) Version() int {
	return int(bits.GetBitsBE128(c.raw, 127, 126))
}

// BlockCount returns the number of 512-byte blocks addressable on the
// card, computed per the CSD version's C_SIZE encoding.
func (c CSD) BlockCount() uint64 {
	if c.Version() == 1 {
		// CSD v2.0: C_SIZE is bits [69:48], capacity = (C_SIZE+1) * 512KiB.
		cSize := bits.GetBitsBE128(c.raw, 69, 48)
		return (cSize + 1) * (512 * 1024) / BlockSize
	}
	// CSD v1.0: capacity = (C_SIZE+1) << (C_SIZE_MULT+2) << READ_BL_LEN,
	// expressed in bytes, then divided down to 512-byte blocks.
	cSize := bits.GetBitsBE128(c.raw, 73, 62)
	cSizeMult := bits.GetBitsBE128(c.raw, 49, 47)
	readBlLen := bits.GetBitsBE128(c.raw, 83, 80)
	blockCount := (cSize + 1) << (cSizeMult + 2)
	bytes := blockCount << readBlLen
	return bytes / BlockSize
}

// ReadBlockLength returns READ_BL_LEN, the maximum read block length in
// bytes the card advertises (always >= 512 for SD cards in this driver's
// supported range).
func (c CSD) ReadBlockLength() uint {
	return 1 << bits.GetBitsBE128(c.raw, 83, 80)
}

// MaxTransferRate returns the raw TRAN_SPEED byte (CSD bits [103:96]).
func (c CSD) MaxTransferRate() byte {
	return byte(bits.GetBitsBE128(c.raw, 103, 96))
}

// WriteProtected reports the logical OR of the CSD's permanent and
// temporary write-protect bits.
func (c CSD) WriteProtected() bool {
	return bits.GetBitsBE128(c.raw, 13, 13) != 0 || bits.GetBitsBE128(c.raw, 12, 12) != 0
}

// CID is the 128-bit Card Identification register.
type CID struct {
	raw [16]byte
}

// DecodeCID parses a 16-byte CID register as read from CMD10.
func DecodeCID(data []byte) (CID, error) {
	if len(data) != 16 {
		return CID{}, fmt.Errorf("sdspi: CID must be 16 bytes, got %d", len(data))
	}
	var cid CID
	copy(cid.raw[:], data)
	return cid, nil
}

// ManufacturerID returns the MID field.
func (c CID) ManufacturerID() byte {
	return c.raw[0]
}

// OEMApplicationID returns the OID field.
func (c CID) OEMApplicationID() uint16 {
	return binary.BigEndian.Uint16(c.raw[1:3])
}

// ProductName returns the 5-character PNM field, trimmed of trailing
// padding.
func (c CID) ProductName() string {
	name := c.raw[3:8]
	end := len(name)
	for end > 0 && (name[end-1] == 0 || name[end-1] == ' ') {
		end--
	}
	return string(name[:end])
}

// ProductRevision returns the PRV field as (major, minor).
func (c CID) ProductRevision() (major, minor byte) {
	prv := c.raw[8]
	return prv >> 4, prv & 0x0F
}

// SerialNumber returns the PSN field.
func (c CID) SerialNumber() uint32 {
	return binary.BigEndian.Uint32(c.raw[9:13])
}

// ManufacturingDate returns the MDT field decoded to a calendar year and
// 1-12 month.
func (c CID) ManufacturingDate() (year int, month int) {
	mdt := binary.BigEndian.Uint16(c.raw[13:15])
	month = int(mdt & 0x0F)
	year = 2000 + int((mdt>>4)&0xFF)
	return year, month
}
