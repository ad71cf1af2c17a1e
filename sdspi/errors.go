// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per taxonomy entry that doesn't carry
// extra data. Test with errors.Is.
var (
	ErrChipSelect      = errors.New("sdspi: chip select failed")
	ErrSPI             = errors.New("sdspi: spi transfer failed")
	ErrTimeout         = errors.New("sdspi: operation timed out")
	ErrUnsupportedCard = errors.New("sdspi: unsupported card (pre-v2 or non-SD)")
	ErrCmd58           = errors.New("sdspi: CMD58 (READ_OCR) failed")
	ErrCmd59           = errors.New("sdspi: CMD59 (CRC_ON_OFF) failed")
	ErrNotInitialized  = errors.New("sdspi: card not initialized")
	ErrWriteError      = errors.New("sdspi: card rejected write")
)

// RegisterError reports an unexpected R1 byte from a command that expects
// a specific status (e.g. SEND_CSD, SEND_CID), or a data token other than
// DATA_START_BLOCK at the start of a data block.
type RegisterError struct {
	Byte byte
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("sdspi: unexpected register response 0x%02x", e.Byte)
}

// CRCMismatchError reports a CRC16 mismatch on a received data block.
type CRCMismatchError struct {
	Expected uint16
	Got      uint16
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("sdspi: CRC16 mismatch: card sent 0x%04x, computed 0x%04x", e.Expected, e.Got)
}
