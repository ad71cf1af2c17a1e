// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "github.com/usbarmory/sdblock/internal/bits"

// CardStatus decodes the 2-byte R2 response returned by CMD13
// (SEND_STATUS) in SPI mode, letting a caller poll card health without
// issuing a read or write. The first byte is the standard R1; the second
// is the SPI-mode status byte, whose bit layout is condensed relative to
// the native SD-bus 32-bit status register.
type CardStatus struct {
	r1 byte
	r2 byte
}

// OutOfRange reports the OUT_OF_RANGE / CSD_OVERWRITE bit (r2 bit 7).
func (s CardStatus) OutOfRange() bool { return bits.GetBit(uint32(s.r2), 7) }

// EraseParam reports the ERASE_PARAM bit (r2 bit 6).
func (s CardStatus) EraseParam() bool { return bits.GetBit(uint32(s.r2), 6) }

// WriteProtectViolation reports the WP_VIOLATION bit (r2 bit 5).
func (s CardStatus) WriteProtectViolation() bool { return bits.GetBit(uint32(s.r2), 5) }

// CardECCFailed reports the CARD_ECC_FAILED bit (r2 bit 4).
func (s CardStatus) CardECCFailed() bool { return bits.GetBit(uint32(s.r2), 4) }

// CCError reports the CC_ERROR bit, an internal card controller error
// (r2 bit 3).
func (s CardStatus) CCError() bool { return bits.GetBit(uint32(s.r2), 3) }

// ErrorFlag reports the generic ERROR bit, a catch-all internal card
// error unrelated to the command itself (r2 bit 2).
func (s CardStatus) ErrorFlag() bool { return bits.GetBit(uint32(s.r2), 2) }

// WPEraseSkip reports the WP_ERASE_SKIP / LOCK_UNLOCK_CMD_FAILED bit
// (r2 bit 1).
func (s CardStatus) WPEraseSkip() bool { return bits.GetBit(uint32(s.r2), 1) }

// CardLocked reports the CARD_IS_LOCKED bit (r2 bit 0). This is state,
// not an error.
func (s CardStatus) CardLocked() bool { return bits.GetBit(uint32(s.r2), 0) }

// IllegalCommand reports the ILLEGAL_COMMAND bit of the leading R1 byte.
func (s CardStatus) IllegalCommand() bool { return s.r1&R1IllegalCommand != 0 }

// HasError reports whether any error bit in either response byte is set.
func (s CardStatus) HasError() bool {
	return s.OutOfRange() || s.EraseParam() || s.WriteProtectViolation() ||
		s.CardECCFailed() || s.CCError() || s.ErrorFlag() ||
		s.WPEraseSkip() || s.IllegalCommand() ||
		s.r1&(r1EraseReset|r1ComCRCError|r1EraseSeqError|r1AddressError|r1ParameterError) != 0
}

// Status issues CMD13 (SEND_STATUS) and decodes the two-byte R2 response:
// the normal R1 byte followed by the SPI-mode status byte.
func (c *Card) Status() (CardStatus, error) {
	if c.info == nil {
		return CardStatus{}, ErrNotInitialized
	}
	r1, err := c.sendCmd(cmd(cmdSendStatus, uint32(c.info.RCA)<<16))
	if err != nil {
		return CardStatus{}, err
	}
	r2, err := c.readByte()
	if err != nil {
		return CardStatus{}, err
	}
	return CardStatus{r1: r1, r2: r2}, nil
}
