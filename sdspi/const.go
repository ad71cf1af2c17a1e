// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "time"

// BlockSize is the fixed block size SdSpi exposes as a block.Device, per
// the SD Physical Layer specification (SPI mode always transfers 512-byte
// data blocks regardless of the card's native sector size).
const BlockSize = 512

// R1 response bits.
const (
	R1ReadyState      = 0x00
	R1IdleState       = 0x01
	R1IllegalCommand  = 0x04
	r1EraseReset      = 0x02
	r1ComCRCError     = 0x08
	r1EraseSeqError   = 0x10
	r1AddressError    = 0x20
	r1ParameterError  = 0x40
)

// Data block tokens and response masks.
const (
	DataStartBlock     = 0xFE
	StopTranToken      = 0xFD
	WriteMultipleToken = 0xFC
	DataResMask        = 0x1F
	DataResAccepted    = 0x05
)

// SD command indices used by this driver. Names follow the SD Physical
// Layer Simplified Specification.
const (
	cmdGoIdleState       = 0  // CMD0
	cmdSendIfCond        = 8  // CMD8
	cmdSendCSD           = 9  // CMD9
	cmdSendCID           = 10 // CMD10
	cmdStopTransmission  = 12 // CMD12
	cmdSendStatus        = 13 // CMD13
	cmdReadSingleBlock   = 17 // CMD17
	cmdReadMultipleBlock = 18 // CMD18
	cmdSetBlockCount     = 23 // CMD23 (as ACMD23 in SPI mode)
	cmdWriteBlock        = 24 // CMD24
	cmdWriteMultiBlock   = 25 // CMD25
	cmdAppCmd            = 55 // CMD55
	cmdReadOCR           = 58 // CMD58
	cmdCRCOnOff          = 59 // CMD59
	acmdSDSendOpCond     = 41 // ACMD41
)

// Default poll timeouts, used by the init sequence and by steady-state
// commands alike: defaultCmdTimeout bounds response and data-token polls,
// defaultIdleTimeout bounds waits for the card to leave busy.
const (
	defaultCmdTimeout  = 1000 * time.Millisecond
	defaultIdleTimeout = 5000 * time.Millisecond
)
