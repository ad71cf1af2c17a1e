// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

// Bus is a full-duplex SPI byte transport. Every idle bus byte is 0xFF;
// Transfer clocks buf out while simultaneously clocking the card's
// response back into buf, in place — exactly what the SD protocol needs,
// since every command, response, and data byte on the wire is paired with
// a driven byte in the other direction.
//
// Implementations are expected to manage chip-select internally around
// each Transfer the way periph.io's spi.Conn and Linux's spidev both do;
// ChipSelect below is only needed for the raw pre-init clock-out the power
// sequence requires before the card has a command frame to respond to.
type Bus interface {
	Transfer(buf []byte) error
}

// ChipSelect is the externally-managed chip-select line SdInit needs to
// assert high while clocking the power-up preamble.
type ChipSelect interface {
	SetHigh() error
	SetLow() error
}

// Delay is the time source a Card paces its command/data polling loops
// with. DelayMs must block for approximately ms milliseconds. Card calls
// DelayMs(1) between poll iterations while tracking elapsed wall-clock
// time itself, which keeps the capability external and swappable: a
// board-specific tick source on an embedded target, time.Sleep on a
// hosted one.
type Delay interface {
	DelayMs(ms uint32)
}
