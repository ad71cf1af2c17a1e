// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package spibus

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"github.com/usbarmory/sdblock/sdspi"
)

// Periph adapts an already-Connect()-ed periph.io/x/conn/v3/spi.Conn into
// an sdspi.Bus. periph.io's spi.Conn.Tx is already full-duplex and
// byte-oriented, the same contract sdspi.Bus.Transfer needs, so this
// wrapper is a thin pass-through.
type Periph struct {
	conn spi.Conn
}

// NewPeriph wraps conn. The caller is responsible for opening the port via
// spireg.Open and calling Connect with the mode (0) and clock rate the SD
// Physical Layer Specification's SPI mode requires before passing the
// result here.
func NewPeriph(conn spi.Conn) *Periph {
	return &Periph{conn: conn}
}

// Transfer implements sdspi.Bus.
func (p *Periph) Transfer(buf []byte) error {
	return p.conn.Tx(buf, buf)
}

var _ sdspi.Bus = (*Periph)(nil)

// GPIOChipSelect adapts a periph.io gpio.PinOut into sdspi.ChipSelect for
// boards where chip-select is a plain GPIO rather than a dedicated SPI CS
// line.
type GPIOChipSelect struct {
	pin gpio.PinOut
}

// NewGPIOChipSelect wraps pin. The card's CS is active-low: SetHigh
// deasserts (drives pin high), SetLow asserts (drives pin low).
func NewGPIOChipSelect(pin gpio.PinOut) *GPIOChipSelect {
	return &GPIOChipSelect{pin: pin}
}

// SetHigh deasserts chip-select.
func (g *GPIOChipSelect) SetHigh() error {
	return g.pin.Out(gpio.High)
}

// SetLow asserts chip-select.
func (g *GPIOChipSelect) SetLow() error {
	return g.pin.Out(gpio.Low)
}

var _ sdspi.ChipSelect = (*GPIOChipSelect)(nil)
