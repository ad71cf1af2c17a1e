// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package spibus

import "github.com/usbarmory/sdblock/sdspi"

// Mock is an in-memory sdspi.Bus double. Each call to Transfer is answered
// from a caller-supplied script of byte slices: Transfer copies the next
// scripted reply into buf (truncated, or padded with 0xFF, to len(buf)) and
// records the bytes the caller clocked out, so tests can assert on both
// directions of a full-duplex exchange.
type Mock struct {
	replies [][]byte
	sent    [][]byte
	next    int
}

// NewMock builds a Mock that answers successive Transfer calls with
// replies, in order. Once replies is exhausted, Transfer answers with
// all-0xFF (the bus idle line), the way a real card does once it has
// nothing left to say.
func NewMock(replies ...[]byte) *Mock {
	return &Mock{replies: replies}
}

// Transfer implements sdspi.Bus.
func (m *Mock) Transfer(buf []byte) error {
	sent := make([]byte, len(buf))
	copy(sent, buf)
	m.sent = append(m.sent, sent)

	var reply []byte
	if m.next < len(m.replies) {
		reply = m.replies[m.next]
		m.next++
	}
	for i := range buf {
		if i < len(reply) {
			buf[i] = reply[i]
		} else {
			buf[i] = 0xFF
		}
	}
	return nil
}

// Sent returns every buffer previously passed to Transfer, in call order.
func (m *Mock) Sent() [][]byte {
	return m.sent
}

var _ sdspi.Bus = (*Mock)(nil)

// MockChipSelect is an in-memory sdspi.ChipSelect double recording its
// asserted/deasserted history.
type MockChipSelect struct {
	High []bool
}

// SetHigh implements sdspi.ChipSelect.
func (m *MockChipSelect) SetHigh() error {
	m.High = append(m.High, true)
	return nil
}

// SetLow implements sdspi.ChipSelect.
func (m *MockChipSelect) SetLow() error {
	m.High = append(m.High, false)
	return nil
}

var _ sdspi.ChipSelect = (*MockChipSelect)(nil)

// NopChipSelect satisfies sdspi.ChipSelect for buses like Linux spidev
// where the kernel driver asserts chip-select automatically around every
// ioctl transfer; SdInit's manual toggling is a no-op in that case.
type NopChipSelect struct{}

// SetHigh implements sdspi.ChipSelect.
func (NopChipSelect) SetHigh() error { return nil }

// SetLow implements sdspi.ChipSelect.
func (NopChipSelect) SetLow() error { return nil }

var _ sdspi.ChipSelect = NopChipSelect{}

// MockDelay is an in-memory sdspi.Delay double that records every
// requested delay instead of actually sleeping, so protocol tests run at
// full speed regardless of a Card's poll budgets.
type MockDelay struct {
	Calls []uint32
}

// DelayMs implements sdspi.Delay.
func (d *MockDelay) DelayMs(ms uint32) {
	d.Calls = append(d.Calls, ms)
}

var _ sdspi.Delay = (*MockDelay)(nil)
