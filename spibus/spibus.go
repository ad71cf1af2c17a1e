// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package spibus provides sdspi.Bus implementations: a periph.io adapter
// for any connected periph.io/x/conn/v3/spi.Conn, a direct Linux spidev ioctl
// backend, and an in-memory mock for tests.
package spibus

import (
	"time"

	"github.com/usbarmory/sdblock/sdspi"
)

// SystemDelay is an sdspi.Delay backed by the host's wall clock, for any
// hosted build that has a working time package (every Linux/periph.io
// target this package otherwise supports).
type SystemDelay struct{}

// DelayMs implements sdspi.Delay.
func (SystemDelay) DelayMs(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

var _ sdspi.Delay = SystemDelay{}
