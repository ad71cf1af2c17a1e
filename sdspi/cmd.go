// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "encoding/binary"

// command is a single SD command awaiting framing. Every command is a
// fixed 6-byte frame over SPI: start/transmission bits,
// index, big-endian argument, and a CRC7 trailer with its stop bit set.
type command struct {
	index byte
	arg   uint32
}

func cmd(index byte, arg uint32) command {
	return command{index: index, arg: arg}
}

// frame encodes the command into its 6-byte wire form.
func (c command) frame() [6]byte {
	var f [6]byte
	f[0] = 0x40 | (c.index & 0x3F)
	binary.BigEndian.PutUint32(f[1:5], c.arg)
	f[5] = CRC7(f[0:5])
	return f
}
