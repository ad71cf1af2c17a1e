// https://github.com/usbarmory/sdblock
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build linux

package spibus

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/usbarmory/sdblock/sdspi"
)

// spiIOCTransfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
type spiIOCTransfer struct {
	tx          uint64
	rx          uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNBits     uint8
	rxNBits     uint8
	pad         uint16
}

const spiIOCMagic = 'k'

// Linux ioctl request-code layout (asm-generic/ioctl.h), mirrored here
// because golang.org/x/sys/unix does not export the _IOW macro.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocWrite    = 1

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// iocW computes the equivalent of the Linux _IOW(type, nr, size) macro.
func iocW(t byte, nr, size uintptr) uintptr {
	return (iocWrite << iocDirShift) | (uintptr(t) << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

// spiIOCMessage computes the equivalent of the SPI_IOC_MESSAGE(N) macro
// for an N-segment ioctl transfer. sizeofSpiIOCTransfer matches the 32-byte
// packed C struct above.
func spiIOCMessage(n int) uintptr {
	const sizeofSpiIOCTransfer = 32
	return iocW(spiIOCMagic, 0, uintptr(n*sizeofSpiIOCTransfer))
}

// LinuxSpidev drives an SD card over a Linux /dev/spidev character device
// using the SPI_IOC_MESSAGE ioctl for full-duplex transfers. Clock
// polarity/phase are set once by OpenLinuxSpidev via SPI_IOC_WR_MODE;
// chip-select is asserted by the spidev driver around each transfer.
type LinuxSpidev struct {
	f       *os.File
	speedHz uint32
}

// OpenLinuxSpidev opens /dev/spidev<bus>.<cs> and configures SPI mode 0
// (CPOL=0, CPHA=0), the mode the SD Physical Layer Specification's SPI
// mode requires, at speedHz.
func OpenLinuxSpidev(bus, cs int, speedHz uint32) (*LinuxSpidev, error) {
	path := fmt.Sprintf("/dev/spidev%d.%d", bus, cs)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spibus: open %s: %w", path, err)
	}

	var mode uint8
	if err := ioctl(f, iocW(spiIOCMagic, 1, 1), uintptr(unsafe.Pointer(&mode))); err != nil {
		f.Close()
		return nil, fmt.Errorf("spibus: SPI_IOC_WR_MODE: %w", err)
	}

	return &LinuxSpidev{f: f, speedHz: speedHz}, nil
}

// Close releases the underlying file descriptor.
func (d *LinuxSpidev) Close() error {
	return d.f.Close()
}

// Transfer implements sdspi.Bus.
func (d *LinuxSpidev) Transfer(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	xfer := spiIOCTransfer{
		tx:      uint64(uintptr(unsafe.Pointer(&buf[0]))),
		rx:      uint64(uintptr(unsafe.Pointer(&buf[0]))),
		length:  uint32(len(buf)),
		speedHz: d.speedHz,
	}
	if err := ioctl(d.f, spiIOCMessage(1), uintptr(unsafe.Pointer(&xfer))); err != nil {
		return fmt.Errorf("%w: %v", sdspi.ErrSPI, err)
	}
	return nil
}

func ioctl(f *os.File, op uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), op, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

var _ sdspi.Bus = (*LinuxSpidev)(nil)
