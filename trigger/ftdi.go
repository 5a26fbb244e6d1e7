// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"fmt"
	"io"

	"github.com/ziutek/ftdi"
)

type ftdiDevice interface {
	SetBitmode(iomask byte, mode ftdi.Mode) error
	io.Writer
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl
)

func ftdiOpenImpl(vid, pid uint16) (ftdiDevice, error) {
	dev, err := ftdi.OpenFirst(int(vid), int(pid), ftdi.ChannelAny)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// FTDI drives the data lines of an FTDI chip in bitbang mode.
type FTDI struct {
	ft   ftdiDevice
	mask byte
	buf  [1]byte
}

// OpenFTDI opens the first FTDI device with the provided vendor and
// product IDs and configures the lines of mask as bitbang outputs.
func OpenFTDI(vid, pid uint16, mask byte) (*FTDI, error) {
	if mask == 0 {
		return nil, fmt.Errorf("trigger: empty FTDI output mask")
	}

	ft, err := ftdiOpen(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("trigger: could not open FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	err = ft.SetBitmode(mask, ftdi.ModeBitbang)
	if err != nil {
		_ = ft.Close()
		return nil, fmt.Errorf("trigger: could not enable bitbang mode (mask=0x%x): %w", mask, err)
	}

	dev := &FTDI{ft: ft, mask: mask}
	err = dev.Set(false)
	if err != nil {
		_ = ft.Close()
		return nil, err
	}

	return dev, nil
}

// Set implements Output.
func (dev *FTDI) Set(on bool) error {
	dev.buf[0] = 0
	if on {
		dev.buf[0] = dev.mask
	}
	n, err := dev.ft.Write(dev.buf[:])
	switch {
	case err != nil:
		return fmt.Errorf("trigger: could not write FTDI lines: %w", err)
	case n != len(dev.buf):
		return fmt.Errorf("trigger: could not write FTDI lines: %w", io.ErrShortWrite)
	}
	return nil
}

// Close releases the lines and the device.
func (dev *FTDI) Close() error {
	err := dev.Set(false)
	if err != nil {
		_ = dev.ft.Close()
		return err
	}

	err = dev.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		_ = dev.ft.Close()
		return fmt.Errorf("trigger: could not reset FTDI bit mode: %w", err)
	}

	err = dev.ft.Close()
	if err != nil {
		return fmt.Errorf("trigger: could not close FTDI device: %w", err)
	}
	return nil
}

var _ Output = (*FTDI)(nil)
