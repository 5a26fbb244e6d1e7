// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"fmt"

	"github.com/go-daq/smbus"
)

// MCP23008 registers.
const (
	mcpIODir = 0x00
	mcpOLat  = 0x0a
)

type smbusConn interface {
	WriteReg(addr, reg, v uint8) error
	Close() error
}

var (
	smbusOpen = smbusOpenImpl
)

func smbusOpenImpl(bus int, addr uint8) (smbusConn, error) {
	conn, err := smbus.Open(bus, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Expander drives the pins of an MCP23008 I2C GPIO expander.
type Expander struct {
	conn smbusConn
	addr uint8
	mask uint8
}

// OpenExpander opens the MCP23008 at addr on the provided I2C bus and
// configures the pins of mask as outputs.
func OpenExpander(bus int, addr, mask uint8) (*Expander, error) {
	if mask == 0 {
		return nil, fmt.Errorf("trigger: empty expander output mask")
	}

	conn, err := smbusOpen(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("trigger: could not open I2C device (bus=%d, addr=0x%x): %w", bus, addr, err)
	}

	dev := &Expander{conn: conn, addr: addr, mask: mask}

	err = dev.conn.WriteReg(addr, mcpOLat, 0)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("trigger: could not clear expander latches: %w", err)
	}

	err = dev.conn.WriteReg(addr, mcpIODir, ^mask)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("trigger: could not set expander pins direction (mask=0x%x): %w", mask, err)
	}

	return dev, nil
}

// Set implements Output.
func (dev *Expander) Set(on bool) error {
	var v uint8
	if on {
		v = dev.mask
	}
	err := dev.conn.WriteReg(dev.addr, mcpOLat, v)
	if err != nil {
		return fmt.Errorf("trigger: could not write expander latches: %w", err)
	}
	return nil
}

// Close releases the pins, switches them back to inputs and closes
// the I2C connection.
func (dev *Expander) Close() error {
	err := dev.Set(false)
	if err != nil {
		_ = dev.conn.Close()
		return err
	}

	err = dev.conn.WriteReg(dev.addr, mcpIODir, 0xff)
	if err != nil {
		_ = dev.conn.Close()
		return fmt.Errorf("trigger: could not reset expander pins direction: %w", err)
	}

	err = dev.conn.Close()
	if err != nil {
		return fmt.Errorf("trigger: could not close I2C device: %w", err)
	}
	return nil
}

var _ Output = (*Expander)(nil)
