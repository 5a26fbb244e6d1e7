// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"fmt"
	"os"

	"github.com/go-lpc/usblag/internal/mmap"
)

// BCM2835 GPIO registers, as exposed by /dev/gpiomem.
const (
	gpioSpan  = 0xb4
	gpioFSel0 = 0x00
	gpioSet0  = 0x1c
	gpioClr0  = 0x28

	fselOutput = 0x1
	fselMask   = 0x7
)

var gpioMem = "/dev/gpiomem"

// GPIO drives Raspberry Pi GPIO pins through the memory-mapped
// GPIO registers.
type GPIO struct {
	f    *os.File
	regs *mmap.Handle
	mask uint32
}

// OpenGPIO configures the provided pins of the first GPIO bank as
// outputs and returns a handle driving them together.
func OpenGPIO(pins ...int) (*GPIO, error) {
	f, err := os.OpenFile(gpioMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("trigger: could not open GPIO memory: %w", err)
	}

	regs, err := mmap.Map(f, 0, gpioSpan)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("trigger: could not map GPIO registers: %w", err)
	}

	gpio, err := newGPIO(regs, pins)
	if err != nil {
		_ = regs.Close()
		_ = f.Close()
		return nil, err
	}
	gpio.f = f

	return gpio, nil
}

func newGPIO(regs *mmap.Handle, pins []int) (*GPIO, error) {
	if len(pins) == 0 {
		return nil, fmt.Errorf("trigger: no GPIO pin")
	}

	gpio := &GPIO{regs: regs}
	for _, pin := range pins {
		if pin < 0 || pin > 31 {
			return nil, fmt.Errorf("trigger: invalid GPIO pin %d", pin)
		}
		var (
			off   = gpioFSel0 + 4*(pin/10)
			shift = uint(3 * (pin % 10))
		)
		v, err := regs.U32(off)
		if err != nil {
			return nil, fmt.Errorf("trigger: could not read GPIO function of pin %d: %w", pin, err)
		}
		v = v&^(fselMask<<shift) | fselOutput<<shift
		err = regs.SetU32(off, v)
		if err != nil {
			return nil, fmt.Errorf("trigger: could not set GPIO pin %d as output: %w", pin, err)
		}
		gpio.mask |= 1 << uint(pin)
	}

	return gpio, nil
}

// Set implements Output.
func (gpio *GPIO) Set(on bool) error {
	reg := gpioClr0
	if on {
		reg = gpioSet0
	}
	err := gpio.regs.SetU32(reg, gpio.mask)
	if err != nil {
		return fmt.Errorf("trigger: could not write GPIO pins 0x%x: %w", gpio.mask, err)
	}
	return nil
}

// Close releases the pins and unmaps the GPIO registers.
func (gpio *GPIO) Close() error {
	err := gpio.Set(false)
	if err != nil {
		return err
	}

	err = gpio.regs.Close()
	if err != nil {
		return fmt.Errorf("trigger: could not unmap GPIO registers: %w", err)
	}

	if gpio.f != nil {
		err = gpio.f.Close()
		if err != nil {
			return fmt.Errorf("trigger: could not close GPIO memory: %w", err)
		}
	}
	return nil
}

var _ Output = (*GPIO)(nil)
