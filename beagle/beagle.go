// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package beagle provides access to USB bus analyzers.
//
// Analyzers are accessed through drivers registered with Register, in
// the manner of database/sql. A driver for offline captures is provided
// by the beagle/replay package.
package beagle // import "github.com/go-lpc/usblag/beagle"

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-lpc/usblag/usb"
)

// Protocol is a bus protocol decoded by an analyzer.
type Protocol uint8

const (
	ProtocolUSB Protocol = iota
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUSB:
		return "USB"
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// Speed is the bus speed an analyzer is configured for.
type Speed uint8

const (
	SpeedAuto Speed = iota
	SpeedHigh
	SpeedFull
	SpeedLow
)

func (s Speed) String() string {
	switch s {
	case SpeedAuto:
		return "auto"
	case SpeedHigh:
		return "high"
	case SpeedFull:
		return "full"
	case SpeedLow:
		return "low"
	}
	return fmt.Sprintf("Speed(%d)", uint8(s))
}

// ParseSpeed parses the name of a bus speed.
func ParseSpeed(s string) (Speed, error) {
	for _, v := range []Speed{SpeedAuto, SpeedHigh, SpeedFull, SpeedLow} {
		if v.String() == s {
			return v, nil
		}
	}
	return SpeedAuto, fmt.Errorf("beagle: invalid bus speed %q", s)
}

// Config holds the capture configuration of an analyzer.
type Config struct {
	Timeout      time.Duration // idle timeout of a read
	Latency      time.Duration // buffering latency of the analyzer
	Speed        Speed         // bus speed
	DigitalInput uint8         // mask of enabled digital input pins
}

// Driver is the interface implemented by analyzer drivers.
type Driver interface {
	// SampleRate returns the sample rate of the device clock, in kHz.
	SampleRate() (int, error)
	// Configure configures the capture.
	Configure(cfg Config) error
	// Enable starts the capture of the provided protocol.
	Enable(p Protocol) error
	// Read reads the next bus event into p.
	// Read returns with the Timeout status when no event was seen
	// during the configured idle timeout, and with the EndOfCapture
	// status when no more event will ever be read.
	// A negative p.Len holds a device error code.
	Read(p *usb.Packet) error
	// Disable stops the capture.
	Disable() error
	// Close releases the device.
	Close() error
}

// OpenFunc opens the device attached to port.
type OpenFunc func(port string) (Driver, error)

var drivers = struct {
	sync.RWMutex
	m map[string]OpenFunc
}{
	m: make(map[string]OpenFunc),
}

// Register makes a driver available by the provided name.
// Register panics if it is called twice with the same name or if open is nil.
func Register(name string, open OpenFunc) {
	drivers.Lock()
	defer drivers.Unlock()

	if open == nil {
		panic("beagle: nil driver " + name)
	}
	if _, dup := drivers.m[name]; dup {
		panic("beagle: driver " + name + " already registered")
	}
	drivers.m[name] = open
}

// Drivers returns the sorted list of registered drivers.
func Drivers() []string {
	drivers.RLock()
	defer drivers.RUnlock()

	names := make([]string, 0, len(drivers.m))
	for name := range drivers.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (OpenFunc, bool) {
	drivers.RLock()
	defer drivers.RUnlock()
	open, ok := drivers.m[name]
	return open, ok
}

// DeviceError is a fatal error reported by an analyzer.
type DeviceError struct {
	Op   string // operation that failed
	Code int    // device error code
}

func (err *DeviceError) Error() string {
	return fmt.Sprintf("beagle: device error %d during %s", err.Code, err.Op)
}
