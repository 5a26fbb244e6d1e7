// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package latency measures the input latency of a USB device from the
// trigger and data lines of a raw capture log.
//
// A trigger generator presses and releases a button of the device under
// test while asserting the digital input of the analyzer. Each digital
// input transition is followed by a DATA packet reporting the new button
// state: the elapsed time between the two is the device latency.
package latency // import "github.com/go-lpc/usblag/latency"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/usblag/rawlog"
)

var (
	// ErrNoData is returned when no usable DATA packet was collected.
	ErrNoData = errors.New("latency: no DATA packet")
)

// Device identifies the device under test.
type Device struct {
	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	Version      string
	Serial       string
}

// ID returns the vendor:product identifier of the device.
func (dev Device) ID() string {
	return dev.VendorID + ":" + dev.ProductID
}

// Button describes the payload byte toggled by the trigger.
type Button struct {
	Position int    // 1-based position in the DATA payload, PID byte included
	Value    byte   // value of the byte when the button is pressed
	Length   int    // length of the DATA payloads reporting the button
	Name     string // human readable name of the button
}

// Validate checks the button profile is usable to clean a capture.
func (btn Button) Validate() error {
	switch {
	case btn.Length <= 0:
		return fmt.Errorf("latency: invalid button payload length %d", btn.Length)
	case btn.Position < 1 || btn.Position > btn.Length:
		return fmt.Errorf("latency: invalid button position %d (payload length=%d)", btn.Position, btn.Length)
	case btn.Value == 0:
		return fmt.Errorf("latency: invalid pressed button value 0x00")
	}
	return nil
}

// matches returns whether a DATA line reports the pressed (on) or
// released button state.
func (btn Button) matches(line rawlog.Line, on bool) bool {
	v, ok := line.Byte(btn.Position)
	if !ok {
		return false
	}
	if on {
		return v == btn.Value
	}
	return v == 0x00
}

// Bracket pairs a trigger transition with the DATA packet reporting it.
type Bracket struct {
	Trigger rawlog.Line
	Data    rawlog.Line
}

// Pressed returns whether the bracket reports a button press.
func (b Bracket) Pressed() bool {
	return b.Trigger.Kind == rawlog.TriggerOn
}

// Latency returns the elapsed time between the trigger and the data
// packet, in nanoseconds.
func (b Bracket) Latency() int64 {
	return int64(b.Data.Time) - int64(b.Trigger.Time)
}
