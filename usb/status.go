// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"fmt"
	"strings"
)

// Status is the read status bitmask reported along with a packet.
type Status uint32

const (
	OK Status = 0

	Timeout        Status = 0x00000100
	ErrMidPacket   Status = 0x00000200
	ErrShortBuffer Status = 0x00000400
	ErrPartialByte Status = 0x00000800 // low byte holds the number of valid bits
	ErrUnexpected  Status = 0x00001000

	BadSignals     Status = 0x00010000
	BadSync        Status = 0x00020000
	BitStuff       Status = 0x00040000
	FalseEOP       Status = 0x00080000
	LongEOP        Status = 0x00100000
	BadPID         Status = 0x00200000
	BadCRC         Status = 0x00400000
	TruncationMode Status = 0x20000000
	EndOfCapture   Status = 0x40000000

	partialBitsMask Status = 0xff
)

func (st Status) String() string {
	if st == OK {
		return "OK"
	}

	var o []string
	for _, v := range []struct {
		flag Status
		name string
	}{
		{Timeout, "TIMEOUT"},
		{ErrUnexpected, "UNEXPECTED"},
		{ErrMidPacket, "MIDDLE"},
		{ErrShortBuffer, "SHORT_BUFFER"},
		{BadSignals, "BAD_SIGNAL"},
		{BadSync, "BAD_SYNC"},
		{BitStuff, "BAD_STUFF"},
		{FalseEOP, "BAD_EOP"},
		{LongEOP, "LONG_EOP"},
		{BadPID, "BAD_PID"},
		{BadCRC, "BAD_CRC"},
		{TruncationMode, "TRUNCATION_MODE"},
		{EndOfCapture, "END_OF_CAPTURE"},
	} {
		if st&v.flag != 0 {
			o = append(o, v.name)
		}
	}
	if st&ErrPartialByte != 0 {
		o = append(o, fmt.Sprintf("PARTIAL_BYTE(bit %d)", st&partialBitsMask))
	}
	return strings.Join(o, "|")
}

// Event is the bus event bitmask reported along with a packet.
type Event uint32

const (
	HostDisconnect   Event = 0x00000100
	TargetDisconnect Event = 0x00000200
	Reset            Event = 0x00000400
	HostConnect      Event = 0x00000800
	TargetConnect    Event = 0x00001000
	ChirpJ           Event = 0x00002000
	ChirpK           Event = 0x00004000
	KeepAlive        Event = 0x00008000
	Suspend          Event = 0x00010000
	Resume           Event = 0x00020000
	LowSpeed         Event = 0x00040000
	FullSpeed        Event = 0x00080000
	HighSpeed        Event = 0x00100000
	SpeedUnknown     Event = 0x00200000
	LowOverFullSpeed Event = 0x00400000
	DigitalInput     Event = 0x00800000

	DigitalInputMask Event = 0x0000000f // state of the digital input pins
)

func (ev Event) String() string {
	if ev == 0 {
		return "NONE"
	}

	var o []string
	for _, v := range []struct {
		flag Event
		name string
	}{
		{HostDisconnect, "HOST_DISCON"},
		{TargetDisconnect, "TGT_DISCON"},
		{Reset, "RESET"},
		{HostConnect, "HOST_CONNECT"},
		{TargetConnect, "TGT_CONNECT/UNRST"},
		{ChirpJ, "CHIRP_J"},
		{ChirpK, "CHIRP_K"},
		{KeepAlive, "KEEP_ALIVE"},
		{Suspend, "SUSPEND"},
		{Resume, "RESUME"},
		{LowSpeed, "LOW_SPEED"},
		{FullSpeed, "FULL_SPEED"},
		{HighSpeed, "HIGH_SPEED"},
		{SpeedUnknown, "UNKNOWN_SPEED"},
		{LowOverFullSpeed, "LOW_OVER_FULL_SPEED"},
	} {
		if ev&v.flag != 0 {
			o = append(o, v.name)
		}
	}
	if ev&DigitalInput != 0 {
		o = append(o, fmt.Sprintf("INPUT_TRIGGER %X", uint32(ev&DigitalInputMask)))
	}
	return strings.Join(o, "|")
}

// Trigger is the state of the digital input line driven by the trigger generator.
type Trigger uint8

const (
	TriggerOff Trigger = iota // digital input released
	TriggerOn                 // digital input asserted
)

func (tr Trigger) String() string {
	switch tr {
	case TriggerOn:
		return "TRIGGER_ON"
	case TriggerOff:
		return "TRIGGER_OFF"
	}
	return fmt.Sprintf("Trigger(%d)", uint8(tr))
}

// triggerReleased is the literal event value the analyzer reports when the
// digital input line is released.
const triggerReleased = DigitalInput | 0x1

// TriggerOf returns the trigger state encoded in a digital-input event.
// Only the exact canonical and released encodings are recognized:
// digital-input events carrying other pin states are not trigger transitions.
func TriggerOf(ev Event) (Trigger, bool) {
	switch ev {
	case DigitalInput:
		return TriggerOn, true
	case triggerReleased:
		return TriggerOff, true
	}
	return 0, false
}
