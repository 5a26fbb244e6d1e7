// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

// PID is a USB packet identifier, including its check nibble.
type PID uint8

const (
	PIDOut   PID = 0xe1
	PIDIn    PID = 0x69
	PIDSOF   PID = 0xa5
	PIDSetup PID = 0x2d
	PIDData0 PID = 0xc3
	PIDData1 PID = 0x4b
	PIDData2 PID = 0x87
	PIDMData PID = 0x0f
	PIDAck   PID = 0xd2
	PIDNak   PID = 0x5a
	PIDStall PID = 0x1e
	PIDNyet  PID = 0x96
	PIDPre   PID = 0x3c
	PIDSplit PID = 0x78
	PIDPing  PID = 0xb4
	PIDExt   PID = 0xf0
)

func (pid PID) String() string {
	switch pid {
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSOF:
		return "SOF"
	case PIDSetup:
		return "SETUP"
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDData2:
		return "DATA2"
	case PIDMData:
		return "MDATA"
	case PIDAck:
		return "ACK"
	case PIDNak:
		return "NAK"
	case PIDStall:
		return "STALL"
	case PIDNyet:
		return "NYET"
	case PIDPre:
		return "PRE"
	case PIDSplit:
		return "SPLIT"
	case PIDPing:
		return "PING"
	case PIDExt:
		return "EXT"
	}
	return "INVALID"
}

// IsData reports whether pid identifies a data packet.
func (pid PID) IsData() bool {
	switch pid {
	case PIDData0, PIDData1, PIDData2, PIDMData:
		return true
	}
	return false
}

// ParsePID returns the PID named s.
func ParsePID(s string) (PID, bool) {
	for _, pid := range []PID{
		PIDOut, PIDIn, PIDSOF, PIDSetup,
		PIDData0, PIDData1, PIDData2, PIDMData,
		PIDAck, PIDNak, PIDStall, PIDNyet,
		PIDPre, PIDSplit, PIDPing, PIDExt,
	} {
		if pid.String() == s {
			return pid, true
		}
	}
	return 0, false
}
