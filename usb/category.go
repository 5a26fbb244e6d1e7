// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

// Category is the coarse classification of a packet used by the
// collapsing state machine.
type Category uint8

const (
	Other Category = iota
	SOF
	IN
	PING
	SPLIT
	OUT
	SETUP
	ACK
	NAK
	NYET
	KeepAliveCat
)

var categoryNames = [...]string{
	Other:        "OTHER",
	SOF:          "SOF",
	IN:           "IN",
	PING:         "PING",
	SPLIT:        "SPLIT",
	OUT:          "OUT",
	SETUP:        "SETUP",
	ACK:          "ACK",
	NAK:          "NAK",
	NYET:         "NYET",
	KeepAliveCat: "KEEP_ALIVE",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "OTHER"
}

var pidCategory = [256]Category{
	PIDSOF:   SOF,
	PIDIn:    IN,
	PIDPing:  PING,
	PIDSplit: SPLIT,
	PIDOut:   OUT,
	PIDSetup: SETUP,
	PIDAck:   ACK,
	PIDNak:   NAK,
	PIDNyet:  NYET,
}

// Classify returns the category of a packet.
// Keep-alive events without payload are categorized on their own,
// unless the analyzer flagged a bad PID.
func Classify(p *Packet) Category {
	switch {
	case p.Len > 0:
		return pidCategory[p.Data[0]]
	case p.Len == 0 && p.Events&KeepAlive != 0 && p.Status&BadPID == 0:
		return KeepAliveCat
	default:
		return Other
	}
}
