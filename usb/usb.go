// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usb describes USB bus events as reported by a bus analyzer.
package usb // import "github.com/go-lpc/usblag/usb"

import (
	"encoding/binary"

	"github.com/go-lpc/usblag/internal/crc16"
)

// MaxPacketSize is the capacity of a packet payload buffer.
const MaxPacketSize = 1024

// Packet is one analyzer-reported bus event.
//
// Packets are filled in place by a capture source: only the first Len
// bytes of Data are meaningful. A negative Len holds a device error code.
type Packet struct {
	Data       [MaxPacketSize]byte
	Len        int
	Status     Status
	Events     Event
	Time       uint64 // start of packet, in device ticks
	Duration   uint64 // in device ticks
	DataOffset uint64 // in device ticks
}

// Reset zeroes the packet header, leaving the payload buffer as is.
func (p *Packet) Reset() {
	p.Len = 0
	p.Status = 0
	p.Events = 0
	p.Time = 0
	p.Duration = 0
	p.DataOffset = 0
}

// Payload returns the meaningful part of the packet data.
func (p *Packet) Payload() []byte {
	if p.Len <= 0 {
		return nil
	}
	n := p.Len
	if n > len(p.Data) {
		n = len(p.Data)
	}
	return p.Data[:n]
}

// PID returns the protocol identifier of the packet, or 0 for empty packets.
func (p *Packet) PID() PID {
	if p.Len <= 0 {
		return 0
	}
	return PID(p.Data[0])
}

// IsTimeout reports whether the packet is a read that timed out
// without any bus activity.
func (p *Packet) IsTimeout() bool {
	return p.Len == 0 && p.Events == 0 && p.Status&Timeout != 0
}

// CRCValid reports whether the CRC-16 trailing a data packet matches its
// payload. Packets that do not carry a CRC-16 are always valid.
func (p *Packet) CRCValid() bool {
	if !p.PID().IsData() {
		return true
	}
	raw := p.Payload()
	if len(raw) < 3 {
		return false
	}
	var (
		body = raw[1 : len(raw)-2]
		want = binary.LittleEndian.Uint16(raw[len(raw)-2:])
	)
	return crc16.Checksum(body) == want
}
