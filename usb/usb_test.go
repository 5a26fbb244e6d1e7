// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"testing"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		pkt  Packet
		want Category
	}{
		{name: "sof", pkt: mk(PIDSOF, 0x01, 0x02), want: SOF},
		{name: "in", pkt: mk(PIDIn, 0x81, 0x00), want: IN},
		{name: "ping", pkt: mk(PIDPing), want: PING},
		{name: "split", pkt: mk(PIDSplit, 1, 2, 3), want: SPLIT},
		{name: "out", pkt: mk(PIDOut), want: OUT},
		{name: "setup", pkt: mk(PIDSetup), want: SETUP},
		{name: "ack", pkt: mk(PIDAck), want: ACK},
		{name: "nak", pkt: mk(PIDNak), want: NAK},
		{name: "nyet", pkt: mk(PIDNyet), want: NYET},
		{name: "data0", pkt: mk(PIDData0, 0, 0), want: Other},
		{name: "garbage", pkt: mk(0x00), want: Other},
		{name: "keep-alive", pkt: Packet{Events: KeepAlive}, want: KeepAliveCat},
		{
			name: "keep-alive-bad-pid",
			pkt:  Packet{Events: KeepAlive, Status: BadPID},
			want: Other,
		},
		{name: "empty", pkt: Packet{}, want: Other},
		{name: "error", pkt: Packet{Len: -5}, want: Other},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := Classify(&tc.pkt), tc.want; got != want {
				t.Fatalf("invalid category: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestTriggerOf(t *testing.T) {
	for _, tc := range []struct {
		ev   Event
		want Trigger
		ok   bool
	}{
		{ev: DigitalInput, want: TriggerOn, ok: true},
		{ev: DigitalInput | 0x1, want: TriggerOff, ok: true},
		{ev: DigitalInput | 0x2, ok: false},
		{ev: KeepAlive, ok: false},
		{ev: 0, ok: false},
	} {
		t.Run(tc.ev.String(), func(t *testing.T) {
			got, ok := TriggerOf(tc.ev)
			if ok != tc.ok {
				t.Fatalf("invalid trigger status: got=%v, want=%v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("invalid trigger: got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	for _, tc := range []struct {
		st   Status
		want string
	}{
		{OK, "OK"},
		{Timeout, "TIMEOUT"},
		{BadSignals | BadCRC, "BAD_SIGNAL|BAD_CRC"},
		{ErrPartialByte | 3, "PARTIAL_BYTE(bit 3)"},
		{EndOfCapture, "END_OF_CAPTURE"},
	} {
		if got, want := tc.st.String(), tc.want; got != want {
			t.Fatalf("invalid status string: got=%q, want=%q", got, want)
		}
	}
}

func TestEventString(t *testing.T) {
	for _, tc := range []struct {
		ev   Event
		want string
	}{
		{0, "NONE"},
		{KeepAlive, "KEEP_ALIVE"},
		{Reset | HighSpeed, "RESET|HIGH_SPEED"},
		{DigitalInput | 0x1, "INPUT_TRIGGER 1"},
		{DigitalInput | 0xa, "INPUT_TRIGGER A"},
		{KeepAlive | DigitalInput | 0x3, "KEEP_ALIVE|INPUT_TRIGGER 3"},
	} {
		if got, want := tc.ev.String(), tc.want; got != want {
			t.Fatalf("invalid event string: got=%q, want=%q", got, want)
		}
	}
}

func TestPID(t *testing.T) {
	for _, name := range []string{
		"OUT", "IN", "SOF", "SETUP", "DATA0", "DATA1", "DATA2", "MDATA",
		"ACK", "NAK", "STALL", "NYET", "PRE", "SPLIT", "PING", "EXT",
	} {
		pid, ok := ParsePID(name)
		if !ok {
			t.Fatalf("could not parse PID %q", name)
		}
		if got, want := pid.String(), name; got != want {
			t.Fatalf("invalid PID round-trip: got=%q, want=%q", got, want)
		}
	}

	if _, ok := ParsePID("INVALID"); ok {
		t.Fatalf("expected an error parsing an invalid PID")
	}

	if got, want := PID(0x00).String(), "INVALID"; got != want {
		t.Fatalf("invalid PID string: got=%q, want=%q", got, want)
	}
}

func TestPacketCRC(t *testing.T) {
	pkt := mk(PIDData0, 0x00, 0x01, 0x02, 0x03, 0xef, 0x7a)
	if !pkt.CRCValid() {
		t.Fatalf("expected a valid CRC")
	}

	pkt.Data[2] = 0xff
	if pkt.CRCValid() {
		t.Fatalf("expected an invalid CRC")
	}

	short := mk(PIDData1, 0x00)
	if short.CRCValid() {
		t.Fatalf("expected an invalid CRC for a truncated data packet")
	}

	tok := mk(PIDIn, 0x81, 0x00)
	if !tok.CRCValid() {
		t.Fatalf("token packets do not carry a CRC-16")
	}
}

func TestPacketPayload(t *testing.T) {
	pkt := mk(PIDData1, 1, 2, 3)
	if got, want := len(pkt.Payload()), 4; got != want {
		t.Fatalf("invalid payload length: got=%d, want=%d", got, want)
	}
	if got, want := pkt.PID(), PIDData1; got != want {
		t.Fatalf("invalid pid: got=%v, want=%v", got, want)
	}

	pkt.Status = Timeout
	pkt.Reset()
	if pkt.Len != 0 || pkt.Status != OK {
		t.Fatalf("packet header not reset: %+v", pkt.Status)
	}
	if got := pkt.Payload(); got != nil {
		t.Fatalf("invalid payload for empty packet: %v", got)
	}

	pkt.Status = Timeout
	if !pkt.IsTimeout() {
		t.Fatalf("expected a timeout packet")
	}
}

func mk(pid PID, data ...byte) Packet {
	var p Packet
	p.Data[0] = byte(pid)
	copy(p.Data[1:], data)
	p.Len = 1 + len(data)
	return p
}
