// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawlog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/usblag/collapse"
	"github.com/go-lpc/usblag/usb"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		line string
		want Line
		str  string
	}{
		{
			line: "1234,0,TRIGGER_ON",
			want: Line{Time: 1234, Kind: TriggerOn},
			str:  "1234,0,TRIGGER_ON",
		},
		{
			line: "42,0,TRIGGER_OFF\n",
			want: Line{Time: 42, Kind: TriggerOff},
			str:  "42,0,TRIGGER_OFF",
		},
		{
			line: "1000,4,DATA0,c3 01 00 ff ",
			want: Line{
				Time: 1000, Len: 4, Kind: Data, PID: usb.PIDData0,
				Payload: []byte{0xc3, 0x01, 0x00, 0xff},
			},
			str: "1000,4,DATA0,c3 01 00 ff",
		},
		{
			line: "1001,3,DATA1,4b 80 7f",
			want: Line{
				Time: 1001, Len: 3, Kind: Data, PID: usb.PIDData1,
				Payload: []byte{0x4b, 0x80, 0x7f},
			},
			str: "1001,3,DATA1,4b 80 7f",
		},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got, err := Parse(tc.line)
			if err != nil {
				t.Fatalf("could not parse line: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid line:\ngot= %#v\nwant=%#v", got, tc.want)
			}
			if got, want := got.String(), tc.str; got != want {
				t.Fatalf("invalid string:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"1234,TRIGGER_ON",
		"abc,0,TRIGGER_ON",
		"12,x,TRIGGER_ON",
		"12,0,TRIGGER",
		"12,2,IN,69 00",
		"12,2,DATA0",
		"12,2,DATA0,c3 0",
		"12,2,DATA0,c3 zz",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !errors.Is(err, errInvalidLine) {
				t.Fatalf("invalid error: %+v", err)
			}
		})
	}
}

func TestLine(t *testing.T) {
	line := Line{
		Time: 10, Len: 3, Kind: Data, PID: usb.PIDData0,
		Payload: []byte{0xc3, 0x00, 0x20},
	}
	if got, want := line.Clean(), "10,DATA0,c3 00 20"; got != want {
		t.Fatalf("invalid clean line: got=%q, want=%q", got, want)
	}
	if got, want := (Line{Time: 11, Kind: TriggerOn}).Clean(), "11,TRIGGER_ON"; got != want {
		t.Fatalf("invalid clean line: got=%q, want=%q", got, want)
	}

	for _, tc := range []struct {
		pos  int
		want byte
		ok   bool
	}{
		{0, 0, false},
		{1, 0xc3, true},
		{3, 0x20, true},
		{4, 0, false},
	} {
		v, ok := line.Byte(tc.pos)
		if v != tc.want || ok != tc.ok {
			t.Fatalf("invalid byte at %d: got=(%x, %v), want=(%x, %v)", tc.pos, v, ok, tc.want, tc.ok)
		}
	}

	if !TriggerOn.IsTrigger() || Data.IsTrigger() {
		t.Fatalf("invalid trigger kinds")
	}
}

func TestReadWrite(t *testing.T) {
	want := []Line{
		{Time: 1, Kind: TriggerOff},
		{Time: 2, Len: 3, Kind: Data, PID: usb.PIDData0, Payload: []byte{0xc3, 0x00, 0x01}},
		{Time: 3, Kind: TriggerOn},
		{Time: 4, Len: 3, Kind: Data, PID: usb.PIDData1, Payload: []byte{0x4b, 0x20, 0x01}},
	}

	buf := new(bytes.Buffer)
	err := WriteAll(buf, want)
	if err != nil {
		t.Fatalf("could not write lines: %+v", err)
	}

	// summaries and blank lines are ignored.
	txt := "COLLAPSED [3 SOF]\n\n" + buf.String() + "<2 SIGNAL ERRORS>\n"
	got, err := ReadAll(strings.NewReader(txt))
	if err != nil {
		t.Fatalf("could not read lines: %+v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid round-trip:\ngot= %v\nwant=%v", got, want)
	}

	dec := NewDecoder(strings.NewReader("1,0,TRIGGER_ON\nboo\n"))
	var line Line
	err = dec.Decode(&line)
	if err != nil {
		t.Fatalf("could not decode first line: %+v", err)
	}
	err = dec.Decode(&line)
	if err == nil || err == io.EOF {
		t.Fatalf("expected a decoding error, got=%v", err)
	}
	if got, want := err.Error(), `rawlog: could not decode line 2: rawlog: invalid line "boo": missing fields`; got != want {
		t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
	}
}

func TestCleanEncoder(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewCleanEncoder(buf)
	for _, line := range []Line{
		{Time: 1, Kind: TriggerOff},
		{Time: 2, Len: 2, Kind: Data, PID: usb.PIDData0, Payload: []byte{0xc3, 0x00}},
	} {
		err := enc.Encode(line)
		if err != nil {
			t.Fatalf("could not encode line: %+v", err)
		}
	}
	if got, want := buf.String(), "1,TRIGGER_OFF\n2,DATA0,c3 00\n"; got != want {
		t.Fatalf("invalid clean log:\ngot= %q\nwant=%q", got, want)
	}
}

func TestCollector(t *testing.T) {
	var (
		msg = new(bytes.Buffer)
		out = new(bytes.Buffer)
		col = NewCollector(
			func(ticks uint64) uint64 { return ticks * 10 },
			WithLogger(log.New(msg, "", 0)),
			WithWriter(out),
		)
	)

	data := func(pid usb.PID, t uint64, payload ...byte) *usb.Packet {
		var p usb.Packet
		p.Data[0] = byte(pid)
		copy(p.Data[1:], payload)
		p.Len = 1 + len(payload)
		p.Time = t
		return &p
	}

	var on, off usb.Packet
	on.Events = usb.DigitalInput
	on.Time = 2
	off.Events = usb.DigitalInput | 0x1
	off.Time = 1

	bad := data(usb.PIDData1, 5, 0x01, 0x02, 0x03)
	bad.Status = usb.ErrShortBuffer

	for _, p := range []*usb.Packet{
		&off,
		data(usb.PIDData0, 2, 0x00, 0x01, 0x02, 0x03, 0xef, 0x7a),
		&on,
		data(usb.PIDIn, 4, 0x81, 0x08),
		bad,
		data(usb.PIDData1, 6, 0x20, 0x00, 0x00),
	} {
		err := col.Packet(p)
		if err != nil {
			t.Fatalf("could not collect packet: %+v", err)
		}
	}

	var sum collapse.Summary
	sum.Start = 3
	sum.Counts[collapse.SOF] = 2
	err := col.Summary(sum)
	if err != nil {
		t.Fatalf("could not collect summary: %+v", err)
	}

	if got, want := out.String(), strings.Join([]string{
		"10,0,TRIGGER_OFF",
		"20,7,DATA0,c3 00 01 02 03 ef 7a",
		"20,0,TRIGGER_ON",
		"60,4,DATA1,4b 20 00 00",
		"",
	}, "\n"); got != want {
		t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
	}

	if got, want := len(col.Lines()), 4; got != want {
		t.Fatalf("invalid number of lines: got=%d, want=%d", got, want)
	}
	if got, want := col.Triggers(), 2; got != want {
		t.Fatalf("invalid number of triggers: got=%d, want=%d", got, want)
	}
	if got, want := col.Dropped(), 1; got != want {
		t.Fatalf("invalid number of dropped packets: got=%d, want=%d", got, want)
	}
	if got, want := col.BadCRC(), 1; got != want {
		t.Fatalf("invalid number of bad CRC: got=%d, want=%d", got, want)
	}
	if !strings.Contains(msg.String(), "\nCOLLAPSED [2 SOF]\n") {
		t.Fatalf("missing summary in log:\n%s", msg.String())
	}

	col.Reset()
	if len(col.Lines()) != 0 || col.Triggers() != 0 {
		t.Fatalf("collector not reset")
	}
}

func TestCollectorReadBack(t *testing.T) {
	var (
		out = new(bytes.Buffer)
		col = NewCollector(
			func(ticks uint64) uint64 { return ticks },
			WithLogger(log.New(out, "", 0)),
			WithWriter(out),
		)
		eng = collapse.New(col)
	)

	pkt := func(t uint64, ev usb.Event, data ...byte) *usb.Packet {
		var p usb.Packet
		p.Len = copy(p.Data[:], data)
		p.Events = ev
		p.Time = t
		return &p
	}

	for _, p := range []*usb.Packet{
		pkt(1, 0, byte(usb.PIDSOF), 0x01, 0x00),
		pkt(2, 0, byte(usb.PIDSOF), 0x02, 0x00),
		pkt(3, usb.DigitalInput),
		pkt(4, 0, 0xc3, 0x00, 0x00, 0x00, 0x8e, 0x3f),
		pkt(5, 0, byte(usb.PIDOut), 0x01, 0x00),
	} {
		err := eng.Feed(p)
		if err != nil {
			t.Fatalf("could not process packet: %+v", err)
		}
	}
	err := eng.Flush()
	if err != nil {
		t.Fatalf("could not flush engine: %+v", err)
	}

	if !strings.HasPrefix(out.String(), "COLLAPSED [2 SOF]\n") {
		t.Fatalf("invalid summary line:\n%s", out.String())
	}

	got, err := ReadAll(strings.NewReader(out.String()))
	if err != nil {
		t.Fatalf("could not read back collector output: %+v\n%s", err, out.String())
	}

	want := []Line{
		{Time: 3, Len: 0, Kind: TriggerOn},
		{Time: 4, Len: 6, Kind: Data, PID: usb.PIDData0, Payload: []byte{0xc3, 0x00, 0x00, 0x00, 0x8e, 0x3f}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid lines:\ngot= %+v\nwant=%+v", got, want)
	}
	if !reflect.DeepEqual(got, col.Lines()) {
		t.Fatalf("read back lines differ from collected ones:\ngot= %+v\nwant=%+v", got, col.Lines())
	}
}

func TestCollectorCombineSplits(t *testing.T) {
	var sum collapse.Summary
	sum.Counts[collapse.SplitInAck] = 1
	sum.Counts[collapse.SplitOutNyet] = 2

	for _, tc := range []struct {
		combine bool
		want    string
	}{
		{true, "COLLAPSED [3 SPLITS]\n"},
		{false, "COLLAPSED [1 SPLIT/IN/ACK] [2 SPLIT/OUT/NYET]\n"},
	} {
		t.Run(fmt.Sprintf("combine=%v", tc.combine), func(t *testing.T) {
			msg := new(bytes.Buffer)
			col := NewCollector(nil, WithLogger(log.New(msg, "", 0)), WithCombineSplits(tc.combine))
			err := col.Summary(sum)
			if err != nil {
				t.Fatalf("could not collect summary: %+v", err)
			}
			if got, want := msg.String(), tc.want; got != want {
				t.Fatalf("invalid summary: got=%q, want=%q", got, want)
			}
		})
	}
}
