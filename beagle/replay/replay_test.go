// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replay

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/usblag/beagle"
	"github.com/go-lpc/usblag/usb"
)

const capture = `# recorded on a bench
#samplerate=480000

100,0x0,0x0,a5ff07
200,0x100,0x0,
300,0x0,0x800000,
400,0x10000,0x0,c30001020304ef7a
500,0x0,0x8000,
`

func TestDriver(t *testing.T) {
	drv := New(strings.NewReader(capture))
	sess, err := beagle.NewSession(drv)
	if err != nil {
		t.Fatalf("could not create session: %+v", err)
	}
	defer sess.Close()

	if got, want := sess.SampleRate(), 480000; got != want {
		t.Fatalf("invalid sample rate: got=%d, want=%d", got, want)
	}

	type event struct {
		time   uint64
		len    int
		status usb.Status
		events usb.Event
		pid    usb.PID
	}

	var got []event
	for {
		var p usb.Packet
		err := sess.Read(&p)
		if err != nil {
			t.Fatalf("could not read packet: %+v", err)
		}
		if p.Status&usb.EndOfCapture != 0 {
			break
		}
		got = append(got, event{p.Time, p.Len, p.Status, p.Events, p.PID()})
	}

	want := []event{
		{100, 3, usb.OK, 0, usb.PIDSOF},
		{200, 0, usb.Timeout, 0, 0},
		{300, 0, usb.OK, usb.DigitalInput, 0},
		{400, 8, usb.BadSignals, 0, usb.PIDData0},
		{500, 0, usb.OK, usb.KeepAlive, 0},
	}
	if len(got) != len(want) {
		t.Fatalf("invalid number of packets: got=%d, want=%d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("invalid packet %d:\ngot= %+v\nwant=%+v", i, got[i], want[i])
		}
	}

	// end of capture is sticky.
	var p usb.Packet
	err = sess.Read(&p)
	if err != nil {
		t.Fatalf("could not read packet: %+v", err)
	}
	if p.Status != usb.EndOfCapture {
		t.Fatalf("invalid status: got=%v, want=%v", p.Status, usb.EndOfCapture)
	}
}

func TestDefaultSampleRate(t *testing.T) {
	drv := New(strings.NewReader("10,0,0,69\n"))
	khz, err := drv.SampleRate()
	if err != nil {
		t.Fatalf("could not get sample rate: %+v", err)
	}
	if got, want := khz, DefaultSampleRate; got != want {
		t.Fatalf("invalid sample rate: got=%d, want=%d", got, want)
	}

	err = drv.Enable(beagle.ProtocolUSB)
	if err != nil {
		t.Fatalf("could not enable capture: %+v", err)
	}

	// the first event line must not be lost while looking for the rate.
	var p usb.Packet
	err = drv.Read(&p)
	if err != nil {
		t.Fatalf("could not read packet: %+v", err)
	}
	if got, want := p.PID(), usb.PIDIn; got != want {
		t.Fatalf("invalid PID: got=%v, want=%v", got, want)
	}
}

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		line string
		err  bool
		len  int
	}{
		{line: "1,0,0,69", len: 1},
		{line: "1,0,0,-3", len: -3},
		{line: "1,0,0,", len: 0},
		{line: "1,0,0", err: true},
		{line: "x,0,0,69", err: true},
		{line: "1,y,0,69", err: true},
		{line: "1,0,z,69", err: true},
		{line: "1,0,0,6", err: true},
		{line: "1,0,0,-x", err: true},
		{line: "1,0,0," + strings.Repeat("00", usb.MaxPacketSize+1), err: true},
	} {
		t.Run(tc.line, func(t *testing.T) {
			var p usb.Packet
			err := Decode(&p, tc.line)
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not decode line: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error")
			case err == nil:
				if got, want := p.Len, tc.len; got != want {
					t.Fatalf("invalid length: got=%d, want=%d", got, want)
				}
			}
		})
	}
}

func TestReadNotEnabled(t *testing.T) {
	drv := New(strings.NewReader(capture))
	var p usb.Packet
	err := drv.Read(&p)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestEncoder(t *testing.T) {
	var (
		buf = new(bytes.Buffer)
		enc = NewEncoder(buf)
	)

	err := enc.WriteSampleRate(1000)
	if err != nil {
		t.Fatalf("could not write sample rate: %+v", err)
	}

	var pkts [3]usb.Packet
	pkts[0].Time = 1
	pkts[0].Data[0] = byte(usb.PIDAck)
	pkts[0].Len = 1
	pkts[1].Time = 2
	pkts[1].Events = usb.DigitalInput | 0x1
	pkts[2].Time = 3
	pkts[2].Len = -2

	for i := range pkts {
		err := enc.Encode(&pkts[i])
		if err != nil {
			t.Fatalf("could not encode packet %d: %+v", i, err)
		}
	}

	want := "#samplerate=1000\n1,0x0,0x0,d2\n2,0x0,0x800001,\n3,0x0,0x0,-2\n"
	if got := buf.String(); got != want {
		t.Fatalf("invalid capture:\ngot:\n%s\nwant:\n%s", got, want)
	}

	tmp, err := os.MkdirTemp("", "usblag-replay-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	fname := filepath.Join(tmp, "capture.txt")
	err = os.WriteFile(fname, buf.Bytes(), 0644)
	if err != nil {
		t.Fatalf("could not write capture file: %+v", err)
	}

	sess, err := beagle.Open("replay", fname)
	if err != nil {
		t.Fatalf("could not open replay session: %+v", err)
	}
	defer sess.Close()

	if got, want := sess.SampleRate(), 1000; got != want {
		t.Fatalf("invalid sample rate: got=%d, want=%d", got, want)
	}

	for i := range pkts {
		var p usb.Packet
		err := sess.Read(&p)
		if err != nil {
			t.Fatalf("could not read packet %d: %+v", i, err)
		}
		if got, want := p.Time, pkts[i].Time; got != want {
			t.Fatalf("invalid time %d: got=%d, want=%d", i, got, want)
		}
		if got, want := p.Len, pkts[i].Len; got != want {
			t.Fatalf("invalid length %d: got=%d, want=%d", i, got, want)
		}
		if got, want := p.Events, pkts[i].Events; got != want {
			t.Fatalf("invalid events %d: got=%v, want=%v", i, got, want)
		}
	}

	_, err = beagle.Open("replay", filepath.Join(tmp, "not-there.txt"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
