// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beagle

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/usblag/usb"
)

type fakeDriver struct {
	khz   int
	calls []string
	errs  map[string]error
	pkts  []usb.Packet
}

func (drv *fakeDriver) call(name string) error {
	drv.calls = append(drv.calls, name)
	return drv.errs[name]
}

func (drv *fakeDriver) SampleRate() (int, error) {
	return drv.khz, drv.call("samplerate")
}

func (drv *fakeDriver) Configure(cfg Config) error {
	return drv.call(fmt.Sprintf("configure(%v,%v,%v,0x%x)", cfg.Timeout, cfg.Latency, cfg.Speed, cfg.DigitalInput))
}

func (drv *fakeDriver) Enable(p Protocol) error { return drv.call("enable(" + p.String() + ")") }
func (drv *fakeDriver) Disable() error          { return drv.call("disable") }
func (drv *fakeDriver) Close() error            { return drv.call("close") }

func (drv *fakeDriver) Read(p *usb.Packet) error {
	err := drv.call("read")
	if err != nil {
		return err
	}
	if len(drv.pkts) == 0 {
		p.Reset()
		p.Status = usb.EndOfCapture
		return nil
	}
	*p = drv.pkts[0]
	drv.pkts = drv.pkts[1:]
	return nil
}

var _ Driver = (*fakeDriver)(nil)

func TestOpen(t *testing.T) {
	var drv *fakeDriver
	Register("fake-open", func(port string) (Driver, error) {
		if port != "dev0" {
			return nil, fmt.Errorf("no such port %q", port)
		}
		return drv, nil
	})

	for _, tc := range []struct {
		name  string
		drv   string
		port  string
		errs  map[string]error
		calls []string
		err   string
	}{
		{
			name: "ok",
			drv:  "fake-open",
			port: "dev0",
			calls: []string{
				"samplerate",
				"configure(1s,10ms,high,0x3)",
				"enable(USB)",
			},
		},
		{
			name: "unknown-driver",
			drv:  "not-there",
			port: "dev0",
			err:  `beagle: unknown driver "not-there" (forgotten import?)`,
		},
		{
			name: "bad-port",
			drv:  "fake-open",
			port: "dev1",
			err:  `beagle: could not open fake-open device "dev1": no such port "dev1"`,
		},
		{
			name: "configure-error",
			drv:  "fake-open",
			port: "dev0",
			errs: map[string]error{"configure(1s,10ms,high,0x3)": errors.New("boom")},
			calls: []string{
				"samplerate",
				"configure(1s,10ms,high,0x3)",
				"close",
			},
			err: "beagle: could not configure device: boom",
		},
		{
			name: "enable-error",
			drv:  "fake-open",
			port: "dev0",
			errs: map[string]error{"enable(USB)": errors.New("boom")},
			calls: []string{
				"samplerate",
				"configure(1s,10ms,high,0x3)",
				"enable(USB)",
				"close",
			},
			err: "beagle: could not enable USB capture: boom",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			drv = &fakeDriver{khz: 10000, errs: tc.errs}
			sess, err := Open(tc.drv, tc.port,
				WithTimeout(time.Second),
				WithLatency(10*time.Millisecond),
				WithSpeed(SpeedHigh),
				WithDigitalInput(0x3),
			)
			switch {
			case err != nil && tc.err != "":
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
				}
			case err != nil && tc.err == "":
				t.Fatalf("could not open session: %+v", err)
			case err == nil && tc.err != "":
				t.Fatalf("expected an error (%s)", tc.err)
			default:
				defer sess.Close()
				if got, want := sess.SampleRate(), 10000; got != want {
					t.Fatalf("invalid sample rate: got=%d, want=%d", got, want)
				}
			}

			if !reflect.DeepEqual(drv.calls, tc.calls) {
				t.Fatalf("invalid calls:\ngot= %q\nwant=%q", drv.calls, tc.calls)
			}
		})
	}
}

func TestSessionClose(t *testing.T) {
	drv := &fakeDriver{
		khz:  1000,
		errs: map[string]error{"disable": errors.New("boom")},
	}
	sess, err := NewSession(drv)
	if err != nil {
		t.Fatalf("could not create session: %+v", err)
	}

	var p usb.Packet
	err = sess.Read(&p)
	if err != nil {
		t.Fatalf("could not read packet: %+v", err)
	}
	if p.Status&usb.EndOfCapture == 0 {
		t.Fatalf("expected end of capture, got=%v", p.Status)
	}

	err = sess.Close()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "beagle: could not disable capture: boom"; got != want {
		t.Fatalf("invalid error: got=%q, want=%q", got, want)
	}

	// the device is released even if the capture could not be disabled.
	err = sess.Close()
	if err != nil {
		t.Fatalf("second close should be a no-op: %+v", err)
	}

	want := []string{
		"samplerate",
		"configure(500ms,200ms,auto,0x1)",
		"enable(USB)",
		"read",
		"disable",
		"close",
	}
	if !reflect.DeepEqual(drv.calls, want) {
		t.Fatalf("invalid calls:\ngot= %q\nwant=%q", drv.calls, want)
	}
}

func TestSessionInvalidRate(t *testing.T) {
	_, err := NewSession(&fakeDriver{khz: 0})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestSessionTime(t *testing.T) {
	sess := &Session{khz: 480000}
	for _, tc := range []struct {
		ticks uint64
		want  uint64
	}{
		{0, 0},
		{480, 1000},
		{48, 100},
		{480000, 1000000},
		{1 << 60, 2401919801264264533},
	} {
		if got, want := sess.Nanos(tc.ticks), tc.want; got != want {
			t.Fatalf("invalid ns for %d ticks: got=%d, want=%d", tc.ticks, got, want)
		}
	}

	if got, want := sess.Ticks(2*time.Second), uint64(2000*480000); got != want {
		t.Fatalf("invalid ticks: got=%d, want=%d", got, want)
	}
	if got, want := sess.Ticks(0), uint64(0); got != want {
		t.Fatalf("invalid ticks: got=%d, want=%d", got, want)
	}
}

func TestRegister(t *testing.T) {
	open := func(string) (Driver, error) { return nil, nil }
	Register("fake-reg", open)

	found := false
	for _, name := range Drivers() {
		if name == "fake-reg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("driver not registered: %q", Drivers())
	}

	defer func() {
		e := recover()
		if e == nil {
			t.Fatalf("expected a panic")
		}
	}()
	Register("fake-reg", open)
}

func TestParseSpeed(t *testing.T) {
	for _, want := range []Speed{SpeedAuto, SpeedHigh, SpeedFull, SpeedLow} {
		got, err := ParseSpeed(want.String())
		if err != nil {
			t.Fatalf("could not parse %v: %+v", want, err)
		}
		if got != want {
			t.Fatalf("invalid speed: got=%v, want=%v", got, want)
		}
	}
	_, err := ParseSpeed("warp")
	if err == nil {
		t.Fatalf("expected an error")
	}
}
