// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/usblag/latency"
	"github.com/go-lpc/usblag/rawlog"
	"github.com/go-lpc/usblag/report"
)

type script struct {
	answers []string
	prompts []string
}

func (s *script) Prompt(p string) (string, error) {
	s.prompts = append(s.prompts, p)
	if len(s.answers) == 0 {
		return "", io.EOF
	}
	v := s.answers[0]
	s.answers = s.answers[1:]
	return v, nil
}

func (s *script) Close() error { return nil }

// setup creates a configuration replaying the provided capture.
func setup(t *testing.T, capture string, answers ...string) (string, string, *script) {
	t.Helper()

	tmp, err := os.MkdirTemp("", "usblag-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmp) })

	fname := filepath.Join(tmp, "capture.txt")
	err = os.WriteFile(fname, []byte(capture), 0644)
	if err != nil {
		t.Fatalf("could not create capture file: %+v", err)
	}

	odir := filepath.Join(tmp, "out")
	cfg := filepath.Join(tmp, "usblag.yaml")
	err = os.WriteFile(cfg, []byte(`
capture:
  driver: replay
  port: `+fname+`
trigger:
  backend: none
output: `+odir+`
`), 0644)
	if err != nil {
		t.Fatalf("could not create config file: %+v", err)
	}

	term := &script{answers: answers}
	orig := newTerm
	newTerm = func() prompter { return term }
	t.Cleanup(func() { newTerm = orig })

	return cfg, odir, term
}

const (
	// DATA payloads with the button at position 3.
	pressA = `#samplerate=1000000
1000000,0,0x800001,
3000000,0,0,c3000000eeff
5000000,0,0x800000,
9000000,0,0,c3002000eeff
11000000,0,0x800001,
14000000,0,0,c3000000eeff
20000000,0,0x800000,
26000000,0,0,c3002000eeff
`
	// DATA payloads with bytes toggling at positions 3 and 4.
	pressAB = `#samplerate=1000000
1000000,0,0x800001,
3000000,0,0,c3000000eeff
5000000,0,0x800000,
9000000,0,0,c3002001eeff
11000000,0,0x800001,
14000000,0,0,c3000000eeff
20000000,0,0x800000,
26000000,0,0,c3002001eeff
`
	// no payload byte toggling.
	pressNone = `#samplerate=1000000
1000000,0,0x800001,
3000000,0,0,c3000000eeff
5000000,0,0x800000,
9000000,0,0,c3000000eeff
`
	// no DATA payload follows a trigger.
	pressNoBracket = `#samplerate=1000000
1000000,0,0,c3000000eeff
5000000,0,0x800000,
`
)

func TestLatency(t *testing.T) {
	ts := time.Date(2023, time.March, 4, 5, 6, 7, 0, time.UTC)
	defer func(orig func() time.Time) { now = orig }(now)
	now = func() time.Time { return ts }

	cfg, odir, _ := setup(t, pressA)
	out := new(bytes.Buffer)
	err := xmain(context.Background(), []string{
		"-cfg", cfg, "latency",
		"-vid", "dead", "-pid", "beef",
		"-name", "A", "-pos", "3", "-value", "0x20", "-len", "6",
		"-n", "0",
	}, out)
	if err != nil {
		t.Fatalf("could not run latency: %+v", err)
	}

	for _, want := range []string{
		"Device ID - dead:beef\n",
		"Trigger Button Value: 20\n",
		"Triggers sent - 4\n",
		"Clean samples - 4\n",
		"\tMinimum - 2 ms\n",
		"\tMaximum - 6 ms\n",
		"\tAverage - 3.75 ms\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}

	dir := report.Path(odir, latency.Device{VendorID: "dead", ProductID: "beef"}, ts)
	for _, tc := range []struct {
		name  string
		lines int
	}{
		{report.RawFile, 8},
		{report.CleanFile, 8},
		{report.ResultsFile(4), 0},
	} {
		raw, err := os.ReadFile(filepath.Join(dir, tc.name))
		if err != nil {
			t.Fatalf("could not read %q: %+v", tc.name, err)
		}
		if tc.lines == 0 {
			if !bytes.Contains(out.Bytes(), raw[:bytes.Index(raw, []byte("\nDistribution:"))]) {
				t.Fatalf("invalid results file:\n%s", raw)
			}
			continue
		}
		if got, want := strings.Count(string(raw), "\n"), tc.lines; got != want {
			t.Fatalf("invalid number of lines in %q: got=%d, want=%d", tc.name, got, want)
		}
	}

	clean, err := os.ReadFile(filepath.Join(dir, report.CleanFile))
	if err != nil {
		t.Fatalf("could not read clean log: %+v", err)
	}
	if got, want := strings.SplitN(string(clean), "\n", 2)[0], "1000000,TRIGGER_OFF"; got != want {
		t.Fatalf("invalid clean log: got=%q, want=%q", got, want)
	}
}

func TestLatencyNoButton(t *testing.T) {
	cfg, _, _ := setup(t, pressA)
	err := xmain(context.Background(), []string{
		"-cfg", cfg, "latency", "-vid", "dead", "-pid", "beef",
	}, io.Discard)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(err.Error(), "no trigger button profile") {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestDiscover(t *testing.T) {
	for _, tc := range []struct {
		name    string
		capture string
		answers []string
		want    latency.Button
	}{
		{
			name:    "single",
			capture: pressA,
			want:    latency.Button{Position: 3, Value: 0x20, Length: 6, Name: "A"},
		},
		{
			name:    "ambiguous",
			capture: pressAB,
			answers: []string{"x", "3", "2"},
			want:    latency.Button{Position: 4, Value: 0x01, Length: 6, Name: "A"},
		},
		{
			name:    "manual",
			capture: pressNone,
			answers: []string{"3", "0x20", ""},
			want:    latency.Button{Position: 3, Value: 0x20, Length: 6, Name: "A"},
		},
		{
			name:    "manual-no-data",
			capture: pressNoBracket,
			answers: []string{"3", "0x20", ""},
			want:    latency.Button{Position: 3, Value: 0x20, Length: 6, Name: "A"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, _, term := setup(t, tc.capture, tc.answers...)
			out := new(bytes.Buffer)
			err := xmain(context.Background(), []string{
				"-cfg", cfg, "discover",
				"-vid", "dead", "-pid", "beef", "-name", "A",
			}, out)
			if err != nil {
				t.Fatalf("could not run discover: %+v", err)
			}

			want := new(bytes.Buffer)
			printButton(want, tc.want)
			if !strings.HasSuffix(out.String(), want.String()) {
				t.Fatalf("invalid button:\ngot:\n%s\nwant:\n%s", out.String(), want.String())
			}
			if got, want := len(term.prompts), len(tc.answers); got != want {
				t.Fatalf("invalid number of prompts: got=%d, want=%d (%q)", got, want, term.prompts)
			}
		})
	}
}

func TestDiscoverAborted(t *testing.T) {
	cfg, _, _ := setup(t, pressAB)
	err := xmain(context.Background(), []string{
		"-cfg", cfg, "discover", "-vid", "dead", "-pid", "beef", "-name", "A",
	}, io.Discard)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestCollapse(t *testing.T) {
	cfg, _, _ := setup(t, `#samplerate=1000000
10,0,0,a5
20,0,0,a5
30,0,0x800001,
50,0,0,c3000000eeff
`)
	out := new(bytes.Buffer)
	err := xmain(context.Background(), []string{"-cfg", cfg, "collapse"}, out)
	if err != nil {
		t.Fatalf("could not run collapse: %+v", err)
	}
	for _, want := range []string{
		"COLLAPSED [2 SOF]\n",
		"30,0,TRIGGER_OFF\n",
		"50,6,DATA0,c3 00 00 00 ee ff\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}

	lines, err := rawlog.ReadAll(strings.NewReader(out.String()))
	if err != nil {
		t.Fatalf("could not read back collapse output: %+v\n%s", err, out.String())
	}
	if got, want := len(lines), 2; got != want {
		t.Fatalf("invalid number of lines: got=%d, want=%d", got, want)
	}
}

func TestInfo(t *testing.T) {
	cfg, _, _ := setup(t, "")
	out := new(bytes.Buffer)
	err := xmain(context.Background(), []string{
		"-cfg", cfg, "info", "-vid", "dead", "-pid", "beef",
	}, out)
	if err != nil {
		t.Fatalf("could not run info: %+v", err)
	}
	if got, want := strings.SplitN(out.String(), "\n", 2)[0], "Device ID - dead:beef"; got != want {
		t.Fatalf("invalid output: got=%q, want=%q", got, want)
	}
}

func TestErrors(t *testing.T) {
	cfg, _, _ := setup(t, pressA)
	for _, tc := range []struct {
		name string
		args []string
	}{
		{"no-command", []string{"-cfg", cfg}},
		{"unknown-command", []string{"-cfg", cfg, "boo"}},
		{"missing-config", []string{"-cfg", cfg + ".not-there", "info"}},
		{"missing-device", []string{"-cfg", cfg, "discover", "-name", "A"}},
		{"invalid-flag", []string{"-cfg", cfg, "collapse", "-not-a-flag"}},
		{"invalid-button", []string{"-cfg", cfg, "latency", "-vid", "dead", "-pid", "beef", "-pos", "7", "-value", "20", "-len", "6"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := xmain(context.Background(), tc.args, io.Discard)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
