// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package replay provides an analyzer driver replaying captures stored
// in a flat text file.
//
// Each line of a capture describes one bus event:
//
//	<ticks>,<status>,<events>,<packet>
//
// where status and events are the analyzer bitmasks (decimal or 0x-prefixed
// hexadecimal), and packet is the hex-encoded packet, PID byte included.
// A negative decimal integer in place of the packet holds a device error
// code. Lines starting with '#' are comments, except for the
//
//	#samplerate=<kHz>
//
// directive that sets the device clock rate.
//
// Importing this package registers the "replay" driver; the port is the
// name of the capture file.
package replay // import "github.com/go-lpc/usblag/beagle/replay"

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/usblag/beagle"
	"github.com/go-lpc/usblag/usb"
)

// DefaultSampleRate is the sample rate used when a capture does not
// declare one: one tick per nanosecond.
const DefaultSampleRate = 1000000

const rateDirective = "#samplerate="

func init() {
	beagle.Register("replay", func(port string) (beagle.Driver, error) {
		f, err := os.Open(port)
		if err != nil {
			return nil, fmt.Errorf("replay: could not open capture file: %w", err)
		}
		return newDriver(f, f), nil
	})
}

// Driver replays a captured stream of bus events.
type Driver struct {
	sc *bufio.Scanner
	rc io.Closer

	khz  int
	next string // first event line, read while looking for the sample rate
	cfg  beagle.Config
	ln   int

	enabled bool
	eof     bool
}

var _ beagle.Driver = (*Driver)(nil)

// New returns a replay driver reading bus events from r.
func New(r io.Reader) *Driver {
	return newDriver(r, nil)
}

func newDriver(r io.Reader, c io.Closer) *Driver {
	return &Driver{
		sc:  bufio.NewScanner(r),
		rc:  c,
		khz: -1,
	}
}

// SampleRate implements beagle.Driver.
func (drv *Driver) SampleRate() (int, error) {
	if drv.khz > 0 {
		return drv.khz, nil
	}

	drv.khz = DefaultSampleRate
	for drv.sc.Scan() {
		drv.ln++
		txt := strings.TrimSpace(drv.sc.Text())
		switch {
		case txt == "":
			continue
		case strings.HasPrefix(txt, rateDirective):
			v, err := strconv.Atoi(strings.TrimPrefix(txt, rateDirective))
			if err != nil || v <= 0 {
				return 0, fmt.Errorf("replay: invalid sample rate directive %q (line %d)", txt, drv.ln)
			}
			drv.khz = v
			return drv.khz, nil
		case strings.HasPrefix(txt, "#"):
			continue
		default:
			drv.next = txt
			return drv.khz, nil
		}
	}
	return drv.khz, drv.sc.Err()
}

// Configure implements beagle.Driver.
func (drv *Driver) Configure(cfg beagle.Config) error {
	drv.cfg = cfg
	return nil
}

// Enable implements beagle.Driver.
func (drv *Driver) Enable(p beagle.Protocol) error {
	if p != beagle.ProtocolUSB {
		return fmt.Errorf("replay: unsupported protocol %v", p)
	}
	drv.enabled = true
	return nil
}

// Disable implements beagle.Driver.
func (drv *Driver) Disable() error {
	drv.enabled = false
	return nil
}

// Close implements beagle.Driver.
func (drv *Driver) Close() error {
	if drv.rc == nil {
		return nil
	}
	err := drv.rc.Close()
	drv.rc = nil
	return err
}

// Read implements beagle.Driver.
func (drv *Driver) Read(p *usb.Packet) error {
	if !drv.enabled {
		return fmt.Errorf("replay: capture not enabled")
	}

	p.Reset()
	if drv.eof {
		p.Status = usb.EndOfCapture
		return nil
	}

	txt, ok := drv.line()
	if !ok {
		if err := drv.sc.Err(); err != nil {
			return fmt.Errorf("replay: could not read capture: %w", err)
		}
		drv.eof = true
		p.Status = usb.EndOfCapture
		return nil
	}

	err := Decode(p, txt)
	if err != nil {
		return fmt.Errorf("replay: line %d: %w", drv.ln, err)
	}
	return nil
}

func (drv *Driver) line() (string, bool) {
	if drv.next != "" {
		txt := drv.next
		drv.next = ""
		return txt, true
	}
	for drv.sc.Scan() {
		drv.ln++
		txt := strings.TrimSpace(drv.sc.Text())
		if txt == "" || strings.HasPrefix(txt, "#") {
			continue
		}
		return txt, true
	}
	return "", false
}

// Decode decodes one capture line into p.
func Decode(p *usb.Packet, txt string) error {
	toks := strings.Split(txt, ",")
	if len(toks) != 4 {
		return fmt.Errorf("invalid number of fields (got=%d, want=4)", len(toks))
	}

	ticks, err := strconv.ParseUint(strings.TrimSpace(toks[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("could not parse timestamp: %w", err)
	}

	status, err := strconv.ParseUint(strings.TrimSpace(toks[1]), 0, 32)
	if err != nil {
		return fmt.Errorf("could not parse status: %w", err)
	}

	events, err := strconv.ParseUint(strings.TrimSpace(toks[2]), 0, 32)
	if err != nil {
		return fmt.Errorf("could not parse events: %w", err)
	}

	p.Time = ticks
	p.Status = usb.Status(status)
	p.Events = usb.Event(events)

	raw := strings.TrimSpace(toks[3])
	if strings.HasPrefix(raw, "-") {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("could not parse device error code: %w", err)
		}
		p.Len = code
		return nil
	}

	if hex.DecodedLen(len(raw)) > len(p.Data) {
		return fmt.Errorf("packet too large (%d bytes)", hex.DecodedLen(len(raw)))
	}
	n, err := hex.Decode(p.Data[:], []byte(raw))
	if err != nil {
		return fmt.Errorf("could not decode packet: %w", err)
	}
	p.Len = n

	return nil
}

// Encoder writes bus events in the replay capture format.
type Encoder struct {
	w   io.Writer
	err error
}

// NewEncoder returns a new Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteSampleRate writes the sample rate directive.
// It must be called before any packet is encoded.
func (enc *Encoder) WriteSampleRate(khz int) error {
	if enc.err != nil {
		return enc.err
	}
	_, enc.err = fmt.Fprintf(enc.w, "%s%d\n", rateDirective, khz)
	return enc.err
}

// Encode writes one bus event.
func (enc *Encoder) Encode(p *usb.Packet) error {
	if enc.err != nil {
		return enc.err
	}
	var raw string
	switch {
	case p.Len < 0:
		raw = strconv.Itoa(p.Len)
	default:
		raw = hex.EncodeToString(p.Payload())
	}
	_, enc.err = fmt.Fprintf(enc.w, "%d,0x%x,0x%x,%s\n", p.Time, uint32(p.Status), uint32(p.Events), raw)
	return enc.err
}
