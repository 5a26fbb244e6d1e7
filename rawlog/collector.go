// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawlog

import (
	"io"
	"log"

	"github.com/go-lpc/usblag/collapse"
	"github.com/go-lpc/usblag/usb"
)

// readErrors are the status flags of a packet whose payload can not be
// trusted.
const readErrors = usb.ErrMidPacket | usb.ErrShortBuffer | usb.ErrPartialByte | usb.ErrUnexpected

// Collector is a collapse.Sink collecting trigger and data lines.
//
// Summaries are written to the collector logger. Packets that are neither
// digital-input transitions nor DATA0/DATA1 packets are only logged.
type Collector struct {
	msg     *log.Logger
	nanos   func(ticks uint64) uint64
	combine bool
	enc     *Encoder

	lines    []Line
	triggers int
	dropped  int
	badCRC   int
}

var _ collapse.Sink = (*Collector)(nil)

// NewCollector creates a new collector converting device ticks into
// nanoseconds with nanos.
func NewCollector(nanos func(ticks uint64) uint64, opts ...Option) *Collector {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	col := &Collector{
		msg:     cfg.msg,
		nanos:   nanos,
		combine: cfg.combine,
	}
	if cfg.w != nil {
		col.enc = NewEncoder(cfg.w)
	}
	if col.nanos == nil {
		col.nanos = func(ticks uint64) uint64 { return ticks }
	}
	return col
}

// Summary implements collapse.Sink.
func (col *Collector) Summary(s collapse.Summary) error {
	col.msg.Print(s.Format(col.combine))
	return nil
}

// Packet implements collapse.Sink.
func (col *Collector) Packet(p *usb.Packet) error {
	line := Line{
		Time: col.nanos(p.Time),
		Len:  p.Len,
	}

	switch tr, ok := usb.TriggerOf(p.Events); {
	case ok:
		line.Kind = KindOf(tr)
		col.triggers++

	case p.PID() == usb.PIDData0 || p.PID() == usb.PIDData1:
		if p.Status&readErrors != 0 {
			col.dropped++
			col.msg.Printf("# %d,%d,%v: dropped (status=%v)", line.Time, p.Len, p.PID(), p.Status)
			return nil
		}
		if !p.CRCValid() {
			col.badCRC++
			col.msg.Printf("# %d,%d,%v: invalid CRC", line.Time, p.Len, p.PID())
		}
		line.Kind = Data
		line.PID = p.PID()
		line.Payload = append([]byte(nil), p.Payload()...)

	default:
		col.msg.Printf("# %d,%d,%v (status=%v, events=%v)", line.Time, p.Len, p.PID(), p.Status, p.Events)
		return nil
	}

	col.lines = append(col.lines, line)
	if col.enc != nil {
		return col.enc.Encode(line)
	}
	return nil
}

// Lines returns the collected lines.
func (col *Collector) Lines() []Line { return col.lines }

// Triggers returns the number of collected trigger transitions.
func (col *Collector) Triggers() int { return col.triggers }

// Dropped returns the number of data packets dropped because of read errors.
func (col *Collector) Dropped() int { return col.dropped }

// BadCRC returns the number of collected data packets with an invalid CRC.
func (col *Collector) BadCRC() int { return col.badCRC }

// Reset clears the collected lines and counters.
func (col *Collector) Reset() {
	col.lines = col.lines[:0]
	col.triggers = 0
	col.dropped = 0
	col.badCRC = 0
}

type config struct {
	msg     *log.Logger
	combine bool
	w       io.Writer
}

func newConfig() config {
	return config{
		msg:     log.New(io.Discard, "rawlog: ", 0),
		combine: true,
	}
}

// Option configures a Collector.
type Option func(*config)

// WithLogger sets the logger receiving summaries and discarded packets.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithCombineSplits configures how collapsed split transactions are
// reported in summaries.
func WithCombineSplits(v bool) Option {
	return func(cfg *config) {
		cfg.combine = v
	}
}

// WithWriter streams the collected lines to w as they arrive.
func WithWriter(w io.Writer) Option {
	return func(cfg *config) {
		cfg.w = w
	}
}
