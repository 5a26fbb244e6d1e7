// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture runs the read loop feeding bus events from an
// analyzer to the collapsing engine.
package capture // import "github.com/go-lpc/usblag/capture"

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/usblag/beagle"
	"github.com/go-lpc/usblag/collapse"
	"github.com/go-lpc/usblag/usb"
)

// Source is a source of bus events.
type Source interface {
	// Read reads the next bus event into p.
	Read(p *usb.Packet) error
}

var _ Source = (*beagle.Session)(nil)

// Reason describes why a read loop stopped.
type Reason uint8

const (
	EndOfCapture Reason = iota + 1
	QuotaReached
	Canceled
	DeviceFailure
)

func (r Reason) String() string {
	switch r {
	case EndOfCapture:
		return "end of capture"
	case QuotaReached:
		return "quota reached"
	case Canceled:
		return "canceled"
	case DeviceFailure:
		return "device failure"
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// Result summarizes a read loop.
type Result struct {
	Reason Reason
	Reads  int // number of reads from the source, timeouts included
	Stats  collapse.Stats
}

// Run reads bus events from src and feeds them to eng until the source
// reports the end of the capture, the trigger quota is reached or ctx is
// canceled. The engine is flushed on every exit path.
//
// A negative packet length aborts the loop with a *beagle.DeviceError.
func Run(ctx context.Context, src Source, eng *collapse.Engine, opts ...Option) (Result, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		res  Result
		next = 10 // next progress step, in percent
	)

	flush := func() error {
		err := eng.Flush()
		res.Stats = eng.Stats()
		if err != nil {
			return fmt.Errorf("capture: could not flush engine: %w", err)
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			res.Reason = Canceled
			return res, flush()
		}

		p := eng.Slot()
		err := src.Read(p)
		if err != nil {
			res.Reason = DeviceFailure
			if ferr := flush(); ferr != nil {
				cfg.msg.Printf("%+v", ferr)
			}
			return res, fmt.Errorf("capture: could not read bus event: %w", err)
		}
		res.Reads++

		switch {
		case p.Status&usb.EndOfCapture != 0:
			res.Reason = EndOfCapture
			return res, flush()

		case p.Len < 0:
			res.Reason = DeviceFailure
			if ferr := flush(); ferr != nil {
				cfg.msg.Printf("%+v", ferr)
			}
			return res, &beagle.DeviceError{Op: "read", Code: p.Len}
		}

		err = eng.Process()
		if err != nil {
			res.Stats = eng.Stats()
			return res, fmt.Errorf("capture: could not process bus event: %w", err)
		}

		if cfg.quota <= 0 {
			continue
		}

		n := eng.Stats().Triggers
		for next <= 90 && 100*n >= next*cfg.quota {
			cfg.msg.Printf("%d%% complete", next)
			next += 10
		}
		if n >= cfg.quota {
			res.Reason = QuotaReached
			return res, flush()
		}
	}
}

type config struct {
	msg   *log.Logger
	quota int
}

func newConfig() config {
	return config{
		msg: log.New(io.Discard, "capture: ", 0),
	}
}

// Option configures a read loop.
type Option func(*config)

// WithQuota stops the read loop once n trigger transitions were seen.
// A zero quota reads until the end of the capture.
func WithQuota(n int) Option {
	return func(cfg *config) {
		cfg.quota = n
	}
}

// WithLogger sets the logger reporting the loop progress.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
