// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/usblag/beagle"
	"github.com/go-lpc/usblag/capture"
	"github.com/go-lpc/usblag/collapse"
	"github.com/go-lpc/usblag/config"
	"github.com/go-lpc/usblag/devdb"
	"github.com/go-lpc/usblag/latency"
	"github.com/go-lpc/usblag/rawlog"
	"github.com/go-lpc/usblag/trigger"
	"github.com/go-lpc/usblag/usbinfo"
)

type app struct {
	cfg    config.Config
	stdout io.Writer
	msg    *log.Logger // operator messages
	dbg    *log.Logger // library diagnostics, enabled in verbose mode

	term    prompter
	catalog *devdb.DB

	now func() time.Time
}

var now = time.Now

func newApp(cfg config.Config, stdout io.Writer, verbose bool) *app {
	app := &app{
		cfg:    cfg,
		stdout: stdout,
		msg:    log.New(os.Stderr, "usblag: ", 0),
		dbg:    log.New(io.Discard, "usblag: ", 0),
		now:    now,
	}
	if verbose {
		app.dbg = app.msg
	}
	return app
}

func (app *app) close() {
	if app.term != nil {
		_ = app.term.Close()
	}
	if app.catalog != nil {
		err := app.catalog.Close()
		if err != nil {
			app.msg.Printf("could not close devices catalog: %+v", err)
		}
	}
}

func (app *app) captureFlags(fset *flag.FlagSet) {
	c := &app.cfg.Capture
	fset.StringVar(&c.Driver, "driver", c.Driver, "capture driver")
	fset.StringVar(&c.Port, "port", c.Port, "capture device port")
	fset.StringVar(&c.Speed, "speed", c.Speed, "bus speed (auto, high, full, low)")
	fset.DurationVar(&c.Idle, "idle", c.Idle, "maximum duration of a collapse window")
	fset.BoolVar(&c.Combine, "combine", c.Combine, "report all split transactions as a single count")
	fset.StringVar(&app.cfg.Trigger.Backend, "trigger", app.cfg.Trigger.Backend, "trigger backend (gpio, ftdi, smbus, none)")
}

// db returns the devices catalog, or nil if none was configured.
func (app *app) db() (*devdb.DB, error) {
	if app.cfg.DB.Name == "" {
		return nil, nil
	}
	if app.catalog != nil {
		return app.catalog, nil
	}
	db, err := devdb.Open(app.cfg.DB.Name)
	if err != nil {
		return nil, fmt.Errorf("could not open devices catalog: %w", err)
	}
	app.catalog = db
	return app.catalog, nil
}

// device identifies the device vid:pid from the host USB devices, then from
// the devices catalog.
func (app *app) device(ctx context.Context, vid, pid string) (latency.Device, error) {
	if vid == "" || pid == "" {
		return latency.Device{}, fmt.Errorf("missing device vendor and product IDs")
	}

	db, err := app.db()
	if err != nil {
		return latency.Device{}, err
	}

	hdev, err := usbinfo.Lookup(vid, pid)
	if err == nil {
		if db != nil {
			err = db.SaveDevice(ctx, hdev.Device)
			if err != nil {
				app.msg.Printf("%+v", err)
			}
		}
		return hdev.Device, nil
	}
	app.dbg.Printf("could not identify device from host: %+v", err)

	if db != nil {
		dev, err := db.Device(ctx, vid, pid)
		if err == nil {
			return dev, nil
		}
		app.dbg.Printf("could not identify device from catalog: %+v", err)
	}

	app.msg.Printf("device %s:%s not identified", vid, pid)
	return latency.Device{VendorID: vid, ProductID: pid}, nil
}

// trigger returns the configured trigger generator, or nil if the trigger
// is disabled.
func (app *app) trigger() (trigger.Runner, func() error, error) {
	var (
		t    = app.cfg.Trigger
		noop = func() error { return nil }
	)

	if len(t.Command) > 0 {
		proc := trigger.NewProcess(
			t.Command[0], t.Command[1:],
			trigger.WithProcessLogger(app.msg),
			trigger.WithOutput(os.Stderr),
		)
		return proc, noop, nil
	}

	out, err := t.Output()
	if err != nil {
		return nil, noop, fmt.Errorf("could not open trigger output: %w", err)
	}
	if out == nil {
		return nil, noop, nil
	}

	gen := trigger.NewGenerator(
		out,
		trigger.WithDelays(t.MinDelay, t.MaxDelay),
		trigger.WithLogger(app.dbg),
	)
	return gen, out.Close, nil
}

// capture runs the read loop until quota trigger transitions were seen.
// Collected lines are streamed to w, if any. Collapse summaries are
// written to sum.
func (app *app) capture(ctx context.Context, w io.Writer, sum *log.Logger, quota int, trig bool) (*rawlog.Collector, capture.Result, error) {
	var (
		c   = app.cfg.Capture
		res capture.Result
	)

	spd, err := beagle.ParseSpeed(c.Speed)
	if err != nil {
		return nil, res, err
	}

	sess, err := beagle.Open(
		c.Driver, c.Port,
		beagle.WithTimeout(c.Timeout),
		beagle.WithLatency(c.Latency),
		beagle.WithSpeed(spd),
		beagle.WithDigitalInput(c.DigitalInput),
		beagle.WithLogger(app.dbg),
	)
	if err != nil {
		return nil, res, fmt.Errorf("could not open capture device: %w", err)
	}
	defer sess.Close()

	opts := []rawlog.Option{
		rawlog.WithCombineSplits(c.Combine),
		rawlog.WithLogger(sum),
	}
	if w != nil {
		opts = append(opts, rawlog.WithWriter(w))
	}
	col := rawlog.NewCollector(sess.Nanos, opts...)

	eng := collapse.New(
		col,
		collapse.WithIdleThreshold(sess.Ticks(c.Idle)),
		collapse.WithLogger(app.dbg),
	)

	run := capture.Session{Source: sess, Engine: eng}
	if trig {
		gen, release, err := app.trigger()
		if err != nil {
			return col, res, err
		}
		defer func() {
			err := release()
			if err != nil {
				app.msg.Printf("could not release trigger output: %+v", err)
			}
		}()
		if gen != nil {
			run.Trigger = gen
		}
	}

	res, err = run.Run(ctx, capture.WithQuota(quota), capture.WithLogger(app.msg))
	if err != nil {
		return col, res, fmt.Errorf("could not run capture: %w", err)
	}

	err = sess.Close()
	if err != nil {
		return col, res, fmt.Errorf("could not close capture device: %w", err)
	}

	app.dbg.Printf(
		"capture stopped: %v (reads=%d, triggers=%d, dropped=%d, bad-crc=%d)",
		res.Reason, res.Reads, col.Triggers(), col.Dropped(), col.BadCRC(),
	)

	return col, res, nil
}
