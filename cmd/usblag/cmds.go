// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/usblag/latency"
	"github.com/go-lpc/usblag/report"
	"github.com/go-lpc/usblag/usbinfo"
)

func (app *app) info(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("info", flag.ContinueOnError)
	var (
		vid = fset.String("vid", "", "vendor ID of the device under test")
		pid = fset.String("pid", "", "product ID of the device under test")
	)
	err := fset.Parse(args)
	if err != nil {
		return err
	}

	if *vid == "" && *pid == "" {
		devs, err := usbinfo.List()
		if err != nil {
			return fmt.Errorf("could not list USB devices: %w", err)
		}
		for i, dev := range devs {
			fmt.Fprintf(app.stdout, "%d - %v\n", i+1, dev)
		}
		return nil
	}

	dev, err := app.device(ctx, *vid, *pid)
	if err != nil {
		return err
	}
	printDevice(app.stdout, dev)
	return nil
}

func (app *app) collapse(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("collapse", flag.ContinueOnError)
	app.captureFlags(fset)
	var (
		oname = fset.String("o", "", "path to output file (default: stdout)")
		quota = fset.Int("n", 0, "number of trigger transitions to capture (0: until the end of the capture)")
		trig  = fset.Bool("gen", false, "run the trigger generator during the capture")
	)
	err := fset.Parse(args)
	if err != nil {
		return err
	}

	w := app.stdout
	if *oname != "" {
		f, err := os.Create(*oname)
		if err != nil {
			return fmt.Errorf("could not create output file: %w", err)
		}
		defer f.Close()
		bw := bufio.NewWriter(f)
		defer bw.Flush()
		w = bw
	}

	_, res, err := app.capture(ctx, w, log.New(w, "", 0), *quota, *trig)
	if err != nil {
		return err
	}

	app.msg.Printf(
		"%v: packets=%d, folded=%d, summaries=%d, triggers=%d",
		res.Reason, res.Stats.Packets, res.Stats.Folded,
		res.Stats.Summaries, res.Stats.Triggers,
	)
	return nil
}

func (app *app) discover(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("discover", flag.ContinueOnError)
	app.captureFlags(fset)
	var (
		vid = fset.String("vid", "", "vendor ID of the device under test")
		pid = fset.String("pid", "", "product ID of the device under test")
		nam = fset.String("name", "", "name of the trigger button (eg. A, B, X, ...)")
		n   = fset.Int("n", 10, "number of trigger transitions to capture")
	)
	err := fset.Parse(args)
	if err != nil {
		return err
	}

	dev, err := app.device(ctx, *vid, *pid)
	if err != nil {
		return err
	}

	name := *nam
	if name == "" {
		name, err = app.prompt("Trigger button name (eg. A, B, X, ...): ")
		if err != nil {
			return err
		}
	}

	app.msg.Printf("running %d test triggers to find trigger button details...", *n)
	col, _, err := app.capture(ctx, nil, app.dbg, *n, true)
	if err != nil {
		return err
	}

	lines := col.Lines()
	length, err := app.length(lines)
	if err != nil {
		return fmt.Errorf("could not select DATA payload length: %w", err)
	}

	clean, err := latency.Clean(lines, length, nil)
	if err != nil {
		return fmt.Errorf("could not clean capture: %w", err)
	}

	off, on := clean.Samples()
	btn, err := latency.Discover(off, on, latency.ChooserFunc(app.choose))
	switch {
	case errors.Is(err, latency.ErrNoCandidate), errors.Is(err, latency.ErrNoData):
		app.msg.Printf("could not find trigger byte: %v", err)
		btn, err = app.manual(length)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("could not discover trigger button: %w", err)
	}
	btn.Name = name

	printDevice(app.stdout, dev)
	printButton(app.stdout, btn)

	db, err := app.db()
	if err != nil {
		return err
	}
	if db != nil {
		err = db.SaveButton(ctx, dev, btn)
		if err != nil {
			return err
		}
	}
	return nil
}

func (app *app) latency(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("latency", flag.ContinueOnError)
	app.captureFlags(fset)
	var (
		vid   = fset.String("vid", "", "vendor ID of the device under test")
		pid   = fset.String("pid", "", "product ID of the device under test")
		nam   = fset.String("name", "", "name of the trigger button")
		pos   = fset.Int("pos", 0, "position of the trigger button byte (count from 1)")
		val   = fset.String("value", "", "value of the trigger button byte when pressed (hex)")
		size  = fset.Int("len", 0, "length of the DATA payloads reporting the trigger button")
		n     = fset.Int("n", app.cfg.Capture.Triggers, "number of trigger transitions to capture")
		nbins = fset.Int("nbins", 20, "number of bins of the latency distribution")
		odir  = fset.String("o", app.cfg.Output, "output directory")
		mail  = fset.Bool("mail", false, "mail the results report")
	)
	err := fset.Parse(args)
	if err != nil {
		return err
	}

	dev, err := app.device(ctx, *vid, *pid)
	if err != nil {
		return err
	}

	btn, err := app.button(ctx, dev, *nam, *pos, *val, *size)
	if err != nil {
		return err
	}

	start := app.now()
	app.msg.Printf("running %d test triggers...", *n)
	col, res, err := app.capture(ctx, nil, app.dbg, *n, true)
	if err != nil {
		return err
	}
	app.msg.Printf("elapsed time to collect %d triggers: %v", res.Stats.Triggers, app.now().Sub(start))

	run, err := report.Create(*odir, dev, start)
	if err != nil {
		return err
	}

	lines := col.Lines()
	raw, err := run.WriteRaw(lines)
	if err != nil {
		return err
	}
	app.msg.Printf("saved raw collection to %s", raw)

	clean, err := latency.Clean(lines, btn.Length, &btn)
	if err != nil {
		return fmt.Errorf("could not clean capture: %w", err)
	}
	if clean.Violations > 0 {
		app.msg.Printf("discarded %d out of sequence trigger transitions", clean.Violations)
	}

	cleaned, err := run.WriteClean(clean.Lines())
	if err != nil {
		return err
	}

	xs := latency.Latencies(clean.Brackets)
	st, err := latency.Compute(xs)
	if err != nil {
		return fmt.Errorf("could not compute latency: %w", err)
	}
	app.msg.Printf("%d clean samples collected, out of %d triggers sent", st.N, res.Stats.Triggers)

	results := report.Results{
		Device:   dev,
		Button:   btn,
		Triggers: res.Stats.Triggers,
		Stats:    st,
		Hist:     latency.Histogram(xs, *nbins),
	}
	fname, err := run.WriteResults(results)
	if err != nil {
		return err
	}

	_, err = results.WriteTo(app.stdout)
	if err != nil {
		return fmt.Errorf("could not display results: %w", err)
	}

	db, err := app.db()
	if err != nil {
		return err
	}
	if db != nil {
		err = db.SaveRun(ctx, results, run.Dir)
		if err != nil {
			return err
		}
	}

	if *mail {
		err = app.cfg.Mailer().Send(results, raw, cleaned, fname)
		if err != nil {
			return err
		}
	}

	return nil
}

// button returns the trigger button profile from the command line, or
// from the devices catalog.
func (app *app) button(ctx context.Context, dev latency.Device, name string, pos int, val string, size int) (latency.Button, error) {
	if pos != 0 || val != "" || size != 0 {
		v, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 8)
		if err != nil {
			return latency.Button{}, fmt.Errorf("invalid trigger button value %q: %w", val, err)
		}
		btn := latency.Button{
			Position: pos,
			Value:    byte(v),
			Length:   size,
			Name:     name,
		}
		return btn, btn.Validate()
	}

	db, err := app.db()
	if err != nil {
		return latency.Button{}, err
	}
	if db == nil {
		return latency.Button{}, fmt.Errorf("no trigger button profile for %s: run discover or provide -pos, -value and -len", dev.ID())
	}
	return db.Button(ctx, dev.VendorID, dev.ProductID, name)
}

func printDevice(w io.Writer, dev latency.Device) {
	fmt.Fprintf(w, "Device ID - %s\n", dev.ID())
	fmt.Fprintf(w, "Manufacturer - %s\n", dev.Manufacturer)
	fmt.Fprintf(w, "Product - %s\n", dev.Product)
	fmt.Fprintf(w, "Version - %s\n", dev.Version)
	fmt.Fprintf(w, "Serial - %s\n", dev.Serial)
}

func printButton(w io.Writer, btn latency.Button) {
	fmt.Fprintf(w, "Trigger Button Position: %d\n", btn.Position)
	fmt.Fprintf(w, "Trigger Button Value: %02x\n", btn.Value)
	fmt.Fprintf(w, "Trigger Button Packet Length: %d\n", btn.Length)
	fmt.Fprintf(w, "Trigger Button Name: %s\n", btn.Name)
}
