// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usblag-trigger presses and releases the trigger button of the
// device under test at random intervals, until interrupted.
//
// usblag-trigger is meant to be run as a separate process by the
// latency runs of usblag, so the trigger timing is not disturbed by the
// capture.
package main // import "github.com/go-lpc/usblag/cmd/usblag-trigger"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-lpc/usblag/config"
	"github.com/go-lpc/usblag/trigger"
)

func main() {
	log.SetPrefix("usblag-trigger: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "", "path to a YAML configuration file")
		backend = flag.String("backend", "", "trigger backend (gpio, ftdi, smbus)")
		minDly  = flag.Duration("min", 0, "minimum delay between trigger transitions")
		maxDly  = flag.Duration("max", 0, "maximum delay between trigger transitions")
		seed    = flag.Int64("seed", 0, "seed of the delays generator (0: time based)")
		presses = flag.Int("n", 0, "number of presses (0: until interrupted)")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	cfg := config.Default()
	if *cfgName != "" {
		var err error
		cfg, err = config.Load(*cfgName)
		if err != nil {
			log.Fatalf("could not load configuration: %+v", err)
		}
	}
	if *backend != "" {
		cfg.Trigger.Backend = *backend
	}
	if *minDly > 0 {
		cfg.Trigger.MinDelay = *minDly
	}
	if *maxDly > 0 {
		cfg.Trigger.MaxDelay = *maxDly
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	msg := log.New(os.Stderr, "usblag-trigger: ", 0)
	if !*verbose {
		msg.SetOutput(io.Discard)
	}

	err := run(ctx, cfg.Trigger, msg, *seed, *presses)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, cfg config.Trigger, msg *log.Logger, seed int64, n int) error {
	out, err := cfg.Output()
	if err != nil {
		return fmt.Errorf("could not open trigger output: %w", err)
	}
	if out == nil {
		return fmt.Errorf("no trigger output (backend=%q)", cfg.Backend)
	}

	opts := []trigger.Option{
		trigger.WithDelays(cfg.MinDelay, cfg.MaxDelay),
		trigger.WithPresses(n),
		trigger.WithLogger(msg),
	}
	if seed != 0 {
		opts = append(opts, trigger.WithSeed(seed))
	}

	gen := trigger.NewGenerator(out, opts...)
	start := time.Now()
	err = gen.Run(ctx)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("could not run trigger generator: %w", err)
	}
	msg.Printf("%d presses in %v", gen.Presses(), time.Since(start).Round(time.Millisecond))

	err = out.Close()
	if err != nil {
		return fmt.Errorf("could not release trigger output: %w", err)
	}
	return nil
}
