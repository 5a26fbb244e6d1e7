// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usblag measures the input latency of USB devices from the bus
// events captured by a USB protocol analyzer.
//
// Usage:
//
//	usblag [options] <command> [arguments]
//
// The commands are:
//
//	info      identify the device under test
//	collapse  stream the collapsed bus activity
//	discover  find the payload byte reporting the trigger button
//	latency   measure the latency of the trigger button
//
// Example:
//
//	$> usblag -cfg usblag.yaml discover -vid 045e -pid 0b12 -name A
//	$> usblag -cfg usblag.yaml latency  -vid 045e -pid 0b12 -name A -n 100
package main // import "github.com/go-lpc/usblag/cmd/usblag"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/go-lpc/usblag"
	_ "github.com/go-lpc/usblag/beagle/replay"
	"github.com/go-lpc/usblag/config"
)

func main() {
	log.SetPrefix("usblag: ")
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := xmain(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(ctx context.Context, args []string, stdout io.Writer) error {
	fset := flag.NewFlagSet("usblag", flag.ContinueOnError)
	var (
		cfgName = fset.String("cfg", "", "path to a YAML configuration file")
		verbose = fset.Bool("v", false, "enable verbose mode")
		version = fset.Bool("version", false, "print version and exit")
	)
	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `Usage: usblag [options] <command> [arguments]

Commands:
  info      identify the device under test
  collapse  stream the collapsed bus activity
  discover  find the payload byte reporting the trigger button
  latency   measure the latency of the trigger button

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return err
	}

	if *version {
		v, sum := usblag.Version()
		fmt.Fprintf(stdout, "usblag %s %s\n", v, sum)
		return nil
	}

	if fset.NArg() == 0 {
		fset.Usage()
		return fmt.Errorf("missing command")
	}

	cfg := config.Default()
	if *cfgName != "" {
		cfg, err = config.Load(*cfgName)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}

	app := newApp(cfg, stdout, *verbose)
	defer app.close()

	cmd, args := fset.Arg(0), fset.Args()[1:]
	switch cmd {
	case "info":
		return app.info(ctx, args)
	case "collapse":
		return app.collapse(ctx, args)
	case "discover":
		return app.discover(ctx, args)
	case "latency":
		return app.latency(ctx, args)
	default:
		fset.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
