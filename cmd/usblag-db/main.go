// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usblag-db displays the catalog entry of a tested device: its
// identification, its trigger button profile and its latency runs.
package main // import "github.com/go-lpc/usblag/cmd/usblag-db"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/usblag/devdb"
)

func main() {
	log.SetPrefix("usblag-db: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "usblag", "name of the devices catalog")
		vid    = flag.String("vid", "", "vendor ID of the device")
		pid    = flag.String("pid", "", "product ID of the device")
		name   = flag.String("name", "", "name of the trigger button")
	)

	flag.Parse()

	if *vid == "" || *pid == "" {
		flag.Usage()
		log.Fatalf("missing device vendor and product IDs")
	}

	db, err := devdb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open devices catalog: %+v", err)
	}
	defer db.Close()

	err = doQuery(os.Stdout, db, *vid, *pid, *name)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(w io.Writer, db *devdb.DB, vid, pid, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dev, err := db.Device(ctx, vid, pid)
	switch {
	case errors.Is(err, devdb.ErrNotFound):
		fmt.Fprintf(w, "Device ID - %s (not identified)\n", dev.ID())
	case err != nil:
		return fmt.Errorf("could not get device: %w", err)
	default:
		fmt.Fprintf(w, "Device ID - %s\n", dev.ID())
		fmt.Fprintf(w, "Manufacturer - %s\n", dev.Manufacturer)
		fmt.Fprintf(w, "Product - %s\n", dev.Product)
		fmt.Fprintf(w, "Version - %s\n", dev.Version)
		fmt.Fprintf(w, "Serial - %s\n", dev.Serial)
	}

	btn, err := db.Button(ctx, vid, pid, name)
	switch {
	case errors.Is(err, devdb.ErrNotFound):
		fmt.Fprintf(w, "Trigger Button: none\n")
	case err != nil:
		return fmt.Errorf("could not get trigger button: %w", err)
	default:
		fmt.Fprintf(w, "Trigger Button: %q, 0x%02x at position %d (packet length=%d)\n",
			btn.Name, btn.Value, btn.Position, btn.Length,
		)
	}

	runs, err := db.Runs(ctx, vid, pid)
	if err != nil {
		return fmt.Errorf("could not get runs: %w", err)
	}
	fmt.Fprintf(w, "Runs: %d\n", len(runs))
	for _, run := range runs {
		fmt.Fprintf(w,
			"%s button=%q triggers=%d samples=%d min=%.3f ms max=%.3f ms mean=%.3f ms stddev=%.3f ms (%s)\n",
			run.Time.Format(time.RFC3339), run.Button, run.Triggers, run.Stats.N,
			run.Stats.Min, run.Stats.Max, run.Stats.Mean, run.Stats.StdDev,
			run.Dir,
		)
	}

	return nil
}
