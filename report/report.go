// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report writes the artifacts of a latency run.
//
// Artifacts of a run are stored under:
//
//	<root>/<vid><pid>/<YYYYMMDD>/<HHMMSS>/
//	  raw_output.txt
//	  clean_output.txt
//	  results-<N>.txt
package report // import "github.com/go-lpc/usblag/report"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-lpc/usblag/latency"
	"github.com/go-lpc/usblag/rawlog"
	"go-hep.org/x/hep/hbook"
)

const (
	RawFile   = "raw_output.txt"
	CleanFile = "clean_output.txt"
)

// ResultsFile returns the name of the results file of a run with n triggers.
func ResultsFile(n int) string {
	return fmt.Sprintf("results-%d.txt", n)
}

// Path returns the directory holding the artifacts of a run started at
// time t on the provided device.
func Path(root string, dev latency.Device, t time.Time) string {
	return filepath.Join(
		root,
		strings.ToLower(dev.VendorID+dev.ProductID),
		t.Format("20060102"),
		t.Format("150405"),
	)
}

// Run is the output directory of a latency run.
type Run struct {
	Dir string
}

// Create creates the output directory of a run.
func Create(root string, dev latency.Device, t time.Time) (*Run, error) {
	dir := Path(root, dev, t)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("report: could not create output directory: %w", err)
	}
	return &Run{Dir: dir}, nil
}

// WriteRaw writes the raw capture log.
func (run *Run) WriteRaw(lines []rawlog.Line) (string, error) {
	return run.write(RawFile, func(w io.Writer) error {
		return rawlog.WriteAll(w, lines)
	})
}

// WriteClean writes the cleaned capture log.
func (run *Run) WriteClean(lines []rawlog.Line) (string, error) {
	return run.write(CleanFile, func(w io.Writer) error {
		enc := rawlog.NewCleanEncoder(w)
		for _, line := range lines {
			err := enc.Encode(line)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteResults writes the results report.
func (run *Run) WriteResults(res Results) (string, error) {
	return run.write(ResultsFile(res.Triggers), func(w io.Writer) error {
		_, err := res.WriteTo(w)
		return err
	})
}

func (run *Run) write(name string, fct func(w io.Writer) error) (string, error) {
	fname := filepath.Join(run.Dir, name)
	f, err := os.Create(fname)
	if err != nil {
		return fname, fmt.Errorf("report: could not create %q: %w", name, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = fct(w)
	if err != nil {
		return fname, fmt.Errorf("report: could not write %q: %w", name, err)
	}

	err = w.Flush()
	if err != nil {
		return fname, fmt.Errorf("report: could not flush %q: %w", name, err)
	}

	err = f.Close()
	if err != nil {
		return fname, fmt.Errorf("report: could not close %q: %w", name, err)
	}
	return fname, nil
}

// Results is the outcome of a latency run.
type Results struct {
	Device   latency.Device
	Button   latency.Button
	Triggers int // triggers sent
	Stats    latency.Stats
	Hist     *hbook.H1D // optional latency distribution
}

// WriteTo writes the results report to w.
func (res Results) WriteTo(w io.Writer) (int64, error) {
	var (
		o   = new(strings.Builder)
		dev = res.Device
		btn = res.Button
		st  = res.Stats
	)

	fmt.Fprintf(o, "Device ID - %s\n", dev.ID())
	fmt.Fprintf(o, "Manufacturer - %s\n", dev.Manufacturer)
	fmt.Fprintf(o, "Product - %s\n", dev.Product)
	fmt.Fprintf(o, "Version - %s\n", dev.Version)
	fmt.Fprintf(o, "Serial - %s\n", dev.Serial)
	fmt.Fprintf(o, "Trigger Button Position: %d\n", btn.Position)
	fmt.Fprintf(o, "Trigger Button Value: %02x\n", btn.Value)
	fmt.Fprintf(o, "Trigger Button Packet Length: %d\n", btn.Length)
	fmt.Fprintf(o, "Trigger Button Name: %s\n", btn.Name)
	fmt.Fprintf(o, "\n")
	fmt.Fprintf(o, "Triggers sent - %d\n", res.Triggers)
	fmt.Fprintf(o, "Clean samples - %d\n", st.N)
	fmt.Fprintf(o, "\n")
	fmt.Fprintf(o, "Results:\n")
	fmt.Fprintf(o, "\tMinimum - %s ms\n", ms(st.Min))
	fmt.Fprintf(o, "\tMaximum - %s ms\n", ms(st.Max))
	fmt.Fprintf(o, "\tAverage - %s ms\n", ms(st.Mean))
	fmt.Fprintf(o, "\tSample Standard Deviation - %s ms\n", ms(st.StdDev))

	if res.Hist != nil && res.Hist.Entries() > 0 {
		fmt.Fprintf(o, "\nDistribution:\n")
		writeHist(o, res.Hist)
	}

	n, err := io.WriteString(w, o.String())
	return int64(n), err
}

func ms(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

func writeHist(o io.Writer, h *hbook.H1D) {
	const width = 40

	max := 0.0
	for _, bin := range h.Binning.Bins {
		if v := bin.SumW(); v > max {
			max = v
		}
	}

	for _, bin := range h.Binning.Bins {
		n := 0
		if max > 0 {
			n = int(bin.SumW() / max * width)
		}
		fmt.Fprintf(o, "\t[%8.3f, %8.3f) ms %6d %s\n",
			bin.XMin(), bin.XMax(), bin.Entries(), strings.Repeat("#", n),
		)
	}
}
