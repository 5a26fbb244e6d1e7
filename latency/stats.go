// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency

import (
	"math"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats holds the latency statistics of a capture, in milliseconds.
type Stats struct {
	N      int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64 // sample standard deviation
}

// Latencies returns the latency of each bracket, in milliseconds.
func Latencies(brackets []Bracket) []float64 {
	xs := make([]float64, len(brackets))
	for i, b := range brackets {
		xs[i] = float64(b.Latency()) / 1e6
	}
	return xs
}

// Compute returns the statistics of the provided latencies.
// The standard deviation of a single measurement is zero.
func Compute(xs []float64) (Stats, error) {
	if len(xs) == 0 {
		return Stats{}, ErrNoData
	}

	st := Stats{
		N:    len(xs),
		Min:  floats.Min(xs),
		Max:  floats.Max(xs),
		Mean: stat.Mean(xs, nil),
	}
	if st.N > 1 {
		st.StdDev = stat.StdDev(xs, nil)
	}
	return st, nil
}

// Reduce returns the latency statistics of the provided brackets.
func Reduce(brackets []Bracket) (Stats, error) {
	return Compute(Latencies(brackets))
}

// Histogram returns the distribution of the provided latencies, in
// milliseconds, with nbins bins spanning [min, max].
func Histogram(xs []float64, nbins int) *hbook.H1D {
	if nbins <= 0 {
		nbins = 1
	}
	xmin, xmax := 0.0, 1.0
	if len(xs) > 0 {
		xmin = floats.Min(xs)
		xmax = floats.Max(xs)
	}
	// make sure the largest latency falls in the last bin.
	xmax = math.Nextafter(xmax, math.Inf(+1))
	if xmax-xmin < 1e-6 {
		xmax = xmin + 1e-6
	}

	h := hbook.NewH1D(nbins, xmin, xmax)
	for _, x := range xs {
		h.Fill(x, 1)
	}
	return h
}
