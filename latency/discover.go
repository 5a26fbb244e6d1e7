// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCandidate is returned when no payload byte toggles with the
	// trigger. The button profile has then to be entered manually.
	ErrNoCandidate = errors.New("latency: no trigger byte candidate")
)

// Candidate is a payload byte toggling with the trigger.
type Candidate struct {
	Position int  // 1-based
	Off      byte // value when released
	On       byte // value when pressed
}

// Pressed returns the non-zero value of the candidate byte.
func (c Candidate) Pressed() byte {
	if c.On != 0 {
		return c.On
	}
	return c.Off
}

func (c Candidate) String() string {
	return fmt.Sprintf("0x%02x at position %d", c.Pressed(), c.Position)
}

// AmbiguousError is returned when more than one payload byte toggles
// with the trigger and no Chooser was provided.
type AmbiguousError struct {
	Candidates []Candidate
}

func (err *AmbiguousError) Error() string {
	o := make([]string, len(err.Candidates))
	for i, c := range err.Candidates {
		o[i] = c.String()
	}
	return fmt.Sprintf("latency: %d trigger byte candidates: %s",
		len(err.Candidates), strings.Join(o, ", "),
	)
}

// Chooser selects one of multiple trigger byte candidates.
type Chooser interface {
	// Choose returns the index of the selected candidate.
	Choose(cands []Candidate) (int, error)
}

// ChooserFunc adapts a function into a Chooser.
type ChooserFunc func(cands []Candidate) (int, error)

// Choose implements Chooser.
func (f ChooserFunc) Choose(cands []Candidate) (int, error) { return f(cands) }

// StableMask returns, for each byte position of the samples, whether the
// byte has the same value in all the samples.
// Samples whose length differs from the first one are ignored.
func StableMask(samples [][]byte) []bool {
	if len(samples) == 0 {
		return nil
	}

	ref := samples[0]
	mask := make([]bool, len(ref))
	for i := range mask {
		mask[i] = true
	}

	for _, sample := range samples[1:] {
		if len(sample) != len(ref) {
			continue
		}
		for i, v := range sample {
			if v != ref[i] {
				mask[i] = false
			}
		}
	}
	return mask
}

// Candidates returns the payload bytes that are stable among the released
// samples and among the pressed samples, that differ between the two sets
// and that are zero on one side.
func Candidates(off, on [][]byte) []Candidate {
	if len(off) == 0 || len(on) == 0 {
		return nil
	}

	var (
		moff  = StableMask(off)
		mon   = StableMask(on)
		n     = len(moff)
		cands []Candidate
	)
	if len(mon) < n {
		n = len(mon)
	}

	for i := 0; i < n; i++ {
		if !moff[i] || !mon[i] {
			continue
		}
		var (
			voff = off[0][i]
			von  = on[0][i]
		)
		if voff == von {
			continue
		}
		if voff != 0 && von != 0 {
			continue
		}
		cands = append(cands, Candidate{Position: i + 1, Off: voff, On: von})
	}
	return cands
}

// Discover finds the payload byte toggled by the trigger from the
// payloads collected after released (off) and pressed (on) triggers.
//
// Discover returns ErrNoData if either set is empty, and ErrNoCandidate if
// no byte toggles. When multiple bytes toggle, ch selects the button
// byte; a nil ch yields an *AmbiguousError.
func Discover(off, on [][]byte, ch Chooser) (Button, error) {
	var btn Button
	if len(off) == 0 || len(on) == 0 {
		return btn, ErrNoData
	}

	cands := Candidates(off, on)
	var c Candidate
	switch len(cands) {
	case 0:
		return btn, ErrNoCandidate
	case 1:
		c = cands[0]
	default:
		if ch == nil {
			return btn, &AmbiguousError{Candidates: cands}
		}
		i, err := ch.Choose(cands)
		if err != nil {
			return btn, fmt.Errorf("latency: could not choose trigger byte: %w", err)
		}
		if i < 0 || i >= len(cands) {
			return btn, fmt.Errorf("latency: invalid trigger byte choice %d (candidates=%d)", i+1, len(cands))
		}
		c = cands[i]
	}

	btn.Position = c.Position
	btn.Value = c.Pressed()
	btn.Length = len(off[0])

	return btn, nil
}
