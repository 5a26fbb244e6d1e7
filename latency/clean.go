// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency

import (
	"fmt"
	"sort"

	"github.com/go-lpc/usblag/rawlog"
)

// LengthChoice holds the candidate DATA payload lengths of a capture.
type LengthChoice struct {
	Common  int // most common length
	Largest int // largest length
}

// Ambiguous returns whether the most common and largest lengths differ,
// in which case an operator has to choose.
func (lc LengthChoice) Ambiguous() bool {
	return lc.Common != lc.Largest
}

// SelectLength returns the candidate payload lengths of the DATA lines.
// Ties between most common lengths go to the larger one.
func SelectLength(lines []rawlog.Line) (LengthChoice, error) {
	var (
		lc   LengthChoice
		hist = make(map[int]int)
	)
	for _, line := range lines {
		if line.Kind != rawlog.Data {
			continue
		}
		hist[len(line.Payload)]++
	}
	if len(hist) == 0 {
		return lc, ErrNoData
	}

	lens := make([]int, 0, len(hist))
	for n := range hist {
		lens = append(lens, n)
	}
	sort.Ints(lens)

	lc.Largest = lens[len(lens)-1]
	for _, n := range lens {
		if hist[n] >= hist[lc.Common] {
			lc.Common = n
		}
	}
	return lc, nil
}

// Cleaned is the result of cleaning a raw capture log.
type Cleaned struct {
	Brackets   []Bracket
	Violations int // discarded out-of-sequence trigger lines
}

// Lines returns the accepted lines, in capture order.
func (c Cleaned) Lines() []rawlog.Line {
	o := make([]rawlog.Line, 0, 2*len(c.Brackets))
	for _, b := range c.Brackets {
		o = append(o, b.Trigger, b.Data)
	}
	return o
}

// Samples returns the payloads reported after released and pressed
// triggers.
func (c Cleaned) Samples() (off, on [][]byte) {
	for _, b := range c.Brackets {
		if b.Pressed() {
			on = append(on, b.Data.Payload)
			continue
		}
		off = append(off, b.Data.Payload)
	}
	return off, on
}

// Cleaner keeps the lines of a raw log that form a strictly alternating
// TRIGGER_OFF, DATA, TRIGGER_ON, DATA, ... sequence.
//
// A DATA line is only accepted right after a trigger line, when its
// payload has the expected length and, if a button is known, when it
// reports the button state of that trigger. A trigger line breaking the
// alternation drops the pending trigger and the cleaner waits for the
// next TRIGGER_OFF.
type Cleaner struct {
	length int
	btn    *Button

	want    rawlog.Kind
	pending *rawlog.Line
	out     Cleaned
}

// NewCleaner creates a cleaner accepting DATA payloads of the provided
// length. A nil button disables the button state check.
func NewCleaner(length int, btn *Button) (*Cleaner, error) {
	if length <= 0 {
		return nil, fmt.Errorf("latency: invalid payload length %d", length)
	}
	if btn != nil {
		err := btn.Validate()
		if err != nil {
			return nil, err
		}
		if btn.Length != length {
			return nil, fmt.Errorf("latency: button payload length mismatch (got=%d, want=%d)", btn.Length, length)
		}
	}
	return &Cleaner{
		length: length,
		btn:    btn,
		want:   rawlog.TriggerOff,
	}, nil
}

// Add feeds one line to the cleaner.
func (c *Cleaner) Add(line rawlog.Line) {
	switch line.Kind {
	case rawlog.TriggerOff:
		if c.pending != nil || c.want != rawlog.TriggerOff {
			// resynchronize on this trigger.
			c.out.Violations++
		}
		c.want = rawlog.TriggerOff
		c.pending = &line

	case rawlog.TriggerOn:
		if c.pending != nil || c.want != rawlog.TriggerOn {
			c.out.Violations++
			c.pending = nil
			c.want = rawlog.TriggerOff
			return
		}
		c.pending = &line

	case rawlog.Data:
		if c.pending == nil || len(line.Payload) != c.length {
			return
		}
		on := c.pending.Kind == rawlog.TriggerOn
		if c.btn != nil && !c.btn.matches(line, on) {
			return
		}
		c.out.Brackets = append(c.out.Brackets, Bracket{
			Trigger: *c.pending,
			Data:    line,
		})
		c.pending = nil
		c.want = rawlog.TriggerOn
		if on {
			c.want = rawlog.TriggerOff
		}
	}
}

// Result returns the accepted brackets.
// A trailing trigger without DATA line is not part of the result.
func (c *Cleaner) Result() Cleaned {
	return c.out
}

// Clean cleans a raw log. See Cleaner for the rules.
func Clean(lines []rawlog.Line, length int, btn *Button) (Cleaned, error) {
	c, err := NewCleaner(length, btn)
	if err != nil {
		return Cleaned{}, err
	}
	for _, line := range lines {
		c.Add(line)
	}
	return c.Result(), nil
}
