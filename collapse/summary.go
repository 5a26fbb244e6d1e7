// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collapse

import (
	"fmt"
	"strings"
)

// Group identifies a collapsed packet sequence.
type Group uint8

const (
	SOF Group = iota
	InAck
	InNak
	PingNak
	SplitInAck
	SplitInNyet
	SplitInNak
	SplitOutNyet
	SplitSetupNyet
	KeepAlive

	NumGroups = int(KeepAlive) + 1
)

var groupNames = [NumGroups]string{
	SOF:            "SOF",
	InAck:          "IN/ACK",
	InNak:          "IN/NAK",
	PingNak:        "PING/NAK",
	SplitInAck:     "SPLIT/IN/ACK",
	SplitInNyet:    "SPLIT/IN/NYET",
	SplitInNak:     "SPLIT/IN/NAK",
	SplitOutNyet:   "SPLIT/OUT/NYET",
	SplitSetupNyet: "SPLIT/SETUP/NYET",
	KeepAlive:      "KEEP-ALIVE",
}

func (g Group) String() string {
	if int(g) < NumGroups {
		return groupNames[g]
	}
	return fmt.Sprintf("Group(%d)", uint8(g))
}

// Len returns the number of packets making up the group sequence.
func (g Group) Len() int {
	switch g {
	case SOF, KeepAlive:
		return 1
	case InAck, InNak, PingNak:
		return 2
	default:
		return 3
	}
}

func (g Group) isSplit() bool {
	switch g {
	case SplitInAck, SplitInNyet, SplitInNak, SplitOutNyet, SplitSetupNyet:
		return true
	}
	return false
}

// printing order of the collapsed groups.
var summaryOrder = [...]Group{
	KeepAlive, SOF, InAck, InNak, PingNak,
	SplitInAck, SplitInNyet, SplitInNak, SplitOutNyet, SplitSetupNyet,
}

// Summary holds the counts of a collapse window.
type Summary struct {
	Start        uint64 // device time of the first collapsed packet (0 if unset)
	Counts       [NumGroups]int
	SignalErrors int
}

// Splits returns the total number of collapsed split transactions.
func (s Summary) Splits() int {
	n := 0
	for i, v := range s.Counts {
		if Group(i).isSplit() {
			n += v
		}
	}
	return n
}

// Packets returns the number of packets accounted for by the summary.
func (s Summary) Packets() int {
	n := 0
	for i, v := range s.Counts {
		n += v * Group(i).Len()
	}
	return n
}

// Empty returns whether the summary has neither collapsed packets nor
// signal errors to report.
func (s Summary) Empty() bool {
	return s.Counts == [NumGroups]int{} && s.SignalErrors == 0
}

// Format renders the summary in its human readable form.
// Groups with a zero count are omitted.
// When combine is true, all split transactions are reported as one count.
func (s Summary) Format(combine bool) string {
	var o []string
	if s.Counts != [NumGroups]int{} {
		o = append(o, "COLLAPSED")
		for _, g := range summaryOrder {
			if g.isSplit() && combine {
				continue
			}
			if n := s.Counts[g]; n > 0 {
				o = append(o, fmt.Sprintf("[%d %s]", n, g))
			}
		}
		if combine {
			if n := s.Splits(); n > 0 {
				o = append(o, fmt.Sprintf("[%d SPLITS]", n))
			}
		}
	}

	if s.SignalErrors > 0 {
		o = append(o, fmt.Sprintf("<%d SIGNAL ERRORS>", s.SignalErrors))
	}

	return strings.Join(o, " ")
}

// counters accumulates the collapsed groups of the current window.
type counters struct {
	Summary
}

func (c *counters) inc(g Group) { c.Counts[g]++ }

// reset returns the accumulated summary and starts a new window.
func (c *counters) reset() Summary {
	s := c.Summary
	c.Summary = Summary{}
	return s
}
