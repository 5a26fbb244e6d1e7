// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/usblag/latency"
	"github.com/go-lpc/usblag/rawlog"
	"github.com/peterh/liner"
)

type prompter interface {
	Prompt(p string) (string, error)
	Close() error
}

var newTerm = func() prompter {
	term := liner.NewLiner()
	term.SetCtrlCAborts(true)
	return term
}

func (app *app) prompt(p string) (string, error) {
	if app.term == nil {
		app.term = newTerm()
	}
	txt, err := app.term.Prompt(p)
	if err != nil {
		return "", fmt.Errorf("could not read answer: %w", err)
	}
	return strings.TrimSpace(txt), nil
}

// choose asks the operator which trigger byte candidate is the button.
func (app *app) choose(cands []latency.Candidate) (int, error) {
	fmt.Fprintf(app.stdout, "Multiple trigger byte candidates:\n")
	for i, c := range cands {
		fmt.Fprintf(app.stdout, "%d - %v (released=0x%02x, pressed=0x%02x)\n", i+1, c, c.Off, c.On)
	}

	for {
		txt, err := app.prompt("Choose trigger byte: ")
		if err != nil {
			return 0, err
		}
		i, err := strconv.Atoi(txt)
		if err != nil || i < 1 || i > len(cands) {
			fmt.Fprintf(app.stdout, "invalid choice %q\n", txt)
			continue
		}
		return i - 1, nil
	}
}

// length selects the DATA payload length reporting the button.
// The operator chooses when the most common and largest lengths differ.
func (app *app) length(lines []rawlog.Line) (int, error) {
	lc, err := latency.SelectLength(lines)
	if err != nil {
		return 0, err
	}
	if !lc.Ambiguous() {
		return lc.Common, nil
	}

	fmt.Fprintf(app.stdout,
		"DATA payload lengths differ: most common=%d, largest=%d\n",
		lc.Common, lc.Largest,
	)
	for {
		txt, err := app.prompt(fmt.Sprintf("Payload length [%d]: ", lc.Common))
		if err != nil {
			return 0, err
		}
		if txt == "" {
			return lc.Common, nil
		}
		n, err := strconv.Atoi(txt)
		if err != nil || (n != lc.Common && n != lc.Largest) {
			fmt.Fprintf(app.stdout, "invalid length %q\n", txt)
			continue
		}
		return n, nil
	}
}

// manual asks the operator for the trigger button profile.
func (app *app) manual(length int) (latency.Button, error) {
	var btn latency.Button

	txt, err := app.prompt("Trigger button position (count from 1): ")
	if err != nil {
		return btn, err
	}
	btn.Position, err = strconv.Atoi(txt)
	if err != nil {
		return btn, fmt.Errorf("invalid trigger button position %q: %w", txt, err)
	}

	txt, err = app.prompt("Trigger button value (0x): ")
	if err != nil {
		return btn, err
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(txt, "0x"), 16, 8)
	if err != nil {
		return btn, fmt.Errorf("invalid trigger button value %q: %w", txt, err)
	}
	btn.Value = byte(v)

	txt, err = app.prompt(fmt.Sprintf("Trigger button packet length [%d]: ", length))
	if err != nil {
		return btn, err
	}
	btn.Length = length
	if txt != "" {
		btn.Length, err = strconv.Atoi(txt)
		if err != nil {
			return btn, fmt.Errorf("invalid trigger button packet length %q: %w", txt, err)
		}
	}

	return btn, btn.Validate()
}
