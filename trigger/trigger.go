// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trigger drives digital output lines wired to the button of
// the device under test and to the digital input of the bus analyzer.
package trigger // import "github.com/go-lpc/usblag/trigger"

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"
)

// Output is a set of digital output lines driven together.
type Output interface {
	// Set asserts (on=true) or releases (on=false) the lines.
	Set(on bool) error
	io.Closer
}

// Runner runs until its context is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// Generator presses and releases the trigger lines at random intervals.
type Generator struct {
	msg *log.Logger
	out Output
	rnd *rand.Rand

	min time.Duration
	max time.Duration
	n   int // number of presses to generate. 0 means no limit

	presses int
}

// NewGenerator creates a new trigger generator driving out.
func NewGenerator(out Output, opts ...Option) *Generator {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Generator{
		msg: cfg.msg,
		out: out,
		rnd: rand.New(rand.NewSource(cfg.seed)),
		min: cfg.min,
		max: cfg.max,
		n:   cfg.n,
	}
}

// Presses returns the number of completed press/release cycles.
func (gen *Generator) Presses() int { return gen.presses }

// Run generates press/release cycles until ctx is canceled or the
// requested number of presses is reached. The lines are released
// when Run returns.
func (gen *Generator) Run(ctx context.Context) error {
	defer func() {
		err := gen.out.Set(false)
		if err != nil {
			gen.msg.Printf("could not release trigger lines: %+v", err)
		}
	}()

	for gen.n <= 0 || gen.presses < gen.n {
		if !gen.wait(ctx) {
			return nil
		}
		err := gen.out.Set(true)
		if err != nil {
			return fmt.Errorf("trigger: could not assert trigger lines: %w", err)
		}

		if !gen.wait(ctx) {
			return nil
		}
		err = gen.out.Set(false)
		if err != nil {
			return fmt.Errorf("trigger: could not release trigger lines: %w", err)
		}
		gen.presses++
	}

	return nil
}

func (gen *Generator) delay() time.Duration {
	if gen.max <= gen.min {
		return gen.min
	}
	return gen.min + time.Duration(gen.rnd.Int63n(int64(gen.max-gen.min)))
}

func (gen *Generator) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(gen.delay())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type config struct {
	msg  *log.Logger
	seed int64
	min  time.Duration
	max  time.Duration
	n    int
}

func newConfig() config {
	return config{
		msg:  log.New(io.Discard, "trigger: ", 0),
		seed: time.Now().UnixNano(),
		min:  400 * time.Millisecond,
		max:  1000 * time.Millisecond,
	}
}

// Option configures a trigger generator.
type Option func(*config)

// WithDelays sets the window of the random delays between two line
// transitions. Delays are drawn uniformly from [min, max).
func WithDelays(min, max time.Duration) Option {
	return func(cfg *config) {
		cfg.min = min
		cfg.max = max
	}
}

// WithSeed sets the seed of the random delays.
func WithSeed(seed int64) Option {
	return func(cfg *config) {
		cfg.seed = seed
	}
}

// WithPresses limits the number of press/release cycles.
func WithPresses(n int) Option {
	return func(cfg *config) {
		cfg.n = n
	}
}

// WithLogger sets the logger of the generator.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
