// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package collapse implements a state machine collapsing repeated USB
// transactions into counters.
//
// The following sequences are collapsed:
//
//	SOF*
//	KEEP_ALIVE*
//	(IN (ACK|NAK))*
//	(PING NAK)*
//	(SPLIT IN (ACK|NYET|NAK))*
//	(SPLIT (OUT|SETUP) NYET)*
//
// Packets that do not take part in a collapsed sequence are handed
// verbatim to a Sink, interleaved with summaries of the collapsed counts.
package collapse // import "github.com/go-lpc/usblag/collapse"

import (
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/usblag/usb"
)

// State is a state of the collapsing state machine.
type State uint8

const (
	Idle State = iota
	AwaitInResult
	AwaitPingResult
	AwaitSplitTarget
	AwaitSplitInResult
	AwaitSplitOutResult
	AwaitSplitSetupResult
)

func (st State) String() string {
	switch st {
	case Idle:
		return "IDLE"
	case AwaitInResult:
		return "AWAIT_IN_RESULT"
	case AwaitPingResult:
		return "AWAIT_PING_RESULT"
	case AwaitSplitTarget:
		return "AWAIT_SPLIT_TARGET"
	case AwaitSplitInResult:
		return "AWAIT_SPLIT_IN_RESULT"
	case AwaitSplitOutResult:
		return "AWAIT_SPLIT_OUT_RESULT"
	case AwaitSplitSetupResult:
		return "AWAIT_SPLIT_SETUP_RESULT"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}

// Sink receives the output of the collapsing engine.
type Sink interface {
	// Summary receives the counts of a completed collapse window.
	Summary(s Summary) error
	// Packet receives a packet that was not collapsed.
	// The packet is only valid for the duration of the call.
	Packet(p *usb.Packet) error
}

// Stats holds the accounting of an Engine.
type Stats struct {
	Packets     int // packets processed, timeouts excluded
	Timeouts    int // reads that timed out
	Folded      int // packets accounted for in summaries
	Emitted     int // packets handed verbatim to the sink
	Triggers    int // emitted digital-input trigger transitions
	Summaries   int // non-empty summaries handed to the sink
	IdleFlushes int // summaries forced by the idle watchdog
	Replays     int // failed sequences replayed from IDLE
	MaxDepth    int // maximum number of queue slots in use
}

// Engine collapses a stream of packets.
//
// Engine is not safe for concurrent use: it is meant to be owned by the
// goroutine reading packets from the capture source.
type Engine struct {
	msg  *log.Logger
	sink Sink

	q     Queue
	state State
	cnt   counters

	idle uint64 // idle threshold, in device ticks. 0 disables the watchdog

	stats Stats
}

// New creates a new collapsing engine sending its output to sink.
func New(sink Sink, opts ...Option) *Engine {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		msg:   cfg.msg,
		sink:  sink,
		state: Idle,
		idle:  cfg.idle,
	}
}

// Slot returns the packet buffer the next packet must be read into,
// before calling Process.
func (eng *Engine) Slot() *usb.Packet {
	return eng.q.Slot()
}

// State returns the current state of the state machine.
func (eng *Engine) State() State { return eng.state }

// Stats returns the accounting of the engine.
func (eng *Engine) Stats() Stats { return eng.stats }

// Pending returns the counts accumulated in the current window.
func (eng *Engine) Pending() Summary { return eng.cnt.Summary }

// Feed copies p into the engine slot and processes it.
func (eng *Engine) Feed(p *usb.Packet) error {
	*eng.q.Slot() = *p
	return eng.Process()
}

// Process runs the state machine on the packet held in Slot.
//
// When an incomplete sequence is interrupted, the saved packets are
// output and the current packet is run again through the state machine
// from the IDLE state. The current packet is never read twice from the
// capture source.
func (eng *Engine) Process() error {
	pkt := eng.q.Slot()
	if pkt.IsTimeout() {
		eng.stats.Timeouts++
		return nil
	}
	eng.stats.Packets++
	if n := eng.q.Len() + 1; n > eng.stats.MaxDepth {
		eng.stats.MaxDepth = n
	}

	if pkt.Status&usb.BadSignals != 0 {
		eng.cnt.SignalErrors++
	}

	// flush counts if collapsing has been going on for too long.
	if start := eng.cnt.Start; start != 0 && eng.idle > 0 &&
		pkt.Time >= start && pkt.Time-start >= eng.idle {
		eng.stats.IdleFlushes++
		err := eng.summary()
		if err != nil {
			return err
		}
	}

	var (
		cat   = usb.Classify(pkt)
		retry = true
		err   error
	)
	for retry {
		retry = false
		switch eng.state {
		case Idle:
			switch cat {
			case usb.KeepAliveCat:
				eng.fold(KeepAlive)
			case usb.SOF:
				eng.fold(SOF)
			case usb.IN:
				eng.save(AwaitInResult)
			case usb.PING:
				eng.save(AwaitPingResult)
			case usb.SPLIT:
				eng.save(AwaitSplitTarget)
			default:
				err = eng.summary()
				if err != nil {
					return err
				}
				err = eng.emit(pkt)
				if err != nil {
					return err
				}
			}

		case AwaitInResult:
			eng.state = Idle
			switch cat {
			case usb.ACK:
				eng.fold(InAck)
			case usb.NAK:
				eng.fold(InNak)
			default:
				retry = true
			}

		case AwaitPingResult:
			eng.state = Idle
			switch cat {
			case usb.NAK:
				eng.fold(PingNak)
			default:
				retry = true
			}

		case AwaitSplitTarget:
			switch cat {
			case usb.IN:
				eng.save(AwaitSplitInResult)
			case usb.OUT:
				eng.save(AwaitSplitOutResult)
			case usb.SETUP:
				eng.save(AwaitSplitSetupResult)
			default:
				eng.state = Idle
				retry = true
			}

		case AwaitSplitInResult:
			eng.state = Idle
			switch cat {
			case usb.NYET:
				eng.fold(SplitInNyet)
			case usb.NAK:
				eng.fold(SplitInNak)
			case usb.ACK:
				eng.fold(SplitInAck)
			default:
				retry = true
			}

		case AwaitSplitOutResult:
			eng.state = Idle
			switch cat {
			case usb.NYET:
				eng.fold(SplitOutNyet)
			default:
				retry = true
			}

		case AwaitSplitSetupResult:
			eng.state = Idle
			switch cat {
			case usb.NYET:
				eng.fold(SplitSetupNyet)
			default:
				retry = true
			}

		default:
			return fmt.Errorf("collapse: invalid state %v", eng.state)
		}

		if !retry {
			break
		}

		// a sequence was not collapsed: the saved packets need to
		// be output before the current packet is processed again.
		eng.stats.Replays++
		err = eng.replay()
		if err != nil {
			return err
		}
	}

	return nil
}

// Flush outputs the pending summary and any saved packet, and resets the
// state machine. Flush is called when the packet stream ends.
func (eng *Engine) Flush() error {
	if n := eng.q.Len(); n > 0 {
		eng.msg.Printf("flushing %d pending packet(s) (state=%v)", n, eng.state)
	}
	eng.state = Idle
	return eng.replay()
}

// save keeps the current packet for later and moves to the next state.
func (eng *Engine) save(next State) {
	eng.q.Commit()
	eng.state = next
}

// fold collapses a group of packets: the group counter is incremented and
// the queue cleared. The first collapsed group of a window marks when the
// window began.
func (eng *Engine) fold(g Group) {
	eng.cnt.inc(g)
	if eng.cnt.Start == 0 {
		switch {
		case !eng.q.Empty():
			eng.cnt.Start = eng.q.Head().Time
		default:
			eng.cnt.Start = eng.q.Slot().Time
		}
	}
	eng.stats.Folded += eng.q.Len() + 1
	eng.q.Discard()
}

// replay outputs the pending summary, then the saved packets.
func (eng *Engine) replay() error {
	err := eng.summary()
	if err != nil {
		return err
	}
	for _, pkt := range eng.q.Drain() {
		err = eng.emit(pkt)
		if err != nil {
			return err
		}
	}
	return nil
}

// summary hands the counts of the current window to the sink and
// starts a new window.
func (eng *Engine) summary() error {
	s := eng.cnt.reset()
	if s.Empty() {
		return nil
	}
	eng.stats.Summaries++
	if eng.sink == nil {
		return nil
	}
	err := eng.sink.Summary(s)
	if err != nil {
		return fmt.Errorf("collapse: could not output summary: %w", err)
	}
	return nil
}

func (eng *Engine) emit(pkt *usb.Packet) error {
	eng.stats.Emitted++
	if _, ok := usb.TriggerOf(pkt.Events); ok {
		eng.stats.Triggers++
	}
	if eng.sink == nil {
		return nil
	}
	err := eng.sink.Packet(pkt)
	if err != nil {
		return fmt.Errorf("collapse: could not output packet: %w", err)
	}
	return nil
}

type config struct {
	msg  *log.Logger
	idle uint64
}

func newConfig() config {
	return config{
		msg: log.New(io.Discard, "collapse: ", 0),
	}
}

// Option configures a collapsing engine.
type Option func(*config)

// WithIdleThreshold sets the maximum duration, in device ticks, of a collapse
// window. Counts are output once a packet arrives after that duration.
// A zero threshold disables the idle watchdog.
func WithIdleThreshold(ticks uint64) Option {
	return func(cfg *config) {
		cfg.idle = ticks
	}
}

// WithLogger sets the logger used to report diagnostics.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
