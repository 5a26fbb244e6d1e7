// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beagle

import (
	"io"
	"log"
	"math/bits"
	"time"

	"github.com/go-lpc/usblag/usb"
	"golang.org/x/xerrors"
)

// Session is an open and enabled capture on an analyzer.
//
// A Session must be closed once the capture is done, on every exit
// path, to release the device.
type Session struct {
	msg  *log.Logger
	name string
	port string
	drv  Driver
	cfg  Config
	khz  uint64

	closed bool
}

// Open opens the device attached to port with the named driver,
// configures it and enables the USB capture.
// The device is released if any of these steps fails.
func Open(name, port string, opts ...Option) (*Session, error) {
	open, ok := lookup(name)
	if !ok {
		return nil, xerrors.Errorf("beagle: unknown driver %q (forgotten import?)", name)
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	drv, err := open(port)
	if err != nil {
		return nil, xerrors.Errorf("beagle: could not open %s device %q: %w", name, port, err)
	}

	sess, err := newSession(drv, cfg)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	sess.name = name
	sess.port = port

	return sess, nil
}

// NewSession configures and enables the capture on an already opened
// driver. The driver is not released on failure.
func NewSession(drv Driver, opts ...Option) (*Session, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newSession(drv, cfg)
}

func newSession(drv Driver, cfg config) (*Session, error) {
	khz, err := drv.SampleRate()
	if err != nil {
		return nil, xerrors.Errorf("beagle: could not query sample rate: %w", err)
	}
	if khz <= 0 {
		return nil, xerrors.Errorf("beagle: invalid sample rate %d kHz", khz)
	}

	err = drv.Configure(cfg.Config)
	if err != nil {
		return nil, xerrors.Errorf("beagle: could not configure device: %w", err)
	}

	err = drv.Enable(ProtocolUSB)
	if err != nil {
		return nil, xerrors.Errorf("beagle: could not enable %v capture: %w", ProtocolUSB, err)
	}

	cfg.msg.Printf("sample rate: %d kHz", khz)
	cfg.msg.Printf("timeout=%v, latency=%v, speed=%v, digital-input=0x%x",
		cfg.Timeout, cfg.Latency, cfg.Speed, cfg.DigitalInput,
	)

	return &Session{
		msg: cfg.msg,
		drv: drv,
		cfg: cfg.Config,
		khz: uint64(khz),
	}, nil
}

// Read reads the next bus event into p.
func (sess *Session) Read(p *usb.Packet) error {
	err := sess.drv.Read(p)
	if err != nil {
		return xerrors.Errorf("beagle: could not read packet: %w", err)
	}
	return nil
}

// Config returns the capture configuration.
func (sess *Session) Config() Config { return sess.cfg }

// SampleRate returns the device clock sample rate, in kHz.
func (sess *Session) SampleRate() int { return int(sess.khz) }

// Nanos converts device ticks into nanoseconds.
func (sess *Session) Nanos(ticks uint64) uint64 {
	hi, lo := bits.Mul64(ticks, 1000000)
	if hi >= sess.khz {
		return ^uint64(0)
	}
	ns, _ := bits.Div64(hi, lo, sess.khz)
	return ns
}

// Ticks converts a duration into device ticks.
func (sess *Session) Ticks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Milliseconds()) * sess.khz
}

// Close disables the capture and releases the device.
// Close is idempotent.
func (sess *Session) Close() error {
	if sess.closed {
		return nil
	}
	sess.closed = true

	errDisable := sess.drv.Disable()
	errClose := sess.drv.Close()

	switch {
	case errDisable != nil:
		return xerrors.Errorf("beagle: could not disable capture: %w", errDisable)
	case errClose != nil:
		return xerrors.Errorf("beagle: could not close device: %w", errClose)
	}
	return nil
}

type config struct {
	Config
	msg *log.Logger
}

func newConfig() config {
	return config{
		Config: Config{
			Timeout:      500 * time.Millisecond,
			Latency:      200 * time.Millisecond,
			Speed:        SpeedAuto,
			DigitalInput: 0x1,
		},
		msg: log.New(io.Discard, "beagle: ", 0),
	}
}

// Option configures a capture session.
type Option func(*config)

// WithTimeout sets the idle timeout of device reads.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.Timeout = d
	}
}

// WithLatency sets the buffering latency of the analyzer.
func WithLatency(d time.Duration) Option {
	return func(cfg *config) {
		cfg.Latency = d
	}
}

// WithSpeed sets the bus speed.
func WithSpeed(s Speed) Option {
	return func(cfg *config) {
		cfg.Speed = s
	}
}

// WithDigitalInput sets the mask of enabled digital input pins.
func WithDigitalInput(mask uint8) Option {
	return func(cfg *config) {
		cfg.DigitalInput = mask
	}
}

// WithLogger sets the logger of the session.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
