// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usblag-srv starts a TDAQ server streaming the collapsed bus
// activity captured by a USB protocol analyzer.
//
// Each line of the collapsed stream (summaries, trigger transitions and
// DATA packets) is published as one frame on the /usb output.
package main // import "github.com/go-lpc/usblag/cmd/usblag-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-lpc/usblag/beagle"
	_ "github.com/go-lpc/usblag/beagle/replay"
	"github.com/go-lpc/usblag/capture"
	"github.com/go-lpc/usblag/collapse"
	"github.com/go-lpc/usblag/config"
	"github.com/go-lpc/usblag/rawlog"
)

var cfgName = flag.String("cfg", "", "path to a YAML configuration file")

func main() {
	cmd := flags.New()

	dev := newNode(cmd.Args[0], *cfgName)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/usb", dev.usb)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type node struct {
	name  string
	fname string // configuration file
	cfg   config.Config

	mu   sync.Mutex
	sess *beagle.Session
	eng  *collapse.Engine

	n    int // number of published lines
	data chan []byte
}

func newNode(name, fname string) *node {
	return &node{
		name:  name,
		fname: fname,
		cfg:   config.Default(),
		data:  make(chan []byte, 1024),
	}
}

func (dev *node) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return dev.configure()
}

func (dev *node) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return dev.init()
}

func (dev *node) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := dev.close()
	if err != nil {
		ctx.Msg.Errorf("could not close capture device: %+v", err)
	}
	return dev.init()
}

func (dev *node) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (dev *node) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.mu.Lock()
	n := dev.n
	dev.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (dev *node) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return dev.close()
}

func (dev *node) usb(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *node) run(ctx tdaq.Context) error {
	res, err := dev.acquire(ctx.Ctx)
	if err != nil {
		return err
	}
	ctx.Msg.Infof("capture stopped: %v (packets=%d, summaries=%d, triggers=%d)",
		res.Reason, res.Stats.Packets, res.Stats.Summaries, res.Stats.Triggers,
	)
	<-ctx.Ctx.Done()
	return nil
}

func (dev *node) configure() error {
	if dev.fname == "" {
		return nil
	}
	cfg, err := config.Load(dev.fname)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	dev.cfg = cfg
	return nil
}

func (dev *node) init() error {
	c := dev.cfg.Capture
	spd, err := beagle.ParseSpeed(c.Speed)
	if err != nil {
		return err
	}

	sess, err := beagle.Open(
		c.Driver, c.Port,
		beagle.WithTimeout(c.Timeout),
		beagle.WithLatency(c.Latency),
		beagle.WithSpeed(spd),
		beagle.WithDigitalInput(c.DigitalInput),
	)
	if err != nil {
		return fmt.Errorf("could not open capture device: %w", err)
	}

	w := &publisher{dev: dev}
	col := rawlog.NewCollector(
		sess.Nanos,
		rawlog.WithWriter(w),
		rawlog.WithLogger(log.New(w, "", 0)),
		rawlog.WithCombineSplits(c.Combine),
	)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.sess = sess
	dev.eng = collapse.New(
		col,
		collapse.WithIdleThreshold(sess.Ticks(c.Idle)),
	)
	dev.n = 0
	return nil
}

func (dev *node) acquire(ctx context.Context) (capture.Result, error) {
	dev.mu.Lock()
	sess, eng := dev.sess, dev.eng
	dev.mu.Unlock()

	if sess == nil {
		return capture.Result{}, fmt.Errorf("capture device not initialized")
	}

	res, err := capture.Run(ctx, sess, eng)
	if err != nil {
		return res, fmt.Errorf("could not run capture: %w", err)
	}
	return res, nil
}

func (dev *node) close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.sess == nil {
		return nil
	}
	err := dev.sess.Close()
	dev.sess = nil
	dev.eng = nil
	return err
}

// publisher sends each written line as one frame.
// Lines are dropped when no consumer keeps up with the capture.
type publisher struct {
	dev *node
}

func (w *publisher) Write(p []byte) (int, error) {
	raw := make([]byte, len(p))
	copy(raw, p)
	select {
	case w.dev.data <- raw:
		w.dev.mu.Lock()
		w.dev.n++
		w.dev.mu.Unlock()
	default:
	}
	return len(p), nil
}
