// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sbinet/pmon"
)

// Process runs a trigger generator as a separate OS process.
//
// The process shares no state with the capture: it is started when Run
// is called and killed as soon as the Run context is canceled.
type Process struct {
	msg  *log.Logger
	name string
	args []string
	out  io.Writer

	mon  io.Writer // pmon output. nil disables monitoring
	freq time.Duration
}

// NewProcess creates a new trigger process running the named command.
func NewProcess(name string, args []string, opts ...ProcessOption) *Process {
	proc := &Process{
		msg:  log.New(io.Discard, "trigger: ", 0),
		name: name,
		args: args,
		out:  io.Discard,
		freq: time.Second,
	}
	for _, opt := range opts {
		opt(proc)
	}
	return proc
}

// Run starts the process and waits for it to exit or for ctx to be
// canceled, in which case the process is killed.
func (proc *Process) Run(ctx context.Context) error {
	var (
		name = filepath.Base(proc.name)
		cmd  = exec.Command(proc.name, proc.args...)
	)
	cmd.Stdout = proc.out
	cmd.Stderr = proc.out

	proc.msg.Printf("starting %q...", name)
	err := cmd.Start()
	if err != nil {
		return fmt.Errorf("trigger: could not start %q: %w", name, err)
	}

	errch := make(chan error, 1)
	go func() {
		errch <- cmd.Wait()
	}()

	if proc.mon != nil {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			_ = cmd.Process.Kill()
			<-errch
			return fmt.Errorf("trigger: could not monitor %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		p.W = proc.mon
		p.Freq = proc.freq

		go func() {
			err := p.Run()
			if err != nil {
				proc.msg.Printf("could not monitor %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				proc.msg.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		err = cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("trigger: could not kill %q: %w", name, err)
		}
		<-errch
		proc.msg.Printf("%q killed", name)
		return nil
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("trigger: could not run %q: %w", name, err)
		}
		return nil
	}
}

// ProcessOption configures a trigger process.
type ProcessOption func(*Process)

// WithProcessLogger sets the logger of the process supervisor.
func WithProcessLogger(msg *log.Logger) ProcessOption {
	return func(proc *Process) {
		proc.msg = msg
	}
}

// WithOutput redirects the standard output and error of the process to w.
func WithOutput(w io.Writer) ProcessOption {
	return func(proc *Process) {
		proc.out = w
	}
}

// WithMonitor enables the monitoring of the process CPU and memory usage
// with pmon, written to w every freq.
func WithMonitor(w io.Writer, freq time.Duration) ProcessOption {
	return func(proc *Process) {
		proc.mon = w
		proc.freq = freq
	}
}

var (
	_ Runner = (*Process)(nil)
	_ Runner = (*Generator)(nil)
)
