// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration of the usblag commands.
package config // import "github.com/go-lpc/usblag/config"

import (
	"fmt"
	"os"
	"time"

	"github.com/go-lpc/usblag/report"
	"github.com/go-lpc/usblag/trigger"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a usblag installation.
type Config struct {
	Capture Capture `yaml:"capture"`
	Trigger Trigger `yaml:"trigger"`
	Output  string  `yaml:"output"` // root directory of run artifacts
	DB      DB      `yaml:"db"`
	Mail    Mail    `yaml:"mail"`
}

// Capture configures the bus analyzer.
type Capture struct {
	Driver       string        `yaml:"driver"`
	Port         string        `yaml:"port"`
	Speed        string        `yaml:"speed"`
	Timeout      time.Duration `yaml:"timeout"`
	Latency      time.Duration `yaml:"latency"`
	DigitalInput uint8         `yaml:"digital-input"`
	Idle         time.Duration `yaml:"idle"` // collapse window
	Combine      bool          `yaml:"combine-splits"`
	Triggers     int           `yaml:"triggers"` // number of triggers of a latency run
}

// Trigger configures the trigger generator.
type Trigger struct {
	Backend  string        `yaml:"backend"` // gpio, ftdi, smbus or none
	MinDelay time.Duration `yaml:"min-delay"`
	MaxDelay time.Duration `yaml:"max-delay"`
	Pins     []int         `yaml:"pins"`
	FTDI     struct {
		Vendor  uint16 `yaml:"vendor"`
		Product uint16 `yaml:"product"`
		Mask    uint8  `yaml:"mask"`
	} `yaml:"ftdi"`
	SMBus struct {
		Bus  int   `yaml:"bus"`
		Addr uint8 `yaml:"addr"`
		Mask uint8 `yaml:"mask"`
	} `yaml:"smbus"`
	Command []string `yaml:"command"` // generator process, run for latency runs
}

// DB configures the devices catalog.
// An empty name disables the catalog.
type DB struct {
	Name string `yaml:"name"`
}

// Mail configures the delivery of results reports.
type Mail struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// Default returns the default configuration.
func Default() Config {
	cfg := Config{
		Capture: Capture{
			Driver:       "replay",
			Speed:        "auto",
			Timeout:      500 * time.Millisecond,
			Latency:      200 * time.Millisecond,
			DigitalInput: 0x1,
			Idle:         2 * time.Second,
			Combine:      true,
			Triggers:     100,
		},
		Trigger: Trigger{
			Backend:  "gpio",
			MinDelay: 400 * time.Millisecond,
			MaxDelay: 1000 * time.Millisecond,
			Pins:     []int{20, 21},
		},
		Output: "output",
	}
	cfg.Trigger.FTDI.Vendor = 0x0403
	cfg.Trigger.FTDI.Product = 0x6001
	cfg.Trigger.FTDI.Mask = 0x01
	cfg.Trigger.SMBus.Bus = 1
	cfg.Trigger.SMBus.Addr = 0x20
	cfg.Trigger.SMBus.Mask = 0x01
	return cfg
}

// Load loads the configuration file fname on top of the default
// configuration.
func Load(fname string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("config: could not read %q: %w", fname, err)
	}

	err = yaml.Unmarshal(raw, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: could not decode %q: %w", fname, err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("config: invalid %q: %w", fname, err)
	}
	return cfg, nil
}

// Validate checks the configuration is consistent.
func (cfg Config) Validate() error {
	switch {
	case cfg.Capture.Triggers < 0:
		return fmt.Errorf("invalid number of triggers %d", cfg.Capture.Triggers)
	case cfg.Trigger.MinDelay <= 0 || cfg.Trigger.MaxDelay < cfg.Trigger.MinDelay:
		return fmt.Errorf("invalid trigger delays [%v, %v]", cfg.Trigger.MinDelay, cfg.Trigger.MaxDelay)
	}
	switch cfg.Trigger.Backend {
	case "gpio":
		if len(cfg.Trigger.Pins) == 0 {
			return fmt.Errorf("no gpio trigger pin")
		}
	case "ftdi", "smbus", "none":
	default:
		return fmt.Errorf("unknown trigger backend %q", cfg.Trigger.Backend)
	}
	return nil
}

// Mailer returns the mailer configured for results reports.
// Settings missing from the configuration are taken from the environment.
func (cfg Config) Mailer() *report.Mailer {
	m := report.MailerFromEnv()
	if v := cfg.Mail.Server; v != "" {
		m.Server = v
	}
	if v := cfg.Mail.Port; v != 0 {
		m.Port = v
	}
	if v := cfg.Mail.User; v != "" {
		m.User = v
	}
	if v := cfg.Mail.Password; v != "" {
		m.Password = v
	}
	if v := cfg.Mail.To; len(v) != 0 {
		m.To = v
	}
	return m
}

// Output opens the configured trigger output lines.
// Output returns a nil Output for the "none" backend.
func (t Trigger) Output() (trigger.Output, error) {
	var (
		out trigger.Output
		err error
	)
	switch t.Backend {
	case "none":
		return nil, nil
	case "gpio":
		out, err = openGPIO(t.Pins...)
	case "ftdi":
		out, err = openFTDI(t.FTDI.Vendor, t.FTDI.Product, t.FTDI.Mask)
	case "smbus":
		out, err = openExpander(t.SMBus.Bus, t.SMBus.Addr, t.SMBus.Mask)
	default:
		return nil, fmt.Errorf("config: unknown trigger backend %q", t.Backend)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

var (
	openGPIO = func(pins ...int) (trigger.Output, error) {
		return trigger.OpenGPIO(pins...)
	}
	openFTDI = func(vid, pid uint16, mask uint8) (trigger.Output, error) {
		return trigger.OpenFTDI(vid, pid, mask)
	}
	openExpander = func(bus int, addr, mask uint8) (trigger.Output, error) {
		return trigger.OpenExpander(bus, addr, mask)
	}
)
