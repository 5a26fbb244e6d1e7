// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usbinfo identifies the USB devices attached to a Linux host
// from the sysfs USB device tree.
package usbinfo // import "github.com/go-lpc/usblag/usbinfo"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/usblag/latency"
)

var (
	sysfs = "/sys/bus/usb/devices"

	// ErrNotFound is returned when no attached device matches a query.
	ErrNotFound = errors.New("usbinfo: no such device")
)

// Device is a USB device attached to the host.
type Device struct {
	Bus  int
	Addr int // device number on the bus
	Path string

	latency.Device
}

func (dev Device) String() string {
	name := strings.TrimSpace(dev.Manufacturer + " " + dev.Product)
	return fmt.Sprintf("Bus %03d Device %03d: ID %s %s", dev.Bus, dev.Addr, dev.ID(), name)
}

// List returns the USB devices attached to the host, sorted by bus and
// device number.
func List() ([]Device, error) {
	ents, err := os.ReadDir(sysfs)
	if err != nil {
		return nil, fmt.Errorf("usbinfo: could not read sysfs: %w", err)
	}

	var devs []Device
	for _, ent := range ents {
		name := ent.Name()
		// skip interfaces (1-1:1.0).
		if strings.Contains(name, ":") {
			continue
		}
		dev, err := parse(filepath.Join(sysfs, name))
		if err != nil {
			continue
		}
		devs = append(devs, dev)
	}

	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Bus != devs[j].Bus {
			return devs[i].Bus < devs[j].Bus
		}
		return devs[i].Addr < devs[j].Addr
	})
	return devs, nil
}

// Lookup returns the first attached device with the provided vendor and
// product identifiers (hexadecimal, case insensitive).
func Lookup(vid, pid string) (Device, error) {
	devs, err := List()
	if err != nil {
		return Device{}, err
	}
	for _, dev := range devs {
		if strings.EqualFold(dev.VendorID, vid) && strings.EqualFold(dev.ProductID, pid) {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("%w %s:%s", ErrNotFound, vid, pid)
}

func parse(dir string) (Device, error) {
	var (
		dev = Device{Path: dir}
		err error
	)

	dev.VendorID, err = read(dir, "idVendor")
	if err != nil {
		return dev, err
	}
	dev.ProductID, err = read(dir, "idProduct")
	if err != nil {
		return dev, err
	}
	dev.Bus, err = readInt(dir, "busnum")
	if err != nil {
		return dev, err
	}
	dev.Addr, err = readInt(dir, "devnum")
	if err != nil {
		return dev, err
	}

	// string descriptors are optional.
	dev.Manufacturer, _ = read(dir, "manufacturer")
	dev.Product, _ = read(dir, "product")
	dev.Serial, _ = read(dir, "serial")
	if bcd, err := read(dir, "bcdDevice"); err == nil {
		dev.Version = version(bcd)
	}

	return dev, nil
}

func read(dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func readInt(dir, name string) (int, error) {
	v, err := read(dir, name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// version formats a binary-coded decimal release number as lsusb does.
func version(bcd string) string {
	v, err := strconv.ParseUint(bcd, 16, 16)
	if err != nil {
		return bcd
	}
	return fmt.Sprintf("%x.%02x", v>>8, v&0xff)
}
