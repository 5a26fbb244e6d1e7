// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the 16-bit cyclic redundancy check used by
// USB data packets (CRC-16/USB).
package crc16 // import "github.com/go-lpc/usblag/internal/crc16"

import (
	"encoding/binary"
	"hash"
)

// Size of a CRC-16 checksum in bytes.
const Size = 2

// USB is the reversed form of the x¹⁶+x¹⁵+x²+1 polynomial used by USB.
const USB = 0xa001

// Table is a 256-word table representing the polynomial for efficient processing.
type Table [256]uint16

// USBTable is the table for the USB polynomial.
var USBTable = MakeTable(USB)

// MakeTable returns a Table constructed from the specified reversed polynomial.
func MakeTable(poly uint16) *Table {
	t := new(Table)
	for i := range t {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

type digest struct {
	crc uint16
	tbl *Table
}

// New creates a new Hash16 computing the CRC-16 checksum using the
// polynomial represented by the Table.
// A nil table selects the USB polynomial.
func New(tbl *Table) Hash16 {
	if tbl == nil {
		tbl = USBTable
	}
	return &digest{crc: 0xffff, tbl: tbl}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0xffff }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = update(d.crc, d.tbl, p)
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc ^ 0xffff }

func (d *digest) Sum(in []byte) []byte {
	var buf [Size]byte
	binary.BigEndian.PutUint16(buf[:], d.Sum16())
	return append(in, buf[:]...)
}

func update(crc uint16, tbl *Table, p []byte) uint16 {
	for _, v := range p {
		crc = tbl[byte(crc)^v] ^ (crc >> 8)
	}
	return crc
}

// Checksum returns the CRC-16/USB checksum of data.
func Checksum(data []byte) uint16 {
	return update(0xffff, USBTable, data) ^ 0xffff
}

var _ Hash16 = (*digest)(nil)
