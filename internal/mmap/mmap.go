// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides access to memory-mapped device registers.
package mmap // import "github.com/go-lpc/usblag/internal/mmap"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Handle is a memory-mapped region of a file.
type Handle struct {
	data  []byte
	unmap func([]byte) error
}

// Map maps n bytes of f, starting at offset off, for reading and writing.
func Map(f *os.File, off int64, n int) (*Handle, error) {
	data, err := unix.Mmap(
		int(f.Fd()), off, n,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not map %q: %w", f.Name(), err)
	}
	if len(data) != n {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("mmap: invalid mapped size (got=%d, want=%d)", len(data), n)
	}

	h := &Handle{data: data, unmap: unix.Munmap}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// HandleFrom returns a handle over a plain memory buffer.
func HandleFrom(data []byte) *Handle {
	return &Handle{data: data}
}

// Close unmaps the memory region.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)

	if h.unmap == nil {
		return nil
	}
	return h.unmap(data)
}

// Len returns the length of the memory region.
func (h *Handle) Len() int {
	return len(h.data)
}

// U32 reads the 32b little-endian register at offset off.
func (h *Handle) U32(off int) (uint32, error) {
	if err := h.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(h.data[off:]), nil
}

// SetU32 writes v to the 32b little-endian register at offset off.
func (h *Handle) SetU32(off int, v uint32) error {
	if err := h.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(h.data[off:], v)
	return nil
}

func (h *Handle) check(off, n int) error {
	switch {
	case h == nil:
		return os.ErrInvalid
	case h.data == nil:
		return errClosed
	case off < 0 || off+n > len(h.data):
		return fmt.Errorf("mmap: invalid register offset 0x%x", off)
	}
	return nil
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
