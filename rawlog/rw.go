// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawlog

import (
	"bufio"
	"fmt"
	"io"
)

// Encoder writes log lines to an output stream.
type Encoder struct {
	w   io.Writer
	err error

	clean bool
}

// NewEncoder returns a new Encoder that writes raw log lines to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// NewCleanEncoder returns a new Encoder that writes cleaned log lines to w.
func NewCleanEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, clean: true}
}

// Encode writes one line to the stream.
func (enc *Encoder) Encode(line Line) error {
	if enc.err != nil {
		return enc.err
	}
	txt := line.String()
	if enc.clean {
		txt = line.Clean()
	}
	_, enc.err = fmt.Fprintln(enc.w, txt)
	if enc.err != nil {
		enc.err = fmt.Errorf("rawlog: could not write line: %w", enc.err)
	}
	return enc.err
}

// Decoder reads raw log lines from an input stream.
// Blank lines, comments and summary lines are skipped.
type Decoder struct {
	sc  *bufio.Scanner
	n   int
	err error
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{sc: bufio.NewScanner(r)}
}

// Decode reads the next line from the stream.
// Decode returns io.EOF when the stream is exhausted.
func (dec *Decoder) Decode(line *Line) error {
	if dec.err != nil {
		return dec.err
	}

	for dec.sc.Scan() {
		dec.n++
		txt := dec.sc.Text()
		if len(txt) == 0 || IsSummary(txt) || IsComment(txt) {
			continue
		}
		v, err := Parse(txt)
		if err != nil {
			dec.err = fmt.Errorf("rawlog: could not decode line %d: %w", dec.n, err)
			return dec.err
		}
		*line = v
		return nil
	}

	dec.err = dec.sc.Err()
	if dec.err != nil {
		dec.err = fmt.Errorf("rawlog: could not scan input: %w", dec.err)
		return dec.err
	}
	dec.err = io.EOF
	return dec.err
}

// ReadAll decodes all the lines of r.
func ReadAll(r io.Reader) ([]Line, error) {
	var (
		dec   = NewDecoder(r)
		lines []Line
	)
	for {
		var line Line
		err := dec.Decode(&line)
		if err != nil {
			if err == io.EOF {
				return lines, nil
			}
			return lines, err
		}
		lines = append(lines, line)
	}
}

// WriteAll encodes all lines to w.
func WriteAll(w io.Writer, lines []Line) error {
	enc := NewEncoder(w)
	for _, line := range lines {
		err := enc.Encode(line)
		if err != nil {
			return err
		}
	}
	return nil
}
