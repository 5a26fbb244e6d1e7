// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawlog describes the line-oriented log of trigger and data
// packets produced by the collapsing engine.
//
// Trigger lines read:
//
//	<timestamp_ns>,<length>,TRIGGER_ON
//	<timestamp_ns>,<length>,TRIGGER_OFF
//
// and data lines:
//
//	<timestamp_ns>,<length>,DATA0,c3 01 00 ff 7a 2e
//
// where the payload bytes include the leading PID byte.
package rawlog // import "github.com/go-lpc/usblag/rawlog"

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/usblag/usb"
)

// Kind is the kind of a log line.
type Kind uint8

const (
	Data Kind = iota
	TriggerOff
	TriggerOn
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "DATA"
	case TriggerOff:
		return "TRIGGER_OFF"
	case TriggerOn:
		return "TRIGGER_ON"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsTrigger returns whether the kind is a digital-input transition.
func (k Kind) IsTrigger() bool {
	return k == TriggerOn || k == TriggerOff
}

// KindOf returns the line kind of a trigger state.
func KindOf(tr usb.Trigger) Kind {
	if tr == usb.TriggerOn {
		return TriggerOn
	}
	return TriggerOff
}

// Line is one record of the raw log.
type Line struct {
	Time    uint64  // timestamp, in ns
	Len     int     // packet length, as reported by the analyzer
	Kind    Kind    //
	PID     usb.PID // data lines only
	Payload []byte  // data lines only, PID byte included
}

var errInvalidLine = errors.New("rawlog: invalid line")

func (l Line) String() string {
	switch l.Kind {
	case TriggerOn, TriggerOff:
		return fmt.Sprintf("%d,%d,%v", l.Time, l.Len, l.Kind)
	default:
		return fmt.Sprintf("%d,%d,%v,%s", l.Time, l.Len, l.PID, hexBytes(l.Payload))
	}
}

// Clean returns the line in the form used by the cleaned log:
// the packet length is dropped.
func (l Line) Clean() string {
	switch l.Kind {
	case TriggerOn, TriggerOff:
		return fmt.Sprintf("%d,%v", l.Time, l.Kind)
	default:
		return fmt.Sprintf("%d,%v,%s", l.Time, l.PID, hexBytes(l.Payload))
	}
}

// Byte returns the payload byte at the 1-based position pos.
func (l Line) Byte(pos int) (byte, bool) {
	if pos < 1 || pos > len(l.Payload) {
		return 0, false
	}
	return l.Payload[pos-1], true
}

func hexBytes(p []byte) string {
	o := new(strings.Builder)
	o.Grow(3 * len(p))
	for i, v := range p {
		if i > 0 {
			o.WriteByte(' ')
		}
		fmt.Fprintf(o, "%02x", v)
	}
	return o.String()
}

// IsSummary returns whether a log line holds a collapse summary rather
// than a trigger or data record.
func IsSummary(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "COLLAPSED") || strings.HasPrefix(s, "<")
}

// IsComment returns whether a log line holds a diagnostic comment.
func IsComment(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "#")
}

// Parse parses a raw log line.
func Parse(s string) (Line, error) {
	var line Line

	toks := strings.SplitN(strings.TrimRight(s, "\r\n"), ",", 4)
	if len(toks) < 3 {
		return line, fmt.Errorf("%w %q: missing fields", errInvalidLine, s)
	}

	ts, err := strconv.ParseUint(strings.TrimSpace(toks[0]), 10, 64)
	if err != nil {
		return line, fmt.Errorf("%w %q: could not parse timestamp: %v", errInvalidLine, s, err)
	}
	line.Time = ts

	n, err := strconv.Atoi(strings.TrimSpace(toks[1]))
	if err != nil {
		return line, fmt.Errorf("%w %q: could not parse length: %v", errInvalidLine, s, err)
	}
	line.Len = n

	switch label := strings.TrimSpace(toks[2]); label {
	case "TRIGGER_ON":
		line.Kind = TriggerOn
		return line, nil
	case "TRIGGER_OFF":
		line.Kind = TriggerOff
		return line, nil
	default:
		pid, ok := usb.ParsePID(label)
		if !ok || !pid.IsData() {
			return line, fmt.Errorf("%w %q: unknown label %q", errInvalidLine, s, label)
		}
		line.Kind = Data
		line.PID = pid
	}

	if len(toks) < 4 {
		return line, fmt.Errorf("%w %q: missing payload", errInvalidLine, s)
	}

	// payloads are written with a trailing space by some producers.
	fields := strings.Fields(toks[3])
	line.Payload = make([]byte, len(fields))
	for i, v := range fields {
		if len(v) != 2 {
			return line, fmt.Errorf("%w %q: invalid payload byte %q", errInvalidLine, s, v)
		}
		_, err = hex.Decode(line.Payload[i:i+1], []byte(v))
		if err != nil {
			return line, fmt.Errorf("%w %q: invalid payload byte %q: %v", errInvalidLine, s, v, err)
		}
	}

	return line, nil
}
