// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collapse

import (
	"github.com/go-lpc/usblag/usb"
)

// QueueSize is the number of packet slots of a Queue.
// At most QueueSize-1 packets are saved while the last slot receives the
// packet being read: SPLIT+{IN,OUT,SETUP} are pending while the handshake
// is read.
const QueueSize = 3

// Queue stores the packets saved during the collapsing process.
// The tail of the queue is always used to store the current packet.
type Queue struct {
	head int
	tail int
	pkts [QueueSize]usb.Packet
}

// Slot returns the tail slot, to be filled with the next packet.
func (q *Queue) Slot() *usb.Packet {
	return &q.pkts[q.tail]
}

// Head returns the oldest saved packet.
// Head is only meaningful when the queue is not empty.
func (q *Queue) Head() *usb.Packet {
	return &q.pkts[q.head]
}

// Commit saves the packet held in the tail slot.
func (q *Queue) Commit() {
	q.tail = (q.tail + 1) % QueueSize
	if q.tail == q.head {
		panic("collapse: packet queue overflow")
	}
}

// Empty returns whether no packet is saved.
func (q *Queue) Empty() bool {
	return q.tail == q.head
}

// Len returns the number of saved packets.
func (q *Queue) Len() int {
	return (q.tail - q.head + QueueSize) % QueueSize
}

// Drain dequeues all saved packets, in the order they were saved.
// The returned packets stay valid until the next call to Commit.
func (q *Queue) Drain() []*usb.Packet {
	pkts := make([]*usb.Packet, 0, QueueSize-1)
	for q.head != q.tail {
		pkts = append(pkts, &q.pkts[q.head])
		q.head = (q.head + 1) % QueueSize
	}
	return pkts
}

// Discard drops all saved packets.
func (q *Queue) Discard() {
	q.head = q.tail
}
