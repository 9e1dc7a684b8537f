// Copyright 2026 The JetStream Protocol Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stream

import "github.com/jetstreamproto/jsp/lib/wire"

// ControlStreamID is the implicit, always-open Reliable stream every
// connection carries for protocol control messages (session tickets,
// path validation, close negotiation). It is opened automatically and
// cannot be closed by the application.
const ControlStreamID uint32 = 0

// DefaultReorderBudget caps how many out-of-order frames a single
// stream will buffer before evicting the one with the lowest sequence.
const DefaultReorderBudget = 256

// Stream tracks one independent, in-order byte/message stream
// multiplexed over a connection.
type Stream struct {
	ID              uint32
	Delivery        wire.DeliveryMode
	Priority        uint8
	nextExpectedSeq uint64
	nextSendSeq     uint64
	reorder         *reorderBuffer
	localClosed     bool
	remoteClosed    bool
}

// New creates a Stream ready to send and receive under the given
// delivery mode and scheduling priority. Higher values are scheduled
// ahead of lower ones when the write loop coalesces a batch of frames
// from more than one stream into a single datagram. reorderBudget <= 0
// falls back to DefaultReorderBudget.
func New(id uint32, delivery wire.DeliveryMode, priority uint8, reorderBudget int) *Stream {
	if reorderBudget <= 0 {
		reorderBudget = DefaultReorderBudget
	}
	return &Stream{
		ID:       id,
		Delivery: delivery,
		Priority: priority,
		reorder:  newReorderBuffer(reorderBudget),
	}
}

// NextSendSequence returns the next sequence number to stamp on an
// outbound frame for this stream, advancing the counter.
func (s *Stream) NextSendSequence() uint64 {
	seq := s.nextSendSeq
	s.nextSendSeq++
	return seq
}

// Deliver processes an inbound data frame with the given sequence
// number and payload. It returns, in order, every payload now ready for
// delivery to the application (the frame itself plus any previously
// buffered frames it unblocks). A duplicate or already-consumed sequence
// yields no output and is not an error.
func (s *Stream) Deliver(seq uint64, payload []byte) [][]byte {
	if seq < s.nextExpectedSeq {
		return nil
	}
	if seq == s.nextExpectedSeq {
		ready := [][]byte{payload}
		more, next := s.reorder.drain(s.nextExpectedSeq + 1)
		s.nextExpectedSeq = next
		return append(ready, more...)
	}
	if !s.reorder.has(seq) {
		s.reorder.insert(seq, payload)
	}
	return nil
}

// PendingReorderCount reports how many out-of-order frames are
// currently buffered, for diagnostics and tests.
func (s *Stream) PendingReorderCount() int { return s.reorder.len() }

// CloseLocal marks this side's half of the stream as closed. Stream
// close is full-duplex: each direction closes independently, and the
// stream is fully closed once both halves are.
func (s *Stream) CloseLocal() { s.localClosed = true }

// CloseRemote marks the peer's half of the stream as closed.
func (s *Stream) CloseRemote() { s.remoteClosed = true }

// Closed reports whether both halves of the stream have closed.
func (s *Stream) Closed() bool { return s.localClosed && s.remoteClosed }
