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

package wire

// Header flag bits.
const (
	// FlagConnectionID indicates the connection_id field is present.
	// Required on every frame except the very first flight of the
	// handshake, where the connection id has not yet been assigned.
	FlagConnectionID uint8 = 1 << iota
	// FlagPiggybackedAck indicates one or more SACK ranges follow the
	// fixed header fields.
	FlagPiggybackedAck
	// FlagZeroRTT marks data sent before the handshake has completed.
	FlagZeroRTT
)

// AckRange is an inclusive-both-ends sequence range being acknowledged.
type AckRange struct {
	Start uint64
	End   uint64
}

// Contains reports whether seq falls within the range.
func (r AckRange) Contains(seq uint64) bool {
	return seq >= r.Start && seq <= r.End
}

// Header is the fixed set of fields that precede every sealed payload.
// The header itself is never encrypted; it is authenticated as AEAD
// associated data.
type Header struct {
	StreamID     uint32
	Type         MsgType
	Flags        uint8
	Sequence     uint64
	Timestamp    uint64
	Nonce        uint64
	Delivery     DeliveryMode
	Acks         []AckRange
	PayloadLen   uint32
	ConnectionID uint64
	HasConnID    bool
	IsZeroRTT    bool
}

// CumulativeAck returns the highest contiguous sequence acknowledged,
// which by convention is the End of the first ack range, and the
// remaining ranges as SACK blocks. Returns ok=false if no acks are
// present at all. hasCumulative is false when the first range is an
// empty sentinel (Start > End) meaning nothing is yet contiguously
// acknowledged from zero, even though later SACK ranges may carry real
// information; callers must not treat cumulative as meaningful unless
// hasCumulative is true.
func (h *Header) CumulativeAck() (cumulative uint64, hasCumulative bool, sack []AckRange, ok bool) {
	if len(h.Acks) == 0 {
		return 0, false, nil, false
	}
	first := h.Acks[0]
	if first.Start > first.End {
		return 0, false, h.Acks[1:], true
	}
	return first.End, true, h.Acks[1:], true
}

func (h *Header) setFlags() {
	h.Flags = 0
	if h.HasConnID {
		h.Flags |= FlagConnectionID
	}
	if len(h.Acks) > 0 {
		h.Flags |= FlagPiggybackedAck
	}
	if h.IsZeroRTT {
		h.Flags |= FlagZeroRTT
	}
}
