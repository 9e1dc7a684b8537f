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

// Package wire implements the frame header, the two negotiable on-wire
// header encodings, and datagram coalescing.
package wire

import "time"

// DeliveryKind selects one of the three delivery guarantees a stream (or
// an individual frame on the control stream) can request.
type DeliveryKind uint8

const (
	// Reliable frames are retransmitted until acknowledged or the
	// connection closes.
	Reliable DeliveryKind = iota
	// PartiallyReliable frames are retransmitted only until their TTL
	// deadline; past that they are never retransmitted again.
	PartiallyReliable
	// BestEffort frames are sent once and never tracked for retransmit.
	BestEffort
)

func (k DeliveryKind) String() string {
	switch k {
	case Reliable:
		return "reliable"
	case PartiallyReliable:
		return "partially_reliable"
	case BestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// DeliveryMode is the wire representation of the delivery_mode header
// field: Reliable carries no data, PartiallyReliable carries a TTL in
// milliseconds, BestEffort carries no data.
type DeliveryMode struct {
	Kind  DeliveryKind
	TTLMS uint32
}

// NewReliable returns the Reliable delivery mode.
func NewReliable() DeliveryMode { return DeliveryMode{Kind: Reliable} }

// NewPartiallyReliable returns a PartiallyReliable delivery mode with the
// given TTL.
func NewPartiallyReliable(ttl time.Duration) DeliveryMode {
	return DeliveryMode{Kind: PartiallyReliable, TTLMS: uint32(ttl.Milliseconds())}
}

// NewBestEffort returns the BestEffort delivery mode.
func NewBestEffort() DeliveryMode { return DeliveryMode{Kind: BestEffort} }

// RequiresAck reports whether the Reliability Engine must await an ACK
// for frames sent under this mode.
func (m DeliveryMode) RequiresAck() bool {
	return m.Kind == Reliable || m.Kind == PartiallyReliable
}

// RequiresRetransmit reports whether an unacked frame under this mode is
// a retransmit candidate.
func (m DeliveryMode) RequiresRetransmit() bool {
	return m.Kind == Reliable || m.Kind == PartiallyReliable
}

// TTL returns the mode's retransmission deadline, or zero with ok=false
// if the mode has none (Reliable never expires; BestEffort is never
// tracked in the first place).
func (m DeliveryMode) TTL() (time.Duration, bool) {
	if m.Kind != PartiallyReliable {
		return 0, false
	}
	return time.Duration(m.TTLMS) * time.Millisecond, true
}

// IsExpired reports whether elapsed has passed this mode's TTL. Reliable
// never expires; BestEffort is always considered expired for retransmit
// accounting since it is never retained in the first place.
func (m DeliveryMode) IsExpired(elapsed time.Duration) bool {
	switch m.Kind {
	case Reliable:
		return false
	case BestEffort:
		return true
	default:
		return elapsed >= time.Duration(m.TTLMS)*time.Millisecond
	}
}
