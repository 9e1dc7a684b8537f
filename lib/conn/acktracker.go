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

package conn

import (
	"github.com/google/btree"

	"github.com/jetstreamproto/jsp/lib/wire"
)

// ackTracker accumulates the nonces of frames this side has accepted
// (passed replay and AEAD verification) so an outbound ACK frame can
// carry an accurate cumulative-plus-SACK summary. Nonces are the
// connection-global packet identifier; the per-stream Sequence field is
// a separate namespace handled by the stream package.
type ackTracker struct {
	received *btree.BTreeG[uint64]
	// next is the lowest nonce not yet covered by a reported cumulative
	// range; every nonce below it has been received and pruned.
	next uint64
}

func newAckTracker() *ackTracker {
	return &ackTracker{received: btree.NewG(32, func(a, b uint64) bool { return a < b })}
}

func (t *ackTracker) record(nonce uint64) {
	t.received.ReplaceOrInsert(nonce)
}

// emptyCumulative is the sentinel first AckRange (Start > End) used to
// signal "nothing contiguous from zero yet" without falsely claiming
// sequence zero itself was received.
var emptyCumulative = wire.AckRange{Start: 1, End: 0}

// ranges returns the ack ranges to attach to an outbound ACK frame: a
// first "cumulative" range (or the emptyCumulative sentinel if nothing
// is contiguous from zero yet) followed by any additional SACK blocks,
// pruning the nonces the cumulative range now covers so the tracker
// does not grow without bound over a long-lived connection. Nonces above
// a gap stay tracked until the gap fills; a gap left by a lost frame
// that is never retransmitted never fills.
func (t *ackTracker) ranges() (ranges []wire.AckRange, ok bool) {
	if t.received.Len() == 0 {
		return nil, false
	}

	min, _ := t.received.Min()
	if min > t.next {
		// Nothing new is contiguous with the cumulative point; repeat the
		// cumulative range reached so far (or the empty sentinel if none)
		// and report everything else as SACK blocks.
		first := emptyCumulative
		if t.next > 0 {
			first = wire.AckRange{Start: 0, End: t.next - 1}
		}
		return append([]wire.AckRange{first}, t.collectRanges()...), true
	}

	cumulative := min
	if t.next > cumulative {
		cumulative = t.next - 1
	}
	for {
		if _, found := t.received.Get(cumulative + 1); !found {
			break
		}
		cumulative++
	}

	// Prune everything at or below the new cumulative point. Deletions
	// are collected first since mutating the tree mid-iteration is not
	// safe.
	var toPrune []uint64
	t.received.AscendRange(0, cumulative+1, func(v uint64) bool {
		toPrune = append(toPrune, v)
		return true
	})
	for _, v := range toPrune {
		t.received.Delete(v)
	}
	t.next = cumulative + 1

	return append([]wire.AckRange{{Start: 0, End: cumulative}}, t.collectRanges()...), true
}

func (t *ackTracker) collectRanges() []wire.AckRange {
	var ranges []wire.AckRange
	var start, prev uint64
	have := false
	t.received.Ascend(func(v uint64) bool {
		if !have {
			start, prev = v, v
			have = true
			return true
		}
		if v == prev+1 {
			prev = v
			return true
		}
		ranges = append(ranges, wire.AckRange{Start: start, End: prev})
		start, prev = v, v
		return true
	})
	if have {
		ranges = append(ranges, wire.AckRange{Start: start, End: prev})
	}
	return ranges
}
