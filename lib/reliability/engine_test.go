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

package reliability

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/jetstreamproto/jsp/lib/wire"
)

func ackHeader(cumulative uint64, sack ...wire.AckRange) *wire.Header {
	ranges := append([]wire.AckRange{{Start: 0, End: cumulative}}, sack...)
	return &wire.Header{Type: wire.MsgAck, Acks: ranges}
}

func TestEngineCumulativeAckRemovesRecords(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, 0)
	for seq := uint64(0); seq < 3; seq++ {
		e.RecordSent(seq, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("x")})
		clock.Advance(10 * time.Millisecond)
	}
	require.Equal(t, 3, e.Outstanding())

	res := e.HandleAck(ackHeader(1))
	require.Len(t, res.AckedSeqs, 2)
	require.Equal(t, 1, e.Outstanding()) // seq 2 was not covered by the cumulative ack
}

func TestEngineSACKRemovesNonCumulativeRecords(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, 0)
	e.RecordSent(0, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("a")})
	e.RecordSent(1, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("b")})
	e.RecordSent(2, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("c")})

	// cumulative ack of 0, plus a SACK block covering seq 2 inclusive.
	h := &wire.Header{Acks: []wire.AckRange{{Start: 0, End: 0}, {Start: 2, End: 2}}}
	res := e.HandleAck(h)
	require.Len(t, res.AckedSeqs, 2)
	require.Equal(t, 1, e.Outstanding())
}

func TestEngineFastRetransmit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, 0)
	e.RecordSent(10, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("a")})
	e.RecordSent(11, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("b")})

	// Repeated SACKs of seq 11 while seq 10 remains unacked should trip
	// fast retransmit once the skip count reaches the threshold.
	for i := 0; i < FastRetransmitThreshold; i++ {
		res := e.HandleAck(&wire.Header{Acks: []wire.AckRange{{Start: 0, End: 0}, {Start: 11, End: 11}}})
		if i == FastRetransmitThreshold-1 {
			require.Len(t, res.FastRetransmits, 1)
			require.Equal(t, uint64(10), res.FastRetransmits[0].Seq)
		}
	}
}

func TestEngineRTOBacksOff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, 0)
	initial := e.CurrentRTO()
	e.BackoffRTO()
	require.Equal(t, 2*initial, e.CurrentRTO())
}

func TestEngineCheckTimeouts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, 0)
	e.RecordSent(0, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("a")})
	clock.Advance(MinRTO + time.Millisecond)
	expired := e.CheckTimeouts()
	require.Len(t, expired, 1)
	require.True(t, expired[0].Retransmitted)
}

func TestEngineSweepExpiredTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, 0)
	pr := wire.NewPartiallyReliable(50 * time.Millisecond)
	e.RecordSent(0, 1, pr, wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("a")})
	e.RecordSent(1, 1, wire.NewReliable(), wire.SealedFrame{Header: &wire.Header{}, Ciphertext: []byte("b")})

	clock.Advance(60 * time.Millisecond)
	expired := e.SweepExpiredTTL()
	require.Len(t, expired, 1)
	require.Equal(t, uint64(0), expired[0].Seq)
	require.Equal(t, 1, e.Outstanding())
}
