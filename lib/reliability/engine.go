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

// Package reliability implements the sent-record table, ACK/SACK
// processing, RTO estimation, fast retransmit, and the TTL sweep for
// PartiallyReliable frames.
package reliability

import (
	"time"

	"github.com/google/btree"
	"github.com/jonboulle/clockwork"

	"github.com/jetstreamproto/jsp/lib/wire"
)

// FastRetransmitThreshold is how many times a later sequence must be
// acknowledged while a record remains outstanding before that record is
// retransmitted without waiting for its RTO.
const FastRetransmitThreshold = 3

// MinRTO and MaxRTO bound the retransmission timer regardless of the
// Jacobson/Karels estimate, for a conservative fit to a lossy UDP path.
const (
	MinRTO = 200 * time.Millisecond
	MaxRTO = 60 * time.Second
)

const (
	alphaSRTT   = 0.125
	betaRTTVAR  = 0.25
)

// Record is one outstanding, unacknowledged frame.
type Record struct {
	Seq       uint64
	StreamID  uint32
	Delivery  wire.DeliveryMode
	Frame     wire.SealedFrame
	SentAt    time.Time
	Retransmitted bool
	skipCount int
	firstSentAt time.Time
}

func lessRecord(a, b *Record) bool { return a.Seq < b.Seq }

// Engine tracks every outstanding Reliable or PartiallyReliable frame
// for one connection and drives RTT estimation from the ACKs it
// observes. It never tracks BestEffort frames: callers must not call
// RecordSent for them.
type Engine struct {
	clock   clockwork.Clock
	records *btree.BTreeG[*Record]
	minRTO  time.Duration

	hasSample bool
	srtt      time.Duration
	rttvar    time.Duration
	rto       time.Duration
}

// New returns an Engine with no outstanding records and the RTO seeded
// at minRTO until the first RTT sample arrives. minRTO <= 0 falls back
// to the package default.
func New(clock clockwork.Clock, minRTO time.Duration) *Engine {
	if minRTO <= 0 {
		minRTO = MinRTO
	}
	return &Engine{
		clock:   clock,
		records: btree.NewG(32, lessRecord),
		minRTO:  minRTO,
		rto:     minRTO,
	}
}

// RecordSent registers a newly sent frame as outstanding. BestEffort
// frames must never be passed here; callers check
// Delivery.RequiresRetransmit() first.
func (e *Engine) RecordSent(seq uint64, streamID uint32, delivery wire.DeliveryMode, frame wire.SealedFrame) {
	rec := &Record{
		Seq:      seq,
		StreamID: streamID,
		Delivery: delivery,
		Frame:    frame,
		SentAt:   e.clock.Now(),
	}
	rec.firstSentAt = rec.SentAt
	e.records.ReplaceOrInsert(rec)
}

// Outstanding returns the number of unacknowledged records, for tests
// and diagnostics.
func (e *Engine) Outstanding() int { return e.records.Len() }

// CurrentRTO returns the connection's current retransmission timeout.
func (e *Engine) CurrentRTO() time.Duration { return e.rto }

// AckResult summarizes the effect of processing one ACK frame.
type AckResult struct {
	AckedBytes      int
	AckedSeqs       []uint64
	FastRetransmits []*Record
}

// HandleAck applies the cumulative ack and SACK ranges carried in
// header to the outstanding record set. SACK ranges are inclusive on
// both ends.
func (e *Engine) HandleAck(header *wire.Header) AckResult {
	var res AckResult
	cumulative, hasCumulative, sack, ok := header.CumulativeAck()
	if !ok {
		return res
	}

	now := e.clock.Now()
	var highestAcked uint64
	if hasCumulative {
		highestAcked = cumulative
	}
	for _, r := range sack {
		if r.End > highestAcked {
			highestAcked = r.End
		}
	}

	acked := make(map[uint64]bool)
	e.records.Ascend(func(rec *Record) bool {
		if hasCumulative && rec.Seq <= cumulative {
			acked[rec.Seq] = true
			return true
		}
		for _, r := range sack {
			if r.Contains(rec.Seq) {
				acked[rec.Seq] = true
				break
			}
		}
		return true
	})

	for seq := range acked {
		rec, ok := e.records.Get(&Record{Seq: seq})
		if !ok {
			continue
		}
		e.records.Delete(rec)
		res.AckedBytes += len(rec.Frame.Ciphertext)
		res.AckedSeqs = append(res.AckedSeqs, seq)
		if !rec.Retransmitted {
			e.sampleRTT(now.Sub(rec.SentAt))
		}
	}

	e.records.Ascend(func(rec *Record) bool {
		if rec.Seq < highestAcked {
			rec.skipCount++
			if rec.skipCount >= FastRetransmitThreshold {
				rec.skipCount = 0
				res.FastRetransmits = append(res.FastRetransmits, rec)
			}
		}
		return true
	})

	return res
}

// sampleRTT feeds a fresh RTT measurement into the Jacobson/Karels
// estimator and recomputes the RTO.
func (e *Engine) sampleRTT(sample time.Duration) {
	if !e.hasSample {
		e.srtt = sample
		e.rttvar = sample / 2
		e.hasSample = true
	} else {
		diff := e.srtt - sample
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = time.Duration((1-betaRTTVAR)*float64(e.rttvar) + betaRTTVAR*float64(diff))
		e.srtt = time.Duration((1-alphaSRTT)*float64(e.srtt) + alphaSRTT*float64(sample))
	}
	e.recomputeRTO()
}

func (e *Engine) recomputeRTO() {
	rto := e.srtt + 4*e.rttvar
	if rto < e.minRTO {
		rto = e.minRTO
	}
	if rto > MaxRTO {
		rto = MaxRTO
	}
	e.rto = rto
}

// BackoffRTO doubles the current RTO after a retransmission timeout
// fires, up to MaxRTO, per standard exponential backoff.
func (e *Engine) BackoffRTO() {
	e.rto *= 2
	if e.rto > MaxRTO {
		e.rto = MaxRTO
	}
}

// CheckTimeouts returns every outstanding Reliable/PartiallyReliable
// record whose RTO has elapsed, marking them retransmitted so a
// subsequent ACK for the original transmission is not used as an RTT
// sample (Karn's algorithm).
func (e *Engine) CheckTimeouts() []*Record {
	now := e.clock.Now()
	var expired []*Record
	e.records.Ascend(func(rec *Record) bool {
		if now.Sub(rec.SentAt) >= e.rto {
			expired = append(expired, rec)
		}
		return true
	})
	for _, rec := range expired {
		rec.Retransmitted = true
		rec.SentAt = now
	}
	return expired
}

// SweepExpiredTTL removes and returns every PartiallyReliable record
// whose delivery TTL has elapsed since it was first sent. These records
// are dropped outright, never retransmitted.
func (e *Engine) SweepExpiredTTL() []*Record {
	now := e.clock.Now()
	var expired []*Record
	e.records.Ascend(func(rec *Record) bool {
		ttl, ok := rec.Delivery.TTL()
		if ok && now.Sub(rec.firstSentAt) >= ttl {
			expired = append(expired, rec)
		}
		return true
	})
	for _, rec := range expired {
		e.records.Delete(rec)
	}
	return expired
}
