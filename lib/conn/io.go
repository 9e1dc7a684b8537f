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
	"context"
	"net"
	"sort"
	"sync/atomic"

	"github.com/gravitational/trace"

	"github.com/jetstreamproto/jsp/lib/pathval"
	"github.com/jetstreamproto/jsp/lib/stream"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// readLoop owns the socket's read side: it decodes coalesced datagrams,
// rejects replays, opens each sealed frame, and dispatches by message
// type. It runs for the lifetime of the connection.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, from, err := c.opts.Socket.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return trace.Wrap(err)
		}

		frames, err := wire.DecodeDatagram(c.opts.Codec, buf[:n])
		if err != nil {
			// A malformed coalesced datagram is dropped whole; it is
			// not fatal to the connection by itself.
			continue
		}

		for _, f := range frames {
			c.handleFrame(f, from)
		}
	}
}

func (c *Conn) handleFrame(f wire.SealedFrame, from net.Addr) {
	c.mu.Lock()
	cryptoCtx := c.crypto
	c.mu.Unlock()
	if cryptoCtx == nil {
		return
	}

	if !c.replayIn.Check(f.Header.Nonce) {
		return
	}

	adBytes, err := c.opts.Codec.EncodeHeader(f.Header)
	if err != nil {
		return
	}
	plaintext, err := cryptoCtx.Open(f.Header.Nonce, adBytes, f.Ciphertext)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.lastRecvAt = c.opts.Clock.Now()
	c.mu.Unlock()
	c.maybeChallengeNewSource(from)

	c.acks.record(f.Header.Nonce)

	c.mu.Lock()
	if !f.Header.IsZeroRTT && !c.livenessConfirmed {
		c.livenessConfirmed = true
		pending := c.pendingZeroRTT
		c.pendingZeroRTT = nil
		c.mu.Unlock()
		for _, d := range pending {
			select {
			case c.inbox <- d:
			default:
			}
		}
	} else {
		c.mu.Unlock()
	}

	switch f.Header.Type {
	case wire.MsgData:
		c.deliverData(f.Header, plaintext)
	case wire.MsgAck:
		c.handleAck(f.Header)
	case wire.MsgHeartbeat:
		// lastRecvAt already updated above; nothing further to do.
	case wire.MsgClose:
		c.mu.Lock()
		c.peerCloseInfo = plaintext
		c.mu.Unlock()
		_ = c.setState(StateClosing)
		go c.shutdown()
	case wire.MsgStreamControl:
		c.handleStreamControl(f.Header, plaintext)
	case wire.MsgPathChallenge:
		c.handlePathChallenge(f.Header, plaintext)
	case wire.MsgPathResponse:
		c.handlePathResponse(plaintext, from)
	}
}

// maybeChallengeNewSource implements the receiving side of an
// unannounced path change: a frame that decrypted correctly under this
// connection's crypto context, but whose datagram arrived from an
// address other than the one currently on file, is a candidate for
// either a genuine NAT rebind or a spoofed source. It is validated the
// same way an explicit Migrate is: a PATH_CHALLENGE goes to the
// candidate and the address is adopted once the matching PATH_RESPONSE
// comes back. Only one challenge is kept outstanding per connection at
// a time; repeated frames from the same still-pending candidate do not
// trigger repeat challenges.
func (c *Conn) maybeChallengeNewSource(from net.Addr) {
	c.mu.Lock()
	current := c.remoteAddr
	already := c.pendingMigration != nil && c.pendingMigration.String() == from.String()
	unchanged := current != nil && from.String() == current.String()
	if unchanged || already {
		c.mu.Unlock()
		return
	}
	c.pendingMigration = from
	c.mu.Unlock()

	challenge, err := c.pathval.Issue(from)
	if err != nil {
		c.mu.Lock()
		c.pendingMigration = nil
		c.mu.Unlock()
		return
	}
	controlStream, ok := c.streams.Get(stream.ControlStreamID)
	if !ok {
		return
	}
	frame, err := c.sealFrame(controlStream, wire.MsgPathChallenge, wire.NewBestEffort(), challenge.Token[:], nil)
	if err != nil {
		return
	}
	// The challenge is written straight to the candidate: frames queued
	// on the outbox go to the remote address currently on file.
	dgram, err := wire.EncodeDatagram(c.opts.Codec, []wire.SealedFrame{frame})
	if err == nil {
		_, err = c.opts.Socket.WriteTo(dgram, from)
	}
	if err != nil {
		c.mu.Lock()
		c.pendingMigration = nil
		c.mu.Unlock()
	}
}

func (c *Conn) deliverData(h *wire.Header, payload []byte) {
	if c.opts.EnableCompression {
		decompressed, err := decompressPayload(payload)
		if err != nil {
			// A frame that fails to decompress is dropped like any other
			// malformed frame rather than failing the whole connection.
			return
		}
		payload = decompressed
	}

	s, ok := c.streams.Get(h.StreamID)
	if !ok {
		s = c.streams.OpenWithID(h.StreamID, h.Delivery)
	}

	c.mu.Lock()
	gate := h.IsZeroRTT && !c.livenessConfirmed
	c.mu.Unlock()

	for _, ready := range s.Deliver(h.Sequence, payload) {
		d := Delivery{StreamID: h.StreamID, Payload: ready}
		if gate {
			c.mu.Lock()
			c.pendingZeroRTT = append(c.pendingZeroRTT, d)
			c.mu.Unlock()
			continue
		}
		select {
		case c.inbox <- d:
		default:
			// Application is not draining Recv fast enough; drop rather
			// than block the single I/O goroutine.
		}
	}
}

func (c *Conn) handleAck(h *wire.Header) {
	res := c.reliability.HandleAck(h)
	if len(res.AckedSeqs) > 0 {
		highest := res.AckedSeqs[0]
		for _, s := range res.AckedSeqs {
			if s > highest {
				highest = s
			}
		}
		c.congestion.OnAck(res.AckedBytes, highest)
	}
	for _, rec := range res.FastRetransmits {
		c.congestion.OnLoss(atomic.LoadUint64(&c.nonceCounter) - 1)
		select {
		case c.outbox <- rec.Frame:
		default:
		}
	}
}

func (c *Conn) handleStreamControl(h *wire.Header, payload []byte) {
	if len(payload) == 0 {
		c.streams.CloseRemote(h.StreamID)
		return
	}
	c.streams.OpenWithID(h.StreamID, h.Delivery)
}

func (c *Conn) handlePathChallenge(h *wire.Header, token []byte) {
	// Echo the challenge token back as a PATH_RESPONSE on the control
	// stream; the token itself travels as the frame payload.
	controlStream, ok := c.streams.Get(stream.ControlStreamID)
	if !ok {
		return
	}
	frame, err := c.sealFrame(controlStream, wire.MsgPathResponse, wire.NewBestEffort(), token, nil)
	if err != nil {
		return
	}
	select {
	case c.outbox <- frame:
	default:
	}
}

// handlePathResponse verifies a PATH_RESPONSE against the outstanding
// challenge for the address it actually arrived from (from), not
// whatever address the connection currently has on file: the candidate
// being validated is exactly what from names.
func (c *Conn) handlePathResponse(payload []byte, from net.Addr) {
	if from == nil || len(payload) < pathval.TokenSize {
		return
	}
	var resp pathval.Response
	copy(resp.Token[:], payload[:pathval.TokenSize])
	ok, err := c.pathval.Verify(from, resp)
	if err != nil || !ok {
		return
	}
	c.mu.Lock()
	c.remoteAddr = from
	if c.pendingMigration != nil && c.pendingMigration.String() == from.String() {
		c.pendingMigration = nil
	}
	c.mu.Unlock()
}

// writeLoop drains the outbound frame queue and writes each sealed
// frame to the socket, opportunistically coalescing whatever is queued
// at the moment it wakes up into one datagram.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case first := <-c.outbox:
			batch := []wire.SealedFrame{first}
		drain:
			for len(batch) < 16 {
				select {
				case f := <-c.outbox:
					batch = append(batch, f)
				default:
					break drain
				}
			}
			c.flushAcks(&batch)
			c.sortByPriority(batch)

			dgram, err := wire.EncodeDatagram(c.opts.Codec, batch)
			if err != nil {
				continue
			}
			c.mu.Lock()
			addr := c.remoteAddr
			c.mu.Unlock()
			if _, err := c.opts.Socket.WriteTo(dgram, addr); err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				return trace.Wrap(err)
			}
		}
	}
}

// sortByPriority stable-sorts a batch of coalesced frames so that
// higher-priority streams are written earlier in the datagram. Frames
// from the same stream keep their relative order.
func (c *Conn) sortByPriority(batch []wire.SealedFrame) {
	sort.SliceStable(batch, func(i, j int) bool {
		return c.streamPriority(batch[i].Header.StreamID) > c.streamPriority(batch[j].Header.StreamID)
	})
}

func (c *Conn) streamPriority(streamID uint32) uint8 {
	s, ok := c.streams.Get(streamID)
	if !ok {
		return 0
	}
	return s.Priority
}

// flushAcks appends an ACK frame to batch whenever the ack tracker holds
// received nonces not yet covered by an earlier cumulative range.
func (c *Conn) flushAcks(batch *[]wire.SealedFrame) {
	ranges, ok := c.acks.ranges()
	if !ok {
		return
	}
	controlStream, ok := c.streams.Get(stream.ControlStreamID)
	if !ok {
		return
	}
	frame, err := c.sealFrame(controlStream, wire.MsgAck, wire.NewBestEffort(), nil, ranges)
	if err != nil {
		return
	}
	*batch = append(*batch, frame)
}

// timerLoop drives the periodic, clock-driven duties: heartbeats, RTO
// checks, TTL sweeps, and idle/heartbeat-miss timeout detection.
func (c *Conn) timerLoop(ctx context.Context) error {
	heartbeat := c.opts.Clock.NewTicker(c.opts.HeartbeatInterval)
	rtoCheck := c.opts.Clock.NewTicker(AckCoalesceInterval)
	defer heartbeat.Stop()
	defer rtoCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.Chan():
			now := c.opts.Clock.Now()
			c.mu.Lock()
			sessionExpired := now.Sub(c.lastRecvAt) > c.opts.SessionTimeout
			if c.lastRecvAt.After(c.lastHeartbeatSentAt) {
				c.missedHeartbeats = 0
			} else {
				c.missedHeartbeats++
			}
			heartbeatsExhausted := c.missedHeartbeats >= c.opts.HeartbeatTimeoutCount
			c.mu.Unlock()
			if sessionExpired || heartbeatsExhausted {
				_ = c.setState(StateClosing)
				go c.shutdown()
				continue
			}
			controlStream, ok := c.streams.Get(stream.ControlStreamID)
			if !ok {
				continue
			}
			frame, err := c.sealFrame(controlStream, wire.MsgHeartbeat, wire.NewBestEffort(), nil, nil)
			if err == nil {
				c.mu.Lock()
				c.lastHeartbeatSentAt = now
				c.mu.Unlock()
				select {
				case c.outbox <- frame:
				default:
				}
			}
		case <-rtoCheck.Chan():
			for _, rec := range c.reliability.CheckTimeouts() {
				c.reliability.BackoffRTO()
				c.congestion.OnRTOTimeout(atomic.LoadUint64(&c.nonceCounter) - 1)
				select {
				case c.outbox <- rec.Frame:
				default:
				}
			}
			for range c.reliability.SweepExpiredTTL() {
				// dropped outright; nothing further to send.
			}
			for _, addr := range c.pathval.SweepExpired() {
				c.mu.Lock()
				if c.pendingMigration != nil && c.pendingMigration.String() == addr.String() {
					c.pendingMigration = nil
				}
				c.mu.Unlock()
			}
		}
	}
}
