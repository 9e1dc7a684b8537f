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
	"net"
	"time"

	"github.com/gravitational/trace"

	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/pathval"
	"github.com/jetstreamproto/jsp/lib/stream"
	"github.com/jetstreamproto/jsp/lib/ticketstore"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// MigrationValidationWait is pathval.DefaultDeadline plus a half-second
// margin. Migrate does not wait on it: it returns as soon as the path
// challenge has been sent.
const MigrationValidationWait = pathval.DefaultDeadline + 500*time.Millisecond

// Migrate starts validating candidateAddr as the peer's new address: it
// sends a PATH_CHALLENGE there and returns. Future sends keep going to
// the current remote address until the matching PATH_RESPONSE arrives
// from candidateAddr, at which point the read loop adopts it; a
// challenge left unanswered past the validation deadline is discarded.
// The connection id is unaffected, since it is what makes migration
// possible in the first place.
func (c *Conn) Migrate(candidateAddr net.Addr) error {
	if c.State() != StateEstablished {
		return trace.BadParameter("cannot migrate a connection in state %s", c.State())
	}

	challenge, err := c.pathval.Issue(candidateAddr)
	if err != nil {
		return trace.Wrap(err)
	}

	controlStream, ok := c.streams.Get(stream.ControlStreamID)
	if !ok {
		return trace.NotFound("control stream missing")
	}
	frame, err := c.sealFrame(controlStream, wire.MsgPathChallenge, wire.NewBestEffort(), challenge.Token[:], nil)
	if err != nil {
		return trace.Wrap(err)
	}

	// The challenge is written straight to the candidate: frames queued
	// on the outbox go to the remote address currently on file.
	dgram, err := wire.EncodeDatagram(c.opts.Codec, []wire.SealedFrame{frame})
	if err != nil {
		return trace.Wrap(err)
	}
	if _, err := c.opts.Socket.WriteTo(dgram, candidateAddr); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

// DiscoverPublicAddress returns the peer address the connection
// currently sends to (RemoteAddr): the dialed address until a path
// validation adopts a new one. It does not report this side's own
// address as the peer observes it; no frame carries that back.
func (c *Conn) DiscoverPublicAddress() net.Addr {
	return c.RemoteAddr()
}

// GenerateSessionTicket issues a 0-RTT resumption ticket sealing this
// connection's resumption secret, through the server-wide store.
func (c *Conn) GenerateSessionTicket(store *ticketstore.Store) ([]byte, error) {
	secret := c.ResumptionSecret()
	opaque, err := store.Issue(secret[:], c.opts.Clock.Now())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return opaque, nil
}

// redeemTicket opens a presented resumption ticket and enforces its
// single use through store. Nothing in the handshake path calls it; a
// ticket carried in a ClientHello is not redeemed.
func redeemTicket(store *ticketstore.Store, opaque []byte, now time.Time) (*cryptoctx.TicketPlaintext, error) {
	return store.Redeem(opaque, now)
}
