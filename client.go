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

package jsp

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"

	"github.com/jetstreamproto/jsp/lib/conn"
	"github.com/jetstreamproto/jsp/lib/congestion"
	"github.com/jetstreamproto/jsp/lib/ticketstore"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// Conn is an established JetStream connection: a thin, typed wrapper
// around lib/conn.Conn that speaks in root-package vocabulary
// (CloseReason, Ticket) instead of the internal engine types.
type Conn struct {
	inner *conn.Conn

	// ticketStore is non-nil only for connections the server accepted;
	// a client-dialed Conn cannot mint resumption tickets for itself.
	ticketStore *ticketstore.Store
}

type closePayload struct {
	Reason  CloseReason
	Message string
}

// OpenStream opens a new application stream under mode with the given
// scheduling priority and returns its id. Priority only influences how
// the write loop orders frames from concurrently-writable streams into
// one outbound datagram; it does not affect delivery guarantees.
func (c *Conn) OpenStream(priority uint8, mode wire.DeliveryMode) (uint32, error) {
	if c.inner.State() != conn.StateEstablished {
		return 0, NewError(KindConnectionClosed, "connection is not established")
	}
	id, err := c.inner.OpenStream(mode, priority)
	if err != nil {
		return 0, WrapError(KindStreamClosed, err)
	}
	return id, nil
}

// CloseStream closes the local half of streamID. The remote half stays
// open until the peer closes its own side; until then the stream stays
// registered and SendOnStream on it is not rejected. The control stream
// (id 0) cannot be closed.
func (c *Conn) CloseStream(streamID uint32) error {
	return trace.Wrap(c.inner.CloseStream(streamID))
}

// SendOnStream queues payload for delivery on streamID under that
// stream's delivery mode.
func (c *Conn) SendOnStream(streamID uint32, payload []byte) error {
	err := c.inner.SendOnStream(streamID, payload)
	if err == nil {
		return nil
	}
	var cwndFull congestion.ErrCongestionWindowFull
	switch {
	case trace.IsNotFound(err):
		return WrapError(KindStreamClosed, err)
	case trace.IsLimitExceeded(err):
		return WrapError(KindRateLimited, err)
	case errors.As(err, &cwndFull):
		return WrapError(KindCongestionWindowFull, err)
	default:
		return trace.Wrap(err)
	}
}

// Recv blocks until the next inbound application payload is available
// on any stream, ctx is canceled, or the connection closes.
func (c *Conn) Recv(ctx context.Context) (streamID uint32, payload []byte, err error) {
	d, err := c.inner.Recv(ctx)
	if err != nil {
		return 0, nil, trace.Wrap(err)
	}
	return d.StreamID, d.Payload, nil
}

// DiscoverPublicAddress returns the peer address the connection
// currently sends to, and false if that address is not a UDP endpoint
// (which should not happen in practice, since this package only dials
// and accepts over UDP). It is not this side's own address as the peer
// observes it; no frame reports that back.
func (c *Conn) DiscoverPublicAddress() (netip.AddrPort, bool) {
	udpAddr, ok := c.inner.DiscoverPublicAddress().(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	return udpAddr.AddrPort(), true
}

// Migrate switches the connection to a new peer address reachable at
// newRemoteAddr, validating the new path before adopting it. It returns
// once the path challenge is sent; the address is adopted when the
// matching response arrives from it.
func (c *Conn) Migrate(newRemoteAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", newRemoteAddr)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := c.inner.Migrate(addr); err != nil {
		return WrapError(KindPathValidationFailed, err)
	}
	return nil
}

// GenerateSessionTicket issues an opaque 0-RTT resumption ticket for
// this connection. Only connections accepted by a Server can issue
// tickets; a client-dialed Conn returns an error.
func (c *Conn) GenerateSessionTicket() (*Ticket, error) {
	if c.ticketStore == nil {
		return nil, NewError(KindProtocolViolation, "only server-accepted connections can issue session tickets")
	}
	opaque, err := c.inner.GenerateSessionTicket(c.ticketStore)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Ticket{Opaque: opaque}, nil
}

// Close begins a graceful shutdown, carrying reason and an optional
// human-readable message to the peer's CLOSE frame.
func (c *Conn) Close(reason CloseReason, message string) error {
	payload, err := cbor.Marshal(closePayload{Reason: reason, Message: message})
	if err != nil {
		return trace.Wrap(err)
	}
	return c.inner.CloseWithPayload(payload)
}

// PeerCloseReason decodes the reason and message the peer's CLOSE frame
// carried, if the connection was closed by the peer. ok is false if the
// connection is still open or was closed locally without ever learning
// of a peer-initiated close.
func (c *Conn) PeerCloseReason() (reason CloseReason, message string, ok bool) {
	raw := c.inner.PeerCloseInfo()
	if len(raw) == 0 {
		return 0, "", false
	}
	var p closePayload
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return 0, "", false
	}
	return p.Reason, p.Message, true
}

// State reports the connection's current lifecycle state as a string,
// for diagnostics and logging.
func (c *Conn) State() string {
	return c.inner.State().String()
}
