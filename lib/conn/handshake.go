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
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"

	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/stream"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// HandshakeTimeout bounds how long a client waits for a ServerHello
// before giving up; an earlier ctx deadline shortens the wait. The bound
// applies when the socket supports read deadlines (*net.UDPConn does).
const HandshakeTimeout = 5 * time.Second

func encodeHandshakeDatagram(codec wire.Codec, msgType wire.MsgType, connID wire.ConnectionID, body []byte) ([]byte, error) {
	header := &wire.Header{
		Type:         msgType,
		Delivery:     wire.NewReliable(),
		PayloadLen:   uint32(len(body)),
		ConnectionID: uint64(connID),
		HasConnID:    !connID.IsZero(),
	}
	return wire.EncodeDatagram(codec, []wire.SealedFrame{{Header: header, Ciphertext: body}})
}

// HandshakeAsClient drives the full client side of the handshake: it
// sends a ClientHello, waits for the matching ServerHello, derives the
// session keys, and starts the connection's I/O loop.
func (c *Conn) HandshakeAsClient(ctx context.Context, suitePref []cryptoctx.SuiteID, encodingPref []wire.Encoding, resumeTicket []byte) error {
	if err := c.setState(StateHandshaking); err != nil {
		return trace.Wrap(err)
	}

	clientHello, share, err := cryptoctx.GenerateClientHello(suitePref, encodingPref, resumeTicket)
	if err != nil {
		return trace.Wrap(err)
	}
	body, err := cbor.Marshal(clientHello)
	if err != nil {
		return trace.Wrap(err)
	}
	dgram, err := encodeHandshakeDatagram(c.opts.Codec, wire.MsgHandshake, 0, body)
	if err != nil {
		return trace.Wrap(err)
	}
	if _, err := c.opts.Socket.WriteTo(dgram, c.opts.RemoteAddr); err != nil {
		return trace.Wrap(err)
	}

	buf := make([]byte, 64*1024)
	deadliner, canDeadline := c.opts.Socket.(interface{ SetReadDeadline(time.Time) error })
	if canDeadline {
		deadline := time.Now().Add(HandshakeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = deadliner.SetReadDeadline(deadline)
	}
	n, _, err := c.opts.Socket.ReadFrom(buf)
	if canDeadline {
		_ = deadliner.SetReadDeadline(time.Time{})
	}
	if err != nil {
		return trace.Wrap(err)
	}
	frames, err := wire.DecodeDatagram(c.opts.Codec, buf[:n])
	if err != nil || len(frames) == 0 {
		return trace.BadParameter("malformed server hello datagram")
	}
	var serverHello cryptoctx.ServerHello
	if err := cbor.Unmarshal(frames[0].Ciphertext, &serverHello); err != nil {
		return trace.Wrap(err)
	}

	keys, err := cryptoctx.ProcessServerHello(clientHello, share, &serverHello)
	if err != nil {
		return trace.Wrap(err)
	}

	c.mu.Lock()
	c.streams = stream.NewTable(c.opts.MaxStreams, c.opts.ReorderBudget)
	c.mu.Unlock()
	return c.CompleteHandshake(ctx, keys, serverHello.ConnectionID, serverHello.Encoding)
}

// HandshakeAsServer processes a received ClientHello (already decoded
// from its datagram by the accept loop in the root package's server),
// replies with a ServerHello, and starts the connection's I/O loop.
func (c *Conn) HandshakeAsServer(ctx context.Context, clientHelloBody []byte, suiteSupported []cryptoctx.SuiteID, encodingSupported []wire.Encoding, helloCache *cryptoctx.HelloCache, connID wire.ConnectionID) error {
	if err := c.setState(StateHandshaking); err != nil {
		return trace.Wrap(err)
	}

	var clientHello cryptoctx.ClientHello
	if err := cbor.Unmarshal(clientHelloBody, &clientHello); err != nil {
		return trace.Wrap(err)
	}

	if helloCache != nil {
		// ClientHello carries no timestamp, so the server's own clock
		// stands in for it and the cache's drift check never rejects
		// here; replay rejection rests on client_random alone.
		if err := helloCache.CheckAndRemember(clientHello.ClientRandom, c.opts.Clock.Now()); err != nil {
			return trace.Wrap(err)
		}
	}

	serverHello, keys, err := cryptoctx.ProcessClientHello(&clientHello, suiteSupported, encodingSupported, connID)
	if err != nil {
		return trace.Wrap(err)
	}

	body, err := cbor.Marshal(serverHello)
	if err != nil {
		return trace.Wrap(err)
	}
	dgram, err := encodeHandshakeDatagram(c.opts.Codec, wire.MsgHandshake, connID, body)
	if err != nil {
		return trace.Wrap(err)
	}
	if _, err := c.opts.Socket.WriteTo(dgram, c.opts.RemoteAddr); err != nil {
		return trace.Wrap(err)
	}

	return c.CompleteHandshake(ctx, keys, connID, serverHello.Encoding)
}
