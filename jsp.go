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

// Package jsp implements the JetStream transport protocol: a
// post-quantum-hybrid encrypted, multi-stream, congestion-controlled
// transport running over a single UDP socket. It exposes a Dial/Listen
// API in the shape of net.Conn/net.Listener, generalized for mixed
// per-stream delivery guarantees.
package jsp

import (
	"context"
	"net"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/jetstreamproto/jsp/lib/conn"
	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/ratelimit"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// CloseReason classifies why a connection was closed, carried opaquely
// in the CLOSE frame payload so the peer can distinguish a normal
// shutdown from an application-level failure.
type CloseReason uint8

const (
	ReasonNormal CloseReason = iota
	ReasonApplicationError
	ReasonProtocolError
	ReasonIdleTimeout
)

// Ticket is an opaque 0-RTT resumption credential issued by a server.
// Its contents are never inspected by the client; it is presented back
// verbatim on a future Dial, which carries it in the ClientHello. The
// server does not redeem it there, so that Dial still runs the full
// handshake.
type Ticket struct {
	Opaque []byte
}

func buildConnOptions(cfg Config, socket conn.Socket, remoteAddr net.Addr, isClient bool, clock clockwork.Clock) (conn.Options, error) {
	if err := cfg.Validate(); err != nil {
		return conn.Options{}, trace.Wrap(err)
	}
	codec, err := wire.CodecFor(wire.EncodingSelfDescribing)
	if err != nil {
		return conn.Options{}, trace.Wrap(err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return conn.Options{
		Socket:                   socket,
		RemoteAddr:               remoteAddr,
		IsClient:                 isClient,
		Codec:                    codec,
		Clock:                    clock,
		RateLimits:               ratelimit.Limits{MessagesPerSecond: cfg.RateLimitMessages, MessageBurst: int(cfg.RateLimitMessages) * 2, BytesPerSecond: cfg.RateLimitBytes, ByteBurst: int(cfg.RateLimitBytes) * 2},
		InitialCWND:              cfg.InitialCWND,
		MinRTO:                   cfg.MinRTO,
		ReorderBudget:            cfg.ReorderBudget,
		ReplayWindowSize:         cfg.ReplayWindowSize,
		MaxStreams:               cfg.MaxStreams,
		SessionTimeout:           cfg.SessionTimeout,
		HeartbeatInterval:        cfg.HeartbeatInterval,
		HeartbeatTimeoutCount:    cfg.HeartbeatTimeoutCount,
		PathValidationTimeout:    cfg.PathValidationTimeout,
		Accept0RTTBeforeLiveness: cfg.Accept0RTTBeforeLiveness,
		EnableCompression:        cfg.EnableCompression,
	}, nil
}

// Dial opens a new connection to addr, performing the full handshake
// before returning. A non-nil resumeTicket is carried in the
// ClientHello, but the server does not redeem it, so the handshake is
// the same full key exchange either way and no 0-RTT data is sent.
func Dial(ctx context.Context, addr string, cfg Config, resumeTicket *Ticket) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	localAddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		localAddr = &net.UDPAddr{}
	}
	socket, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	opts, err := buildConnOptions(cfg, socket, remoteAddr, true, clockwork.NewRealClock())
	if err != nil {
		socket.Close()
		return nil, trace.Wrap(err)
	}

	inner := conn.New(opts)
	var ticketBytes []byte
	if resumeTicket != nil {
		ticketBytes = resumeTicket.Opaque
	}
	if err := inner.HandshakeAsClient(ctx, cryptoctx.DefaultSuitePreference(), []wire.Encoding{wire.EncodingSelfDescribing}, ticketBytes); err != nil {
		socket.Close()
		return nil, WrapError(KindHandshakeFailed, err)
	}

	return &Conn{inner: inner}, nil
}
