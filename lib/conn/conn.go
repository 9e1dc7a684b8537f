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
	"sync"
	"sync/atomic"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/jetstreamproto/jsp/lib/congestion"
	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/pathval"
	"github.com/jetstreamproto/jsp/lib/ratelimit"
	"github.com/jetstreamproto/jsp/lib/reliability"
	"github.com/jetstreamproto/jsp/lib/replay"
	"github.com/jetstreamproto/jsp/lib/stream"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// AckCoalesceInterval is the tick period of the timer loop's
// retransmission, TTL and path-validation checks. Acks are not flushed
// on a timer: pending acks ride on the next outbound datagram, however
// long it takes for one to be sent.
const AckCoalesceInterval = 25 * time.Millisecond

// HeartbeatInterval is how often an idle connection sends a heartbeat
// to keep NAT bindings alive and let the peer detect a dead path.
const HeartbeatInterval = 5 * time.Second

// IdleTimeout is how long a connection waits without receiving any
// frame before it fails with KindIdleTimeout.
const IdleTimeout = 30 * time.Second

// Socket is the minimal packet transport a Conn needs; *net.UDPConn
// satisfies it.
type Socket interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	Close() error
}

// Delivery is the inbound payload handed to the application for one
// stream.
type Delivery struct {
	StreamID uint32
	Payload  []byte
}

// Options configures a Conn. It is populated by the root package's
// Config before construction, kept separate here so this package does
// not import the root package (which imports conn) and create a cycle.
type Options struct {
	Socket      Socket
	RemoteAddr  net.Addr
	IsClient    bool
	Codec       wire.Codec
	Clock       clockwork.Clock
	RateLimits  ratelimit.Limits
	MaxDatagram int

	// InitialCWND seeds the congestion controller's starting window, in
	// datagrams. <= 0 uses the controller's own default.
	InitialCWND int

	// MinRTO floors the reliability engine's retransmission timer. <= 0
	// uses the engine's own default.
	MinRTO time.Duration

	// ReorderBudget caps how many out-of-order frames a single stream
	// buffers before evicting its lowest-sequence entry. <= 0 uses the
	// stream package's own default.
	ReorderBudget int

	// ReplayWindowSize is how many trailing sequence numbers the
	// anti-replay bitmap tracks. <= 0 uses the replay package's own
	// default.
	ReplayWindowSize int

	// MaxStreams bounds how many streams OpenStream will allocate,
	// including the control stream. <= 0 means unlimited.
	MaxStreams int

	// SessionTimeout is the absolute idle ceiling: a connection that
	// receives nothing for this long is closed regardless of the
	// heartbeat miss count below. <= 0 uses IdleTimeout.
	SessionTimeout time.Duration

	// HeartbeatInterval is how often an established connection sends a
	// heartbeat. <= 0 uses HeartbeatInterval (the package constant).
	HeartbeatInterval time.Duration

	// HeartbeatTimeoutCount is how many consecutive heartbeat intervals
	// may elapse with no inbound frame before the connection is
	// declared lost. <= 0 defaults to 3.
	HeartbeatTimeoutCount int

	// PathValidationTimeout bounds how long a path validation challenge
	// waits for its response. <= 0 uses pathval.DefaultDeadline.
	PathValidationTimeout time.Duration

	// Accept0RTTBeforeLiveness, when true, delivers 0-RTT data to the
	// application as soon as it is decrypted. When false (the secure
	// default), 0-RTT data is buffered and withheld until the first
	// authenticated frame that is NOT itself 0-RTT arrives from the
	// peer, proving the peer is live at the address it claims.
	Accept0RTTBeforeLiveness bool

	// EnableCompression flate-compresses DATA frame payloads before
	// sealing. It does not change the wire header.
	EnableCompression bool
}

// Conn is one established connection: its state machine, its crypto
// context, and the per-connection engines that implement reliability,
// congestion control, replay protection, path validation, and rate
// limiting.
type Conn struct {
	opts Options

	mu         sync.Mutex
	state      State
	remoteAddr net.Addr
	connID     wire.ConnectionID

	crypto  *cryptoctx.Context
	streams *stream.Table

	reliability *reliability.Engine
	congestion  *congestion.Controller
	replayIn    *replay.Window
	pathval     *pathval.Validator
	limiter     *ratelimit.Limiter
	acks        *ackTracker

	nonceCounter uint64
	lastRecvAt   time.Time

	lastHeartbeatSentAt time.Time
	missedHeartbeats    int
	pendingMigration    net.Addr

	livenessConfirmed bool
	pendingZeroRTT    []Delivery
	peerCloseInfo     []byte
	resumptionSecret  [cryptoctx.ResumptionSecretSize]byte

	inbox  chan Delivery
	outbox chan wire.SealedFrame

	eg     *errgroup.Group
	cancel context.CancelFunc
	closed chan struct{}
}

// New constructs a Conn in StateInit. Callers complete the handshake by
// calling HandshakeAsClient or HandshakeAsServer before using it.
func New(opts Options) *Conn {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = IdleTimeout
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = HeartbeatInterval
	}
	if opts.HeartbeatTimeoutCount <= 0 {
		opts.HeartbeatTimeoutCount = 3
	}
	c := &Conn{
		opts:              opts,
		state:             StateInit,
		remoteAddr:        opts.RemoteAddr,
		streams:           stream.NewTable(opts.MaxStreams, opts.ReorderBudget),
		reliability:       reliability.New(opts.Clock, opts.MinRTO),
		congestion:        congestion.New(opts.InitialCWND),
		replayIn:          replay.New(opts.ReplayWindowSize),
		pathval:           pathval.New(opts.Clock, opts.PathValidationTimeout),
		limiter:           ratelimit.New(opts.Clock, opts.RateLimits),
		acks:              newAckTracker(),
		livenessConfirmed: opts.Accept0RTTBeforeLiveness,
		inbox:             make(chan Delivery, 256),
		outbox:            make(chan wire.SealedFrame, 256),
		closed:            make(chan struct{}),
	}
	return c
}

func (c *Conn) setState(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.state.transitionTo(next); err != nil {
		return err
	}
	c.state = next
	return nil
}

// State reports the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the connection's id, valid once the handshake
// has completed.
func (c *Conn) ConnectionID() wire.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// CompleteHandshake installs the derived crypto context and connection
// id, switches to the encoding negotiated during the handshake, and
// moves the state machine to Established, then starts the datagram I/O
// loop. Called by the client/server handshake drivers in handshake.go
// once the key exchange has finished. The Hello flight itself is always
// framed with the bootstrap codec passed to New, since the negotiated
// encoding is communicated as content inside that flight and so cannot
// also be used to frame it.
func (c *Conn) CompleteHandshake(parent context.Context, keys *cryptoctx.Keys, connID wire.ConnectionID, encoding wire.Encoding) error {
	codec, err := wire.CodecFor(encoding)
	if err != nil {
		return trace.Wrap(err)
	}

	c.mu.Lock()
	c.crypto = cryptoctx.NewContext(keys, c.opts.IsClient)
	c.connID = connID
	c.lastRecvAt = c.opts.Clock.Now()
	c.resumptionSecret = keys.ResumptionSecret
	c.opts.Codec = codec
	c.mu.Unlock()

	if err := c.setState(StateEstablished); err != nil {
		return trace.Wrap(err)
	}

	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	c.eg = eg

	eg.Go(func() error { return c.readLoop(egCtx) })
	eg.Go(func() error { return c.writeLoop(egCtx) })
	eg.Go(func() error { return c.timerLoop(egCtx) })
	return nil
}

// nextNonce returns the next value to use for both the AEAD nonce and
// the connection-global packet number used in ACK bookkeeping.
func (c *Conn) nextNonce() uint64 {
	return atomic.AddUint64(&c.nonceCounter, 1) - 1
}

// sealFrame builds and seals one frame for streamID under delivery,
// consuming one stream sequence number and one connection-global nonce.
// Any piggybacked acks must be passed in up front: the header bytes used
// as the AEAD associated data have to match, byte for byte, what the
// receiver reconstructs from the header it decodes off the wire, so the
// header cannot be mutated after sealing.
func (c *Conn) sealFrame(s *stream.Stream, msgType wire.MsgType, delivery wire.DeliveryMode, payload []byte, acks []wire.AckRange) (wire.SealedFrame, error) {
	c.mu.Lock()
	connID := c.connID
	cryptoCtx := c.crypto
	c.mu.Unlock()

	header := &wire.Header{
		StreamID:     s.ID,
		Type:         msgType,
		Sequence:     s.NextSendSequence(),
		Timestamp:    uint64(c.opts.Clock.Now().UnixMilli()),
		Nonce:        c.nextNonce(),
		Delivery:     delivery,
		Acks:         acks,
		PayloadLen:   uint32(len(payload) + cryptoCtx.Overhead()),
		ConnectionID: uint64(connID),
		HasConnID:    !connID.IsZero(),
	}

	adBytes, err := c.opts.Codec.EncodeHeader(header)
	if err != nil {
		return wire.SealedFrame{}, trace.Wrap(err)
	}
	ciphertext := cryptoCtx.Seal(header.Nonce, adBytes, payload)
	return wire.SealedFrame{Header: header, Ciphertext: ciphertext}, nil
}

// SendOnStream seals payload for delivery on the given stream and
// queues it for transmission, recording it with the reliability engine
// if its delivery mode requires acknowledgment.
func (c *Conn) SendOnStream(streamID uint32, payload []byte) error {
	s, ok := c.streams.Get(streamID)
	if !ok {
		return trace.NotFound("stream %d not open", streamID)
	}

	if !c.limiter.Allow(len(payload)) {
		return trace.LimitExceeded("rate limit exceeded")
	}

	if c.opts.EnableCompression {
		compressed, err := compressPayload(payload)
		if err != nil {
			return trace.Wrap(err)
		}
		payload = compressed
	}

	c.mu.Lock()
	overhead := 0
	if c.crypto != nil {
		overhead = c.crypto.Overhead()
	}
	c.mu.Unlock()
	if err := c.congestion.CanSend(len(payload) + overhead); err != nil {
		return trace.Wrap(err)
	}

	frame, err := c.sealFrame(s, wire.MsgData, s.Delivery, payload, nil)
	if err != nil {
		return trace.Wrap(err)
	}

	c.congestion.OnSend(len(frame.Ciphertext))
	if s.Delivery.RequiresRetransmit() {
		c.reliability.RecordSent(frame.Header.Nonce, s.ID, s.Delivery, frame)
	}

	select {
	case c.outbox <- frame:
		return nil
	default:
		return trace.BadParameter("outbound queue full")
	}
}

// OpenStream opens a new application stream under the given delivery
// mode and scheduling priority, and returns its id. Priority only
// affects the order in which the write loop coalesces frames from
// multiple streams into one outbound datagram; it never reorders
// frames within a single stream.
func (c *Conn) OpenStream(delivery wire.DeliveryMode, priority uint8) (uint32, error) {
	s, err := c.streams.Open(delivery, priority)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return s.ID, nil
}

// CloseStream closes the local half of streamID.
func (c *Conn) CloseStream(streamID uint32) error {
	return c.streams.Close(streamID)
}

// Recv returns the next inbound application payload, blocking until one
// arrives, the context is canceled, or the connection closes.
func (c *Conn) Recv(ctx context.Context) (Delivery, error) {
	select {
	case d, ok := <-c.inbox:
		if !ok {
			return Delivery{}, trace.ConnectionProblem(nil, "connection closed")
		}
		return d, nil
	case <-ctx.Done():
		return Delivery{}, trace.Wrap(ctx.Err())
	case <-c.closed:
		return Delivery{}, trace.ConnectionProblem(nil, "connection closed")
	}
}

// ResumptionSecret returns the secret derived alongside this session's
// AEAD keys, valid once the handshake has completed. A server uses it
// to seal a 0-RTT ticket for this connection via GenerateSessionTicket.
func (c *Conn) ResumptionSecret() [cryptoctx.ResumptionSecretSize]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumptionSecret
}

// PeerCloseInfo returns the payload the peer's CLOSE frame carried, if
// the connection was closed by the peer rather than locally.
func (c *Conn) PeerCloseInfo() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerCloseInfo
}

// Done returns a channel that closes once the connection has fully
// shut down, for callers that need to deregister it from a session
// table without polling State.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// RemoteAddr returns the address the connection currently believes its
// peer is reachable at.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// Close begins a graceful shutdown with no close payload. See
// CloseWithPayload.
func (c *Conn) Close() error {
	return c.CloseWithPayload(nil)
}

// CloseWithPayload begins a graceful shutdown: it sends a CLOSE control
// frame carrying payload (an application-defined reason/message blob,
// opaque to this package), transitions through Closing and Draining,
// and tears down the I/O loop once draining completes.
func (c *Conn) CloseWithPayload(payload []byte) error {
	if err := c.setState(StateClosing); err != nil {
		// Already closing or closed; treat as a no-op rather than an
		// error so callers can Close defensively.
		return nil
	}

	controlStream, _ := c.streams.Get(stream.ControlStreamID)
	frame, err := c.sealFrame(controlStream, wire.MsgClose, wire.NewReliable(), payload, nil)
	if err == nil {
		select {
		case c.outbox <- frame:
		default:
		}
	}

	return c.shutdown()
}

func (c *Conn) shutdown() error {
	_ = c.setState(StateDraining)
	if c.cancel != nil {
		c.cancel()
	}
	var waitErr error
	if c.eg != nil {
		waitErr = c.eg.Wait()
	}
	_ = c.setState(StateClosed)
	close(c.closed)
	if err := c.opts.Socket.Close(); err != nil && waitErr == nil {
		waitErr = err
	}
	return waitErr
}
