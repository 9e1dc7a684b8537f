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
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/jetstreamproto/jsp/lib/conn"
	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/ratelimit"
	"github.com/jetstreamproto/jsp/lib/ticketstore"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// acceptBacklog bounds how many fully-established connections can wait
// in Accept's queue before the server stops admitting new ones.
const acceptBacklog = 64

// demuxSocket is the per-connection view of a Server's one shared UDP
// socket: writes go straight to the wire, and reads drain a channel the
// server's dispatch loop feeds after routing each inbound datagram to
// the right connection by connection id (or, before one is assigned,
// by source address).
type demuxSocket struct {
	shared *net.UDPConn
	rx     chan demuxPacket

	closeOnce sync.Once
	closed    chan struct{}
}

type demuxPacket struct {
	data []byte
	from net.Addr
}

func newDemuxSocket(shared *net.UDPConn) *demuxSocket {
	return &demuxSocket{
		shared: shared,
		rx:     make(chan demuxPacket, 64),
		closed: make(chan struct{}),
	}
}

func (d *demuxSocket) WriteTo(b []byte, addr net.Addr) (int, error) {
	return d.shared.WriteTo(b, addr)
}

func (d *demuxSocket) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case p, ok := <-d.rx:
		if !ok {
			return 0, nil, io.EOF
		}
		return copy(b, p.data), p.from, nil
	case <-d.closed:
		return 0, nil, io.EOF
	}
}

// Close detaches this connection from the shared socket without
// closing it; the socket outlives any single connection.
func (d *demuxSocket) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

func (d *demuxSocket) dispatch(data []byte, from net.Addr) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case d.rx <- demuxPacket{data: cp, from: from}:
	default:
		// The connection's own read loop is not draining fast enough;
		// drop rather than block the server's single dispatch goroutine.
	}
}

// session is everything the accept loop tracks about one connection
// attempt or established connection.
type session struct {
	wrapped *Conn
	demux   *demuxSocket
}

// Server accepts JetStream connections over one shared UDP socket,
// demultiplexing inbound datagrams by connection id once the handshake
// that assigns one has completed, and by source address beforehand.
type Server struct {
	cfg    Config
	socket *net.UDPConn
	clock  clockwork.Clock
	log    *slog.Logger

	globalLimiter *ratelimit.Limiter
	tickets       *ticketstore.Store
	helloCache    *cryptoctx.HelloCache

	mu         sync.RWMutex
	byAddr     map[string]*session
	byConnID   map[wire.ConnectionID]*session

	accepted chan *Conn

	eg     *errgroup.Group
	cancel context.CancelFunc
}

// Listen binds a UDP socket at cfg.BindAddr and starts the accept loop.
// Call Accept to retrieve established connections and Close to shut the
// listener and every connection it has accepted down.
func Listen(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	localAddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	socket, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	clock := clockwork.NewRealClock()
	tickets, err := ticketstore.New(cryptoctx.SuiteChaCha20Poly1305, 4096)
	if err != nil {
		socket.Close()
		return nil, trace.Wrap(err)
	}
	helloCache, err := cryptoctx.NewHelloCache(4096, clock)
	if err != nil {
		socket.Close()
		return nil, trace.Wrap(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	log := slog.Default().With("component", "jsp.server", "addr", socket.LocalAddr().String())

	s := &Server{
		cfg:    cfg,
		socket: socket,
		clock:  clock,
		log:    log,
		globalLimiter: ratelimit.New(clock, ratelimit.Limits{
			MessagesPerSecond: cfg.GlobalRateLimitMessages,
			MessageBurst:      int(cfg.GlobalRateLimitMessages) * 2,
			BytesPerSecond:    cfg.GlobalRateLimitBytes,
			ByteBurst:         int(cfg.GlobalRateLimitBytes) * 2,
		}),
		tickets:    tickets,
		helloCache: helloCache,
		byAddr:     make(map[string]*session),
		byConnID:   make(map[wire.ConnectionID]*session),
		accepted:   make(chan *Conn, acceptBacklog),
		eg:         eg,
		cancel:     cancel,
	}

	log.Info("listening")
	eg.Go(func() error { return s.acceptLoop(egCtx) })
	return s, nil
}

// Accept blocks until a connection completes its handshake, ctx is
// canceled, or the server is closed.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c, ok := <-s.accepted:
		if !ok {
			return nil, trace.ConnectionProblem(nil, "server is closed")
		}
		return c, nil
	case <-ctx.Done():
		return nil, trace.Wrap(ctx.Err())
	}
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.socket.LocalAddr()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	codec, err := wire.CodecFor(wire.EncodingSelfDescribing)
	if err != nil {
		return trace.Wrap(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, from, err := s.socket.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return trace.Wrap(err)
		}
		data := buf[:n]

		frames, err := wire.DecodeDatagram(codec, data)
		if err != nil || len(frames) == 0 {
			continue
		}
		header := frames[0].Header

		if header.HasConnID {
			if sess, ok := s.lookupByConnID(wire.ConnectionID(header.ConnectionID)); ok {
				sess.demux.dispatch(data, from)
			}
			continue
		}

		if header.Type != wire.MsgHandshake {
			continue
		}

		if sess, ok := s.lookupByAddr(from.String()); ok {
			sess.demux.dispatch(data, from)
			continue
		}

		if !s.globalLimiter.Allow(n) {
			continue
		}
		s.acceptHandshake(ctx, frames[0].Ciphertext, from)
	}
}

func (s *Server) acceptHandshake(ctx context.Context, clientHelloBody []byte, from net.Addr) {
	connID, err := wire.NewConnectionID()
	if err != nil {
		return
	}

	demux := newDemuxSocket(s.socket)
	opts, err := buildConnOptions(s.cfg, demux, from, false, s.clock)
	if err != nil {
		return
	}
	inner := conn.New(opts)
	sess := &session{demux: demux}

	s.registerByAddr(from.String(), sess)

	s.eg.Go(func() error {
		defer s.unregisterByAddr(from.String())

		suites := []cryptoctx.SuiteID{cryptoctx.SuiteChaCha20Poly1305, cryptoctx.SuiteAES256GCM}
		// Only self-describing is offered: acceptLoop's dispatch step
		// decodes every inbound datagram's header with a fixed codec to
		// learn its connection id before routing it to this connection's
		// own demux socket, and FlatBuffers headers aren't safely
		// distinguishable from CBOR ones without risking a decode panic
		// on attacker-controlled bytes. lib/wire's zero-copy codec stays
		// fully implemented and covered by its own tests for the day the
		// dispatch step gains a codec-agnostic connection id peek.
		encodings := []wire.Encoding{wire.EncodingSelfDescribing}
		if err := inner.HandshakeAsServer(ctx, clientHelloBody, suites, encodings, s.helloCache, connID); err != nil {
			s.log.Warn("handshake failed", "peer", from.String(), "err", err)
			demux.Close()
			return nil
		}
		s.log.Info("connection established", "peer", from.String(), "conn_id", connID.String())

		sess.wrapped = &Conn{inner: inner, ticketStore: s.tickets}
		s.registerByConnID(connID, sess)

		// This connection's own lifetime is independent of the server's:
		// Close does not force established connections shut, so this
		// cleanup watcher must not be tracked by the server's errgroup or
		// Close would block on every connection the application is still
		// free to keep open.
		go func() {
			<-inner.Done()
			s.unregisterByConnID(connID)
			s.log.Info("connection closed", "conn_id", connID.String())
		}()

		select {
		case s.accepted <- sess.wrapped:
		case <-ctx.Done():
		}
		return nil
	})
}

func (s *Server) lookupByAddr(key string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byAddr[key]
	return sess, ok
}

func (s *Server) registerByAddr(key string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddr[key] = sess
}

func (s *Server) unregisterByAddr(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAddr, key)
}

func (s *Server) lookupByConnID(id wire.ConnectionID) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byConnID[id]
	return sess, ok
}

func (s *Server) registerByConnID(id wire.ConnectionID, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConnID[id] = sess
}

func (s *Server) unregisterByConnID(id wire.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConnID, id)
}

// Close stops accepting new connections and closes the shared socket.
// Already-established connections are not force-closed; callers that
// want a full shutdown should Close each accepted Conn first.
func (s *Server) Close() error {
	s.log.Info("shutting down")
	s.cancel()
	err := s.eg.Wait()
	if closeErr := s.socket.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	close(s.accepted)
	return err
}
