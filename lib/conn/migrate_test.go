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
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/ratelimit"
	"github.com/jetstreamproto/jsp/lib/wire"
)

// establishPair drives a full client/server handshake over two loopback
// sockets and returns both established Conns plus the sockets backing
// them, so callers can close them in the right order.
func establishPair(t *testing.T) (client, server *Conn, clientSock, serverSock *net.UDPConn) {
	t.Helper()
	clientSock = listenLoopback(t)
	serverSock = listenLoopback(t)

	clock := clockwork.NewRealClock()
	codec, err := wire.CodecFor(wire.EncodingSelfDescribing)
	require.NoError(t, err)

	clientConn := New(Options{
		Socket:     clientSock,
		RemoteAddr: serverSock.LocalAddr(),
		IsClient:   true,
		Codec:      codec,
		Clock:      clock,
		RateLimits: ratelimit.DefaultLimits(),
	})

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
		defer cancel()
		errCh <- clientConn.HandshakeAsClient(ctx, cryptoctx.DefaultSuitePreference(), []wire.Encoding{wire.EncodingSelfDescribing}, nil)
	}()

	buf := make([]byte, 64*1024)
	serverSock.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, clientAddr, err := serverSock.ReadFrom(buf)
	require.NoError(t, err)

	frames, err := wire.DecodeDatagram(codec, buf[:n])
	require.NoError(t, err)
	require.Len(t, frames, 1)

	connID, err := wire.NewConnectionID()
	require.NoError(t, err)

	serverConn := New(Options{
		Socket:     serverSock,
		RemoteAddr: clientAddr,
		IsClient:   false,
		Codec:      codec,
		Clock:      clock,
		RateLimits: ratelimit.DefaultLimits(),
	})
	serverCtx, serverCancel := context.WithCancel(context.Background())
	t.Cleanup(serverCancel)
	require.NoError(t, serverConn.HandshakeAsServer(serverCtx, frames[0].Ciphertext, []cryptoctx.SuiteID{cryptoctx.SuiteChaCha20Poly1305}, []wire.Encoding{wire.EncodingSelfDescribing}, nil, connID))
	require.NoError(t, <-errCh)

	return clientConn, serverConn, clientSock, serverSock
}

// TestMigrateRevalidatesPath exercises the full PATH_CHALLENGE /
// PATH_RESPONSE round trip: the client issues a challenge against the
// server's current address, the server answers it on its control
// stream, and the client promotes the address once the response
// matches. Messages sent before and after the exchange arrive in order
// on the same stream, since the connection id rather than the address
// is what identifies the stream state on the wire.
func TestMigrateRevalidatesPath(t *testing.T) {
	clientConn, serverConn, clientSock, serverSock := establishPair(t)
	defer clientSock.Close()
	defer serverSock.Close()
	defer clientConn.Close()
	defer serverConn.Close()

	streamID, err := clientConn.OpenStream(wire.NewReliable(), 0)
	require.NoError(t, err)
	require.NoError(t, clientConn.SendOnStream(streamID, []byte("before")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := serverConn.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("before"), d.Payload)

	require.NoError(t, clientConn.Migrate(serverSock.LocalAddr()))
	require.Eventually(t, func() bool {
		return clientConn.RemoteAddr().String() == serverSock.LocalAddr().String()
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, clientConn.SendOnStream(streamID, []byte("after")))
	d, err = serverConn.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("after"), d.Payload)
}

// rewriteFromSocket wraps a live UDP socket and rewrites the observed
// source address of datagrams actually sent by realPeer to fakePeer,
// and redirects outbound datagrams addressed to fakePeer back to
// realPeer. It lets a test simulate a NAT rebind (the peer's packets
// suddenly appear to originate from a new address) without needing the
// peer to actually bind a second socket.
type rewriteFromSocket struct {
	Socket
	realPeer net.Addr
	fakePeer net.Addr
}

func (s *rewriteFromSocket) ReadFrom(b []byte) (int, net.Addr, error) {
	n, from, err := s.Socket.ReadFrom(b)
	if err == nil && from != nil && from.String() == s.realPeer.String() {
		from = s.fakePeer
	}
	return n, from, err
}

func (s *rewriteFromSocket) WriteTo(b []byte, addr net.Addr) (int, error) {
	if addr != nil && addr.String() == s.fakePeer.String() {
		addr = s.realPeer
	}
	return s.Socket.WriteTo(b, addr)
}

// TestPassiveMigrationAdoptsValidatedSourceAddress exercises the
// receiving side of an unannounced path change: a frame that decrypts
// correctly but arrives from an address other than the one on file
// triggers a PATH_CHALLENGE to the new address, and the connection
// adopts it once the matching PATH_RESPONSE comes back.
func TestPassiveMigrationAdoptsValidatedSourceAddress(t *testing.T) {
	clientSock := listenLoopback(t)
	serverSock := listenLoopback(t)
	defer clientSock.Close()
	defer serverSock.Close()

	clock := clockwork.NewRealClock()
	codec, err := wire.CodecFor(wire.EncodingSelfDescribing)
	require.NoError(t, err)

	clientConn := New(Options{
		Socket:     clientSock,
		RemoteAddr: serverSock.LocalAddr(),
		IsClient:   true,
		Codec:      codec,
		Clock:      clock,
		RateLimits: ratelimit.DefaultLimits(),
	})

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
		defer cancel()
		errCh <- clientConn.HandshakeAsClient(ctx, cryptoctx.DefaultSuitePreference(), []wire.Encoding{wire.EncodingSelfDescribing}, nil)
	}()

	buf := make([]byte, 64*1024)
	serverSock.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, clientAddr, err := serverSock.ReadFrom(buf)
	require.NoError(t, err)

	frames, err := wire.DecodeDatagram(codec, buf[:n])
	require.NoError(t, err)
	require.Len(t, frames, 1)

	connID, err := wire.NewConnectionID()
	require.NoError(t, err)

	fakeAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	wrapped := &rewriteFromSocket{Socket: serverSock, realPeer: clientAddr, fakePeer: fakeAddr}

	serverConn := New(Options{
		Socket:     wrapped,
		RemoteAddr: clientAddr,
		IsClient:   false,
		Codec:      codec,
		Clock:      clock,
		RateLimits: ratelimit.DefaultLimits(),
	})
	serverCtx, serverCancel := context.WithCancel(context.Background())
	t.Cleanup(serverCancel)
	require.NoError(t, serverConn.HandshakeAsServer(serverCtx, frames[0].Ciphertext, []cryptoctx.SuiteID{cryptoctx.SuiteChaCha20Poly1305}, []wire.Encoding{wire.EncodingSelfDescribing}, nil, connID))
	require.NoError(t, <-errCh)
	defer clientConn.Close()
	defer serverConn.Close()

	require.Equal(t, clientAddr.String(), serverConn.RemoteAddr().String())

	streamID, err := clientConn.OpenStream(wire.NewReliable(), 0)
	require.NoError(t, err)
	require.NoError(t, clientConn.SendOnStream(streamID, []byte("from new path")))

	require.Eventually(t, func() bool {
		return serverConn.RemoteAddr().String() == fakeAddr.String()
	}, 2*time.Second, 20*time.Millisecond, "server never adopted the validated candidate address")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := serverConn.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("from new path"), d.Payload)
}
