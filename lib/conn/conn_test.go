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
	"github.com/jetstreamproto/jsp/lib/stream"
	"github.com/jetstreamproto/jsp/lib/wire"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return sock
}

func TestConnHandshakeAndReliableEcho(t *testing.T) {
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

	// Simulate the server accept loop: read the ClientHello datagram,
	// then hand it to a freshly constructed server-side Conn.
	buf := make([]byte, 64*1024)
	serverSock.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, clientAddr, err := serverSock.ReadFrom(buf)
	require.NoError(t, err)

	frames, err := wire.DecodeDatagram(codec, buf[:n])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, wire.MsgHandshake, frames[0].Header.Type)

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
	defer serverCancel()
	require.NoError(t, serverConn.HandshakeAsServer(serverCtx, frames[0].Ciphertext, []cryptoctx.SuiteID{cryptoctx.SuiteChaCha20Poly1305}, []wire.Encoding{wire.EncodingSelfDescribing}, nil, connID))

	require.NoError(t, <-errCh)
	require.Equal(t, StateEstablished, clientConn.State())
	require.Equal(t, StateEstablished, serverConn.State())
	defer clientConn.Close()
	defer serverConn.Close()

	clientStreamID, err := clientConn.OpenStream(wire.NewReliable(), 0)
	require.NoError(t, err)
	require.NoError(t, clientConn.SendOnStream(clientStreamID, []byte("hello server")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	delivery, err := serverConn.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello server"), delivery.Payload)
}

func TestSortByPriorityOrdersHighestFirst(t *testing.T) {
	c := New(Options{RateLimits: ratelimit.DefaultLimits()})
	low, err := c.streams.Open(wire.NewBestEffort(), 1)
	require.NoError(t, err)
	high, err := c.streams.Open(wire.NewBestEffort(), 9)
	require.NoError(t, err)

	batch := []wire.SealedFrame{
		{Header: &wire.Header{StreamID: low.ID}},
		{Header: &wire.Header{StreamID: high.ID}},
		{Header: &wire.Header{StreamID: stream.ControlStreamID}},
	}
	c.sortByPriority(batch)

	require.Equal(t, high.ID, batch[0].Header.StreamID)
	require.Equal(t, low.ID, batch[1].Header.StreamID)
	require.Equal(t, stream.ControlStreamID, batch[2].Header.StreamID)
}
