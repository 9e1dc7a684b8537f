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
	"net"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/jetstreamproto/jsp/lib/cryptoctx"
	"github.com/jetstreamproto/jsp/lib/wire"
)

func dialAndAccept(t *testing.T, srv *Server, cfg Config) (client, server *Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientErrCh := make(chan error, 1)
	var c *Conn
	go func() {
		var err error
		c, err = Dial(ctx, srv.Addr().String(), cfg, nil)
		clientErrCh <- err
	}()

	s, err := srv.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, <-clientErrCh)
	return c, s
}

// TestReliableEcho covers the reliable, single-round-trip happy path:
// a client opens a reliable stream, sends one payload, and the server
// echoes it back on the same stream.
func TestReliableEcho(t *testing.T) {
	srv, err := Listen(NewConfig(WithBindAddr("127.0.0.1:0")))
	require.NoError(t, err)
	defer srv.Close()

	client, server := dialAndAccept(t, srv, NewConfig())
	defer client.Close(ReasonNormal, "")
	defer server.Close(ReasonNormal, "")

	streamID, err := client.OpenStream(0, wire.NewReliable())
	require.NoError(t, err)
	require.NoError(t, client.SendOnStream(streamID, []byte("ping")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	recvID, payload, err := server.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, streamID, recvID)
	require.Equal(t, []byte("ping"), payload)

	require.NoError(t, server.SendOnStream(recvID, payload))
	echoID, echoPayload, err := client.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, streamID, echoID)
	require.Equal(t, []byte("ping"), echoPayload)
}

// TestReplayedClientHelloRejected resends a captured ClientHello
// datagram verbatim once its connection is already established. The
// hello cache recognizes the repeated client_random and the server
// refuses to answer the replay; the original connection is unaffected.
func TestReplayedClientHelloRejected(t *testing.T) {
	srv, err := Listen(NewConfig(WithBindAddr("127.0.0.1:0")))
	require.NoError(t, err)
	defer srv.Close()

	sock, err := net.DialUDP("udp", nil, srv.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sock.Close()

	codec, err := wire.CodecFor(wire.EncodingSelfDescribing)
	require.NoError(t, err)
	clientHello, _, err := cryptoctx.GenerateClientHello(cryptoctx.DefaultSuitePreference(), []wire.Encoding{wire.EncodingSelfDescribing}, nil)
	require.NoError(t, err)
	body, err := cbor.Marshal(clientHello)
	require.NoError(t, err)
	header := &wire.Header{Type: wire.MsgHandshake, Delivery: wire.NewReliable(), PayloadLen: uint32(len(body))}
	dgram, err := wire.EncodeDatagram(codec, []wire.SealedFrame{{Header: header, Ciphertext: body}})
	require.NoError(t, err)

	_, err = sock.Write(dgram)
	require.NoError(t, err)

	buf := make([]byte, 64*1024)
	require.NoError(t, sock.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := sock.Read(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	established, err := srv.Accept(ctx)
	require.NoError(t, err)
	require.Equal(t, "established", established.State())

	// Give the accept goroutine time to deregister the handshake-phase
	// address entry so the resend is treated as a fresh hello attempt
	// rather than routed to the now-established connection.
	require.Eventually(t, func() bool {
		_, err := sock.Write(dgram)
		if err != nil {
			return false
		}
		require.NoError(t, sock.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
		_, readErr := sock.Read(buf)
		return readErr != nil
	}, 2*time.Second, 100*time.Millisecond)

	require.Equal(t, "established", established.State())
}

// TestMigrateRevalidatesPath exercises the root Conn.Migrate wrapper,
// confirming it sends its path challenge without error and without
// disturbing the stream a connection was established on.
func TestMigrateRevalidatesPath(t *testing.T) {
	srv, err := Listen(NewConfig(WithBindAddr("127.0.0.1:0")))
	require.NoError(t, err)
	defer srv.Close()

	client, server := dialAndAccept(t, srv, NewConfig())
	defer client.Close(ReasonNormal, "")
	defer server.Close(ReasonNormal, "")

	streamID, err := client.OpenStream(0, wire.NewReliable())
	require.NoError(t, err)
	require.NoError(t, client.SendOnStream(streamID, []byte("before")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, beforePayload, err := server.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("before"), beforePayload)

	require.NoError(t, client.Migrate(srv.Addr().String()))

	require.NoError(t, client.SendOnStream(streamID, []byte("after")))
	_, afterPayload, err := server.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("after"), afterPayload)
}

// TestRateLimitRejectsExcessSends drives far more sends than the
// configured per-connection message budget allows within a short
// window; at least one is rejected with KindRateLimited, and not every
// send is accepted.
func TestRateLimitRejectsExcessSends(t *testing.T) {
	srv, err := Listen(NewConfig(WithBindAddr("127.0.0.1:0")))
	require.NoError(t, err)
	defer srv.Close()

	cfg := NewConfig(WithRateLimits(10, 1<<20))
	client, server := dialAndAccept(t, srv, cfg)
	defer client.Close(ReasonNormal, "")
	defer server.Close(ReasonNormal, "")

	streamID, err := client.OpenStream(0, wire.NewBestEffort())
	require.NoError(t, err)

	var accepted, limited int
	for i := 0; i < 150; i++ {
		err := client.SendOnStream(streamID, []byte("x"))
		if err == nil {
			accepted++
			continue
		}
		if kind, ok := KindOf(err); ok && kind == KindRateLimited {
			limited++
		}
	}

	require.Greater(t, limited, 0, "expected at least one send to be rate limited")
	require.Less(t, accepted, 150, "expected not every send to be accepted")
}
