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

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHeader() *Header {
	return &Header{
		StreamID:     7,
		Type:         MsgData,
		Sequence:     42,
		Timestamp:    1738368000000,
		Nonce:        0xdeadbeefcafef00d,
		Delivery:     NewPartiallyReliable(500_000_000),
		Acks:         []AckRange{{Start: 1, End: 5}, {Start: 7, End: 7}},
		PayloadLen:   16,
		ConnectionID: 0x0102030405060708,
		HasConnID:    true,
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	for _, codec := range []Codec{cborCodec{}, flatCodec{}} {
		t.Run(string(codec.Encoding()), func(t *testing.T) {
			h := sampleHeader()
			encoded, err := codec.EncodeHeader(h)
			require.NoError(t, err)

			decoded, n, err := codec.DecodeHeader(encoded)
			require.NoError(t, err)
			require.Equal(t, len(encoded), n)

			require.Equal(t, h.StreamID, decoded.StreamID)
			require.Equal(t, h.Type, decoded.Type)
			require.Equal(t, h.Sequence, decoded.Sequence)
			require.Equal(t, h.Timestamp, decoded.Timestamp)
			require.Equal(t, h.Nonce, decoded.Nonce)
			require.Equal(t, h.Delivery.Kind, decoded.Delivery.Kind)
			require.Equal(t, h.Acks, decoded.Acks)
			require.Equal(t, h.PayloadLen, decoded.PayloadLen)
			require.True(t, decoded.HasConnID)
			require.Equal(t, h.ConnectionID, decoded.ConnectionID)
		})
	}
}

func TestCodecsSemanticEquivalence(t *testing.T) {
	h := sampleHeader()
	cbEnc, err := cborCodec{}.EncodeHeader(h)
	require.NoError(t, err)
	flEnc, err := flatCodec{}.EncodeHeader(h)
	require.NoError(t, err)

	cbDec, _, err := cborCodec{}.DecodeHeader(cbEnc)
	require.NoError(t, err)
	flDec, _, err := flatCodec{}.DecodeHeader(flEnc)
	require.NoError(t, err)

	require.Equal(t, cbDec.StreamID, flDec.StreamID)
	require.Equal(t, cbDec.Sequence, flDec.Sequence)
	require.Equal(t, cbDec.Acks, flDec.Acks)
	require.Equal(t, cbDec.ConnectionID, flDec.ConnectionID)
}

func TestNegotiateEncoding(t *testing.T) {
	got, err := NegotiateEncoding([]Encoding{EncodingZeroCopy, EncodingSelfDescribing}, []Encoding{EncodingSelfDescribing})
	require.NoError(t, err)
	require.Equal(t, EncodingSelfDescribing, got)

	_, err = NegotiateEncoding([]Encoding{"unknown"}, []Encoding{EncodingSelfDescribing, EncodingZeroCopy})
	require.Error(t, err)
}

func TestDatagramCoalescing(t *testing.T) {
	codec := cborCodec{}
	frames := []SealedFrame{
		{Header: &Header{StreamID: 1, Type: MsgData, PayloadLen: 3}, Ciphertext: []byte("abc")},
		{Header: &Header{StreamID: 2, Type: MsgData, PayloadLen: 5}, Ciphertext: []byte("hello")},
	}
	dgram, err := EncodeDatagram(codec, frames)
	require.NoError(t, err)

	decoded, err := DecodeDatagram(codec, dgram)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, uint32(1), decoded[0].Header.StreamID)
	require.Equal(t, []byte("abc"), decoded[0].Ciphertext)
	require.Equal(t, uint32(2), decoded[1].Header.StreamID)
	require.Equal(t, []byte("hello"), decoded[1].Ciphertext)
}

func TestDatagramCoalescingPayloadLenMismatch(t *testing.T) {
	codec := cborCodec{}
	_, err := EncodeDatagram(codec, []SealedFrame{
		{Header: &Header{PayloadLen: 99}, Ciphertext: []byte("short")},
	})
	require.Error(t, err)
}
