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

import "github.com/gravitational/trace"

// Encoding names the two negotiable header encodings.
type Encoding string

const (
	// EncodingSelfDescribing is the CBOR-based encoding: larger on the
	// wire but self-describing and easy to evolve.
	EncodingSelfDescribing Encoding = "cbor"
	// EncodingZeroCopy is the FlatBuffers-based schema encoding: fixed
	// layout, no allocation on decode.
	EncodingZeroCopy Encoding = "flatbuffers"
)

// Codec encodes and decodes a Header to and from its wire representation.
// Both implementations must be semantically equivalent: each one's
// decoding of its own encoding of a Header must yield an identical Header.
type Codec interface {
	Encoding() Encoding
	EncodeHeader(h *Header) ([]byte, error)
	// DecodeHeader parses a header from the front of b and returns the
	// header plus the number of bytes consumed.
	DecodeHeader(b []byte) (*Header, int, error)
}

// NegotiateEncoding picks the wire encoding for a connection. The client
// proposes a preference list in its ClientHello; the server picks the
// first entry of the client's list that the server also supports, or
// fails if there is none.
func NegotiateEncoding(clientPreference []Encoding, serverSupported []Encoding) (Encoding, error) {
	supported := make(map[Encoding]bool, len(serverSupported))
	for _, e := range serverSupported {
		supported[e] = true
	}
	for _, e := range clientPreference {
		if supported[e] {
			return e, nil
		}
	}
	return "", trace.BadParameter("no mutually supported wire encoding")
}

// CodecFor returns the Codec implementation for the given encoding.
func CodecFor(e Encoding) (Codec, error) {
	switch e {
	case EncodingSelfDescribing:
		return cborCodec{}, nil
	case EncodingZeroCopy:
		return flatCodec{}, nil
	default:
		return nil, trace.BadParameter("unknown wire encoding %q", e)
	}
}
