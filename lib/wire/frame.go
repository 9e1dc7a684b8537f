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

// SealedFrame pairs a plaintext Header with its already-AEAD-sealed
// payload (ciphertext plus tag). The header travels unencrypted on the
// wire; it is authenticated as AEAD associated data by the crypto layer.
type SealedFrame struct {
	Header     *Header
	Ciphertext []byte
}

// EncodeDatagram serializes one or more SealedFrames back-to-back into a
// single UDP payload: [header][ciphertext][header][ciphertext]... Each
// header's PayloadLen must equal len(Ciphertext) so the reader can find
// the boundary between frames without re-parsing ciphertext.
func EncodeDatagram(codec Codec, frames []SealedFrame) ([]byte, error) {
	var out []byte
	for i := range frames {
		f := &frames[i]
		if f.Header.PayloadLen != uint32(len(f.Ciphertext)) {
			return nil, trace.BadParameter("header payload_len %d does not match ciphertext length %d", f.Header.PayloadLen, len(f.Ciphertext))
		}
		hb, err := codec.EncodeHeader(f.Header)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out = append(out, hb...)
		out = append(out, f.Ciphertext...)
	}
	return out, nil
}

// DecodeDatagram splits a received UDP payload back into its constituent
// SealedFrames. A malformed trailing fragment is reported as an error;
// callers should drop the whole datagram rather than act on a partial
// parse.
func DecodeDatagram(codec Codec, datagram []byte) ([]SealedFrame, error) {
	var frames []SealedFrame
	rest := datagram
	for len(rest) > 0 {
		h, n, err := codec.DecodeHeader(rest)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		rest = rest[n:]
		if uint32(len(rest)) < h.PayloadLen {
			return nil, trace.BadParameter("coalesced datagram truncated: want %d ciphertext bytes, have %d", h.PayloadLen, len(rest))
		}
		ct := rest[:h.PayloadLen]
		rest = rest[h.PayloadLen:]
		frames = append(frames, SealedFrame{Header: h, Ciphertext: ct})
	}
	return frames, nil
}
