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
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"
)

// cborHeader is the self-describing wire shape of Header. Field keys are
// kept short since CBOR repeats map keys on every frame.
type cborHeader struct {
	StreamID  uint32     `cbor:"1,keyasint"`
	Type      uint8      `cbor:"2,keyasint"`
	Flags     uint8      `cbor:"3,keyasint"`
	Sequence  uint64     `cbor:"4,keyasint"`
	Timestamp uint64     `cbor:"5,keyasint"`
	Nonce     uint64     `cbor:"6,keyasint"`
	DelivKind uint8      `cbor:"7,keyasint"`
	DelivTTL  uint32     `cbor:"8,keyasint,omitempty"`
	Acks      []AckRange `cbor:"9,keyasint,omitempty"`
	PayloadLn uint32     `cbor:"10,keyasint"`
	ConnID    uint64     `cbor:"11,keyasint,omitempty"`
}

// cborCodec implements Codec using a length-prefixed CBOR map. The
// 4-byte big-endian length prefix lets DecodeHeader know where the
// header ends without needing CBOR to self-terminate inside a
// coalesced datagram.
type cborCodec struct{}

var cborEncMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

func (cborCodec) Encoding() Encoding { return EncodingSelfDescribing }

func (cborCodec) EncodeHeader(h *Header) ([]byte, error) {
	h.setFlags()
	wh := cborHeader{
		StreamID:  h.StreamID,
		Type:      uint8(h.Type),
		Flags:     h.Flags,
		Sequence:  h.Sequence,
		Timestamp: h.Timestamp,
		Nonce:     h.Nonce,
		DelivKind: uint8(h.Delivery.Kind),
		DelivTTL:  h.Delivery.TTLMS,
		Acks:      h.Acks,
		PayloadLn: h.PayloadLen,
	}
	if h.HasConnID {
		wh.ConnID = h.ConnectionID
	}
	body, err := cborEncMode.Marshal(wh)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

func (cborCodec) DecodeHeader(b []byte) (*Header, int, error) {
	if len(b) < 4 {
		return nil, 0, trace.BadParameter("truncated cbor header length prefix")
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	if len(b) < 4+n {
		return nil, 0, trace.BadParameter("truncated cbor header body")
	}
	var wh cborHeader
	if err := cbor.Unmarshal(b[4:4+n], &wh); err != nil {
		return nil, 0, trace.Wrap(err)
	}
	h := &Header{
		StreamID:   wh.StreamID,
		Type:       MsgType(wh.Type),
		Flags:      wh.Flags,
		Sequence:   wh.Sequence,
		Timestamp:  wh.Timestamp,
		Nonce:      wh.Nonce,
		Delivery:   DeliveryMode{Kind: DeliveryKind(wh.DelivKind), TTLMS: wh.DelivTTL},
		Acks:       wh.Acks,
		PayloadLen: wh.PayloadLn,
	}
	if h.Flags&FlagConnectionID != 0 {
		h.HasConnID = true
		h.ConnectionID = wh.ConnID
	}
	if h.Flags&FlagZeroRTT != 0 {
		h.IsZeroRTT = true
	}
	return h, 4 + n, nil
}
