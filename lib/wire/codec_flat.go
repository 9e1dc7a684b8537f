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

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/gravitational/trace"
)

// flatCodec implements Codec on top of the hand-authored FlatBuffers
// accessors in flat_generated.go. Like cborCodec it is length-prefixed
// so coalesced frames can be split without relying on the inner
// encoding to self-terminate.
type flatCodec struct{}

func (flatCodec) Encoding() Encoding { return EncodingZeroCopy }

func (flatCodec) EncodeHeader(h *Header) ([]byte, error) {
	h.setFlags()
	b := flatbuffers.NewBuilder(128)

	var acksOff flatbuffers.UOffsetT
	if n := len(h.Acks); n > 0 {
		FlatHeaderStartAcksVector(b, n)
		for i := n - 1; i >= 0; i-- {
			CreateFlatAckRange(b, h.Acks[i].Start, h.Acks[i].End)
		}
		acksOff = b.EndVector(n)
	}

	FlatHeaderStart(b)
	FlatHeaderAddStreamId(b, h.StreamID)
	FlatHeaderAddMsgType(b, uint8(h.Type))
	FlatHeaderAddFlags(b, h.Flags)
	FlatHeaderAddSequence(b, h.Sequence)
	FlatHeaderAddTimestamp(b, h.Timestamp)
	FlatHeaderAddNonce(b, h.Nonce)
	FlatHeaderAddDelivKind(b, uint8(h.Delivery.Kind))
	FlatHeaderAddDelivTTL(b, h.Delivery.TTLMS)
	if acksOff != 0 {
		FlatHeaderAddAcks(b, acksOff)
	}
	FlatHeaderAddPayloadLen(b, h.PayloadLen)
	if h.HasConnID {
		FlatHeaderAddConnId(b, h.ConnectionID)
	}
	root := FlatHeaderEnd(b)
	b.Finish(root)
	body := b.FinishedBytes()

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

func (flatCodec) DecodeHeader(buf []byte) (*Header, int, error) {
	if len(buf) < 4 {
		return nil, 0, trace.BadParameter("truncated flatbuffers header length prefix")
	}
	n := int(binary.BigEndian.Uint32(buf[:4]))
	if len(buf) < 4+n {
		return nil, 0, trace.BadParameter("truncated flatbuffers header body")
	}
	body := buf[4 : 4+n]
	fh := GetRootAsFlatHeader(body, 0)

	h := &Header{
		StreamID:   fh.StreamId(),
		Type:       MsgType(fh.MsgType()),
		Flags:      fh.Flags(),
		Sequence:   fh.Sequence(),
		Timestamp:  fh.Timestamp(),
		Nonce:      fh.Nonce(),
		Delivery:   DeliveryMode{Kind: DeliveryKind(fh.DelivKind()), TTLMS: fh.DelivTTL()},
		PayloadLen: fh.PayloadLen(),
	}
	if h.Flags&FlagPiggybackedAck != 0 {
		var ar FlatAckRange
		ln := fh.AcksLength()
		h.Acks = make([]AckRange, ln)
		for i := 0; i < ln; i++ {
			fh.Acks(&ar, i)
			h.Acks[i] = AckRange{Start: ar.Start(), End: ar.End()}
		}
	}
	if h.Flags&FlagConnectionID != 0 {
		h.HasConnID = true
		h.ConnectionID = fh.ConnId()
	}
	if h.Flags&FlagZeroRTT != 0 {
		h.IsZeroRTT = true
	}
	return h, 4 + n, nil
}
