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

// Code generated against the following FlatBuffers schema, reproduced
// here for reference since flatc is not run as part of this build:
//
//   struct FlatAckRange {
//     start:uint64;
//     end:uint64;
//   }
//
//   table FlatHeader {
//     stream_id:uint32;
//     msg_type:uint8;
//     flags:uint8;
//     sequence:uint64;
//     timestamp:uint64;
//     nonce:uint64;
//     deliv_kind:uint8;
//     deliv_ttl:uint32;
//     acks:[FlatAckRange];
//     payload_len:uint32;
//     conn_id:uint64;
//   }
//
// Field order below matches declaration order, which fixes the vtable
// slot numbering flatc would have assigned.

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// FlatAckRange is a fixed-size (16 byte) struct, laid out inline inside
// vectors with no indirection, matching flatc's struct codegen.
type FlatAckRange struct {
	_tab flatbuffers.Struct
}

func (rcv *FlatAckRange) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *FlatAckRange) Start() uint64 {
	return rcv._tab.GetUint64(rcv._tab.Pos + 0)
}

func (rcv *FlatAckRange) End() uint64 {
	return rcv._tab.GetUint64(rcv._tab.Pos + 8)
}

// CreateFlatAckRange writes a FlatAckRange struct in place; structs are
// always built depth-first immediately before the vector that holds
// them, per flatbuffers builder rules.
func CreateFlatAckRange(builder *flatbuffers.Builder, start, end uint64) flatbuffers.UOffsetT {
	builder.Prep(8, 16)
	builder.PrependUint64(end)
	builder.PrependUint64(start)
	return builder.Offset()
}

const (
	flatHeaderStreamID   = 4
	flatHeaderMsgType    = 6
	flatHeaderFlags      = 8
	flatHeaderSequence   = 10
	flatHeaderTimestamp  = 12
	flatHeaderNonce      = 14
	flatHeaderDelivKind  = 16
	flatHeaderDelivTTL   = 18
	flatHeaderAcks       = 20
	flatHeaderPayloadLen = 22
	flatHeaderConnID     = 24
)

// FlatHeader is the zero-copy table view of an on-wire Header.
type FlatHeader struct {
	_tab flatbuffers.Table
}

func GetRootAsFlatHeader(buf []byte, offset flatbuffers.UOffsetT) *FlatHeader {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &FlatHeader{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *FlatHeader) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *FlatHeader) Table() flatbuffers.Table { return rcv._tab }

func (rcv *FlatHeader) StreamId() uint32 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderStreamID)); o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) MsgType() uint8 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderMsgType)); o != 0 {
		return rcv._tab.GetUint8(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) Flags() uint8 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderFlags)); o != 0 {
		return rcv._tab.GetUint8(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) Sequence() uint64 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderSequence)); o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) Timestamp() uint64 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderTimestamp)); o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) Nonce() uint64 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderNonce)); o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) DelivKind() uint8 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderDelivKind)); o != 0 {
		return rcv._tab.GetUint8(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) DelivTTL() uint32 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderDelivTTL)); o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) AcksLength() int {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderAcks)); o != 0 {
		return rcv._tab.VectorLen(o)
	}
	return 0
}

func (rcv *FlatHeader) Acks(obj *FlatAckRange, j int) bool {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderAcks))
	if o == 0 {
		return false
	}
	x := rcv._tab.Vector(o)
	x += flatbuffers.UOffsetT(j) * 16
	obj.Init(rcv._tab.Bytes, x)
	return true
}

func (rcv *FlatHeader) PayloadLen() uint32 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderPayloadLen)); o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) ConnId() uint64 {
	if o := flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderConnID)); o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *FlatHeader) HasConnId() bool {
	return flatbuffers.UOffsetT(rcv._tab.Offset(flatHeaderConnID)) != 0
}

func FlatHeaderStart(builder *flatbuffers.Builder) {
	builder.StartObject(11)
}
func FlatHeaderAddStreamId(builder *flatbuffers.Builder, v uint32) {
	builder.PrependUint32Slot(0, v, 0)
}
func FlatHeaderAddMsgType(builder *flatbuffers.Builder, v uint8) {
	builder.PrependUint8Slot(1, v, 0)
}
func FlatHeaderAddFlags(builder *flatbuffers.Builder, v uint8) {
	builder.PrependUint8Slot(2, v, 0)
}
func FlatHeaderAddSequence(builder *flatbuffers.Builder, v uint64) {
	builder.PrependUint64Slot(3, v, 0)
}
func FlatHeaderAddTimestamp(builder *flatbuffers.Builder, v uint64) {
	builder.PrependUint64Slot(4, v, 0)
}
func FlatHeaderAddNonce(builder *flatbuffers.Builder, v uint64) {
	builder.PrependUint64Slot(5, v, 0)
}
func FlatHeaderAddDelivKind(builder *flatbuffers.Builder, v uint8) {
	builder.PrependUint8Slot(6, v, 0)
}
func FlatHeaderAddDelivTTL(builder *flatbuffers.Builder, v uint32) {
	builder.PrependUint32Slot(7, v, 0)
}
func FlatHeaderAddAcks(builder *flatbuffers.Builder, acks flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(8, acks, 0)
}
func FlatHeaderStartAcksVector(builder *flatbuffers.Builder, numElems int) flatbuffers.UOffsetT {
	return builder.StartVector(16, numElems, 8)
}
func FlatHeaderAddPayloadLen(builder *flatbuffers.Builder, v uint32) {
	builder.PrependUint32Slot(9, v, 0)
}
func FlatHeaderAddConnId(builder *flatbuffers.Builder, v uint64) {
	builder.PrependUint64Slot(10, v, 0)
}
func FlatHeaderEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
