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

// MsgType identifies the purpose of a frame's payload, carried in the
// header's msg_type field.
type MsgType uint8

const (
	MsgHandshake MsgType = iota
	MsgData
	MsgAck
	MsgHeartbeat
	MsgClose
	MsgStreamControl
	MsgSessionTicket
	MsgPathChallenge
	MsgPathResponse
)

// IsControl reports whether t is a protocol control message rather than
// application data. Control frames are exempt from the stream reorder
// buffer and from per-stream delivery-mode bookkeeping.
func (t MsgType) IsControl() bool {
	switch t {
	case MsgData:
		return false
	default:
		return true
	}
}

func (t MsgType) String() string {
	switch t {
	case MsgHandshake:
		return "handshake"
	case MsgData:
		return "data"
	case MsgAck:
		return "ack"
	case MsgHeartbeat:
		return "heartbeat"
	case MsgClose:
		return "close"
	case MsgStreamControl:
		return "stream_control"
	case MsgSessionTicket:
		return "session_ticket"
	case MsgPathChallenge:
		return "path_challenge"
	case MsgPathResponse:
		return "path_response"
	default:
		return "unknown"
	}
}
