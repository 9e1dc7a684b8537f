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

package stream

import (
	"sync"

	"github.com/gravitational/trace"

	"github.com/jetstreamproto/jsp/lib/wire"
)

// ErrMaxStreamsExceeded is returned by Open when the table already has
// maxOpen streams open, including the implicit control stream.
type ErrMaxStreamsExceeded struct{}

func (ErrMaxStreamsExceeded) Error() string { return "maximum open streams exceeded" }

// Table is the per-connection registry of open streams. The datagram
// I/O loop and the application-facing OpenStream/CloseStream/Send
// methods run on different goroutines, so Table guards its map with a
// mutex rather than assuming single-threaded access.
type Table struct {
	mu            sync.Mutex
	streams       map[uint32]*Stream
	nextID        uint32
	maxOpen       int
	reorderBudget int
}

// NewTable returns a Table with the implicit control stream already
// open. maxOpen bounds how many streams Open will allocate, including
// the control stream; maxOpen <= 0 means unlimited. reorderBudget is
// passed through to every Stream this table creates.
func NewTable(maxOpen, reorderBudget int) *Table {
	t := &Table{
		streams:       make(map[uint32]*Stream),
		nextID:        1,
		maxOpen:       maxOpen,
		reorderBudget: reorderBudget,
	}
	t.streams[ControlStreamID] = New(ControlStreamID, wire.NewReliable(), 0, reorderBudget)
	return t
}

// Open creates a new stream with an id the table allocates, under the
// given delivery mode and scheduling priority. It fails with
// ErrMaxStreamsExceeded once the table already holds maxOpen streams.
func (t *Table) Open(delivery wire.DeliveryMode, priority uint8) (*Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxOpen > 0 && len(t.streams) >= t.maxOpen {
		return nil, ErrMaxStreamsExceeded{}
	}
	id := t.nextID
	t.nextID++
	s := New(id, delivery, priority, t.reorderBudget)
	t.streams[id] = s
	return s, nil
}

// OpenWithID registers a stream at an explicit id, used when the peer
// opens a stream and announces its id via a STREAM_CONTROL frame. The
// peer does not announce a priority, so these streams schedule at the
// default priority. It is not subject to the maxOpen cap: the peer has
// already committed the stream on the wire, and refusing it here would
// just desynchronize the two sides' stream tables.
func (t *Table) OpenWithID(id uint32, delivery wire.DeliveryMode) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.streams[id]; ok {
		return s
	}
	s := New(id, delivery, 0, t.reorderBudget)
	t.streams[id] = s
	return s
}

// Get returns the stream with the given id, or nil if it is not open.
func (t *Table) Get(id uint32) (*Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streams[id]
	return s, ok
}

// Close marks id's local half closed and removes it from the table if
// both halves are now closed.
func (t *Table) Close(id uint32) error {
	if id == ControlStreamID {
		return trace.BadParameter("control stream %d cannot be closed", id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streams[id]
	if !ok {
		return trace.NotFound("stream %d not open", id)
	}
	s.CloseLocal()
	if s.Closed() {
		delete(t.streams, id)
	}
	return nil
}

// CloseRemote marks id's remote half closed, as observed from an
// inbound STREAM_CONTROL close frame.
func (t *Table) CloseRemote(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streams[id]
	if !ok {
		return
	}
	s.CloseRemote()
	if s.Closed() {
		delete(t.streams, id)
	}
}

// Len returns the number of currently open streams, including the
// control stream.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}
