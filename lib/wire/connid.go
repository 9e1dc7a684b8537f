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
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// ConnectionID identifies a connection independently of the UDP
// four-tuple, so it survives NAT rebinding and explicit path migration.
type ConnectionID uint64

// NewConnectionID draws a random, non-zero connection id. Zero is
// reserved to mean "not yet assigned" during the first handshake flight.
func NewConnectionID() (ConnectionID, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		id := ConnectionID(binary.BigEndian.Uint64(b[:]))
		if id != 0 {
			return id, nil
		}
	}
}

func (c ConnectionID) String() string { return fmt.Sprintf("%016x", uint64(c)) }

func (c ConnectionID) IsZero() bool { return c == 0 }
