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

package cryptoctx

import (
	"encoding/binary"

	"github.com/gravitational/trace"
)

// Context is the per-connection, per-direction sealing state derived
// from a completed handshake. It owns one AEAD keyed for frames this
// side sends and one keyed for frames this side receives.
type Context struct {
	sendAEAD AEAD
	sendSalt [NonceSaltSize]byte
	recvAEAD AEAD
	recvSalt [NonceSaltSize]byte
}

// NewContext builds a Context from the session Keys derived during the
// handshake. isClient selects which of the two derived key pairs this
// side sends with.
func NewContext(keys *Keys, isClient bool) *Context {
	if isClient {
		return &Context{
			sendAEAD: keys.ClientAEAD,
			sendSalt: keys.ClientNonceSalt,
			recvAEAD: keys.ServerAEAD,
			recvSalt: keys.ServerNonceSalt,
		}
	}
	return &Context{
		sendAEAD: keys.ServerAEAD,
		sendSalt: keys.ServerNonceSalt,
		recvAEAD: keys.ClientAEAD,
		recvSalt: keys.ClientNonceSalt,
	}
}

// nonceFor computes the per-frame AEAD nonce: the direction's fixed
// salt with header.nonce folded into its low 8 bytes by XOR. Every
// frame sent in a given direction must carry a unique header.nonce
// value or the AEAD construction loses its guarantees.
func nonceFor(salt [NonceSaltSize]byte, headerNonce uint64) []byte {
	nonce := make([]byte, NonceSaltSize)
	copy(nonce, salt[:])
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], headerNonce)
	offset := NonceSaltSize - 8
	for i := 0; i < 8; i++ {
		nonce[offset+i] ^= nb[i]
	}
	return nonce
}

// Seal encrypts plaintext for outbound transmission. additionalData is
// the full serialized header, which is authenticated but not encrypted.
func (c *Context) Seal(headerNonce uint64, additionalData, plaintext []byte) []byte {
	nonce := nonceFor(c.sendSalt, headerNonce)
	return c.sendAEAD.Seal(nil, nonce, plaintext, additionalData)
}

// Open decrypts and authenticates an inbound frame.
func (c *Context) Open(headerNonce uint64, additionalData, ciphertext []byte) ([]byte, error) {
	nonce := nonceFor(c.recvSalt, headerNonce)
	pt, err := c.recvAEAD.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return pt, nil
}

// Overhead returns the AEAD tag overhead in bytes, used by the
// connection to size a frame's PayloadLen and its congestion-window
// check before sealing.
func (c *Context) Overhead() int {
	return c.sendAEAD.Overhead()
}
