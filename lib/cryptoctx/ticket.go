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
	"crypto/rand"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

// TicketPlaintext is the confidential content of a 0-RTT session
// ticket. It never appears on the wire except as the plaintext of an
// AEAD-sealed opaque blob: unlike a JWT, nothing about it is visible
// without the server's ticket key, which is why the suite cannot use
// golang-jwt (see SPEC_FULL.md).
type TicketPlaintext struct {
	ID               uuid.UUID `cbor:"1,keyasint"`
	Suite            SuiteID   `cbor:"2,keyasint"`
	ResumptionSecret []byte    `cbor:"3,keyasint"`
	IssuedAt         int64     `cbor:"4,keyasint"`
	ExpiresAt        int64     `cbor:"5,keyasint"`
}

// IssueTicket seals a fresh TicketPlaintext under ticketAEAD, which is
// a server-wide key independent of any single connection's session
// keys. The returned bytes are the opaque wire form of the ticket.
func IssueTicket(ticketAEAD AEAD, suite SuiteID, resumptionSecret []byte, now time.Time, ttl time.Duration) ([]byte, uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, uuid.Nil, trace.Wrap(err)
	}
	tp := TicketPlaintext{
		ID:               id,
		Suite:            suite,
		ResumptionSecret: resumptionSecret,
		IssuedAt:         now.Unix(),
		ExpiresAt:        now.Add(ttl).Unix(),
	}
	body, err := cbor.Marshal(tp)
	if err != nil {
		return nil, uuid.Nil, trace.Wrap(err)
	}

	nonce := make([]byte, ticketAEAD.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, uuid.Nil, trace.Wrap(err)
	}
	sealed := ticketAEAD.Seal(nil, nonce, body, nil)

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, id, nil
}

// OpenTicket reverses IssueTicket. It returns an error if the ticket is
// malformed, was sealed under a different key, or has expired.
func OpenTicket(ticketAEAD AEAD, opaque []byte, now time.Time) (*TicketPlaintext, error) {
	n := ticketAEAD.NonceSize()
	if len(opaque) < n {
		return nil, trace.BadParameter("session ticket too short")
	}
	nonce, sealed := opaque[:n], opaque[n:]
	body, err := ticketAEAD.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var tp TicketPlaintext
	if err := cbor.Unmarshal(body, &tp); err != nil {
		return nil, trace.Wrap(err)
	}
	if now.Unix() > tp.ExpiresAt {
		return nil, trace.BadParameter("session ticket expired")
	}
	return &tp, nil
}
