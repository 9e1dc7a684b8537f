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

// Package ticketstore issues and redeems opaque 0-RTT session tickets.
// A Store is owned explicitly by a Server; there is no package
// level singleton, so a process hosting multiple listeners keeps their
// ticket keys and replay caches independent.
package ticketstore

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gravitational/trace"

	"github.com/jetstreamproto/jsp/lib/cryptoctx"
)

// DefaultTicketTTL is how long an issued session ticket remains
// redeemable for 0-RTT resumption.
const DefaultTicketTTL = 1 * time.Hour

// Store issues tickets sealed under a server-wide key and enforces
// single-use redemption via a bounded LRU of recently seen ticket IDs.
type Store struct {
	mu       sync.Mutex
	key      cryptoctx.AEAD
	suite    cryptoctx.SuiteID
	ttl      time.Duration
	redeemed *lru.Cache[uuid.UUID, struct{}]
}

// New constructs a Store with a freshly generated ticket key. Capacity
// bounds how many redeemed ticket IDs are remembered for replay
// rejection; it should comfortably exceed the number of tickets issued
// within DefaultTicketTTL.
func New(suite cryptoctx.SuiteID, capacity int) (*Store, error) {
	key := make([]byte, cryptoctx.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, trace.Wrap(err)
	}
	aead, err := cryptoctx.NewAEAD(suite, key)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	cache, err := lru.New[uuid.UUID, struct{}](capacity)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Store{key: aead, suite: suite, ttl: DefaultTicketTTL, redeemed: cache}, nil
}

// Issue seals a fresh ticket carrying resumptionSecret.
func (s *Store) Issue(resumptionSecret []byte, now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opaque, _, err := cryptoctx.IssueTicket(s.key, s.suite, resumptionSecret, now, s.ttl)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return opaque, nil
}

// Redeem opens opaque and enforces single use: a ticket ID seen before
// is rejected even if it has not expired, since a repeat presentation
// indicates either a retransmission race or a replay attempt, and the
// caller cannot safely tell which without re-running the handshake.
func (s *Store) Redeem(opaque []byte, now time.Time) (*cryptoctx.TicketPlaintext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp, err := cryptoctx.OpenTicket(s.key, opaque, now)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if s.redeemed.Contains(tp.ID) {
		return nil, trace.AlreadyExists("session ticket %s already redeemed", tp.ID)
	}
	s.redeemed.Add(tp.ID, struct{}{})
	return tp, nil
}
