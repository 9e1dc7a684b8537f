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

// Package pathval implements the path validation challenge/response
// handshake used for connection migration and NAT rebinding recovery.
package pathval

import (
	"crypto/rand"
	"net"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
)

// TokenSize is the length of the random path validation token.
const TokenSize = 8

// DefaultDeadline is how long a candidate path has to answer a
// challenge before it is considered unreachable.
const DefaultDeadline = 3 * time.Second

// Challenge is sent to a candidate address to confirm the peer is
// actually reachable there (and not just spoofing a source address).
type Challenge struct {
	Token [TokenSize]byte
}

// Response echoes a Challenge's token back to the validator.
type Response struct {
	Token [TokenSize]byte
}

// Matches reports whether r answers c.
func (c Challenge) Matches(r Response) bool { return c.Token == r.Token }

type pending struct {
	challenge Challenge
	addr      net.Addr
	deadline  time.Time
}

// Validator tracks outstanding path challenges for one connection. A
// connection issues at most one outstanding challenge per candidate
// address at a time.
type Validator struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	deadline time.Duration
	pending  map[string]*pending
}

// New returns a Validator using clock for deadlines. deadline <= 0
// falls back to DefaultDeadline.
func New(clock clockwork.Clock, deadline time.Duration) *Validator {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Validator{
		clock:    clock,
		deadline: deadline,
		pending:  make(map[string]*pending),
	}
}

// Issue generates a fresh Challenge for addr and remembers it until the
// validator's deadline elapses.
func (v *Validator) Issue(addr net.Addr) (Challenge, error) {
	var ch Challenge
	if _, err := rand.Read(ch.Token[:]); err != nil {
		return Challenge{}, trace.Wrap(err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending[addr.String()] = &pending{
		challenge: ch,
		addr:      addr,
		deadline:  v.clock.Now().Add(v.deadline),
	}
	return ch, nil
}

// Verify checks resp against the outstanding challenge for addr. On a
// correct, timely response it clears the pending challenge and returns
// true. An expired or mismatched response returns false without error;
// a caller with no outstanding challenge for addr gets an error, since
// that indicates a protocol violation (a PATH_RESPONSE with no matching
// PATH_CHALLENGE).
func (v *Validator) Verify(addr net.Addr, resp Response) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.pending[addr.String()]
	if !ok {
		return false, trace.BadParameter("path response for %s with no outstanding challenge", addr)
	}
	if v.clock.Now().After(p.deadline) {
		delete(v.pending, addr.String())
		return false, nil
	}
	if !p.challenge.Matches(resp) {
		return false, nil
	}
	delete(v.pending, addr.String())
	return true, nil
}

// SweepExpired removes every outstanding challenge past its deadline
// and returns the addresses that failed validation by timing out.
func (v *Validator) SweepExpired() []net.Addr {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.clock.Now()
	var expired []net.Addr
	for key, p := range v.pending {
		if now.After(p.deadline) {
			expired = append(expired, p.addr)
			delete(v.pending, key)
		}
	}
	return expired
}
