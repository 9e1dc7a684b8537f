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
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/trace"
)

// HelloWindow bounds how far the clientTime passed to CheckAndRemember
// may drift from the server's clock before it is rejected outright,
// ahead of even the replay check. ClientHello itself carries no
// timestamp.
const HelloWindow = 30 * time.Second

// HelloCache rejects replayed ClientHello messages by remembering
// client_random values it has already accepted within HelloWindow. It
// is bounded in size, so an attacker flooding distinct randoms ages out
// legitimate entries rather than growing memory without bound.
type HelloCache struct {
	cache *lru.Cache[[randomSize]byte, struct{}]
	clock clockwork.Clock
}

// NewHelloCache constructs a HelloCache holding up to capacity distinct
// client_random values.
func NewHelloCache(capacity int, clock clockwork.Clock) (*HelloCache, error) {
	c, err := lru.New[[randomSize]byte, struct{}](capacity)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &HelloCache{cache: c, clock: clock}, nil
}

// CheckAndRemember validates that clientTime is within HelloWindow of
// the server's clock and that clientRandom has not been seen before. On
// success it remembers clientRandom so a subsequent replay is rejected.
func (h *HelloCache) CheckAndRemember(clientRandom [randomSize]byte, clientTime time.Time) error {
	now := h.clock.Now()
	drift := now.Sub(clientTime)
	if drift < 0 {
		drift = -drift
	}
	if drift > HelloWindow {
		return trace.BadParameter("client hello timestamp %s outside %s window of server clock", clientTime, HelloWindow)
	}
	if h.cache.Contains(clientRandom) {
		return trace.AlreadyExists("client hello replayed")
	}
	h.cache.Add(clientRandom, struct{}{})
	return nil
}
