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

// Package conn implements the connection state machine and the
// datagram I/O loop, wiring together the wire codec, crypto context,
// replay window, stream table, reliability engine, congestion
// controller, path validator, and rate limiter.
package conn

import "github.com/gravitational/trace"

// State is one of the connection lifecycle states.
type State int

const (
	StateInit State = iota
	StateHandshaking
	StateEstablished
	StateClosing
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// legalTransitions enumerates the state machine's edges. Closing can be
// entered from Init, Handshaking and Established, since a fatal error or
// explicit Close call can interrupt the handshake or idle traffic at any
// time; once shutdown has begun (Closing, Draining) it cannot be
// re-entered.
var legalTransitions = map[State]map[State]bool{
	StateInit:        {StateHandshaking: true, StateClosing: true},
	StateHandshaking: {StateEstablished: true, StateClosing: true},
	StateEstablished: {StateClosing: true},
	StateClosing:     {StateDraining: true, StateClosed: true},
	StateDraining:    {StateClosed: true},
	StateClosed:      {},
}

func (s State) transitionTo(next State) error {
	if legalTransitions[s][next] {
		return nil
	}
	return trace.BadParameter("illegal connection state transition %s -> %s", s, next)
}
