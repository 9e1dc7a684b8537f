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

// Package ratelimit implements a dual token-bucket rate limiter
// (messages per second and bytes per second), applied both
// per-connection and globally across a server's connections.
package ratelimit

import (
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Limits configures the two independent token buckets.
type Limits struct {
	MessagesPerSecond float64
	MessageBurst      int
	BytesPerSecond    float64
	ByteBurst         int
}

// DefaultLimits returns conservative per-connection defaults.
func DefaultLimits() Limits {
	return Limits{
		MessagesPerSecond: 2000,
		MessageBurst:      4000,
		BytesPerSecond:    50 << 20, // 50 MiB/s
		ByteBurst:         100 << 20,
	}
}

// Limiter gates inbound or outbound traffic by both message count and
// byte count. Both buckets must have capacity for a frame to be
// admitted; admitting a frame consumes from both.
type Limiter struct {
	clock clockwork.Clock
	msgs  *rate.Limiter
	bytes *rate.Limiter
}

// New builds a Limiter from the given Limits.
func New(clock clockwork.Clock, limits Limits) *Limiter {
	return &Limiter{
		clock: clock,
		msgs:  rate.NewLimiter(rate.Limit(limits.MessagesPerSecond), limits.MessageBurst),
		bytes: rate.NewLimiter(rate.Limit(limits.BytesPerSecond), limits.ByteBurst),
	}
}

// Allow reports whether one frame of size frameBytes may be admitted
// right now, consuming tokens from both buckets if so. It does not
// block; callers that are rate limited must drop or queue the frame
// themselves.
func (l *Limiter) Allow(frameBytes int) bool {
	now := l.clock.Now()
	// Peeking both buckets via Reserve lets us back out of the message
	// reservation if the byte bucket is the one that is empty,
	// instead of spuriously consuming a message token for a frame that
	// will be dropped anyway.
	msgRes := l.msgs.ReserveN(now, 1)
	if !msgRes.OK() || msgRes.DelayFrom(now) > 0 {
		msgRes.CancelAt(now)
		return false
	}
	byteRes := l.bytes.ReserveN(now, frameBytes)
	if !byteRes.OK() || byteRes.DelayFrom(now) > 0 {
		byteRes.CancelAt(now)
		msgRes.CancelAt(now)
		return false
	}
	return true
}

// AllowAt is Allow evaluated at an explicit time, for deterministic
// tests that advance a fake clock between calls instead of relying on
// wall-clock delay.
func (l *Limiter) AllowAt(frameBytes int, at time.Time) bool {
	msgRes := l.msgs.ReserveN(at, 1)
	if !msgRes.OK() || msgRes.DelayFrom(at) > 0 {
		msgRes.CancelAt(at)
		return false
	}
	byteRes := l.bytes.ReserveN(at, frameBytes)
	if !byteRes.OK() || byteRes.DelayFrom(at) > 0 {
		byteRes.CancelAt(at)
		msgRes.CancelAt(at)
		return false
	}
	return true
}
