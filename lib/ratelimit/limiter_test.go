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

package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsWithinBurst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock, Limits{MessagesPerSecond: 10, MessageBurst: 5, BytesPerSecond: 1000, ByteBurst: 1000})

	now := clock.Now()
	for i := 0; i < 5; i++ {
		require.True(t, l.AllowAt(10, now))
	}
	require.False(t, l.AllowAt(10, now))
}

func TestLimiterReplenishesOverTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock, Limits{MessagesPerSecond: 10, MessageBurst: 1, BytesPerSecond: 1000, ByteBurst: 1000})

	now := clock.Now()
	require.True(t, l.AllowAt(10, now))
	require.False(t, l.AllowAt(10, now))
	require.True(t, l.AllowAt(10, now.Add(200*time.Millisecond)))
}

func TestLimiterGatesOnByteBudgetIndependently(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(clock, Limits{MessagesPerSecond: 1000, MessageBurst: 1000, BytesPerSecond: 100, ByteBurst: 100})

	now := clock.Now()
	require.True(t, l.AllowAt(100, now))
	require.False(t, l.AllowAt(1, now))
}
