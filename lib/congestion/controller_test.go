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

package congestion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControllerStartsInSlowStart(t *testing.T) {
	c := New(0)
	require.Equal(t, SlowStart, c.State())
	require.Equal(t, InitialCWND, c.CWND())
}

func TestControllerGatesOnFullWindow(t *testing.T) {
	c := New(0)
	c.OnSend(InitialCWND)
	require.Error(t, c.CanSend(1))
}

func TestControllerSlowStartGrowsOnAck(t *testing.T) {
	c := New(0)
	c.OnSend(1000)
	before := c.CWND()
	c.OnAck(1000, 1)
	require.Greater(t, c.CWND(), before)
}

func TestControllerLossHalvesWindowAndEntersRecovery(t *testing.T) {
	c := New(0)
	c.OnSend(InitialCWND)
	c.OnLoss(42)
	require.Equal(t, Recovery, c.State())
	require.LessOrEqual(t, c.CWND(), InitialCWND/2)
	require.GreaterOrEqual(t, c.CWND(), MinCWND)
}

func TestControllerRecoveryExitsOnCoveringAck(t *testing.T) {
	c := New(0)
	c.OnSend(InitialCWND)
	c.OnLoss(42)
	require.Equal(t, Recovery, c.State())

	c.OnAck(100, 10) // does not yet cover the loss point
	require.Equal(t, Recovery, c.State())

	c.OnAck(100, 42) // covers it
	require.Equal(t, CongestionAvoidance, c.State())
}

func TestControllerRTOTimeoutResetsToSlowStart(t *testing.T) {
	c := New(0)
	c.OnSend(InitialCWND)
	c.OnRTOTimeout(10)
	require.Equal(t, SlowStart, c.State())
	require.Equal(t, MinCWND, c.CWND())
}
