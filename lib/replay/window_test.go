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

package replay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowAcceptsMonotonicSequence(t *testing.T) {
	w := New(0)
	for seq := uint64(0); seq < 10; seq++ {
		require.True(t, w.Check(seq), "seq %d should be accepted", seq)
	}
}

func TestWindowRejectsExactReplay(t *testing.T) {
	w := New(0)
	require.True(t, w.Check(5))
	require.False(t, w.Check(5))
}

func TestWindowAcceptsOutOfOrderWithinWindow(t *testing.T) {
	w := New(0)
	require.True(t, w.Check(100))
	require.True(t, w.Check(98))
	require.True(t, w.Check(99))
	require.False(t, w.Check(98))
	require.False(t, w.Check(99))
}

func TestWindowRejectsBelowWindow(t *testing.T) {
	w := New(0)
	require.True(t, w.Check(WindowSize*2))
	require.False(t, w.Check(WindowSize))
	require.False(t, w.Check(0))
}

func TestWindowSlidesOnNewHighest(t *testing.T) {
	w := New(0)
	require.True(t, w.Check(0))
	require.True(t, w.Check(WindowSize))
	// seq 0 has aged out of the trailing window now.
	require.False(t, w.Check(0))
	// but a sequence still inside the trailing window is fresh.
	require.True(t, w.Check(WindowSize-1))
}

func TestWindowLargeJumpClearsBitmap(t *testing.T) {
	w := New(0)
	require.True(t, w.Check(1))
	require.True(t, w.Check(1_000_000))
	require.True(t, w.Check(1_000_000-WindowSize+1))
}
