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

package conn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAckTrackerEmptyHasNoRanges(t *testing.T) {
	tr := newAckTracker()
	_, ok := tr.ranges()
	require.False(t, ok)
}

func TestAckTrackerContiguousFromZero(t *testing.T) {
	tr := newAckTracker()
	tr.record(0)
	tr.record(1)
	tr.record(2)

	ranges, ok := tr.ranges()
	require.True(t, ok)
	require.Len(t, ranges, 1)
	require.Equal(t, uint64(0), ranges[0].Start)
	require.Equal(t, uint64(2), ranges[0].End)
}

func TestAckTrackerGapBeforeZeroUsesEmptySentinel(t *testing.T) {
	tr := newAckTracker()
	tr.record(5)
	tr.record(6)

	ranges, ok := tr.ranges()
	require.True(t, ok)
	require.Len(t, ranges, 2)
	require.True(t, ranges[0].Start > ranges[0].End, "first range must be the empty cumulative sentinel")
	require.Equal(t, uint64(5), ranges[1].Start)
	require.Equal(t, uint64(6), ranges[1].End)
}

func TestAckTrackerPrunesAfterCumulative(t *testing.T) {
	tr := newAckTracker()
	tr.record(0)
	tr.record(1)
	_, _ = tr.ranges()
	require.Equal(t, 0, tr.received.Len())
}

func TestAckTrackerMixedContiguousAndSack(t *testing.T) {
	tr := newAckTracker()
	tr.record(0)
	tr.record(1)
	tr.record(5)

	ranges, ok := tr.ranges()
	require.True(t, ok)
	require.Len(t, ranges, 2)
	require.Equal(t, uint64(0), ranges[0].Start)
	require.Equal(t, uint64(1), ranges[0].End)
	require.Equal(t, uint64(5), ranges[1].Start)
	require.Equal(t, uint64(5), ranges[1].End)
}
