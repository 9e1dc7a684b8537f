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

func TestStateTransitionsHappyPath(t *testing.T) {
	require.NoError(t, StateInit.transitionTo(StateHandshaking))
	require.NoError(t, StateHandshaking.transitionTo(StateEstablished))
	require.NoError(t, StateEstablished.transitionTo(StateClosing))
	require.NoError(t, StateClosing.transitionTo(StateDraining))
	require.NoError(t, StateDraining.transitionTo(StateClosed))
}

func TestStateClosingReachableBeforeShutdown(t *testing.T) {
	for _, s := range []State{StateInit, StateHandshaking, StateEstablished} {
		require.NoError(t, s.transitionTo(StateClosing))
	}
}

func TestStateClosedIsTerminal(t *testing.T) {
	require.Error(t, StateClosed.transitionTo(StateInit))
	require.Error(t, StateClosed.transitionTo(StateHandshaking))
	require.Error(t, StateClosed.transitionTo(StateClosing))
}

func TestStateRejectsSkippingHandshake(t *testing.T) {
	require.Error(t, StateInit.transitionTo(StateEstablished))
}

func TestStateRejectsReenteringEstablished(t *testing.T) {
	require.Error(t, StateEstablished.transitionTo(StateEstablished))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "established", StateEstablished.String())
	require.Equal(t, "unknown", State(99).String())
}
