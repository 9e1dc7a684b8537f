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

package ticketstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jetstreamproto/jsp/lib/cryptoctx"
)

func TestStoreIssueAndRedeem(t *testing.T) {
	s, err := New(cryptoctx.SuiteChaCha20Poly1305, 16)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	opaque, err := s.Issue([]byte("secret"), now)
	require.NoError(t, err)

	tp, err := s.Redeem(opaque, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), tp.ResumptionSecret)
}

func TestStoreRejectsDoubleRedeem(t *testing.T) {
	s, err := New(cryptoctx.SuiteChaCha20Poly1305, 16)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	opaque, err := s.Issue([]byte("secret"), now)
	require.NoError(t, err)

	_, err = s.Redeem(opaque, now)
	require.NoError(t, err)
	_, err = s.Redeem(opaque, now)
	require.Error(t, err)
}

func TestStoreRejectsForeignTicket(t *testing.T) {
	s1, err := New(cryptoctx.SuiteChaCha20Poly1305, 16)
	require.NoError(t, err)
	s2, err := New(cryptoctx.SuiteChaCha20Poly1305, 16)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	opaque, err := s1.Issue([]byte("secret"), now)
	require.NoError(t, err)

	_, err = s2.Redeem(opaque, now)
	require.Error(t, err)
}
