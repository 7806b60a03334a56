// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/kv"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := NewStore(kv.NewMemoryStore(), fake, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, fake
}

func TestShortTermSaveAndGetNewestFirst(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveShortTerm(ctx, "AGENT-1", "sess", map[string]interface{}{"n": 1})
	require.NoError(t, err)
	fake.Advance(time.Minute)
	_, err = s.SaveShortTerm(ctx, "AGENT-1", "sess", map[string]interface{}{"n": 2})
	require.NoError(t, err)

	entries, err := s.GetShortTerm(ctx, "AGENT-1", "sess")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.EqualValues(t, 2, entries[0].Entry["n"])
}

func TestShortTermSessionCapEvictsOldest(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxShortTermPerSession+5; i++ {
		_, err := s.SaveShortTerm(ctx, "AGENT-1", "sess", map[string]interface{}{"n": i})
		require.NoError(t, err)
		fake.Advance(time.Second)
	}

	entries, err := s.GetShortTerm(ctx, "AGENT-1", "sess")
	require.NoError(t, err)
	require.Len(t, entries, MaxShortTermPerSession)

	// Oldest five are gone; newest entry survives.
	assert.EqualValues(t, MaxShortTermPerSession+4, entries[0].Entry["n"])
	assert.EqualValues(t, 5, entries[len(entries)-1].Entry["n"])
}

func TestShortTermExpiryHidesAndCleanupDeletes(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveShortTerm(ctx, "AGENT-1", "sess", map[string]interface{}{"k": "old"})
	require.NoError(t, err)

	fake.Advance(ShortTermTTL + time.Minute)
	_, err = s.SaveShortTerm(ctx, "AGENT-1", "sess", map[string]interface{}{"k": "fresh"})
	require.NoError(t, err)

	entries, err := s.GetShortTerm(ctx, "AGENT-1", "sess")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Entry["k"])

	deleted, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestLongTermQueryRanking(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveLongTerm(ctx, "AGENT-1", TypeInsight,
		map[string]interface{}{"text": "seller chargeback spike detected"}, 0.9)
	require.NoError(t, err)
	_, err = s.SaveLongTerm(ctx, "AGENT-1", TypeInsight,
		map[string]interface{}{"text": "routine weekly report"}, 0.1)
	require.NoError(t, err)

	results, err := s.QueryLongTerm(ctx, "AGENT-1", "chargeback spike", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, fmt.Sprint(results[0].Entry.Content["text"]), "chargeback")
	assert.Greater(t, results[0].Score, results[len(results)-1].Score)
}

func TestLongTermRetrievalBumpsAccessStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveLongTerm(ctx, "AGENT-1", TypeInsight,
		map[string]interface{}{"text": "velocity anomaly"}, 0.5)
	require.NoError(t, err)

	first, err := s.QueryLongTerm(ctx, "AGENT-1", "velocity", 5)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].Entry.AccessCount)

	second, err := s.QueryLongTerm(ctx, "AGENT-1", "velocity", 5)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].Entry.AccessCount)
	assert.False(t, second[0].Entry.LastAccessed.IsZero())
}

func TestGetByTypeSortsByImportance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveLongTerm(ctx, "AGENT-1", TypeCorrection, map[string]interface{}{"n": "low"}, 0.2)
	require.NoError(t, err)
	_, err = s.SaveLongTerm(ctx, "AGENT-1", TypeCorrection, map[string]interface{}{"n": "high"}, 0.8)
	require.NoError(t, err)
	_, err = s.SaveLongTerm(ctx, "AGENT-1", TypeInsight, map[string]interface{}{"n": "other"}, 0.9)
	require.NoError(t, err)

	out, err := s.GetByType(ctx, "AGENT-1", TypeCorrection)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Content["n"])
}

func TestConsolidatePromotesRepeatedGroups(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.SaveShortTerm(ctx, "AGENT-1", "sess",
			map[string]interface{}{"type": "velocity_check", "n": i})
		require.NoError(t, err)
	}
	// Below the group threshold: not promoted.
	_, err := s.SaveShortTerm(ctx, "AGENT-1", "sess",
		map[string]interface{}{"type": "one_off"})
	require.NoError(t, err)

	promoted, err := s.Consolidate(ctx, "AGENT-1", "sess")
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	patterns, err := s.GetByType(ctx, "AGENT-1", TypePattern)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "velocity_check", patterns[0].Content["pattern"])
	assert.InDelta(t, 0.7, patterns[0].Importance, 1e-9) // 0.3 + 0.1*4
	assert.Len(t, patterns[0].Content["examples"], 3)
}

func TestAgentsAreIsolated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveLongTerm(ctx, "AGENT-1", TypeInsight, map[string]interface{}{"text": "mine"}, 0.5)
	require.NoError(t, err)

	results, err := s.QueryLongTerm(ctx, "AGENT-2", "mine", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
