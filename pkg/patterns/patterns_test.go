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

package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	return NewMemory(clock.NewFake(time.Unix(0, 0)), zaptest.NewLogger(t))
}

func TestLearnAndMatchFraudPattern(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.LearnPattern(LearnInput{
		Type:       "card_fraud",
		Features:   map[string]interface{}{"country": "US", "amount": 5000.0},
		Outcome:    OutcomeFraudConfirmed,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	result := m.MatchPatterns(map[string]interface{}{"country": "US", "amount": 5200.0})
	require.Len(t, result.Matches, 1)
	assert.InDelta(t, 0.9, result.Matches[0].Score, 0.01)
	assert.Equal(t, "BLOCK", result.Recommendation)
	assert.Equal(t, 1, result.TotalMatched)
}

func TestSimilarObservationReinforcesInsteadOfDuplicating(t *testing.T) {
	m := newTestMemory(t)

	first, err := m.LearnPattern(LearnInput{
		Type:       "card_fraud",
		Features:   map[string]interface{}{"country": "US", "velocity": true, "channel": "web"},
		Outcome:    OutcomeFraudConfirmed,
		Confidence: 0.8,
	})
	require.NoError(t, err)

	// Same type, all feature values normalize equal: overlap 1.0 >= 0.7.
	second, err := m.LearnPattern(LearnInput{
		Type:       "card_fraud",
		Features:   map[string]interface{}{"country": "us ", "velocity": true, "channel": "WEB"},
		Outcome:    OutcomeFraudConfirmed,
		Confidence: 0.6,
	})
	require.NoError(t, err)

	assert.Equal(t, first.PatternID, second.PatternID)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(first.PatternID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Occurrences)
	assert.Equal(t, 1, got.Reinforcements)
	assert.InDelta(t, 0.7*0.8+0.3*0.6, got.Confidence, 1e-9)
	assert.Equal(t, 2, got.TotalValidations)
	assert.InDelta(t, 1.0, got.SuccessRate, 1e-9)
}

func TestReinforcementConfidenceClamped(t *testing.T) {
	m := newTestMemory(t)

	p, err := m.LearnPattern(LearnInput{
		Type:       "t",
		Features:   map[string]interface{}{"k": "v"},
		Outcome:    OutcomeSuspicious,
		Confidence: 0.05,
	})
	require.NoError(t, err)

	require.NoError(t, m.ReinforcePattern(p.PatternID, OutcomeSuspicious, 0.0))
	got, _ := m.Get(p.PatternID)
	assert.GreaterOrEqual(t, got.Confidence, 0.10)

	for i := 0; i < 50; i++ {
		require.NoError(t, m.ReinforcePattern(p.PatternID, OutcomeFraudConfirmed, 1.0))
	}
	got, _ = m.Get(p.PatternID)
	assert.LessOrEqual(t, got.Confidence, 0.99)
}

func TestFeedbackAdjustsConfidenceAndSuccessRate(t *testing.T) {
	m := newTestMemory(t)

	p, err := m.LearnPattern(LearnInput{
		Type:       "t",
		Features:   map[string]interface{}{"k": "v"},
		Outcome:    OutcomeFraudConfirmed,
		Confidence: 0.5,
	})
	require.NoError(t, err)

	require.NoError(t, m.ProvideFeedback(p.PatternID, OutcomeFraudConfirmed, true))
	got, _ := m.Get(p.PatternID)
	assert.InDelta(t, 0.5*1.05, got.Confidence, 1e-9)
	assert.InDelta(t, 1.0, got.SuccessRate, 1e-9) // 2 corrects / 2 validations

	require.NoError(t, m.ProvideFeedback(p.PatternID, OutcomeFalsePositive, false))
	got, _ = m.Get(p.PatternID)
	assert.InDelta(t, 0.5*1.05*0.9, got.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, got.SuccessRate, 1e-9)
}

func TestRangeFeatureMatching(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.LearnPattern(LearnInput{
		Type: "amount_band",
		Features: map[string]interface{}{
			"amount": map[string]interface{}{"min": 1000.0, "max": 2000.0},
		},
		Outcome:    OutcomeSuspicious,
		Confidence: 0.8,
	})
	require.NoError(t, err)

	inRange := m.MatchPatterns(map[string]interface{}{"amount": 1500.0})
	require.Len(t, inRange.Matches, 1)
	assert.InDelta(t, 1.0, inRange.Matches[0].Score, 1e-9)
	assert.Equal(t, "REVIEW", inRange.Recommendation)

	outOfRange := m.MatchPatterns(map[string]interface{}{"amount": 5000.0})
	assert.Empty(t, outOfRange.Matches)
}

func TestMatchCappedAtTen(t *testing.T) {
	m := newTestMemory(t)

	for i := 0; i < 15; i++ {
		_, err := m.LearnPattern(LearnInput{
			Type:       "t",
			Features:   map[string]interface{}{"bucket": float64(i * 100)},
			Outcome:    OutcomeFraudConfirmed,
			Confidence: 0.5,
		})
		require.NoError(t, err)
	}
	require.Equal(t, 15, m.Count())

	// Every pattern shares the bool feature below, so all 15 score > 0.
	m2 := newTestMemory(t)
	for i := 0; i < 15; i++ {
		_, err := m2.LearnPattern(LearnInput{
			Type:       "t" + string(rune('a'+i)),
			Features:   map[string]interface{}{"flagged": true},
			Outcome:    OutcomeFraudConfirmed,
			Confidence: 0.5,
		})
		require.NoError(t, err)
	}
	result := m2.MatchPatterns(map[string]interface{}{"flagged": true})
	assert.Len(t, result.Matches, 10)
	assert.Equal(t, 15, result.TotalMatched)
}

func TestMixedOutcomesWeightedRecommendation(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.LearnPattern(LearnInput{
		Type:       "a",
		Features:   map[string]interface{}{"country": "US"},
		Outcome:    OutcomeFraudConfirmed,
		Confidence: 0.9,
	})
	require.NoError(t, err)
	_, err = m.LearnPattern(LearnInput{
		Type:       "b",
		Features:   map[string]interface{}{"country": "US"},
		Outcome:    OutcomeLegitimateConfirmed,
		Confidence: 0.2,
	})
	require.NoError(t, err)

	result := m.MatchPatterns(map[string]interface{}{"country": "US"})
	assert.Equal(t, "BLOCK", result.Recommendation)
}

func TestNumericNormalizationBuckets(t *testing.T) {
	assert.Equal(t, "5000", normalizeValue(5004.0))
	assert.Equal(t, "5000", normalizeValue(4996.0))
	assert.Equal(t, "true", normalizeValue(true))
	assert.Equal(t, "us", normalizeValue("  US "))
}

func TestUnknownOutcomeRejected(t *testing.T) {
	m := newTestMemory(t)
	_, err := m.LearnPattern(LearnInput{
		Type:     "t",
		Features: map[string]interface{}{"k": "v"},
		Outcome:  "MAYBE",
	})
	assert.Error(t, err)
}
