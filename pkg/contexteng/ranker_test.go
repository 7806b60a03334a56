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

package contexteng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeFiltersStopwordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("The seller IS a high-risk merchant, not in good standing (v2)!")
	assert.Equal(t, []string{"seller", "high", "risk", "merchant", "good", "standing", "v2"}, tokens)
}

func TestRankItemsOrdersByRelevance(t *testing.T) {
	r := NewRanker()
	items := []Item{
		{ID: "weather", Text: "sunny with light winds tomorrow"},
		{ID: "fraud", Text: "chargeback fraud spike on seller account"},
		{ID: "mixed", Text: "seller onboarding checklist"},
	}

	ranked := r.RankItems(items, "seller fraud chargeback")
	require.Len(t, ranked, 3)
	assert.Equal(t, "fraud", ranked[0].ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
	assert.Equal(t, 0.0, ranked[len(ranked)-1].Score)
}

func TestRankItemsEmptyInput(t *testing.T) {
	assert.Nil(t, NewRanker().RankItems(nil, "anything"))
}

func TestAllocateBudgetGreedy(t *testing.T) {
	ranked := []Item{
		{ID: "A", Tokens: 100, Score: 0.9},
		{ID: "B", Tokens: 100, Score: 0.5},
		{ID: "C", Tokens: 100, Score: 0.2},
	}

	alloc := AllocateBudget(ranked, 250, Guarantees{})
	require.Len(t, alloc.Items, 2)
	assert.Equal(t, "A", alloc.Items[0].ID)
	assert.Equal(t, "B", alloc.Items[1].ID)
	require.Len(t, alloc.DroppedItems, 1)
	assert.Equal(t, "C", alloc.DroppedItems[0].ID)
	assert.Equal(t, 200, alloc.TotalTokens)
	assert.Equal(t, 50, alloc.RemainingBudget)
}

func TestAllocateBudgetReservesGuarantees(t *testing.T) {
	ranked := []Item{
		{ID: "A", Tokens: 100, Score: 0.9},
		{ID: "B", Tokens: 100, Score: 0.5},
	}

	alloc := AllocateBudget(ranked, 250, Guarantees{System: 50, Task: 100})
	assert.Equal(t, 150, alloc.GuaranteedTokens)
	require.Len(t, alloc.Items, 1)
	assert.Equal(t, "A", alloc.Items[0].ID)
	assert.Equal(t, 0, alloc.RemainingBudget)
}

func TestAllocateBudgetSkipsOversizedButKeepsSmaller(t *testing.T) {
	ranked := []Item{
		{ID: "big", Tokens: 500, Score: 0.9},
		{ID: "small", Tokens: 50, Score: 0.1},
	}

	alloc := AllocateBudget(ranked, 100, Guarantees{})
	require.Len(t, alloc.Items, 1)
	assert.Equal(t, "small", alloc.Items[0].ID)
	require.Len(t, alloc.DroppedItems, 1)
	assert.Equal(t, "big", alloc.DroppedItems[0].ID)
}

func TestAllocateBudgetDefaultsWhenUnset(t *testing.T) {
	alloc := AllocateBudget(nil, 0, Guarantees{})
	assert.Equal(t, DefaultTokenBudget, alloc.RemainingBudget)
}
