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

// Package contexteng assembles the prompt context an agent reasons over:
// per-source sections with token ceilings, TF-IDF relevance ranking and
// greedy budget allocation.
package contexteng

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// stopwords filtered out of TF-IDF tokens.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "it": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "of": {}, "for": {}, "and": {}, "or": {}, "but": {},
	"not": {}, "with": {}, "by": {}, "from": {}, "as": {}, "be": {},
	"was": {}, "were": {}, "are": {}, "been": {}, "has": {}, "had": {},
	"have": {}, "do": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"this": {}, "that": {}, "these": {}, "those": {},
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases, keeps [a-z0-9]+ runs longer than one character
// and drops stopwords.
func Tokenize(text string) []string {
	var out []string
	for _, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) <= 1 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Item is one candidate context fragment.
type Item struct {
	ID     string
	Source string
	Text   string
	Tokens int
	Score  float64
}

// Ranker scores context items against a query with TF-IDF.
type Ranker struct{}

// NewRanker creates a ranker.
func NewRanker() *Ranker { return &Ranker{} }

// RankItems scores every item against the query and returns them
// highest-score first. TF is normalized by document length; IDF is
// smoothed as log(N/df)+1 so a term present everywhere still counts.
func (r *Ranker) RankItems(items []Item, query string) []Item {
	queryTokens := Tokenize(query)
	if len(items) == 0 {
		return nil
	}

	docs := make([]map[string]float64, len(items))
	df := make(map[string]int)
	for i, item := range items {
		tokens := Tokenize(item.Text)
		tf := make(map[string]float64, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		if n := float64(len(tokens)); n > 0 {
			for tok := range tf {
				tf[tok] /= n
			}
		}
		docs[i] = tf
		for tok := range tf {
			df[tok]++
		}
	}

	n := float64(len(items))
	ranked := make([]Item, len(items))
	copy(ranked, items)
	for i := range ranked {
		score := 0.0
		for _, tok := range queryTokens {
			tf := docs[i][tok]
			if tf == 0 {
				continue
			}
			idf := math.Log(n/float64(df[tok])) + 1
			score += tf * idf
		}
		ranked[i].Score = score
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// Guarantees reserves tokens off the top of the budget for sections that
// are always included.
type Guarantees struct {
	System int
	Task   int
}

// Allocation is the result of fitting ranked items into a token budget.
type Allocation struct {
	Items            []Item
	DroppedItems     []Item
	TotalTokens      int
	GuaranteedTokens int
	RemainingBudget  int
}

// DefaultTokenBudget is used when a caller passes budget <= 0.
const DefaultTokenBudget = 4000

// AllocateBudget greedily admits ranked items highest-score-first after
// reserving the guaranteed tokens. Items that do not fit are dropped.
func AllocateBudget(ranked []Item, totalBudget int, g Guarantees) *Allocation {
	if totalBudget <= 0 {
		totalBudget = DefaultTokenBudget
	}
	guaranteed := g.System + g.Task
	remaining := totalBudget - guaranteed
	if remaining < 0 {
		remaining = 0
	}

	alloc := &Allocation{GuaranteedTokens: guaranteed}
	for _, item := range ranked {
		if item.Tokens <= remaining {
			alloc.Items = append(alloc.Items, item)
			alloc.TotalTokens += item.Tokens
			remaining -= item.Tokens
		} else {
			alloc.DroppedItems = append(alloc.DroppedItems, item)
		}
	}
	alloc.RemainingBudget = remaining
	return alloc
}
