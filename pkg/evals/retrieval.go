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

// Package evals measures retrieval quality over labeled query sets.
package evals

import "math"

// Query is one labeled retrieval case: the ids the system returned, in
// rank order, and the ids a perfect retrieval would contain.
type Query struct {
	Retrieved []string
	Relevant  []string
}

// Report is the evaluation summary over a query set.
type Report struct {
	Queries   int     `json:"queries"`
	HitRateAt float64 `json:"hitRateAt"`
	MRR       float64 `json:"mrr"`
	NDCGAt    float64 `json:"ndcgAt"`
}

// Evaluate computes HitRate@k, MRR and NDCG@k over the query set.
// An empty set yields a zero report.
func Evaluate(queries []Query, k int) Report {
	report := Report{Queries: len(queries)}
	if len(queries) == 0 || k <= 0 {
		return report
	}

	var hits, mrrSum, ndcgSum float64
	for _, q := range queries {
		relevant := make(map[string]struct{}, len(q.Relevant))
		for _, id := range q.Relevant {
			relevant[id] = struct{}{}
		}

		hits += hitAt(q.Retrieved, relevant, k)
		mrrSum += reciprocalRank(q.Retrieved, relevant)
		ndcgSum += ndcgAt(q.Retrieved, relevant, k)
	}

	n := float64(len(queries))
	report.HitRateAt = hits / n
	report.MRR = mrrSum / n
	report.NDCGAt = ndcgSum / n
	return report
}

// hitAt is 1 when any of the top-k retrieved ids is relevant.
func hitAt(retrieved []string, relevant map[string]struct{}, k int) float64 {
	for i, id := range retrieved {
		if i >= k {
			break
		}
		if _, ok := relevant[id]; ok {
			return 1
		}
	}
	return 0
}

// reciprocalRank is 1/rank of the first relevant id, 0 when none appears.
func reciprocalRank(retrieved []string, relevant map[string]struct{}) float64 {
	for i, id := range retrieved {
		if _, ok := relevant[id]; ok {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// ndcgAt is DCG@k over binary relevance, normalized by the ideal DCG.
func ndcgAt(retrieved []string, relevant map[string]struct{}, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}

	dcg := 0.0
	for i, id := range retrieved {
		if i >= k {
			break
		}
		if _, ok := relevant[id]; ok {
			dcg += 1 / math.Log2(float64(i)+2)
		}
	}

	ideal := 0.0
	n := len(relevant)
	if n > k {
		n = k
	}
	for i := 0; i < n; i++ {
		ideal += 1 / math.Log2(float64(i)+2)
	}
	if ideal == 0 {
		return 0
	}
	return dcg / ideal
}
