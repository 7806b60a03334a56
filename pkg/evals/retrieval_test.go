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

package evals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatePerfectRetrieval(t *testing.T) {
	report := Evaluate([]Query{
		{Retrieved: []string{"a", "b"}, Relevant: []string{"a", "b"}},
	}, 5)

	assert.Equal(t, 1, report.Queries)
	assert.InDelta(t, 1.0, report.HitRateAt, 1e-9)
	assert.InDelta(t, 1.0, report.MRR, 1e-9)
	assert.InDelta(t, 1.0, report.NDCGAt, 1e-9)
}

func TestEvaluateRelevantAtSecondRank(t *testing.T) {
	report := Evaluate([]Query{
		{Retrieved: []string{"x", "a"}, Relevant: []string{"a"}},
	}, 5)

	assert.InDelta(t, 1.0, report.HitRateAt, 1e-9)
	assert.InDelta(t, 0.5, report.MRR, 1e-9)
	// DCG = 1/log2(3); ideal = 1/log2(2) = 1.
	assert.InDelta(t, 1/math.Log2(3), report.NDCGAt, 1e-9)
}

func TestEvaluateMissOutsideK(t *testing.T) {
	report := Evaluate([]Query{
		{Retrieved: []string{"x", "y", "a"}, Relevant: []string{"a"}},
	}, 2)

	assert.InDelta(t, 0.0, report.HitRateAt, 1e-9)
	// MRR ignores k: the first relevant hit is at rank 3.
	assert.InDelta(t, 1.0/3, report.MRR, 1e-9)
	assert.InDelta(t, 0.0, report.NDCGAt, 1e-9)
}

func TestEvaluateAveragesAcrossQueries(t *testing.T) {
	report := Evaluate([]Query{
		{Retrieved: []string{"a"}, Relevant: []string{"a"}},
		{Retrieved: []string{"x"}, Relevant: []string{"a"}},
	}, 5)

	assert.Equal(t, 2, report.Queries)
	assert.InDelta(t, 0.5, report.HitRateAt, 1e-9)
	assert.InDelta(t, 0.5, report.MRR, 1e-9)
}

func TestEvaluateBoundaries(t *testing.T) {
	assert.Equal(t, Report{}, Evaluate(nil, 5))

	report := Evaluate([]Query{{Retrieved: nil, Relevant: []string{"a"}}}, 5)
	assert.InDelta(t, 0.0, report.HitRateAt, 1e-9)

	report = Evaluate([]Query{{Retrieved: []string{"a"}, Relevant: nil}}, 5)
	assert.InDelta(t, 0.0, report.NDCGAt, 1e-9)
}
