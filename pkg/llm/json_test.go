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

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONVariants(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"plain array", `[1,2,3]`, `[1,2,3]`},
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"embedded object", `The answer is {"a":1} as requested.`, `{"a":1}`},
		{"embedded array", `Results: [1,2] done.`, `[1,2]`},
		{"braces inside strings", `prefix {"msg":"has } brace"} suffix`, `{"msg":"has } brace"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.content)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractJSONFailures(t *testing.T) {
	for _, content := range []string{"", "   ", "no json here", "{broken"} {
		_, err := ExtractJSON(content)
		assert.Error(t, err, "content %q", content)
	}
}

var actionSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"action", "reason"},
	"properties": map[string]interface{}{
		"action": map[string]interface{}{"type": "string"},
		"reason": map[string]interface{}{"type": "string"},
	},
}

func TestJSONRetryValidFirstAttemptSkipsRepair(t *testing.T) {
	p := scripted(`{"action":"APPROVE","reason":"clean history"}`)
	c := newTestClient(t, p)

	got, err := c.CompleteWithJSONRetry(context.Background(), JSONOptions{
		User:     "decide",
		Schema:   actionSchema,
		Fallback: map[string]interface{}{"action": "FALLBACK"},
	})
	require.NoError(t, err)
	assert.Equal(t, "APPROVE", got["action"])
	assert.Equal(t, int64(0), c.RepairStats().Attempts)
	assert.Equal(t, 1, p.callCount())
}

func TestJSONRepairRecoversFromProse(t *testing.T) {
	p := scripted(
		"I think risk is high",
		`{"action":"BLOCK","reason":"high risk"}`,
	)
	c := newTestClient(t, p)

	got, err := c.CompleteWithJSONRetry(context.Background(), JSONOptions{
		User:     "decide",
		Schema:   actionSchema,
		Fallback: map[string]interface{}{"action": "FALLBACK"},
	})
	require.NoError(t, err)
	assert.Equal(t, "BLOCK", got["action"])
	assert.Equal(t, "high risk", got["reason"])

	stats := c.RepairStats()
	assert.Equal(t, int64(1), stats.Attempts)
	assert.Equal(t, int64(1), stats.Successes)
}

func TestJSONRepairFailureReturnsFallback(t *testing.T) {
	p := scripted("still not json", "nope, sorry")
	c := newTestClient(t, p)

	fallback := map[string]interface{}{"action": "FALLBACK"}
	got, err := c.CompleteWithJSONRetry(context.Background(), JSONOptions{
		User:     "decide",
		Schema:   actionSchema,
		Fallback: fallback,
	})
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	stats := c.RepairStats()
	assert.Equal(t, int64(1), stats.Attempts)
	assert.Equal(t, int64(0), stats.Successes)
}

func TestJSONRetrySchemaMismatchTriggersRepair(t *testing.T) {
	p := scripted(
		`{"action":"BLOCK"}`,
		`{"action":"BLOCK","reason":"missing field supplied"}`,
	)
	c := newTestClient(t, p)

	got, err := c.CompleteWithJSONRetry(context.Background(), JSONOptions{
		User:     "decide",
		Schema:   actionSchema,
		Fallback: map[string]interface{}{"action": "FALLBACK"},
	})
	require.NoError(t, err)
	assert.Equal(t, "missing field supplied", got["reason"])
	assert.Equal(t, int64(1), c.RepairStats().Attempts)
}

func TestJSONRetryDisabledClientReturnsFallback(t *testing.T) {
	c := NewClient(nil, nil, nil, nil, nil)

	fallback := map[string]interface{}{"action": "FALLBACK"}
	got, err := c.CompleteWithJSONRetry(context.Background(), JSONOptions{
		User:     "decide",
		Fallback: fallback,
	})
	require.NoError(t, err)
	assert.Equal(t, fallback, got)
}
