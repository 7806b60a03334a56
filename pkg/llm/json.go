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
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// RepairStats counts JSON repair calls and how many of them parsed.
type RepairStats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
}

type repairCounters struct {
	attempts  atomic.Int64
	successes atomic.Int64
}

func (r *repairCounters) snapshot() RepairStats {
	return RepairStats{Attempts: r.attempts.Load(), Successes: r.successes.Load()}
}

// RepairStats returns the client's repair counters.
func (c *Client) RepairStats() RepairStats { return c.repairs.snapshot() }

// ExtractJSON pulls a JSON value out of model output. It accepts, in
// order: plain JSON, the first ```json fence, the first ``` fence, the
// first {...} object, the first [...] array.
func ExtractJSON(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("empty content")
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	for _, marker := range []string{"```json", "```"} {
		if body, ok := fencedBlock(trimmed, marker); ok && json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		if body, ok := balancedSpan(trimmed, pair[0], pair[1]); ok && json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	return nil, fmt.Errorf("no JSON value found in content")
}

// fencedBlock returns the body of the first fence opened by marker.
func fencedBlock(s, marker string) (string, bool) {
	start := strings.Index(s, marker)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(marker):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedSpan returns the first balanced open..close span, tracking
// string literals so braces inside them do not miscount.
func balancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// JSONOptions parameterise a schema-validated completion.
type JSONOptions struct {
	System      string
	User        string
	Schema      map[string]interface{} // JSON schema the result must satisfy
	Fallback    map[string]interface{} // returned when parsing fails twice or LLM is disabled
	Model       string
	MaxTokens   int
	Temperature float64
	AgentID     string
}

// CompleteWithJSONRetry completes and parses JSON out of the response.
// On parse or schema failure it issues a single repair call; if that
// also fails it returns the fallback. The fallback path never errors.
func (c *Client) CompleteWithJSONRetry(ctx context.Context, opts JSONOptions) (map[string]interface{}, error) {
	if !c.Enabled() {
		return opts.Fallback, nil
	}

	first, err := c.Complete(ctx, CompleteOptions{
		System:      opts.System,
		User:        opts.User,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		AgentID:     opts.AgentID,
	})
	if err != nil || first == nil {
		return opts.Fallback, err
	}

	if parsed, ok := c.parseAgainstSchema(first.Content, opts.Schema); ok {
		return parsed, nil
	}

	// One repair attempt: hand the model its own output and the schema.
	c.repairs.attempts.Add(1)
	schemaText, _ := json.MarshalIndent(opts.Schema, "", "  ")
	repairPrompt := fmt.Sprintf(
		"Your previous output could not be parsed as JSON.\n\nPrevious output:\n%s\n\nRequired schema:\n%s\n\nRespond with ONLY valid JSON, no markdown.",
		first.Content, string(schemaText))

	repaired, err := c.Complete(ctx, CompleteOptions{
		System:      opts.System,
		User:        repairPrompt,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		AgentID:     opts.AgentID,
		SkipCache:   true,
	})
	if err != nil || repaired == nil {
		return opts.Fallback, err
	}

	if parsed, ok := c.parseAgainstSchema(repaired.Content, opts.Schema); ok {
		c.repairs.successes.Add(1)
		return parsed, nil
	}

	c.logger.Warn("json repair failed, using fallback", zap.String("agent_id", opts.AgentID))
	return opts.Fallback, nil
}

// parseAgainstSchema extracts JSON and, when a schema is given,
// validates the value against it.
func (c *Client) parseAgainstSchema(content string, schema map[string]interface{}) (map[string]interface{}, bool) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, false
	}
	var value map[string]interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	if len(schema) == 0 {
		return value, true
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(raw))
	if err != nil || !result.Valid() {
		return nil, false
	}
	return value, true
}
