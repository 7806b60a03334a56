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
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

const (
	// maxAttempts bounds retries on transient provider failures.
	maxAttempts = 3

	// baseBackoff is the first retry delay; doubles per attempt.
	baseBackoff = 1 * time.Second

	// DefaultMaxTokens is used when a request leaves MaxTokens unset.
	DefaultMaxTokens = 4096
)

// CompleteOptions parameterise one completion call.
type CompleteOptions struct {
	System      string
	User        string
	Model       string // empty uses the provider default
	MaxTokens   int
	Temperature float64
	AgentID     string // cost attribution; empty books to SYSTEM
	SkipCache   bool
}

// Completion is the client-level result: the provider response plus
// latency and cache provenance.
type Completion struct {
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
	LatencyMs int64  `json:"latencyMs"`
	Cached    bool   `json:"cached"`
}

// Client fronts a Provider with caching, bounded retry and per-agent
// cost attribution. A disabled client (nil provider) completes to nil
// so callers take their deterministic fallback path.
type Client struct {
	provider Provider
	cache    *Cache
	costs    *CostTracker
	clk      clock.Clock
	logger   *zap.Logger
	repairs  repairCounters
}

// NewClient creates an LLM client. provider may be nil (disabled mode);
// cache and costs may be nil to skip those concerns.
func NewClient(provider Provider, cache *Cache, costs *CostTracker, clk clock.Clock, logger *zap.Logger) *Client {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{provider: provider, cache: cache, costs: costs, clk: clk, logger: logger}
}

// Enabled reports whether completions will reach a provider.
func (c *Client) Enabled() bool { return c != nil && c.provider != nil }

// Cache exposes the response cache, for stats and clearing. May be nil.
func (c *Client) Cache() *Cache { return c.cache }

// Complete issues one completion. Returns (nil, nil) when the client is
// disabled. Cache hits return the stored response with Cached=true and
// do not touch the provider or the cost tracker.
func (c *Client) Complete(ctx context.Context, opts CompleteOptions) (*Completion, error) {
	if !c.Enabled() {
		return nil, nil
	}

	model := opts.Model
	if model == "" {
		model = c.provider.Model()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	req := Request{
		Model:       model,
		System:      opts.System,
		User:        opts.User,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}

	if !opts.SkipCache && c.cache != nil {
		if resp := c.cache.Get(req); resp != nil {
			return &Completion{Content: resp.Content, Usage: resp.Usage, Cached: true}, nil
		}
	}

	start := time.Now()
	resp, err := c.completeWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	if !opts.SkipCache && c.cache != nil {
		c.cache.Put(req, resp)
	}
	if c.costs != nil {
		c.costs.RecordCost(ctx, opts.AgentID, model, resp.Usage)
	}

	c.logger.Debug("llm completion",
		zap.String("model", model),
		zap.String("agent_id", opts.AgentID),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Int64("latency_ms", latency))

	return &Completion{Content: resp.Content, Usage: resp.Usage, LatencyMs: latency}, nil
}

// completeWithRetry retries 429/5xx up to maxAttempts with exponential
// backoff. Non-transient errors break immediately.
func (c *Client) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff * (1 << uint(attempt-1))
			c.logger.Warn("llm retry",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := c.clk.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}
