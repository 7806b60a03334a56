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

// Package llm provides the model client the agents reason through: provider
// abstraction, response caching, retry with backoff, JSON repair and
// per-agent cost attribution.
package llm

import (
	"context"
	"fmt"
)

// Request is a single completion request.
type Request struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Response is a provider completion.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is a pluggable model backend (Anthropic-compatible shape).
type Provider interface {
	// Complete sends one request and returns the model's response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name.
	Name() string

	// Model returns the default model identifier.
	Model() string
}

// APIError is a provider error carrying the upstream HTTP status.
// The client retries 429 and 5xx; everything else fails fast.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm provider error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the error is a transient provider failure.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
