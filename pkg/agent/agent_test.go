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

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/kv"
	"github.com/teradata-labs/sentinel/pkg/llm"
	"github.com/teradata-labs/sentinel/pkg/memory"
	"github.com/teradata-labs/sentinel/pkg/observability"
	"github.com/teradata-labs/sentinel/pkg/patterns"
	"github.com/teradata-labs/sentinel/pkg/tools"
)

type panicNow struct{}

// scriptedProvider replays queued responses in order. Entries may be a
// JSON string, an error, or panicNow to blow up mid-call.
type scriptedProvider struct {
	mu    sync.Mutex
	queue []interface{}
	calls int
}

func (p *scriptedProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.queue) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted after %d calls", p.calls)
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	switch v := entry.(type) {
	case string:
		return &llm.Response{Content: v, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
	case error:
		return nil, v
	case panicNow:
		panic("provider exploded")
	}
	return nil, fmt.Errorf("bad script entry %T", entry)
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

type testHarness struct {
	agent     *BaseAgent
	memory    *memory.Store
	patterns  *patterns.Memory
	bus       *bus.EventBus
	decisions *observability.DecisionLog
	clk       *clock.Fake
}

// newHarness builds an agent with real in-memory collaborators. A nil
// provider leaves the LLM disabled.
func newHarness(t *testing.T, provider llm.Provider, cfg Config) *testHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	store := kv.NewMemoryStore()

	mem, err := memory.NewStore(store, clk, logger)
	require.NoError(t, err)
	pats := patterns.NewMemory(clk, logger)
	events := bus.New(logger)
	decisions := observability.NewDecisionLog(store, logger)

	var client *llm.Client
	if provider != nil {
		client = llm.NewClient(provider, nil, nil, clk, logger)
	}

	if cfg.AgentID == "" {
		cfg.AgentID = "AGENT-0000test"
	}
	if cfg.Role == "" {
		cfg.Role = "a seller risk analyst"
	}
	a, err := NewBaseAgent(cfg, Deps{
		LLM:       client,
		Memory:    mem,
		Patterns:  pats,
		Executor:  tools.NewExecutor(nil, nil, nil, logger),
		Bus:       events,
		Decisions: decisions,
		Clock:     clk,
		Logger:    logger,
	})
	require.NoError(t, err)
	return &testHarness{agent: a, memory: mem, patterns: pats, bus: events, decisions: decisions, clk: clk}
}

func TestReasonFallbackProducesCompleteThought(t *testing.T) {
	h := newHarness(t, nil, Config{})
	var actionStarts, thoughts int
	h.bus.Subscribe(TopicActionStart, func(bus.Event) { actionStarts++ })
	h.bus.Subscribe(TopicThought, func(bus.Event) { thoughts++ })

	thought := h.agent.Reason(context.Background(), map[string]interface{}{"sellerId": "S-1"}, ReasonOptions{})

	require.NotNil(t, thought.Result)
	assert.True(t, thought.Result.Success)
	assert.Equal(t, "Completed 1 actions", thought.Result.Summary)
	assert.Empty(t, thought.Error)
	require.Len(t, thought.Actions, 1)
	assert.Equal(t, "analyze", thought.Actions[0].Action.Type)
	assert.True(t, thought.Actions[0].Succeeded())
	assert.True(t, thought.ChainOfThought.Concluded())
	assert.Equal(t, 1, actionStarts)
	assert.Equal(t, 1, thoughts)
	assert.Equal(t, StatusIdle, h.agent.Status())

	recorded, err := h.decisions.ByAgent(context.Background(), h.agent.ID(), 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "S-1", recorded[0].Subject)
}

func TestReasonWithLLMFollowsPlan(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{
		`{"understanding":"card testing suspected","key_risks":["velocity"],"confidence":0.7,"suggested_approach":"check history"}`,
		`{"goal":"investigate","reasoning":"start with the seller profile","actions":[{"tool":"check_seller","params":{"sellerId":"S-1"},"rationale":"profile first"}]}`,
		`{"summary":"high risk seller","risk_score":82,"recommendation":"BLOCK","confidence":0.8,"reasoning":"velocity plus chargebacks","key_findings":["rapid orders"]}`,
	}}
	h := newHarness(t, provider, Config{})
	require.NoError(t, h.agent.RegisterTool(tools.Tool{
		Name:        "check_seller",
		Description: "fetch seller profile",
		Handler: func(_ context.Context, params map[string]interface{}) (*tools.Result, error) {
			return &tools.Result{Success: true, Data: map[string]interface{}{"sellerId": params["sellerId"]}}, nil
		},
	}))

	thought := h.agent.Reason(context.Background(), map[string]interface{}{"sellerId": "S-1"}, ReasonOptions{})

	require.Len(t, thought.Actions, 1)
	assert.Equal(t, "check_seller", thought.Actions[0].Action.Type)
	require.NotNil(t, thought.Result)
	assert.Equal(t, "BLOCK", thought.Result.Recommendation)
	assert.Equal(t, 82.0, thought.Result.RiskScore)
	assert.Equal(t, []string{"rapid orders"}, thought.Result.KeyFindings)
	assert.Contains(t, thought.Reasoning, "card testing suspected")
	assert.Equal(t, 3, provider.calls)
}

func TestPlanValidationDropsUnregisteredAndCaps(t *testing.T) {
	h := newHarness(t, nil, Config{})
	raw := []interface{}{
		map[string]interface{}{"tool": "drop_tables"}, // not registered
	}
	for i := 0; i < 15; i++ {
		raw = append(raw, map[string]interface{}{"tool": "analyze"})
	}

	actions := h.agent.validatePlan(map[string]interface{}{"actions": raw})
	require.Len(t, actions, MaxActionsPerPlan)
	for _, a := range actions {
		assert.Equal(t, "analyze", a.Type)
	}
}

func TestPatternPrecheckDrivesFallbackDecision(t *testing.T) {
	h := newHarness(t, nil, Config{Domain: "seller_fraud"})
	_, err := h.patterns.LearnPattern(patterns.LearnInput{
		Type:       "seller_fraud",
		Features:   map[string]interface{}{"country": "US", "amount": 5000.0},
		Outcome:    patterns.OutcomeFraudConfirmed,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	thought := h.agent.Reason(context.Background(),
		map[string]interface{}{"country": "US", "amount": 5200.0}, ReasonOptions{})

	require.NotNil(t, thought.PatternMatches)
	assert.Equal(t, "BLOCK", thought.Result.Recommendation)
	assert.Greater(t, thought.Result.RiskScore, 50.0)

	var patternStep *ChainStep
	for i, step := range thought.ChainOfThought.Steps {
		if step.Kind == StepEvidence && strings.Contains(step.Text, "known pattern") {
			patternStep = &thought.ChainOfThought.Steps[i]
		}
	}
	require.NotNil(t, patternStep)
	assert.Equal(t, ConfidenceLikely, patternStep.Confidence)
}

func TestConclusionLikelyWhenActionsFailWithoutError(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{
		`{"understanding":"u","key_risks":[],"confidence":0.6,"suggested_approach":"s"}`,
		`{"goal":"g","actions":[{"tool":"kyc_check","params":{}}]}`,
		`{"summary":"kyc unavailable","risk_score":40,"recommendation":"REVIEW","confidence":0.5,"reasoning":"r","key_findings":[]}`,
	}}
	h := newHarness(t, provider, Config{})
	require.NoError(t, h.agent.RegisterTool(tools.Tool{
		Name:        "kyc_check",
		Description: "verify seller identity documents",
		Handler: func(context.Context, map[string]interface{}) (*tools.Result, error) {
			return &tools.Result{Success: false, Error: "kyc provider offline"}, nil
		},
	}))

	thought := h.agent.Reason(context.Background(), map[string]interface{}{"sellerId": "S-9"}, ReasonOptions{})

	require.NotNil(t, thought.Result)
	assert.False(t, thought.Result.Success)
	assert.Empty(t, thought.Error)

	steps := thought.ChainOfThought.Steps
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	assert.Equal(t, StepConclusion, last.Kind)
	assert.Equal(t, ConfidenceLikely, last.Confidence)
}

func TestReflectionRevisesWhenMoreConfident(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{
		`{"understanding":"u","key_risks":[],"confidence":0.7,"suggested_approach":"s"}`,
		`{"goal":"g","actions":[{"tool":"analyze","params":{}}]}`,
		`{"summary":"looks bad","risk_score":80,"recommendation":"BLOCK","confidence":0.6,"reasoning":"r","key_findings":[]}`,
		`{"shouldRevise":true,"revisedAction":"REVIEW","revisedConfidence":0.75,"concerns":["new seller burst"],"contraArgument":"could be a launch spike","reflectionConfidence":0.9}`,
	}}
	h := newHarness(t, provider, Config{ReflectionEnabled: true})

	thought := h.agent.Reason(context.Background(), map[string]interface{}{"sellerId": "S-2"}, ReasonOptions{})

	require.NotNil(t, thought.Result)
	assert.True(t, thought.Result.Revised)
	assert.Equal(t, "REVIEW", thought.Result.Recommendation)
	assert.Equal(t, 0.75, thought.Result.Confidence)
	assert.Equal(t, "could be a launch spike", thought.Result.Reasoning)
}

func TestReflectionKeptWhenLessConfident(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{
		`{"understanding":"u","key_risks":[],"confidence":0.7,"suggested_approach":"s"}`,
		`{"goal":"g","actions":[{"tool":"analyze","params":{}}]}`,
		`{"summary":"looks bad","risk_score":80,"recommendation":"BLOCK","confidence":0.6,"reasoning":"r","key_findings":[]}`,
		`{"shouldRevise":true,"revisedAction":"APPROVE","concerns":[],"contraArgument":"weak","reflectionConfidence":0.4}`,
	}}
	h := newHarness(t, provider, Config{ReflectionEnabled: true})

	thought := h.agent.Reason(context.Background(), nil, ReasonOptions{})
	assert.False(t, thought.Result.Revised)
	assert.Equal(t, "BLOCK", thought.Result.Recommendation)
}

func TestRePlanAfterMostlyFailedTurn(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{
		// Turn 1: plan calls only the failing tool.
		`{"understanding":"u1","key_risks":[],"confidence":0.5,"suggested_approach":"s"}`,
		`{"goal":"verify identity","actions":[{"tool":"kyc_check","params":{}}]}`,
		`{"summary":"kyc unavailable","risk_score":50,"recommendation":"REVIEW","confidence":0.4,"reasoning":"r","key_findings":[]}`,
		// Turn 2: think, then the recovery plan.
		`{"understanding":"u2","key_risks":[],"confidence":0.5,"suggested_approach":"s"}`,
		`{"goal":"verify identity","actions":[{"tool":"analyze","params":{}}]}`,
		`{"summary":"fell back to analysis","risk_score":40,"recommendation":"REVIEW","confidence":0.5,"reasoning":"r","key_findings":[]}`,
	}}
	h := newHarness(t, provider, Config{})
	require.NoError(t, h.agent.RegisterTool(tools.Tool{
		Name:        "kyc_check",
		Description: "verify seller identity",
		Handler: func(context.Context, map[string]interface{}) (*tools.Result, error) {
			return nil, fmt.Errorf("kyc provider offline")
		},
	}))

	first := h.agent.Reason(context.Background(), map[string]interface{}{"turn": 1.0}, ReasonOptions{})
	require.Len(t, first.Actions, 1)
	assert.False(t, first.Actions[0].Succeeded())
	_, replanned := first.Context["_replanned"]
	assert.False(t, replanned)

	second := h.agent.Reason(context.Background(), map[string]interface{}{"turn": 2.0}, ReasonOptions{})
	assert.Equal(t, true, second.Context["_replanned"])
}

func TestReasonRecoversFromProviderPanic(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{panicNow{}}}
	h := newHarness(t, provider, Config{})

	thought := h.agent.Reason(context.Background(), map[string]interface{}{"sellerId": "S-3"}, ReasonOptions{})

	assert.Contains(t, thought.Error, "provider exploded")
	require.NotNil(t, thought.Result)
	assert.False(t, thought.Result.Success)
	assert.True(t, thought.ChainOfThought.Concluded())
	steps := thought.ChainOfThought.Steps
	assert.Equal(t, ConfidenceCertain, steps[len(steps)-1].Confidence)
	assert.Equal(t, StatusIdle, h.agent.Status())
}

func TestLearnPersistsShortTermAndPatterns(t *testing.T) {
	provider := &scriptedProvider{queue: []interface{}{
		`{"understanding":"u","key_risks":[],"confidence":0.7,"suggested_approach":"s"}`,
		`{"goal":"g","actions":[{"tool":"analyze","params":{}}]}`,
		`{"summary":"confirmed bad","risk_score":90,"recommendation":"BLOCK","confidence":0.85,"reasoning":"r","key_findings":[]}`,
	}}
	h := newHarness(t, provider, Config{Domain: "seller_fraud"})

	h.agent.Reason(context.Background(),
		map[string]interface{}{"country": "BR", "amount": 900.0}, ReasonOptions{})

	entries, err := h.memory.GetShortTerm(context.Background(), h.agent.ID(), h.agent.SessionID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "BLOCK", entries[0].Entry["recommendation"])
	assert.Equal(t, 1, h.patterns.Count())
}

func TestConsolidationPromotesPatternsEveryTwentyTurns(t *testing.T) {
	h := newHarness(t, nil, Config{Domain: "seller_fraud"})
	_, err := h.patterns.LearnPattern(patterns.LearnInput{
		Type:       "seller_fraud",
		Features:   map[string]interface{}{"country": "US"},
		Outcome:    patterns.OutcomeFraudConfirmed,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < consolidateEvery; i++ {
		h.agent.Reason(ctx, map[string]interface{}{"turn": float64(i)}, ReasonOptions{})
	}

	promoted, err := h.memory.GetByType(ctx, h.agent.ID(), memory.TypePattern)
	require.NoError(t, err)
	assert.NotEmpty(t, promoted)
}

func TestThoughtLogBounded(t *testing.T) {
	h := newHarness(t, nil, Config{MaxThoughtLog: 3})
	for i := 0; i < 5; i++ {
		h.agent.Reason(context.Background(), map[string]interface{}{"i": float64(i)}, ReasonOptions{})
	}
	log := h.agent.Thoughts()
	require.Len(t, log, 3)
	assert.Equal(t, 4.0, log[2].Input["i"])
}
