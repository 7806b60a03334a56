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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/kv"
)

// SystemAgent attributes cost for calls issued outside any agent.
const SystemAgent = "SYSTEM"

// Budget alert event topics.
const (
	TopicBudgetWarning  = "agent:cost:budget_warning"
	TopicBudgetExceeded = "agent:cost:budget_exceeded"
)

// ModelPricing is USD per million tokens.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPricing is applied when a model has no explicit entry.
var defaultPricing = ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

// AgentCost is the per-agent accumulated spend.
type AgentCost struct {
	AgentID      string    `json:"agentId"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	TotalCostUSD float64   `json:"totalCostUsd"`
	Calls        int64     `json:"calls"`
	LastCallAt   time.Time `json:"lastCallAt"`
}

// Budget caps an agent's spend for the current budget period.
type Budget struct {
	MaxCostUSD     float64
	AlertThreshold float64 // fraction of MaxCostUSD that triggers the warning
}

// CostTracker converts token usage into USD per agent and fires budget
// alerts at most once per budget period. Increments are atomic under an
// internal lock; alert firing is idempotent via an alerts-emitted set.
type CostTracker struct {
	mu      sync.Mutex
	agents  map[string]*AgentCost
	budgets map[string]Budget
	fired   map[string]bool // key agentID + "\x00" + kind
	pricing map[string]ModelPricing

	totalCostUSD float64
	totalCalls   int64

	events *bus.EventBus
	store  kv.Store
	logger *zap.Logger
}

// NewCostTracker creates a cost tracker. events and store may be nil.
func NewCostTracker(events *bus.EventBus, store kv.Store, logger *zap.Logger) *CostTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostTracker{
		agents:  make(map[string]*AgentCost),
		budgets: make(map[string]Budget),
		fired:   make(map[string]bool),
		pricing: make(map[string]ModelPricing),
		events:  events,
		store:   store,
		logger:  logger,
	}
}

// SetPricing overrides pricing for a model.
func (t *CostTracker) SetPricing(model string, p ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[model] = p
}

// SetBudget configures the budget for an agent and resets its alerts.
func (t *CostTracker) SetBudget(agentID string, b Budget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budgets[agentID] = b
	delete(t.fired, agentID+"\x00warning")
	delete(t.fired, agentID+"\x00exceeded")
}

// ResetBudget starts a new budget period: spend and alert state are cleared.
func (t *CostTracker) ResetBudget(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.agents[agentID]; ok {
		c.TotalCostUSD = 0
	}
	delete(t.fired, agentID+"\x00warning")
	delete(t.fired, agentID+"\x00exceeded")
}

// RecordCost attributes one call's token usage to an agent.
// Empty agentID books to SYSTEM.
func (t *CostTracker) RecordCost(ctx context.Context, agentID, model string, usage Usage) float64 {
	if agentID == "" {
		agentID = SystemAgent
	}

	t.mu.Lock()
	p, ok := t.pricing[model]
	if !ok {
		p = defaultPricing
	}
	cost := float64(usage.InputTokens)/1e6*p.InputPerMTok +
		float64(usage.OutputTokens)/1e6*p.OutputPerMTok

	c, ok := t.agents[agentID]
	if !ok {
		c = &AgentCost{AgentID: agentID}
		t.agents[agentID] = c
	}
	c.InputTokens += int64(usage.InputTokens)
	c.OutputTokens += int64(usage.OutputTokens)
	c.TotalCostUSD += cost
	c.Calls++
	c.LastCallAt = time.Now()

	t.totalCostUSD += cost
	t.totalCalls++

	alerts := t.checkBudgetLocked(agentID, c)
	snapshot := *c
	t.mu.Unlock()

	for _, topic := range alerts {
		t.logger.Warn("cost budget alert",
			zap.String("agent_id", agentID),
			zap.String("topic", topic),
			zap.Float64("total_cost_usd", snapshot.TotalCostUSD))
		if t.events != nil {
			t.events.Publish(topic, map[string]interface{}{
				"agentId":      agentID,
				"totalCostUsd": snapshot.TotalCostUSD,
			})
		}
	}

	t.persist(ctx, snapshot)
	return cost
}

// checkBudgetLocked returns the alert topics that cross on this update.
// Each alert kind fires at most once per budget period.
func (t *CostTracker) checkBudgetLocked(agentID string, c *AgentCost) []string {
	b, ok := t.budgets[agentID]
	if !ok || b.MaxCostUSD <= 0 {
		return nil
	}

	var topics []string
	warnKey := agentID + "\x00warning"
	exceedKey := agentID + "\x00exceeded"

	if c.TotalCostUSD >= b.AlertThreshold*b.MaxCostUSD && !t.fired[warnKey] {
		t.fired[warnKey] = true
		topics = append(topics, TopicBudgetWarning)
	}
	if c.TotalCostUSD >= b.MaxCostUSD && !t.fired[exceedKey] {
		t.fired[exceedKey] = true
		topics = append(topics, TopicBudgetExceeded)
	}
	return topics
}

func (t *CostTracker) persist(ctx context.Context, c AgentCost) {
	if t.store == nil {
		return
	}
	blob, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := t.store.Insert(ctx, kv.TableCosts, c.AgentID, "spend", blob); err != nil {
		t.logger.Warn("cost persist failed", zap.Error(err))
	}
}

// AgentCost returns the accumulated spend for one agent.
func (t *CostTracker) AgentCost(agentID string) AgentCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.agents[agentID]; ok {
		return *c
	}
	return AgentCost{AgentID: agentID}
}

// Totals returns the global spend and call count.
func (t *CostTracker) Totals() (costUSD float64, calls int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCostUSD, t.totalCalls
}
