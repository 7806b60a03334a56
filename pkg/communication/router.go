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

package communication

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type candidate struct {
	agentID   string
	taskTypes map[string]struct{}
	load      int
	completed int
	succeeded int
}

func (c *candidate) successRate() float64 {
	if c.completed == 0 {
		// Unproven agents score as reliable so new capacity gets work.
		return 1
	}
	return float64(c.succeeded) / float64(c.completed)
}

// score balances reliability against current load.
func (c *candidate) score() float64 {
	return 0.6*c.successRate() + 0.4*(1/float64(c.load+1))
}

// Router picks the best agent for a task type by success rate and load.
type Router struct {
	mu         sync.Mutex
	candidates map[string]*candidate
	logger     *zap.Logger
}

// NewRouter creates a router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{candidates: make(map[string]*candidate), logger: logger}
}

// RegisterAgent makes an agent routable for the given task types.
func (r *Router) RegisterAgent(agentID string, taskTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.candidates[agentID]
	if !ok {
		c = &candidate{agentID: agentID, taskTypes: make(map[string]struct{})}
		r.candidates[agentID] = c
	}
	for _, tt := range taskTypes {
		c.taskTypes[tt] = struct{}{}
	}
}

// UnregisterAgent removes an agent from routing.
func (r *Router) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.candidates, agentID)
}

// Route returns the best-scoring agent for a task type.
func (r *Router) Route(taskType string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *candidate
	bestScore := -1.0
	for _, c := range r.candidates {
		if _, ok := c.taskTypes[taskType]; !ok {
			continue
		}
		if s := c.score(); s > bestScore {
			best = c
			bestScore = s
		}
	}
	if best == nil {
		return "", fmt.Errorf("router: no agent handles task type %q", taskType)
	}

	r.logger.Debug("task routed",
		zap.String("task_type", taskType),
		zap.String("agent_id", best.agentID),
		zap.Float64("score", bestScore))
	return best.agentID, nil
}

// TaskStarted bumps an agent's load.
func (r *Router) TaskStarted(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.candidates[agentID]; ok {
		c.load++
	}
}

// TaskCompleted releases load and folds the result into the agent's
// success rate.
func (r *Router) TaskCompleted(agentID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[agentID]
	if !ok {
		return
	}
	if c.load > 0 {
		c.load--
	}
	c.completed++
	if success {
		c.succeeded++
	}
}

// Load returns an agent's in-flight task count.
func (r *Router) Load(agentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.candidates[agentID]; ok {
		return c.load
	}
	return 0
}
