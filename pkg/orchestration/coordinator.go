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

package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/communication"
)

// DefaultDispatchTimeout bounds each agent's reasoning in a parallel
// dispatch.
const DefaultDispatchTimeout = 30 * time.Second

// Dispatch statuses.
const (
	StatusCompleted = "completed"
	StatusTimeout   = "timeout"
	StatusNotFound  = "not_found"
	StatusError     = "error"
)

// DispatchResult is one agent's outcome in a parallel dispatch.
type DispatchResult struct {
	AgentID string                 `json:"agentId"`
	Status  string                 `json:"status"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// DelegateResult reports a delegation by value; failures never panic or
// propagate as errors.
type DelegateResult struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// ConsensusRun bundles a consensus round's dispatch and verdict.
type ConsensusRun struct {
	SessionID string                 `json:"sessionId"`
	Dispatch  []DispatchResult       `json:"dispatch"`
	Outcome   *communication.Outcome `json:"outcome"`
}

// Coordinator fans tasks out to registered agents with timeouts.
type Coordinator struct {
	mu     sync.RWMutex
	agents map[string]Reasoner

	consensus *communication.Consensus
	logger    *zap.Logger
}

// NewCoordinator creates a coordinator. consensus may be nil if
// RunConsensus is never used.
func NewCoordinator(consensus *communication.Consensus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		agents:    make(map[string]Reasoner),
		consensus: consensus,
		logger:    logger,
	}
}

// RegisterAgent makes an agent dispatchable.
func (c *Coordinator) RegisterAgent(agentID string, agent Reasoner) error {
	if agentID == "" || agent == nil {
		return fmt.Errorf("coordinator: agent id and reasoner are required")
	}
	c.mu.Lock()
	c.agents[agentID] = agent
	c.mu.Unlock()
	return nil
}

// UnregisterAgent removes an agent.
func (c *Coordinator) UnregisterAgent(agentID string) {
	c.mu.Lock()
	delete(c.agents, agentID)
	c.mu.Unlock()
}

func (c *Coordinator) lookup(agentID string) (Reasoner, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	agent, ok := c.agents[agentID]
	return agent, ok
}

// DispatchParallel races each agent's reasoning against the timeout
// and returns one result per requested id, in request order.
func (c *Coordinator) DispatchParallel(ctx context.Context, agentIDs []string, task map[string]interface{}, timeout time.Duration) []DispatchResult {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}

	results := make([]DispatchResult, len(agentIDs))
	var wg sync.WaitGroup
	for i, id := range agentIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = c.dispatchOne(ctx, id, task, timeout)
		}(i, id)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) dispatchOne(ctx context.Context, agentID string, task map[string]interface{}, timeout time.Duration) DispatchResult {
	agent, ok := c.lookup(agentID)
	if !ok {
		return DispatchResult{AgentID: agentID, Status: StatusNotFound}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result map[string]interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := agent.Reason(ctx, task)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return DispatchResult{AgentID: agentID, Status: StatusError, Error: o.err.Error()}
		}
		return DispatchResult{AgentID: agentID, Status: StatusCompleted, Result: o.result}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("dispatch timed out",
				zap.String("agent_id", agentID), zap.Duration("timeout", timeout))
			return DispatchResult{AgentID: agentID, Status: StatusTimeout}
		}
		return DispatchResult{AgentID: agentID, Status: StatusError, Error: ctx.Err().Error()}
	}
}

// Delegate hands a subtask from one agent to another and reports the
// outcome by value.
func (c *Coordinator) Delegate(ctx context.Context, from, to string, subtask map[string]interface{}, timeout time.Duration) DelegateResult {
	c.logger.Debug("delegating task",
		zap.String("from", from), zap.String("to", to))

	res := c.dispatchOne(ctx, to, subtask, timeout)
	switch res.Status {
	case StatusCompleted:
		return DelegateResult{Success: true, Result: res.Result}
	case StatusNotFound:
		return DelegateResult{Error: fmt.Sprintf("agent %s not registered", to)}
	case StatusTimeout:
		return DelegateResult{Error: fmt.Sprintf("delegation to %s timed out", to)}
	default:
		return DelegateResult{Error: res.Error}
	}
}

// RunConsensus dispatches the task to every agent, opens a voting
// session over them and casts a vote per completed result using its
// recommendation, confidence and summary fields.
func (c *Coordinator) RunConsensus(ctx context.Context, agentIDs []string, task map[string]interface{}, strategy string, timeout time.Duration) (*ConsensusRun, error) {
	if c.consensus == nil {
		return nil, fmt.Errorf("coordinator: no consensus engine configured")
	}

	dispatch := c.DispatchParallel(ctx, agentIDs, task, timeout)

	sessionID, err := c.consensus.OpenSession(strategy, agentIDs)
	if err != nil {
		return nil, err
	}

	for _, res := range dispatch {
		if res.Status != StatusCompleted {
			continue
		}
		vote, ok := voteFromResult(res.AgentID, res.Result)
		if !ok {
			c.logger.Debug("dispatch result carries no recommendation",
				zap.String("agent_id", res.AgentID))
			continue
		}
		if err := c.consensus.CastVote(sessionID, vote); err != nil {
			c.logger.Warn("vote rejected",
				zap.String("agent_id", res.AgentID), zap.Error(err))
		}
	}

	outcome, err := c.consensus.Evaluate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &ConsensusRun{SessionID: sessionID, Dispatch: dispatch, Outcome: outcome}, nil
}

func voteFromResult(agentID string, result map[string]interface{}) (communication.Vote, bool) {
	rec, _ := result["recommendation"].(string)
	if rec == "" {
		return communication.Vote{}, false
	}
	vote := communication.Vote{VoterID: agentID, Decision: rec}
	if conf, ok := result["confidence"].(float64); ok {
		vote.Confidence = conf
	}
	if summary, ok := result["summary"].(string); ok {
		vote.Reasoning = summary
	}
	return vote, true
}
