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

// Package agent implements the reasoning loop: think, plan, act,
// observe, reflect, learn. BaseAgent runs single turns on demand;
// AutonomousAgent schedules them from event pressure and intervals.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/sentinel/pkg/patterns"
	"github.com/teradata-labs/sentinel/pkg/tools"
)

// Agent statuses.
const (
	StatusIdle       = "Idle"
	StatusBusy       = "Busy"
	StatusEvaluating = "Evaluating"
)

// Chain step kinds.
const (
	StepObservation = "observation"
	StepHypothesis  = "hypothesis"
	StepEvidence    = "evidence"
	StepAnalysis    = "analysis"
	StepInference   = "inference"
	StepConclusion  = "conclusion"
)

// Chain step confidence levels.
const (
	ConfidenceSpeculative = "Speculative"
	ConfidencePossible    = "Possible"
	ConfidenceLikely      = "Likely"
	ConfidenceCertain     = "Certain"
)

// Action is one planned step.
type Action struct {
	Type      string                 `json:"type"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Rationale string                 `json:"rationale,omitempty"`
}

// ExecutedAction pairs an action with its result.
type ExecutedAction struct {
	Action Action        `json:"action"`
	Result *tools.Result `json:"result"`
}

// Succeeded reports whether the action's result counts as a success.
func (e ExecutedAction) Succeeded() bool {
	return e.Result != nil && e.Result.Success
}

// Observation is the synthesized decision of one turn.
type Observation struct {
	Summary        string   `json:"summary"`
	RiskScore      float64  `json:"riskScore"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	KeyFindings    []string `json:"keyFindings,omitempty"`
	Success        bool     `json:"success"`
	Revised        bool     `json:"revised,omitempty"`
}

// Thought is the record of one reasoning turn.
type Thought struct {
	TraceID        string                 `json:"traceId"`
	Timestamp      time.Time              `json:"timestamp"`
	Input          map[string]interface{} `json:"input"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Reasoning      []string               `json:"reasoning,omitempty"`
	Actions        []ExecutedAction       `json:"actions"`
	Result         *Observation           `json:"result,omitempty"`
	ChainOfThought *Chain                 `json:"chainOfThought,omitempty"`
	Error          string                 `json:"error,omitempty"`
	PatternMatches *patterns.MatchResult  `json:"patternMatches,omitempty"`
}

// ChainStep is one immutable step in a chain of thought.
type ChainStep struct {
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Confidence string    `json:"confidence,omitempty"`
	At         time.Time `json:"at"`
}

// Chain is an append-only reasoning trace. It terminates on the first
// conclusion; later appends are rejected.
type Chain struct {
	ChainID string      `json:"chainId"`
	Steps   []ChainStep `json:"steps"`

	mu   sync.Mutex
	done bool
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{ChainID: uuid.New().String()}
}

// Add appends a step. Adding after a conclusion fails.
func (c *Chain) Add(kind, text, confidence string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return fmt.Errorf("chain %s already concluded", c.ChainID)
	}
	c.Steps = append(c.Steps, ChainStep{Kind: kind, Text: text, Confidence: confidence, At: at})
	if kind == StepConclusion {
		c.done = true
	}
	return nil
}

// Concluded reports whether a conclusion was recorded.
func (c *Chain) Concluded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Len returns the number of recorded steps.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Steps)
}

// thoughtLog keeps the newest entries up to its cap.
type thoughtLog struct {
	mu      sync.Mutex
	max     int
	entries []*Thought
}

func newThoughtLog(max int) *thoughtLog {
	return &thoughtLog{max: max}
}

func (l *thoughtLog) append(t *Thought) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, t)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

func (l *thoughtLog) last() *Thought {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

func (l *thoughtLog) snapshot() []*Thought {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Thought(nil), l.entries...)
}
