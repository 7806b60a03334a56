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

package agents

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/agent"
	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/patterns"
)

// Policy evolution topics.
const (
	TopicRuleProposed  = "policy-evolution:rule-proposed"
	TopicCycleComplete = "policy-evolution:cycle-complete"
)

// Promotion bar for turning a learned pattern into a rule proposal.
const (
	ruleMinConfidence  = 0.8
	ruleMinSuccessRate = 0.7
	ruleMinValidations = 3
)

// RuleProposal is a candidate decisioning rule distilled from a
// validated pattern. Proposals are advisory; a human promotes them.
type RuleProposal struct {
	RuleID     string                 `json:"ruleId"`
	PatternID  string                 `json:"patternId"`
	Condition  map[string]interface{} `json:"condition"`
	Action     string                 `json:"action"`
	Confidence float64                `json:"confidence"`
	ProposedAt time.Time              `json:"proposedAt"`
}

// PolicyEvolutionConfig sets the scan cadence.
type PolicyEvolutionConfig struct {
	ScanInterval          time.Duration
	AccelerationThreshold int
}

// PolicyEvolution watches feedback and closed cases, then proposes
// rules from patterns that have proven themselves. Each pattern is
// proposed at most once.
type PolicyEvolution struct {
	*agent.AutonomousAgent
	patterns *patterns.Memory
	events   *bus.EventBus
	logger   *zap.Logger

	mu       sync.Mutex
	proposed map[string]struct{} // pattern id -> already proposed
}

// NewPolicyEvolution builds the policy evolution agent.
func NewPolicyEvolution(deps agent.Deps, cfg PolicyEvolutionConfig) (*PolicyEvolution, error) {
	base, err := agent.NewBaseAgent(agent.Config{
		AgentID:      newAgentID(),
		Name:         "Policy Evolution",
		Role:         "a policy analyst distilling fraud decisioning rules from validated patterns",
		Capabilities: []string{"policy_evolution", "rule_mining"},
		Domain:       "policy_evolution",
		SystemPrompt: "Identify validated fraud patterns that deserve promotion to standing rules.",
	}, deps)
	if err != nil {
		return nil, err
	}

	p := &PolicyEvolution{
		patterns: deps.Patterns,
		events:   deps.Bus,
		logger:   base.Logger(),
		proposed: make(map[string]struct{}),
	}
	p.AutonomousAgent, err = agent.NewAutonomousAgent(base, agent.AutonomousConfig{
		ScanInterval:          cfg.ScanInterval,
		AccelerationThreshold: cfg.AccelerationThreshold,
		SubscribedTopics:      []string{"agent:feedback", "case:closed"},
		BuildScanInput:        buildPolicyInput,
		PostCycle:             func(*agent.Thought) { p.ProposeRules() },
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func buildPolicyInput(events []bus.Event) map[string]interface{} {
	return map[string]interface{}{
		"task":          "evaluate pattern memory for rule candidates",
		"feedbackCount": float64(len(events)),
	}
}

// ProposeRules emits one rule-proposed event per newly qualified
// pattern and a cycle-complete event with the totals.
func (p *PolicyEvolution) ProposeRules() []RuleProposal {
	if p.patterns == nil {
		return nil
	}

	var proposals []RuleProposal
	for _, pat := range p.patterns.TopPatterns(50) {
		if pat.Confidence < ruleMinConfidence ||
			pat.SuccessRate < ruleMinSuccessRate ||
			pat.TotalValidations < ruleMinValidations {
			continue
		}
		p.mu.Lock()
		_, seen := p.proposed[pat.PatternID]
		if !seen {
			p.proposed[pat.PatternID] = struct{}{}
		}
		p.mu.Unlock()
		if seen {
			continue
		}

		proposal := RuleProposal{
			RuleID:     uuid.New().String(),
			PatternID:  pat.PatternID,
			Condition:  pat.Features,
			Action:     actionForOutcome(pat.Outcome),
			Confidence: pat.Confidence,
			ProposedAt: time.Now(),
		}
		proposals = append(proposals, proposal)
		p.logger.Info("rule proposed",
			zap.String("rule_id", proposal.RuleID),
			zap.String("pattern_id", pat.PatternID),
			zap.String("action", proposal.Action))

		if p.events != nil {
			p.events.Publish(TopicRuleProposed, map[string]interface{}{
				"agentId":    p.ID(),
				"ruleId":     proposal.RuleID,
				"patternId":  proposal.PatternID,
				"condition":  proposal.Condition,
				"action":     proposal.Action,
				"confidence": proposal.Confidence,
			})
		}
	}

	if p.events != nil {
		p.events.Publish(TopicCycleComplete, map[string]interface{}{
			"agentId":  p.ID(),
			"proposed": len(proposals),
		})
	}
	return proposals
}

func actionForOutcome(outcome string) string {
	switch outcome {
	case patterns.OutcomeFraudConfirmed:
		return "BLOCK"
	case patterns.OutcomeSuspicious:
		return "REVIEW"
	default:
		return "APPROVE"
	}
}
