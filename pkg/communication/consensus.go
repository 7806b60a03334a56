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
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/memory"
)

// Consensus strategies.
const (
	StrategyMajority  = "majority"
	StrategyUnanimous = "unanimous"
	StrategyWeighted  = "weighted"
)

// weightedShare: the winning decision's confidence mass must exceed
// this share of the total for weighted consensus.
const weightedShare = 0.6

// disagreementImportance for correction memories written on failure.
const disagreementImportance = 0.7

// Vote is one voter's position.
type Vote struct {
	VoterID    string  `json:"voterId"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Outcome is the evaluated result of a session.
type Outcome struct {
	Consensus bool    `json:"consensus"`
	Decision  string  `json:"decision,omitempty"`
	Votes     []Vote  `json:"votes"`
	Support   float64 `json:"support"` // winner's vote count or weight share
}

type session struct {
	strategy string
	required map[string]struct{}
	votes    []Vote
	voted    map[string]struct{}
	closed   bool
	outcome  *Outcome
}

// CorrectionWriter records disagreement corrections for voters.
// Satisfied by *memory.Store.
type CorrectionWriter interface {
	SaveLongTerm(ctx context.Context, agentID, memType string, content map[string]interface{}, importance float64) (string, error)
}

// Consensus runs voting sessions between agents.
type Consensus struct {
	mu       sync.Mutex
	sessions map[string]*session

	corrections CorrectionWriter
	logger      *zap.Logger
}

// NewConsensus creates a consensus engine. corrections may be nil.
func NewConsensus(corrections CorrectionWriter, logger *zap.Logger) *Consensus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consensus{
		sessions:    make(map[string]*session),
		corrections: corrections,
		logger:      logger,
	}
}

// OpenSession starts a voting session and returns its id.
func (c *Consensus) OpenSession(strategy string, requiredVoters []string) (string, error) {
	switch strategy {
	case StrategyMajority, StrategyUnanimous, StrategyWeighted:
	default:
		return "", fmt.Errorf("consensus: unknown strategy %q", strategy)
	}
	if len(requiredVoters) == 0 {
		return "", fmt.Errorf("consensus: at least one voter is required")
	}

	required := make(map[string]struct{}, len(requiredVoters))
	for _, v := range requiredVoters {
		required[v] = struct{}{}
	}

	id := uuid.New().String()
	c.mu.Lock()
	c.sessions[id] = &session{
		strategy: strategy,
		required: required,
		voted:    make(map[string]struct{}),
	}
	c.mu.Unlock()
	return id, nil
}

// CastVote records a voter's position. A voter votes at most once and
// only while the session is open.
func (c *Consensus) CastVote(sessionID string, vote Vote) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sessionID]
	if !ok {
		return fmt.Errorf("consensus: session %s not found", sessionID)
	}
	if s.closed {
		return fmt.Errorf("consensus: session %s is closed", sessionID)
	}
	if _, required := s.required[vote.VoterID]; !required {
		return fmt.Errorf("consensus: %s is not a voter in session %s", vote.VoterID, sessionID)
	}
	if _, already := s.voted[vote.VoterID]; already {
		return fmt.Errorf("consensus: %s already voted in session %s", vote.VoterID, sessionID)
	}

	s.voted[vote.VoterID] = struct{}{}
	s.votes = append(s.votes, vote)
	return nil
}

// Evaluate closes the session and computes the outcome. A second
// evaluate returns the recorded outcome unchanged.
func (c *Consensus) Evaluate(ctx context.Context, sessionID string) (*Outcome, error) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("consensus: session %s not found", sessionID)
	}
	if s.closed {
		outcome := s.outcome
		c.mu.Unlock()
		return outcome, nil
	}
	s.closed = true

	outcome := evaluate(s)
	s.outcome = outcome
	votes := append([]Vote(nil), s.votes...)
	c.mu.Unlock()

	c.logger.Info("consensus evaluated",
		zap.String("session_id", sessionID),
		zap.String("strategy", s.strategy),
		zap.Bool("consensus", outcome.Consensus),
		zap.String("decision", outcome.Decision))

	if !outcome.Consensus {
		c.recordDisagreement(ctx, sessionID, votes)
	}
	return outcome, nil
}

func evaluate(s *session) *Outcome {
	outcome := &Outcome{Votes: append([]Vote(nil), s.votes...)}
	if len(s.votes) == 0 {
		return outcome
	}

	counts := make(map[string]int)
	weights := make(map[string]float64)
	totalWeight := 0.0
	for _, v := range s.votes {
		counts[v.Decision]++
		weights[v.Decision] += v.Confidence
		totalWeight += v.Confidence
	}

	switch s.strategy {
	case StrategyMajority:
		n := len(s.required)
		for decision, count := range counts {
			if count*2 > n {
				outcome.Consensus = true
				outcome.Decision = decision
				outcome.Support = float64(count)
				break
			}
		}

	case StrategyUnanimous:
		if len(counts) == 1 && len(s.votes) == len(s.required) {
			outcome.Consensus = true
			outcome.Decision = s.votes[0].Decision
			outcome.Support = float64(len(s.votes))
		}

	case StrategyWeighted:
		if totalWeight > 0 {
			for decision, w := range weights {
				if w/totalWeight > weightedShare {
					outcome.Consensus = true
					outcome.Decision = decision
					outcome.Support = w / totalWeight
					break
				}
			}
		}
	}
	return outcome
}

// recordDisagreement writes a correction memory for every voter so the
// split shows up in their future context.
func (c *Consensus) recordDisagreement(ctx context.Context, sessionID string, votes []Vote) {
	if c.corrections == nil {
		return
	}
	summary := make([]map[string]interface{}, 0, len(votes))
	for _, v := range votes {
		summary = append(summary, map[string]interface{}{
			"voterId":    v.VoterID,
			"decision":   v.Decision,
			"confidence": v.Confidence,
		})
	}
	for _, v := range votes {
		content := map[string]interface{}{
			"event":     "consensus_disagreement",
			"sessionId": sessionID,
			"ownVote":   v.Decision,
			"votes":     summary,
		}
		if _, err := c.corrections.SaveLongTerm(ctx, v.VoterID, memory.TypeCorrection, content, disagreementImportance); err != nil {
			c.logger.Warn("disagreement memory failed",
				zap.String("voter_id", v.VoterID), zap.Error(err))
		}
	}
}
