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

package learning

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

const (
	// maxPredictionLog bounds the per-agent prediction log.
	maxPredictionLog = 500

	// recentWindow is the sample compared against the baseline.
	recentWindow = 20

	// dropThreshold: recent accuracy this far below baseline flags a drop.
	dropThreshold = 0.15

	// minBaseline observations before drop detection activates.
	minBaseline = 30
)

// Prediction is one logged agent prediction awaiting or holding an outcome.
type Prediction struct {
	PredictionID string    `json:"predictionId"`
	AgentID      string    `json:"agentId"`
	Subject      string    `json:"subject"`
	Predicted    string    `json:"predicted"`
	Confidence   float64   `json:"confidence"`
	Actual       string    `json:"actual,omitempty"`
	Resolved     bool      `json:"resolved"`
	Correct      bool      `json:"correct"`
	CreatedAt    time.Time `json:"createdAt"`
	ResolvedAt   time.Time `json:"resolvedAt,omitempty"`
}

// DriftReport describes an agent's accuracy trend.
type DriftReport struct {
	AgentID          string  `json:"agentId"`
	BaselineAccuracy float64 `json:"baselineAccuracy"`
	RecentAccuracy   float64 `json:"recentAccuracy"`
	ResolvedCount    int     `json:"resolvedCount"`
	Dropped          bool    `json:"dropped"`
}

// SelfCorrection logs predictions, records their outcomes and flags
// agents whose recent accuracy has fallen below their baseline.
type SelfCorrection struct {
	mu         sync.Mutex
	byAgent    map[string][]*Prediction
	byID       map[string]*Prediction
	calibrator *Calibrator

	clk    clock.Clock
	logger *zap.Logger
}

// NewSelfCorrection creates a self-correction log. calibrator may be
// nil; when set, resolved predictions feed it.
func NewSelfCorrection(calibrator *Calibrator, clk clock.Clock, logger *zap.Logger) *SelfCorrection {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelfCorrection{
		byAgent:    make(map[string][]*Prediction),
		byID:       make(map[string]*Prediction),
		calibrator: calibrator,
		clk:        clk,
		logger:     logger,
	}
}

// LogPrediction records a prediction and returns its id.
func (s *SelfCorrection) LogPrediction(agentID, subject, predicted string, confidence float64) string {
	p := &Prediction{
		PredictionID: uuid.New().String(),
		AgentID:      agentID,
		Subject:      subject,
		Predicted:    predicted,
		Confidence:   confidence,
		CreatedAt:    s.clk.Now(),
	}

	s.mu.Lock()
	s.byID[p.PredictionID] = p
	log := append(s.byAgent[agentID], p)
	if len(log) > maxPredictionLog {
		for _, old := range log[:len(log)-maxPredictionLog] {
			if !old.Resolved {
				delete(s.byID, old.PredictionID)
			}
		}
		log = log[len(log)-maxPredictionLog:]
	}
	s.byAgent[agentID] = log
	s.mu.Unlock()

	return p.PredictionID
}

// RecordOutcome resolves a prediction against the actual outcome.
// Returns false when the prediction is unknown or already resolved.
func (s *SelfCorrection) RecordOutcome(ctx context.Context, predictionID, actual string) bool {
	s.mu.Lock()
	p, ok := s.byID[predictionID]
	if !ok || p.Resolved {
		s.mu.Unlock()
		return false
	}
	p.Actual = actual
	p.Resolved = true
	p.Correct = p.Predicted == actual
	p.ResolvedAt = s.clk.Now()
	agentID := p.AgentID
	confidence := p.Confidence
	correct := p.Correct
	s.mu.Unlock()

	if s.calibrator != nil {
		s.calibrator.RecordPrediction(ctx, predictionID, confidence, correct)
	}

	s.logger.Debug("prediction resolved",
		zap.String("agent_id", agentID),
		zap.String("prediction_id", predictionID),
		zap.Bool("correct", correct))
	return true
}

// CheckDrift compares the agent's recent accuracy to its baseline.
func (s *SelfCorrection) CheckDrift(agentID string) DriftReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolved []*Prediction
	for _, p := range s.byAgent[agentID] {
		if p.Resolved {
			resolved = append(resolved, p)
		}
	}

	report := DriftReport{AgentID: agentID, ResolvedCount: len(resolved)}
	if len(resolved) < minBaseline {
		return report
	}

	baseline := resolved[:len(resolved)-recentWindow]
	recent := resolved[len(resolved)-recentWindow:]
	report.BaselineAccuracy = accuracy(baseline)
	report.RecentAccuracy = accuracy(recent)
	report.Dropped = report.BaselineAccuracy-report.RecentAccuracy > dropThreshold

	if report.Dropped {
		s.logger.Warn("accuracy drop detected",
			zap.String("agent_id", agentID),
			zap.Float64("baseline", report.BaselineAccuracy),
			zap.Float64("recent", report.RecentAccuracy))
	}
	return report
}

func accuracy(predictions []*Prediction) float64 {
	if len(predictions) == 0 {
		return 0
	}
	correct := 0
	for _, p := range predictions {
		if p.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(predictions))
}
