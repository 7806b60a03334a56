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

// Package patterns implements reinforcement-based fraud pattern memory:
// patterns are learned from case outcomes, reinforced on recurrence,
// matched against new cases and corrected by analyst feedback.
package patterns

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

// Outcomes a pattern can encode.
const (
	OutcomeFraudConfirmed      = "FRAUD_CONFIRMED"
	OutcomeLegitimateConfirmed = "LEGITIMATE_CONFIRMED"
	OutcomeSuspicious          = "SUSPICIOUS"
	OutcomeFalsePositive       = "FALSE_POSITIVE"
)

const (
	// similarityThreshold: feature overlap at or above this reinforces
	// an existing pattern instead of creating a new one.
	similarityThreshold = 0.7

	// Confidence clamp after reinforcement or feedback.
	minConfidence = 0.10
	maxConfidence = 0.99

	// maxMatches bounds a match result set.
	maxMatches = 10

	// numberTolerance: numeric feature values compare fuzzily within
	// 20% of the pattern's value.
	numberTolerance = 0.2
)

// outcomeActions maps confirmed outcomes to recommended actions.
var outcomeActions = map[string]string{
	OutcomeFraudConfirmed:      "BLOCK",
	OutcomeSuspicious:          "REVIEW",
	OutcomeLegitimateConfirmed: "APPROVE",
	OutcomeFalsePositive:       "APPROVE",
}

// Pattern is one learned fraud signature.
type Pattern struct {
	PatternID        string                 `json:"patternId"`
	Type             string                 `json:"type"`
	Features         map[string]interface{} `json:"features"`
	Outcome          string                 `json:"outcome"`
	Confidence       float64                `json:"confidence"`
	Occurrences      int                    `json:"occurrences"`
	Reinforcements   int                    `json:"reinforcements"`
	SuccessRate      float64                `json:"successRate"`
	TotalValidations int                    `json:"totalValidations"`
	Source           string                 `json:"source,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// Match is one scored pattern hit.
type Match struct {
	Pattern *Pattern `json:"pattern"`
	Score   float64  `json:"score"`
}

// MatchResult is the outcome of matching a case against the memory.
type MatchResult struct {
	Matches        []Match `json:"matches"`
	TotalMatched   int     `json:"totalMatched"`
	Recommendation string  `json:"recommendation"`
}

// LearnInput describes a pattern observation.
type LearnInput struct {
	Type       string
	Features   map[string]interface{}
	Outcome    string
	Confidence float64
	Source     string
}

// Memory holds learned patterns indexed by type, by normalized
// feature:value key and by outcome. All three indexes mutate under one
// lock so a reader never sees a pattern in some indexes but not others.
type Memory struct {
	mu        sync.RWMutex
	patterns  map[string]*Pattern
	byType    map[string][]string
	byFeature map[string][]string
	byOutcome map[string][]string

	clk    clock.Clock
	logger *zap.Logger
}

// NewMemory creates an empty pattern memory.
func NewMemory(clk clock.Clock, logger *zap.Logger) *Memory {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		patterns:  make(map[string]*Pattern),
		byType:    make(map[string][]string),
		byFeature: make(map[string][]string),
		byOutcome: make(map[string][]string),
		clk:       clk,
		logger:    logger,
	}
}

// LearnPattern records an observation: reinforce the most similar
// existing pattern of the same type, or index a new one.
func (m *Memory) LearnPattern(in LearnInput) (*Pattern, error) {
	if in.Type == "" || len(in.Features) == 0 {
		return nil, fmt.Errorf("patterns: type and features are required")
	}
	if _, ok := outcomeActions[in.Outcome]; !ok {
		return nil, fmt.Errorf("patterns: unknown outcome %q", in.Outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.mostSimilarLocked(in.Type, in.Features); existing != nil {
		m.reinforceLocked(existing, in.Outcome, in.Confidence)
		cp := *existing
		return &cp, nil
	}

	now := m.clk.Now()
	p := &Pattern{
		PatternID:        uuid.New().String(),
		Type:             in.Type,
		Features:         in.Features,
		Outcome:          in.Outcome,
		Confidence:       in.Confidence,
		Occurrences:      1,
		SuccessRate:      initialSuccessRate(in.Outcome),
		TotalValidations: 1,
		Source:           in.Source,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.patterns[p.PatternID] = p
	m.byType[p.Type] = append(m.byType[p.Type], p.PatternID)
	m.byOutcome[p.Outcome] = append(m.byOutcome[p.Outcome], p.PatternID)
	for name, value := range p.Features {
		key := name + ":" + normalizeValue(value)
		m.byFeature[key] = append(m.byFeature[key], p.PatternID)
	}

	m.logger.Debug("pattern learned",
		zap.String("pattern_id", p.PatternID),
		zap.String("type", p.Type),
		zap.String("outcome", p.Outcome))
	cp := *p
	return &cp, nil
}

func initialSuccessRate(outcome string) float64 {
	if outcome == OutcomeFraudConfirmed || outcome == OutcomeLegitimateConfirmed {
		return 1
	}
	return 0
}

// mostSimilarLocked returns the same-type pattern with the highest
// feature overlap at or above the similarity threshold.
func (m *Memory) mostSimilarLocked(ptype string, features map[string]interface{}) *Pattern {
	var best *Pattern
	bestOverlap := 0.0
	for _, id := range m.byType[ptype] {
		p := m.patterns[id]
		overlap := featureOverlap(p.Features, features)
		if overlap >= similarityThreshold && overlap > bestOverlap {
			best = p
			bestOverlap = overlap
		}
	}
	return best
}

// featureOverlap is the share of pattern features whose normalized
// values match the candidate's.
func featureOverlap(pattern, candidate map[string]interface{}) float64 {
	if len(pattern) == 0 {
		return 0
	}
	matched := 0
	for name, pv := range pattern {
		cv, ok := candidate[name]
		if ok && normalizeValue(pv) == normalizeValue(cv) {
			matched++
		}
	}
	return float64(matched) / float64(len(pattern))
}

// ReinforcePattern strengthens an existing pattern with a new observation.
func (m *Memory) ReinforcePattern(patternID, outcome string, newConfidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[patternID]
	if !ok {
		return fmt.Errorf("patterns: pattern %s not found", patternID)
	}
	m.reinforceLocked(p, outcome, newConfidence)
	return nil
}

func (m *Memory) reinforceLocked(p *Pattern, outcome string, newConfidence float64) {
	p.Occurrences++
	p.Reinforcements++

	// Running mean over validations; this observation validates iff the
	// outcome is confirmed either way.
	corrects := p.SuccessRate * float64(p.TotalValidations)
	p.TotalValidations++
	corrects += initialSuccessRate(outcome)
	p.SuccessRate = corrects / float64(p.TotalValidations)

	p.Confidence = clampConfidence(0.7*p.Confidence + 0.3*newConfidence)
	p.UpdatedAt = m.clk.Now()
}

func clampConfidence(c float64) float64 {
	return math.Max(minConfidence, math.Min(maxConfidence, c))
}

// MatchPatterns scores every pattern against case features and returns
// the strongest matches with a weighted-majority recommendation.
func (m *Memory) MatchPatterns(caseFeatures map[string]interface{}) *MatchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, p := range m.patterns {
		score := matchScore(p.Features, caseFeatures)
		if score <= 0 {
			continue
		}
		cp := *p
		matches = append(matches, Match{Pattern: &cp, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		ri := matches[i].Score * matches[i].Pattern.Confidence * matches[i].Pattern.SuccessRate
		rj := matches[j].Score * matches[j].Pattern.Confidence * matches[j].Pattern.SuccessRate
		return ri > rj
	})

	total := len(matches)
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	return &MatchResult{
		Matches:        matches,
		TotalMatched:   total,
		Recommendation: recommend(matches),
	}
}

// matchScore averages per-feature similarity over the pattern's features.
func matchScore(patternFeatures, caseFeatures map[string]interface{}) float64 {
	if len(patternFeatures) == 0 {
		return 0
	}
	sum := 0.0
	for name, pv := range patternFeatures {
		cv, ok := caseFeatures[name]
		if !ok {
			continue
		}
		sum += featureSimilarity(pv, cv)
	}
	return sum / float64(len(patternFeatures))
}

func featureSimilarity(pv, cv interface{}) float64 {
	switch p := pv.(type) {
	case bool:
		if c, ok := cv.(bool); ok && c == p {
			return 1
		}
		return 0
	case string:
		if c, ok := cv.(string); ok && strings.EqualFold(strings.TrimSpace(p), strings.TrimSpace(c)) {
			return 1
		}
		return 0
	case map[string]interface{}:
		// Range feature {min,max}: in-range scores 1.
		min, minOK := toFloat(p["min"])
		max, maxOK := toFloat(p["max"])
		c, cOK := toFloat(cv)
		if minOK && maxOK && cOK && c >= min && c <= max {
			return 1
		}
		return 0
	default:
		pf, pOK := toFloat(pv)
		cf, cOK := toFloat(cv)
		if !pOK || !cOK {
			return 0
		}
		diff := math.Abs(pf - cf)
		tolerance := numberTolerance * math.Abs(pf)
		if tolerance == 0 {
			if diff == 0 {
				return 1
			}
			return 0
		}
		if diff > tolerance {
			return 0
		}
		return 1 - diff/tolerance
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// recommend takes the weighted-majority outcome over the matches.
func recommend(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}
	weights := make(map[string]float64)
	for _, m := range matches {
		weights[m.Pattern.Outcome] += m.Score * m.Pattern.Confidence
	}
	bestOutcome := ""
	bestWeight := 0.0
	for outcome, w := range weights {
		if w > bestWeight {
			bestOutcome = outcome
			bestWeight = w
		}
	}
	return outcomeActions[bestOutcome]
}

// ProvideFeedback folds an analyst verdict back into a pattern.
func (m *Memory) ProvideFeedback(patternID, actualOutcome string, wasCorrect bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[patternID]
	if !ok {
		return fmt.Errorf("patterns: pattern %s not found", patternID)
	}

	corrects := p.SuccessRate * float64(p.TotalValidations)
	p.TotalValidations++
	if wasCorrect {
		corrects++
		p.Confidence = math.Min(p.Confidence*1.05, maxConfidence)
	} else {
		p.Confidence = math.Max(p.Confidence*0.9, minConfidence)
	}
	p.SuccessRate = corrects / float64(p.TotalValidations)
	p.UpdatedAt = m.clk.Now()

	m.logger.Debug("pattern feedback",
		zap.String("pattern_id", patternID),
		zap.String("actual_outcome", actualOutcome),
		zap.Bool("was_correct", wasCorrect))
	return nil
}

// Get returns a copy of one pattern.
func (m *Memory) Get(patternID string) (*Pattern, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patterns[patternID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// ByOutcome returns the patterns recorded for one outcome.
func (m *Memory) ByOutcome(outcome string) []*Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Pattern
	for _, id := range m.byOutcome[outcome] {
		cp := *m.patterns[id]
		out = append(out, &cp)
	}
	return out
}

// TopPatterns returns the n highest-confidence patterns.
func (m *Memory) TopPatterns(n int) []*Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Confidence > all[j].Confidence })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Count returns the number of stored patterns.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns)
}

// normalizeValue maps a feature value to its index key: booleans to
// "true"/"false", numbers to buckets of 10, strings to trim+lower.
func normalizeValue(v interface{}) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return strings.ToLower(strings.TrimSpace(val))
	default:
		if f, ok := toFloat(v); ok {
			return fmt.Sprintf("%g", math.Round(f/10)*10)
		}
		return fmt.Sprintf("%v", v)
	}
}
