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

// Package agents provides the specialized agents built on the
// reasoning-loop contract: seller onboarding review and policy
// evolution.
package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/agent"
	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/config"
	"github.com/teradata-labs/sentinel/pkg/tools"
)

// Onboarding decision topics.
const (
	TopicAutoApproved = "onboarding:auto-approved"
	TopicAutoRejected = "onboarding:auto-rejected"
	TopicEscalated    = "onboarding:escalated"
)

// SellerDirectory resolves seller profiles for review tools.
type SellerDirectory interface {
	Seller(ctx context.Context, sellerID string) (map[string]interface{}, error)
}

// OnboardingConfig sets the autonomy thresholds (0..100 risk scale)
// and scan cadence.
type OnboardingConfig struct {
	AutoApproveMaxRisk    float64
	AutoRejectMinRisk     float64
	EscalateMinRisk       float64
	ScanInterval          time.Duration
	AccelerationThreshold int
}

// Onboarding reviews newly registered sellers. Cycles trigger from
// seller:registered events; decisions inside the autonomy thresholds
// are published without human involvement, the rest escalate.
type Onboarding struct {
	*agent.AutonomousAgent
	events *bus.EventBus
	logger *zap.Logger

	thmu       sync.RWMutex
	thresholds config.Thresholds
}

// NewOnboarding builds the onboarding agent. directory may be nil; the
// fetch_seller tool then reports profiles unavailable.
func NewOnboarding(deps agent.Deps, directory SellerDirectory, cfg OnboardingConfig) (*Onboarding, error) {
	if cfg.AutoApproveMaxRisk == 0 {
		cfg.AutoApproveMaxRisk = 30
	}
	if cfg.AutoRejectMinRisk == 0 {
		cfg.AutoRejectMinRisk = 85
	}
	if cfg.EscalateMinRisk == 0 {
		cfg.EscalateMinRisk = 60
	}

	base, err := agent.NewBaseAgent(agent.Config{
		AgentID:      newAgentID(),
		Name:         "Seller Onboarding",
		Role:         "a seller onboarding reviewer in a fraud and risk decisioning platform",
		Capabilities: []string{"seller_onboarding", "kyc_review"},
		Domain:       "seller_onboarding",
		SystemPrompt: "Review newly registered sellers for fraud signals before they can transact.",
	}, deps)
	if err != nil {
		return nil, err
	}
	if err := base.RegisterTool(fetchSellerTool(directory)); err != nil {
		return nil, err
	}

	o := &Onboarding{
		events: deps.Bus,
		logger: base.Logger(),
		thresholds: config.Thresholds{
			AutoApproveMaxRisk: cfg.AutoApproveMaxRisk,
			AutoRejectMinRisk:  cfg.AutoRejectMinRisk,
			EscalateMinRisk:    cfg.EscalateMinRisk,
		},
	}
	o.AutonomousAgent, err = agent.NewAutonomousAgent(base, agent.AutonomousConfig{
		ScanInterval:          cfg.ScanInterval,
		AccelerationThreshold: cfg.AccelerationThreshold,
		SubscribedTopics:      []string{"seller:registered"},
		BuildScanInput:        buildOnboardingInput,
		PostCycle:             o.applyThresholds,
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func fetchSellerTool(directory SellerDirectory) tools.Tool {
	return tools.Tool{
		Name:        "fetch_seller",
		Description: "load a seller's registration profile",
		Handler: func(ctx context.Context, params map[string]interface{}) (*tools.Result, error) {
			sellerID, _ := params["sellerId"].(string)
			if sellerID == "" {
				return &tools.Result{Success: false, Error: "sellerId is required"}, nil
			}
			if directory == nil {
				return &tools.Result{Success: false, Error: "seller directory unavailable"}, nil
			}
			profile, err := directory.Seller(ctx, sellerID)
			if err != nil {
				return &tools.Result{Success: false, Error: err.Error()}, nil
			}
			return &tools.Result{Success: true, Data: profile}, nil
		},
	}
}

// buildOnboardingInput flattens the buffered registrations into one
// review task. The first seller id rides along as the primary subject.
func buildOnboardingInput(events []bus.Event) map[string]interface{} {
	sellerIDs := make([]interface{}, 0, len(events))
	for _, evt := range events {
		if id, ok := evt.Payload["sellerId"].(string); ok && id != "" {
			sellerIDs = append(sellerIDs, id)
		}
	}
	input := map[string]interface{}{
		"task":        "review newly registered sellers",
		"sellerIds":   sellerIDs,
		"sellerCount": float64(len(sellerIDs)),
	}
	if len(sellerIDs) > 0 {
		input["sellerId"] = sellerIDs[0]
	}
	return input
}

// Thresholds returns the autonomy bands currently in effect.
func (o *Onboarding) Thresholds() config.Thresholds {
	o.thmu.RLock()
	defer o.thmu.RUnlock()
	return o.thresholds
}

// SetThresholds swaps the autonomy bands, taking effect on the next
// cycle. Invalid bands are rejected and the current ones stay.
func (o *Onboarding) SetThresholds(th config.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	o.thmu.Lock()
	o.thresholds = th
	o.thmu.Unlock()
	o.logger.Info("autonomy thresholds updated",
		zap.Float64("auto_approve_max_risk", th.AutoApproveMaxRisk),
		zap.Float64("escalate_min_risk", th.EscalateMinRisk),
		zap.Float64("auto_reject_min_risk", th.AutoRejectMinRisk))
	return nil
}

// applyThresholds turns a cycle's decision into an autonomy event.
func (o *Onboarding) applyThresholds(thought *agent.Thought) {
	if o.events == nil || thought.Result == nil || thought.Error != "" {
		return
	}
	th := o.Thresholds()
	risk := thought.Result.RiskScore
	payload := map[string]interface{}{
		"agentId":        o.ID(),
		"sellerId":       thought.Input["sellerId"],
		"riskScore":      risk,
		"recommendation": thought.Result.Recommendation,
		"summary":        thought.Result.Summary,
	}

	switch {
	case risk >= th.AutoRejectMinRisk:
		o.events.Publish(TopicAutoRejected, payload)
	case risk >= th.EscalateMinRisk:
		o.events.Publish(TopicEscalated, payload)
	case risk <= th.AutoApproveMaxRisk:
		o.events.Publish(TopicAutoApproved, payload)
	default:
		o.events.Publish(TopicEscalated, payload)
	}
}

// newAgentID mints an AGENT-<hex8> identifier.
func newAgentID() string {
	return fmt.Sprintf("AGENT-%s", uuid.New().String()[:8])
}
