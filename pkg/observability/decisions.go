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

package observability

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/kv"
)

// Decision is one audit entry: what an agent decided and why.
type Decision struct {
	DecisionID     string    `json:"decisionId"`
	AgentID        string    `json:"agentId"`
	TraceID        string    `json:"traceId"`
	Subject        string    `json:"subject"` // seller, transaction or case id
	Recommendation string    `json:"recommendation"`
	RiskScore      float64   `json:"riskScore"`
	Confidence     float64   `json:"confidence"`
	Summary        string    `json:"summary"`
	KeyFindings    []string  `json:"keyFindings,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DecisionLog writes audit entries to the agent_decisions table.
// Logging failures are reported but never propagated: the audit trail is
// best-effort, the decision itself is not.
type DecisionLog struct {
	store  kv.Store
	logger *zap.Logger
}

// NewDecisionLog creates a decision logger. store may be nil (log-only mode).
func NewDecisionLog(store kv.Store, logger *zap.Logger) *DecisionLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionLog{store: store, logger: logger}
}

// Record persists a decision and returns its id.
func (d *DecisionLog) Record(ctx context.Context, dec Decision) string {
	if dec.DecisionID == "" {
		dec.DecisionID = uuid.New().String()
	}
	if dec.CreatedAt.IsZero() {
		dec.CreatedAt = time.Now()
	}

	d.logger.Info("decision recorded",
		zap.String("agent_id", dec.AgentID),
		zap.String("recommendation", dec.Recommendation),
		zap.Float64("risk_score", dec.RiskScore),
		zap.Float64("confidence", dec.Confidence))

	if d.store == nil {
		return dec.DecisionID
	}

	blob, err := json.Marshal(dec)
	if err != nil {
		d.logger.Warn("decision marshal failed", zap.Error(err))
		return dec.DecisionID
	}
	if err := d.store.Insert(ctx, kv.TableDecisions, dec.AgentID, dec.DecisionID, blob); err != nil {
		d.logger.Warn("decision persist failed", zap.Error(err))
	}
	return dec.DecisionID
}

// ByAgent returns the persisted decisions for an agent, oldest first.
func (d *DecisionLog) ByAgent(ctx context.Context, agentID string, limit int) ([]Decision, error) {
	if d.store == nil {
		return nil, nil
	}
	records, err := d.store.GetAll(ctx, kv.TableDecisions, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []Decision
	for _, rec := range records {
		if rec.PK != agentID {
			continue
		}
		var dec Decision
		if err := json.Unmarshal(rec.Blob, &dec); err != nil {
			continue
		}
		out = append(out, dec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
