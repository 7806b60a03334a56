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
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/kv"
)

// TopicFeedback carries analyst verdicts on past agent decisions.
const TopicFeedback = "agent:feedback"

// Feedback is one analyst verdict on a decision an agent made.
type Feedback struct {
	FeedbackID string    `json:"feedbackId"`
	AgentID    string    `json:"agentId"`
	Subject    string    `json:"subject"` // seller, transaction or case id
	Outcome    string    `json:"outcome"` // the confirmed outcome
	Correct    bool      `json:"correct"` // whether the agent had it right
	Notes      string    `json:"notes,omitempty"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FeedbackLog persists analyst feedback to the agent_feedback table.
// Like the decision log, persistence is best-effort: a write failure is
// reported, never propagated.
type FeedbackLog struct {
	store  kv.Store
	clk    clock.Clock
	logger *zap.Logger
}

// NewFeedbackLog creates a feedback logger. store may be nil (log-only
// mode).
func NewFeedbackLog(store kv.Store, clk clock.Clock, logger *zap.Logger) *FeedbackLog {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackLog{store: store, clk: clk, logger: logger}
}

// Record persists one feedback entry and returns its id.
func (l *FeedbackLog) Record(ctx context.Context, fb Feedback) string {
	if fb.FeedbackID == "" {
		fb.FeedbackID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = l.clk.Now()
	}

	l.logger.Info("feedback recorded",
		zap.String("agent_id", fb.AgentID),
		zap.String("subject", fb.Subject),
		zap.String("outcome", fb.Outcome),
		zap.Bool("correct", fb.Correct))

	if l.store == nil {
		return fb.FeedbackID
	}
	blob, err := json.Marshal(fb)
	if err != nil {
		l.logger.Warn("feedback marshal failed", zap.Error(err))
		return fb.FeedbackID
	}
	if err := l.store.Insert(ctx, kv.TableFeedback, fb.AgentID, fb.FeedbackID, blob); err != nil {
		l.logger.Warn("feedback persist failed", zap.Error(err))
	}
	return fb.FeedbackID
}

// ByAgent returns the persisted feedback for an agent, oldest first.
func (l *FeedbackLog) ByAgent(ctx context.Context, agentID string, limit int) ([]Feedback, error) {
	if l.store == nil {
		return nil, nil
	}
	records, err := l.store.GetAll(ctx, kv.TableFeedback, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []Feedback
	for _, rec := range records {
		if rec.PK != agentID {
			continue
		}
		var fb Feedback
		if err := json.Unmarshal(rec.Blob, &fb); err != nil {
			continue
		}
		out = append(out, fb)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Subscribe persists every feedback event arriving on the bus until
// the returned unsubscribe is called.
func (l *FeedbackLog) Subscribe(events *bus.EventBus) (unsubscribe func()) {
	return events.Subscribe(TopicFeedback, func(evt bus.Event) {
		fb := Feedback{
			AgentID: payloadString(evt.Payload, "agentId"),
			Subject: payloadString(evt.Payload, "subject"),
			Outcome: payloadString(evt.Payload, "outcome"),
			Notes:   payloadString(evt.Payload, "notes"),
			Source:  payloadString(evt.Payload, "source"),
		}
		fb.Correct, _ = evt.Payload["correct"].(bool)
		l.Record(context.Background(), fb)
	})
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}
