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

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/bus"
)

// Scheduler limits and defaults.
const (
	MaxEventBuffer = 1000
	MaxRunHistory  = 50

	DefaultScanInterval          = 5 * time.Minute
	DefaultAccelerationThreshold = 5

	// maxTickInterval caps the scheduler tick so long scan intervals
	// still check acceleration conditions promptly.
	maxTickInterval = 10 * time.Second
)

// Autonomous lifecycle event topics.
const (
	TopicAutonomousStarted = "agent:autonomous:started"
	TopicAutonomousStopped = "agent:autonomous:stopped"
	TopicCycleComplete     = "agent:autonomous:cycle:complete"
	TopicCycleError        = "agent:autonomous:cycle:error"
)

// RunRecord is one completed scan cycle.
type RunRecord struct {
	CycleID         string        `json:"cycleId"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
	EventsProcessed int           `json:"eventsProcessed"`
	Status          string        `json:"status"` // success | failed
	ResultSummary   string        `json:"resultSummary,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// AutonomousConfig parameterises the scan scheduler. BuildScanInput is
// required: it turns the buffered events into the cycle's reasoning
// input. PostCycle, when set, runs after each cycle with the thought.
type AutonomousConfig struct {
	ScanInterval          time.Duration
	AccelerationThreshold int
	SubscribedTopics      []string
	BuildScanInput        func(events []bus.Event) map[string]interface{}
	PostCycle             func(thought *Thought)
}

// AutonomousAgent wraps a BaseAgent with an event-driven scan loop:
// cycles fire on the interval, immediately on the first buffered event,
// or early when enough high-priority events accumulate.
type AutonomousAgent struct {
	*BaseAgent
	cfg AutonomousConfig

	mu              sync.Mutex
	running         bool
	cycleInProgress bool
	lastRunAt       time.Time
	hasRun          bool
	buffer          []bus.Event
	history         []RunRecord
	cancelTick      func()
	unsubscribers   []func()
}

// NewAutonomousAgent builds a scan scheduler over an existing agent.
func NewAutonomousAgent(base *BaseAgent, cfg AutonomousConfig) (*AutonomousAgent, error) {
	if base == nil {
		return nil, fmt.Errorf("autonomous agent: base agent is required")
	}
	if cfg.BuildScanInput == nil {
		return nil, fmt.Errorf("autonomous agent %s: BuildScanInput is required", base.ID())
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.AccelerationThreshold <= 0 {
		cfg.AccelerationThreshold = DefaultAccelerationThreshold
	}
	return &AutonomousAgent{BaseAgent: base, cfg: cfg}, nil
}

// Start subscribes to the configured topics and schedules the tick.
// Idempotent: a second start keeps the existing interval and
// subscriptions.
func (a *AutonomousAgent) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true

	if a.deps.Bus != nil {
		for _, topic := range a.cfg.SubscribedTopics {
			unsubscribe := a.deps.Bus.Subscribe(topic, a.onEvent)
			a.unsubscribers = append(a.unsubscribers, unsubscribe)
		}
	}

	tick := a.cfg.ScanInterval
	if tick > maxTickInterval {
		tick = maxTickInterval
	}
	a.cancelTick = a.deps.Clock.SetInterval(a.onTick, tick)
	a.mu.Unlock()

	a.deps.Logger.Info("autonomous loop started",
		zap.Duration("scan_interval", a.cfg.ScanInterval),
		zap.Strings("topics", a.cfg.SubscribedTopics))
	if a.deps.Bus != nil {
		a.deps.Bus.Publish(TopicAutonomousStarted, map[string]interface{}{"agentId": a.ID()})
	}
}

// Stop cancels the tick and drops subscriptions. A cycle in flight
// completes and records normally. Idempotent.
func (a *AutonomousAgent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancelTick
	a.cancelTick = nil
	unsubscribers := a.unsubscribers
	a.unsubscribers = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}

	a.deps.Logger.Info("autonomous loop stopped")
	if a.deps.Bus != nil {
		a.deps.Bus.Publish(TopicAutonomousStopped, map[string]interface{}{"agentId": a.ID()})
	}
}

// Running reports whether the loop is started.
func (a *AutonomousAgent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// BufferedEvents returns the current buffer size.
func (a *AutonomousAgent) BufferedEvents() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// RunHistory returns the recorded cycles, oldest first.
func (a *AutonomousAgent) RunHistory() []RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RunRecord(nil), a.history...)
}

// onEvent buffers an inbound event and triggers an immediate cycle
// when conditions are met.
func (a *AutonomousAgent) onEvent(evt bus.Event) {
	a.mu.Lock()
	a.buffer = append(a.buffer, evt)
	if len(a.buffer) > MaxEventBuffer {
		a.buffer = a.buffer[len(a.buffer)-MaxEventBuffer:]
	}
	trigger := a.shouldRunNowLocked() && !a.cycleInProgress
	a.mu.Unlock()

	if trigger {
		a.RunOneCycle(context.Background())
	}
}

func (a *AutonomousAgent) onTick() {
	a.mu.Lock()
	trigger := a.shouldRunNowLocked() && !a.cycleInProgress
	a.mu.Unlock()
	if trigger {
		a.RunOneCycle(context.Background())
	}
}

// shouldRunNowLocked decides whether a cycle is due: enough urgent
// events, a non-empty buffer that has never been scanned, or the scan
// interval elapsed with work pending.
func (a *AutonomousAgent) shouldRunNowLocked() bool {
	urgent := 0
	for _, evt := range a.buffer {
		if isUrgent(evt) {
			urgent++
		}
	}
	if urgent >= a.cfg.AccelerationThreshold {
		return true
	}
	if !a.hasRun && len(a.buffer) > 0 {
		return true
	}
	if a.hasRun && len(a.buffer) > 0 &&
		a.deps.Clock.Now().Sub(a.lastRunAt) >= a.cfg.ScanInterval {
		return true
	}
	return false
}

func isUrgent(evt bus.Event) bool {
	priority, _ := evt.Payload["priority"].(string)
	switch strings.ToUpper(priority) {
	case "CRITICAL", "HIGH", "URGENT":
		return true
	}
	return false
}

// RunOneCycle executes a single scan cycle. Re-entry while a cycle is
// in flight returns false. The cycle survives reasoning failures: a
// failed turn is recorded and lastRunAt still advances.
func (a *AutonomousAgent) RunOneCycle(ctx context.Context) bool {
	a.mu.Lock()
	if a.cycleInProgress {
		a.mu.Unlock()
		return false
	}
	a.cycleInProgress = true
	events := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	cycleID := uuid.New().String()
	startedAt := a.deps.Clock.Now()
	record := RunRecord{
		CycleID:         cycleID,
		StartedAt:       startedAt,
		EventsProcessed: len(events),
	}

	input := a.cfg.BuildScanInput(events)
	thought := a.Reason(ctx, input, ReasonOptions{Extra: map[string]interface{}{
		"autonomous":      true,
		"cycleId":         cycleID,
		"eventsProcessed": len(events),
	}})

	if a.cfg.PostCycle != nil {
		a.cfg.PostCycle(thought)
	}

	record.Duration = a.deps.Clock.Now().Sub(startedAt)
	if thought.Error == "" {
		record.Status = "success"
		if thought.Result != nil {
			record.ResultSummary = thought.Result.Summary
		}
	} else {
		record.Status = "failed"
		record.Error = thought.Error
	}

	a.mu.Lock()
	a.lastRunAt = a.deps.Clock.Now()
	a.hasRun = true
	a.history = append(a.history, record)
	if len(a.history) > MaxRunHistory {
		a.history = a.history[len(a.history)-MaxRunHistory:]
	}
	a.cycleInProgress = false
	a.mu.Unlock()

	if a.deps.Bus != nil {
		if record.Status == "success" {
			a.deps.Bus.Publish(TopicCycleComplete, map[string]interface{}{
				"agentId":         a.ID(),
				"cycleId":         cycleID,
				"eventsProcessed": record.EventsProcessed,
				"summary":         record.ResultSummary,
			})
		} else {
			a.deps.Bus.Publish(TopicCycleError, map[string]interface{}{
				"agentId": a.ID(),
				"cycleId": cycleID,
				"error":   record.Error,
			})
		}
	}
	a.deps.Logger.Debug("scan cycle finished",
		zap.String("cycle_id", cycleID),
		zap.String("status", record.Status),
		zap.Int("events_processed", record.EventsProcessed))
	return true
}
