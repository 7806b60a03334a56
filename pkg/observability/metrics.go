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
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/kv"
)

const (
	// maxRollingDurations caps the per-agent duration window.
	maxRollingDurations = 100

	// flushInterval is how often metric snapshots are written to the KV store.
	flushInterval = 60 * time.Second
)

// AgentStats is the per-agent execution record.
type AgentStats struct {
	AgentID    string  `json:"agentId"`
	Executions int64   `json:"executions"`
	Successes  int64   `json:"successes"`
	Failures   int64   `json:"failures"`
	AvgMs      float64 `json:"avgMs"`
	P50Ms      float64 `json:"p50Ms"`
	P95Ms      float64 `json:"p95Ms"`
	P99Ms      float64 `json:"p99Ms"`
}

// ToolStats is the per-(agent, tool) usage record.
type ToolStats struct {
	AgentID   string `json:"agentId"`
	Tool      string `json:"tool"`
	Calls     int64  `json:"calls"`
	Failures  int64  `json:"failures"`
	TotalMs   int64  `json:"totalMs"`
	LastUseAt int64  `json:"lastUseAt"`
}

type agentEntry struct {
	executions int64
	successes  int64
	failures   int64
	durations  []float64 // rolling window, newest last
}

// Metrics accumulates per-agent execution and tool-usage time series and
// flushes snapshots to the KV store. Safe for concurrent use; flush runs
// snapshot-and-write so it never blocks recorders.
type Metrics struct {
	mu     sync.Mutex
	agents map[string]*agentEntry
	tools  map[string]*ToolStats // key agentID + "\x00" + tool

	store  kv.Store
	clk    clock.Clock
	logger *zap.Logger
	cancel func()
}

// NewMetrics creates a metrics collector. store may be nil (no persistence).
func NewMetrics(store kv.Store, clk clock.Clock, logger *zap.Logger) *Metrics {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		agents: make(map[string]*agentEntry),
		tools:  make(map[string]*ToolStats),
		store:  store,
		clk:    clk,
		logger: logger,
	}
}

// Start begins the periodic KV flush. Idempotent.
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil || m.store == nil {
		return
	}
	m.cancel = m.clk.SetInterval(func() {
		if err := m.Flush(context.Background()); err != nil {
			m.logger.Warn("metrics flush failed", zap.Error(err))
		}
	}, flushInterval)
}

// Stop cancels the periodic flush.
func (m *Metrics) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RecordExecution records one reasoning-turn execution for an agent.
func (m *Metrics) RecordExecution(agentID string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.agents[agentID]
	if !ok {
		e = &agentEntry{}
		m.agents[agentID] = e
	}
	e.executions++
	if success {
		e.successes++
	} else {
		e.failures++
	}
	e.durations = append(e.durations, float64(duration.Milliseconds()))
	if len(e.durations) > maxRollingDurations {
		e.durations = e.durations[len(e.durations)-maxRollingDurations:]
	}
}

// RecordToolUse records one tool invocation.
func (m *Metrics) RecordToolUse(agentID, tool string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := agentID + "\x00" + tool
	t, ok := m.tools[key]
	if !ok {
		t = &ToolStats{AgentID: agentID, Tool: tool}
		m.tools[key] = t
	}
	t.Calls++
	if !success {
		t.Failures++
	}
	t.TotalMs += duration.Milliseconds()
	t.LastUseAt = m.clk.Now().UnixMilli()
}

// AgentStats returns the current stats for an agent.
// Percentiles are computed on a sorted snapshot of the rolling window.
func (m *Metrics) AgentStats(agentID string) AgentStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.agents[agentID]
	if !ok {
		return AgentStats{AgentID: agentID}
	}
	return m.statsLocked(agentID, e)
}

func (m *Metrics) statsLocked(agentID string, e *agentEntry) AgentStats {
	stats := AgentStats{
		AgentID:    agentID,
		Executions: e.executions,
		Successes:  e.successes,
		Failures:   e.failures,
	}
	if len(e.durations) == 0 {
		return stats
	}

	sorted := make([]float64, len(e.durations))
	copy(sorted, e.durations)
	sort.Float64s(sorted)

	var sum float64
	for _, d := range sorted {
		sum += d
	}
	stats.AvgMs = sum / float64(len(sorted))
	stats.P50Ms = percentile(sorted, 0.50)
	stats.P95Ms = percentile(sorted, 0.95)
	stats.P99Ms = percentile(sorted, 0.99)
	return stats
}

// ToolUsage returns usage snapshots for every tool an agent has invoked.
func (m *Metrics) ToolUsage(agentID string) []ToolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ToolStats
	for _, t := range m.tools {
		if t.AgentID == agentID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

// Flush writes a snapshot of all agent stats to the KV store.
func (m *Metrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	snapshot := make([]AgentStats, 0, len(m.agents))
	for id, e := range m.agents {
		snapshot = append(snapshot, m.statsLocked(id, e))
	}
	m.mu.Unlock()

	for _, stats := range snapshot {
		blob, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		if err := m.store.Insert(ctx, kv.TableMetrics, stats.AgentID, "execution_stats", blob); err != nil {
			return err
		}
	}
	return nil
}

// percentile computes the p-quantile of an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
