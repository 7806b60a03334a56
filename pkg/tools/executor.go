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

package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/observability"
)

// Executor invokes tools uniformly: span per call, tool-use metrics,
// circuit breaking, and handler panics converted to failed results.
type Executor struct {
	tracer   observability.Tracer
	metrics  *observability.Metrics
	breakers *BreakerSet
	logger   *zap.Logger
}

// NewExecutor creates an executor. tracer, metrics and breakers may be
// nil; the corresponding concern is skipped.
func NewExecutor(tracer observability.Tracer, metrics *observability.Metrics, breakers *BreakerSet, logger *zap.Logger) *Executor {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{tracer: tracer, metrics: metrics, breakers: breakers, logger: logger}
}

// Execute runs one tool call for an agent. All failure modes come back
// as a Result; the error return is reserved for a nil handler.
func (e *Executor) Execute(ctx context.Context, agentID string, tool Tool, params map[string]interface{}) (*Result, error) {
	if tool.Handler == nil {
		return nil, fmt.Errorf("tool %s: no handler", tool.Name)
	}

	if e.breakers != nil && !e.breakers.Allow(agentID, tool.Name) {
		e.logger.Warn("tool short-circuited",
			zap.String("agent_id", agentID),
			zap.String("tool", tool.Name))
		return &Result{Success: false, Error: ErrCircuitOpen}, nil
	}

	ctx, span := e.tracer.StartSpan(ctx, "tool."+tool.Name,
		observability.WithAttribute("agent_id", agentID))

	start := time.Now()
	result := e.invoke(ctx, tool, params)
	duration := time.Since(start)

	if result.Success {
		span.SetAttribute("success", true)
		if e.breakers != nil {
			e.breakers.RecordSuccess(agentID, tool.Name)
		}
	} else {
		span.RecordError(fmt.Errorf("%s", result.Error))
		if e.breakers != nil {
			e.breakers.RecordFailure(agentID, tool.Name)
		}
	}
	e.tracer.EndSpan(span)

	if e.metrics != nil {
		e.metrics.RecordToolUse(agentID, tool.Name, duration, result.Success)
	}

	e.logger.Debug("tool executed",
		zap.String("agent_id", agentID),
		zap.String("tool", tool.Name),
		zap.Bool("success", result.Success),
		zap.Duration("duration", duration))
	return result, nil
}

// invoke runs the handler, converting errors and panics into failed
// results.
func (e *Executor) invoke(ctx context.Context, tool Tool, params map[string]interface{}) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked",
				zap.String("tool", tool.Name),
				zap.Any("panic", r))
			result = &Result{Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	res, err := tool.Handler(ctx, params)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}
	}
	if res == nil {
		return &Result{Success: true}
	}
	return res
}
