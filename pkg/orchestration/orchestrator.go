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

// Package orchestration runs multi-agent workflows: ordered steps with
// parallel groups, parallel dispatch with per-agent timeouts, delegation
// and consensus rounds.
package orchestration

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Reasoner is the slice of an agent the orchestration layer calls.
type Reasoner interface {
	Reason(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Step is one workflow step. InputMapper derives the step's input from
// the accumulated workflow state; nil passes the state through as-is.
// Consecutive Parallel steps form a group that runs concurrently and
// joins before the next step. A failed step stops the workflow unless
// Optional.
type Step struct {
	AgentID     string
	InputMapper func(state map[string]interface{}) map[string]interface{}
	OutputKey   string
	Parallel    bool
	Optional    bool
}

// Workflow is a named ordered sequence of steps.
type Workflow struct {
	Name  string
	Steps []Step
}

// WorkflowResult carries the accumulated state and where the run ended.
type WorkflowResult struct {
	Completed  bool
	State      map[string]interface{}
	FailedStep string // agent id of the failing step, when not completed
	Err        error
}

// Orchestrator executes workflows against the coordinator's agents.
type Orchestrator struct {
	coordinator *Coordinator
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(coordinator *Coordinator, logger *zap.Logger) (*Orchestrator, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("orchestrator: coordinator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{coordinator: coordinator, logger: logger}, nil
}

// ExecuteWorkflow runs the workflow's steps in order. The returned
// state holds each step's output under its OutputKey (or the agent id
// when the key is empty), seeded with initialInput under "input".
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf Workflow, initialInput map[string]interface{}) *WorkflowResult {
	state := map[string]interface{}{"input": initialInput}
	result := &WorkflowResult{State: state}

	for _, group := range groupSteps(wf.Steps) {
		outputs, failed, err := o.runGroup(ctx, group, state)
		for key, out := range outputs {
			state[key] = out
		}
		if err != nil {
			result.FailedStep = failed
			result.Err = err
			o.logger.Warn("workflow stopped",
				zap.String("workflow", wf.Name),
				zap.String("failed_step", failed),
				zap.Error(err))
			return result
		}
	}

	result.Completed = true
	o.logger.Info("workflow completed", zap.String("workflow", wf.Name))
	return result
}

// groupSteps splits the step list into sequential groups; runs of
// Parallel steps collapse into one group.
func groupSteps(steps []Step) [][]Step {
	var groups [][]Step
	for i := 0; i < len(steps); {
		if !steps[i].Parallel {
			groups = append(groups, steps[i:i+1])
			i++
			continue
		}
		j := i
		for j < len(steps) && steps[j].Parallel {
			j++
		}
		groups = append(groups, steps[i:j])
		i = j
	}
	return groups
}

// runGroup executes one group concurrently and joins. Outputs merge
// into state only after every member finished, so mappers in the same
// group all see the pre-group state.
func (o *Orchestrator) runGroup(ctx context.Context, group []Step, state map[string]interface{}) (map[string]map[string]interface{}, string, error) {
	type stepOutcome struct {
		step   Step
		output map[string]interface{}
		err    error
	}

	outcomes := make([]stepOutcome, len(group))
	var wg sync.WaitGroup
	for i, step := range group {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()
			output, err := o.runStep(ctx, step, state)
			outcomes[i] = stepOutcome{step: step, output: output, err: err}
		}(i, step)
	}
	wg.Wait()

	outputs := make(map[string]map[string]interface{})
	for _, oc := range outcomes {
		key := oc.step.OutputKey
		if key == "" {
			key = oc.step.AgentID
		}
		if oc.err != nil {
			if oc.step.Optional {
				o.logger.Debug("optional step failed",
					zap.String("agent_id", oc.step.AgentID), zap.Error(oc.err))
				continue
			}
			return outputs, oc.step.AgentID, oc.err
		}
		outputs[key] = oc.output
	}
	return outputs, "", nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, state map[string]interface{}) (map[string]interface{}, error) {
	agent, ok := o.coordinator.lookup(step.AgentID)
	if !ok {
		return nil, fmt.Errorf("workflow step: agent %s not registered", step.AgentID)
	}

	input := state
	if step.InputMapper != nil {
		input = step.InputMapper(state)
	}
	output, err := agent.Reason(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("workflow step %s: %w", step.AgentID, err)
	}
	return output, nil
}
