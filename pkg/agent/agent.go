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
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/contexteng"
	"github.com/teradata-labs/sentinel/pkg/learning"
	"github.com/teradata-labs/sentinel/pkg/llm"
	"github.com/teradata-labs/sentinel/pkg/memory"
	"github.com/teradata-labs/sentinel/pkg/observability"
	"github.com/teradata-labs/sentinel/pkg/patterns"
	"github.com/teradata-labs/sentinel/pkg/tools"
)

// Plan limits.
const (
	MaxActionsPerPlan    = 10
	DefaultMaxThoughtLog = 100

	// consolidateEvery completed turns, top patterns are promoted to
	// long-term memory.
	consolidateEvery = 20

	// patternPrecheckMin is the match score above which a pattern match
	// becomes chain evidence.
	patternPrecheckMin = 0.5
)

// Event topics published by the reasoning loop.
const (
	TopicActionStart    = "agent:action:start"
	TopicActionComplete = "agent:action:complete"
	TopicThought        = "agent:thought"
)

// Config describes one agent at construction.
type Config struct {
	AgentID      string
	Name         string
	Role         string
	Capabilities []string
	SystemPrompt string
	Domain       string

	MaxThoughtLog     int  // default 100
	ReflectionEnabled bool
}

// Deps are the collaborators a BaseAgent reasons with. LLM, Context,
// Memory, Patterns, Metrics, Decisions and Corrections may be nil; the
// corresponding phase degrades to its fallback or is skipped.
type Deps struct {
	LLM         *llm.Client
	Context     *contexteng.Engine
	Memory      *memory.Store
	Patterns    *patterns.Memory
	Executor    *tools.Executor
	Bus         *bus.EventBus
	Tracer      observability.Tracer
	Metrics     *observability.Metrics
	Decisions   *observability.DecisionLog
	Corrections *learning.SelfCorrection
	Clock       clock.Clock
	Logger      *zap.Logger
}

// BaseAgent runs the reasoning loop. A turn never panics out: every
// failure ends as a thought carrying an error.
type BaseAgent struct {
	cfg   Config
	deps  Deps
	tools *tools.Registry

	mu             sync.Mutex
	status         string
	sessionID      string
	completedTurns int

	thoughts *thoughtLog
}

// ReasonOptions tweak a single turn.
type ReasonOptions struct {
	SellerID    string
	TokenBudget int
	Extra       map[string]interface{} // merged into thought.Context
}

// NewBaseAgent creates an agent. An "analyze" fallback tool is always
// registered so the degenerate plan can execute.
func NewBaseAgent(cfg Config, deps Deps) (*BaseAgent, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent: id is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("agent %s: tool executor is required", cfg.AgentID)
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewNoOpTracer()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.String("agent_id", cfg.AgentID))
	if cfg.MaxThoughtLog <= 0 {
		cfg.MaxThoughtLog = DefaultMaxThoughtLog
	}

	a := &BaseAgent{
		cfg:       cfg,
		deps:      deps,
		tools:     tools.NewRegistry(),
		status:    StatusIdle,
		sessionID: uuid.New().String(),
		thoughts:  newThoughtLog(cfg.MaxThoughtLog),
	}
	if err := a.tools.Register(analyzeTool()); err != nil {
		return nil, err
	}
	return a, nil
}

// analyzeTool is the always-available degenerate action: it succeeds
// and echoes its params so a turn with no usable plan still produces a
// paired action result.
func analyzeTool() tools.Tool {
	return tools.Tool{
		Name:        "analyze",
		Description: "review the case input without external calls",
		Handler: func(_ context.Context, params map[string]interface{}) (*tools.Result, error) {
			return &tools.Result{Success: true, Data: map[string]interface{}{"analyzed": true, "params": params}}, nil
		},
	}
}

// ID returns the agent id.
func (a *BaseAgent) ID() string { return a.cfg.AgentID }

// Logger returns the agent-scoped logger.
func (a *BaseAgent) Logger() *zap.Logger { return a.deps.Logger }

// Name returns the display name.
func (a *BaseAgent) Name() string { return a.cfg.Name }

// SessionID returns the current session id.
func (a *BaseAgent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Status returns the agent's current status.
func (a *BaseAgent) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// RegisterTool adds a tool to this agent.
func (a *BaseAgent) RegisterTool(t tools.Tool) error { return a.tools.Register(t) }

// Tools returns the agent's registered tools.
func (a *BaseAgent) Tools() []tools.Tool { return a.tools.List() }

// Thoughts returns the bounded thought log, oldest first.
func (a *BaseAgent) Thoughts() []*Thought { return a.thoughts.snapshot() }

// Reason runs one full turn. It never returns an error and never
// panics: failures come back inside the thought.
func (a *BaseAgent) Reason(ctx context.Context, input map[string]interface{}, opts ReasonOptions) (thought *Thought) {
	start := a.deps.Clock.Now()
	chain := NewChain()
	thought = &Thought{
		TraceID:        uuid.New().String(),
		Timestamp:      start,
		Input:          input,
		Context:        map[string]interface{}{},
		ChainOfThought: chain,
	}
	for k, v := range opts.Extra {
		thought.Context[k] = v
	}

	a.setStatus(StatusBusy)
	ctx, span := a.deps.Tracer.StartSpan(ctx, "reason",
		observability.WithAttribute("agent_id", a.cfg.AgentID),
		observability.WithAttribute("trace_id", thought.TraceID))

	defer func() {
		if r := recover(); r != nil {
			a.deps.Logger.Error("reasoning turn panicked", zap.Any("panic", r))
			a.failTurn(thought, chain, fmt.Sprintf("panic: %v", r))
		}
		if thought.Error != "" {
			span.RecordError(fmt.Errorf("%s", thought.Error))
		} else {
			span.SetAttribute("success", thought.Result != nil && thought.Result.Success)
		}
		a.deps.Tracer.EndSpan(span)

		duration := a.deps.Clock.Now().Sub(start)
		success := thought.Error == "" && thought.Result != nil && thought.Result.Success
		if a.deps.Metrics != nil {
			a.deps.Metrics.RecordExecution(a.cfg.AgentID, duration, success)
		}
		a.logDecision(ctx, thought)
		a.publishThought(thought)
		a.thoughts.append(thought)
		a.setStatus(StatusIdle)
	}()

	// Context assembly.
	task := taskText(input)
	if a.deps.Context != nil {
		assembled := a.deps.Context.Assemble(ctx, a.cfg.AgentID, task, contexteng.AssembleOptions{
			SessionID:    a.sessionID,
			SystemPrompt: a.cfg.SystemPrompt,
			Domain:       a.cfg.Domain,
			SellerID:     opts.SellerID,
			TokenBudget:  opts.TokenBudget,
		})
		thought.Context["_assembledContext"] = assembled.Prompt
	}

	// Pattern precheck.
	if a.deps.Patterns != nil {
		match := a.deps.Patterns.MatchPatterns(extractFeatures(input))
		if len(match.Matches) > 0 && match.Matches[0].Score > patternPrecheckMin {
			thought.PatternMatches = match
			thought.Context["_patternMatches"] = match
			_ = chain.Add(StepEvidence,
				fmt.Sprintf("matched %d known pattern(s), best score %.2f, suggested %s",
					match.TotalMatched, match.Matches[0].Score, match.Recommendation),
				ConfidenceLikely, a.deps.Clock.Now())
		}
	}

	// Think.
	assessment := a.think(ctx, thought, input)
	_ = chain.Add(StepHypothesis, str(assessment["understanding"]), "", a.deps.Clock.Now())
	thought.Reasoning = append(thought.Reasoning, str(assessment["understanding"]))

	// Plan, or re-plan when the previous turn mostly failed.
	actions := a.plan(ctx, thought, assessment)
	_ = chain.Add(StepAnalysis, fmt.Sprintf("planned %d action(s)", len(actions)), "", a.deps.Clock.Now())

	// Act.
	for _, action := range actions {
		executed := a.act(ctx, action)
		thought.Actions = append(thought.Actions, executed)
		if executed.Result != nil && executed.Result.Data != nil {
			_ = chain.Add(StepEvidence,
				fmt.Sprintf("%s returned data", action.Type),
				ConfidenceCertain, a.deps.Clock.Now())
		}
	}

	// Observe.
	obs := a.observe(ctx, thought, input)

	// Reflect.
	if a.cfg.ReflectionEnabled {
		a.setStatus(StatusEvaluating)
		obs = a.reflect(ctx, obs)
		a.setStatus(StatusBusy)
	}
	thought.Result = obs

	// Conclude. Certain is reserved for turns that actually errored;
	// an unsuccessful observation is still a Likely conclusion.
	level := ConfidenceLikely
	if thought.Error != "" {
		level = ConfidenceCertain
	}
	_ = chain.Add(StepConclusion,
		fmt.Sprintf("%s (risk %.0f, confidence %.2f)", obs.Recommendation, obs.RiskScore, obs.Confidence),
		level, a.deps.Clock.Now())

	// Learn.
	a.learn(ctx, thought, input, obs)
	return thought
}

func (a *BaseAgent) think(ctx context.Context, thought *Thought, input map[string]interface{}) map[string]interface{} {
	fallback := map[string]interface{}{
		"understanding":      fmt.Sprintf("Reviewing case with fields: %s", strings.Join(inputKeys(input), ", ")),
		"key_risks":          knownRisks(thought.PatternMatches),
		"confidence":         0.5,
		"suggested_approach": "apply registered tools and synthesize results",
	}
	if a.deps.LLM == nil || !a.deps.LLM.Enabled() {
		return fallback
	}

	prompt := BuildThinkPrompt(a.cfg.Role, str(thought.Context["_assembledContext"]), input)
	result, err := a.deps.LLM.CompleteWithJSONRetry(ctx, llm.JSONOptions{
		System:   prompt.System,
		User:     prompt.User,
		Schema:   ThinkSchema(),
		Fallback: fallback,
		AgentID:  a.cfg.AgentID,
	})
	if err != nil {
		a.deps.Logger.Warn("think phase degraded", zap.Error(err))
		return fallback
	}
	return result
}

// plan produces the validated action list, switching to the re-plan
// prompt when more than half of the previous turn's actions failed.
func (a *BaseAgent) plan(ctx context.Context, thought *Thought, assessment map[string]interface{}) []Action {
	fallback := map[string]interface{}{
		"goal":    "analyze the case",
		"actions": []interface{}{map[string]interface{}{"tool": "analyze", "params": map[string]interface{}{}}},
	}
	if a.deps.LLM == nil || !a.deps.LLM.Enabled() {
		return a.validatePlan(fallback)
	}

	catalog := ToolCatalog(a.tools.List())
	var prompt Prompt
	if goal, failures, replan := a.shouldRePlan(); replan {
		prompt = BuildRePlanPrompt(a.cfg.Role, goal, failures, catalog)
		thought.Context["_replanned"] = true
	} else {
		prompt = BuildPlanPrompt(a.cfg.Role, str(assessment["understanding"]), catalog)
	}

	result, err := a.deps.LLM.CompleteWithJSONRetry(ctx, llm.JSONOptions{
		System:   prompt.System,
		User:     prompt.User,
		Schema:   PlanSchema(),
		Fallback: fallback,
		AgentID:  a.cfg.AgentID,
	})
	if err != nil {
		a.deps.Logger.Warn("plan phase degraded", zap.Error(err))
		result = fallback
	}
	actions := a.validatePlan(result)
	if len(actions) == 0 {
		actions = a.validatePlan(fallback)
	}
	return actions
}

// shouldRePlan reports whether the previous turn failed badly enough to
// justify the recovery prompt. One re-plan per turn.
func (a *BaseAgent) shouldRePlan() (goal string, failures []string, ok bool) {
	prev := a.thoughts.last()
	if prev == nil || len(prev.Actions) == 0 {
		return "", nil, false
	}
	failed := 0
	for _, ex := range prev.Actions {
		if !ex.Succeeded() {
			failed++
			failures = append(failures, ex.Action.Type)
		}
	}
	if float64(failed)/float64(len(prev.Actions)) <= 0.5 {
		return "", nil, false
	}
	if prev.Result != nil {
		goal = prev.Result.Summary
	}
	return goal, failures, true
}

// validatePlan drops unregistered tools and caps the action count.
func (a *BaseAgent) validatePlan(plan map[string]interface{}) []Action {
	raw, _ := plan["actions"].([]interface{})
	actions := make([]Action, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name := str(entry["tool"])
		if name == "" || !a.tools.Has(name) {
			a.deps.Logger.Debug("dropping unregistered tool from plan", zap.String("tool", name))
			continue
		}
		params, _ := entry["params"].(map[string]interface{})
		actions = append(actions, Action{Type: name, Params: params, Rationale: str(entry["rationale"])})
		if len(actions) == MaxActionsPerPlan {
			break
		}
	}
	return actions
}

func (a *BaseAgent) act(ctx context.Context, action Action) ExecutedAction {
	if a.deps.Bus != nil {
		a.deps.Bus.Publish(TopicActionStart, map[string]interface{}{
			"agentId": a.cfg.AgentID,
			"action":  action.Type,
			"params":  action.Params,
		})
	}

	tool, ok := a.tools.Get(action.Type)
	var result *tools.Result
	if !ok {
		result = &tools.Result{Success: false, Error: fmt.Sprintf("tool %s not registered", action.Type)}
	} else {
		var err error
		result, err = a.deps.Executor.Execute(ctx, a.cfg.AgentID, tool, action.Params)
		if err != nil {
			result = &tools.Result{Success: false, Error: err.Error()}
		}
	}

	if a.deps.Bus != nil {
		a.deps.Bus.Publish(TopicActionComplete, map[string]interface{}{
			"agentId": a.cfg.AgentID,
			"action":  action.Type,
			"success": result.Success,
			"error":   result.Error,
		})
	}
	return ExecutedAction{Action: action, Result: result}
}

func (a *BaseAgent) observe(ctx context.Context, thought *Thought, input map[string]interface{}) *Observation {
	succeeded := 0
	for _, ex := range thought.Actions {
		if ex.Succeeded() {
			succeeded++
		}
	}
	allOK := succeeded == len(thought.Actions)

	fallback := a.fallbackObservation(thought, allOK)
	if a.deps.LLM == nil || !a.deps.LLM.Enabled() {
		return fallback
	}

	prompt := BuildObservePrompt(a.cfg.Role, input, thought.Actions)
	result, err := a.deps.LLM.CompleteWithJSONRetry(ctx, llm.JSONOptions{
		System:   prompt.System,
		User:     prompt.User,
		Schema:   ObserveSchema(),
		Fallback: observationToMap(fallback),
		AgentID:  a.cfg.AgentID,
	})
	if err != nil {
		a.deps.Logger.Warn("observe phase degraded", zap.Error(err))
		return fallback
	}
	return &Observation{
		Summary:        str(result["summary"]),
		RiskScore:      clampFloat(num(result["risk_score"]), 0, 100),
		Recommendation: str(result["recommendation"]),
		Confidence:     clampFloat(num(result["confidence"]), 0, 1),
		Reasoning:      str(result["reasoning"]),
		KeyFindings:    strSlice(result["key_findings"]),
		Success:        allOK,
	}
}

// fallbackObservation is the deterministic decision path: success from
// action results, risk from the best pattern match.
func (a *BaseAgent) fallbackObservation(thought *Thought, allOK bool) *Observation {
	obs := &Observation{
		Summary:        fmt.Sprintf("Completed %d actions", len(thought.Actions)),
		Recommendation: "REVIEW",
		Confidence:     0.5,
		Success:        allOK,
	}
	if m := thought.PatternMatches; m != nil && len(m.Matches) > 0 {
		obs.RiskScore = clampFloat(m.Matches[0].Score*m.Matches[0].Pattern.Confidence*100, 0, 100)
		if m.Recommendation != "" {
			obs.Recommendation = m.Recommendation
		}
		obs.Reasoning = "recommendation derived from pattern memory"
	}
	return obs
}

// reflect runs the second-opinion pass; the observation is replaced
// only when the critique is more confident than the original.
func (a *BaseAgent) reflect(ctx context.Context, obs *Observation) *Observation {
	if a.deps.LLM == nil || !a.deps.LLM.Enabled() {
		return obs
	}
	prompt := BuildReflectPrompt(a.cfg.Role, obs)
	result, err := a.deps.LLM.CompleteWithJSONRetry(ctx, llm.JSONOptions{
		System:   prompt.System,
		User:     prompt.User,
		Schema:   ReflectSchema(),
		Fallback: map[string]interface{}{"shouldRevise": false, "reflectionConfidence": 0.0},
		AgentID:  a.cfg.AgentID,
	})
	if err != nil {
		return obs
	}

	shouldRevise, _ := result["shouldRevise"].(bool)
	reflectionConfidence := clampFloat(num(result["reflectionConfidence"]), 0, 1)
	if !shouldRevise || reflectionConfidence <= obs.Confidence {
		return obs
	}

	revised := *obs
	revised.Revised = true
	revised.Reasoning = str(result["contraArgument"])
	if action := str(result["revisedAction"]); action != "" {
		revised.Recommendation = action
	}
	if rc, isNum := result["revisedConfidence"].(float64); isNum {
		revised.Confidence = clampFloat(rc, 0, 1)
	} else {
		revised.Confidence = reflectionConfidence
	}
	a.deps.Logger.Info("observation revised on reflection",
		zap.String("recommendation", revised.Recommendation),
		zap.Float64("reflection_confidence", reflectionConfidence))
	return &revised
}

// learn persists the turn: short-term memory, pattern learning, the
// prediction log, and periodic pattern consolidation.
func (a *BaseAgent) learn(ctx context.Context, thought *Thought, input map[string]interface{}, obs *Observation) {
	if a.deps.Memory != nil {
		entry := map[string]interface{}{
			"type":           "thought",
			"traceId":        thought.TraceID,
			"summary":        obs.Summary,
			"recommendation": obs.Recommendation,
			"riskScore":      obs.RiskScore,
			"actionCount":    len(thought.Actions),
		}
		if _, err := a.deps.Memory.SaveShortTerm(ctx, a.cfg.AgentID, a.sessionID, entry); err != nil {
			a.deps.Logger.Warn("short-term save failed", zap.Error(err))
		}
	}

	if a.deps.Patterns != nil {
		if outcome, ok := outcomeFromRecommendation(obs.Recommendation); ok {
			if _, err := a.deps.Patterns.LearnPattern(patterns.LearnInput{
				Type:       a.cfg.Domain,
				Features:   extractFeatures(input),
				Outcome:    outcome,
				Confidence: obs.Confidence,
				Source:     a.cfg.AgentID,
			}); err != nil {
				a.deps.Logger.Debug("pattern not learned", zap.Error(err))
			}
		}
	}

	if a.deps.Corrections != nil {
		a.deps.Corrections.LogPrediction(a.cfg.AgentID, taskText(input), obs.Recommendation, obs.Confidence)
	}

	a.mu.Lock()
	a.completedTurns++
	turns := a.completedTurns
	a.mu.Unlock()
	if turns%consolidateEvery == 0 {
		a.consolidatePatterns(ctx)
	}
}

// consolidatePatterns promotes the strongest patterns into long-term
// memory so they survive restarts and feed future context assembly.
func (a *BaseAgent) consolidatePatterns(ctx context.Context) {
	if a.deps.Memory == nil || a.deps.Patterns == nil {
		return
	}
	for _, p := range a.deps.Patterns.TopPatterns(5) {
		content := map[string]interface{}{
			"patternId":  p.PatternID,
			"type":       p.Type,
			"features":   p.Features,
			"outcome":    p.Outcome,
			"confidence": p.Confidence,
		}
		if _, err := a.deps.Memory.SaveLongTerm(ctx, a.cfg.AgentID, memory.TypePattern, content, p.Confidence); err != nil {
			a.deps.Logger.Warn("pattern consolidation failed", zap.Error(err))
		}
	}
}

func (a *BaseAgent) failTurn(thought *Thought, chain *Chain, msg string) {
	thought.Error = msg
	if thought.Result == nil {
		thought.Result = &Observation{
			Summary:        "turn failed",
			Recommendation: "REVIEW",
			Success:        false,
		}
	} else {
		thought.Result.Success = false
	}
	if !chain.Concluded() {
		_ = chain.Add(StepConclusion, msg, ConfidenceCertain, a.deps.Clock.Now())
	}
}

func (a *BaseAgent) logDecision(ctx context.Context, thought *Thought) {
	if a.deps.Decisions == nil || thought.Result == nil {
		return
	}
	a.deps.Decisions.Record(ctx, observability.Decision{
		AgentID:        a.cfg.AgentID,
		TraceID:        thought.TraceID,
		Subject:        str(thought.Input["sellerId"]),
		Recommendation: thought.Result.Recommendation,
		RiskScore:      thought.Result.RiskScore,
		Confidence:     thought.Result.Confidence,
		Summary:        thought.Result.Summary,
		KeyFindings:    thought.Result.KeyFindings,
		Error:          thought.Error,
	})
}

func (a *BaseAgent) publishThought(thought *Thought) {
	if a.deps.Bus == nil || thought.Result == nil {
		return
	}
	a.deps.Bus.Publish(TopicThought, map[string]interface{}{
		"agentId":     a.cfg.AgentID,
		"agentName":   a.cfg.Name,
		"summary":     thought.Result.Summary,
		"actionCount": len(thought.Actions),
	})
}

func (a *BaseAgent) setStatus(s string) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// extractFeatures keeps the scalar fields of an input map; nested
// structures don't participate in pattern matching.
func extractFeatures(input map[string]interface{}) map[string]interface{} {
	features := make(map[string]interface{})
	for k, v := range input {
		switch v.(type) {
		case string, bool, float64, int, int64:
			features[k] = v
		}
	}
	return features
}

// outcomeFromRecommendation maps a decision to a learnable outcome.
// REVIEW and MONITOR teach nothing until feedback arrives.
func outcomeFromRecommendation(rec string) (string, bool) {
	switch rec {
	case "BLOCK", "REJECT":
		return patterns.OutcomeSuspicious, true
	case "APPROVE":
		return patterns.OutcomeLegitimateConfirmed, true
	default:
		return "", false
	}
}

func taskText(input map[string]interface{}) string {
	if t := str(input["task"]); t != "" {
		return t
	}
	return compactJSON(input)
}

func knownRisks(m *patterns.MatchResult) []interface{} {
	if m == nil || len(m.Matches) == 0 {
		return []interface{}{}
	}
	risks := make([]interface{}, 0, len(m.Matches))
	for _, match := range m.Matches {
		risks = append(risks, fmt.Sprintf("%s pattern (%s)", match.Pattern.Type, match.Pattern.Outcome))
	}
	return risks
}

func observationToMap(obs *Observation) map[string]interface{} {
	findings := make([]interface{}, 0, len(obs.KeyFindings))
	for _, f := range obs.KeyFindings {
		findings = append(findings, f)
	}
	return map[string]interface{}{
		"summary":        obs.Summary,
		"risk_score":     obs.RiskScore,
		"recommendation": obs.Recommendation,
		"confidence":     obs.Confidence,
		"reasoning":      obs.Reasoning,
		"key_findings":   findings,
	}
}

func inputKeys(input map[string]interface{}) []string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	return keys
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func strSlice(v interface{}) []string {
	raw, _ := v.([]interface{})
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
