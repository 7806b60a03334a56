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

// Package runtime wires the platform components together. A Runtime is
// constructed once; agents and commands take the pieces they need from
// it. Tests build their own Runtime over an in-memory store and a fake
// clock.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/agent"
	"github.com/teradata-labs/sentinel/pkg/bus"
	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/communication"
	"github.com/teradata-labs/sentinel/pkg/config"
	"github.com/teradata-labs/sentinel/pkg/contexteng"
	"github.com/teradata-labs/sentinel/pkg/knowledge"
	"github.com/teradata-labs/sentinel/pkg/kv"
	"github.com/teradata-labs/sentinel/pkg/learning"
	"github.com/teradata-labs/sentinel/pkg/llm"
	"github.com/teradata-labs/sentinel/pkg/llm/anthropic"
	"github.com/teradata-labs/sentinel/pkg/memory"
	"github.com/teradata-labs/sentinel/pkg/observability"
	"github.com/teradata-labs/sentinel/pkg/orchestration"
	"github.com/teradata-labs/sentinel/pkg/patterns"
	"github.com/teradata-labs/sentinel/pkg/scheduler"
	"github.com/teradata-labs/sentinel/pkg/tools"
)

// KnowledgeNamespace is the namespace the context engine retrieves
// reference documents from.
const KnowledgeNamespace = "fraud-knowledge"

// Options override the defaults derived from Config. Every field is
// optional except Config.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock

	// Store overrides the KV backend. When set, the caller owns its
	// lifecycle and Close leaves it open.
	Store kv.Store

	// Provider overrides the LLM provider. When nil, an Anthropic
	// provider is built if the config activates the LLM; otherwise the
	// client runs disabled and agents use their deterministic fallbacks.
	Provider llm.Provider

	Tracer observability.Tracer
}

// Runtime holds every shared component, constructed once.
type Runtime struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock

	Bus   *bus.EventBus
	Store kv.Store

	LLM   *llm.Client
	Costs *llm.CostTracker

	Memory    *memory.Store
	Patterns  *patterns.Memory
	Knowledge *knowledge.Store
	Context   *contexteng.Engine

	Calibrator  *learning.Calibrator
	Corrections *learning.SelfCorrection
	Feedback    *learning.FeedbackLog

	Tracer    observability.Tracer
	Metrics   *observability.Metrics
	Decisions *observability.DecisionLog

	Messenger    *communication.Messenger
	Consensus    *communication.Consensus
	Router       *communication.Router
	Coordinator  *orchestration.Coordinator
	Orchestrator *orchestration.Orchestrator

	Breakers *tools.BreakerSet
	Executor *tools.Executor

	Scheduler *scheduler.Scheduler

	ownsStore    bool
	feedbackStop func()
	closeOnce    sync.Once
}

// New builds a Runtime from the options. The context bounds only the
// construction-time work (store open, calibration load).
func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("runtime: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	r := &Runtime{Config: cfg, Logger: logger, Clock: clk}
	r.Bus = bus.New(logger)

	if opts.Store != nil {
		r.Store = opts.Store
	} else {
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		r.Store = store
		r.ownsStore = true
	}

	if err := r.wire(ctx, opts); err != nil {
		if r.ownsStore {
			r.Store.Close()
		}
		return nil, err
	}
	return r, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kv.Store, error) {
	if cfg.DBPath == "" {
		return kv.NewMemoryStore(), nil
	}
	store, err := kv.NewSQLiteStore(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("runtime: open store %s: %w", cfg.DBPath, err)
	}
	return store, nil
}

func (r *Runtime) wire(ctx context.Context, opts Options) error {
	cfg := r.Config

	r.Costs = llm.NewCostTracker(r.Bus, r.Store, r.Logger)

	provider := opts.Provider
	if provider == nil && cfg.LLMActive() {
		p, err := anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.Model)
		if err != nil {
			return fmt.Errorf("runtime: anthropic provider: %w", err)
		}
		provider = p
	}
	cache := llm.NewCache(cfg.CacheTTL, cfg.CacheEntries, r.Clock)
	r.LLM = llm.NewClient(provider, cache, r.Costs, r.Clock, r.Logger)

	mem, err := memory.NewStore(r.Store, r.Clock, r.Logger)
	if err != nil {
		return fmt.Errorf("runtime: memory store: %w", err)
	}
	r.Memory = mem
	r.Patterns = patterns.NewMemory(r.Clock, r.Logger)
	r.Knowledge = knowledge.NewStore(nil, r.Logger)
	r.Context = contexteng.NewEngine(mem, &knowledgeRetriever{
		store:     r.Knowledge,
		namespace: KnowledgeNamespace,
	}, nil, r.Logger)

	r.Calibrator, err = learning.NewCalibrator(ctx, r.Store, r.Logger)
	if err != nil {
		return fmt.Errorf("runtime: calibrator: %w", err)
	}
	r.Corrections = learning.NewSelfCorrection(r.Calibrator, r.Clock, r.Logger)
	r.Feedback = learning.NewFeedbackLog(r.Store, r.Clock, r.Logger)
	r.feedbackStop = r.Feedback.Subscribe(r.Bus)

	r.Tracer = opts.Tracer
	if r.Tracer == nil {
		r.Tracer = observability.NewCollectingTracer(0)
	}
	r.Metrics = observability.NewMetrics(r.Store, r.Clock, r.Logger)
	r.Decisions = observability.NewDecisionLog(r.Store, r.Logger)

	r.Messenger = communication.NewMessenger(r.Clock, r.Logger)
	r.Consensus = communication.NewConsensus(mem, r.Logger)
	r.Router = communication.NewRouter(r.Logger)
	r.Coordinator = orchestration.NewCoordinator(r.Consensus, r.Logger)
	r.Orchestrator, err = orchestration.NewOrchestrator(r.Coordinator, r.Logger)
	if err != nil {
		return fmt.Errorf("runtime: orchestrator: %w", err)
	}

	r.Breakers = tools.NewBreakerSet(0, 0, r.Clock)
	r.Executor = tools.NewExecutor(r.Tracer, r.Metrics, r.Breakers, r.Logger)

	r.Scheduler = scheduler.New(r.Logger)
	if err := r.addMaintenanceJobs(); err != nil {
		return err
	}
	return nil
}

func (r *Runtime) addMaintenanceJobs() error {
	jobs := []scheduler.Job{
		{
			Name: "memory-cleanup",
			Spec: "0 3 * * *",
			Run: func(ctx context.Context) error {
				removed, err := r.Memory.Cleanup(ctx)
				if err != nil {
					return err
				}
				r.Logger.Info("expired memories removed", zap.Int("count", removed))
				return nil
			},
		},
		{
			Name: "tracer-flush",
			Spec: "@every 1h",
			Run: func(ctx context.Context) error {
				return r.Tracer.Flush(ctx)
			},
		},
	}
	for _, job := range jobs {
		if err := r.Scheduler.Add(job); err != nil {
			return fmt.Errorf("runtime: schedule %s: %w", job.Name, err)
		}
	}
	return nil
}

// AgentDeps returns the dependency set a BaseAgent takes, wired from
// the runtime's components.
func (r *Runtime) AgentDeps() agent.Deps {
	return agent.Deps{
		LLM:         r.LLM,
		Context:     r.Context,
		Memory:      r.Memory,
		Patterns:    r.Patterns,
		Executor:    r.Executor,
		Bus:         r.Bus,
		Tracer:      r.Tracer,
		Metrics:     r.Metrics,
		Decisions:   r.Decisions,
		Corrections: r.Corrections,
		Clock:       r.Clock,
		Logger:      r.Logger,
	}
}

// ApplyBudget caps an agent's spend per the configured limits. A zero
// max cost means no budget.
func (r *Runtime) ApplyBudget(agentID string) {
	if r.Config.MaxCostUSD <= 0 {
		return
	}
	r.Costs.SetBudget(agentID, llm.Budget{
		MaxCostUSD:     r.Config.MaxCostUSD,
		AlertThreshold: r.Config.AlertThreshold,
	})
}

// Start begins background work: metrics persistence and the
// maintenance schedule.
func (r *Runtime) Start() {
	r.Metrics.Start()
	r.Scheduler.Start()
	r.Logger.Info("runtime started",
		zap.Bool("llm", r.LLM.Enabled()),
		zap.String("db_path", r.Config.DBPath))
}

// Close stops background work and releases the store if the runtime
// opened it. Idempotent.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.Scheduler.Stop()
		r.Metrics.Stop()
		if r.feedbackStop != nil {
			r.feedbackStop()
		}
		r.Bus.Close()
		if r.ownsStore {
			if err := r.Store.Close(); err != nil {
				r.Logger.Warn("store close", zap.Error(err))
			}
		}
		r.Logger.Info("runtime stopped")
	})
}

// knowledgeRetriever adapts the namespaced knowledge store to the
// context engine's retriever interface.
type knowledgeRetriever struct {
	store     *knowledge.Store
	namespace string
}

func (k *knowledgeRetriever) Search(ctx context.Context, query string, limit int) ([]contexteng.Snippet, error) {
	results, err := k.store.Search(ctx, k.namespace, query, limit)
	if err != nil {
		return nil, err
	}
	snippets := make([]contexteng.Snippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, contexteng.Snippet{
			ID:    res.Chunk.ChunkID,
			Text:  res.Chunk.Text,
			Score: res.Score,
		})
	}
	return snippets, nil
}
