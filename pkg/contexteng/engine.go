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

package contexteng

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/memory"
)

// Section names, in priority order. Lower priority number = more protected.
const (
	SectionSystem    = "system"
	SectionTask      = "task"
	SectionShortTerm = "shortTermMemory"
	SectionRAG       = "ragResults"
	SectionLongTerm  = "longTermMemory"
	SectionDomain    = "domainContext"
)

// sectionCeilings are per-source token caps; text is truncated to
// chars ≈ 4× tokens before formatting.
var sectionCeilings = map[string]int{
	SectionSystem:    200,
	SectionTask:      500,
	SectionShortTerm: 500,
	SectionRAG:       800,
	SectionLongTerm:  400,
	SectionDomain:    300,
}

// Snippet is one retrieved knowledge fragment.
type Snippet struct {
	ID    string
	Text  string
	Score float64
}

// Retriever supplies RAG results for a query.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// DomainProvider supplies free-form domain context (seller profile,
// active rules, open cases) for an assembly request.
type DomainProvider interface {
	DomainContext(ctx context.Context, opts AssembleOptions) (string, error)
}

// MemorySource is the slice of the memory store the engine reads.
// Satisfied by *memory.Store.
type MemorySource interface {
	GetShortTerm(ctx context.Context, agentID, sessionID string) ([]memory.ShortTermEntry, error)
	QueryLongTerm(ctx context.Context, agentID, query string, limit int) ([]memory.QueryResult, error)
}

// AssembleOptions parameterise one context assembly.
type AssembleOptions struct {
	SessionID    string
	SystemPrompt string
	Domain       string
	SellerID     string
	TokenBudget  int
	Rerank       bool
}

// Section is one assembled prompt section.
type Section struct {
	Name   string
	Text   string
	Tokens int
}

// Assembled is the engine's output.
type Assembled struct {
	Prompt     string
	Sections   []Section
	Sources    []string
	TokenCount int
}

// Engine gathers context from memory, retrieval and domain sources in
// priority order. Optional sources fail silently: a broken retriever
// costs a section, never the turn.
type Engine struct {
	memories  MemorySource
	retriever Retriever
	domain    DomainProvider
	ranker    *Ranker
	tokens    *TokenCounter
	logger    *zap.Logger
}

// NewEngine creates a context engine. memories, retriever and domain
// may each be nil; their sections are then skipped.
func NewEngine(memories MemorySource, retriever Retriever, domain DomainProvider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		memories:  memories,
		retriever: retriever,
		domain:    domain,
		ranker:    NewRanker(),
		tokens:    NewTokenCounter(),
		logger:    logger,
	}
}

// Assemble builds the prompt context for a task.
func (e *Engine) Assemble(ctx context.Context, agentID, task string, opts AssembleOptions) *Assembled {
	out := &Assembled{}

	e.addSection(out, SectionSystem, opts.SystemPrompt)
	e.addSection(out, SectionTask, task)

	if opts.Rerank {
		e.assembleReranked(ctx, out, agentID, task, opts)
	} else {
		e.addSection(out, SectionShortTerm, e.shortTermText(ctx, agentID, opts.SessionID))
		e.addSection(out, SectionRAG, e.ragText(ctx, task))
		e.addSection(out, SectionLongTerm, e.longTermText(ctx, agentID, task))
		e.addSection(out, SectionDomain, e.domainText(ctx, opts))
	}

	var sb strings.Builder
	for _, sec := range out.Sections {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", sec.Name, sec.Text)
	}
	out.Prompt = strings.TrimSpace(sb.String())
	return out
}

// assembleReranked pools all optional-source items, ranks them against
// the task and admits them under the global budget.
func (e *Engine) assembleReranked(ctx context.Context, out *Assembled, agentID, task string, opts AssembleOptions) {
	var items []Item
	collect := func(source, text string) {
		for i, part := range splitNonEmpty(text) {
			items = append(items, Item{
				ID:     fmt.Sprintf("%s-%d", source, i),
				Source: source,
				Text:   part,
				Tokens: e.tokens.Count(part),
			})
		}
	}
	collect(SectionShortTerm, e.shortTermText(ctx, agentID, opts.SessionID))
	collect(SectionRAG, e.ragText(ctx, task))
	collect(SectionLongTerm, e.longTermText(ctx, agentID, task))
	collect(SectionDomain, e.domainText(ctx, opts))

	guaranteed := Guarantees{}
	for _, sec := range out.Sections {
		switch sec.Name {
		case SectionSystem:
			guaranteed.System = sec.Tokens
		case SectionTask:
			guaranteed.Task = sec.Tokens
		}
	}

	ranked := e.ranker.RankItems(items, task)
	alloc := AllocateBudget(ranked, opts.TokenBudget, guaranteed)
	if len(alloc.DroppedItems) > 0 {
		e.logger.Debug("context items dropped",
			zap.String("agent_id", agentID),
			zap.Int("dropped", len(alloc.DroppedItems)))
	}

	grouped := make(map[string][]string)
	for _, item := range alloc.Items {
		grouped[item.Source] = append(grouped[item.Source], item.Text)
	}
	for _, source := range []string{SectionShortTerm, SectionRAG, SectionLongTerm, SectionDomain} {
		if parts := grouped[source]; len(parts) > 0 {
			e.addSection(out, source, strings.Join(parts, "\n"))
		}
	}
}

// addSection truncates to the source ceiling, counts tokens and appends.
// Empty text is skipped.
func (e *Engine) addSection(out *Assembled, name, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if ceiling, ok := sectionCeilings[name]; ok {
		maxChars := ceiling * charsPerToken
		if len(text) > maxChars {
			text = text[:maxChars]
		}
	}
	tokens := e.tokens.Count(text)
	out.Sections = append(out.Sections, Section{Name: name, Text: text, Tokens: tokens})
	out.Sources = append(out.Sources, name)
	out.TokenCount += tokens
}

func (e *Engine) shortTermText(ctx context.Context, agentID, sessionID string) string {
	if e.memories == nil || sessionID == "" {
		return ""
	}
	entries, err := e.memories.GetShortTerm(ctx, agentID, sessionID)
	if err != nil {
		e.logger.Debug("short-term context skipped", zap.Error(err))
		return ""
	}
	var parts []string
	for _, entry := range entries {
		parts = append(parts, fmt.Sprintf("%v", entry.Entry))
	}
	return strings.Join(parts, "\n")
}

func (e *Engine) ragText(ctx context.Context, query string) string {
	if e.retriever == nil {
		return ""
	}
	snippets, err := e.retriever.Search(ctx, query, 5)
	if err != nil {
		e.logger.Debug("rag context skipped", zap.Error(err))
		return ""
	}
	var parts []string
	for _, s := range snippets {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n")
}

func (e *Engine) longTermText(ctx context.Context, agentID, query string) string {
	if e.memories == nil {
		return ""
	}
	results, err := e.memories.QueryLongTerm(ctx, agentID, query, 5)
	if err != nil {
		e.logger.Debug("long-term context skipped", zap.Error(err))
		return ""
	}
	var parts []string
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%v", r.Entry.Content))
	}
	return strings.Join(parts, "\n")
}

func (e *Engine) domainText(ctx context.Context, opts AssembleOptions) string {
	if e.domain == nil {
		return ""
	}
	text, err := e.domain.DomainContext(ctx, opts)
	if err != nil {
		e.logger.Debug("domain context skipped", zap.Error(err))
		return ""
	}
	return text
}

func splitNonEmpty(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
