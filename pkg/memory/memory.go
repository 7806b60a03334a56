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

// Package memory implements agent memory: a short-term session buffer with
// TTL and FIFO cap, and a long-term store with importance/recency-weighted
// retrieval and session consolidation.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/sentinel/pkg/clock"
	"github.com/teradata-labs/sentinel/pkg/kv"
)

const (
	// ShortTermTTL bounds how long a session entry stays retrievable.
	ShortTermTTL = 24 * time.Hour

	// MaxShortTermPerSession caps a session's buffer; oldest evict first.
	MaxShortTermPerSession = 50

	// DefaultQueryLimit is used when a query passes limit <= 0.
	DefaultQueryLimit = 5

	// consolidationMinGroup is the group size that promotes a session
	// group into a long-term pattern.
	consolidationMinGroup = 3
)

// Long-term entry types.
const (
	TypePattern    = "pattern"
	TypeInsight    = "insight"
	TypePreference = "preference"
	TypeCorrection = "correction"
)

// ShortTermEntry is one session-scoped memory.
type ShortTermEntry struct {
	MemoryID  string                 `json:"memoryId"`
	AgentID   string                 `json:"agentId"`
	SessionID string                 `json:"sessionId"`
	Entry     map[string]interface{} `json:"entry"`
	CreatedAt time.Time              `json:"createdAt"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

// LongTermEntry is one permanent memory; deleted only explicitly.
type LongTermEntry struct {
	MemoryID     string                 `json:"memoryId"`
	AgentID      string                 `json:"agentId"`
	Type         string                 `json:"type"`
	Content      map[string]interface{} `json:"content"`
	Importance   float64                `json:"importance"`
	AccessCount  int                    `json:"accessCount"`
	LastAccessed time.Time              `json:"lastAccessed"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// QueryResult pairs a retrieved entry with its relevance score.
type QueryResult struct {
	Entry LongTermEntry
	Score float64
}

// Store persists both memory tiers in the KV store.
type Store struct {
	store  kv.Store
	clk    clock.Clock
	logger *zap.Logger
}

// NewStore creates a memory store.
func NewStore(store kv.Store, clk clock.Clock, logger *zap.Logger) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("memory: kv store is required")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{store: store, clk: clk, logger: logger}, nil
}

func sessionPK(agentID, sessionID string) string {
	return agentID + "\x00" + sessionID
}

// SaveShortTerm appends a session entry and enforces the FIFO cap.
func (s *Store) SaveShortTerm(ctx context.Context, agentID, sessionID string, entry map[string]interface{}) (string, error) {
	now := s.clk.Now()
	rec := ShortTermEntry{
		MemoryID:  uuid.New().String(),
		AgentID:   agentID,
		SessionID: sessionID,
		Entry:     entry,
		CreatedAt: now,
		ExpiresAt: now.Add(ShortTermTTL),
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal short-term entry: %w", err)
	}
	pk := sessionPK(agentID, sessionID)
	if err := s.store.Insert(ctx, kv.TableShortTermMemory, pk, rec.MemoryID, blob); err != nil {
		return "", fmt.Errorf("insert short-term entry: %w", err)
	}

	if err := s.enforceSessionCap(ctx, pk); err != nil {
		s.logger.Warn("short-term cap enforcement failed", zap.Error(err))
	}
	return rec.MemoryID, nil
}

// enforceSessionCap deletes oldest-first until the session fits the cap.
func (s *Store) enforceSessionCap(ctx context.Context, pk string) error {
	entries, err := s.sessionEntries(ctx, pk)
	if err != nil {
		return err
	}
	if len(entries) <= MaxShortTermPerSession {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	for _, e := range entries[:len(entries)-MaxShortTermPerSession] {
		if err := s.store.Delete(ctx, kv.TableShortTermMemory, pk, e.MemoryID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) sessionEntries(ctx context.Context, pk string) ([]ShortTermEntry, error) {
	records, err := s.store.GetAll(ctx, kv.TableShortTermMemory, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []ShortTermEntry
	for _, rec := range records {
		if rec.PK != pk {
			continue
		}
		var e ShortTermEntry
		if err := json.Unmarshal(rec.Blob, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// GetShortTerm returns the session's non-expired entries, newest first.
func (s *Store) GetShortTerm(ctx context.Context, agentID, sessionID string) ([]ShortTermEntry, error) {
	entries, err := s.sessionEntries(ctx, sessionPK(agentID, sessionID))
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	live := entries[:0]
	for _, e := range entries {
		if e.ExpiresAt.After(now) {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	return live, nil
}

// SaveLongTerm stores a permanent memory. Importance is clamped to [0,1].
func (s *Store) SaveLongTerm(ctx context.Context, agentID, memType string, content map[string]interface{}, importance float64) (string, error) {
	importance = math.Max(0, math.Min(1, importance))
	rec := LongTermEntry{
		MemoryID:   uuid.New().String(),
		AgentID:    agentID,
		Type:       memType,
		Content:    content,
		Importance: importance,
		CreatedAt:  s.clk.Now(),
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal long-term entry: %w", err)
	}
	if err := s.store.Insert(ctx, kv.TableLongTermMemory, agentID, rec.MemoryID, blob); err != nil {
		return "", fmt.Errorf("insert long-term entry: %w", err)
	}
	return rec.MemoryID, nil
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	var out []string
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 1 {
			out = append(out, tok)
		}
	}
	return out
}

// QueryLongTerm ranks an agent's memories by keyword overlap, importance
// and recency. Returned records have their access counters bumped.
func (s *Store) QueryLongTerm(ctx context.Context, agentID, query string, limit int) ([]QueryResult, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	entries, err := s.longTermEntries(ctx, agentID)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	now := s.clk.Now()

	var results []QueryResult
	for _, e := range entries {
		contentText := strings.ToLower(flattenContent(e.Content))

		matched := 0
		for _, tok := range queryTokens {
			if strings.Contains(contentText, tok) {
				matched++
			}
		}
		keywordScore := 0.0
		if len(queryTokens) > 0 {
			keywordScore = float64(matched) / float64(len(queryTokens))
		}

		recency := 0.5
		if !e.LastAccessed.IsZero() {
			days := now.Sub(e.LastAccessed).Hours() / 24
			recency = math.Pow(0.5, days/7)
		}

		score := 0.5*keywordScore + 0.3*e.Importance + 0.2*recency
		if score > 0 {
			results = append(results, QueryResult{Entry: e, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}

	// Retrieval is itself a signal: bump access stats on what we return.
	for i := range results {
		results[i].Entry.AccessCount++
		results[i].Entry.LastAccessed = now
		if blob, err := json.Marshal(results[i].Entry); err == nil {
			if err := s.store.Update(ctx, kv.TableLongTermMemory, agentID, results[i].Entry.MemoryID, blob); err != nil {
				s.logger.Warn("access bump failed", zap.Error(err))
			}
		}
	}
	return results, nil
}

// GetByType returns an agent's memories of one type, most important first.
func (s *Store) GetByType(ctx context.Context, agentID, memType string) ([]LongTermEntry, error) {
	entries, err := s.longTermEntries(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var out []LongTermEntry
	for _, e := range entries {
		if e.Type == memType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

func (s *Store) longTermEntries(ctx context.Context, agentID string) ([]LongTermEntry, error) {
	records, err := s.store.GetAll(ctx, kv.TableLongTermMemory, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []LongTermEntry
	for _, rec := range records {
		if rec.PK != agentID {
			continue
		}
		var e LongTermEntry
		if err := json.Unmarshal(rec.Blob, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Consolidate promotes repeated session activity into long-term patterns:
// every group of >= 3 entries sharing a type/action becomes one pattern
// entry whose importance grows with the group size.
func (s *Store) Consolidate(ctx context.Context, agentID, sessionID string) (int, error) {
	entries, err := s.GetShortTerm(ctx, agentID, sessionID)
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]ShortTermEntry)
	var order []string
	for _, e := range entries {
		key := groupKey(e.Entry)
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	promoted := 0
	for _, key := range order {
		group := groups[key]
		if len(group) < consolidationMinGroup {
			continue
		}
		examples := make([]map[string]interface{}, 0, 3)
		for _, e := range group {
			examples = append(examples, e.Entry)
			if len(examples) == 3 {
				break
			}
		}
		importance := math.Min(0.3+0.1*float64(len(group)), 1.0)
		content := map[string]interface{}{
			"pattern":     key,
			"occurrences": len(group),
			"examples":    examples,
			"sessionId":   sessionID,
		}
		if _, err := s.SaveLongTerm(ctx, agentID, TypePattern, content, importance); err != nil {
			return promoted, err
		}
		promoted++
	}

	if promoted > 0 {
		s.logger.Info("session consolidated",
			zap.String("agent_id", agentID),
			zap.String("session_id", sessionID),
			zap.Int("patterns", promoted))
	}
	return promoted, nil
}

func groupKey(entry map[string]interface{}) string {
	if v, ok := entry["type"].(string); ok && v != "" {
		return v
	}
	if v, ok := entry["action"].(string); ok && v != "" {
		return v
	}
	return ""
}

// Cleanup deletes every expired short-term entry across all sessions.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	records, err := s.store.GetAll(ctx, kv.TableShortTermMemory, 0, 0)
	if err != nil {
		return 0, err
	}
	now := s.clk.Now()
	deleted := 0
	for _, rec := range records {
		var e ShortTermEntry
		if err := json.Unmarshal(rec.Blob, &e); err != nil {
			continue
		}
		if e.ExpiresAt.After(now) {
			continue
		}
		if err := s.store.Delete(ctx, kv.TableShortTermMemory, rec.PK, rec.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Delete removes one long-term entry.
func (s *Store) Delete(ctx context.Context, agentID, memoryID string) error {
	return s.store.Delete(ctx, kv.TableLongTermMemory, agentID, memoryID)
}

// flattenContent joins all string-ish values so keyword matching sees
// the whole entry, not only top-level strings.
func flattenContent(content map[string]interface{}) string {
	blob, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(blob)
}
