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

package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Document is a stored reference text.
type Document struct {
	DocumentID string                 `json:"documentId"`
	Namespace  string                 `json:"namespace"`
	Title      string                 `json:"title"`
	Text       string                 `json:"text"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// SearchResult pairs a chunk with its relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// VectorSearcher is an optional embedding backend. When configured, it
// is tried first and keyword search is the fallback.
type VectorSearcher interface {
	Index(ctx context.Context, namespace string, chunks []Chunk) error
	Query(ctx context.Context, namespace, query string, limit int) ([]SearchResult, error)
}

// Store is a namespaced in-memory document and chunk index.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]map[string]*Document // namespace -> docID
	chunks map[string][]Chunk              // namespace -> chunks

	vector VectorSearcher
	logger *zap.Logger
}

// NewStore creates a knowledge store. vector may be nil.
func NewStore(vector VectorSearcher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		docs:   make(map[string]map[string]*Document),
		chunks: make(map[string][]Chunk),
		vector: vector,
		logger: logger,
	}
}

// AddDocument chunks and indexes a document, returning its id.
func (s *Store) AddDocument(ctx context.Context, namespace, title, text string, meta map[string]interface{}) (string, error) {
	if namespace == "" || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("knowledge: namespace and text are required")
	}

	doc := &Document{
		DocumentID: uuid.New().String(),
		Namespace:  namespace,
		Title:      title,
		Text:       text,
		Meta:       meta,
		CreatedAt:  time.Now(),
	}
	chunks := ChunkText(text, doc.DocumentID, meta)

	s.mu.Lock()
	if s.docs[namespace] == nil {
		s.docs[namespace] = make(map[string]*Document)
	}
	s.docs[namespace][doc.DocumentID] = doc
	s.chunks[namespace] = append(s.chunks[namespace], chunks...)
	s.mu.Unlock()

	if s.vector != nil {
		if err := s.vector.Index(ctx, namespace, chunks); err != nil {
			s.logger.Warn("vector index failed, keyword search still available",
				zap.String("namespace", namespace), zap.Error(err))
		}
	}

	s.logger.Debug("document indexed",
		zap.String("namespace", namespace),
		zap.String("document_id", doc.DocumentID),
		zap.Int("chunks", len(chunks)))
	return doc.DocumentID, nil
}

// GetDocument returns one document.
func (s *Store) GetDocument(namespace, documentID string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[namespace][documentID]
	if !ok {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(namespace, documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[namespace][documentID]; !ok {
		return false
	}
	delete(s.docs[namespace], documentID)
	kept := s.chunks[namespace][:0]
	for _, c := range s.chunks[namespace] {
		if c.ParentID != documentID {
			kept = append(kept, c)
		}
	}
	s.chunks[namespace] = kept
	return true
}

// Search ranks chunks in a namespace against a query. The vector
// backend is preferred; keyword overlap is the fallback.
func (s *Store) Search(ctx context.Context, namespace, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	if s.vector != nil {
		results, err := s.vector.Query(ctx, namespace, query, limit)
		if err == nil {
			return results, nil
		}
		s.logger.Debug("vector query failed, falling back to keyword search", zap.Error(err))
	}

	return s.keywordSearch(namespace, query, limit), nil
}

var chunkTokenRe = regexp.MustCompile(`[a-z0-9]+`)

func chunkTokens(text string) []string {
	var out []string
	for _, tok := range chunkTokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 1 {
			out = append(out, tok)
		}
	}
	return out
}

// keywordSearch scores chunks by the share of query tokens they contain.
func (s *Store) keywordSearch(namespace, query string, limit int) []SearchResult {
	queryTokens := chunkTokens(query)
	if len(queryTokens) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, chunk := range s.chunks[namespace] {
		text := strings.ToLower(chunk.Text)
		matched := 0
		for _, tok := range queryTokens {
			if strings.Contains(text, tok) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, SearchResult{
			Chunk: chunk,
			Score: float64(matched) / float64(len(queryTokens)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Namespaces lists namespaces with at least one document.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for ns, docs := range s.docs {
		if len(docs) > 0 {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns document and chunk counts for a namespace.
func (s *Store) Count(namespace string) (docs, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[namespace]), len(s.chunks[namespace])
}
