// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package kv

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
// Used by tests and by deployments that accept losing state on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	records map[string]*Record // composite key pk + "\x00" + id
	order   []string           // insertion order of composite keys
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable)}
}

func compositeKey(pk, id string) string {
	return pk + "\x00" + id
}

func (s *MemoryStore) table(name string) *memTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memTable{records: make(map[string]*Record)}
		s.tables[name] = t
	}
	return t
}

// Insert stores a record, overwriting any existing one.
func (s *MemoryStore) Insert(ctx context.Context, table, pk, id string, blob []byte) error {
	if table == "" || id == "" {
		return fmt.Errorf("kv: table and id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	key := compositeKey(pk, id)
	if _, exists := t.records[key]; !exists {
		t.order = append(t.order, key)
	}
	t.records[key] = &Record{Table: table, PK: pk, ID: id, Blob: cloneBlob(blob)}
	return nil
}

// Update replaces an existing record.
func (s *MemoryStore) Update(ctx context.Context, table, pk, id string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return ErrNotFound
	}
	key := compositeKey(pk, id)
	if _, exists := t.records[key]; !exists {
		return ErrNotFound
	}
	t.records[key] = &Record{Table: table, PK: pk, ID: id, Blob: cloneBlob(blob)}
	return nil
}

// GetByID retrieves a single record's blob.
func (s *MemoryStore) GetByID(ctx context.Context, table, pk, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, ErrNotFound
	}
	rec, exists := t.records[compositeKey(pk, id)]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneBlob(rec.Blob), nil
}

// GetAll returns records in insertion order.
func (s *MemoryStore) GetAll(ctx context.Context, table string, limit, offset int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, nil
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(t.order) {
		return nil, nil
	}

	end := len(t.order)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]Record, 0, end-offset)
	for _, key := range t.order[offset:end] {
		rec := t.records[key]
		out = append(out, Record{Table: rec.Table, PK: rec.PK, ID: rec.ID, Blob: cloneBlob(rec.Blob)})
	}
	return out, nil
}

// Delete removes a record if present.
func (s *MemoryStore) Delete(ctx context.Context, table, pk, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return nil
	}
	key := compositeKey(pk, id)
	if _, exists := t.records[key]; !exists {
		return nil
	}
	delete(t.records, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the number of records in a table.
func (s *MemoryStore) Count(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return 0, nil
	}
	return len(t.records), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneBlob(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*MemoryStore)(nil)
