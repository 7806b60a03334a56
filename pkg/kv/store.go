// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package kv provides the named-table key-value façade the runtime persists
// through. Each table maps (partition key, id) to an opaque blob; the schema
// of the blob belongs to the component that writes it.
package kv

import (
	"context"
	"errors"
)

// Tables written by the runtime. CRUD services own everything else.
const (
	TableShortTermMemory = "agent_short_term_memory"
	TableLongTermMemory  = "agent_long_term_memory"
	TableMetrics         = "agent_metrics"
	TableCosts           = "agent_costs"
	TableDecisions       = "agent_decisions"
	TableCalibration     = "agent_calibration"
	TableFeedback        = "agent_feedback"
)

// Tables the runtime reads but never writes.
const (
	TableCases        = "cases"
	TableRules        = "rules"
	TableTransactions = "transactions"
	TableSellers      = "sellers"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("kv: record not found")

// Record is a single stored row.
type Record struct {
	Table string
	PK    string
	ID    string
	Blob  []byte
}

// Store is the persistence façade consumed by the runtime.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert stores a new record. Inserting an existing (table, pk, id)
	// overwrites it; the façade does not distinguish insert from upsert.
	Insert(ctx context.Context, table, pk, id string, blob []byte) error

	// Update replaces an existing record. Returns ErrNotFound if absent.
	Update(ctx context.Context, table, pk, id string, blob []byte) error

	// GetByID retrieves a single record's blob. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, table, pk, id string) ([]byte, error)

	// GetAll returns records from a table in insertion order.
	// limit <= 0 means no limit.
	GetAll(ctx context.Context, table string, limit, offset int) ([]Record, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, table, pk, id string) error

	// Count returns the number of records in a table.
	Count(ctx context.Context, table string) (int, error)

	// Close releases any underlying resources.
	Close() error
}
