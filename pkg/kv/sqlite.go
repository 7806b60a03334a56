// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a single SQLite database.
// Uses WAL mode for concurrent read/write access.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and prepares the
// schema. The caller owns the store and must Close it.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("kv: db path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_records (
		table_name TEXT NOT NULL,
		pk TEXT NOT NULL,
		id TEXT NOT NULL,
		blob BLOB,
		seq INTEGER,
		PRIMARY KEY (table_name, pk, id)
	);

	CREATE INDEX IF NOT EXISTS idx_kv_table_seq ON kv_records(table_name, seq);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// Insert stores a record, overwriting any existing one.
func (s *SQLiteStore) Insert(ctx context.Context, table, pk, id string, blob []byte) error {
	if table == "" || id == "" {
		return fmt.Errorf("kv: table and id are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (table_name, pk, id, blob, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv_records WHERE table_name = ?))
		ON CONFLICT(table_name, pk, id) DO UPDATE SET blob = excluded.blob`,
		table, pk, id, blob, table)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Update replaces an existing record.
func (s *SQLiteStore) Update(ctx context.Context, table, pk, id string, blob []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kv_records SET blob = ? WHERE table_name = ? AND pk = ? AND id = ?`,
		blob, table, pk, id)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a single record's blob.
func (s *SQLiteStore) GetByID(ctx context.Context, table, pk, id string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM kv_records WHERE table_name = ? AND pk = ? AND id = ?`,
		table, pk, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return blob, nil
}

// GetAll returns records in insertion order.
func (s *SQLiteStore) GetAll(ctx context.Context, table string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, pk, id, blob FROM kv_records
		 WHERE table_name = ? ORDER BY seq LIMIT ? OFFSET ?`,
		table, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Table, &rec.PK, &rec.ID, &rec.Blob); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record if present.
func (s *SQLiteStore) Delete(ctx context.Context, table, pk, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_records WHERE table_name = ? AND pk = ? AND id = ?`,
		table, pk, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Count returns the number of records in a table.
func (s *SQLiteStore) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv_records WHERE table_name = ?`, table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
