// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSink batch-inserts audit entries into the audit_log table
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a sink backed by the given database
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

var _ Sink = (*PostgresSink)(nil)

// EnsureSchema creates the audit_log table if missing
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id VARCHAR(255) PRIMARY KEY,
		request_id VARCHAR(255) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		api_key_id VARCHAR(255),
		organization_id VARCHAR(255),
		method VARCHAR(10) NOT NULL,
		path TEXT NOT NULL,
		action VARCHAR(100),
		status_code INTEGER NOT NULL,
		duration_ms BIGINT NOT NULL,
		request_body TEXT,
		response_summary TEXT,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_log_org ON audit_log(organization_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_request ON audit_log(request_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

// Write inserts a batch inside one transaction so a failed batch can be
// retried whole.
func (s *PostgresSink) Write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_log (
			id, request_id, timestamp, api_key_id, organization_id,
			method, path, action, status_code, duration_ms,
			request_body, response_summary, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.RequestID, e.Timestamp, nullString(e.APIKeyID), nullString(e.OrganizationID),
			e.Method, e.Path, nullString(e.Action), e.StatusCode, e.DurationMs,
			nullString(e.RequestBody), nullString(e.ResponseSummary), nullString(e.ErrorMessage),
		); err != nil {
			return fmt.Errorf("failed to insert audit entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
