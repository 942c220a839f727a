// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the api_keys table and its lookup indexes
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(64) PRIMARY KEY,
			organization_id VARCHAR(64) NOT NULL,
			creator_id VARCHAR(64),
			name VARCHAR(255) NOT NULL,
			description TEXT,
			key_prefix VARCHAR(32) NOT NULL,
			secret_hash VARCHAR(64) NOT NULL,
			permissions JSONB NOT NULL DEFAULT '{}',
			metadata JSONB NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT true,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			CONSTRAINT api_keys_org_name_unique UNIQUE (organization_id, name)
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix) WHERE is_active = true;
		CREATE INDEX IF NOT EXISTS idx_api_keys_org ON api_keys(organization_id);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create api_keys schema: %w", err)
	}
	return nil
}

// Create persists a new key
func (r *PostgresRepository) Create(ctx context.Context, key *APIKey) error {
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	metadata, err := json.Marshal(key.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO api_keys (
			id, organization_id, creator_id, name, description, key_prefix,
			secret_hash, permissions, metadata, is_active, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		key.ID, key.OrganizationID, nullString(key.CreatorID), key.Name,
		nullString(key.Description), key.KeyPrefix, key.SecretHash,
		permissions, metadata, key.IsActive, key.ExpiresAt, key.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKeyName
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

const keyColumns = `id, organization_id, creator_id, name, description, key_prefix,
	secret_hash, permissions, metadata, is_active, expires_at, last_used_at, created_at`

// GetByID retrieves a key by id within its organization
func (r *PostgresRepository) GetByID(ctx context.Context, id, orgID string) (*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE id = $1 AND organization_id = $2`

	key, err := scanKey(r.db.QueryRowContext(ctx, query, id, orgID))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// ListByOrganization returns all of an organization's keys, newest first
func (r *PostgresRepository) ListByOrganization(ctx context.Context, orgID string) ([]*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE organization_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListActiveByPrefix returns active keys matching the display prefix
func (r *PostgresRepository) ListActiveByPrefix(ctx context.Context, prefix string) ([]*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_prefix = $1 AND is_active = true`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys by prefix: %w", err)
	}
	defer rows.Close()

	return collectKeys(rows)
}

// UpdateLastUsed records the most recent successful validation
func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, usedAt); err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

// Deactivate revokes a key
func (r *PostgresRepository) Deactivate(ctx context.Context, id, orgID string) error {
	query := `UPDATE api_keys SET is_active = false WHERE id = $1 AND organization_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Delete permanently removes a key
func (r *PostgresRepository) Delete(ctx context.Context, id, orgID string) error {
	query := `DELETE FROM api_keys WHERE id = $1 AND organization_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var creatorID, description sql.NullString
	var expiresAt, lastUsedAt sql.NullTime
	var permissions, metadata []byte

	err := row.Scan(
		&key.ID, &key.OrganizationID, &creatorID, &key.Name, &description,
		&key.KeyPrefix, &key.SecretHash, &permissions, &metadata,
		&key.IsActive, &expiresAt, &lastUsedAt, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.CreatorID = creatorID.String
	key.Description = description.String
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		key.LastUsedAt = &t
	}

	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &key.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &key.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &key, nil
}

func collectKeys(rows *sql.Rows) ([]*APIKey, error) {
	var keys []*APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate api keys: %w", err)
	}
	return keys, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
