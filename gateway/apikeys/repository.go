// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import (
	"context"
	"time"
)

// Repository defines the persistence interface for API keys
type Repository interface {
	// Create persists a new key. Returns ErrDuplicateKeyName when the
	// organization already has a key with the same name.
	Create(ctx context.Context, key *APIKey) error

	// GetByID returns a key scoped to its organization, or ErrKeyNotFound
	GetByID(ctx context.Context, id, orgID string) (*APIKey, error)

	// ListByOrganization returns all keys for an organization, newest first
	ListByOrganization(ctx context.Context, orgID string) ([]*APIKey, error)

	// ListActiveByPrefix returns the active keys whose display prefix
	// matches. The prefix is non-secret; the caller still performs the
	// constant-time hash comparison against each candidate.
	ListActiveByPrefix(ctx context.Context, prefix string) ([]*APIKey, error)

	// UpdateLastUsed records a successful validation timestamp
	UpdateLastUsed(ctx context.Context, id string, usedAt time.Time) error

	// Deactivate revokes a key without deleting it, or ErrKeyNotFound
	Deactivate(ctx context.Context, id, orgID string) error

	// Delete permanently removes a key, or ErrKeyNotFound
	Delete(ctx context.Context, id, orgID string) error

	// Ping checks repository health
	Ping(ctx context.Context) error
}
