// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import (
	"time"
)

// Permissions maps a resource name (e.g. "campaigns") to the actions the
// key may perform on it (e.g. ["read", "create"]). The wildcard action "*"
// grants every action on that resource.
type Permissions map[string][]string

// Metadata carries per-key operator settings. RateLimits overrides the
// limiter's static defaults; the bucket name "global" overrides the
// key-wide limit, any other name overrides that action's limit
// (requests per hour).
type Metadata struct {
	RateLimits map[string]int    `json:"rate_limits,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// APIKey is the persisted form of a credential. The plaintext is never
// stored; SecretHash is its sha256 digest and KeyPrefix the short
// non-secret display form used for narrowing lookups.
type APIKey struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	CreatorID      string      `json:"creator_id,omitempty"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	KeyPrefix      string      `json:"key_prefix"`
	SecretHash     string      `json:"-"`
	Permissions    Permissions `json:"permissions"`
	Metadata       Metadata    `json:"metadata,omitempty"`
	IsActive       bool        `json:"is_active"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	LastUsedAt     *time.Time  `json:"last_used_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// KeyInfo is the subset of a validated key handed to the request pipeline
type KeyInfo struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Name           string      `json:"name"`
	Permissions    Permissions `json:"permissions"`
	Metadata       Metadata    `json:"metadata,omitempty"`
}

// Validation outcome reasons
const (
	ReasonInvalid = "invalid"
	ReasonExpired = "expired"
)

// ValidationResult is the outcome of checking a presented plaintext key
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Reason string   `json:"reason,omitempty"`
	Key    *KeyInfo `json:"key,omitempty"`
}

// CreateParams are the caller-supplied fields for minting a new key
type CreateParams struct {
	OrganizationID string      `json:"organization_id"`
	CreatorID      string      `json:"creator_id,omitempty"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Permissions    Permissions `json:"permissions"`
	Metadata       Metadata    `json:"metadata,omitempty"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
}

// HasPermission reports whether the permission map grants the action on
// the resource. Deny by default: a nil map, an absent resource, or an
// action not in the resource's list all deny.
func HasPermission(perms Permissions, resource, action string) bool {
	if len(perms) == 0 || resource == "" || action == "" {
		return false
	}

	actions, ok := perms[resource]
	if !ok {
		return false
	}

	for _, a := range actions {
		if a == action || a == "*" {
			return true
		}
	}
	return false
}
