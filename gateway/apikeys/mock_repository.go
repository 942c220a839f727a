// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package apikeys

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory Repository implementation for testing
type MockRepository struct {
	mu   sync.RWMutex
	keys map[string]*APIKey

	// LastUsedCalls counts UpdateLastUsed invocations so tests can
	// observe the fire-and-forget touch.
	LastUsedCalls int

	// Error injection for testing
	CreateErr       error
	GetErr          error
	ListErr         error
	ListByPrefixErr error
	UpdateLastErr   error
	DeactivateErr   error
	DeleteErr       error
	PingErr         error
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{keys: make(map[string]*APIKey)}
}

// Ensure MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

func (r *MockRepository) Create(ctx context.Context, key *APIKey) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.keys {
		if existing.OrganizationID == key.OrganizationID && existing.Name == key.Name {
			return ErrDuplicateKeyName
		}
	}

	copied := *key
	r.keys[key.ID] = &copied
	return nil
}

func (r *MockRepository) GetByID(ctx context.Context, id, orgID string) (*APIKey, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[id]
	if !ok || key.OrganizationID != orgID {
		return nil, ErrKeyNotFound
	}
	copied := *key
	return &copied, nil
}

func (r *MockRepository) ListByOrganization(ctx context.Context, orgID string) ([]*APIKey, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []*APIKey
	for _, key := range r.keys {
		if key.OrganizationID == orgID {
			copied := *key
			keys = append(keys, &copied)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (r *MockRepository) ListActiveByPrefix(ctx context.Context, prefix string) ([]*APIKey, error) {
	if r.ListByPrefixErr != nil {
		return nil, r.ListByPrefixErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []*APIKey
	for _, key := range r.keys {
		if key.IsActive && key.KeyPrefix == prefix {
			copied := *key
			keys = append(keys, &copied)
		}
	}
	return keys, nil
}

func (r *MockRepository) UpdateLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LastUsedCalls++
	if r.UpdateLastErr != nil {
		return r.UpdateLastErr
	}
	if key, ok := r.keys[id]; ok {
		t := usedAt
		key.LastUsedAt = &t
	}
	return nil
}

func (r *MockRepository) Deactivate(ctx context.Context, id, orgID string) error {
	if r.DeactivateErr != nil {
		return r.DeactivateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok || key.OrganizationID != orgID {
		return ErrKeyNotFound
	}
	key.IsActive = false
	return nil
}

func (r *MockRepository) Delete(ctx context.Context, id, orgID string) error {
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok || key.OrganizationID != orgID {
		return ErrKeyNotFound
	}
	delete(r.keys, id)
	return nil
}

func (r *MockRepository) Ping(ctx context.Context) error {
	return r.PingErr
}

// TouchCount returns the number of UpdateLastUsed calls observed
func (r *MockRepository) TouchCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.LastUsedCalls
}
