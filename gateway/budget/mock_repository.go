// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package budget

import (
	"context"
	"sync"
)

// MockRepository is an in-memory Repository for tests. Set ListErr to
// simulate datastore failures.
type MockRepository struct {
	mu        sync.RWMutex
	campaigns map[string][]Campaign

	ListErr error
}

// NewMockRepository creates an empty mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{campaigns: make(map[string][]Campaign)}
}

var _ Repository = (*MockRepository)(nil)

// Add registers a campaign under an organization
func (m *MockRepository) Add(orgID string, c Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[orgID] = append(m.campaigns[orgID], c)
}

// ListByOrganization returns the organization's campaigns minus the
// excluded one
func (m *MockRepository) ListByOrganization(_ context.Context, orgID, excludeCampaignID string) ([]Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []Campaign
	for _, c := range m.campaigns[orgID] {
		if excludeCampaignID != "" && c.ID == excludeCampaignID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
