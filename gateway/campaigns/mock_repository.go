// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package campaigns

import (
	"context"
	"sort"
	"sync"
)

// MockRepository is an in-memory Repository for tests. The exported
// error fields inject failures per operation.
type MockRepository struct {
	mu        sync.RWMutex
	campaigns map[string]*Campaign

	CreateErr error
	GetErr    error
	ListErr   error
	UpdateErr error
	DeleteErr error
	ExistsErr error
}

// NewMockRepository creates an empty mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{campaigns: make(map[string]*Campaign)}
}

var _ Repository = (*MockRepository)(nil)

func (m *MockRepository) Create(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, existing := range m.campaigns {
		if existing.OrganizationID == c.OrganizationID && existing.Name == c.Name {
			return ErrDuplicateCampaignName
		}
	}

	stored := *c
	m.campaigns[c.ID] = &stored
	return nil
}

func (m *MockRepository) GetByID(_ context.Context, id, orgID string) (*Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return nil, ErrCampaignNotFound
	}

	copied := *c
	return &copied, nil
}

func (m *MockRepository) ListByOrganization(_ context.Context, orgID string) ([]*Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []*Campaign
	for _, c := range m.campaigns {
		if c.OrganizationID != orgID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockRepository) Update(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	existing, ok := m.campaigns[c.ID]
	if !ok || existing.OrganizationID != c.OrganizationID {
		return ErrCampaignNotFound
	}

	stored := *c
	m.campaigns[c.ID] = &stored
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return ErrCampaignNotFound
	}

	delete(m.campaigns, id)
	return nil
}

func (m *MockRepository) ExistsByName(_ context.Context, orgID, name, excludeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	for _, c := range m.campaigns {
		if c.OrganizationID == orgID && c.Name == name && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}
