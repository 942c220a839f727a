// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package campaigns

import (
	"context"
	"time"

	"github.com/google/uuid"

	"axonflow/campaign-gateway/gateway/budget"
	"axonflow/campaign-gateway/shared/logger"
)

// Service applies campaign business rules over a Repository
type Service struct {
	repo    Repository
	budgets *budget.Service
	log     *logger.Logger
}

// NewService wires the campaign service to its repository and the
// monthly budget validator
func NewService(repo Repository, budgets *budget.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New("campaigns")
	}
	return &Service{repo: repo, budgets: budgets, log: log}
}

// Create validates the monthly budget and name uniqueness, then persists
// a new campaign owned by params.UserID.
func (s *Service) Create(ctx context.Context, orgID string, params CreateParams) (*Campaign, error) {
	if params.UserID == "" {
		return nil, ErrMissingUser
	}

	taken, err := s.repo.ExistsByName(ctx, orgID, params.Name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateCampaignName
	}

	result, err := s.budgets.ValidateCampaignBudget(ctx, orgID, params.Budget, params.StartDate, params.EndDate, "")
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &BudgetError{Result: result}
	}

	status := params.Status
	if status == "" {
		status = StatusDraft
	}

	now := time.Now().UTC()
	campaign := &Campaign{
		ID:             uuid.New().String(),
		UserID:         params.UserID,
		OrganizationID: orgID,
		Name:           params.Name,
		Description:    params.Description,
		Budget:         params.Budget,
		StartDate:      params.StartDate,
		EndDate:        params.EndDate,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, err
	}

	s.log.Info(orgID, "", "Campaign created", map[string]interface{}{
		"campaign_id": campaign.ID,
		"name":        campaign.Name,
		"budget":      campaign.Budget,
	})
	return campaign, nil
}

// Get retrieves one campaign scoped to the organization
func (s *Service) Get(ctx context.Context, id, orgID string) (*Campaign, error) {
	return s.repo.GetByID(ctx, id, orgID)
}

// List returns the organization's campaigns, newest first
func (s *Service) List(ctx context.Context, orgID string) ([]*Campaign, error) {
	return s.repo.ListByOrganization(ctx, orgID)
}

// Update applies a partial update. When the budget or date range changes
// the result is revalidated against the monthly cap with the campaign
// excluded from its own totals.
func (s *Service) Update(ctx context.Context, id, orgID string, params UpdateParams) (*Campaign, error) {
	existing, err := s.repo.GetByID(ctx, id, orgID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if params.Name != nil {
		updated.Name = *params.Name
	}
	if params.Description != nil {
		updated.Description = *params.Description
	}
	if params.Budget != nil {
		updated.Budget = *params.Budget
	}
	if params.StartDate != nil {
		updated.StartDate = *params.StartDate
	}
	if params.EndDate != nil {
		updated.EndDate = *params.EndDate
	}
	if params.Status != nil {
		updated.Status = *params.Status
	}

	if updated.Name != existing.Name {
		taken, err := s.repo.ExistsByName(ctx, orgID, updated.Name, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrDuplicateCampaignName
		}
	}

	if params.Budget != nil || params.StartDate != nil || params.EndDate != nil {
		result, err := s.budgets.ValidateCampaignBudget(ctx, orgID, updated.Budget, updated.StartDate, updated.EndDate, id)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, &BudgetError{Result: result}
		}
	}

	updated.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	s.log.Info(orgID, "", "Campaign updated", map[string]interface{}{
		"campaign_id": updated.ID,
	})
	return &updated, nil
}

// Delete removes a campaign
func (s *Service) Delete(ctx context.Context, id, orgID string) error {
	if err := s.repo.Delete(ctx, id, orgID); err != nil {
		return err
	}
	s.log.Info(orgID, "", "Campaign deleted", map[string]interface{}{
		"campaign_id": id,
	})
	return nil
}
